// Package types defines the core data structures of the DMW raid
// coordination engine. Every row type stored by internal/store and
// persisted by internal/persist lives here.
package types

import (
	"time"
)

// RaidStatus is the lifecycle state of a raid poll.
type RaidStatus string

const (
	RaidOpen      RaidStatus = "open"
	RaidFinalized RaidStatus = "finalized"
	RaidCanceled  RaidStatus = "canceled"
)

// OptionKind distinguishes day options from time options on a raid.
type OptionKind string

const (
	KindDay  OptionKind = "day"
	KindTime OptionKind = "time"
)

// AttendanceStatus is the per-user state captured when a raid is finalized.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendancePending AttendanceStatus = "pending"
)

// Cache kinds for debug_mirror_cache rows. The cache is a generic keyed
// content-addressed store; the kind tag scopes lookups.
const (
	CacheFeatureSettings = "feature_settings"
	CacheBotMessage      = "bot_message"
	CacheSlotTempRole    = "slot_temp_role"
	CacheRaidReminder    = "raid_reminder"
	CacheAutoReminder    = "auto_reminder"
	CacheRaidStart       = "raid_start"
	CacheCalendarCfg     = "raid_calendar_cfg"
	CacheCalendarMsg     = "raid_calendar_msg"
)

// GuildSettings is the per-tenant configuration row. Created on first
// contact with a guild, destroyed on guild removal.
type GuildSettings struct {
	GuildID            uint64
	Name               string
	PlannerChannelID   uint64
	ParticipantsChanID uint64
	RaidlistChannelID  uint64
	RaidlistMessageID  *uint64 // nil until the raidlist message is posted
	DefaultMinPlayers  int
	TemplatesEnabled   bool
	TemplateRoleID     uint64
}

// Dungeon is a lookup row seeded at bootstrap.
type Dungeon struct {
	ID        int64
	Name      string
	ShortCode string
	Active    bool
	SortOrder int
}

// Raid is a planning poll. DisplayID is densely allocated 1..N per guild
// and never reused within a guild, even after cascade deletes.
type Raid struct {
	ID               int64
	DisplayID        int64
	GuildID          uint64
	PlannerChannelID uint64
	CreatorID        uint64
	Dungeon          string
	Status           RaidStatus
	CreatedAt        time.Time
	PlannerMessageID *uint64
	MinPlayers       int
	TempRoleID       *uint64
	TempRoleCreated  bool
}

// RaidOption is one votable label on a raid, unique on (raid, kind, label).
type RaidOption struct {
	RaidID int64
	Kind   OptionKind
	Label  string
}

// RaidVote records one user's toggle for one option, unique on the quadruple.
type RaidVote struct {
	RaidID int64
	Kind   OptionKind
	Label  string
	UserID uint64
}

// RaidPostedSlot is the artefact record for a qualified (day, time) pair:
// where its participant-list message lives.
type RaidPostedSlot struct {
	RaidID    int64
	Day       string
	Time      string
	ChannelID uint64
	MessageID uint64
}

// RaidTemplate is a per-guild named preset for raid creation.
type RaidTemplate struct {
	GuildID    uint64
	Name       string
	Dungeon    string
	Days       []string
	Times      []string
	MinPlayers int
}

// RaidAttendance is a snapshot row written when a raid is finalized.
// Status stays mutable through the mark API; everything else is frozen.
type RaidAttendance struct {
	GuildID   uint64
	DisplayID int64
	UserID    uint64
	Status    AttendanceStatus
	MarkedBy  uint64
}

// UserLevel tracks per-guild XP. Level is derived from XP (internal/level);
// it is stored anyway so the table is self-describing in backups.
type UserLevel struct {
	GuildID  uint64
	UserID   uint64
	XP       uint64
	Level    int
	Username string
}

// DebugCacheRow is one entry of the generic artefact cache. TimezoneName is
// always "Europe/Berlin"; kept for backup-file compatibility.
type DebugCacheRow struct {
	CacheKey     string
	Kind         string
	GuildID      uint64
	RaidID       *int64
	MessageID    uint64
	PayloadHash  string
	TimezoneName string
}

package persist

import (
	"database/sql"
	"strings"

	"github.com/dmw-rewrite/dmw/internal/store"
	"github.com/dmw-rewrite/dmw/internal/types"
)

// ForwardTables is the FK-safe insert order. Deletes run in the reverse
// order. The backup writer and the schema guard share this list.
var ForwardTables = []string{
	"guild_settings",
	"dungeons",
	"raids",
	"raid_options",
	"raid_votes",
	"raid_posted_slots",
	"raid_templates",
	"raid_attendance",
	"user_levels",
	"debug_mirror_cache",
}

// ReverseTables returns the FK-safe delete order.
func ReverseTables() []string {
	out := make([]string, len(ForwardTables))
	for i, t := range ForwardTables {
		out[len(ForwardTables)-1-i] = t
	}
	return out
}

// listJoin flattens a template's day/time labels for storage; labels never
// contain newlines (they are single-line select options).
func listJoin(items []string) string { return strings.Join(items, "\n") }

func listSplit(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func nullU64(v *uint64) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullI64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

// TableColumns returns the column list of a table in insert order.
func TableColumns(table string) []string {
	switch table {
	case "guild_settings":
		return []string{"guild_id", "name", "planner_channel_id", "participants_channel_id", "raidlist_channel_id", "raidlist_message_id", "default_min_players", "templates_enabled", "template_role_id"}
	case "dungeons":
		return []string{"id", "name", "short_code", "active", "sort_order"}
	case "raids":
		return []string{"id", "display_id", "guild_id", "planner_channel_id", "creator_id", "dungeon", "status", "created_at", "planner_message_id", "min_players", "temp_role_id", "temp_role_created"}
	case "raid_options":
		return []string{"raid_id", "kind", "label"}
	case "raid_votes":
		return []string{"raid_id", "kind", "option_label", "user_id"}
	case "raid_posted_slots":
		return []string{"raid_id", "day", "time", "channel_id", "message_id"}
	case "raid_templates":
		return []string{"guild_id", "name", "dungeon", "days", "times", "min_players"}
	case "raid_attendance":
		return []string{"guild_id", "display_id", "user_id", "status", "marked_by"}
	case "user_levels":
		return []string{"guild_id", "user_id", "xp", "level", "username"}
	case "debug_mirror_cache":
		return []string{"cache_key", "kind", "guild_id", "raid_id", "message_id", "payload_hash", "timezone_name"}
	}
	return nil
}

// TableValues returns every row of a table from the snapshot as value
// tuples matching TableColumns order. Row order is the snapshot's
// deterministic order.
func TableValues(snap store.Snapshot, table string) [][]any {
	var out [][]any
	switch table {
	case "guild_settings":
		for _, r := range snap.Settings {
			out = append(out, []any{int64(r.GuildID), r.Name, int64(r.PlannerChannelID), int64(r.ParticipantsChanID), int64(r.RaidlistChannelID), nullU64(r.RaidlistMessageID), r.DefaultMinPlayers, r.TemplatesEnabled, int64(r.TemplateRoleID)})
		}
	case "dungeons":
		for _, r := range snap.Dungeons {
			out = append(out, []any{r.ID, r.Name, r.ShortCode, r.Active, r.SortOrder})
		}
	case "raids":
		for _, r := range snap.Raids {
			out = append(out, []any{r.ID, r.DisplayID, int64(r.GuildID), int64(r.PlannerChannelID), int64(r.CreatorID), r.Dungeon, string(r.Status), r.CreatedAt.UTC(), nullU64(r.PlannerMessageID), r.MinPlayers, nullU64(r.TempRoleID), r.TempRoleCreated})
		}
	case "raid_options":
		for _, r := range snap.Options {
			out = append(out, []any{r.RaidID, string(r.Kind), r.Label})
		}
	case "raid_votes":
		for _, r := range snap.Votes {
			out = append(out, []any{r.RaidID, string(r.Kind), r.Label, int64(r.UserID)})
		}
	case "raid_posted_slots":
		for _, r := range snap.Slots {
			out = append(out, []any{r.RaidID, r.Day, r.Time, int64(r.ChannelID), int64(r.MessageID)})
		}
	case "raid_templates":
		for _, r := range snap.Templates {
			out = append(out, []any{int64(r.GuildID), r.Name, r.Dungeon, listJoin(r.Days), listJoin(r.Times), r.MinPlayers})
		}
	case "raid_attendance":
		for _, r := range snap.Attendance {
			out = append(out, []any{int64(r.GuildID), r.DisplayID, int64(r.UserID), string(r.Status), int64(r.MarkedBy)})
		}
	case "user_levels":
		for _, r := range snap.Levels {
			out = append(out, []any{int64(r.GuildID), int64(r.UserID), int64(r.XP), r.Level, r.Username})
		}
	case "debug_mirror_cache":
		for _, r := range snap.Cache {
			out = append(out, []any{r.CacheKey, r.Kind, int64(r.GuildID), nullI64(r.RaidID), int64(r.MessageID), r.PayloadHash, r.TimezoneName})
		}
	}
	return out
}

// Scan row types for Load. Column tags mirror TableColumns.

type settingsRow struct {
	GuildID           int64         `db:"guild_id"`
	Name              string        `db:"name"`
	PlannerChannelID  int64         `db:"planner_channel_id"`
	ParticipantsChan  int64         `db:"participants_channel_id"`
	RaidlistChannelID int64         `db:"raidlist_channel_id"`
	RaidlistMessageID sql.NullInt64 `db:"raidlist_message_id"`
	DefaultMinPlayers int           `db:"default_min_players"`
	TemplatesEnabled  bool          `db:"templates_enabled"`
	TemplateRoleID    int64         `db:"template_role_id"`
}

func (r settingsRow) toDomain() *types.GuildSettings {
	gs := &types.GuildSettings{
		GuildID:            uint64(r.GuildID),
		Name:               r.Name,
		PlannerChannelID:   uint64(r.PlannerChannelID),
		ParticipantsChanID: uint64(r.ParticipantsChan),
		RaidlistChannelID:  uint64(r.RaidlistChannelID),
		DefaultMinPlayers:  r.DefaultMinPlayers,
		TemplatesEnabled:   r.TemplatesEnabled,
		TemplateRoleID:     uint64(r.TemplateRoleID),
	}
	if r.RaidlistMessageID.Valid {
		v := uint64(r.RaidlistMessageID.Int64)
		gs.RaidlistMessageID = &v
	}
	return gs
}

type dungeonRow struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	ShortCode string `db:"short_code"`
	Active    bool   `db:"active"`
	SortOrder int    `db:"sort_order"`
}

func (r dungeonRow) toDomain() *types.Dungeon {
	return &types.Dungeon{ID: r.ID, Name: r.Name, ShortCode: r.ShortCode, Active: r.Active, SortOrder: r.SortOrder}
}

type raidRow struct {
	ID               int64         `db:"id"`
	DisplayID        int64         `db:"display_id"`
	GuildID          int64         `db:"guild_id"`
	PlannerChannelID int64         `db:"planner_channel_id"`
	CreatorID        int64         `db:"creator_id"`
	Dungeon          string        `db:"dungeon"`
	Status           string        `db:"status"`
	CreatedAt        sql.NullTime  `db:"created_at"`
	PlannerMessageID sql.NullInt64 `db:"planner_message_id"`
	MinPlayers       int           `db:"min_players"`
	TempRoleID       sql.NullInt64 `db:"temp_role_id"`
	TempRoleCreated  bool          `db:"temp_role_created"`
}

func (r raidRow) toDomain() *types.Raid {
	raid := &types.Raid{
		ID:               r.ID,
		DisplayID:        r.DisplayID,
		GuildID:          uint64(r.GuildID),
		PlannerChannelID: uint64(r.PlannerChannelID),
		CreatorID:        uint64(r.CreatorID),
		Dungeon:          r.Dungeon,
		Status:           types.RaidStatus(r.Status),
		MinPlayers:       r.MinPlayers,
		TempRoleCreated:  r.TempRoleCreated,
	}
	if r.CreatedAt.Valid {
		raid.CreatedAt = r.CreatedAt.Time.UTC()
	}
	if r.PlannerMessageID.Valid {
		v := uint64(r.PlannerMessageID.Int64)
		raid.PlannerMessageID = &v
	}
	if r.TempRoleID.Valid {
		v := uint64(r.TempRoleID.Int64)
		raid.TempRoleID = &v
	}
	return raid
}

type optionRow struct {
	RaidID int64  `db:"raid_id"`
	Kind   string `db:"kind"`
	Label  string `db:"label"`
}

func (r optionRow) toDomain() *types.RaidOption {
	return &types.RaidOption{RaidID: r.RaidID, Kind: types.OptionKind(r.Kind), Label: r.Label}
}

type voteRow struct {
	RaidID int64  `db:"raid_id"`
	Kind   string `db:"kind"`
	Label  string `db:"option_label"`
	UserID int64  `db:"user_id"`
}

func (r voteRow) toDomain() *types.RaidVote {
	return &types.RaidVote{RaidID: r.RaidID, Kind: types.OptionKind(r.Kind), Label: r.Label, UserID: uint64(r.UserID)}
}

type slotRow struct {
	RaidID    int64  `db:"raid_id"`
	Day       string `db:"day"`
	Time      string `db:"time"`
	ChannelID int64  `db:"channel_id"`
	MessageID int64  `db:"message_id"`
}

func (r slotRow) toDomain() *types.RaidPostedSlot {
	return &types.RaidPostedSlot{RaidID: r.RaidID, Day: r.Day, Time: r.Time, ChannelID: uint64(r.ChannelID), MessageID: uint64(r.MessageID)}
}

type templateRow struct {
	GuildID    int64  `db:"guild_id"`
	Name       string `db:"name"`
	Dungeon    string `db:"dungeon"`
	Days       string `db:"days"`
	Times      string `db:"times"`
	MinPlayers int    `db:"min_players"`
}

func (r templateRow) toDomain() *types.RaidTemplate {
	return &types.RaidTemplate{
		GuildID: uint64(r.GuildID), Name: r.Name, Dungeon: r.Dungeon,
		Days: listSplit(r.Days), Times: listSplit(r.Times), MinPlayers: r.MinPlayers,
	}
}

type attendanceRow struct {
	GuildID   int64  `db:"guild_id"`
	DisplayID int64  `db:"display_id"`
	UserID    int64  `db:"user_id"`
	Status    string `db:"status"`
	MarkedBy  int64  `db:"marked_by"`
}

func (r attendanceRow) toDomain() *types.RaidAttendance {
	return &types.RaidAttendance{
		GuildID: uint64(r.GuildID), DisplayID: r.DisplayID, UserID: uint64(r.UserID),
		Status: types.AttendanceStatus(r.Status), MarkedBy: uint64(r.MarkedBy),
	}
}

type levelRow struct {
	GuildID  int64  `db:"guild_id"`
	UserID   int64  `db:"user_id"`
	XP       int64  `db:"xp"`
	Level    int    `db:"level"`
	Username string `db:"username"`
}

func (r levelRow) toDomain() *types.UserLevel {
	return &types.UserLevel{
		GuildID: uint64(r.GuildID), UserID: uint64(r.UserID),
		XP: uint64(r.XP), Level: r.Level, Username: r.Username,
	}
}

type cacheRow struct {
	CacheKey     string        `db:"cache_key"`
	Kind         string        `db:"kind"`
	GuildID      int64         `db:"guild_id"`
	RaidID       sql.NullInt64 `db:"raid_id"`
	MessageID    int64         `db:"message_id"`
	PayloadHash  string        `db:"payload_hash"`
	TimezoneName string        `db:"timezone_name"`
}

func (r cacheRow) toDomain() *types.DebugCacheRow {
	row := &types.DebugCacheRow{
		CacheKey:     r.CacheKey,
		Kind:         r.Kind,
		GuildID:      uint64(r.GuildID),
		MessageID:    uint64(r.MessageID),
		PayloadHash:  r.PayloadHash,
		TimezoneName: r.TimezoneName,
	}
	if r.RaidID.Valid {
		v := r.RaidID.Int64
		row.RaidID = &v
	}
	return row
}

// Package store implements the in-memory domain store: typed tables with
// secondary indexes, deterministic id allocation, and explicit bulk cascade
// deletes.
//
// The store itself is not synchronized. The orchestrator (internal/engine)
// owns a single state mutex and every caller, including the workers, goes
// through it. Relations between tables are ids only; cascades are bulk
// operations on the maps, never pointer traversals.
package store

import (
	"errors"
	"sort"
	"time"

	"github.com/dmw-rewrite/dmw/internal/types"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// VoteKey identifies one vote row; the vote index is keyed by it.
type VoteKey struct {
	RaidID int64
	Kind   types.OptionKind
	Label  string
	UserID uint64
}

type levelKey struct {
	GuildID uint64
	UserID  uint64
}

type attendanceKey struct {
	GuildID   uint64
	DisplayID int64
	UserID    uint64
}

type slotKey struct {
	Day  string
	Time string
}

// Store holds every domain table. Zero value is not usable; call New.
type Store struct {
	settings   map[uint64]*types.GuildSettings
	dungeons   map[int64]*types.Dungeon
	raids      map[int64]*types.Raid
	options    map[int64][]*types.RaidOption
	votes      map[int64][]*types.RaidVote
	slots      map[int64]map[slotKey]*types.RaidPostedSlot
	templates  map[uint64][]*types.RaidTemplate
	attendance map[attendanceKey]*types.RaidAttendance
	levels     map[levelKey]*types.UserLevel

	cache        map[string]*types.DebugCacheRow
	cacheByKind  map[string]map[string]struct{}
	cacheByGuild map[kindGuildKey]map[string]struct{}
	cacheByRaid  map[kindGuildRaidKey]map[string]struct{}

	voteIndex map[VoteKey]struct{}

	nextRaidID    int64
	nextDisplayID map[uint64]int64
}

// New returns an empty store with all indexes initialized.
func New() *Store {
	return &Store{
		settings:      make(map[uint64]*types.GuildSettings),
		dungeons:      make(map[int64]*types.Dungeon),
		raids:         make(map[int64]*types.Raid),
		options:       make(map[int64][]*types.RaidOption),
		votes:         make(map[int64][]*types.RaidVote),
		slots:         make(map[int64]map[slotKey]*types.RaidPostedSlot),
		templates:     make(map[uint64][]*types.RaidTemplate),
		attendance:    make(map[attendanceKey]*types.RaidAttendance),
		levels:        make(map[levelKey]*types.UserLevel),
		cache:         make(map[string]*types.DebugCacheRow),
		cacheByKind:   make(map[string]map[string]struct{}),
		cacheByGuild:  make(map[kindGuildKey]map[string]struct{}),
		cacheByRaid:   make(map[kindGuildRaidKey]map[string]struct{}),
		voteIndex:     make(map[VoteKey]struct{}),
		nextRaidID:    1,
		nextDisplayID: make(map[uint64]int64),
	}
}

// EnsureSettings upserts the tenant row, refreshing the display name when a
// non-empty one is given. Idempotent.
func (s *Store) EnsureSettings(guildID uint64, name string) *types.GuildSettings {
	gs, ok := s.settings[guildID]
	if !ok {
		gs = &types.GuildSettings{GuildID: guildID, DefaultMinPlayers: 1}
		s.settings[guildID] = gs
	}
	if name != "" {
		gs.Name = name
	}
	return gs
}

// Settings returns the tenant row or nil.
func (s *Store) Settings(guildID uint64) *types.GuildSettings {
	return s.settings[guildID]
}

// ConfigureChannels writes the three channel ids. Changing the raidlist
// channel resets the raidlist message id, so the next refresh reposts.
func (s *Store) ConfigureChannels(guildID uint64, planner, participants, raidlist uint64) *types.GuildSettings {
	gs := s.EnsureSettings(guildID, "")
	if gs.RaidlistChannelID != raidlist {
		gs.RaidlistMessageID = nil
	}
	gs.PlannerChannelID = planner
	gs.ParticipantsChanID = participants
	gs.RaidlistChannelID = raidlist
	return gs
}

// CreateRaid allocates the next surrogate id and the next per-guild display
// id. Display ids are dense and monotonic per guild; cascades never free
// them for reuse because the counter only moves forward.
func (s *Store) CreateRaid(guildID, plannerChannel, creator uint64, dungeon string, minPlayers int, now time.Time) *types.Raid {
	if minPlayers < 0 {
		minPlayers = 0
	}
	id := s.nextRaidID
	s.nextRaidID++
	display := s.nextDisplayID[guildID] + 1
	s.nextDisplayID[guildID] = display

	r := &types.Raid{
		ID:               id,
		DisplayID:        display,
		GuildID:          guildID,
		PlannerChannelID: plannerChannel,
		CreatorID:        creator,
		Dungeon:          dungeon,
		Status:           types.RaidOpen,
		CreatedAt:        now,
		MinPlayers:       minPlayers,
	}
	s.raids[id] = r
	return r
}

// Raid returns the raid row or nil.
func (s *Store) Raid(id int64) *types.Raid { return s.raids[id] }

// RaidByDisplay resolves a guild-facing display id.
func (s *Store) RaidByDisplay(guildID uint64, displayID int64) *types.Raid {
	for _, r := range s.raids {
		if r.GuildID == guildID && r.DisplayID == displayID {
			return r
		}
	}
	return nil
}

// OpenRaids returns the guild's open raids ordered by display id.
func (s *Store) OpenRaids(guildID uint64) []*types.Raid {
	var out []*types.Raid
	for _, r := range s.raids {
		if r.GuildID == guildID && r.Status == types.RaidOpen {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisplayID < out[j].DisplayID })
	return out
}

// AllOpenRaids returns every open raid across guilds, ordered by surrogate id.
func (s *Store) AllOpenRaids() []*types.Raid {
	var out []*types.Raid
	for _, r := range s.raids {
		if r.Status == types.RaidOpen {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddOption appends a votable label, deduplicating on (raid, kind, label).
func (s *Store) AddOption(raidID int64, kind types.OptionKind, label string) {
	for _, o := range s.options[raidID] {
		if o.Kind == kind && o.Label == label {
			return
		}
	}
	s.options[raidID] = append(s.options[raidID], &types.RaidOption{RaidID: raidID, Kind: kind, Label: label})
}

// Options returns the raid's labels of one kind in insertion order.
func (s *Store) Options(raidID int64, kind types.OptionKind) []string {
	var out []string
	for _, o := range s.options[raidID] {
		if o.Kind == kind {
			out = append(out, o.Label)
		}
	}
	return out
}

// HasOption reports whether the label is votable on the raid.
func (s *Store) HasOption(raidID int64, kind types.OptionKind, label string) bool {
	for _, o := range s.options[raidID] {
		if o.Kind == kind && o.Label == label {
			return true
		}
	}
	return false
}

// ToggleVote inserts the vote if absent and deletes it if present. Returns
// true when the vote exists after the call. O(1) membership via the index.
func (s *Store) ToggleVote(raidID int64, kind types.OptionKind, label string, userID uint64) bool {
	key := VoteKey{RaidID: raidID, Kind: kind, Label: label, UserID: userID}
	if _, ok := s.voteIndex[key]; ok {
		delete(s.voteIndex, key)
		rows := s.votes[raidID]
		for i, v := range rows {
			if v.Kind == kind && v.Label == label && v.UserID == userID {
				s.votes[raidID] = append(rows[:i], rows[i+1:]...)
				break
			}
		}
		return false
	}
	s.voteIndex[key] = struct{}{}
	s.votes[raidID] = append(s.votes[raidID], &types.RaidVote{RaidID: raidID, Kind: kind, Label: label, UserID: userID})
	return true
}

// HasVote is an index lookup.
func (s *Store) HasVote(raidID int64, kind types.OptionKind, label string, userID uint64) bool {
	_, ok := s.voteIndex[VoteKey{RaidID: raidID, Kind: kind, Label: label, UserID: userID}]
	return ok
}

// VoteUserSets materializes day->voters and time->voters for a raid.
func (s *Store) VoteUserSets(raidID int64) (days map[string]map[uint64]struct{}, times map[string]map[uint64]struct{}) {
	days = make(map[string]map[uint64]struct{})
	times = make(map[string]map[uint64]struct{})
	for _, v := range s.votes[raidID] {
		target := days
		if v.Kind == types.KindTime {
			target = times
		}
		set, ok := target[v.Label]
		if !ok {
			set = make(map[uint64]struct{})
			target[v.Label] = set
		}
		set[v.UserID] = struct{}{}
	}
	return days, times
}

// SetPostedSlot records or updates the participant-list message of a slot.
func (s *Store) SetPostedSlot(raidID int64, day, timeLabel string, channelID, messageID uint64) {
	m, ok := s.slots[raidID]
	if !ok {
		m = make(map[slotKey]*types.RaidPostedSlot)
		s.slots[raidID] = m
	}
	m[slotKey{Day: day, Time: timeLabel}] = &types.RaidPostedSlot{
		RaidID: raidID, Day: day, Time: timeLabel, ChannelID: channelID, MessageID: messageID,
	}
}

// PostedSlot returns the slot record or nil.
func (s *Store) PostedSlot(raidID int64, day, timeLabel string) *types.RaidPostedSlot {
	return s.slots[raidID][slotKey{Day: day, Time: timeLabel}]
}

// DeletePostedSlot removes one slot record.
func (s *Store) DeletePostedSlot(raidID int64, day, timeLabel string) {
	delete(s.slots[raidID], slotKey{Day: day, Time: timeLabel})
	if len(s.slots[raidID]) == 0 {
		delete(s.slots, raidID)
	}
}

// PostedSlots returns the raid's slot records sorted by (day, time).
func (s *Store) PostedSlots(raidID int64) []*types.RaidPostedSlot {
	var out []*types.RaidPostedSlot
	for _, ps := range s.slots[raidID] {
		out = append(out, ps)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].Time < out[j].Time
	})
	return out
}

// DeleteRaidCascade removes the raid and all dependent rows (options, votes,
// posted slots) in one pass, keeping the vote index consistent.
func (s *Store) DeleteRaidCascade(raidID int64) {
	for _, v := range s.votes[raidID] {
		delete(s.voteIndex, VoteKey{RaidID: raidID, Kind: v.Kind, Label: v.Label, UserID: v.UserID})
	}
	delete(s.votes, raidID)
	delete(s.options, raidID)
	delete(s.slots, raidID)
	delete(s.raids, raidID)
}

// CancelOpenRaidsForGuild bulk-cascades every open raid of the guild and
// returns how many were removed.
func (s *Store) CancelOpenRaidsForGuild(guildID uint64) int {
	var ids []int64
	for id, r := range s.raids {
		if r.GuildID == guildID && r.Status == types.RaidOpen {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		s.DeleteRaidCascade(id)
	}
	return len(ids)
}

// PurgeCounts reports what PurgeGuildData removed.
type PurgeCounts struct {
	Raids         int
	UserLevels    int
	GuildSettings int
}

// PurgeGuildData removes every row referencing the guild across all tables,
// including templates, attendance, and cache rows. Returns before-counts.
func (s *Store) PurgeGuildData(guildID uint64) PurgeCounts {
	var counts PurgeCounts
	var raidIDs []int64
	for id, r := range s.raids {
		if r.GuildID == guildID {
			raidIDs = append(raidIDs, id)
		}
	}
	counts.Raids = len(raidIDs)
	for _, id := range raidIDs {
		s.DeleteRaidCascade(id)
	}
	for k := range s.levels {
		if k.GuildID == guildID {
			delete(s.levels, k)
			counts.UserLevels++
		}
	}
	for k := range s.attendance {
		if k.GuildID == guildID {
			delete(s.attendance, k)
		}
	}
	delete(s.templates, guildID)
	if _, ok := s.settings[guildID]; ok {
		delete(s.settings, guildID)
		counts.GuildSettings = 1
	}
	for key, row := range s.cache {
		if row.GuildID == guildID {
			s.DeleteDebugCache(key)
		}
	}
	delete(s.nextDisplayID, guildID)
	return counts
}

// UpsertTemplate stores a named preset, replacing a same-named one.
func (s *Store) UpsertTemplate(t *types.RaidTemplate) {
	rows := s.templates[t.GuildID]
	for i, existing := range rows {
		if existing.Name == t.Name {
			rows[i] = t
			return
		}
	}
	s.templates[t.GuildID] = append(rows, t)
}

// DeleteTemplate removes a named preset; reports whether it existed.
func (s *Store) DeleteTemplate(guildID uint64, name string) bool {
	rows := s.templates[guildID]
	for i, t := range rows {
		if t.Name == name {
			s.templates[guildID] = append(rows[:i], rows[i+1:]...)
			return true
		}
	}
	return false
}

// Templates returns the guild's presets sorted by name.
func (s *Store) Templates(guildID uint64) []*types.RaidTemplate {
	out := append([]*types.RaidTemplate(nil), s.templates[guildID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RecordAttendance writes a snapshot row once per (guild, display, user);
// repeated calls for the same key are ignored.
func (s *Store) RecordAttendance(guildID uint64, displayID int64, userID uint64, status types.AttendanceStatus) {
	key := attendanceKey{GuildID: guildID, DisplayID: displayID, UserID: userID}
	if _, ok := s.attendance[key]; ok {
		return
	}
	s.attendance[key] = &types.RaidAttendance{
		GuildID: guildID, DisplayID: displayID, UserID: userID, Status: status,
	}
}

// MarkAttendance mutates the status of an existing snapshot row.
func (s *Store) MarkAttendance(guildID uint64, displayID int64, userID uint64, status types.AttendanceStatus, markedBy uint64) error {
	key := attendanceKey{GuildID: guildID, DisplayID: displayID, UserID: userID}
	row, ok := s.attendance[key]
	if !ok {
		return ErrNotFound
	}
	row.Status = status
	row.MarkedBy = markedBy
	return nil
}

// Attendance returns the snapshot rows of one finalized raid sorted by user.
func (s *Store) Attendance(guildID uint64, displayID int64) []*types.RaidAttendance {
	var out []*types.RaidAttendance
	for k, row := range s.attendance {
		if k.GuildID == guildID && k.DisplayID == displayID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// EnsureLevel returns the guild/user XP row, creating it at zero.
func (s *Store) EnsureLevel(guildID, userID uint64, username string) *types.UserLevel {
	key := levelKey{GuildID: guildID, UserID: userID}
	row, ok := s.levels[key]
	if !ok {
		row = &types.UserLevel{GuildID: guildID, UserID: userID}
		s.levels[key] = row
	}
	if username != "" {
		row.Username = username
	}
	return row
}

// Level returns the XP row or nil.
func (s *Store) Level(guildID, userID uint64) *types.UserLevel {
	return s.levels[levelKey{GuildID: guildID, UserID: userID}]
}

// Username resolves a display name, falling back to the given default.
func (s *Store) Username(guildID, userID uint64, fallback string) string {
	if row := s.levels[levelKey{GuildID: guildID, UserID: userID}]; row != nil && row.Username != "" {
		return row.Username
	}
	return fallback
}

// SeedDungeons inserts the catalog rows when the table is empty; reports
// whether seeding happened.
func (s *Store) SeedDungeons(rows []*types.Dungeon) bool {
	if len(s.dungeons) > 0 {
		return false
	}
	for _, d := range rows {
		s.dungeons[d.ID] = d
	}
	return true
}

// Dungeons returns active catalog rows ordered by sort order, then name.
func (s *Store) Dungeons() []*types.Dungeon {
	var out []*types.Dungeon
	for _, d := range s.dungeons {
		if d.Active {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out
}

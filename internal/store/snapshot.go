package store

import (
	"sort"

	"github.com/dmw-rewrite/dmw/internal/types"
)

// Snapshot accessors used by the persistence engine and the backup writer.
// Every listing is deterministically ordered so identical store contents
// always serialize to identical bytes.

// SettingsRows lists guild settings ordered by guild id.
func (s *Store) SettingsRows() []*types.GuildSettings {
	out := make([]*types.GuildSettings, 0, len(s.settings))
	for _, gs := range s.settings {
		out = append(out, gs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out
}

// DungeonRows lists the catalog ordered by id.
func (s *Store) DungeonRows() []*types.Dungeon {
	out := make([]*types.Dungeon, 0, len(s.dungeons))
	for _, d := range s.dungeons {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RaidRows lists raids ordered by surrogate id.
func (s *Store) RaidRows() []*types.Raid {
	out := make([]*types.Raid, 0, len(s.raids))
	for _, r := range s.raids {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OptionRows lists options ordered by (raid, kind, label).
func (s *Store) OptionRows() []*types.RaidOption {
	var out []*types.RaidOption
	for _, rows := range s.options {
		out = append(out, rows...)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RaidID != b.RaidID {
			return a.RaidID < b.RaidID
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Label < b.Label
	})
	return out
}

// VoteRows lists votes ordered by (raid, kind, label, user).
func (s *Store) VoteRows() []*types.RaidVote {
	var out []*types.RaidVote
	for _, rows := range s.votes {
		out = append(out, rows...)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RaidID != b.RaidID {
			return a.RaidID < b.RaidID
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Label != b.Label {
			return a.Label < b.Label
		}
		return a.UserID < b.UserID
	})
	return out
}

// SlotRows lists posted slots ordered by (raid, day, time).
func (s *Store) SlotRows() []*types.RaidPostedSlot {
	var out []*types.RaidPostedSlot
	for _, m := range s.slots {
		for _, ps := range m {
			out = append(out, ps)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RaidID != b.RaidID {
			return a.RaidID < b.RaidID
		}
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		return a.Time < b.Time
	})
	return out
}

// TemplateRows lists presets ordered by (guild, name).
func (s *Store) TemplateRows() []*types.RaidTemplate {
	var out []*types.RaidTemplate
	for _, rows := range s.templates {
		out = append(out, rows...)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.GuildID != b.GuildID {
			return a.GuildID < b.GuildID
		}
		return a.Name < b.Name
	})
	return out
}

// AttendanceRows lists snapshots ordered by (guild, display, user).
func (s *Store) AttendanceRows() []*types.RaidAttendance {
	out := make([]*types.RaidAttendance, 0, len(s.attendance))
	for _, row := range s.attendance {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.GuildID != b.GuildID {
			return a.GuildID < b.GuildID
		}
		if a.DisplayID != b.DisplayID {
			return a.DisplayID < b.DisplayID
		}
		return a.UserID < b.UserID
	})
	return out
}

// LevelRows lists XP rows ordered by (guild, user).
func (s *Store) LevelRows() []*types.UserLevel {
	out := make([]*types.UserLevel, 0, len(s.levels))
	for _, row := range s.levels {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.GuildID != b.GuildID {
			return a.GuildID < b.GuildID
		}
		return a.UserID < b.UserID
	})
	return out
}

// CacheRows lists the debug cache ordered by cache key.
func (s *Store) CacheRows() []*types.DebugCacheRow {
	return s.ListDebugCache("", 0, nil)
}

// Snapshot is the full store contents as flat row slices, used by load and
// by the persistence engine.
type Snapshot struct {
	Settings   []*types.GuildSettings
	Dungeons   []*types.Dungeon
	Raids      []*types.Raid
	Options    []*types.RaidOption
	Votes      []*types.RaidVote
	Slots      []*types.RaidPostedSlot
	Templates  []*types.RaidTemplate
	Attendance []*types.RaidAttendance
	Levels     []*types.UserLevel
	Cache      []*types.DebugCacheRow
}

// Export captures the whole store as a snapshot.
func (s *Store) Export() Snapshot {
	return Snapshot{
		Settings:   s.SettingsRows(),
		Dungeons:   s.DungeonRows(),
		Raids:      s.RaidRows(),
		Options:    s.OptionRows(),
		Votes:      s.VoteRows(),
		Slots:      s.SlotRows(),
		Templates:  s.TemplateRows(),
		Attendance: s.AttendanceRows(),
		Levels:     s.LevelRows(),
		Cache:      s.CacheRows(),
	}
}

// Load replaces the entire store contents with the snapshot, then rebuilds
// secondary indexes and recalculates id counters.
func (s *Store) Load(snap Snapshot) {
	*s = *New()
	for _, gs := range snap.Settings {
		s.settings[gs.GuildID] = gs
	}
	for _, d := range snap.Dungeons {
		s.dungeons[d.ID] = d
	}
	for _, r := range snap.Raids {
		s.raids[r.ID] = r
	}
	for _, o := range snap.Options {
		s.options[o.RaidID] = append(s.options[o.RaidID], o)
	}
	for _, v := range snap.Votes {
		s.votes[v.RaidID] = append(s.votes[v.RaidID], v)
	}
	for _, ps := range snap.Slots {
		s.SetPostedSlot(ps.RaidID, ps.Day, ps.Time, ps.ChannelID, ps.MessageID)
	}
	for _, t := range snap.Templates {
		s.templates[t.GuildID] = append(s.templates[t.GuildID], t)
	}
	for _, a := range snap.Attendance {
		s.attendance[attendanceKey{GuildID: a.GuildID, DisplayID: a.DisplayID, UserID: a.UserID}] = a
	}
	for _, l := range snap.Levels {
		s.levels[levelKey{GuildID: l.GuildID, UserID: l.UserID}] = l
	}
	for _, row := range snap.Cache {
		s.UpsertDebugCache(row)
	}
	s.RebuildIndexes()
	s.RecalcCounters()
}

// RebuildIndexes reconstructs the vote index from the votes table. The
// debug-cache indexes are maintained incrementally by UpsertDebugCache and
// are already consistent after Load.
func (s *Store) RebuildIndexes() {
	s.voteIndex = make(map[VoteKey]struct{})
	for raidID, rows := range s.votes {
		for _, v := range rows {
			s.voteIndex[VoteKey{RaidID: raidID, Kind: v.Kind, Label: v.Label, UserID: v.UserID}] = struct{}{}
		}
	}
}

// RecalcCounters derives the next surrogate id and the per-guild display-id
// watermarks from the loaded raids.
func (s *Store) RecalcCounters() {
	s.nextRaidID = 1
	s.nextDisplayID = make(map[uint64]int64)
	for _, r := range s.raids {
		if r.ID >= s.nextRaidID {
			s.nextRaidID = r.ID + 1
		}
		if r.DisplayID > s.nextDisplayID[r.GuildID] {
			s.nextDisplayID[r.GuildID] = r.DisplayID
		}
	}
}

// VoteIndexSize is exposed for consistency checks in tests.
func (s *Store) VoteIndexSize() int { return len(s.voteIndex) }

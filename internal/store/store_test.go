package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmw-rewrite/dmw/internal/types"
)

var testNow = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func newRaid(s *Store, guild uint64) *types.Raid {
	return s.CreateRaid(guild, 11, 100, "Mines of Moria", 1, testNow)
}

func TestDisplayIDDensePerGuild(t *testing.T) {
	s := New()
	r1 := newRaid(s, 1)
	r2 := newRaid(s, 1)
	other := newRaid(s, 2)

	assert.Equal(t, int64(1), r1.DisplayID)
	assert.Equal(t, int64(2), r2.DisplayID)
	assert.Equal(t, int64(1), other.DisplayID)
	assert.NotEqual(t, r1.ID, other.ID)
}

func TestDisplayIDNeverReusedAfterCascade(t *testing.T) {
	s := New()
	r1 := newRaid(s, 1)
	newRaid(s, 1)
	s.DeleteRaidCascade(r1.ID)
	s.CancelOpenRaidsForGuild(1)

	r3 := newRaid(s, 1)
	assert.Equal(t, int64(3), r3.DisplayID)
}

func TestToggleVoteTwiceIsIdentity(t *testing.T) {
	s := New()
	r := newRaid(s, 1)
	s.AddOption(r.ID, types.KindDay, "2026-02-13 (Fr)")

	require.True(t, s.ToggleVote(r.ID, types.KindDay, "2026-02-13 (Fr)", 200))
	require.True(t, s.HasVote(r.ID, types.KindDay, "2026-02-13 (Fr)", 200))
	require.False(t, s.ToggleVote(r.ID, types.KindDay, "2026-02-13 (Fr)", 200))
	assert.False(t, s.HasVote(r.ID, types.KindDay, "2026-02-13 (Fr)", 200))
	assert.Empty(t, s.VoteRows())
	assert.Zero(t, s.VoteIndexSize())
}

func TestVoteUserSets(t *testing.T) {
	s := New()
	r := newRaid(s, 1)
	s.ToggleVote(r.ID, types.KindDay, "Fr", 200)
	s.ToggleVote(r.ID, types.KindDay, "Fr", 201)
	s.ToggleVote(r.ID, types.KindTime, "20:00", 200)

	days, times := s.VoteUserSets(r.ID)
	assert.Len(t, days["Fr"], 2)
	assert.Len(t, times["20:00"], 1)
}

func TestCancelOpenRaidsForGuildScopedCascade(t *testing.T) {
	s := New()
	g1a := newRaid(s, 1)
	g1b := newRaid(s, 1)
	g2 := newRaid(s, 2)
	for _, r := range []*types.Raid{g1a, g1b, g2} {
		s.ToggleVote(r.ID, types.KindDay, "Fr", 200)
		s.ToggleVote(r.ID, types.KindTime, "20:00", 200)
		s.SetPostedSlot(r.ID, "Fr", "20:00", 22, 900+uint64(r.ID))
	}

	require.Equal(t, 2, s.CancelOpenRaidsForGuild(1))

	assert.Nil(t, s.Raid(g1a.ID))
	assert.Nil(t, s.Raid(g1b.ID))
	require.NotNil(t, s.Raid(g2.ID))
	assert.Len(t, s.VoteRows(), 2)
	assert.Equal(t, 2, s.VoteIndexSize())

	// Guild 2's votes still toggle correctly through the index.
	assert.False(t, s.ToggleVote(g2.ID, types.KindDay, "Fr", 200))
	assert.True(t, s.ToggleVote(g2.ID, types.KindDay, "Fr", 200))
}

func TestPurgeGuildDataLeavesNothingBehind(t *testing.T) {
	s := New()
	s.EnsureSettings(1, "Guild One")
	s.EnsureSettings(2, "Guild Two")
	r := newRaid(s, 1)
	s.ToggleVote(r.ID, types.KindDay, "Fr", 200)
	s.SetPostedSlot(r.ID, "Fr", "20:00", 22, 901)
	s.EnsureLevel(1, 200, "alice")
	s.EnsureLevel(2, 200, "alice")
	s.RecordAttendance(1, r.DisplayID, 200, types.AttendancePending)
	s.UpsertTemplate(&types.RaidTemplate{GuildID: 1, Name: "weekly", Dungeon: "MoM"})
	s.UpsertDebugCache(&types.DebugCacheRow{CacheKey: "bot:1", Kind: types.CacheBotMessage, GuildID: 1})
	s.UpsertDebugCache(&types.DebugCacheRow{CacheKey: "bot:2", Kind: types.CacheBotMessage, GuildID: 2})

	counts := s.PurgeGuildData(1)
	assert.Equal(t, PurgeCounts{Raids: 1, UserLevels: 1, GuildSettings: 1}, counts)

	assert.Nil(t, s.Settings(1))
	assert.Empty(t, s.OpenRaids(1))
	assert.Empty(t, s.Templates(1))
	assert.Empty(t, s.Attendance(1, r.DisplayID))
	assert.Nil(t, s.Level(1, 200))
	assert.Empty(t, s.ListDebugCache(types.CacheBotMessage, 1, nil))

	// Unrelated guilds stay intact.
	assert.NotNil(t, s.Settings(2))
	assert.NotNil(t, s.Level(2, 200))
	assert.Len(t, s.ListDebugCache(types.CacheBotMessage, 2, nil), 1)
}

func TestConfigureChannelsResetsRaidlistMessage(t *testing.T) {
	s := New()
	gs := s.ConfigureChannels(1, 11, 22, 33)
	msgID := uint64(500)
	gs.RaidlistMessageID = &msgID

	s.ConfigureChannels(1, 11, 22, 33)
	assert.NotNil(t, gs.RaidlistMessageID, "same channel keeps the message id")

	s.ConfigureChannels(1, 11, 22, 44)
	assert.Nil(t, gs.RaidlistMessageID, "channel change resets the message id")
}

func TestDebugCacheIndexes(t *testing.T) {
	s := New()
	raid := int64(7)
	s.UpsertDebugCache(&types.DebugCacheRow{CacheKey: "a", Kind: types.CacheRaidReminder, GuildID: 1, RaidID: &raid})
	s.UpsertDebugCache(&types.DebugCacheRow{CacheKey: "b", Kind: types.CacheRaidReminder, GuildID: 1})
	s.UpsertDebugCache(&types.DebugCacheRow{CacheKey: "c", Kind: types.CacheSlotTempRole, GuildID: 1, RaidID: &raid})

	keys := func(rows []*types.DebugCacheRow) []string {
		var out []string
		for _, r := range rows {
			out = append(out, r.CacheKey)
		}
		return out
	}

	assert.Equal(t, []string{"a", "b"}, keys(s.ListDebugCache(types.CacheRaidReminder, 0, nil)))
	assert.Equal(t, []string{"a", "b"}, keys(s.ListDebugCache(types.CacheRaidReminder, 1, nil)))
	assert.Equal(t, []string{"a"}, keys(s.ListDebugCache(types.CacheRaidReminder, 1, &raid)))
	assert.Equal(t, []string{"a", "b", "c"}, keys(s.ListDebugCache("", 0, nil)))

	// Re-keying an existing entry must not leave orphan index entries.
	s.UpsertDebugCache(&types.DebugCacheRow{CacheKey: "a", Kind: types.CacheRaidReminder, GuildID: 2})
	assert.Empty(t, s.ListDebugCache(types.CacheRaidReminder, 1, &raid))
	assert.Equal(t, []string{"a"}, keys(s.ListDebugCache(types.CacheRaidReminder, 2, nil)))

	require.True(t, s.DeleteDebugCache("a"))
	assert.False(t, s.DeleteDebugCache("a"))
	assert.Empty(t, s.ListDebugCache(types.CacheRaidReminder, 2, nil))
}

func TestLoadRebuildsIndexesAndCounters(t *testing.T) {
	s := New()
	s.EnsureSettings(1, "Guild One")
	r := newRaid(s, 1)
	newRaid(s, 1)
	s.AddOption(r.ID, types.KindDay, "Fr")
	s.ToggleVote(r.ID, types.KindDay, "Fr", 200)
	s.UpsertDebugCache(&types.DebugCacheRow{CacheKey: "k", Kind: types.CacheBotMessage, GuildID: 1})

	snap := s.Export()
	loaded := New()
	loaded.Load(snap)

	assert.True(t, loaded.HasVote(r.ID, types.KindDay, "Fr", 200))
	assert.Len(t, loaded.ListDebugCache(types.CacheBotMessage, 1, nil), 1)

	r3 := loaded.CreateRaid(1, 11, 100, "MoM", 1, testNow)
	assert.Equal(t, int64(3), r3.DisplayID, "display counter recalculated from load")
	assert.Greater(t, r3.ID, int64(2), "surrogate counter recalculated from load")
}

func TestTemplates(t *testing.T) {
	s := New()
	s.UpsertTemplate(&types.RaidTemplate{GuildID: 1, Name: "b", Dungeon: "X"})
	s.UpsertTemplate(&types.RaidTemplate{GuildID: 1, Name: "a", Dungeon: "Y"})
	s.UpsertTemplate(&types.RaidTemplate{GuildID: 1, Name: "a", Dungeon: "Z"})

	rows := s.Templates(1)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0].Name)
	assert.Equal(t, "Z", rows[0].Dungeon, "same-named template replaced")

	assert.True(t, s.DeleteTemplate(1, "b"))
	assert.False(t, s.DeleteTemplate(1, "b"))
}

func TestAttendanceWriteOnceThenMark(t *testing.T) {
	s := New()
	s.RecordAttendance(1, 4, 200, types.AttendancePending)
	s.RecordAttendance(1, 4, 200, types.AttendanceAbsent) // ignored

	rows := s.Attendance(1, 4)
	require.Len(t, rows, 1)
	assert.Equal(t, types.AttendancePending, rows[0].Status)

	require.NoError(t, s.MarkAttendance(1, 4, 200, types.AttendancePresent, 999))
	assert.Equal(t, types.AttendancePresent, rows[0].Status)
	assert.Equal(t, uint64(999), rows[0].MarkedBy)

	assert.ErrorIs(t, s.MarkAttendance(1, 4, 201, types.AttendancePresent, 999), ErrNotFound)
}

func TestSeedDungeonsOnlyWhenEmpty(t *testing.T) {
	s := New()
	rows := []*types.Dungeon{
		{ID: 2, Name: "B", Active: true, SortOrder: 1},
		{ID: 1, Name: "A", Active: true, SortOrder: 2},
		{ID: 3, Name: "C", Active: false, SortOrder: 0},
	}
	require.True(t, s.SeedDungeons(rows))
	require.False(t, s.SeedDungeons(rows))

	active := s.Dungeons()
	require.Len(t, active, 2)
	assert.Equal(t, "B", active[0].Name)
}

package render

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmw-rewrite/dmw/internal/store"
	"github.com/dmw-rewrite/dmw/internal/types"
)

func seedRaid(t *testing.T, minPlayers int) (*store.Store, *types.Raid) {
	t.Helper()
	s := store.New()
	s.EnsureSettings(1, "Die Mächtigen Wölfe")
	s.ConfigureChannels(1, 11, 22, 33)
	raid := s.CreateRaid(1, 11, 100, "Schattenfeste", minPlayers, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	s.AddOption(raid.ID, types.KindDay, "2026-02-13 (Fr)")
	s.AddOption(raid.ID, types.KindDay, "2026-02-14 (Sa)")
	s.AddOption(raid.ID, types.KindTime, "20:00")
	return s, raid
}

func TestSlotStartParsesBothDayForms(t *testing.T) {
	at, ok := SlotStart("2026-02-13 (Fr)", "20:00")
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 2, 13, 20, 0, 0, 0, Berlin()), at)

	at2, ok := SlotStart("13.02.2026", "20:00")
	require.True(t, ok)
	assert.True(t, at.Equal(at2))

	_, ok = SlotStart("someday", "20:00")
	assert.False(t, ok)
	_, ok = SlotStart("2026-02-13", "25:99")
	assert.False(t, ok)
}

func TestQualifiedSlotsThreshold(t *testing.T) {
	s, raid := seedRaid(t, 2)
	s.ToggleVote(raid.ID, types.KindDay, "2026-02-13 (Fr)", 200)
	s.ToggleVote(raid.ID, types.KindTime, "20:00", 200)

	qualified, union := QualifiedSlots(s, raid)
	assert.Empty(t, qualified, "one voter below min_players=2")
	assert.Empty(t, union)

	s.ToggleVote(raid.ID, types.KindDay, "2026-02-13 (Fr)", 201)
	s.ToggleVote(raid.ID, types.KindTime, "20:00", 201)

	qualified, union = QualifiedSlots(s, raid)
	require.Len(t, qualified, 1)
	users := qualified[Slot{Day: "2026-02-13 (Fr)", Time: "20:00"}]
	assert.Equal(t, []uint64{200, 201}, users)
	assert.Equal(t, []uint64{200, 201}, union)
}

func TestQualifiedSlotsZeroMinPlayersMeansOne(t *testing.T) {
	s, raid := seedRaid(t, 0)
	s.ToggleVote(raid.ID, types.KindDay, "2026-02-13 (Fr)", 200)
	s.ToggleVote(raid.ID, types.KindTime, "20:00", 200)

	qualified, _ := QualifiedSlots(s, raid)
	assert.Len(t, qualified, 1)
}

func TestPlannerEmbedOrderingAndCompleteVoters(t *testing.T) {
	s, raid := seedRaid(t, 1)
	s.EnsureLevel(1, 200, "alice")
	// Saturday gets two day votes, Friday one; counts sort descending.
	s.ToggleVote(raid.ID, types.KindDay, "2026-02-14 (Sa)", 200)
	s.ToggleVote(raid.ID, types.KindDay, "2026-02-14 (Sa)", 201)
	s.ToggleVote(raid.ID, types.KindDay, "2026-02-13 (Fr)", 200)
	s.ToggleVote(raid.ID, types.KindTime, "20:00", 200)

	embed, hash := PlannerEmbed(s, raid)
	require.NotEmpty(t, hash)
	assert.Equal(t, "Raidplanung #1: Schattenfeste", embed.Title)
	assert.Equal(t, "Die Mächtigen Wölfe", embed.Footer)

	require.Len(t, embed.Fields, 4)
	assert.Equal(t, "2026-02-14 (Sa) — 2\n2026-02-13 (Fr) — 1", embed.Fields[1].Value)
	assert.Equal(t, "alice", embed.Fields[3].Value, "only user 200 voted day and time")

	// Identical state renders an identical hash.
	_, again := PlannerEmbed(s, raid)
	assert.Equal(t, hash, again)
}

func TestParticipantEmbedRequiredLabel(t *testing.T) {
	s, raid := seedRaid(t, 0)
	embed, _ := ParticipantEmbed(s, raid, Slot{Day: "2026-02-13 (Fr)", Time: "20:00"}, []uint64{200})
	require.Len(t, embed.Fields, 4)
	assert.Equal(t, "1 / 1+", embed.Fields[3].Name)
}

func TestRaidlistEmbedNextSlotAndSummary(t *testing.T) {
	s, raid := seedRaid(t, 1)
	s.ToggleVote(raid.ID, types.KindDay, "2026-02-13 (Fr)", 200)
	s.ToggleVote(raid.ID, types.KindTime, "20:00", 200)
	msgID := uint64(777)
	raid.PlannerMessageID = &msgID

	now := time.Date(2026, 2, 13, 18, 0, 0, 0, Berlin())
	embed, hash, debug := RaidlistEmbed(s, 1, now)
	require.NotEmpty(t, hash)
	require.Len(t, debug, 1)

	require.Len(t, embed.Fields, 2)
	assert.Contains(t, embed.Fields[0].Value, "Nächster Termin: 2026-02-13 (Fr) 20:00")
	assert.Contains(t, embed.Fields[0].Value, "Qualifizierte Slots: 1")
	assert.Contains(t, embed.Fields[0].Value, "https://discord.com/channels/1/11/777")
	assert.Contains(t, embed.Fields[1].Value, "Raids: 1")
	assert.Contains(t, embed.Fields[1].Value, "Nächster Start: 2026-02-13 20:00")

	// No-op re-render yields the same hash.
	_, again, _ := RaidlistEmbed(s, 1, now)
	assert.Equal(t, hash, again)
}

func TestRaidlistEmbedCapsAtTwentyFiveRaids(t *testing.T) {
	s := store.New()
	s.EnsureSettings(1, "G")
	for i := 0; i < 30; i++ {
		s.CreateRaid(1, 11, 100, "D", 1, time.Now())
	}
	embed, _, debug := RaidlistEmbed(s, 1, time.Now())
	assert.Len(t, debug, 25)
	assert.Len(t, embed.Fields, 26, "25 raids plus summary")
	assert.Contains(t, embed.Fields[25].Value, "Raids: 30")
}

func TestMonthlyCalendarGrid(t *testing.T) {
	s, raid := seedRaid(t, 1)
	_ = raid
	embed, hash := MonthlyCalendar(s, 1, 2026, time.February, nil)
	require.NotEmpty(t, hash)
	assert.Equal(t, "Raidkalender 2026-02", embed.Title)
	require.Len(t, embed.Fields, 2, "two option days with entries")
	assert.Equal(t, "13.02.", embed.Fields[0].Name)
	assert.Contains(t, embed.Description, "`13*1`")
	assert.Contains(t, embed.Description, "`   .`", "february pads the 5x7 grid")
}

func TestFormatRelative(t *testing.T) {
	base := time.Date(2026, 2, 13, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, "in 2 Std", FormatRelative(base, base.Add(2*time.Hour)))
	assert.Equal(t, "in 2 Std 10 Min", FormatRelative(base, base.Add(2*time.Hour+10*time.Minute)))
	assert.Equal(t, "vor 5 Min", FormatRelative(base, base.Add(-5*time.Minute)))
	assert.Equal(t, "jetzt", FormatRelative(base, base.Add(10*time.Second)))
}

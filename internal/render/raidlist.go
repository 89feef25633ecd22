package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmw-rewrite/dmw/internal/platform"
	"github.com/dmw-rewrite/dmw/internal/store"
	"github.com/dmw-rewrite/dmw/internal/types"
)

// raidlistLimit caps how many open raids one overview embed lists; the
// platform allows at most 25 fields per embed.
const raidlistLimit = 25

const raidlistColor = 0x239B56

// nextSlot returns the earliest parseable qualified slot at or after now.
func nextSlot(slots []Slot, now time.Time) (Slot, time.Time, bool) {
	var best Slot
	var bestAt time.Time
	found := false
	for _, sl := range slots {
		at, ok := SlotStart(sl.Day, sl.Time)
		if !ok || at.Before(now) {
			continue
		}
		if !found || at.Before(bestAt) {
			best, bestAt, found = sl, at, true
		}
	}
	return best, bestAt, found
}

// RaidlistEmbed builds the tenant-wide overview of open raids. It returns
// the embed, a stable payload hash used to suppress no-op republishes, and
// per-raid debug lines for the debug mirror channel.
func RaidlistEmbed(s *store.Store, guildID uint64, now time.Time) (*platform.Embed, string, []string) {
	raids := s.OpenRaids(guildID)
	embed := &platform.Embed{
		Title: "Raidübersicht",
		Color: raidlistColor,
	}
	if gs := s.Settings(guildID); gs != nil && gs.Name != "" {
		embed.Footer = gs.Name
	}

	var debug []string
	totalSlots := 0
	var globalNext time.Time
	globalNextSet := false

	shown := raids
	if len(shown) > raidlistLimit {
		shown = shown[:raidlistLimit]
	}
	for _, raid := range shown {
		qualified, _ := QualifiedSlots(s, raid)
		slots := SlotList(qualified)
		complete := CompleteVoters(s, raid.ID)
		totalSlots += len(slots)

		var lines []string
		lines = append(lines,
			fmt.Sprintf("Mindestteilnehmer: %s", requiredLabel(raid.MinPlayers)),
			fmt.Sprintf("Qualifizierte Slots: %d", len(slots)),
			fmt.Sprintf("Vollständig abgestimmt: %d", len(complete)),
			"Zeitzone: Europe/Berlin",
		)
		if sl, at, ok := nextSlot(slots, now); ok {
			lines = append(lines, fmt.Sprintf("Nächster Termin: %s %s (%s)", sl.Day, sl.Time, FormatRelative(now, at)))
			if !globalNextSet || at.Before(globalNext) {
				globalNext, globalNextSet = at, true
			}
		} else {
			lines = append(lines, "Nächster Termin: –")
		}
		if raid.PlannerMessageID != nil {
			lines = append(lines, fmt.Sprintf("[Zur Planung](https://discord.com/channels/%d/%d/%d)",
				raid.GuildID, raid.PlannerChannelID, *raid.PlannerMessageID))
		}

		embed.Fields = append(embed.Fields, platform.EmbedField{
			Name:  fmt.Sprintf("Raid #%d — %s", raid.DisplayID, raid.Dungeon),
			Value: strings.Join(lines, "\n"),
		})
		debug = append(debug, fmt.Sprintf("raid=%d display=%d slots=%d complete=%d",
			raid.ID, raid.DisplayID, len(slots), len(complete)))
	}

	summary := []string{
		fmt.Sprintf("Raids: %d", len(raids)),
		fmt.Sprintf("Qualifizierte Slots: %d", totalSlots),
	}
	if globalNextSet {
		summary = append(summary, fmt.Sprintf("Nächster Start: %s (%s)",
			globalNext.In(Berlin()).Format("2006-01-02 15:04"), FormatRelative(now, globalNext)))
	} else {
		summary = append(summary, "Nächster Start: –")
	}
	embed.Fields = append(embed.Fields, platform.EmbedField{
		Name:  "Übersicht",
		Value: strings.Join(summary, "\n"),
	})

	// The hash deliberately excludes the relative-time strings' wall-clock
	// drift by rounding now to the minute inside FormatRelative; identical
	// store contents within the same minute produce identical payloads.
	return embed, PayloadHash(embed), debug
}

// openRaidDaysInMonth collects calendar entries from open raids' day
// options. This is the only entry source today; more collectors can be
// registered on the calendar later.
func openRaidDaysInMonth(s *store.Store, guildID uint64, year int, month time.Month) map[int][]string {
	entries := make(map[int][]string)
	for _, raid := range s.OpenRaids(guildID) {
		for _, day := range s.Options(raid.ID, types.KindDay) {
			at, ok := ParseDay(day)
			if !ok || at.Year() != year || at.Month() != month {
				continue
			}
			entries[at.Day()] = append(entries[at.Day()], fmt.Sprintf("Raid #%d — %s", raid.DisplayID, raid.Dungeon))
		}
	}
	return entries
}

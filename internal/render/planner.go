package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dmw-rewrite/dmw/internal/platform"
	"github.com/dmw-rewrite/dmw/internal/store"
	"github.com/dmw-rewrite/dmw/internal/types"
)

const plannerColor = 0x2E86C1

// userName resolves a display name with a mention fallback for users the
// store has never seen.
func userName(s *store.Store, guildID, userID uint64) string {
	return s.Username(guildID, userID, fmt.Sprintf("<@%d>", userID))
}

// voteCountLines renders "label — n" lines sorted by (-count, lower(label)).
func voteCountLines(labels []string, votes map[string]map[uint64]struct{}) string {
	type entry struct {
		label string
		count int
	}
	entries := make([]entry, 0, len(labels))
	for _, l := range labels {
		entries = append(entries, entry{label: l, count: len(votes[l])})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return strings.ToLower(entries[i].label) < strings.ToLower(entries[j].label)
	})
	if len(entries) == 0 {
		return "–"
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s — %d", e.label, e.count)
	}
	return b.String()
}

// PlannerEmbed builds the raid's planner message body and its payload hash.
func PlannerEmbed(s *store.Store, raid *types.Raid) (*platform.Embed, string) {
	dayVotes, timeVotes := s.VoteUserSets(raid.ID)

	complete := CompleteVoters(s, raid.ID)
	names := make([]string, 0, len(complete))
	for _, u := range complete {
		names = append(names, userName(s, raid.GuildID, u))
	}
	completeValue := "–"
	if len(names) > 0 {
		completeValue = strings.Join(names, "\n")
	}

	embed := &platform.Embed{
		Title: fmt.Sprintf("Raidplanung #%d: %s", raid.DisplayID, raid.Dungeon),
		Color: plannerColor,
		Fields: []platform.EmbedField{
			{Name: "Mindestteilnehmer", Value: requiredLabel(raid.MinPlayers), Inline: true},
			{Name: "Tage", Value: voteCountLines(s.Options(raid.ID, types.KindDay), dayVotes)},
			{Name: "Uhrzeiten", Value: voteCountLines(s.Options(raid.ID, types.KindTime), timeVotes)},
			{Name: "Vollständig abgestimmt", Value: completeValue},
		},
	}
	if gs := s.Settings(raid.GuildID); gs != nil && gs.Name != "" {
		embed.Footer = gs.Name
	}
	return embed, PayloadHash(embed)
}

// requiredLabel renders the participant requirement; "1+" when a raid has
// no explicit minimum.
func requiredLabel(minPlayers int) string {
	if minPlayers > 0 {
		return fmt.Sprintf("%d", minPlayers)
	}
	return "1+"
}

// ParticipantEmbed builds the per-slot participant list and its hash.
func ParticipantEmbed(s *store.Store, raid *types.Raid, slot Slot, users []uint64) (*platform.Embed, string) {
	serverName := ""
	if gs := s.Settings(raid.GuildID); gs != nil {
		serverName = gs.Name
	}
	names := make([]string, 0, len(users))
	for _, u := range users {
		names = append(names, userName(s, raid.GuildID, u))
	}
	sort.Strings(names)
	value := "–"
	if len(names) > 0 {
		value = strings.Join(names, "\n")
	}

	embed := &platform.Embed{
		Title: fmt.Sprintf("Teilnehmer — Raid #%d", raid.DisplayID),
		Color: plannerColor,
		Fields: []platform.EmbedField{
			{Name: "Server", Value: serverName, Inline: true},
			{Name: "Tag", Value: slot.Day, Inline: true},
			{Name: "Uhrzeit", Value: slot.Time, Inline: true},
			{Name: fmt.Sprintf("%d / %s", len(users), requiredLabel(raid.MinPlayers)), Value: value},
		},
	}
	return embed, PayloadHash(embed)
}

// ClosedEmbed is the terminal planner body shown when a raid leaves the open
// state. The view is cleared by the caller.
func ClosedEmbed(reason string) *platform.Embed {
	return &platform.Embed{
		Title: fmt.Sprintf("Raid geschlossen: %s", reason),
		Color: 0x909497,
	}
}

package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/dmw-rewrite/dmw/internal/platform"
	"github.com/dmw-rewrite/dmw/internal/store"
)

// CalendarSource collects entries for one guild and month, keyed by day of
// month. Today the only source is open raids' day options; the slice keeps
// the door open for more collectors.
type CalendarSource func(s *store.Store, guildID uint64, year int, month time.Month) map[int][]string

// DefaultCalendarSources is the production collector set.
var DefaultCalendarSources = []CalendarSource{openRaidDaysInMonth}

// MonthlyCalendar renders a 5x7 grid starting at the month's first day, one
// cell per day annotated with its entry count, and detail lines below for
// days that have entries.
func MonthlyCalendar(s *store.Store, guildID uint64, year int, month time.Month, sources []CalendarSource) (*platform.Embed, string) {
	if sources == nil {
		sources = DefaultCalendarSources
	}
	entries := make(map[int][]string)
	for _, src := range sources {
		for day, lines := range src(s, guildID, year, month) {
			entries[day] = append(entries[day], lines...)
		}
	}

	daysInMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, Berlin()).Day()

	var grid strings.Builder
	for row := 0; row < 5; row++ {
		if row > 0 {
			grid.WriteByte('\n')
		}
		for col := 0; col < 7; col++ {
			day := row*7 + col + 1
			if col > 0 {
				grid.WriteByte(' ')
			}
			switch {
			case day > daysInMonth:
				grid.WriteString("`   .`")
			case len(entries[day]) > 0:
				grid.WriteString(fmt.Sprintf("`%2d*%d`", day, len(entries[day])))
			default:
				grid.WriteString(fmt.Sprintf("`%2d  `", day))
			}
		}
	}

	embed := &platform.Embed{
		Title:       fmt.Sprintf("Raidkalender %04d-%02d", year, int(month)),
		Description: grid.String(),
		Color:       raidlistColor,
	}

	var days []int
	for day := 1; day <= daysInMonth; day++ {
		if len(entries[day]) > 0 {
			days = append(days, day)
		}
	}
	for _, day := range days {
		embed.Fields = append(embed.Fields, platform.EmbedField{
			Name:  fmt.Sprintf("%02d.%02d.", day, int(month)),
			Value: strings.Join(entries[day], "\n"),
		})
	}

	return embed, PayloadHash(embed)
}

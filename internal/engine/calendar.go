package engine

import (
	"context"
	"fmt"
	"strconv"

	"github.com/dmw-rewrite/dmw/internal/feature"
	"github.com/dmw-rewrite/dmw/internal/render"
	"github.com/dmw-rewrite/dmw/internal/types"
)

func calendarCfgKey(guildID uint64) string { return fmt.Sprintf("calcfg:%d", guildID) }
func calendarMsgKey(guildID uint64) string { return fmt.Sprintf("calmsg:%d", guildID) }

// ConfigureCalendar sets the channel the monthly calendar is published to.
// The channel id travels in the payload field of the config cache row.
func (e *Engine) ConfigureCalendar(ctx context.Context, guildID, channelID uint64) error {
	e.handled.Add(ctx, 1)
	if channelID == 0 {
		return Validationf("Kein Kalenderkanal angegeben")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.store.UpsertDebugCache(&types.DebugCacheRow{
		CacheKey:    calendarCfgKey(guildID),
		Kind:        types.CacheCalendarCfg,
		GuildID:     guildID,
		PayloadHash: strconv.FormatUint(channelID, 10),
	})
	return e.flushLocked(ctx, tables("debug_mirror_cache"))
}

// RefreshCalendar republishes the guild's monthly calendar for the month of
// the current Berlin time. Requires the calendar feature flag and a
// configured calendar channel.
func (e *Engine) RefreshCalendar(ctx context.Context, guildID uint64) error {
	e.handled.Add(ctx, 1)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.featuresLocked(guildID).Has(feature.FlagCalendar) {
		return Preconditionf("Der Raidkalender ist für diesen Server nicht aktiviert")
	}
	cfg := e.store.DebugCache(calendarCfgKey(guildID))
	if cfg == nil {
		return Preconditionf("Kalenderkanal ist nicht konfiguriert")
	}
	channelID, err := strconv.ParseUint(cfg.PayloadHash, 10, 64)
	if err != nil || channelID == 0 {
		return Preconditionf("Kalenderkanal ist nicht konfiguriert")
	}

	now := e.now().In(render.Berlin())
	embed, hash := render.MonthlyCalendar(e.store, guildID, now.Year(), now.Month(), nil)
	e.syncArtefact(ctx, artefact{
		key:     calendarMsgKey(guildID),
		kind:    types.CacheCalendarMsg,
		guildID: guildID,
		channel: channelID,
		embed:   embed,
		hash:    hash,
	})
	return e.flushLocked(ctx, tables("debug_mirror_cache"))
}

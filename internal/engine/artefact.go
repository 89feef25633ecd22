package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmw-rewrite/dmw/internal/platform"
	"github.com/dmw-rewrite/dmw/internal/render"
	"github.com/dmw-rewrite/dmw/internal/types"
)

// artefact describes one cached chat message the engine keeps in sync.
// For slot_temp_role rows the message id field of the cache row carries the
// role id instead; those rows never go through syncArtefact.
type artefact struct {
	key     string
	kind    string
	guildID uint64
	raidID  *int64
	channel uint64
	content string
	embed   *platform.Embed
	hash    string
}

// syncArtefact applies the cache rule: when the stored payload hash matches
// and the message still exists, nothing is sent. Otherwise the cached message
// is edited in place; when the edit fails, a fresh message is posted and the
// stale one deleted. Returns the live message id (0 when the platform
// refused everything) and whether anything was published.
func (e *Engine) syncArtefact(ctx context.Context, a artefact) (uint64, bool) {
	row := e.store.DebugCache(a.key)
	if row != nil && row.PayloadHash == a.hash && e.safe.MessageExists(ctx, a.channel, row.MessageID) {
		return row.MessageID, false
	}

	if row != nil && row.MessageID != 0 {
		ref := platform.Message{ChannelID: a.channel, MessageID: row.MessageID}
		if e.safe.Edit(ctx, ref, a.content, a.embed) {
			e.cacheArtefact(a, row.MessageID)
			return row.MessageID, true
		}
	}

	msg := e.safe.Send(ctx, a.channel, a.content, a.embed)
	if msg == nil {
		return 0, false
	}
	if row != nil && row.MessageID != 0 && row.MessageID != msg.MessageID {
		e.safe.Delete(ctx, platform.Message{ChannelID: a.channel, MessageID: row.MessageID})
	}
	e.cacheArtefact(a, msg.MessageID)
	return msg.MessageID, true
}

func (e *Engine) cacheArtefact(a artefact, messageID uint64) {
	e.store.UpsertDebugCache(&types.DebugCacheRow{
		CacheKey:    a.key,
		Kind:        a.kind,
		GuildID:     a.guildID,
		RaidID:      a.raidID,
		MessageID:   messageID,
		PayloadHash: a.hash,
	})
}

func raidlistCacheKey(guildID uint64) string { return fmt.Sprintf("raidlist:%d", guildID) }
func plannerCacheKey(raidID int64) string    { return fmt.Sprintf("planner:%d", raidID) }
func slotCacheKey(raidID int64, sl render.Slot) string {
	return fmt.Sprintf("slot:%d:%s|%s", raidID, sl.Day, sl.Time)
}
func tempRoleCacheKey(raidID int64) string { return fmt.Sprintf("temprole:%d", raidID) }

// MarkRaidlistDirty schedules a debounced raidlist refresh for the guild.
func (e *Engine) MarkRaidlistDirty(guildID uint64) {
	e.updater.MarkDirty(guildID)
}

// RefreshRaidlist rebuilds the guild's open-raid overview immediately. This
// is the debounced updater's callback and the forced-refresh entry point.
func (e *Engine) RefreshRaidlist(ctx context.Context, guildID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.refreshRaidlistLocked(ctx, guildID)
}

// refreshRaidlistLocked is the in-lock body of RefreshRaidlist; handlers that
// need a forced refresh call it directly because the updater's ForceUpdate
// would re-enter the state mutex.
func (e *Engine) refreshRaidlistLocked(ctx context.Context, guildID uint64) {
	gs := e.store.Settings(guildID)
	if gs == nil || gs.RaidlistChannelID == 0 {
		return
	}

	embed, hash, debug := render.RaidlistEmbed(e.store, guildID, e.now())
	msgID, changed := e.syncArtefact(ctx, artefact{
		key:     raidlistCacheKey(guildID),
		kind:    types.CacheBotMessage,
		guildID: guildID,
		channel: gs.RaidlistChannelID,
		embed:   embed,
		hash:    hash,
	})
	if msgID != 0 && (gs.RaidlistMessageID == nil || *gs.RaidlistMessageID != msgID) {
		gs.RaidlistMessageID = &msgID
		changed = true
	}
	if !changed {
		return
	}

	if err := e.flushLocked(ctx, tables("guild_settings", "debug_mirror_cache")); err != nil {
		e.log.Warn("raidlist refresh not persisted", "guild", guildID)
	}
	if e.cfg != nil && e.cfg.RaidlistDebugChannelID != 0 && len(debug) > 0 {
		e.safe.Send(ctx, e.cfg.RaidlistDebugChannelID,
			fmt.Sprintf("raidlist guild=%d\n%s", guildID, strings.Join(debug, "\n")), nil)
	}
}

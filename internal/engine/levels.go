package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dmw-rewrite/dmw/internal/feature"
	"github.com/dmw-rewrite/dmw/internal/level"
	"github.com/dmw-rewrite/dmw/internal/types"
)

// messageXP is the flat award per counted message.
const messageXP = 20

func featureCacheKey(guildID uint64) string { return fmt.Sprintf("features:%d", guildID) }

// featuresLocked decodes the guild's packed feature settings from its cache
// row. The payload hash field carries the packed value in decimal; a missing
// or unparseable row yields the defaults.
func (e *Engine) featuresLocked(guildID uint64) feature.Settings {
	row := e.store.DebugCache(featureCacheKey(guildID))
	if row == nil {
		return feature.Default()
	}
	v, err := strconv.ParseUint(row.PayloadHash, 10, 64)
	if err != nil {
		e.log.Warn("bad feature settings payload", "guild", guildID, "payload", row.PayloadHash)
		return feature.Default()
	}
	return feature.Decode(v)
}

// Features returns the guild's decoded feature settings.
func (e *Engine) Features(guildID uint64) feature.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.featuresLocked(guildID)
}

// UpdateFeatures applies fn to the guild's feature settings and persists the
// packed result.
func (e *Engine) UpdateFeatures(ctx context.Context, guildID uint64, fn func(feature.Settings) feature.Settings) (feature.Settings, error) {
	e.handled.Add(ctx, 1)
	e.mu.Lock()
	defer e.mu.Unlock()

	s := fn(e.featuresLocked(guildID))
	e.store.UpsertDebugCache(&types.DebugCacheRow{
		CacheKey:    featureCacheKey(guildID),
		Kind:        types.CacheFeatureSettings,
		GuildID:     guildID,
		PayloadHash: strconv.FormatUint(feature.Encode(s), 10),
	})
	return s, e.flushLocked(ctx, tables("debug_mirror_cache"))
}

// AwardMessageXP credits message XP to a user, rate limited by the guild's
// message-XP interval. Returns the user's level after the award and whether
// a level-up announcement is due (its own cooldown applies). XP rows are
// batched: the level persist worker flushes them, not this path.
func (e *Engine) AwardMessageXP(ctx context.Context, guildID, userID uint64, username string) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fs := e.featuresLocked(guildID)
	if !fs.Has(feature.FlagLevels) {
		return 0, false
	}

	now := e.now()
	key := guildUser{GuildID: guildID, UserID: userID}
	interval := time.Duration(fs.MessageXPEvery) * time.Second
	if interval <= 0 && e.cfg != nil {
		interval = e.cfg.MessageXPInterval
	}
	if last, ok := e.lastXP[key]; ok && now.Sub(last) < interval {
		row := e.store.Level(guildID, userID)
		if row == nil {
			return 0, false
		}
		return row.Level, false
	}
	e.lastXP[key] = now

	row := e.store.EnsureLevel(guildID, userID, username)
	row.XP += messageXP
	newLevel := level.LevelFromXP(row.XP)
	leveled := newLevel > row.Level
	row.Level = newLevel
	e.levelDirty = true

	if !leveled {
		return newLevel, false
	}
	cooldown := time.Duration(fs.LevelupCooldown) * time.Second
	if cooldown <= 0 && e.cfg != nil {
		cooldown = e.cfg.LevelupMessageCooldown
	}
	if last, ok := e.lastLevelup[key]; ok && now.Sub(last) < cooldown {
		return newLevel, false
	}
	e.lastLevelup[key] = now
	return newLevel, true
}

// UsernameSeen refreshes the stored display name of a user the engine
// already tracks. Unknown users are ignored so lurkers never get XP rows.
func (e *Engine) UsernameSeen(guildID, userID uint64, username string) {
	if username == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	row := e.store.Level(guildID, userID)
	if row == nil || row.Username == username {
		return
	}
	row.Username = username
	e.levelDirty = true
}

// Level returns a copy of the user's XP row, or nil.
func (e *Engine) Level(guildID, userID uint64) *types.UserLevel {
	e.mu.Lock()
	defer e.mu.Unlock()
	row := e.store.Level(guildID, userID)
	if row == nil {
		return nil
	}
	c := *row
	return &c
}

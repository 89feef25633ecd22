package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmw-rewrite/dmw/internal/feature"
	"github.com/dmw-rewrite/dmw/internal/platform"
	"github.com/dmw-rewrite/dmw/internal/render"
	"github.com/dmw-rewrite/dmw/internal/store"
	"github.com/dmw-rewrite/dmw/internal/types"
)

// The time-driven workers (internal/worker) drive the passes in this file.
// Every pass serializes on the state mutex like a command handler does.

func reminderCacheKey(raidID int64, sl render.Slot) string {
	return fmt.Sprintf("raidrem:%d:%s|%s", raidID, sl.Day, sl.Time)
}

func startCacheKey(raidID int64, sl render.Slot) string {
	return fmt.Sprintf("raidstart:%d:%s|%s", raidID, sl.Day, sl.Time)
}

func autoReminderCacheKey(raidID int64, sl render.Slot) string {
	return fmt.Sprintf("autorem:%d:%s|%s", raidID, sl.Day, sl.Time)
}

// ReminderPass sends the upcoming-slot reminder for every qualified slot
// starting within the window, and the start announcement for slots whose
// start time just passed. Each message is sent at most once per slot; the
// cache row is the idempotency marker, so restarts never re-announce.
func (e *Engine) ReminderPass(ctx context.Context, window time.Duration) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	sent := 0
	for _, raid := range e.store.AllOpenRaids() {
		gs := e.store.Settings(raid.GuildID)
		if gs == nil {
			continue
		}
		channel := gs.ParticipantsChanID
		if channel == 0 {
			channel = raid.PlannerChannelID
		}

		qualified, _ := render.QualifiedSlots(e.store, raid)
		for _, sl := range render.SlotList(qualified) {
			at, ok := render.SlotStart(sl.Day, sl.Time)
			if !ok {
				continue
			}
			switch {
			case at.After(now) && at.Sub(now) <= window:
				if e.announceOnce(ctx, raid, channel, reminderCacheKey(raid.ID, sl), types.CacheRaidReminder,
					fmt.Sprintf("Erinnerung: Raid #%d (%s) startet %s — %s %s",
						raid.DisplayID, raid.Dungeon, render.FormatRelative(now, at), sl.Day, sl.Time)) {
					sent++
				}
			case !at.After(now) && now.Sub(at) <= window:
				if e.announceOnce(ctx, raid, channel, startCacheKey(raid.ID, sl), types.CacheRaidStart,
					fmt.Sprintf("Raid #%d (%s) startet jetzt: %s %s",
						raid.DisplayID, raid.Dungeon, sl.Day, sl.Time)) {
					sent++
				}
			}
		}
	}

	if sent == 0 {
		return 0, nil
	}
	return sent, e.flushLocked(ctx, tables("debug_mirror_cache"))
}

// announceOnce sends content to the channel unless the cache key already
// exists. The temp role is mentioned when the raid has one.
func (e *Engine) announceOnce(ctx context.Context, raid *types.Raid, channel uint64, key, kind, content string) bool {
	if e.store.DebugCache(key) != nil {
		return false
	}
	if raid.TempRoleID != nil {
		content = fmt.Sprintf("<@&%d> %s", *raid.TempRoleID, content)
	}
	msg := e.safe.Send(ctx, channel, content, nil)
	if msg == nil {
		return false
	}
	raidID := raid.ID
	e.store.UpsertDebugCache(&types.DebugCacheRow{
		CacheKey:  key,
		Kind:      kind,
		GuildID:   raid.GuildID,
		RaidID:    &raidID,
		MessageID: msg.MessageID,
	})
	return true
}

// AutoReminderPass nudges under-filled slots shortly before they start: for
// every proposed (day, time) pair starting within the lead window whose
// day/time voter overlap is still below the raid's threshold, one nudge goes
// to the participants channel with a link to the planner message. The cache
// row is the per-slot idempotency marker. Guilds with the auto-reminder
// feature disabled are skipped.
func (e *Engine) AutoReminderPass(ctx context.Context, lead time.Duration) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	sent := 0
	for _, raid := range e.store.AllOpenRaids() {
		if !e.featuresLocked(raid.GuildID).Has(feature.FlagAutoReminder) {
			continue
		}
		gs := e.store.Settings(raid.GuildID)
		if gs == nil || gs.ParticipantsChanID == 0 {
			continue
		}
		days, times := e.store.VoteUserSets(raid.ID)
		threshold := render.Threshold(raid.MinPlayers)

		for _, day := range e.store.Options(raid.ID, types.KindDay) {
			for _, tl := range e.store.Options(raid.ID, types.KindTime) {
				start, ok := render.SlotStart(day, tl)
				if !ok || !start.After(now) || start.Sub(now) > lead {
					continue
				}
				filled := 0
				for u := range days[day] {
					if _, both := times[tl][u]; both {
						filled++
					}
				}
				if filled >= threshold {
					continue
				}
				sl := render.Slot{Day: day, Time: tl}
				key := autoReminderCacheKey(raid.ID, sl)
				if e.store.DebugCache(key) != nil {
					continue
				}
				content := fmt.Sprintf(
					"Raid #%d (%s) am %s %s ist erst mit %d/%d Spielern besetzt — bitte abstimmen.",
					raid.DisplayID, raid.Dungeon, day, tl, filled, threshold)
				if raid.PlannerMessageID != nil {
					content += fmt.Sprintf(" [Zur Planung](https://discord.com/channels/%d/%d/%d)",
						raid.GuildID, raid.PlannerChannelID, *raid.PlannerMessageID)
				}
				msg := e.safe.Send(ctx, gs.ParticipantsChanID, content, nil)
				if msg == nil {
					continue
				}
				raidID := raid.ID
				e.store.UpsertDebugCache(&types.DebugCacheRow{
					CacheKey:  key,
					Kind:      types.CacheAutoReminder,
					GuildID:   raid.GuildID,
					RaidID:    &raidID,
					MessageID: msg.MessageID,
				})
				sent++
			}
		}
	}

	if sent == 0 {
		return 0, nil
	}
	return sent, e.flushLocked(ctx, tables("debug_mirror_cache"))
}

// CleanupStaleRaids closes every open raid older than maxAge.
func (e *Engine) CleanupStaleRaids(ctx context.Context, maxAge time.Duration) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	closed := 0
	touched := make(map[uint64]struct{})
	for _, raid := range e.store.AllOpenRaids() {
		if now.Sub(raid.CreatedAt) <= maxAge {
			continue
		}
		e.closeRaidLocked(ctx, raid, "veraltet")
		touched[raid.GuildID] = struct{}{}
		closed++
	}
	if closed == 0 {
		return 0, nil
	}
	for guildID := range touched {
		e.refreshRaidlistLocked(ctx, guildID)
	}
	e.log.Info("stale raids closed", "count", closed)
	return closed, e.flushLocked(ctx, tables(
		"raids", "raid_options", "raid_votes", "raid_posted_slots",
		"guild_settings", "debug_mirror_cache"))
}

// IntegritySweep removes cache rows whose raid no longer exists and deletes
// orphaned temp roles left behind by crashes mid-teardown.
func (e *Engine) IntegritySweep(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for _, kind := range []string{
		types.CacheSlotTempRole, types.CacheRaidReminder,
		types.CacheAutoReminder, types.CacheRaidStart,
	} {
		for _, row := range e.store.ListDebugCache(kind, 0, nil) {
			if row.RaidID == nil {
				continue
			}
			raid := e.store.Raid(*row.RaidID)
			if raid != nil && raid.Status == types.RaidOpen {
				continue
			}
			if kind == types.CacheSlotTempRole && row.MessageID != 0 {
				e.safe.DeleteRole(ctx, row.GuildID, row.MessageID, "orphaned raid role")
			}
			e.store.DeleteDebugCache(row.CacheKey)
			removed++
		}
	}

	removed += e.sweepOrphanRolesLocked(ctx)

	if removed == 0 {
		return 0, nil
	}
	e.log.Info("integrity sweep", "removed", removed)
	return removed, e.flushLocked(ctx, tables("debug_mirror_cache"))
}

// sweepOrphanRolesLocked deletes guild roles carrying the raid-role prefix
// whose display id no longer maps to an open raid with that role.
func (e *Engine) sweepOrphanRolesLocked(ctx context.Context) int {
	removed := 0
	for _, gs := range e.store.SettingsRows() {
		roles, err := e.client.Roles(ctx, gs.GuildID)
		if err != nil {
			e.log.Debug("role listing failed", "guild", gs.GuildID, "err", err)
			continue
		}
		for _, role := range roles {
			if !strings.HasPrefix(role.Name, tempRolePrefix) {
				continue
			}
			displayID, err := strconv.ParseInt(strings.TrimPrefix(role.Name, tempRolePrefix), 10, 64)
			if err != nil {
				continue
			}
			raid := e.store.RaidByDisplay(gs.GuildID, displayID)
			if raid != nil && raid.Status == types.RaidOpen && raid.TempRoleID != nil && *raid.TempRoleID == role.ID {
				continue
			}
			if e.safe.DeleteRole(ctx, gs.GuildID, role.ID, "orphaned raid role") {
				removed++
			}
		}
	}
	return removed
}

// PersistLevels flushes the user_levels table when XP changed since the last
// flush. The dirty flag survives a failed flush so the next tick retries.
func (e *Engine) PersistLevels(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.levelDirty {
		return nil
	}
	if err := e.flushLocked(ctx, tables("user_levels")); err != nil {
		return err
	}
	e.levelDirty = false
	return nil
}

// Member lists are large; a guild is refetched at most this often even
// though the sync loop ticks far more frequently.
const usernameResyncGap = 12 * time.Hour

// SyncUsernames refreshes stored display names from the gateway member
// cache. Guilds without the members intent are skipped, and guilds synced
// within the last resync gap are not refetched. The member fetch happens
// outside the state lock; only the store update holds it.
func (e *Engine) SyncUsernames(ctx context.Context) (int, error) {
	guilds, err := e.client.Guilds(ctx)
	if err != nil {
		return 0, fmt.Errorf("list guilds: %w", err)
	}

	updated := 0
	for _, g := range guilds {
		e.mu.Lock()
		due := e.now().After(e.nextUsernameSync[g.ID])
		if due {
			e.nextUsernameSync[g.ID] = e.now().Add(usernameResyncGap)
		}
		e.mu.Unlock()
		if !due {
			continue
		}

		members, err := e.client.Members(ctx, g.ID)
		if err != nil {
			if errors.Is(err, platform.ErrMissingIntent) {
				e.log.Debug("members intent missing, username sync skipped", "guild", g.ID)
				continue
			}
			return updated, fmt.Errorf("members of %d: %w", g.ID, err)
		}

		e.mu.Lock()
		for _, m := range members {
			row := e.store.Level(g.ID, m.UserID)
			if row == nil || m.DisplayName == "" || row.Username == m.DisplayName {
				continue
			}
			row.Username = m.DisplayName
			e.levelDirty = true
			updated++
		}
		e.mu.Unlock()
	}

	if updated > 0 && e.cfg.MemberlistDebugChannelID != 0 {
		e.safe.Send(ctx, e.cfg.MemberlistDebugChannelID,
			fmt.Sprintf("Mitgliederabgleich: %d Namen aktualisiert", updated), nil)
	}
	return updated, nil
}

// ForceSyncUsernames drops the per-guild resync clocks and runs a full
// member sync immediately.
func (e *Engine) ForceSyncUsernames(ctx context.Context) (int, error) {
	e.mu.Lock()
	clear(e.nextUsernameSync)
	e.mu.Unlock()
	return e.SyncUsernames(ctx)
}

// ExportSnapshot copies the current store state for the backup writer.
func (e *Engine) ExportSnapshot() store.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Export()
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dmw-rewrite/dmw/internal/platform"
	"github.com/dmw-rewrite/dmw/internal/render"
	"github.com/dmw-rewrite/dmw/internal/store"
	"github.com/dmw-rewrite/dmw/internal/types"
)

// tempRolePrefix names the ephemeral per-raid role; the integrity sweep
// recognises orphans by it.
const tempRolePrefix = "DMW Raid "

// EnsureGuild upserts the tenant row on first contact (guild join, first
// command) and refreshes the display name.
func (e *Engine) EnsureGuild(ctx context.Context, guildID uint64, name string) error {
	e.handled.Add(ctx, 1)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.EnsureSettings(guildID, name)
	return e.flushLocked(ctx, tables("guild_settings"))
}

// ConfigureChannels sets the planner, participants, and raidlist channels.
// Changing the raidlist channel makes the next refresh repost the overview.
func (e *Engine) ConfigureChannels(ctx context.Context, guildID, planner, participants, raidlist uint64) error {
	e.handled.Add(ctx, 1)
	if planner == 0 || participants == 0 || raidlist == 0 {
		return Validationf("Alle drei Kanäle müssen angegeben werden")
	}
	e.mu.Lock()
	e.store.ConfigureChannels(guildID, planner, participants, raidlist)
	err := e.flushLocked(ctx, tables("guild_settings"))
	e.mu.Unlock()

	e.updater.MarkDirty(guildID)
	return err
}

// CreateRaid opens a new planning poll and posts its planner message.
func (e *Engine) CreateRaid(ctx context.Context, guildID, creatorID uint64, dungeon string, days, times []string, minPlayers int) (*types.Raid, error) {
	e.handled.Add(ctx, 1)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.createRaidLocked(ctx, guildID, creatorID, dungeon, days, times, minPlayers)
}

// CreateRaidFromTemplate opens a raid from a stored per-guild preset.
func (e *Engine) CreateRaidFromTemplate(ctx context.Context, guildID, creatorID uint64, name string) (*types.Raid, error) {
	e.handled.Add(ctx, 1)
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.store.Templates(guildID) {
		if t.Name == name {
			return e.createRaidLocked(ctx, guildID, creatorID, t.Dungeon, t.Days, t.Times, t.MinPlayers)
		}
	}
	return nil, Validationf("Unbekannte Vorlage: %s", name)
}

func (e *Engine) createRaidLocked(ctx context.Context, guildID, creatorID uint64, dungeon string, days, times []string, minPlayers int) (*types.Raid, error) {
	gs := e.store.Settings(guildID)
	if gs == nil || gs.PlannerChannelID == 0 {
		return nil, Preconditionf("Planungskanal ist nicht konfiguriert")
	}
	if strings.TrimSpace(dungeon) == "" {
		return nil, Validationf("Kein Dungeon angegeben")
	}
	if len(days) == 0 {
		return nil, Validationf("Keine Tage angegeben")
	}
	if len(times) == 0 {
		return nil, Validationf("Keine Uhrzeiten angegeben")
	}
	if minPlayers < 0 {
		return nil, Validationf("Mindestteilnehmer darf nicht negativ sein")
	}
	if minPlayers == 0 {
		minPlayers = gs.DefaultMinPlayers
	}

	raid := e.store.CreateRaid(guildID, gs.PlannerChannelID, creatorID, dungeon, minPlayers, e.now())
	for _, d := range days {
		e.store.AddOption(raid.ID, types.KindDay, d)
	}
	for _, t := range times {
		e.store.AddOption(raid.ID, types.KindTime, t)
	}

	e.refreshPlannerLocked(ctx, raid)
	err := e.flushLocked(ctx, tables("raids", "raid_options", "debug_mirror_cache"))
	e.updater.MarkDirty(guildID)
	e.log.Info("raid created", "guild", guildID, "raid", raid.ID, "display", raid.DisplayID, "dungeon", dungeon)
	return raid, err
}

// ToggleVote flips one user's vote on one option and republishes every
// artefact the change can affect. Returns whether the vote exists afterwards.
func (e *Engine) ToggleVote(ctx context.Context, guildID uint64, displayID int64, kind types.OptionKind, label string, userID uint64) (bool, error) {
	e.handled.Add(ctx, 1)
	e.mu.Lock()
	defer e.mu.Unlock()

	raid := e.store.RaidByDisplay(guildID, displayID)
	if raid == nil || raid.Status != types.RaidOpen {
		return false, Preconditionf("Raid #%d ist nicht offen", displayID)
	}
	if !e.store.HasOption(raid.ID, kind, label) {
		return false, Validationf("Unbekannte Option: %s", label)
	}

	voted := e.store.ToggleVote(raid.ID, kind, label, userID)
	e.refreshPlannerLocked(ctx, raid)
	e.syncSlotsLocked(ctx, raid, userID)

	err := e.flushLocked(ctx, tables("raids", "raid_votes", "raid_posted_slots", "debug_mirror_cache"))
	e.updater.MarkDirty(guildID)
	return voted, err
}

// refreshPlannerLocked republishes the planner embed via the cache rule and
// keeps the raid's planner message id current.
func (e *Engine) refreshPlannerLocked(ctx context.Context, raid *types.Raid) {
	embed, hash := render.PlannerEmbed(e.store, raid)
	raidID := raid.ID
	msgID, _ := e.syncArtefact(ctx, artefact{
		key:     plannerCacheKey(raid.ID),
		kind:    types.CacheBotMessage,
		guildID: raid.GuildID,
		raidID:  &raidID,
		channel: raid.PlannerChannelID,
		embed:   embed,
		hash:    hash,
	})
	if msgID != 0 {
		raid.PlannerMessageID = &msgID
	}
}

// syncSlotsLocked reconciles the per-slot participant messages and the
// ephemeral raid role with the current qualified slots. extraCandidates are
// users that may have just lost their last vote and need the role removed.
func (e *Engine) syncSlotsLocked(ctx context.Context, raid *types.Raid, extraCandidates ...uint64) {
	gs := e.store.Settings(raid.GuildID)
	if gs == nil || gs.ParticipantsChanID == 0 {
		return
	}

	qualified, union := render.QualifiedSlots(e.store, raid)
	raidID := raid.ID

	for _, sl := range render.SlotList(qualified) {
		embed, hash := render.ParticipantEmbed(e.store, raid, sl, qualified[sl])
		msgID, _ := e.syncArtefact(ctx, artefact{
			key:     slotCacheKey(raid.ID, sl),
			kind:    types.CacheBotMessage,
			guildID: raid.GuildID,
			raidID:  &raidID,
			channel: gs.ParticipantsChanID,
			embed:   embed,
			hash:    hash,
		})
		if msgID != 0 {
			e.store.SetPostedSlot(raid.ID, sl.Day, sl.Time, gs.ParticipantsChanID, msgID)
		}
	}

	// Slots that no longer qualify lose their message.
	for _, ps := range e.store.PostedSlots(raid.ID) {
		if _, ok := qualified[render.Slot{Day: ps.Day, Time: ps.Time}]; ok {
			continue
		}
		e.safe.Delete(ctx, platform.Message{ChannelID: ps.ChannelID, MessageID: ps.MessageID})
		e.store.DeletePostedSlot(raid.ID, ps.Day, ps.Time)
		e.store.DeleteDebugCache(slotCacheKey(raid.ID, render.Slot{Day: ps.Day, Time: ps.Time}))
	}

	e.syncTempRoleLocked(ctx, raid, union, extraCandidates)
}

func (e *Engine) syncTempRoleLocked(ctx context.Context, raid *types.Raid, union []uint64, extraCandidates []uint64) {
	raidID := raid.ID

	if len(union) == 0 {
		if raid.TempRoleID != nil {
			e.safe.DeleteRole(ctx, raid.GuildID, *raid.TempRoleID, "raid has no qualified slots")
			raid.TempRoleID = nil
			e.store.DeleteDebugCache(tempRoleCacheKey(raid.ID))
		}
		return
	}

	if raid.TempRoleID == nil {
		// The audit-log reason carries a unique ref so overlapping raids with
		// the same display id across guilds stay distinguishable in audits.
		reason := fmt.Sprintf("raid slot role ref=%s", uuid.NewString()[:8])
		role := e.safe.CreateRole(ctx, raid.GuildID, fmt.Sprintf("%s%d", tempRolePrefix, raid.DisplayID), true, reason)
		if role == nil {
			return
		}
		raid.TempRoleID = &role.ID
		raid.TempRoleCreated = true
		// The message id field of a slot_temp_role row carries the role id.
		e.store.UpsertDebugCache(&types.DebugCacheRow{
			CacheKey:  tempRoleCacheKey(raid.ID),
			Kind:      types.CacheSlotTempRole,
			GuildID:   raid.GuildID,
			RaidID:    &raidID,
			MessageID: role.ID,
		})
	}

	inUnion := make(map[uint64]struct{}, len(union))
	for _, u := range union {
		inUnion[u] = struct{}{}
		e.safe.AddRole(ctx, raid.GuildID, u, *raid.TempRoleID)
	}

	// Removal candidates: anyone with a vote on the raid plus the acting
	// user, who may have just removed their last vote.
	candidates := make(map[uint64]struct{})
	dayVotes, timeVotes := e.store.VoteUserSets(raid.ID)
	for _, set := range dayVotes {
		for u := range set {
			candidates[u] = struct{}{}
		}
	}
	for _, set := range timeVotes {
		for u := range set {
			candidates[u] = struct{}{}
		}
	}
	for _, u := range extraCandidates {
		candidates[u] = struct{}{}
	}
	for u := range candidates {
		if _, ok := inUnion[u]; !ok {
			e.safe.RemoveRole(ctx, raid.GuildID, u, *raid.TempRoleID)
		}
	}
}

// FinishRaid finalizes a raid: the qualifying users are frozen into the
// attendance table, every artefact is torn down, and the raid cascades out
// of the store. Only the creator or the privileged operator may finish.
func (e *Engine) FinishRaid(ctx context.Context, guildID uint64, displayID int64, actorID uint64) error {
	e.handled.Add(ctx, 1)
	e.mu.Lock()
	defer e.mu.Unlock()

	raid := e.store.RaidByDisplay(guildID, displayID)
	if raid == nil || raid.Status != types.RaidOpen {
		return Preconditionf("Raid #%d ist nicht offen", displayID)
	}
	if actorID != raid.CreatorID && (e.cfg == nil || actorID != e.cfg.PrivilegedUserID) {
		return Preconditionf("Nur der Ersteller kann den Raid abschließen")
	}

	_, union := render.QualifiedSlots(e.store, raid)
	for _, u := range union {
		e.store.RecordAttendance(guildID, displayID, u, types.AttendancePending)
	}

	e.closeRaidLocked(ctx, raid, "abgeschlossen")
	e.refreshRaidlistLocked(ctx, guildID)
	e.log.Info("raid finished", "guild", guildID, "display", displayID, "attendees", len(union))
	return e.flushLocked(ctx, tables(
		"raids", "raid_options", "raid_votes", "raid_posted_slots",
		"raid_attendance", "guild_settings", "debug_mirror_cache"))
}

// CancelAllRaids tears down every open raid of the guild. Used by the local
// admin command and the remote control channel.
func (e *Engine) CancelAllRaids(ctx context.Context, guildID uint64, reason string) (int, error) {
	e.handled.Add(ctx, 1)
	if reason == "" {
		reason = "abgebrochen"
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	open := e.store.OpenRaids(guildID)
	for _, raid := range open {
		e.closeRaidLocked(ctx, raid, reason)
	}
	if len(open) > 0 {
		e.refreshRaidlistLocked(ctx, guildID)
	}
	e.log.Info("raids canceled", "guild", guildID, "count", len(open), "reason", reason)
	return len(open), e.flushLocked(ctx, tables(
		"raids", "raid_options", "raid_votes", "raid_posted_slots",
		"guild_settings", "debug_mirror_cache"))
}

// closeRaidLocked replaces the planner message with the terminal embed,
// deletes the slot messages and the temp role, drops every cache row of the
// raid, and cascades the raid out of the store.
func (e *Engine) closeRaidLocked(ctx context.Context, raid *types.Raid, reason string) {
	if raid.PlannerMessageID != nil {
		e.safe.Edit(ctx, platform.Message{ChannelID: raid.PlannerChannelID, MessageID: *raid.PlannerMessageID},
			"", render.ClosedEmbed(reason))
	}
	for _, ps := range e.store.PostedSlots(raid.ID) {
		e.safe.Delete(ctx, platform.Message{ChannelID: ps.ChannelID, MessageID: ps.MessageID})
	}
	if raid.TempRoleID != nil {
		e.safe.DeleteRole(ctx, raid.GuildID, *raid.TempRoleID, "raid closed: "+reason)
	}

	raidID := raid.ID
	for _, kind := range []string{
		types.CacheBotMessage, types.CacheSlotTempRole,
		types.CacheRaidReminder, types.CacheAutoReminder, types.CacheRaidStart,
	} {
		for _, row := range e.store.ListDebugCache(kind, raid.GuildID, &raidID) {
			e.store.DeleteDebugCache(row.CacheKey)
		}
	}
	e.store.DeleteRaidCascade(raid.ID)
}

// PurgeGuild removes every row of the tenant across all tables and returns
// the before-counts. Artefact messages are left alone: the command exists
// for guild removal, where the channels are gone anyway.
func (e *Engine) PurgeGuild(ctx context.Context, guildID uint64) (store.PurgeCounts, error) {
	e.handled.Add(ctx, 1)
	e.mu.Lock()
	defer e.mu.Unlock()

	counts := e.store.PurgeGuildData(guildID)
	e.log.Info("guild purged", "guild", guildID,
		"raids", counts.Raids, "levels", counts.UserLevels, "settings", counts.GuildSettings)
	return counts, e.flushLocked(ctx, nil)
}

// MarkAttendance mutates one frozen attendance row of a finished raid.
func (e *Engine) MarkAttendance(ctx context.Context, guildID uint64, displayID int64, userID uint64, status types.AttendanceStatus, markedBy uint64) error {
	e.handled.Add(ctx, 1)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.MarkAttendance(guildID, displayID, userID, status, markedBy); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Validationf("Kein Anwesenheitseintrag für Raid #%d und diesen Benutzer", displayID)
		}
		return err
	}
	return e.flushLocked(ctx, tables("raid_attendance"))
}

// SaveTemplate stores or replaces a named raid preset.
func (e *Engine) SaveTemplate(ctx context.Context, t *types.RaidTemplate) error {
	e.handled.Add(ctx, 1)
	if strings.TrimSpace(t.Name) == "" {
		return Validationf("Vorlagenname darf nicht leer sein")
	}
	if strings.TrimSpace(t.Dungeon) == "" {
		return Validationf("Kein Dungeon angegeben")
	}
	if len(t.Days) == 0 || len(t.Times) == 0 {
		return Validationf("Vorlage braucht mindestens einen Tag und eine Uhrzeit")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.store.UpsertTemplate(t)
	return e.flushLocked(ctx, tables("raid_templates"))
}

// DeleteTemplate removes a named preset.
func (e *Engine) DeleteTemplate(ctx context.Context, guildID uint64, name string) error {
	e.handled.Add(ctx, 1)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.store.DeleteTemplate(guildID, name) {
		return Validationf("Unbekannte Vorlage: %s", name)
	}
	return e.flushLocked(ctx, tables("raid_templates"))
}

// Templates lists the guild's presets.
func (e *Engine) Templates(guildID uint64) []*types.RaidTemplate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Templates(guildID)
}

// Status renders a short operator summary for the guild.
func (e *Engine) Status(guildID uint64) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	open := e.store.OpenRaids(guildID)
	lines := []string{
		fmt.Sprintf("Offene Raids: %d", len(open)),
		fmt.Sprintf("Vorlagen: %d", len(e.store.Templates(guildID))),
		"Zeitzone: Europe/Berlin",
	}
	if !e.lastSelfTestOK.IsZero() {
		lines = append(lines, fmt.Sprintf("Letzter Selbsttest: %s", e.lastSelfTestOK.In(render.Berlin()).Format("02.01.2006 15:04")))
	}
	if e.lastSelfTestErr != "" {
		lines = append(lines, fmt.Sprintf("Selbsttest-Fehler: %s", e.lastSelfTestErr))
	}
	return strings.Join(lines, "\n")
}

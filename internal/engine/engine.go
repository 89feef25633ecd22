// Package engine is the reactive orchestrator. It owns the single state
// mutex: every command handler and every worker pass locks it, mutates the
// store, republishes the affected chat artefacts, and flushes the snapshot
// before unlocking. Platform calls go through the safe wrapper, so a flaky
// gateway degrades artefacts instead of corrupting state.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/dmw-rewrite/dmw/internal/config"
	"github.com/dmw-rewrite/dmw/internal/debounce"
	"github.com/dmw-rewrite/dmw/internal/persist"
	"github.com/dmw-rewrite/dmw/internal/platform"
	"github.com/dmw-rewrite/dmw/internal/store"
	"github.com/dmw-rewrite/dmw/internal/telemetry"
)

// maxAckEntries bounds the interaction dedup set. On overflow the whole set
// is dropped; a duplicate slipping through after a reset is harmless because
// every handler is idempotent at the store level.
const maxAckEntries = 20000

// Persister is the subset of the persistence engine the orchestrator needs.
// Tests run with a nil Persister or a recording fake.
type Persister interface {
	Flush(ctx context.Context, snap store.Snapshot, dirty map[string]bool) (persist.FlushResult, error)
}

type guildUser struct {
	GuildID uint64
	UserID  uint64
}

// Options configures a new Engine.
type Options struct {
	Store   *store.Store
	Client  platform.Client
	Persist Persister
	Config  *config.Config
	Logger  *slog.Logger

	// Raidlist debounce window and minimum spacing between refreshes.
	// Zero values pick the production defaults.
	Debounce time.Duration
	Cooldown time.Duration

	// Now is the clock; nil means time.Now. Tests inject a fixed clock.
	Now func() time.Time
}

// Engine is the orchestrator. All exported methods are safe for concurrent
// use; they serialize on the internal state mutex.
type Engine struct {
	mu      sync.Mutex
	store   *store.Store
	client  platform.Client
	safe    *platform.Safe
	persist Persister
	updater *debounce.Updater
	cfg     *config.Config
	log     *slog.Logger
	now     func() time.Time

	acks map[string]struct{}

	levelDirty  bool
	lastXP      map[guildUser]time.Time
	lastLevelup map[guildUser]time.Time

	nextUsernameSync map[uint64]time.Time

	lastSelfTestOK  time.Time
	lastSelfTestErr string

	handled       metric.Int64Counter
	flushFailures metric.Int64Counter
}

// New wires an Engine. The raidlist updater is created here so its refresh
// callback closes over the engine.
func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 10 * time.Second
	}

	e := &Engine{
		store:       opts.Store,
		client:      opts.Client,
		safe:        platform.NewSafe(opts.Client, opts.Logger),
		persist:     opts.Persist,
		cfg:         opts.Config,
		log:         opts.Logger,
		now:         opts.Now,
		acks:        make(map[string]struct{}),
		lastXP:      make(map[guildUser]time.Time),
		lastLevelup: make(map[guildUser]time.Time),

		nextUsernameSync: make(map[uint64]time.Time),
	}
	e.updater = debounce.New(opts.Debounce, opts.Cooldown, func(guildID uint64) {
		e.RefreshRaidlist(context.Background(), guildID)
	})

	meter := telemetry.Meter()
	e.handled, _ = meter.Int64Counter("dmw.handler.invocations")
	e.flushFailures, _ = meter.Int64Counter("dmw.flush.failures")
	return e
}

// TryAck records an interaction id in the dedup set. False means the
// interaction was already handled and must be dropped.
func (e *Engine) TryAck(interactionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.acks[interactionID]; ok {
		return false
	}
	if len(e.acks) >= maxAckEntries {
		e.acks = make(map[string]struct{}, maxAckEntries)
	}
	e.acks[interactionID] = struct{}{}
	return true
}

// tables builds a dirty-table hint for flushLocked.
func tables(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// flushLocked exports the store and writes the snapshot through the
// persistence engine. Callers hold the state mutex. A failed flush keeps the
// in-memory state authoritative; the caller surfaces a persistence error and
// the next successful flush reconciles the database.
func (e *Engine) flushLocked(ctx context.Context, dirty map[string]bool) error {
	if e.persist == nil {
		return nil
	}
	res, err := e.persist.Flush(ctx, e.store.Export(), dirty)
	if err != nil {
		e.flushFailures.Add(ctx, 1)
		e.log.Error("state flush failed", "err", err)
		return &UserError{Kind: KindPersistence, Msg: "Speichern fehlgeschlagen — der Zustand bleibt im Speicher erhalten"}
	}
	if !res.Skipped {
		e.log.Debug("state flushed", "tables", res.Tables, "rows", res.Rows, "attempts", res.Attempts)
	}
	return nil
}

// FlushAll writes the full snapshot without dirty hints. Called on shutdown
// and after bulk loads.
func (e *Engine) FlushAll(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked(ctx, nil)
}

// RecordSelfTest stores the outcome of the latest self-test pass.
func (e *Engine) RecordSelfTest(ok bool, errMsg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ok {
		e.lastSelfTestOK = e.now()
		e.lastSelfTestErr = ""
		return
	}
	e.lastSelfTestErr = errMsg
}

// SelfTestStatus returns the last successful self-test time and the last
// error message, if any.
func (e *Engine) SelfTestStatus() (time.Time, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSelfTestOK, e.lastSelfTestErr
}

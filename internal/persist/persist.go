// Package persist implements the snapshot-diff-replace persistence engine:
// fingerprint short-circuiting, dirty-table hints, transactional
// delete+insert in FK-safe order, and retry with exponential backoff.
// It also owns the advisory lock that enforces one engine per database.
package persist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/dmw-rewrite/dmw/internal/store"
)

// advisoryLockKey is the fixed advisory-lock key all engine instances
// compete for. Exactly one process per database may hold it.
const advisoryLockKey int64 = 0x444D5721 // "DMW!"

// ErrSingletonLost means another process already holds the advisory lock.
var ErrSingletonLost = errors.New("advisory lock not acquired")

// Stmt is one SQL statement with its arguments.
type Stmt struct {
	Query string
	Args  []any
}

// Execer applies a statement batch atomically. The production
// implementation wraps *sqlx.DB; tests substitute a recorder.
type Execer interface {
	ExecTx(ctx context.Context, stmts []Stmt) error
}

type sqlxExecer struct {
	db *sqlx.DB
}

func (e sqlxExecer) ExecTx(ctx context.Context, stmts []Stmt) error {
	tx, err := e.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.Query, st.Args...); err != nil {
			return fmt.Errorf("exec %q: %w", st.Query, err)
		}
	}
	return tx.Commit()
}

// placeholders builds "$1, $2, ..." for n columns starting at base+1.
func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", i+1)
	}
	return strings.Join(parts, ", ")
}

// BuildFlushStatements produces the delete+insert batch for the selected
// tables: deletes in FK-safe reverse order, inserts in forward order. A nil
// or empty selection means all tables.
func BuildFlushStatements(snap store.Snapshot, tables map[string]bool) []Stmt {
	selected := func(t string) bool {
		return len(tables) == 0 || tables[t]
	}

	var stmts []Stmt
	for _, table := range ReverseTables() {
		if selected(table) {
			stmts = append(stmts, Stmt{Query: fmt.Sprintf(`DELETE FROM %q`, table)})
		}
	}
	for _, table := range ForwardTables {
		if !selected(table) {
			continue
		}
		cols := TableColumns(table)
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = fmt.Sprintf("%q", c)
		}
		insert := fmt.Sprintf(`INSERT INTO %q (%s) VALUES (%s)`,
			table, strings.Join(quoted, ", "), placeholders(len(cols)))
		for _, vals := range TableValues(snap, table) {
			stmts = append(stmts, Stmt{Query: insert, Args: vals})
		}
	}
	return stmts
}

// FlushResult describes what one Flush call did.
type FlushResult struct {
	Skipped     bool // fingerprint matched the last successful flush
	Tables      int  // tables replaced
	Rows        int  // rows inserted
	Attempts    int
	Fingerprint string
}

// Engine is the persistence handle. Safe for concurrent use; flushes are
// serialized internally.
type Engine struct {
	db   *sqlx.DB
	exec Execer
	log  *slog.Logger

	maxAttempts int
	baseDelay   time.Duration
	echo        bool

	mu              sync.Mutex
	lastFingerprint string
}

// Option tweaks an Engine.
type Option func(*Engine)

// WithRetry overrides the retry policy (attempts >= 1).
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(e *Engine) {
		if attempts >= 1 {
			e.maxAttempts = attempts
		}
		if baseDelay > 0 {
			e.baseDelay = baseDelay
		}
	}
}

// WithExecer substitutes the statement executor; used by tests.
func WithExecer(exec Execer) Option {
	return func(e *Engine) { e.exec = exec }
}

// WithEcho logs every issued SQL statement at debug level; driven by the
// DB_ECHO environment switch.
func WithEcho(on bool) Option {
	return func(e *Engine) { e.echo = on }
}

// Open connects to the database and returns an engine with default retry
// policy (3 attempts, 250ms base delay, doubling).
func Open(ctx context.Context, dsn string, log *slog.Logger, opts ...Option) (*Engine, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	e := NewEngine(log, opts...)
	e.db = db
	if e.exec == nil {
		e.exec = sqlxExecer{db: db}
	}
	return e, nil
}

// NewEngine builds an engine without a live connection; callers must supply
// an Execer (tests) or assign a db (Open does both).
func NewEngine(log *slog.Logger, opts ...Option) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		log:         log,
		maxAttempts: 3,
		baseDelay:   250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DB exposes the raw handle for the schema guard and the advisory lock.
func (e *Engine) DB() *sqlx.DB { return e.db }

// Close releases the connection pool; the advisory lock goes with it.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

// AcquireAdvisoryLock takes the singleton lock. ErrSingletonLost when
// another process holds it.
func (e *Engine) AcquireAdvisoryLock(ctx context.Context) error {
	var ok bool
	if err := e.db.GetContext(ctx, &ok, `SELECT pg_try_advisory_lock($1)`, advisoryLockKey); err != nil {
		return fmt.Errorf("advisory lock: %w", err)
	}
	if !ok {
		return ErrSingletonLost
	}
	return nil
}

// Flush replaces the selected tables with the snapshot contents. When the
// snapshot fingerprint equals the last successful flush, no SQL is issued
// at all. dirty narrows the replace to the named tables; nil means all. On
// repeated failure the in-memory state is NOT reset; the next successful
// flush reconciles.
func (e *Engine) Flush(ctx context.Context, snap store.Snapshot, dirty map[string]bool) (FlushResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fp := Fingerprint(snap)
	if fp == e.lastFingerprint {
		return FlushResult{Skipped: true, Fingerprint: fp}, nil
	}

	stmts := BuildFlushStatements(snap, dirty)
	tables := len(ForwardTables)
	if len(dirty) > 0 {
		tables = len(dirty)
	}

	if e.echo {
		for _, st := range stmts {
			e.log.Debug("sql", "query", st.Query, "args", len(st.Args))
		}
	}

	attempts := 0
	op := func() error {
		attempts++
		return e.exec.ExecTx(ctx, stmts)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.baseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(e.maxAttempts-1)), ctx)

	if err := backoff.Retry(op, policy); err != nil {
		e.log.Warn("flush failed; keeping in-memory state",
			"attempts", attempts, "tables", tables, "err", err)
		return FlushResult{Attempts: attempts, Fingerprint: fp}, fmt.Errorf("flush: %w", err)
	}

	e.lastFingerprint = fp
	return FlushResult{
		Tables:      tables,
		Rows:        len(stmts) - tables,
		Attempts:    attempts,
		Fingerprint: fp,
	}, nil
}

// ResetFingerprint forgets the last flush fingerprint, forcing the next
// Flush to write. Used after external writes (restore from backup).
func (e *Engine) ResetFingerprint() {
	e.mu.Lock()
	e.lastFingerprint = ""
	e.mu.Unlock()
}

// Load selects every table and assembles a snapshot. The caller feeds it to
// store.Load, which rebuilds indexes and counters. The loaded fingerprint
// is recorded so an immediate Flush with unchanged state is a no-op.
func (e *Engine) Load(ctx context.Context) (store.Snapshot, error) {
	var snap store.Snapshot

	var settings []settingsRow
	if err := e.selectAll(ctx, &settings, "guild_settings"); err != nil {
		return snap, err
	}
	for _, r := range settings {
		snap.Settings = append(snap.Settings, r.toDomain())
	}

	var dungeons []dungeonRow
	if err := e.selectAll(ctx, &dungeons, "dungeons"); err != nil {
		return snap, err
	}
	for _, r := range dungeons {
		snap.Dungeons = append(snap.Dungeons, r.toDomain())
	}

	var raids []raidRow
	if err := e.selectAll(ctx, &raids, "raids"); err != nil {
		return snap, err
	}
	for _, r := range raids {
		snap.Raids = append(snap.Raids, r.toDomain())
	}

	var options []optionRow
	if err := e.selectAll(ctx, &options, "raid_options"); err != nil {
		return snap, err
	}
	for _, r := range options {
		snap.Options = append(snap.Options, r.toDomain())
	}

	var votes []voteRow
	if err := e.selectAll(ctx, &votes, "raid_votes"); err != nil {
		return snap, err
	}
	for _, r := range votes {
		snap.Votes = append(snap.Votes, r.toDomain())
	}

	var slots []slotRow
	if err := e.selectAll(ctx, &slots, "raid_posted_slots"); err != nil {
		return snap, err
	}
	for _, r := range slots {
		snap.Slots = append(snap.Slots, r.toDomain())
	}

	var templates []templateRow
	if err := e.selectAll(ctx, &templates, "raid_templates"); err != nil {
		return snap, err
	}
	for _, r := range templates {
		snap.Templates = append(snap.Templates, r.toDomain())
	}

	var attendance []attendanceRow
	if err := e.selectAll(ctx, &attendance, "raid_attendance"); err != nil {
		return snap, err
	}
	for _, r := range attendance {
		snap.Attendance = append(snap.Attendance, r.toDomain())
	}

	var levels []levelRow
	if err := e.selectAll(ctx, &levels, "user_levels"); err != nil {
		return snap, err
	}
	for _, r := range levels {
		snap.Levels = append(snap.Levels, r.toDomain())
	}

	var cache []cacheRow
	if err := e.selectAll(ctx, &cache, "debug_mirror_cache"); err != nil {
		return snap, err
	}
	for _, r := range cache {
		snap.Cache = append(snap.Cache, r.toDomain())
	}

	e.mu.Lock()
	e.lastFingerprint = Fingerprint(snap)
	e.mu.Unlock()
	return snap, nil
}

func (e *Engine) selectAll(ctx context.Context, dest any, table string) error {
	cols := TableColumns(table)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	query := fmt.Sprintf(`SELECT %s FROM %q`, strings.Join(quoted, ", "), table)
	if e.echo {
		e.log.Debug("sql", "query", query)
	}
	if err := e.db.SelectContext(ctx, dest, query); err != nil {
		return fmt.Errorf("load %s: %w", table, err)
	}
	return nil
}

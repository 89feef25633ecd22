package persist

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmw-rewrite/dmw/internal/store"
	"github.com/dmw-rewrite/dmw/internal/types"
)

type recordingExecer struct {
	batches [][]Stmt
	failFor int // fail this many calls before succeeding
	calls   int
}

func (r *recordingExecer) ExecTx(_ context.Context, stmts []Stmt) error {
	r.calls++
	if r.failFor > 0 {
		r.failFor--
		return errors.New("connection reset")
	}
	r.batches = append(r.batches, stmts)
	return nil
}

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	s := store.New()
	s.EnsureSettings(1, "Guild One")
	s.ConfigureChannels(1, 11, 22, 33)
	raid := s.CreateRaid(1, 11, 100, "Schattenfeste", 1, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	s.AddOption(raid.ID, types.KindDay, "2026-02-13 (Fr)")
	s.ToggleVote(raid.ID, types.KindDay, "2026-02-13 (Fr)", 200)
	return s
}

func TestFlushEchoLogsStatements(t *testing.T) {
	var buf strings.Builder
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	rec := &recordingExecer{}
	e := NewEngine(log, WithExecer(rec), WithEcho(true))

	_, err := e.Flush(context.Background(), seededStore(t).Export(), nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "DELETE FROM")
	assert.Contains(t, buf.String(), "INSERT INTO")

	buf.Reset()
	quiet := NewEngine(log, WithExecer(&recordingExecer{}))
	_, err = quiet.Flush(context.Background(), seededStore(t).Export(), nil)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "DELETE FROM")
}

func TestFingerprintStableAcrossLoad(t *testing.T) {
	s := seededStore(t)
	snap := s.Export()
	fp := Fingerprint(snap)

	other := store.New()
	other.Load(snap)
	assert.Equal(t, fp, Fingerprint(other.Export()))
}

func TestFingerprintChangesOnMutation(t *testing.T) {
	s := seededStore(t)
	fp := Fingerprint(s.Export())
	s.EnsureLevel(1, 200, "alice")
	assert.NotEqual(t, fp, Fingerprint(s.Export()))
}

func TestFlushSkipsWhenNothingChanged(t *testing.T) {
	s := seededStore(t)
	rec := &recordingExecer{}
	e := NewEngine(nil, WithExecer(rec), WithRetry(3, time.Millisecond))

	res, err := e.Flush(context.Background(), s.Export(), nil)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	require.Len(t, rec.batches, 1)

	// Second flush with no mutations issues zero SQL statements.
	res, err = e.Flush(context.Background(), s.Export(), nil)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Len(t, rec.batches, 1)
	assert.Equal(t, 1, rec.calls)
}

func TestFlushDirtyHintsNarrowTheBatch(t *testing.T) {
	s := seededStore(t)
	rec := &recordingExecer{}
	e := NewEngine(nil, WithExecer(rec), WithRetry(3, time.Millisecond))

	_, err := e.Flush(context.Background(), s.Export(), map[string]bool{"user_levels": true})
	require.NoError(t, err)

	require.Len(t, rec.batches, 1)
	for _, st := range rec.batches[0] {
		assert.Contains(t, st.Query, `"user_levels"`)
	}
}

func TestFlushStatementOrderIsFKSafe(t *testing.T) {
	s := seededStore(t)
	stmts := BuildFlushStatements(s.Export(), nil)

	var deletes []string
	firstInsert := -1
	for i, st := range stmts {
		if strings.HasPrefix(st.Query, "DELETE") {
			require.Equal(t, -1, firstInsert, "all deletes precede all inserts")
			deletes = append(deletes, st.Query)
		} else if firstInsert == -1 {
			firstInsert = i
		}
	}
	require.Len(t, deletes, len(ForwardTables))
	assert.Contains(t, deletes[0], `"debug_mirror_cache"`, "deletes run in reverse FK order")
	assert.Contains(t, deletes[len(deletes)-1], `"guild_settings"`)

	assert.Contains(t, stmts[firstInsert].Query, `"guild_settings"`, "inserts run in forward FK order")
}

func TestFlushRetriesThenSucceeds(t *testing.T) {
	s := seededStore(t)
	rec := &recordingExecer{failFor: 2}
	e := NewEngine(nil, WithExecer(rec), WithRetry(3, time.Millisecond))

	res, err := e.Flush(context.Background(), s.Export(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	require.Len(t, rec.batches, 1)
}

func TestFlushExhaustionKeepsStateAndFingerprint(t *testing.T) {
	s := seededStore(t)
	rec := &recordingExecer{failFor: 10}
	e := NewEngine(nil, WithExecer(rec), WithRetry(3, time.Millisecond))

	_, err := e.Flush(context.Background(), s.Export(), nil)
	require.Error(t, err)
	assert.Equal(t, 3, rec.calls)

	// Fingerprint was not recorded: the next flush writes again.
	rec.failFor = 0
	res, err := e.Flush(context.Background(), s.Export(), nil)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
}

func TestResetFingerprintForcesWrite(t *testing.T) {
	s := seededStore(t)
	rec := &recordingExecer{}
	e := NewEngine(nil, WithExecer(rec), WithRetry(3, time.Millisecond))

	_, err := e.Flush(context.Background(), s.Export(), nil)
	require.NoError(t, err)
	e.ResetFingerprint()

	res, err := e.Flush(context.Background(), s.Export(), nil)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Len(t, rec.batches, 2)
}

func TestTableColumnsCoverEveryForwardTable(t *testing.T) {
	for _, table := range ForwardTables {
		assert.NotEmpty(t, TableColumns(table), table)
	}
	assert.Nil(t, TableColumns("nope"))
}

package backup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmw-rewrite/dmw/internal/store"
	"github.com/dmw-rewrite/dmw/internal/types"
)

func snapshotWithData(t *testing.T) store.Snapshot {
	t.Helper()
	s := store.New()
	s.EnsureSettings(1, "O'Brien's Guild")
	raid := s.CreateRaid(1, 11, 100, "Schattenfeste", 2, time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC))
	s.AddOption(raid.ID, types.KindDay, "2026-02-13 (Fr)")
	s.ToggleVote(raid.ID, types.KindDay, "2026-02-13 (Fr)", 200)
	return s.Export()
}

func TestRenderFormat(t *testing.T) {
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	out := Render(snapshotWithData(t), now)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	assert.Equal(t, "-- DMW Rewrite SQL Backup", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "-- generated_at_berlin: 2026-02-13T13:00:00"), lines[1])
	assert.Equal(t, "BEGIN;", lines[2])
	assert.Equal(t, `DELETE FROM "debug_mirror_cache";`, lines[3], "deletes start in reverse FK order")
	assert.Equal(t, "COMMIT;", lines[len(lines)-1])

	for _, line := range lines {
		assert.False(t, strings.Contains(line, "\t"), "one statement per line, no tabs")
	}
	assert.Contains(t, out, `INSERT INTO "raids" (`)
	assert.Contains(t, out, `'2026-02-01T10:30:00Z'`)
	assert.Contains(t, out, `'O''Brien''s Guild'`, "quotes escaped by doubling")
}

func TestRenderDeleteOrderPrecedesInserts(t *testing.T) {
	out := Render(snapshotWithData(t), time.Now())
	lastDelete := strings.LastIndex(out, "DELETE FROM")
	firstInsert := strings.Index(out, "INSERT INTO")
	require.Greater(t, firstInsert, lastDelete)
}

func TestLiteral(t *testing.T) {
	assert.Equal(t, "NULL", Literal(nil))
	assert.Equal(t, "TRUE", Literal(true))
	assert.Equal(t, "FALSE", Literal(false))
	assert.Equal(t, "42", Literal(int64(42)))
	assert.Equal(t, "'it''s'", Literal("it's"))
	assert.Equal(t, "'2026-02-13T19:50:00Z'", Literal(time.Date(2026, 2, 13, 19, 50, 0, 0, time.UTC)))
}

func TestWriterAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "backup.sql")
	w := NewWriter(path)

	require.NoError(t, w.Write(snapshotWithData(t), time.Now()))
	first, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(first), "DMW Rewrite SQL Backup")

	// Second write replaces the file; no tmp files remain.
	require.NoError(t, w.Write(snapshotWithData(t), time.Now()))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), e.Name())
	}
}

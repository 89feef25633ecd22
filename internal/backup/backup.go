// Package backup writes full-store SQL snapshots to disk. The file format
// is a stable contract: UTF-8 SQL with ASCII-only DDL, one statement per
// line, deletes in FK-safe reverse order, inserts in forward order.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/dmw-rewrite/dmw/internal/persist"
	"github.com/dmw-rewrite/dmw/internal/render"
	"github.com/dmw-rewrite/dmw/internal/store"
)

// Writer serializes snapshots to one backup file. A process-wide mutex plus
// an on-disk lock guard the critical section; the file itself is replaced
// atomically (write to .tmp, then rename).
type Writer struct {
	path string
	mu   sync.Mutex
}

// NewWriter targets the given backup path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Write renders and atomically replaces the backup file.
func (w *Writer) Write(snap store.Snapshot, now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	fileLock := flock.New(w.path + ".lock")
	if err := fileLock.Lock(); err != nil {
		return fmt.Errorf("backup lock: %w", err)
	}
	defer func() { _ = fileLock.Unlock() }()

	content := Render(snap, now)

	tmp := fmt.Sprintf("%s.%s.tmp", w.path, uuid.NewString())
	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("backup dir: %w", err)
	}
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write backup tmp: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace backup: %w", err)
	}
	return nil
}

// Render produces the backup file contents.
func Render(snap store.Snapshot, now time.Time) string {
	var b strings.Builder
	b.WriteString("-- DMW Rewrite SQL Backup\n")
	fmt.Fprintf(&b, "-- generated_at_berlin: %s\n", now.In(render.Berlin()).Format("2006-01-02T15:04:05-07:00"))
	b.WriteString("BEGIN;\n")

	for _, table := range persist.ReverseTables() {
		fmt.Fprintf(&b, "DELETE FROM %q;\n", table)
	}
	for _, table := range persist.ForwardTables {
		cols := persist.TableColumns(table)
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = fmt.Sprintf("%q", c)
		}
		prefix := fmt.Sprintf("INSERT INTO %q (%s) VALUES (", table, strings.Join(quoted, ", "))
		for _, vals := range persist.TableValues(snap, table) {
			lits := make([]string, len(vals))
			for i, v := range vals {
				lits[i] = Literal(v)
			}
			b.WriteString(prefix)
			b.WriteString(strings.Join(lits, ", "))
			b.WriteString(");\n")
		}
	}

	b.WriteString("COMMIT;\n")
	return b.String()
}

// Literal encodes one value as a SQL literal: NULL, TRUE/FALSE, unquoted
// numerics, single-quoted strings with ' doubled, and single-quoted
// ISO-8601 UTC timestamps.
func Literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	case time.Time:
		return "'" + x.UTC().Format("2006-01-02T15:04:05Z") + "'"
	default:
		return fmt.Sprintf("%v", x)
	}
}

package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// DB is the subset of *sqlx.DB the guard needs; tests substitute a fake.
type DB interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Guard discovers and aligns the live schema.
type Guard struct {
	db  DB
	log *slog.Logger
}

// New builds a guard. A nil logger falls back to slog.Default.
func New(db DB, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{db: db, log: log}
}

func (g *Guard) existingTables(ctx context.Context) (map[string]struct{}, error) {
	var names []string
	err := g.db.SelectContext(ctx, &names,
		`SELECT table_name FROM information_schema.tables WHERE table_schema = 'public'`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out, nil
}

type columnInfo struct {
	Name     string `db:"column_name"`
	DataType string `db:"data_type"`
}

func (g *Guard) existingColumns(ctx context.Context, table string) (map[string]string, error) {
	var cols []columnInfo
	err := g.db.SelectContext(ctx, &cols,
		`SELECT column_name, data_type FROM information_schema.columns
		 WHERE table_schema = 'public' AND table_name = $1`, table)
	if err != nil {
		return nil, fmt.Errorf("list columns of %s: %w", table, err)
	}
	out := make(map[string]string, len(cols))
	for _, c := range cols {
		out[c.Name] = strings.ToLower(c.DataType)
	}
	return out, nil
}

// Align runs the full boot-time alignment. Each step is idempotent; running
// Align twice is a no-op the second time.
func (g *Guard) Align(ctx context.Context) error {
	tables, err := g.existingTables(ctx)
	if err != nil {
		return err
	}

	for _, t := range Model {
		if _, ok := tables[t.Name]; !ok {
			g.log.Info("creating table", "table", t.Name)
			if _, err := g.db.ExecContext(ctx, CreateTableSQL(t)); err != nil {
				return fmt.Errorf("create %s: %w", t.Name, err)
			}
			continue
		}
		cols, err := g.existingColumns(ctx, t.Name)
		if err != nil {
			return err
		}
		for _, c := range t.Columns {
			if _, ok := cols[c.Name]; ok {
				continue
			}
			g.log.Info("adding column", "table", t.Name, "column", c.Name)
			if _, err := g.db.ExecContext(ctx, AddColumnSQL(t.Name, c)); err != nil {
				return fmt.Errorf("add %s.%s: %w", t.Name, c.Name, err)
			}
		}
	}

	for _, wc := range WideColumns {
		cols, err := g.existingColumns(ctx, wc.Table)
		if err != nil {
			return err
		}
		dt, ok := cols[wc.Column]
		if !ok || dt == "bigint" {
			continue
		}
		g.log.Info("widening column", "table", wc.Table, "column", wc.Column, "from", dt)
		if _, err := g.db.ExecContext(ctx, WidenSQL(wc.Table, wc.Column)); err != nil {
			return fmt.Errorf("widen %s.%s: %w", wc.Table, wc.Column, err)
		}
	}

	for _, idx := range CriticalIndexes {
		if _, err := g.db.ExecContext(ctx, IndexSQL(idx)); err != nil {
			return fmt.Errorf("index %s: %w", idx.Name, err)
		}
	}

	for _, t := range Model {
		if _, err := g.db.ExecContext(ctx, EnableRLSSQL(t.Name)); err != nil {
			return fmt.Errorf("enable rls on %s: %w", t.Name, err)
		}
	}
	return nil
}

// Validate re-checks tables, columns, and integer widths after alignment.
// All problems are aggregated into one error; any problem is fatal for the
// caller.
func (g *Guard) Validate(ctx context.Context) error {
	tables, err := g.existingTables(ctx)
	if err != nil {
		return err
	}

	var problems []error
	for _, t := range Model {
		if _, ok := tables[t.Name]; !ok {
			problems = append(problems, fmt.Errorf("table %s missing", t.Name))
			continue
		}
		cols, err := g.existingColumns(ctx, t.Name)
		if err != nil {
			return err
		}
		for _, c := range t.Columns {
			if _, ok := cols[c.Name]; !ok {
				problems = append(problems, fmt.Errorf("column %s.%s missing", t.Name, c.Name))
			}
		}
	}
	for _, wc := range WideColumns {
		cols, err := g.existingColumns(ctx, wc.Table)
		if err != nil {
			return err
		}
		if dt, ok := cols[wc.Column]; ok && dt != "bigint" {
			problems = append(problems, fmt.Errorf("column %s.%s is %s, want bigint", wc.Table, wc.Column, dt))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("schema validation failed: %w", errors.Join(problems...))
	}
	return nil
}

package schema

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmw-rewrite/dmw/internal/persist"
)

// fakeDB serves information_schema queries from in-memory maps and records
// every executed DDL statement.
type fakeDB struct {
	tables  map[string]map[string]string // table -> column -> data_type
	execs   []string
	applied bool // when true, ExecContext mutates the fake schema
}

func newFakeDB() *fakeDB {
	return &fakeDB{tables: make(map[string]map[string]string), applied: true}
}

func (f *fakeDB) fullModel() {
	for _, t := range Model {
		cols := make(map[string]string)
		for _, c := range t.Columns {
			cols[c.Name] = dataTypeOf(c.Type)
		}
		f.tables[t.Name] = cols
	}
}

func dataTypeOf(sqlType string) string {
	switch strings.ToUpper(sqlType) {
	case "BIGINT":
		return "bigint"
	case "INTEGER":
		return "integer"
	case "BOOLEAN":
		return "boolean"
	case "TIMESTAMPTZ":
		return "timestamp with time zone"
	default:
		return "text"
	}
}

func (f *fakeDB) SelectContext(_ context.Context, dest any, query string, args ...any) error {
	switch {
	case strings.Contains(query, "information_schema.tables"):
		out := dest.(*[]string)
		for name := range f.tables {
			*out = append(*out, name)
		}
	case strings.Contains(query, "information_schema.columns"):
		out := dest.(*[]columnInfo)
		for name, dt := range f.tables[args[0].(string)] {
			*out = append(*out, columnInfo{Name: name, DataType: dt})
		}
	}
	return nil
}

func (f *fakeDB) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	f.execs = append(f.execs, query)
	if !f.applied {
		return nil, nil
	}
	switch {
	case strings.HasPrefix(query, "CREATE TABLE IF NOT EXISTS"):
		name := between(query, `"`, `"`)
		if t, ok := modelTable(name); ok {
			cols := make(map[string]string)
			for _, c := range t.Columns {
				cols[c.Name] = dataTypeOf(c.Type)
			}
			f.tables[name] = cols
		}
	case strings.Contains(query, "ADD COLUMN IF NOT EXISTS"):
		table := between(query, `"`, `"`)
		rest := query[strings.Index(query, "ADD COLUMN"):]
		col := between(rest, `"`, `"`)
		if t, ok := modelTable(table); ok {
			if c, ok := t.column(col); ok {
				f.tables[table][col] = dataTypeOf(c.Type)
			}
		}
	case strings.Contains(query, "TYPE BIGINT"):
		table := between(query, `"`, `"`)
		rest := query[strings.Index(query, "ALTER COLUMN"):]
		col := between(rest, `"`, `"`)
		f.tables[table][col] = "bigint"
	}
	return nil, nil
}

func between(s, open, close string) string {
	i := strings.Index(s, open)
	if i < 0 {
		return ""
	}
	j := strings.Index(s[i+1:], close)
	if j < 0 {
		return ""
	}
	return s[i+1 : i+1+j]
}

func TestAlignCreatesEverythingFromScratch(t *testing.T) {
	db := newFakeDB()
	g := New(db, nil)

	require.NoError(t, g.Align(context.Background()))
	require.NoError(t, g.Validate(context.Background()))

	creates := 0
	for _, q := range db.execs {
		if strings.HasPrefix(q, "CREATE TABLE IF NOT EXISTS") {
			creates++
		}
	}
	assert.Equal(t, len(Model), creates)
}

func TestAlignAddsMissingDisplayIDColumn(t *testing.T) {
	db := newFakeDB()
	db.fullModel()
	delete(db.tables["raids"], "display_id")

	g := New(db, nil)
	require.Error(t, g.Validate(context.Background()), "validator sees the gap first")

	db.execs = nil
	require.NoError(t, g.Align(context.Background()))

	var addStmt string
	for _, q := range db.execs {
		if strings.Contains(q, "ADD COLUMN") {
			addStmt = q
		}
	}
	assert.Equal(t, `ALTER TABLE "raids" ADD COLUMN IF NOT EXISTS "display_id" INTEGER`, addStmt)
	assert.Contains(t, db.execs, `CREATE UNIQUE INDEX IF NOT EXISTS "raids_guild_display_uq" ON "raids" ("guild_id", "display_id")`)

	require.NoError(t, g.Validate(context.Background()))
}

func TestAlignWidensNarrowIntegers(t *testing.T) {
	db := newFakeDB()
	db.fullModel()
	db.tables["raid_votes"]["user_id"] = "integer"

	g := New(db, nil)
	require.Error(t, g.Validate(context.Background()))
	require.NoError(t, g.Align(context.Background()))
	assert.Contains(t, db.execs, `ALTER TABLE "raid_votes" ALTER COLUMN "user_id" TYPE BIGINT USING "user_id"::BIGINT`)
	require.NoError(t, g.Validate(context.Background()))
}

func TestAlignEnablesRowLevelSecurity(t *testing.T) {
	db := newFakeDB()
	g := New(db, nil)
	require.NoError(t, g.Align(context.Background()))
	assert.Contains(t, db.execs, `ALTER TABLE "raids" ENABLE ROW LEVEL SECURITY`)
}

func TestValidateAggregatesAllProblems(t *testing.T) {
	db := newFakeDB()
	db.fullModel()
	delete(db.tables, "user_levels")
	delete(db.tables["raids"], "display_id")

	err := New(db, nil).Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table user_levels missing")
	assert.Contains(t, err.Error(), "column raids.display_id missing")
}

func TestModelMatchesPersistColumns(t *testing.T) {
	require.Len(t, Model, len(persist.ForwardTables))
	for i, t2 := range Model {
		assert.Equal(t, persist.ForwardTables[i], t2.Name, "model order matches FK order")
		var names []string
		for _, c := range t2.Columns {
			names = append(names, c.Name)
		}
		assert.Equal(t, persist.TableColumns(t2.Name), names, t2.Name)
	}
}

func TestColumnDefNotNullOnlyWithDefault(t *testing.T) {
	assert.Equal(t, `"xp" BIGINT DEFAULT 0 NOT NULL`, columnDef(Column{Name: "xp", Type: "BIGINT", Default: "0"}))
	assert.Equal(t, `"planner_message_id" BIGINT`, columnDef(Column{Name: "planner_message_id", Type: "BIGINT"}))
}

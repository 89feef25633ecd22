// Package schema aligns the relational schema with the declarative model at
// boot: missing tables are created, missing columns added, narrow integers
// widened, critical unique indexes enforced, and row-level security enabled.
// Every step is idempotent. Validate re-checks and fails loudly.
package schema

import (
	"fmt"
	"strings"
)

// Column is one declared column. NOT NULL is only emitted when a default
// exists, so adding the column to a populated table stays safe.
type Column struct {
	Name    string
	Type    string
	Default string // SQL literal; empty means no default
}

// Table is one declared table.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string
}

// Index is one critical unique index.
type Index struct {
	Name    string
	Table   string
	Columns []string
}

// WideColumn names a (table, column) pair that must be BIGINT.
type WideColumn struct {
	Table  string
	Column string
}

// Model is the full declarative schema, in FK-safe creation order matching
// persist.ForwardTables.
var Model = []Table{
	{
		Name: "guild_settings",
		Columns: []Column{
			{Name: "guild_id", Type: "BIGINT"},
			{Name: "name", Type: "TEXT", Default: "''"},
			{Name: "planner_channel_id", Type: "BIGINT", Default: "0"},
			{Name: "participants_channel_id", Type: "BIGINT", Default: "0"},
			{Name: "raidlist_channel_id", Type: "BIGINT", Default: "0"},
			{Name: "raidlist_message_id", Type: "BIGINT"},
			{Name: "default_min_players", Type: "INTEGER", Default: "1"},
			{Name: "templates_enabled", Type: "BOOLEAN", Default: "FALSE"},
			{Name: "template_role_id", Type: "BIGINT", Default: "0"},
		},
		PrimaryKey: []string{"guild_id"},
	},
	{
		Name: "dungeons",
		Columns: []Column{
			{Name: "id", Type: "BIGINT"},
			{Name: "name", Type: "TEXT", Default: "''"},
			{Name: "short_code", Type: "TEXT", Default: "''"},
			{Name: "active", Type: "BOOLEAN", Default: "TRUE"},
			{Name: "sort_order", Type: "INTEGER", Default: "0"},
		},
		PrimaryKey: []string{"id"},
	},
	{
		Name: "raids",
		Columns: []Column{
			{Name: "id", Type: "BIGINT"},
			{Name: "display_id", Type: "INTEGER"},
			{Name: "guild_id", Type: "BIGINT", Default: "0"},
			{Name: "planner_channel_id", Type: "BIGINT", Default: "0"},
			{Name: "creator_id", Type: "BIGINT", Default: "0"},
			{Name: "dungeon", Type: "TEXT", Default: "''"},
			{Name: "status", Type: "TEXT", Default: "'open'"},
			{Name: "created_at", Type: "TIMESTAMPTZ"},
			{Name: "planner_message_id", Type: "BIGINT"},
			{Name: "min_players", Type: "INTEGER", Default: "1"},
			{Name: "temp_role_id", Type: "BIGINT"},
			{Name: "temp_role_created", Type: "BOOLEAN", Default: "FALSE"},
		},
		PrimaryKey: []string{"id"},
	},
	{
		Name: "raid_options",
		Columns: []Column{
			{Name: "raid_id", Type: "BIGINT"},
			{Name: "kind", Type: "TEXT"},
			{Name: "label", Type: "TEXT"},
		},
	},
	{
		Name: "raid_votes",
		Columns: []Column{
			{Name: "raid_id", Type: "BIGINT"},
			{Name: "kind", Type: "TEXT"},
			{Name: "option_label", Type: "TEXT"},
			{Name: "user_id", Type: "BIGINT"},
		},
	},
	{
		Name: "raid_posted_slots",
		Columns: []Column{
			{Name: "raid_id", Type: "BIGINT"},
			{Name: "day", Type: "TEXT"},
			{Name: "time", Type: "TEXT"},
			{Name: "channel_id", Type: "BIGINT", Default: "0"},
			{Name: "message_id", Type: "BIGINT", Default: "0"},
		},
	},
	{
		Name: "raid_templates",
		Columns: []Column{
			{Name: "guild_id", Type: "BIGINT"},
			{Name: "name", Type: "TEXT"},
			{Name: "dungeon", Type: "TEXT", Default: "''"},
			{Name: "days", Type: "TEXT", Default: "''"},
			{Name: "times", Type: "TEXT", Default: "''"},
			{Name: "min_players", Type: "INTEGER", Default: "1"},
		},
		PrimaryKey: []string{"guild_id", "name"},
	},
	{
		Name: "raid_attendance",
		Columns: []Column{
			{Name: "guild_id", Type: "BIGINT"},
			{Name: "display_id", Type: "INTEGER"},
			{Name: "user_id", Type: "BIGINT"},
			{Name: "status", Type: "TEXT", Default: "'pending'"},
			{Name: "marked_by", Type: "BIGINT", Default: "0"},
		},
	},
	{
		Name: "user_levels",
		Columns: []Column{
			{Name: "guild_id", Type: "BIGINT"},
			{Name: "user_id", Type: "BIGINT"},
			{Name: "xp", Type: "BIGINT", Default: "0"},
			{Name: "level", Type: "INTEGER", Default: "0"},
			{Name: "username", Type: "TEXT", Default: "''"},
		},
		PrimaryKey: []string{"guild_id", "user_id"},
	},
	{
		Name: "debug_mirror_cache",
		Columns: []Column{
			{Name: "cache_key", Type: "TEXT"},
			{Name: "kind", Type: "TEXT", Default: "''"},
			{Name: "guild_id", Type: "BIGINT", Default: "0"},
			{Name: "raid_id", Type: "BIGINT"},
			{Name: "message_id", Type: "BIGINT", Default: "0"},
			{Name: "payload_hash", Type: "TEXT", Default: "''"},
			{Name: "timezone_name", Type: "TEXT", Default: "'Europe/Berlin'"},
		},
		PrimaryKey: []string{"cache_key"},
	},
}

// WideColumns lists id-bearing columns that must be BIGINT even when an
// older deployment created them as INTEGER.
var WideColumns = []WideColumn{
	{Table: "guild_settings", Column: "guild_id"},
	{Table: "guild_settings", Column: "planner_channel_id"},
	{Table: "guild_settings", Column: "participants_channel_id"},
	{Table: "guild_settings", Column: "raidlist_channel_id"},
	{Table: "guild_settings", Column: "raidlist_message_id"},
	{Table: "guild_settings", Column: "template_role_id"},
	{Table: "raids", Column: "guild_id"},
	{Table: "raids", Column: "planner_channel_id"},
	{Table: "raids", Column: "creator_id"},
	{Table: "raids", Column: "planner_message_id"},
	{Table: "raids", Column: "temp_role_id"},
	{Table: "raid_votes", Column: "user_id"},
	{Table: "raid_posted_slots", Column: "channel_id"},
	{Table: "raid_posted_slots", Column: "message_id"},
	{Table: "user_levels", Column: "guild_id"},
	{Table: "user_levels", Column: "user_id"},
	{Table: "user_levels", Column: "xp"},
	{Table: "debug_mirror_cache", Column: "guild_id"},
	{Table: "debug_mirror_cache", Column: "message_id"},
}

// CriticalIndexes are the unique indexes the engine's invariants rely on.
var CriticalIndexes = []Index{
	{Name: "raids_guild_display_uq", Table: "raids", Columns: []string{"guild_id", "display_id"}},
	{Name: "raid_options_uq", Table: "raid_options", Columns: []string{"raid_id", "kind", "label"}},
	{Name: "raid_votes_uq", Table: "raid_votes", Columns: []string{"raid_id", "kind", "option_label", "user_id"}},
	{Name: "raid_posted_slots_uq", Table: "raid_posted_slots", Columns: []string{"raid_id", "day", "time"}},
	{Name: "raid_attendance_uq", Table: "raid_attendance", Columns: []string{"guild_id", "display_id", "user_id"}},
}

func (t Table) column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

func modelTable(name string) (Table, bool) {
	for _, t := range Model {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// columnDef compiles one column for CREATE TABLE. NOT NULL only with a
// default available.
func columnDef(c Column) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%q %s", c.Name, c.Type)
	if c.Default != "" {
		fmt.Fprintf(&b, " DEFAULT %s NOT NULL", c.Default)
	}
	return b.String()
}

// CreateTableSQL compiles the full CREATE TABLE IF NOT EXISTS statement.
func CreateTableSQL(t Table) string {
	parts := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		parts = append(parts, columnDef(c))
	}
	if len(t.PrimaryKey) > 0 {
		quoted := make([]string, len(t.PrimaryKey))
		for i, c := range t.PrimaryKey {
			quoted[i] = fmt.Sprintf("%q", c)
		}
		parts = append(parts, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %q (%s)", t.Name, strings.Join(parts, ", "))
}

// AddColumnSQL compiles the idempotent column addition.
func AddColumnSQL(table string, c Column) string {
	stmt := fmt.Sprintf("ALTER TABLE %q ADD COLUMN IF NOT EXISTS %q %s", table, c.Name, c.Type)
	if c.Default != "" {
		stmt += " DEFAULT " + c.Default
	}
	return stmt
}

// WidenSQL compiles the integer-widening alteration.
func WidenSQL(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %q ALTER COLUMN %q TYPE BIGINT USING %q::BIGINT", table, column, column)
}

// IndexSQL compiles the unique-index creation.
func IndexSQL(idx Index) string {
	quoted := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		quoted[i] = fmt.Sprintf("%q", c)
	}
	return fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %q ON %q (%s)",
		idx.Name, idx.Table, strings.Join(quoted, ", "))
}

// EnableRLSSQL compiles the row-level-security toggle.
func EnableRLSSQL(table string) string {
	return fmt.Sprintf("ALTER TABLE %q ENABLE ROW LEVEL SECURITY", table)
}

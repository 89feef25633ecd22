package persist

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/dmw-rewrite/dmw/internal/store"
)

// Fingerprint hashes the canonicalised row multiset of every table. Fields
// within a row are sorted by column name, rows by their canonical byte
// form, so the hash is independent of iteration and insert order. Equal
// fingerprints mean the flush can be skipped outright.
func Fingerprint(snap store.Snapshot) string {
	h := sha256.New()
	for _, table := range ForwardTables {
		cols := TableColumns(table)
		values := TableValues(snap, table)

		rows := make([]string, 0, len(values))
		for _, vals := range values {
			fields := make([]string, len(cols))
			for i, col := range cols {
				fields[i] = col + "=" + canonicalValue(vals[i])
			}
			sort.Strings(fields)
			row := ""
			for i, f := range fields {
				if i > 0 {
					row += "\x1f"
				}
				row += f
			}
			rows = append(rows, row)
		}
		sort.Strings(rows)

		h.Write([]byte(table))
		h.Write([]byte{0x1d})
		for _, row := range rows {
			h.Write([]byte(row))
			h.Write([]byte{0x1e})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func canonicalValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "\\N"
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", x)
	}
}

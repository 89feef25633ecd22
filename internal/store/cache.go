package store

import (
	"sort"

	"github.com/dmw-rewrite/dmw/internal/types"
)

type kindGuildKey struct {
	Kind    string
	GuildID uint64
}

type kindGuildRaidKey struct {
	Kind    string
	GuildID uint64
	RaidID  int64
}

// UpsertDebugCache stores a cache row and maintains the three secondary
// indexes. An existing row under the same key is re-indexed, not leaked.
func (s *Store) UpsertDebugCache(row *types.DebugCacheRow) {
	if old, ok := s.cache[row.CacheKey]; ok {
		s.unindexCache(old)
	}
	if row.TimezoneName == "" {
		row.TimezoneName = "Europe/Berlin"
	}
	s.cache[row.CacheKey] = row
	s.indexCache(row)
}

// DebugCache returns the row under key, or nil.
func (s *Store) DebugCache(key string) *types.DebugCacheRow {
	return s.cache[key]
}

// DeleteDebugCache removes a row and its index entries; reports existence.
func (s *Store) DeleteDebugCache(key string) bool {
	row, ok := s.cache[key]
	if !ok {
		return false
	}
	s.unindexCache(row)
	delete(s.cache, key)
	return true
}

// ListDebugCache returns rows filtered by the narrowest index the arguments
// allow. kind=="" lists everything. guildID==0 skips the guild filter and
// raidID==nil skips the raid filter. Rows come back sorted by cache key so
// listings are stable for tests and for the backup writer.
func (s *Store) ListDebugCache(kind string, guildID uint64, raidID *int64) []*types.DebugCacheRow {
	var keys map[string]struct{}
	switch {
	case kind == "":
		keys = make(map[string]struct{}, len(s.cache))
		for k := range s.cache {
			keys[k] = struct{}{}
		}
	case guildID == 0:
		keys = s.cacheByKind[kind]
	case raidID == nil:
		keys = s.cacheByGuild[kindGuildKey{Kind: kind, GuildID: guildID}]
	default:
		keys = s.cacheByRaid[kindGuildRaidKey{Kind: kind, GuildID: guildID, RaidID: *raidID}]
	}

	out := make([]*types.DebugCacheRow, 0, len(keys))
	for k := range keys {
		out = append(out, s.cache[k])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CacheKey < out[j].CacheKey })
	return out
}

func (s *Store) indexCache(row *types.DebugCacheRow) {
	addKey(s.cacheByKind, row.Kind, row.CacheKey)
	addKey(s.cacheByGuild, kindGuildKey{Kind: row.Kind, GuildID: row.GuildID}, row.CacheKey)
	if row.RaidID != nil {
		addKey(s.cacheByRaid, kindGuildRaidKey{Kind: row.Kind, GuildID: row.GuildID, RaidID: *row.RaidID}, row.CacheKey)
	}
}

func (s *Store) unindexCache(row *types.DebugCacheRow) {
	dropKey(s.cacheByKind, row.Kind, row.CacheKey)
	dropKey(s.cacheByGuild, kindGuildKey{Kind: row.Kind, GuildID: row.GuildID}, row.CacheKey)
	if row.RaidID != nil {
		dropKey(s.cacheByRaid, kindGuildRaidKey{Kind: row.Kind, GuildID: row.GuildID, RaidID: *row.RaidID}, row.CacheKey)
	}
}

func addKey[K comparable](idx map[K]map[string]struct{}, k K, key string) {
	set, ok := idx[k]
	if !ok {
		set = make(map[string]struct{})
		idx[k] = set
	}
	set[key] = struct{}{}
}

func dropKey[K comparable](idx map[K]map[string]struct{}, k K, key string) {
	set, ok := idx[k]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(idx, k)
	}
}

// Package seed holds the bootstrap dungeon catalog. The store seeds these
// rows only when its dungeons table is empty.
package seed

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/dmw-rewrite/dmw/internal/types"
)

//go:embed dungeons.yaml
var dungeonsYAML []byte

type catalogFile struct {
	Dungeons []struct {
		ID        int64  `yaml:"id"`
		Name      string `yaml:"name"`
		ShortCode string `yaml:"short_code"`
		SortOrder int    `yaml:"sort_order"`
	} `yaml:"dungeons"`
}

// Dungeons parses the embedded catalog. All seeded rows start active.
func Dungeons() ([]*types.Dungeon, error) {
	var file catalogFile
	if err := yaml.Unmarshal(dungeonsYAML, &file); err != nil {
		return nil, fmt.Errorf("parse dungeon catalog: %w", err)
	}
	out := make([]*types.Dungeon, 0, len(file.Dungeons))
	for _, d := range file.Dungeons {
		out = append(out, &types.Dungeon{
			ID:        d.ID,
			Name:      d.Name,
			ShortCode: d.ShortCode,
			Active:    true,
			SortOrder: d.SortOrder,
		})
	}
	return out, nil
}

package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDungeonsCatalog(t *testing.T) {
	rows, err := Dungeons()
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	seen := make(map[int64]bool)
	for _, d := range rows {
		assert.NotEmpty(t, d.Name)
		assert.NotEmpty(t, d.ShortCode)
		assert.True(t, d.Active)
		assert.False(t, seen[d.ID], "duplicate id %d", d.ID)
		seen[d.ID] = true
	}
}

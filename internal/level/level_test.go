package level

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXPNeededForLevel(t *testing.T) {
	assert.Equal(t, uint64(0), XPNeededForLevel(0))
	assert.Equal(t, uint64(100), XPNeededForLevel(1))
	assert.Equal(t, uint64(250), XPNeededForLevel(2))
	assert.Equal(t, uint64(450), XPNeededForLevel(3))
}

func TestLevelFromXPRoundTrip(t *testing.T) {
	for l := 0; l <= 200; l++ {
		xp := XPNeededForLevel(l)
		require.Equal(t, l, LevelFromXP(xp), "level %d at exactly needed xp", l)
		if l > 0 {
			require.Equal(t, l-1, LevelFromXP(xp-1), "level %d one xp short", l)
		}
	}
}

func TestLevelFromXPMonotone(t *testing.T) {
	prev := LevelFromXP(0)
	for xp := uint64(0); xp < 100_000; xp += 37 {
		l := LevelFromXP(xp)
		require.GreaterOrEqual(t, l, prev, "xp %d", xp)
		prev = l
	}
}

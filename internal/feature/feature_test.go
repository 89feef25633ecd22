package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := Settings{Flags: FlagLevels | FlagCalendar, MessageXPEvery: 90, LevelupCooldown: 300}
	assert.Equal(t, s, Decode(Encode(s)))
}

func TestEncodeLayout(t *testing.T) {
	v := Encode(Settings{Flags: FlagLevels, MessageXPEvery: 1, LevelupCooldown: 2})
	assert.Equal(t, uint64(1)|uint64(1)<<8|uint64(2)<<24, v)
}

func TestEncodeClampsIntervals(t *testing.T) {
	v := Encode(Settings{MessageXPEvery: 1 << 20, LevelupCooldown: -5})
	got := Decode(v)
	assert.Equal(t, 0xFFFF, got.MessageXPEvery)
	assert.Equal(t, 0, got.LevelupCooldown)
}

func TestWith(t *testing.T) {
	s := Default()
	assert.True(t, s.Has(FlagLevels))
	s = s.With(FlagLevels, false).With(FlagCalendar, true)
	assert.False(t, s.Has(FlagLevels))
	assert.True(t, s.Has(FlagCalendar))
}

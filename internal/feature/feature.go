// Package feature implements the packed per-guild feature settings value.
//
// The on-disk encoding is a single unsigned integer stored in the payload of
// a feature_settings cache row. The bit layout is a stable contract shared
// with existing SQL backups and must not change:
//
//	bits[0..7]   feature flags
//	bits[8..23]  message-XP interval in seconds (16 bit)
//	bits[24..39] level-up message cooldown in seconds (16 bit)
package feature

// Flag bits within bits[0..7].
const (
	FlagLevels uint64 = 1 << iota
	FlagCalendar
	FlagAutoReminder
	FlagLogMirror
)

const (
	flagMask     = 0xFF
	intervalMask = 0xFFFF
)

// Settings is the decoded form of a packed feature-settings value.
type Settings struct {
	Flags           uint64
	MessageXPEvery  int // seconds between XP awards per user
	LevelupCooldown int // seconds between level-up announcements per user
}

// Default returns the settings applied to a guild with no stored value.
func Default() Settings {
	return Settings{
		Flags:           FlagLevels | FlagAutoReminder,
		MessageXPEvery:  60,
		LevelupCooldown: 60,
	}
}

// Decode unpacks a stored value.
func Decode(v uint64) Settings {
	return Settings{
		Flags:           v & flagMask,
		MessageXPEvery:  int((v >> 8) & intervalMask),
		LevelupCooldown: int((v >> 24) & intervalMask),
	}
}

// Encode packs s into its on-disk form. Intervals are clamped to the 16-bit
// fields so a bad value can never bleed into neighbouring bits.
func Encode(s Settings) uint64 {
	xp := clamp16(s.MessageXPEvery)
	cd := clamp16(s.LevelupCooldown)
	return (s.Flags & flagMask) | uint64(xp)<<8 | uint64(cd)<<24
}

// Has reports whether a flag bit is set.
func (s Settings) Has(flag uint64) bool { return s.Flags&flag != 0 }

// With returns a copy of s with the flag set or cleared.
func (s Settings) With(flag uint64, on bool) Settings {
	if on {
		s.Flags |= flag
	} else {
		s.Flags &^= flag
	}
	return s
}

func clamp16(v int) int {
	if v < 0 {
		return 0
	}
	if v > intervalMask {
		return intervalMask
	}
	return v
}

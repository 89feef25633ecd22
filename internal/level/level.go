// Package level holds the XP curve shared by the message-XP handler and the
// level persistence worker.
package level

import "math"

// XPNeededForLevel returns the total XP required to reach level l.
// The curve is 25*l^2 + 75*l, so needed(0)=0, needed(1)=100, needed(2)=250.
func XPNeededForLevel(l int) uint64 {
	if l <= 0 {
		return 0
	}
	n := uint64(l)
	return 25*n*n + 75*n
}

// LevelFromXP is the integer inverse of XPNeededForLevel. The closed form
// uses a float sqrt, so the result is nudged up or down one step to absorb
// rounding at the curve boundaries.
func LevelFromXP(xp uint64) int {
	l := int(math.Floor((-75 + math.Sqrt(5625+100*float64(xp))) / 50))
	if l < 0 {
		l = 0
	}
	for l > 0 && XPNeededForLevel(l) > xp {
		l--
	}
	for XPNeededForLevel(l+1) <= xp {
		l++
	}
	return l
}

package render

import (
	"sort"

	"github.com/dmw-rewrite/dmw/internal/store"
	"github.com/dmw-rewrite/dmw/internal/types"
)

// Slot is one (day, time) pair of a raid.
type Slot struct {
	Day  string
	Time string
}

// Threshold is the participant count a slot needs to qualify.
func Threshold(minPlayers int) int {
	if minPlayers < 1 {
		return 1
	}
	return minPlayers
}

// QualifiedSlots computes, for every (day, time) pair of the raid, the
// intersection of day-voters and time-voters, and returns the pairs whose
// intersection reaches the threshold. User lists are sorted ascending; the
// second result is the sorted union of all qualifying users.
func QualifiedSlots(s *store.Store, raid *types.Raid) (map[Slot][]uint64, []uint64) {
	dayVotes, timeVotes := s.VoteUserSets(raid.ID)
	threshold := Threshold(raid.MinPlayers)

	qualified := make(map[Slot][]uint64)
	unionSet := make(map[uint64]struct{})
	for _, day := range s.Options(raid.ID, types.KindDay) {
		dayUsers := dayVotes[day]
		if len(dayUsers) < threshold {
			continue
		}
		for _, timeLabel := range s.Options(raid.ID, types.KindTime) {
			var both []uint64
			for u := range timeVotes[timeLabel] {
				if _, ok := dayUsers[u]; ok {
					both = append(both, u)
				}
			}
			if len(both) < threshold {
				continue
			}
			sort.Slice(both, func(i, j int) bool { return both[i] < both[j] })
			qualified[Slot{Day: day, Time: timeLabel}] = both
			for _, u := range both {
				unionSet[u] = struct{}{}
			}
		}
	}

	union := make([]uint64, 0, len(unionSet))
	for u := range unionSet {
		union = append(union, u)
	}
	sort.Slice(union, func(i, j int) bool { return union[i] < union[j] })
	return qualified, union
}

// SortSlots orders slots chronologically where the labels parse, falling
// back to lexical order so unparseable labels still list deterministically.
func SortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		ti, oki := SlotStart(slots[i].Day, slots[i].Time)
		tj, okj := SlotStart(slots[j].Day, slots[j].Time)
		if oki && okj && !ti.Equal(tj) {
			return ti.Before(tj)
		}
		if slots[i].Day != slots[j].Day {
			return slots[i].Day < slots[j].Day
		}
		return slots[i].Time < slots[j].Time
	})
}

// SlotList flattens and orders the qualified-slot map.
func SlotList(m map[Slot][]uint64) []Slot {
	out := make([]Slot, 0, len(m))
	for sl := range m {
		out = append(out, sl)
	}
	SortSlots(out)
	return out
}

// CompleteVoters returns the sorted set of users that voted at least one day
// and at least one time, regardless of slot qualification.
func CompleteVoters(s *store.Store, raidID int64) []uint64 {
	dayVotes, timeVotes := s.VoteUserSets(raidID)
	dayUnion := make(map[uint64]struct{})
	for _, set := range dayVotes {
		for u := range set {
			dayUnion[u] = struct{}{}
		}
	}
	var out []uint64
	for _, set := range timeVotes {
		for u := range set {
			if _, ok := dayUnion[u]; ok {
				out = append(out, u)
				delete(dayUnion, u)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Package debounce implements the per-guild refresh scheduler. Bursts of
// dirty marks within the debounce window collapse into a single refresh,
// and a cooldown enforces minimum spacing between refreshes of the same
// guild. One goroutine at a time runs per guild; a mark that arrives while
// a refresh is mid-flight schedules exactly one follow-up run.
package debounce

import (
	"sync"
	"time"
)

// UpdateFunc performs the actual refresh for one guild.
type UpdateFunc func(guildID uint64)

type guildState struct {
	runMu      sync.Mutex // held across update calls
	dirty      bool
	generation uint64
	lastRun    time.Time
	running    bool
}

// Updater coalesces dirty marks per guild. Safe for concurrent use.
type Updater struct {
	mu       sync.Mutex
	guilds   map[uint64]*guildState
	debounce time.Duration
	cooldown time.Duration
	update   UpdateFunc
}

// New creates an updater that calls update at most once per debounce window
// per guild, with at least cooldown between calls.
func New(debounce, cooldown time.Duration, update UpdateFunc) *Updater {
	return &Updater{
		guilds:   make(map[uint64]*guildState),
		debounce: debounce,
		cooldown: cooldown,
		update:   update,
	}
}

func (u *Updater) state(guildID uint64) *guildState {
	st, ok := u.guilds[guildID]
	if !ok {
		st = &guildState{}
		u.guilds[guildID] = st
	}
	return st
}

// MarkDirty notes that the guild needs a refresh. If no debounced task is
// running for the guild, one is spawned with the current generation.
func (u *Updater) MarkDirty(guildID uint64) {
	u.mu.Lock()
	st := u.state(guildID)
	st.dirty = true
	st.generation++
	gen := st.generation
	spawn := !st.running
	if spawn {
		st.running = true
	}
	u.mu.Unlock()

	if spawn {
		go u.run(guildID, st, gen)
	}
}

// run is the debounced task. It re-arms itself (without spawning a new
// goroutine) whenever the generation advances under it.
func (u *Updater) run(guildID uint64, st *guildState, gen uint64) {
	for {
		time.Sleep(u.debounce)

		u.mu.Lock()
		if st.generation != gen {
			// Newer marks arrived during the sleep; restart the window.
			gen = st.generation
			u.mu.Unlock()
			continue
		}
		u.mu.Unlock()

		st.runMu.Lock()
		u.mu.Lock()
		if wait := u.cooldown - time.Since(st.lastRun); st.lastRun != (time.Time{}) && wait > 0 {
			u.mu.Unlock()
			time.Sleep(wait)
			u.mu.Lock()
		}
		if !st.dirty {
			st.running = false
			u.mu.Unlock()
			st.runMu.Unlock()
			return
		}
		st.dirty = false
		before := st.generation
		u.mu.Unlock()

		u.update(guildID)

		u.mu.Lock()
		st.lastRun = time.Now()
		again := st.generation != before && st.dirty
		if !again {
			st.running = false
		}
		u.mu.Unlock()
		st.runMu.Unlock()
		if !again {
			return
		}
		u.mu.Lock()
		gen = st.generation
		u.mu.Unlock()
	}
}

// ForceUpdate bypasses the debounce window: it marks the guild dirty and
// refreshes inline, serialized against any in-flight debounced run.
func (u *Updater) ForceUpdate(guildID uint64) {
	u.mu.Lock()
	st := u.state(guildID)
	st.dirty = true
	st.generation++
	u.mu.Unlock()

	st.runMu.Lock()
	defer st.runMu.Unlock()

	u.mu.Lock()
	if !st.dirty {
		// A debounced run got there first.
		u.mu.Unlock()
		return
	}
	st.dirty = false
	u.mu.Unlock()

	u.update(guildID)

	u.mu.Lock()
	st.lastRun = time.Now()
	u.mu.Unlock()
}

package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBurstCollapsesToOneRefresh(t *testing.T) {
	var calls atomic.Int64
	u := New(100*time.Millisecond, 0, func(uint64) { calls.Add(1) })

	for i := 0; i < 5; i++ {
		u.MarkDirty(1)
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int64(1), calls.Load())
}

func TestMarkDuringRefreshProducesExactlyOneMore(t *testing.T) {
	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})
	var u *Updater
	var once sync.Once
	u = New(30*time.Millisecond, 0, func(uint64) {
		calls.Add(1)
		once.Do(func() {
			close(started)
			<-release
		})
	})

	u.MarkDirty(1)
	<-started
	u.MarkDirty(1) // mid-flight mark
	close(release)

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int64(2), calls.Load())
}

func TestCooldownSpacesRefreshes(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	u := New(20*time.Millisecond, 150*time.Millisecond, func(uint64) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
	})

	u.MarkDirty(1)
	time.Sleep(60 * time.Millisecond)
	u.MarkDirty(1)
	time.Sleep(500 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, stamps, 2)
	assert.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 140*time.Millisecond)
}

func TestGuildsAreIndependent(t *testing.T) {
	var calls sync.Map
	u := New(30*time.Millisecond, 0, func(g uint64) {
		v, _ := calls.LoadOrStore(g, new(atomic.Int64))
		v.(*atomic.Int64).Add(1)
	})

	u.MarkDirty(1)
	u.MarkDirty(2)
	time.Sleep(200 * time.Millisecond)

	for _, g := range []uint64{1, 2} {
		v, ok := calls.Load(g)
		require.True(t, ok, "guild %d refreshed", g)
		assert.Equal(t, int64(1), v.(*atomic.Int64).Load())
	}
}

func TestForceUpdateBypassesDebounce(t *testing.T) {
	var calls atomic.Int64
	u := New(time.Hour, 0, func(uint64) { calls.Add(1) })

	u.ForceUpdate(1)
	assert.Equal(t, int64(1), calls.Load())
}

package cooldown

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTimer struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer

	// leakyStop makes Stop a no-op, as if the timer had already started firing.
	leakyStop bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	ft := &fakeTimer{at: c.now.Add(d), f: f}
	c.timers = append(c.timers, ft)
	return &fakeTimerHandle{clock: c, t: ft}
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, ft := range c.timers {
		if !ft.stopped && !ft.fired && !ft.at.After(c.now) {
			ft.fired = true
			due = append(due, ft)
		}
	}
	c.mu.Unlock()

	for _, ft := range due {
		ft.f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ft := range c.timers {
		if !ft.stopped && !ft.fired {
			n++
		}
	}
	return n
}

type fakeTimerHandle struct {
	clock *fakeClock
	t     *fakeTimer
}

func (h *fakeTimerHandle) Stop() bool {
	h.clock.mu.Lock()
	defer h.clock.mu.Unlock()
	if h.clock.leakyStop || h.t.fired || h.t.stopped {
		return false
	}
	h.t.stopped = true
	return true
}

func newTestTracker(t *testing.T) (*Tracker, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	return New(WithClock(clock)), clock
}

func TestCheckNeverSet(t *testing.T) {
	tr, _ := newTestTracker(t)

	onCooldown, remaining := tr.Check("music-skip", "user1")
	assert.False(t, onCooldown)
	assert.Zero(t, remaining)
	assert.Zero(t, tr.RemainingSeconds("music-skip", "user1"))
	assert.Equal(t, Stats{}, tr.Stats())
}

func TestSetThenCheck(t *testing.T) {
	tr, clock := newTestTracker(t)

	tr.Set("music-skip", "user1", 3000*time.Millisecond)

	onCooldown, remaining := tr.Check("music-skip", "user1")
	require.True(t, onCooldown)
	assert.Equal(t, 3*time.Second, remaining)

	onCooldown, remaining = tr.Check("music-skip", "user2")
	assert.False(t, onCooldown)
	assert.Zero(t, remaining)

	clock.Advance(1200 * time.Millisecond)
	onCooldown, remaining = tr.Check("music-skip", "user1")
	require.True(t, onCooldown)
	assert.Equal(t, 1800*time.Millisecond, remaining)

	clock.Advance(1800 * time.Millisecond)
	onCooldown, remaining = tr.Check("music-skip", "user1")
	assert.False(t, onCooldown)
	assert.Zero(t, remaining)
	assert.Equal(t, 0, tr.Stats().TotalActiveEntries)
}

func TestSetOverwritesExistingEntry(t *testing.T) {
	tr, clock := newTestTracker(t)

	tr.Set("music-skip", "user1", 5000*time.Millisecond)
	clock.Advance(1000 * time.Millisecond)
	tr.Set("music-skip", "user1", 2000*time.Millisecond)

	_, remaining := tr.Check("music-skip", "user1")
	assert.Equal(t, 2*time.Second, remaining)

	clock.Advance(2000 * time.Millisecond)
	onCooldown, _ := tr.Check("music-skip", "user1")
	assert.False(t, onCooldown, "second Set should replace the first window")
}

func TestStaleTimerKeepsReplacementEntry(t *testing.T) {
	tr, clock := newTestTracker(t)
	clock.leakyStop = true

	tr.Set("music-skip", "user1", 2*time.Second)
	clock.Advance(time.Second)
	tr.Set("music-skip", "user1", 5*time.Second)

	// The first timer fires here even though it was stopped.
	clock.Advance(time.Second)

	onCooldown, remaining := tr.Check("music-skip", "user1")
	require.True(t, onCooldown)
	assert.Equal(t, 4*time.Second, remaining)
	assert.Equal(t, 1, tr.Stats().TotalActiveEntries)
}

func TestTimerRemovesUnqueriedEntries(t *testing.T) {
	tr, clock := newTestTracker(t)

	tr.Set("ping", "user1", time.Second)
	tr.Set("ping", "user2", 3*time.Second)
	assert.Equal(t, 2, tr.Stats().TotalActiveEntries)

	clock.Advance(time.Second)
	assert.Equal(t, 1, tr.Stats().TotalActiveEntries)

	clock.Advance(2 * time.Second)
	stats := tr.Stats()
	assert.Equal(t, 0, stats.TotalActiveEntries)
	assert.Equal(t, 1, stats.TrackedActions, "inner map stays even when empty")
}

func TestNonPositiveDuration(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		t.Run(d.String(), func(t *testing.T) {
			tr, clock := newTestTracker(t)

			tr.Set("ping", "user1", 10*time.Second)
			tr.Set("ping", "user1", d)

			onCooldown, remaining := tr.Check("ping", "user1")
			assert.False(t, onCooldown)
			assert.Zero(t, remaining)
			assert.Zero(t, clock.pending(), "old timer should be stopped")
		})
	}

	t.Run("unknown action is not tracked", func(t *testing.T) {
		tr, _ := newTestTracker(t)

		tr.Set("ping", "user1", 0)

		assert.Equal(t, Stats{}, tr.Stats())
	})
}

func TestSetDefault(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.SetDefault("ping", "user1")
	_, remaining := tr.Check("ping", "user1")
	assert.Equal(t, DefaultDuration, remaining)

	custom := New(WithClock(newFakeClock()), WithDefaultDuration(10*time.Second))
	custom.SetDefault("ping", "user1")
	_, remaining = custom.Check("ping", "user1")
	assert.Equal(t, 10*time.Second, remaining)
}

func TestRemainingSecondsRoundsUp(t *testing.T) {
	tests := []struct {
		remaining time.Duration
		want      int64
	}{
		{remaining: 2001 * time.Millisecond, want: 3},
		{remaining: 2000 * time.Millisecond, want: 2},
		{remaining: 1999 * time.Millisecond, want: 2},
		{remaining: time.Millisecond, want: 1},
		{remaining: time.Nanosecond, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.remaining.String(), func(t *testing.T) {
			tr, _ := newTestTracker(t)
			tr.Set("ping", "user1", tt.remaining)
			assert.Equal(t, tt.want, tr.RemainingSeconds("ping", "user1"))
		})
	}
}

func TestCeilSeconds(t *testing.T) {
	assert.Equal(t, int64(0), CeilSeconds(0))
	assert.Equal(t, int64(0), CeilSeconds(-time.Second))
	assert.Equal(t, int64(1), CeilSeconds(time.Nanosecond))
	assert.Equal(t, int64(5), CeilSeconds(4500*time.Millisecond))
}

func TestEntry(t *testing.T) {
	tr, clock := newTestTracker(t)

	_, ok := tr.Entry("ping", "user1")
	assert.False(t, ok)

	tr.Set("ping", "user1", 4*time.Second)
	e, ok := tr.Entry("ping", "user1")
	require.True(t, ok)
	assert.Equal(t, 4*time.Second, e.Duration)
	assert.Equal(t, clock.Now().Add(4*time.Second), e.ExpiresAt)
}

func TestPairsAreIndependent(t *testing.T) {
	tr, _ := newTestTracker(t)

	tr.Set("ping", "user1", 5*time.Second)
	tr.Set("ping", "user2", 5*time.Second)
	tr.Set("welcome", "user1", 5*time.Second)

	tr.Set("ping", "user2", 0)

	onCooldown, _ := tr.Check("ping", "user1")
	assert.True(t, onCooldown)
	onCooldown, _ = tr.Check("welcome", "user1")
	assert.True(t, onCooldown)
	onCooldown, _ = tr.Check("ping", "user2")
	assert.False(t, onCooldown)
}

func TestClearActor(t *testing.T) {
	tr, clock := newTestTracker(t)

	tr.Set("ping", "user1", 5*time.Second)
	tr.Set("welcome", "user1", 5*time.Second)
	tr.Set("ping", "user2", 5*time.Second)

	tr.ClearActor("user1")

	onCooldown, _ := tr.Check("ping", "user1")
	assert.False(t, onCooldown)
	onCooldown, _ = tr.Check("welcome", "user1")
	assert.False(t, onCooldown)
	onCooldown, _ = tr.Check("ping", "user2")
	assert.True(t, onCooldown)
	assert.Equal(t, 1, clock.pending())

	assert.NotPanics(t, func() { tr.ClearActor("nobody") })
}

func TestClearAction(t *testing.T) {
	tr, clock := newTestTracker(t)

	tr.Set("ping", "user1", 5*time.Second)
	tr.Set("ping", "user2", 5*time.Second)
	tr.Set("welcome", "user1", 5*time.Second)

	tr.ClearAction("ping")

	onCooldown, _ := tr.Check("ping", "user1")
	assert.False(t, onCooldown)
	onCooldown, _ = tr.Check("ping", "user2")
	assert.False(t, onCooldown)
	onCooldown, _ = tr.Check("welcome", "user1")
	assert.True(t, onCooldown)
	assert.Equal(t, 1, clock.pending())

	assert.NotPanics(t, func() { tr.ClearAction("never-used") })
}

func TestClearAll(t *testing.T) {
	tr, clock := newTestTracker(t)

	tr.Set("ping", "user1", 5*time.Second)
	tr.Set("welcome", "user2", 5*time.Second)

	tr.ClearAll()

	assert.Equal(t, Stats{}, tr.Stats())
	assert.Zero(t, clock.pending())
	onCooldown, _ := tr.Check("ping", "user1")
	assert.False(t, onCooldown)
}

func TestStats(t *testing.T) {
	tr, clock := newTestTracker(t)

	tr.Set("ping", "user1", time.Second)
	tr.Set("ping", "user2", time.Second)
	tr.Set("ping", "user3", time.Second)
	tr.Set("welcome", "user1", time.Second)

	stats := tr.Stats()
	assert.Equal(t, 2, stats.TrackedActions)
	assert.Equal(t, 4, stats.TotalActiveEntries)
	assert.InDelta(t, 200.0, stats.LoadFactorPercent, 0.001)

	clock.leakyStop = true
	clock.mu.Lock()
	clock.now = clock.now.Add(time.Hour)
	clock.mu.Unlock()

	// No timers ran and Stats never cleans up, so stale entries are still counted.
	assert.Equal(t, 4, tr.Stats().TotalActiveEntries)
}

func TestEmptyKeysPanic(t *testing.T) {
	tr, _ := newTestTracker(t)

	assert.PanicsWithValue(t, "cooldown: empty action key", func() { tr.Check("", "user1") })
	assert.PanicsWithValue(t, "cooldown: empty actor key", func() { tr.Check("ping", "") })
	assert.PanicsWithValue(t, "cooldown: empty action key", func() { tr.Set("", "user1", time.Second) })
	assert.PanicsWithValue(t, "cooldown: empty actor key", func() { tr.ClearActor("") })
	assert.PanicsWithValue(t, "cooldown: empty action key", func() { tr.ClearAction("") })
}

func TestRealClockExpiry(t *testing.T) {
	tr := New()

	tr.Set("ping", "user1", 20*time.Millisecond)
	onCooldown, remaining := tr.Check("ping", "user1")
	require.True(t, onCooldown)
	assert.LessOrEqual(t, remaining, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		return tr.Stats().TotalActiveEntries == 0
	}, time.Second, 5*time.Millisecond, "timer should drop the entry without a Check")
}

func TestConcurrentAccess(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup

	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actor := fmt.Sprintf("user-%d", i)
			for j := range 50 {
				action := fmt.Sprintf("cmd-%d", j%5)
				if onCooldown, _ := tr.Check(action, actor); !onCooldown {
					tr.Set(action, actor, time.Minute)
				}
				tr.RemainingSeconds(action, actor)
				tr.Stats()
			}
		}()
	}
	wg.Wait()

	stats := tr.Stats()
	assert.Equal(t, 5, stats.TrackedActions)
	assert.Equal(t, 50, stats.TotalActiveEntries)
	tr.ClearAll()
}

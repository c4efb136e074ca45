// Package cooldown tracks per-action, per-actor cooldown windows.
//
// A Tracker answers whether an actor may run an action again and for how long it
// still has to wait. Entries expire lazily on the next read and eagerly through a
// per-entry timer; the timer only ever removes the entry it was scheduled for.
//
// Empty action or actor keys are a caller bug and make every method panic.
package cooldown

import (
	"sync"
	"time"
)

// DefaultDuration is used by SetDefault unless WithDefaultDuration overrides it.
const DefaultDuration = 3 * time.Second

// Entry is a snapshot of one live cooldown.
type Entry struct {
	ExpiresAt time.Time
	Duration  time.Duration
}

// Stats is a diagnostic snapshot. Entries that expired but have not been
// cleaned up yet are still counted.
type Stats struct {
	TrackedActions     int     `json:"tracked_actions"`
	TotalActiveEntries int     `json:"total_active_entries"`
	LoadFactorPercent  float64 `json:"load_factor_percent"`
}

type entry struct {
	Entry
	timer Timer
}

type Tracker struct {
	mu              sync.Mutex
	clock           Clock
	defaultDuration time.Duration
	actions         map[string]map[string]*entry
}

type Option func(*Tracker)

func WithClock(c Clock) Option {
	return func(t *Tracker) {
		if c != nil {
			t.clock = c
		}
	}
}

func WithDefaultDuration(d time.Duration) Option {
	return func(t *Tracker) {
		t.defaultDuration = d
	}
}

func New(opts ...Option) *Tracker {
	t := &Tracker{
		clock:           realClock{},
		defaultDuration: DefaultDuration,
		actions:         make(map[string]map[string]*entry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Check reports whether actor is on cooldown for action and how long remains.
func (t *Tracker) Check(action, actor string) (bool, time.Duration) {
	mustKey("action", action)
	mustKey("actor", actor)

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.actions[action][actor]
	if !ok {
		return false, 0
	}

	remaining := e.ExpiresAt.Sub(t.clock.Now())
	if remaining <= 0 {
		t.removeLocked(action, actor, e)
		return false, 0
	}
	return true, remaining
}

// Set starts a cooldown of d for actor on action, replacing any existing one.
// A non-positive d leaves the actor immediately eligible.
func (t *Tracker) Set(action, actor string, d time.Duration) {
	mustKey("action", action)
	mustKey("actor", actor)

	t.mu.Lock()
	defer t.mu.Unlock()

	actors := t.actions[action]
	if old, ok := actors[actor]; ok {
		t.removeLocked(action, actor, old)
	}
	if d <= 0 {
		return
	}
	if actors == nil {
		actors = make(map[string]*entry)
		t.actions[action] = actors
	}

	e := &entry{Entry: Entry{ExpiresAt: t.clock.Now().Add(d), Duration: d}}
	actors[actor] = e
	e.timer = t.clock.AfterFunc(d, func() { t.expire(action, actor, e) })
}

func (t *Tracker) SetDefault(action, actor string) {
	t.Set(action, actor, t.defaultDuration)
}

// RemainingSeconds is Check rounded up to whole seconds, so a blocked actor is
// never told to wait 0 seconds.
func (t *Tracker) RemainingSeconds(action, actor string) int64 {
	onCooldown, remaining := t.Check(action, actor)
	if !onCooldown {
		return 0
	}
	return CeilSeconds(remaining)
}

// CeilSeconds rounds d up to whole seconds.
func CeilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	secs := int64(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// Entry returns the live entry for action and actor, if any.
func (t *Tracker) Entry(action, actor string) (Entry, bool) {
	mustKey("action", action)
	mustKey("actor", actor)

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.actions[action][actor]
	if !ok {
		return Entry{}, false
	}
	if !e.ExpiresAt.After(t.clock.Now()) {
		t.removeLocked(action, actor, e)
		return Entry{}, false
	}
	return e.Entry, true
}

func (t *Tracker) ClearActor(actor string) {
	mustKey("actor", actor)

	t.mu.Lock()
	defer t.mu.Unlock()

	for action, actors := range t.actions {
		if e, ok := actors[actor]; ok {
			t.removeLocked(action, actor, e)
		}
	}
}

func (t *Tracker) ClearAction(action string) {
	mustKey("action", action)

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, e := range t.actions[action] {
		e.timer.Stop()
	}
	delete(t.actions, action)
}

func (t *Tracker) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, actors := range t.actions {
		for _, e := range actors {
			e.timer.Stop()
		}
	}
	t.actions = make(map[string]map[string]*entry)
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Stats{TrackedActions: len(t.actions)}
	for _, actors := range t.actions {
		s.TotalActiveEntries += len(actors)
	}
	if s.TrackedActions > 0 {
		s.LoadFactorPercent = float64(s.TotalActiveEntries) / float64(s.TrackedActions) * 100
	}
	return s
}

// expire runs from the entry's timer. The entry may already have been replaced
// or cleared, in which case nothing is removed.
func (t *Tracker) expire(action, actor string, e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.actions[action][actor]; ok && cur == e {
		delete(t.actions[action], actor)
	}
}

func (t *Tracker) removeLocked(action, actor string, e *entry) {
	if e.timer != nil {
		e.timer.Stop()
	}
	if cur, ok := t.actions[action][actor]; ok && cur == e {
		delete(t.actions[action], actor)
	}
}

func mustKey(kind, key string) {
	if key == "" {
		panic("cooldown: empty " + kind + " key")
	}
}

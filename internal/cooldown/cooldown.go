// Package cooldown rate-limits an action to one success per window,
// measured from the start of the previous successful run.
package cooldown

import (
	"errors"
	"sync"
	"time"
)

// ErrCoolingDown is returned by Do while the previous success is still
// inside the window.
var ErrCoolingDown = errors.New("cooldown active")

type State int

const (
	Ready State = iota
	CoolingDown
)

func (s State) String() string {
	if s == CoolingDown {
		return "cooling_down"
	}
	return "ready"
}

// Gate holds the timestamp of the last successful action.
// The zero time means the action has never run.
type Gate struct {
	mu     sync.Mutex
	window time.Duration
	last   time.Time
	now    func() time.Time
}

func New(window time.Duration) *Gate {
	return NewWithClock(window, time.Now)
}

func NewWithClock(window time.Duration, now func() time.Time) *Gate {
	return &Gate{window: window, now: now}
}

// Do runs fn unless the gate is cooling down. fn receives the start time and
// reports whether the run counts as a success; only then is the window reset.
// The gate stays locked while fn runs.
func (g *Gate) Do(fn func(start time.Time) (bool, error)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	start := g.now()
	if g.coolingLocked(start) {
		return ErrCoolingDown
	}
	ok, err := fn(start)
	if ok {
		g.last = start
	}
	return err
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.coolingLocked(g.now()) {
		return CoolingDown
	}
	return Ready
}

// Remaining is how long until the gate is Ready again.
func (g *Gate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if !g.coolingLocked(now) {
		return 0
	}
	return g.window - now.Sub(g.last)
}

func (g *Gate) coolingLocked(now time.Time) bool {
	return !g.last.IsZero() && now.Sub(g.last) < g.window
}

// Package lockout is the device-local login lockout. Deleting the state file
// lifts it; the server enforces its own failure limit.
package lockout

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MaxAttempts failed logins in a row lock the device
const MaxAttempts = 3

// Durations is the escalating lock table, indexed by level
var Durations = []time.Duration{
	30 * time.Second,
	60 * time.Second,
	120 * time.Second,
	300 * time.Second,
	900 * time.Second,
}

// State is the persisted lockout state of a device
type State struct {
	Attempts    int        `yaml:"attempts"`
	LockedUntil *time.Time `yaml:"locked_until,omitempty"`
	Level       int        `yaml:"level"`
}

// Store persists State between runs
type Store interface {
	Load() (State, error)
	Save(State) error
}

// LockedError is returned while the device is locked
type LockedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("device locked for %s", e.Remaining.Round(time.Second))
}

// Guard is the lockout state machine of one device
type Guard struct {
	mu    sync.Mutex
	store Store
	state State
	now   func() time.Time
}

// NewGuard loads the device state from store; a nil store keeps state in memory
func NewGuard(store Store) (*Guard, error) {
	g := &Guard{store: store, now: time.Now}
	if store != nil {
		st, err := store.Load()
		if err != nil {
			return nil, fmt.Errorf("load lockout state: %w", err)
		}
		g.state = st
	}
	if g.state.Level < 0 || g.state.Level >= len(Durations) {
		g.state.Level = len(Durations) - 1
	}
	return g, nil
}

// State returns a copy of the current state
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Check returns a *LockedError while the device is locked. A lock that ran
// out is cleared here, keeping the level.
func (g *Guard) Check() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if remaining := g.remaining(); remaining > 0 {
		return &LockedError{Until: *g.state.LockedUntil, Remaining: remaining}
	}
	return g.expire()
}

// Remaining is the time left on the current lock, zero when unlocked
func (g *Guard) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining()
}

func (g *Guard) remaining() time.Duration {
	if g.state.LockedUntil == nil {
		return 0
	}
	if d := g.state.LockedUntil.Sub(g.now()); d > 0 {
		return d
	}
	return 0
}

// expire ends a lock that ran out; attempts restart, the level stays
func (g *Guard) expire() error {
	if g.state.LockedUntil == nil {
		return nil
	}
	g.state.LockedUntil = nil
	g.state.Attempts = 0
	return g.save()
}

// RecordFailure counts a failed credential check. The third failure in a row
// locks the device and returns the *LockedError.
func (g *Guard) RecordFailure() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if remaining := g.remaining(); remaining > 0 {
		return &LockedError{Until: *g.state.LockedUntil, Remaining: remaining}
	}
	if err := g.expire(); err != nil {
		return err
	}

	g.state.Attempts++
	if g.state.Attempts < MaxAttempts {
		return g.save()
	}

	d := Durations[g.state.Level]
	until := g.now().Add(d)
	g.state.LockedUntil = &until
	g.state.Attempts = 0
	if g.state.Level < len(Durations)-1 {
		g.state.Level++
	}
	if err := g.save(); err != nil {
		return err
	}
	return &LockedError{Until: until, Remaining: d}
}

// RecordSuccess fully resets the device state
func (g *Guard) RecordSuccess() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = State{}
	return g.save()
}

// Countdown calls tick with the remaining lock time every second until the
// lock runs out or ctx is done. The expired lock is cleared before returning.
func (g *Guard) Countdown(ctx context.Context, tick func(remaining time.Duration)) error {
	return g.countdown(ctx, time.Second, tick)
}

func (g *Guard) countdown(ctx context.Context, every time.Duration, tick func(time.Duration)) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		remaining := g.Remaining()
		if remaining <= 0 {
			return g.Check()
		}
		if tick != nil {
			tick(remaining)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *Guard) save() error {
	if g.store == nil {
		return nil
	}
	if err := g.store.Save(g.state); err != nil {
		return fmt.Errorf("save lockout state: %w", err)
	}
	return nil
}

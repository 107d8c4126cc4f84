// Package directory maps opaque signal ids to live signals.
//
// Lifetimes are explicit. A Pinned signal lives until Remove or Clear. An
// Ephemeral signal is reference counted: each transport connection Acquires
// it and calls the returned release func on disconnect. Releasing the last
// holder starts the idle clock, and Sweep removes Ephemeral signals that
// stayed unheld for longer than the idle timeout. A client that reconnects
// inside that window resumes from its checkpoint.
package directory

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/roach88/sigsync/internal/signal"
)

var (
	// ErrNotFound is returned when no signal is registered under an id.
	ErrNotFound = errors.New("signal not found")

	// ErrAlreadyRegistered is returned when registering a duplicate id.
	ErrAlreadyRegistered = errors.New("signal already registered")

	// ErrNilSignal is returned when registering a nil signal.
	ErrNilSignal = errors.New("signal must not be nil")
)

// Ownership decides how long a registered signal lives.
type Ownership int

const (
	// Pinned signals stay registered until removed explicitly.
	Pinned Ownership = iota
	// Ephemeral signals are removed by Sweep once unheld for the idle timeout.
	Ephemeral
)

// String returns "pinned" or "ephemeral".
func (o Ownership) String() string {
	if o == Ephemeral {
		return "ephemeral"
	}
	return "pinned"
}

// ChangeHook is called with the directory lock held whenever a signal is
// registered (registered=true) or removed (registered=false).
type ChangeHook func(id string, registered bool)

type slot struct {
	state     *signal.State
	ownership Ownership
	refs      int
	idleSince time.Time
}

// Directory is a process-wide, synchronized map from signal id to State.
//
// Thread Safety: every operation takes the one directory lock. The lock is
// never held while waiting on a signal's own lock except in Close paths,
// and signals never call back into the directory.
type Directory struct {
	mu    sync.Mutex
	slots map[string]*slot
	hooks []ChangeHook
	now   func() time.Time
}

// Option configures a Directory.
type Option func(*Directory)

// WithClock overrides the time source used for idle tracking.
func WithClock(now func() time.Time) Option {
	return func(d *Directory) {
		d.now = now
	}
}

// WithChangeHook adds a registration observer.
func WithChangeHook(h ChangeHook) Option {
	return func(d *Directory) {
		d.hooks = append(d.hooks, h)
	}
}

// New creates an empty directory.
func New(opts ...Option) *Directory {
	d := &Directory{
		slots: make(map[string]*slot),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Register adds s under id.
//
// Returns ErrNilSignal or a wrapped ErrAlreadyRegistered.
func (d *Directory) Register(id string, s *signal.State, own Ownership) error {
	if s == nil {
		return ErrNilSignal
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.slots[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, id)
	}
	d.slots[id] = &slot{state: s, ownership: own, idleSince: d.now()}
	d.notify(id, true)
	return nil
}

// Get returns the signal registered under id without taking a reference.
func (d *Directory) Get(id string) (*signal.State, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sl, ok := d.slots[id]
	if !ok {
		return nil, false
	}
	return sl.state, true
}

// Acquire returns the signal under id and a release func that must be called
// exactly once when the holder is done. Release is idempotent.
//
// Returns a wrapped ErrNotFound when id is not registered.
func (d *Directory) Acquire(id string) (*signal.State, func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sl, ok := d.slots[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sl.refs++

	var once sync.Once
	release := func() {
		once.Do(func() { d.release(id, sl) })
	}
	return sl.state, release, nil
}

func (d *Directory) release(id string, sl *slot) {
	d.mu.Lock()
	defer d.mu.Unlock()

	sl.refs--
	if sl.refs == 0 && d.slots[id] == sl {
		sl.idleSince = d.now()
	}
}

// Refs returns how many holders currently have id acquired.
func (d *Directory) Refs(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if sl, ok := d.slots[id]; ok {
		return sl.refs
	}
	return 0
}

// Remove unregisters id and closes its signal, ending every subscription.
// Reports whether anything was removed.
func (d *Directory) Remove(id string) bool {
	d.mu.Lock()
	sl, ok := d.slots[id]
	if ok {
		delete(d.slots, id)
		d.notify(id, false)
	}
	d.mu.Unlock()

	if ok {
		sl.state.Close()
	}
	return ok
}

// Clear removes and closes every signal.
func (d *Directory) Clear() {
	d.mu.Lock()
	old := d.slots
	d.slots = make(map[string]*slot)
	for id := range old {
		d.notify(id, false)
	}
	d.mu.Unlock()

	for _, sl := range old {
		sl.state.Close()
	}
}

// Sweep removes Ephemeral signals nobody holds that have been idle for at
// least idle. Returns the removed ids, sorted.
func (d *Directory) Sweep(idle time.Duration) []string {
	d.mu.Lock()
	cutoff := d.now().Add(-idle)
	var removed []*slot
	var ids []string
	for id, sl := range d.slots {
		if sl.ownership == Ephemeral && sl.refs == 0 && !sl.idleSince.After(cutoff) {
			delete(d.slots, id)
			d.notify(id, false)
			removed = append(removed, sl)
			ids = append(ids, id)
		}
	}
	d.mu.Unlock()

	for _, sl := range removed {
		sl.state.Close()
	}
	slices.Sort(ids)
	return ids
}

// Contains reports whether id is registered.
func (d *Directory) Contains(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.slots[id]
	return ok
}

// IsEmpty reports whether no signals are registered.
func (d *Directory) IsEmpty() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.slots) == 0
}

// Len returns the number of registered signals.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.slots)
}

// IDs returns the registered ids, sorted.
func (d *Directory) IDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.slots))
	for id := range d.slots {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// notify runs change hooks. Caller holds d.mu.
func (d *Directory) notify(id string, registered bool) {
	for _, h := range d.hooks {
		h(id, registered)
	}
}

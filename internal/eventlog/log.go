package eventlog

import (
	"context"
	"errors"
	"sync"
)

// DefaultCapacity is the number of events a log retains for checkpoint
// replay. Appending past it evicts the oldest event.
const DefaultCapacity = 100

// DefaultBuffer is the per-subscriber live buffer, on top of whatever the
// catch-up needs.
const DefaultBuffer = 64

// ErrClosed is returned by Submit after the log has been closed.
var ErrClosed = errors.New("eventlog: log closed")

// Processor validates and applies events against the state a log guards.
//
// Process returns nil both when the event changed state and when it was a
// benign no-op; a non-nil error is fatal and keeps the event out of the log.
// Snapshot must return a synthetic event describing the complete current
// state. Both are called with the log's lock held and must not block.
type Processor[E any] interface {
	Process(e E) error
	Snapshot() E
}

// Hooks observe the log from inside its critical section.
// Every hook is optional. Hooks must only touch memory and must not call back
// into the log.
type Hooks[E any] struct {
	// OnAppend runs after an event is appended, before fan-out.
	OnAppend func(seq int64, e E)
	// OnEvict runs when capacity pushes the oldest event out.
	OnEvict func(e E)
	// OnReject runs when Process returns an error.
	OnReject func(e E, err error)
	// OnSnapshot runs when a subscriber is bootstrapped from a snapshot.
	OnSnapshot func()
	// OnSubscribe runs after a subscriber registers, with the live count.
	OnSubscribe func(live int)
	// OnLeave runs when a subscriber leaves, with the live count.
	// dropped is true when it was removed for a failed delivery.
	OnLeave func(live int, dropped bool)
}

// ChainHooks returns hooks that call each of hs in order.
func ChainHooks[E any](hs ...Hooks[E]) Hooks[E] {
	var out Hooks[E]
	for _, h := range hs {
		out.OnAppend = chain2(out.OnAppend, h.OnAppend)
		out.OnEvict = chain1(out.OnEvict, h.OnEvict)
		out.OnReject = chain2(out.OnReject, h.OnReject)
		out.OnSnapshot = chain0(out.OnSnapshot, h.OnSnapshot)
		out.OnSubscribe = chain1(out.OnSubscribe, h.OnSubscribe)
		out.OnLeave = chain2(out.OnLeave, h.OnLeave)
	}
	return out
}

func chain0(a, b func()) func() {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func() { a(); b() }
}

func chain1[A any](a, b func(A)) func(A) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x A) { a(x); b(x) }
}

func chain2[A, B any](a, b func(A, B)) func(A, B) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(x A, y B) { a(x, y); b(x, y) }
}

// Option configures a Log.
type Option func(*settings)

type settings struct {
	capacity int
	buffer   int
	startSeq int64
}

// WithCapacity sets how many events are retained for replay.
// Values below 1 are ignored.
func WithCapacity(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithBuffer sets the per-subscriber live buffer size.
// Values below 1 are ignored.
func WithBuffer(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.buffer = n
		}
	}
}

// WithStartSeq continues numbering after seq, so the first appended event
// gets seq+1. Negative values are ignored.
func WithStartSeq(seq int64) Option {
	return func(s *settings) {
		if seq > 0 {
			s.startSeq = seq
		}
	}
}

type node[E any] struct {
	event E
	seq   int64
	next  *node[E]
}

// Log is an append-only, capacity-bounded, multicast event history.
//
// Thread-safety model:
//   - Submit(), Subscribe(), Snapshot() and the accessors are safe from any
//     goroutine; all of them serialize on one mutex.
//   - Subscription.C() is read by exactly one consumer.
//
// INVARIANTS:
//   - Nodes are kept in append order and never reordered or duplicated.
//   - index[id] always points at a live node.
//   - size <= capacity after every Submit.
type Log[E any] struct {
	mu sync.Mutex

	proc  Processor[E]
	idOf  func(E) (string, bool)
	hooks Hooks[E]
	clock *Clock

	head, tail *node[E]
	size       int
	index      map[string]*node[E]

	subs   map[*Subscription[E]]struct{}
	closed bool

	capacity int
	buffer   int
}

// New creates a log around proc. idOf extracts an event's checkpoint id;
// events without one are appended but cannot be used as checkpoints.
func New[E any](proc Processor[E], idOf func(E) (string, bool), hooks Hooks[E], opts ...Option) *Log[E] {
	s := settings{capacity: DefaultCapacity, buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(&s)
	}
	return &Log[E]{
		proc:     proc,
		idOf:     idOf,
		hooks:    hooks,
		clock:    NewClockAt(s.startSeq),
		index:    make(map[string]*node[E]),
		subs:     make(map[*Subscription[E]]struct{}),
		capacity: s.capacity,
		buffer:   s.buffer,
	}
}

// Submit processes e and, unless processing failed, appends it and pushes it
// to every live subscriber.
//
// Returns the Process error unchanged for protocol violations, or ErrClosed.
// Delivery failures are never reported: a subscriber that cannot keep up is
// dropped.
func (l *Log[E]) Submit(e E) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}

	if err := l.proc.Process(e); err != nil {
		if l.hooks.OnReject != nil {
			l.hooks.OnReject(e, err)
		}
		return err
	}

	n := &node[E]{event: e, seq: l.clock.Next()}
	if l.tail == nil {
		l.head = n
	} else {
		l.tail.next = n
	}
	l.tail = n
	l.size++
	if id, ok := l.idOf(e); ok {
		l.index[id] = n
	}

	if l.size > l.capacity {
		l.evictHead()
	}

	if l.hooks.OnAppend != nil {
		l.hooks.OnAppend(n.seq, e)
	}

	for sub := range l.subs {
		select {
		case sub.ch <- e:
		default:
			l.detach(sub, ErrOverrun)
		}
	}

	return nil
}

// evictHead drops the oldest node. The index slot is only cleared when it
// still points at the evicted node; a later event reusing the id keeps it.
func (l *Log[E]) evictHead() {
	old := l.head
	l.head = old.next
	if l.head == nil {
		l.tail = nil
	}
	old.next = nil
	l.size--

	if id, ok := l.idOf(old.event); ok && l.index[id] == old {
		delete(l.index, id)
	}
	if l.hooks.OnEvict != nil {
		l.hooks.OnEvict(old.event)
	}
}

// Subscribe opens a stream of events.
//
// If checkpoint names an event still in the log, every event after it is
// queued first, in order. Otherwise the stream starts with a fresh snapshot
// from the Processor. Either way, live events follow with no gap and no
// duplicate.
//
// The subscription ends when ctx is cancelled, when Close is called, when it
// falls behind its buffer, or when the log is closed.
func (l *Log[E]) Subscribe(ctx context.Context, checkpoint *string) *Subscription[E] {
	l.mu.Lock()

	var backlog []E
	replayed := false
	if checkpoint != nil {
		if n, ok := l.index[*checkpoint]; ok {
			for cur := n.next; cur != nil; cur = cur.next {
				backlog = append(backlog, cur.event)
			}
			replayed = true
		}
	}
	if !replayed {
		backlog = []E{l.proc.Snapshot()}
		if l.hooks.OnSnapshot != nil {
			l.hooks.OnSnapshot()
		}
	}

	sub := newSubscription(l, len(backlog)+l.buffer)
	for _, e := range backlog {
		sub.ch <- e // capacity covers the whole backlog
	}
	sub.replayed = replayed

	if l.closed {
		sub.finish(ErrClosed)
		l.mu.Unlock()
		return sub
	}

	l.subs[sub] = struct{}{}
	if l.hooks.OnSubscribe != nil {
		l.hooks.OnSubscribe(len(l.subs))
	}
	l.mu.Unlock()

	if ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				sub.Close()
			case <-sub.done:
			}
		}()
	}

	return sub
}

// Snapshot returns the processor's snapshot under the log lock.
func (l *Log[E]) Snapshot() E {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.proc.Snapshot()
}

// Close ends every subscription and rejects further submits.
// Idempotent.
func (l *Log[E]) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.closed = true
	for sub := range l.subs {
		l.detach(sub, ErrClosed)
	}
}

// Len returns the number of retained events.
func (l *Log[E]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Subscribers returns the number of live subscribers.
func (l *Log[E]) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

// Seq returns the seq of the most recently appended event (0 if none).
func (l *Log[E]) Seq() int64 {
	return l.clock.Current()
}

// Contains reports whether id is still usable as a checkpoint.
func (l *Log[E]) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.index[id]
	return ok
}

// History returns the retained events, oldest first.
func (l *Log[E]) History() []E {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]E, 0, l.size)
	for cur := l.head; cur != nil; cur = cur.next {
		out = append(out, cur.event)
	}
	return out
}

// detach removes sub from the live set and ends it. Caller holds l.mu.
func (l *Log[E]) detach(sub *Subscription[E], reason error) {
	if _, ok := l.subs[sub]; !ok {
		return
	}
	delete(l.subs, sub)
	sub.finish(reason)
	if l.hooks.OnLeave != nil {
		l.hooks.OnLeave(len(l.subs), errors.Is(reason, ErrOverrun))
	}
}

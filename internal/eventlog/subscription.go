package eventlog

import "errors"

// ErrOverrun ends a subscription whose buffer was full when an event arrived.
var ErrOverrun = errors.New("eventlog: subscriber fell behind")

// Subscription is one consumer's view of a log.
//
// Events arrive on C() in log order. The channel is closed when the
// subscription ends; Err() then reports why (nil for a normal Close or
// context cancellation).
type Subscription[E any] struct {
	log  *Log[E]
	ch   chan E
	done chan struct{}

	// guarded by log.mu
	finished bool
	err      error

	// replayed is set before the subscription is published and never changes.
	replayed bool
}

func newSubscription[E any](l *Log[E], size int) *Subscription[E] {
	return &Subscription[E]{
		log:  l,
		ch:   make(chan E, size),
		done: make(chan struct{}),
	}
}

// C returns the event stream.
func (s *Subscription[E]) C() <-chan E {
	return s.ch
}

// Done is closed when the subscription ends.
func (s *Subscription[E]) Done() <-chan struct{} {
	return s.done
}

// Replayed reports whether catch-up replayed history from the checkpoint
// (true) or started from a snapshot (false).
func (s *Subscription[E]) Replayed() bool {
	return s.replayed
}

// Err returns why the subscription ended: ErrOverrun, ErrClosed, or nil.
func (s *Subscription[E]) Err() error {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	return s.err
}

// Close deregisters the subscriber and closes its channel.
// Idempotent and safe to call concurrently with Submit.
func (s *Subscription[E]) Close() {
	s.log.mu.Lock()
	defer s.log.mu.Unlock()
	s.log.detach(s, nil)
}

// finish closes the channels exactly once. Caller holds log.mu.
func (s *Subscription[E]) finish(reason error) {
	if s.finished {
		return
	}
	s.finished = true
	s.err = reason
	close(s.ch)
	close(s.done)
}

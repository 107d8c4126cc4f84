// Package adapter is the boundary between a transport and the signals in a
// directory. It speaks wire strings on one side and ir.Event on the other.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/sigsync/internal/directory"
	"github.com/roach88/sigsync/internal/ir"
	"github.com/roach88/sigsync/internal/signal"
)

// ErrSignalNotFound is returned synchronously when a signal id is not in the
// directory.
var ErrSignalNotFound = errors.New("adapter: signal not found")

// Adapter exposes subscribe and update over wire strings.
type Adapter struct {
	dir    *directory.Directory
	logger *slog.Logger
}

// New creates an adapter over dir. A nil logger uses slog.Default().
func New(dir *directory.Directory, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{dir: dir, logger: logger}
}

// Subscribe opens a wire-encoded event stream on signalID.
//
// The stream holds a directory reference until it ends, so an ephemeral
// signal lives at least as long as its subscribers.
func (a *Adapter) Subscribe(ctx context.Context, signalID string, checkpoint *string) (*Stream, error) {
	st, release, err := a.dir.Acquire(signalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSignalNotFound, signalID)
	}

	sub := st.Subscribe(ctx, checkpoint)
	s := &Stream{
		sub:     sub,
		out:     make(chan string),
		stop:    make(chan struct{}),
		release: release,
		logger:  a.logger.With("signal", signalID),
	}
	go s.pump()
	return s, nil
}

// Update decodes one client wire event and submits it to signalID.
//
// Returns a wrapped ErrSignalNotFound, a *ir.ProtocolError for undecodable or
// unusable events, or the signal's submit error.
func (a *Adapter) Update(signalID, wire string) error {
	st, ok := a.dir.Get(signalID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSignalNotFound, signalID)
	}

	e, err := ir.DecodeUpdate(wire)
	if err != nil {
		a.logger.Debug("undecodable update", "signal", signalID, "error", err)
		return err
	}
	return st.Submit(e)
}

// Snapshot returns the current snapshot of signalID as a wire string.
func (a *Adapter) Snapshot(signalID string) (string, error) {
	st, ok := a.dir.Get(signalID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrSignalNotFound, signalID)
	}
	return ir.EncodeEvent(st.Snapshot())
}

// Lookup returns the signal registered under signalID.
func (a *Adapter) Lookup(signalID string) (*signal.State, error) {
	st, ok := a.dir.Get(signalID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSignalNotFound, signalID)
	}
	return st, nil
}

// Stream is a subscription translated to wire strings.
//
// C is closed when the subscription ends for any reason. Err then reports
// eventlog.ErrOverrun or eventlog.ErrClosed, or nil after Close or context
// cancellation.
type Stream struct {
	sub     *signal.Subscription
	out     chan string
	stop    chan struct{}
	once    sync.Once
	release func()
	logger  *slog.Logger
}

// C returns the wire event stream.
func (s *Stream) C() <-chan string {
	return s.out
}

// Replayed reports whether the stream resumed from the checkpoint.
func (s *Stream) Replayed() bool {
	return s.sub.Replayed()
}

// Err reports why the stream ended.
func (s *Stream) Err() error {
	return s.sub.Err()
}

// Close ends the stream. Idempotent.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.stop)
		s.sub.Close()
	})
}

func (s *Stream) pump() {
	defer close(s.out)
	defer s.release()

	for e := range s.sub.C() {
		wire, err := ir.EncodeEvent(e)
		if err != nil {
			s.logger.Error("encode event", "error", err)
			continue
		}
		select {
		case s.out <- wire:
		case <-s.stop:
			return
		}
	}
}

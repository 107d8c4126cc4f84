package signal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/sigsync/internal/eventlog"
	"github.com/roach88/sigsync/internal/ir"
)

// Subscription is a stream of events from one signal.
type Subscription = eventlog.Subscription[ir.Event]

// Hooks observe a signal's log. See eventlog.Hooks.
type Hooks = eventlog.Hooks[ir.Event]

// Option configures a State.
type Option func(*config)

type config struct {
	initial ir.Value
	logOpts []eventlog.Option
	hooks   Hooks
	onDrop  func(DropReason)
	logger  *slog.Logger
}

// WithValue starts the signal in value mode holding v.
// Without it the signal starts as an empty list.
func WithValue(v ir.Value) Option {
	return func(c *config) {
		c.initial = v
	}
}

// WithCapacity sets how many events are retained for checkpoint replay.
func WithCapacity(n int) Option {
	return func(c *config) {
		c.logOpts = append(c.logOpts, eventlog.WithCapacity(n))
	}
}

// WithBuffer sets the per-subscriber live buffer.
func WithBuffer(n int) Option {
	return func(c *config) {
		c.logOpts = append(c.logOpts, eventlog.WithBuffer(n))
	}
}

// WithStartSeq continues seq numbering after seq. Used when a journal
// already holds history for the signal's id.
func WithStartSeq(seq int64) Option {
	return func(c *config) {
		c.logOpts = append(c.logOpts, eventlog.WithStartSeq(seq))
	}
}

// WithHooks installs log observers. Hooks run under the signal lock.
func WithHooks(h Hooks) Option {
	return func(c *config) {
		c.hooks = h
	}
}

// WithDropHook installs a callback for commands dropped as benign races.
// It runs under the signal lock.
func WithDropHook(fn func(DropReason)) Option {
	return func(c *config) {
		c.onDrop = fn
	}
}

// WithLogger sets the logger used for rejected events.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// State is one signal: its entries and the log that orders commands against
// them. All methods are safe for concurrent use.
type State struct {
	log    *eventlog.Log[ir.Event]
	logger *slog.Logger
}

// New creates a signal. Without WithValue, ROOT is an empty list root.
func New(opts ...Option) *State {
	cfg := config{initial: emptyListValue, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.initial == nil {
		cfg.initial = ir.Null
	}

	proc := newProcessor(cfg.initial, cfg.onDrop)
	return &State{
		log:    eventlog.New[ir.Event](proc, ir.EventID, cfg.hooks, cfg.logOpts...),
		logger: cfg.logger,
	}
}

// Submit applies e and appends it to the log.
//
// Commands that lose a race are still appended and broadcast. A
// *ir.ProtocolError is returned for a command with no usable operation, and
// eventlog.ErrClosed once the signal has been closed.
func (s *State) Submit(e ir.Event) error {
	if err := s.log.Submit(e); err != nil {
		if ir.IsProtocolError(err) {
			id, _ := ir.EventID(e)
			s.logger.Warn("rejected event",
				"event_id", id,
				"kind", e.Command.Kind().String(),
				"code", string(ir.ProtocolCode(err)))
		}
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}

// Subscribe opens an event stream, resuming after checkpoint when the log
// still holds it and starting from a snapshot otherwise.
func (s *State) Subscribe(ctx context.Context, checkpoint *string) *Subscription {
	return s.log.Subscribe(ctx, checkpoint)
}

// Snapshot returns the current entries as a snapshot event.
func (s *State) Snapshot() ir.Event {
	return s.log.Snapshot()
}

// Hash returns the content hash of the current snapshot.
func (s *State) Hash() (string, error) {
	return ir.SnapshotHash(s.Snapshot())
}

// Close ends all subscriptions and rejects further submits.
func (s *State) Close() {
	s.log.Close()
}

// Len returns the number of retained events.
func (s *State) Len() int {
	return s.log.Len()
}

// Subscribers returns the number of live subscribers.
func (s *State) Subscribers() int {
	return s.log.Subscribers()
}

// Seq returns the sequence number of the last appended event.
func (s *State) Seq() int64 {
	return s.log.Seq()
}

// Contains reports whether id can still be used as a checkpoint.
func (s *State) Contains(id string) bool {
	return s.log.Contains(id)
}

// History returns the retained events, oldest first.
func (s *State) History() []ir.Event {
	return s.log.History()
}

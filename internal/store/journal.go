package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/sigsync/internal/ir"
	"github.com/roach88/sigsync/internal/signal"
)

// pending is one queued journal write: either a signal row or an event.
type pending struct {
	signal *SignalRecord

	signalID string
	seq      int64
	event    ir.Event
}

// Journal is an unbounded FIFO of journal writes drained by Run.
//
// Enqueueing never blocks and never does I/O, so the hooks it hands out are
// safe to run inside a signal's critical section. Encoding and SQLite writes
// happen on the Run goroutine.
//
// The queue uses a buffered(1) channel to coalesce wake-ups, which lets Run
// wait on both new work and context cancellation.
type Journal struct {
	store  *Store
	logger *slog.Logger

	onBacklog func(int)
	onError   func()

	mu     sync.Mutex
	items  []pending
	closed bool
	wake   chan struct{}
	// queued is the highest seq enqueued per signal, which may not have
	// reached the store yet.
	queued map[string]int64
}

// JournalOption configures a Journal.
type JournalOption func(*Journal)

// WithJournalLogger sets the logger for write failures.
func WithJournalLogger(l *slog.Logger) JournalOption {
	return func(j *Journal) { j.logger = l }
}

// WithBacklogHook reports the queue length after every enqueue and flush.
func WithBacklogHook(fn func(int)) JournalOption {
	return func(j *Journal) { j.onBacklog = fn }
}

// WithErrorHook is called once per record that failed to write.
func WithErrorHook(fn func()) JournalOption {
	return func(j *Journal) { j.onError = fn }
}

// NewJournal creates a journal writing to s.
func NewJournal(s *Store, opts ...JournalOption) *Journal {
	j := &Journal{
		store:  s,
		logger: slog.Default(),
		items:  make([]pending, 0, 64),
		wake:   make(chan struct{}, 1),
		queued: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// RecordSignal queues a signal row. Must be called before the signal's
// first event is appended so the row exists when its events are written.
func (j *Journal) RecordSignal(rec SignalRecord) bool {
	return j.enqueue(pending{signal: &rec})
}

// LastSeq returns the highest seq journaled or queued for signalID, or 0.
// A signal re-created under a journaled id continues numbering after it, so
// no write collides with an earlier run's rows.
func (j *Journal) LastSeq(ctx context.Context, signalID string) (int64, error) {
	j.mu.Lock()
	queued := j.queued[signalID]
	j.mu.Unlock()

	stored, err := j.store.LastSeq(ctx, signalID)
	if err != nil {
		return 0, err
	}
	return max(queued, stored), nil
}

// Hooks returns log hooks that queue every appended event of signalID.
func (j *Journal) Hooks(signalID string) signal.Hooks {
	return signal.Hooks{
		OnAppend: func(seq int64, e ir.Event) {
			j.enqueue(pending{signalID: signalID, seq: seq, event: e})
		},
	}
}

func (j *Journal) enqueue(p pending) bool {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return false
	}
	j.items = append(j.items, p)
	if p.signal == nil && p.seq > j.queued[p.signalID] {
		j.queued[p.signalID] = p.seq
	}
	n := len(j.items)
	select {
	case j.wake <- struct{}{}:
	default:
	}
	j.mu.Unlock()

	if j.onBacklog != nil {
		j.onBacklog(n)
	}
	return true
}

// takeAll removes and returns everything queued.
func (j *Journal) takeAll() []pending {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.items) == 0 {
		return nil
	}
	out := j.items
	j.items = make([]pending, 0, cap(out))
	return out
}

// Len returns the number of queued writes.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.items)
}

// Close stops accepting writes and wakes Run, which drains what is left and
// returns. Idempotent.
func (j *Journal) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return
	}
	j.closed = true
	close(j.wake)
}

// Run drains the queue until Close is called and the queue is empty, or ctx
// is cancelled. On cancellation, whatever is queued is flushed before Run
// returns ctx.Err().
func (j *Journal) Run(ctx context.Context) error {
	for {
		j.Flush(ctx)

		j.mu.Lock()
		done := j.closed && len(j.items) == 0
		j.mu.Unlock()
		if done {
			return nil
		}

		select {
		case <-ctx.Done():
			j.Flush(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-j.wake:
		}
	}
}

// Flush writes everything queued so far. Failed writes are logged and
// dropped; the journal is best effort and never blocks a signal.
func (j *Journal) Flush(ctx context.Context) {
	items := j.takeAll()
	if len(items) == 0 {
		return
	}

	var batch []EventRecord
	writeBatch := func() {
		if len(batch) == 0 {
			return
		}
		if err := j.store.WriteEvents(ctx, batch); err != nil {
			j.logger.Error("journal events", "count", len(batch), "error", err)
			j.failed(len(batch))
		}
		batch = batch[:0]
	}

	for _, p := range items {
		if p.signal != nil {
			writeBatch()
			if err := j.store.WriteSignal(ctx, *p.signal); err != nil {
				j.logger.Error("journal signal", "signal", p.signal.ID, "error", err)
				j.failed(1)
			}
			continue
		}

		rec, err := NewEventRecord(p.signalID, p.seq, p.event)
		if err != nil {
			j.logger.Error("journal encode", "signal", p.signalID, "seq", p.seq, "error", err)
			j.failed(1)
			continue
		}
		batch = append(batch, rec)
	}
	writeBatch()

	if j.onBacklog != nil {
		j.onBacklog(j.Len())
	}
}

func (j *Journal) failed(n int) {
	if j.onError == nil {
		return
	}
	for range n {
		j.onError()
	}
}

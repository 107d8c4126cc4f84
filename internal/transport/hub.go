package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/sigsync/internal/adapter"
	"github.com/roach88/sigsync/internal/config"
	"github.com/roach88/sigsync/internal/directory"
	"github.com/roach88/sigsync/internal/eventlog"
	"github.com/roach88/sigsync/internal/ir"
	"github.com/roach88/sigsync/internal/metrics"
	"github.com/roach88/sigsync/internal/signal"
	"github.com/roach88/sigsync/internal/store"
)

// Hub creates and owns the signals a server exposes.
type Hub struct {
	dir     *directory.Directory
	adapter *adapter.Adapter
	metrics *metrics.Metrics
	journal *store.Journal
	ids     ir.IDGenerator
	logger  *slog.Logger
	now     func() time.Time

	capacity int
	buffer   int

	// mu serializes Create so a signal's journal row is queued before any
	// of its events can be.
	mu sync.Mutex
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithMetrics sets the collectors signals report to. Without it the hub uses
// an unregistered set.
func WithMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// WithJournal records every created signal and appended event in j.
func WithJournal(j *store.Journal) HubOption {
	return func(h *Hub) { h.journal = j }
}

// WithIDGenerator sets how ephemeral signal ids are minted.
func WithIDGenerator(g ir.IDGenerator) HubOption {
	return func(h *Hub) { h.ids = g }
}

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// WithLimits sets the per-signal history capacity and subscriber buffer.
func WithLimits(capacity, buffer int) HubOption {
	return func(h *Hub) {
		h.capacity = capacity
		h.buffer = buffer
	}
}

// WithClock sets the time source for journal rows and idle sweeps.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) { h.now = now }
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		ids:      ir.UUIDv7Generator{},
		logger:   slog.Default(),
		now:      time.Now,
		capacity: eventlog.DefaultCapacity,
		buffer:   eventlog.DefaultBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = metrics.New(nil)
	}

	h.dir = directory.New(
		directory.WithClock(h.now),
		directory.WithChangeHook(h.metrics.SignalChanged),
	)
	h.adapter = adapter.New(h.dir, h.logger)
	return h
}

// Adapter returns the wire adapter over the hub's directory.
func (h *Hub) Adapter() *adapter.Adapter { return h.adapter }

// Directory returns the hub's directory.
func (h *Hub) Directory() *directory.Directory { return h.dir }

// Metrics returns the collectors the hub reports to.
func (h *Hub) Metrics() *metrics.Metrics { return h.metrics }

// Journal returns the journal, or nil when events are not recorded.
func (h *Hub) Journal() *store.Journal { return h.journal }

// Create registers a new signal under id. A nil initial starts a list
// signal; anything else starts a value signal holding it.
//
// Returns a wrapped directory.ErrAlreadyRegistered when id is taken.
func (h *Hub) Create(id string, initial ir.Value, own directory.Ownership) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.dir.Contains(id) {
		return fmt.Errorf("%w: %s", directory.ErrAlreadyRegistered, id)
	}

	hooks := []signal.Hooks{h.metrics.Hooks(id)}
	var startSeq int64
	if h.journal != nil {
		var err error
		if startSeq, err = h.journal.LastSeq(context.Background(), id); err != nil {
			return fmt.Errorf("resume journal for %s: %w", id, err)
		}
		h.journal.RecordSignal(store.SignalRecord{
			ID:        id,
			Initial:   initial,
			Ownership: own.String(),
			Capacity:  h.capacity,
			CreatedAt: h.now(),
			StartSeq:  startSeq,
		})
		hooks = append(hooks, h.journal.Hooks(id))
	}

	opts := []signal.Option{
		signal.WithStartSeq(startSeq),
		signal.WithCapacity(h.capacity),
		signal.WithBuffer(h.buffer),
		signal.WithHooks(eventlog.ChainHooks(hooks...)),
		signal.WithDropHook(h.metrics.DropHook(id)),
		signal.WithLogger(h.logger.With("signal", id)),
	}
	if initial != nil {
		opts = append(opts, signal.WithValue(initial))
	}

	st := signal.New(opts...)
	if err := h.dir.Register(id, st, own); err != nil {
		st.Close()
		return err
	}
	h.logger.Debug("signal created", "signal", id, "ownership", own)
	return nil
}

// CreateEphemeral mints an id and registers an ephemeral signal under it.
func (h *Hub) CreateEphemeral(initial ir.Value) (string, error) {
	id := h.ids.Generate()
	if err := h.Create(id, initial, directory.Ephemeral); err != nil {
		return "", err
	}
	return id, nil
}

// Pin creates the configured signals as pinned.
func (h *Hub) Pin(signals []config.SignalConfig) error {
	for _, sc := range signals {
		if err := h.Create(sc.ID, sc.Value, directory.Pinned); err != nil {
			return fmt.Errorf("pin %s: %w", sc.ID, err)
		}
	}
	return nil
}

// Remove unregisters id and closes its signal.
func (h *Hub) Remove(id string) bool {
	return h.dir.Remove(id)
}

// Sweep removes ephemeral signals nobody has held for idle.
func (h *Hub) Sweep(idle time.Duration) []string {
	ids := h.dir.Sweep(idle)
	for _, id := range ids {
		h.logger.Info("swept idle signal", "signal", id)
	}
	return ids
}

// RunSweeper sweeps every idle/2 until ctx is done. A non-positive idle
// disables sweeping.
func (h *Hub) RunSweeper(ctx context.Context, idle time.Duration) error {
	if idle <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(max(idle/2, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Sweep(idle)
		}
	}
}

// Close removes every signal, ending all subscriptions.
func (h *Hub) Close() {
	h.dir.Clear()
}

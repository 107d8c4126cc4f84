// Package metrics exports Prometheus collectors for signals, subscribers and
// the HTTP transport.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/sigsync/internal/ir"
	"github.com/roach88/sigsync/internal/signal"
)

const namespace = "sigsync"

// Metrics holds every collector. Recording methods only touch atomics and
// label maps, so they are safe to call from inside a signal's critical
// section.
type Metrics struct {
	eventsSubmitted  *prometheus.CounterVec
	eventsRejected   *prometheus.CounterVec
	eventsEvicted    *prometheus.CounterVec
	commandsDropped  *prometheus.CounterVec
	subscribers      *prometheus.GaugeVec
	subscriberDrops  *prometheus.CounterVec
	snapshotsServed  *prometheus.CounterVec
	signals          prometheus.Gauge
	wsConnections    prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	journalBacklog   prometheus.Gauge
	journalWriteErrs prometheus.Counter
}

var (
	defaultOnce sync.Once
	defaultM    *Metrics
)

// Default returns collectors registered with the global Prometheus registry.
// Registration happens once per process.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultM = New(prometheus.DefaultRegisterer)
	})
	return defaultM
}

// New creates collectors and registers them with reg. A nil reg leaves them
// unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_submitted_total",
				Help:      "Events appended to a signal log.",
			},
			[]string{"signal"},
		),
		eventsRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_rejected_total",
				Help:      "Events refused as protocol violations.",
			},
			[]string{"signal", "code"},
		),
		eventsEvicted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_evicted_total",
				Help:      "Events pushed out of a signal log by capacity.",
			},
			[]string{"signal"},
		),
		commandsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_dropped_total",
				Help:      "Commands that lost a race and changed nothing.",
			},
			[]string{"signal", "reason"},
		),
		subscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "subscribers",
				Help:      "Live subscribers per signal.",
			},
			[]string{"signal"},
		),
		subscriberDrops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "subscribers_dropped_total",
				Help:      "Subscribers removed because their buffer was full.",
			},
			[]string{"signal"},
		),
		snapshotsServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_served_total",
				Help:      "Subscribers bootstrapped from a snapshot.",
			},
			[]string{"signal"},
		),
		signals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "signals",
			Help:      "Signals registered in the directory.",
		}),
		wsConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open WebSocket connections.",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		journalBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "backlog",
			Help:      "Journal records waiting to be written.",
		}),
		journalWriteErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "write_errors_total",
			Help:      "Journal records that failed to write.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.eventsSubmitted, m.eventsRejected, m.eventsEvicted, m.commandsDropped,
			m.subscribers, m.subscriberDrops, m.snapshotsServed, m.signals,
			m.wsConnections, m.httpRequests, m.httpDuration,
			m.journalBacklog, m.journalWriteErrs,
		)
	}
	return m
}

// Hooks returns log observers that feed the per-signal collectors.
// Label lookups are done once here, not per event.
func (m *Metrics) Hooks(signalID string) signal.Hooks {
	submitted := m.eventsSubmitted.WithLabelValues(signalID)
	evicted := m.eventsEvicted.WithLabelValues(signalID)
	subs := m.subscribers.WithLabelValues(signalID)
	drops := m.subscriberDrops.WithLabelValues(signalID)
	snaps := m.snapshotsServed.WithLabelValues(signalID)

	return signal.Hooks{
		OnAppend: func(int64, ir.Event) { submitted.Inc() },
		OnEvict:  func(ir.Event) { evicted.Inc() },
		OnReject: func(_ ir.Event, err error) {
			m.eventsRejected.WithLabelValues(signalID, string(ir.ProtocolCode(err))).Inc()
		},
		OnSnapshot:  func() { snaps.Inc() },
		OnSubscribe: func(live int) { subs.Set(float64(live)) },
		OnLeave: func(live int, dropped bool) {
			subs.Set(float64(live))
			if dropped {
				drops.Inc()
			}
		},
	}
}

// DropHook returns a callback counting benign command drops for signalID.
func (m *Metrics) DropHook(signalID string) func(signal.DropReason) {
	return func(r signal.DropReason) {
		m.commandsDropped.WithLabelValues(signalID, string(r)).Inc()
	}
}

// SignalChanged tracks directory membership and forgets the per-signal
// series of removed signals. It matches directory.ChangeHook.
func (m *Metrics) SignalChanged(signalID string, registered bool) {
	if registered {
		m.signals.Inc()
		return
	}
	m.signals.Dec()
	m.Forget(signalID)
}

// Forget deletes every series labelled with signalID.
func (m *Metrics) Forget(signalID string) {
	labels := prometheus.Labels{"signal": signalID}
	m.eventsSubmitted.DeletePartialMatch(labels)
	m.eventsRejected.DeletePartialMatch(labels)
	m.eventsEvicted.DeletePartialMatch(labels)
	m.commandsDropped.DeletePartialMatch(labels)
	m.subscribers.DeletePartialMatch(labels)
	m.subscriberDrops.DeletePartialMatch(labels)
	m.snapshotsServed.DeletePartialMatch(labels)
}

// WSOpened records a new WebSocket connection.
func (m *Metrics) WSOpened() { m.wsConnections.Inc() }

// WSClosed records a closed WebSocket connection.
func (m *Metrics) WSClosed() { m.wsConnections.Dec() }

// JournalBacklog sets the number of pending journal records.
func (m *Metrics) JournalBacklog(n int) { m.journalBacklog.Set(float64(n)) }

// JournalWriteFailed counts a failed journal write.
func (m *Metrics) JournalWriteFailed() { m.journalWriteErrs.Inc() }

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// Middleware records every request by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// Package store journals signals and their accepted events to SQLite.
//
// The journal is an audit trail. Live signals never read it back: a restarted
// server starts from empty signals. It exists so operators can trace what
// clients submitted and replay a signal offline to check that the processor
// is deterministic.
//
// Tables:
//   - signals: id, initial value, ownership and log capacity at creation
//   - signal_events: every appended event per signal, keyed by (signal_id, seq)
//
// Ordering uses seq, the signal log's logical clock. Queries always end in
// ORDER BY seq ASC so results are identical across reads.
//
// Payloads are stored as canonical JSON (see ir.CanonicalEvent) together with
// the domain-separated event hash.
//
// Writes happen off the signal lock: Journal queues records from log hooks
// and a single goroutine drains the queue into the database.
package store

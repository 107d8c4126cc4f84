// Package eventlog implements the bounded, multicast event history that backs
// every signal.
//
// ARCHITECTURE:
//
// Single Lock Per Log:
// One mutex serializes Submit and Subscribe. Inside the critical section the
// log only touches memory (linked nodes, the id index, subscriber channels)
// so contention stays brief:
// - Submit: process → append → evict → fan-out
// - Subscribe: catch-up (replay or snapshot) → register
//
// Because catch-up and registration happen atomically, a subscriber can never
// miss an event appended between the two, nor receive one twice.
//
// Bounded History:
// The log keeps at most Capacity nodes. Appending past capacity evicts the
// oldest node from both the list and the index. A checkpoint that refers to
// an evicted (or never seen) id falls back to a fresh snapshot from the
// Processor.
//
// Delivery:
// Fan-out is a non-blocking send. A subscriber whose buffer is full is
// treated as departed: it is removed and its channel closed. Submit never
// waits for a slow consumer and never reports delivery failures.
//
// CRITICAL PATTERNS:
//
// Unconditional Append:
// Once Processor.Process returns nil the event is appended and broadcast even
// if processing changed nothing. Only a Process error (a protocol violation)
// keeps an event out of the log.
//
// Logical Clock:
// Every appended event gets a strictly increasing seq from Clock.Next().
// Never wall-clock time.
package eventlog

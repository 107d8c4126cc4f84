package store

import (
	"fmt"
	"time"

	"github.com/roach88/sigsync/internal/ir"
)

// SignalRecord is one row of the signals table.
type SignalRecord struct {
	ID string
	// Initial is the ROOT value the signal started with; nil means an empty
	// list.
	Initial   ir.Value
	Ownership string
	Capacity  int
	CreatedAt time.Time
	// StartSeq is the highest seq already journaled for ID when this run of
	// the signal began. Only set when recording; reads leave it 0.
	StartSeq int64
}

// RunRecord is one row of the signal_runs table.
type RunRecord struct {
	SignalID  string
	StartSeq  int64
	Initial   ir.Value
	CreatedAt time.Time
}

// EventRecord is one journaled event.
type EventRecord struct {
	SignalID string
	Seq      int64
	EventID  *string
	Kind     string
	Payload  string
	Hash     string
}

// NewEventRecord captures e as appended to signalID at seq.
// The payload is the canonical JSON of the wire form.
func NewEventRecord(signalID string, seq int64, e ir.Event) (EventRecord, error) {
	payload, err := ir.CanonicalEvent(e)
	if err != nil {
		return EventRecord{}, fmt.Errorf("marshal event: %w", err)
	}
	hash, err := ir.EventHash(e)
	if err != nil {
		return EventRecord{}, fmt.Errorf("hash event: %w", err)
	}

	rec := EventRecord{
		SignalID: signalID,
		Seq:      seq,
		Kind:     e.Command.Kind().String(),
		Payload:  string(payload),
		Hash:     hash,
	}
	if id, ok := ir.EventID(e); ok {
		rec.EventID = &id
	}
	return rec, nil
}

// Event decodes the journaled payload.
func (r EventRecord) Event() (ir.Event, error) {
	e, err := ir.DecodeEvent(r.Payload)
	if err != nil {
		return ir.Event{}, fmt.Errorf("decode event %s/%d: %w", r.SignalID, r.Seq, err)
	}
	return e, nil
}

// marshalInitial converts an initial value to canonical TEXT, or NULL for
// list mode.
func marshalInitial(v ir.Value) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := ir.Canonicalize(v)
	if err != nil {
		return nil, fmt.Errorf("marshal initial: %w", err)
	}
	return string(data), nil
}

// unmarshalInitial is the inverse of marshalInitial.
func unmarshalInitial(text *string) (ir.Value, error) {
	if text == nil {
		return nil, nil
	}
	v, err := ir.ParseValue([]byte(*text))
	if err != nil {
		return nil, fmt.Errorf("unmarshal initial: %w", err)
	}
	return v, nil
}

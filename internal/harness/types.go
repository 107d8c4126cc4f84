package harness

import "github.com/roach88/sigsync/internal/ir"

// Outcomes of one step.
const (
	OutcomeApplied  = "applied"
	OutcomeDropped  = "dropped"
	OutcomeRejected = "rejected"
)

// TraceEvent records what happened to one step.
type TraceEvent struct {
	Step    int    `json:"step"`
	EventID string `json:"event_id,omitempty"`
	Kind    string `json:"kind,omitempty"`
	// Seq is the log position; zero when the event was rejected.
	Seq     int64  `json:"seq,omitempty"`
	Outcome string `json:"outcome"`
	// Reason is the drop reason or protocol error code.
	Reason string `json:"reason,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step expectation, assertion and principle held.
	Pass bool `json:"pass"`

	// Trace has one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Snapshot is the final state of the signal.
	Snapshot ir.Event `json:"-"`

	// Hash is the snapshot hash of the final state.
	Hash string `json:"hash"`

	// Drops counts dropped commands by reason.
	Drops map[string]int `json:"drops,omitempty"`

	// events are the appended events, in log order.
	events []ir.Event
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Drops:  make(map[string]int),
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Entries returns the final snapshot entries.
func (r *Result) Entries() []ir.EntrySnapshot {
	if r.Snapshot.Command.Snapshot == nil {
		return nil
	}
	return r.Snapshot.Command.Snapshot.Entries
}

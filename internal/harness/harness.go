package harness

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/sigsync/internal/ir"
	"github.com/roach88/sigsync/internal/signal"
)

// discard suppresses the signal's own rejection logs; rejections are
// reported through the trace instead.
var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// harness collects what a signal reports while a scenario runs. The hooks
// fire synchronously inside Submit, so per-step fields are reset before each
// submit and read after it.
type harness struct {
	result *Result

	seq  int64
	drop signal.DropReason
}

func (h *harness) hooks() signal.Hooks {
	return signal.Hooks{
		OnAppend: func(seq int64, e ir.Event) {
			h.seq = seq
			h.result.events = append(h.result.events, e)
		},
	}
}

func (h *harness) onDrop(r signal.DropReason) {
	h.drop = r
	h.result.Drops[string(r)]++
}

// Run executes a scenario against a fresh signal and returns the result.
//
// Errors are returned only when the scenario itself cannot be executed; a
// failed expectation, assertion or principle marks the result as failed.
func Run(s *Scenario) (*Result, error) {
	initial, err := s.initialValue()
	if err != nil {
		return nil, fmt.Errorf("initial value: %w", err)
	}

	h := &harness{result: NewResult()}
	st := newSignal(s, initial, signal.WithHooks(h.hooks()), signal.WithDropHook(h.onDrop))
	defer st.Close()

	for i, step := range s.Steps {
		wire, err := step.wire()
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
		ev := h.apply(st, i+1, step, wire)
		h.result.Trace = append(h.result.Trace, ev)
		checkStep(h.result, step, ev)
	}

	h.result.Snapshot = st.Snapshot()
	if h.result.Hash, err = ir.SnapshotHash(h.result.Snapshot); err != nil {
		return nil, fmt.Errorf("hash snapshot: %w", err)
	}

	for _, msg := range EvaluateAssertions(h.result, s.Assertions) {
		h.result.AddError(msg)
	}
	for _, msg := range checkPrinciples(s, initial, st, h.result) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// newSignal builds a signal configured like the scenario asks.
func newSignal(s *Scenario, initial ir.Value, extra ...signal.Option) *signal.State {
	opts := []signal.Option{signal.WithLogger(discard)}
	if initial != nil {
		opts = append(opts, signal.WithValue(initial))
	}
	if s.Capacity > 0 {
		opts = append(opts, signal.WithCapacity(s.Capacity))
	}
	return signal.New(append(opts, extra...)...)
}

// apply decodes and submits one step.
func (h *harness) apply(st *signal.State, n int, step Step, wire string) TraceEvent {
	ev := TraceEvent{Step: n, EventID: step.ID}
	h.seq, h.drop = 0, ""

	e, err := ir.DecodeUpdate(wire)
	if err == nil {
		ev.Kind = e.Command.Kind().String()
		err = st.Submit(e)
	}

	switch {
	case err != nil:
		ev.Outcome = OutcomeRejected
		ev.Reason = string(ir.ProtocolCode(err))
		if ev.Reason == "" {
			ev.Reason = err.Error()
		}
	case h.drop != "":
		ev.Outcome = OutcomeDropped
		ev.Reason = string(h.drop)
	default:
		ev.Outcome = OutcomeApplied
	}
	ev.Seq = h.seq
	return ev
}

// checkStep compares a step's outcome with its expectation.
func checkStep(r *Result, step Step, ev TraceEvent) {
	switch {
	case step.ExpectError != "":
		if ev.Outcome != OutcomeRejected || ev.Reason != step.ExpectError {
			r.AddError(fmt.Sprintf("step %d: expected error %s, got %s", ev.Step, step.ExpectError, describe(ev)))
		}
	case step.ExpectDrop != "":
		if ev.Outcome != OutcomeDropped || ev.Reason != step.ExpectDrop {
			r.AddError(fmt.Sprintf("step %d: expected drop %s, got %s", ev.Step, step.ExpectDrop, describe(ev)))
		}
	case ev.Outcome == OutcomeRejected:
		r.AddError(fmt.Sprintf("step %d: unexpected %s", ev.Step, describe(ev)))
	}
}

func describe(ev TraceEvent) string {
	if ev.Reason == "" {
		return ev.Outcome
	}
	return ev.Outcome + " (" + ev.Reason + ")"
}

package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/sigsync/internal/ir"
	"github.com/roach88/sigsync/internal/signal"
)

// deliveryTimeout bounds how long a principle waits on a subscription. All
// deliveries checked here are already buffered when Subscribe returns.
const deliveryTimeout = time.Second

// PrincipleError reports a property that every command sequence must
// satisfy but this one did not.
type PrincipleError struct {
	Principle string
	Detail    string
}

// Error implements the error interface.
func (e *PrincipleError) Error() string {
	return fmt.Sprintf("principle %q violated: %s", e.Principle, e.Detail)
}

// Principle names.
const (
	PrincipleReplay        = "replay_converges"
	PrincipleLateSubscribe = "late_subscriber_snapshot"
	PrincipleResume        = "checkpoint_resume"
)

// checkPrinciples verifies the run-independent properties of st after a
// scenario. Returns failure messages.
func checkPrinciples(s *Scenario, initial ir.Value, st *signal.State, r *Result) []string {
	var errs []string
	for _, check := range []func() error{
		func() error { return checkReplay(s, initial, r) },
		func() error { return checkLateSubscriber(st, r) },
		func() error { return checkResume(s, st, r) },
	} {
		if err := check(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// checkReplay feeds the appended events to a fresh signal and compares the
// final hash.
func checkReplay(s *Scenario, initial ir.Value, r *Result) error {
	st := newSignal(s, initial)
	defer st.Close()

	for _, e := range r.events {
		if err := st.Submit(e); err != nil {
			return &PrincipleError{PrincipleReplay, fmt.Sprintf("resubmit: %v", err)}
		}
	}
	hash, err := st.Hash()
	if err != nil {
		return &PrincipleError{PrincipleReplay, err.Error()}
	}
	if hash != r.Hash {
		return &PrincipleError{PrincipleReplay, fmt.Sprintf("hash %s, want %s", hash, r.Hash)}
	}
	return nil
}

// checkLateSubscriber subscribes without a checkpoint and expects the
// current snapshot first.
func checkLateSubscriber(st *signal.State, r *Result) error {
	sub := st.Subscribe(context.Background(), nil)
	defer sub.Close()

	e, err := next(sub)
	if err != nil {
		return &PrincipleError{PrincipleLateSubscribe, err.Error()}
	}
	if !e.IsSnapshot() {
		return &PrincipleError{PrincipleLateSubscribe, "first delivery is not a snapshot"}
	}
	if hash := ir.MustSnapshotHash(e); hash != r.Hash {
		return &PrincipleError{PrincipleLateSubscribe, fmt.Sprintf("hash %s, want %s", hash, r.Hash)}
	}
	return nil
}

// checkResume subscribes from the first appended event and expects the rest
// of the history in order. Skipped when the history no longer starts at the
// first event.
func checkResume(s *Scenario, st *signal.State, r *Result) error {
	if len(r.events) == 0 {
		return nil
	}
	first, _ := ir.EventID(r.events[0])
	if !st.Contains(first) {
		return nil
	}

	sub := st.Subscribe(context.Background(), &first)
	defer sub.Close()

	if !sub.Replayed() {
		return &PrincipleError{PrincipleResume, "checkpoint " + first + " not replayed"}
	}
	for _, want := range r.events[1:] {
		got, err := next(sub)
		if err != nil {
			return &PrincipleError{PrincipleResume, err.Error()}
		}
		wantID, _ := ir.EventID(want)
		gotID, _ := ir.EventID(got)
		if gotID != wantID {
			return &PrincipleError{PrincipleResume, fmt.Sprintf("got %s, want %s", gotID, wantID)}
		}
	}
	return nil
}

func next(sub *signal.Subscription) (ir.Event, error) {
	select {
	case e, ok := <-sub.C():
		if !ok {
			return ir.Event{}, fmt.Errorf("subscription ended: %v", sub.Err())
		}
		return e, nil
	case <-time.After(deliveryTimeout):
		return ir.Event{}, fmt.Errorf("no delivery within %s", deliveryTimeout)
	}
}

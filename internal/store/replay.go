package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/sigsync/internal/ir"
	"github.com/roach88/sigsync/internal/signal"
)

// ErrNondeterministic is returned when two replays of one journal disagree.
var ErrNondeterministic = errors.New("replay is not deterministic")

// ReplayResult is the state a journaled signal reaches when its events are
// applied to a fresh signal.
type ReplayResult struct {
	SignalID string
	// Runs is how many process lifetimes the journal holds. Each run restarts
	// from its own initial value, so the result reflects the latest one.
	Runs   int
	Events int
	// Rejected counts journaled events the processor refused. Only accepted
	// events are journaled, so anything but 0 means the journal and the
	// processor disagree.
	Rejected int
	LastSeq  int64
	Snapshot ir.Event
	Hash     string
}

// Replay rebuilds signalID offline from its journal. The live server is not
// touched.
func (s *Store) Replay(ctx context.Context, signalID string) (ReplayResult, error) {
	sig, err := s.ReadSignal(ctx, signalID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	runs, err := s.ReadRuns(ctx, signalID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	if len(runs) == 0 {
		runs = []RunRecord{{SignalID: signalID, Initial: sig.Initial}}
	}
	recs, err := s.ReadEvents(ctx, signalID)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}

	start := func(run RunRecord) *signal.State {
		opts := []signal.Option{signal.WithCapacity(sig.Capacity), signal.WithStartSeq(run.StartSeq)}
		if run.Initial != nil {
			opts = append(opts, signal.WithValue(run.Initial))
		}
		return signal.New(opts...)
	}

	res := ReplayResult{SignalID: signalID, Runs: len(runs)}
	st := start(runs[0])
	next := 1
	defer func() { st.Close() }()

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return ReplayResult{}, err
		}
		for next < len(runs) && rec.Seq > runs[next].StartSeq {
			st.Close()
			st = start(runs[next])
			next++
		}
		e, err := rec.Event()
		if err != nil {
			return ReplayResult{}, fmt.Errorf("replay: %w", err)
		}
		if err := st.Submit(e); err != nil {
			res.Rejected++
			continue
		}
		res.Events++
		res.LastSeq = rec.Seq
	}
	// A run with no events yet still resets the state.
	if next < len(runs) {
		st.Close()
		st = start(runs[len(runs)-1])
	}

	res.Snapshot = st.Snapshot()
	res.Hash, err = ir.SnapshotHash(res.Snapshot)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	return res, nil
}

// VerifyReplay replays signalID twice and checks both runs reach the same
// snapshot hash.
func (s *Store) VerifyReplay(ctx context.Context, signalID string) (ReplayResult, error) {
	first, err := s.Replay(ctx, signalID)
	if err != nil {
		return ReplayResult{}, err
	}
	second, err := s.Replay(ctx, signalID)
	if err != nil {
		return ReplayResult{}, err
	}
	if first.Hash != second.Hash {
		return first, fmt.Errorf("%w: %s: %s != %s", ErrNondeterministic, signalID, first.Hash, second.Hash)
	}
	return first, nil
}

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/sigsync/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	SignalID string // optional - one signal only
}

// ReplaySignalResult holds the replay result for one signal.
type ReplaySignalResult struct {
	SignalID      string `json:"signal_id"`
	Ownership     string `json:"ownership"`
	Runs          int    `json:"runs"`
	Events        int    `json:"events"`
	Rejected      int    `json:"rejected"`
	LastSeq       int64  `json:"last_seq"`
	Hash          string `json:"hash"`
	Deterministic bool   `json:"deterministic"`
}

// Verified reports whether the journal replayed cleanly.
func (r ReplaySignalResult) Verified() bool {
	return r.Deterministic && r.Rejected == 0
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Signals      []ReplaySignalResult `json:"signals"`
	TotalSignals int                  `json:"total_signals"`
	AllVerified  bool                 `json:"all_verified"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a journal and verify determinism",
		Long: `Rebuild every journaled signal from its events and verify the result.

Each signal is replayed twice into a fresh in-memory signal. Both runs must
reach the same snapshot hash, and every journaled event must be accepted.

Exit codes:
  0 - All signals replay deterministically
  1 - Verification failed
  2 - Command error (journal not found, etc.)

Examples:
  sigsync replay --db ./sigsync.db
  sigsync replay --db ./sigsync.db --signal todos
  sigsync replay --db ./sigsync.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.SignalID, "signal", "", "replay one signal only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	records, err := journaledSignals(ctx, st, opts.SignalID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list signals", err)
	}

	result := ReplayResult{
		Signals:      make([]ReplaySignalResult, 0, len(records)),
		TotalSignals: len(records),
		AllVerified:  true,
	}
	for _, rec := range records {
		res, err := st.VerifyReplay(ctx, rec.ID)
		deterministic := true
		if errors.Is(err, store.ErrNondeterministic) {
			deterministic = false
		} else if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay signal %s", rec.ID), err)
		}

		sr := ReplaySignalResult{
			SignalID:      rec.ID,
			Ownership:     rec.Ownership,
			Runs:          res.Runs,
			Events:        res.Events,
			Rejected:      res.Rejected,
			LastSeq:       res.LastSeq,
			Hash:          res.Hash,
			Deterministic: deterministic,
		}
		result.Signals = append(result.Signals, sr)
		if !sr.Verified() {
			result.AllVerified = false
		}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if formatter.isJSON() {
		var failed *CLIError
		if !result.AllVerified {
			failed = &CLIError{Code: ErrCodeDeterminism, Message: "replay verification failed"}
		}
		if err := formatter.Result(result, failed); err != nil {
			return err
		}
	} else {
		outputReplayText(formatter, result)
	}

	if !result.AllVerified {
		return NewExitError(ExitFailure, "replay verification failed")
	}
	return nil
}

// journaledSignals returns the signal rows to replay. A named signal that
// was never journaled is a command error.
func journaledSignals(ctx context.Context, st *store.Store, id string) ([]store.SignalRecord, error) {
	if id == "" {
		return st.ListSignals(ctx)
	}
	rec, err := st.ReadSignal(ctx, id)
	if err != nil {
		return nil, err
	}
	return []store.SignalRecord{rec}, nil
}

func outputReplayText(f *OutputFormatter, result ReplayResult) {
	w := f.Writer
	if result.TotalSignals == 0 {
		fmt.Fprintln(w, "No signals found in journal.")
		return
	}

	fmt.Fprintf(w, "Replay Summary: %d signal(s)\n", result.TotalSignals)
	fmt.Fprintln(w)

	for _, s := range result.Signals {
		status := "✓"
		if !s.Verified() {
			status = "✗"
		}
		fmt.Fprintf(w, "%s Signal: %s (%s)\n", status, s.SignalID, s.Ownership)
		fmt.Fprintf(w, "  Events: %d, last seq %d\n", s.Events, s.LastSeq)
		if f.Verbose {
			fmt.Fprintf(w, "  Runs: %d\n", s.Runs)
			fmt.Fprintf(w, "  Hash: %s\n", s.Hash)
		}
		if !s.Deterministic {
			fmt.Fprintln(w, "  Warning: Non-deterministic replay detected!")
		}
		if s.Rejected > 0 {
			fmt.Fprintf(w, "  Warning: %d journaled event(s) rejected on replay\n", s.Rejected)
		}
		fmt.Fprintln(w)
	}

	if result.AllVerified {
		fmt.Fprintln(w, "✓ All signals verified deterministic")
		return
	}
	fmt.Fprintln(w, "✗ Replay verification failed")
}

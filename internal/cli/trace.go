package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/sigsync/internal/ir"
	"github.com/roach88/sigsync/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	SignalID string
	Kind     string // optional - filter to one command kind
	Entry    string // optional - filter to commands touching one entry
}

// TraceEvent is one journaled event in the timeline.
type TraceEvent struct {
	Seq     int64           `json:"seq"`
	EventID string          `json:"event_id,omitempty"`
	Kind    string          `json:"kind"`
	Summary string          `json:"summary"`
	Hash    string          `json:"hash"`
	Payload json.RawMessage `json:"payload"`
}

// TraceStats counts the timeline.
type TraceStats struct {
	TotalEvents int            `json:"total_events"`
	ByKind      map[string]int `json:"by_kind"`
	LastSeq     int64          `json:"last_seq"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	SignalID  string       `json:"signal_id"`
	Ownership string       `json:"ownership"`
	Initial   ir.Value     `json:"initial"`
	Timeline  []TraceEvent `json:"timeline"`
	Stats     TraceStats   `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the journaled history of a signal",
		Long: `Print the journaled events of one signal in log order.

Each line shows the log sequence number, the event id and a summary of the
command. Filters narrow the timeline without changing the sequence numbers.

Examples:
  sigsync trace --db ./sigsync.db --signal todos
  sigsync trace --db ./sigsync.db --signal todos --kind insert
  sigsync trace --db ./sigsync.db --signal todos --entry item-1 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.SignalID, "signal", "", "signal id to trace (required)")
	_ = cmd.MarkFlagRequired("signal")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one command kind (set|remove|insert|snapshot)")
	cmd.Flags().StringVar(&opts.Entry, "entry", "", "filter to commands touching an entry id")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer st.Close()

	sig, err := st.ReadSignal(ctx, opts.SignalID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read signal", err)
	}
	records, err := st.ReadEvents(ctx, opts.SignalID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	timeline, err := buildTimeline(records, opts.Kind, opts.Entry)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to decode journal", err)
	}

	result := TraceResult{
		SignalID:  sig.ID,
		Ownership: sig.Ownership,
		Initial:   sig.Initial,
		Timeline:  timeline,
		Stats:     TraceStats{TotalEvents: len(timeline), ByKind: make(map[string]int)},
	}
	for _, ev := range timeline {
		result.Stats.ByKind[ev.Kind]++
		result.Stats.LastSeq = ev.Seq
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	if formatter.isJSON() {
		return formatter.Success(result)
	}
	outputTraceText(formatter.Writer, result, opts.Verbose)
	return nil
}

// buildTimeline decodes journal records, keeping those that pass the
// filters. Returns an empty slice (not nil) when nothing matches.
func buildTimeline(records []store.EventRecord, kind, entry string) ([]TraceEvent, error) {
	timeline := []TraceEvent{}
	for _, rec := range records {
		if kind != "" && rec.Kind != kind {
			continue
		}
		e, err := rec.Event()
		if err != nil {
			return nil, err
		}
		if entry != "" && !touches(e, entry) {
			continue
		}

		ev := TraceEvent{
			Seq:     rec.Seq,
			Kind:    rec.Kind,
			Summary: summarize(e.Command),
			Hash:    rec.Hash,
			Payload: json.RawMessage(rec.Payload),
		}
		if rec.EventID != nil {
			ev.EventID = *rec.EventID
		}
		timeline = append(timeline, ev)
	}
	return timeline, nil
}

// touches reports whether e reads or writes entry id. An insert creates the
// entry named by its event id.
func touches(e ir.Event, id string) bool {
	c := e.Command
	for _, cond := range c.Conditions {
		if cond.ID == id {
			return true
		}
	}
	switch {
	case c.Set != nil:
		return c.Set.ID == id
	case c.Remove != nil:
		return c.Remove.ID == id || c.Remove.Parent == id
	case c.Insert != nil:
		if eid, ok := ir.EventID(e); ok && eid == id {
			return true
		}
		return c.Insert.Entry == id || (c.Insert.Reference != nil && *c.Insert.Reference == id)
	case c.Snapshot != nil:
		for _, e := range c.Snapshot.Entries {
			if e.ID == id {
				return true
			}
		}
	}
	return false
}

// summarize renders a command on one line.
func summarize(c ir.Command) string {
	var b strings.Builder
	switch {
	case c.Set != nil:
		fmt.Fprintf(&b, "set %s = %s", displayID(c.Set.ID), c.Set.Value)
	case c.Remove != nil:
		fmt.Fprintf(&b, "remove %s from %s", displayID(c.Remove.ID), displayID(c.Remove.Parent))
	case c.Insert != nil:
		anchor := "tail"
		if c.Insert.Direction == ir.DirectionBefore {
			anchor = "head"
		}
		if c.Insert.Reference != nil {
			anchor = displayID(*c.Insert.Reference)
		}
		fmt.Fprintf(&b, "insert into %s %s %s = %s",
			displayID(c.Insert.Entry), strings.ToLower(string(c.Insert.Direction)), anchor, c.Insert.Value)
	case c.Snapshot != nil:
		fmt.Fprintf(&b, "snapshot (%d entries)", len(c.Snapshot.Entries))
	default:
		b.WriteString("unknown")
	}

	if n := len(c.Conditions); n > 0 {
		fmt.Fprintf(&b, " when %d condition(s)", n)
	}
	return b.String()
}

// displayID shortens the root id, which is the nil UUID.
func displayID(id string) string {
	if id == ir.RootID {
		return "$root"
	}
	return id
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Signal: %s (%s)\n", result.SignalID, result.Ownership)
	if result.Initial != nil {
		fmt.Fprintf(w, "Initial: %s\n", result.Initial)
	} else {
		fmt.Fprintln(w, "Initial: empty list")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		id := ev.EventID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(w, "  [%d] %s %s\n", ev.Seq, id, ev.Summary)
		if verbose {
			fmt.Fprintf(w, "       Hash: %s\n", ev.Hash)
			fmt.Fprintf(w, "       Payload: %s\n", ev.Payload)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	for _, k := range []string{"set", "remove", "insert", "snapshot"} {
		if n := result.Stats.ByKind[k]; n > 0 {
			fmt.Fprintf(w, "  %-13s %d\n", strings.ToUpper(k[:1])+k[1:]+":", n)
		}
	}
}

package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sigsync/internal/ir"
	"github.com/roach88/sigsync/internal/signal"
	"github.com/roach88/sigsync/internal/store"
)

// todoEvents builds the list [a="oat milk"] through four commands.
func todoEvents() []ir.Event {
	return []ir.Event{
		ir.NewEvent("a", ir.Insert(ir.RootID, ir.DirectionAfter, ir.MustValue("milk"))),
		ir.NewEvent("b", ir.InsertAt(ir.RootID, ir.DirectionBefore, "a", ir.MustValue("eggs"))),
		ir.NewEvent("c", ir.Set("a", ir.MustValue("oat milk")).When(ir.Expect("a", ir.MustValue("milk")))),
		ir.NewEvent("d", ir.Remove("b", ir.RootID)),
	}
}

// seedJournal journals events of a live signal the way the server does and
// returns the journal path.
func seedJournal(t *testing.T, signals map[string][]ir.Event, initial map[string]ir.Value) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sigsync.db")

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	j := store.NewJournal(st)
	for id, events := range signals {
		j.RecordSignal(store.SignalRecord{
			ID:        id,
			Initial:   initial[id],
			Ownership: "pinned",
			Capacity:  100,
			CreatedAt: time.Now(),
		})

		opts := []signal.Option{signal.WithHooks(j.Hooks(id))}
		if v := initial[id]; v != nil {
			opts = append(opts, signal.WithValue(v))
		}
		s := signal.New(opts...)
		for _, e := range events {
			require.NoError(t, s.Submit(e))
		}
		s.Close()
	}
	j.Flush(context.Background())
	return path
}

// execute runs cmd with args and returns stdout.
func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

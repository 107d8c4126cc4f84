package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sigsync/internal/ir"
)

func TestTraceRequiredFlags(t *testing.T) {
	_, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", "x.db")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestTraceText(t *testing.T) {
	path := seedJournal(t, map[string][]ir.Event{"todos": todoEvents()}, nil)

	out, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", path, "--signal", "todos")
	require.NoError(t, err)

	assert.Contains(t, out, "Trace for Signal: todos (pinned)")
	assert.Contains(t, out, "Initial: empty list")
	assert.Contains(t, out, `[1] a insert into $root after tail = "milk"`)
	assert.Contains(t, out, `[2] b insert into $root before a = "eggs"`)
	assert.Contains(t, out, `[3] c set a = "oat milk" when 1 condition(s)`)
	assert.Contains(t, out, `[4] d remove b from $root`)
	assert.Contains(t, out, "Total Events: 4")
	assert.NotContains(t, out, "Payload:")
}

func TestTraceFilters(t *testing.T) {
	path := seedJournal(t, map[string][]ir.Event{"todos": todoEvents()}, nil)

	tests := []struct {
		name string
		args []string
		seqs []int64
	}{
		{"kind", []string{"--kind", "insert"}, []int64{1, 2}},
		{"entry", []string{"--entry", "b"}, []int64{2, 4}},
		{"entry_condition", []string{"--entry", "a"}, []int64{1, 2, 3}},
		{"both", []string{"--kind", "set", "--entry", "b"}, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--db", path, "--signal", "todos"}, tt.args...)
			out, err := execute(t, NewTraceCommand(&RootOptions{Format: "json"}), args...)
			require.NoError(t, err)

			var resp struct {
				Data TraceResult `json:"data"`
			}
			require.NoError(t, json.Unmarshal([]byte(out), &resp))

			seqs := []int64{}
			for _, ev := range resp.Data.Timeline {
				seqs = append(seqs, ev.Seq)
			}
			assert.Equal(t, tt.seqs, seqs)
			assert.Equal(t, len(tt.seqs), resp.Data.Stats.TotalEvents)
		})
	}
}

func TestTraceJSONPayload(t *testing.T) {
	path := seedJournal(t,
		map[string][]ir.Event{"counter": {ir.NewEvent("x", ir.Set(ir.RootID, ir.MustValue(1)))}},
		map[string]ir.Value{"counter": ir.MustValue(0)},
	)

	out, err := execute(t, NewTraceCommand(&RootOptions{Format: "json"}), "--db", path, "--signal", "counter")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "0", resp.Data.Initial.String())
	require.Len(t, resp.Data.Timeline, 1)

	ev := resp.Data.Timeline[0]
	assert.Equal(t, "x", ev.EventID)
	assert.Equal(t, "set", ev.Kind)
	assert.Equal(t, 1, resp.Data.Stats.ByKind["set"])

	decoded, err := ir.DecodeEvent(string(ev.Payload))
	require.NoError(t, err)
	require.NotNil(t, decoded.Command.Set)
	assert.True(t, decoded.Command.Set.Value.Equal(ir.MustValue(1)))
}

func TestTraceUnknownSignal(t *testing.T) {
	path := seedJournal(t, nil, nil)

	_, err := execute(t, NewTraceCommand(&RootOptions{Format: "text"}), "--db", path, "--signal", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

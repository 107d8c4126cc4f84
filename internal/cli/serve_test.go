package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sigsync/internal/metrics"
	"github.com/roach88/sigsync/internal/store"
)

const serveConfig = `addr: "127.0.0.1:0"
capacity: 10
signals: {
	counter: value: 0
	todos: {}
}
`

func newServeCommand(t *testing.T) (*ServeOptions, *bytes.Buffer) {
	t.Helper()
	opts := &ServeOptions{
		RootOptions: &RootOptions{Format: "text"},
		Metrics:     metrics.New(nil),
	}
	return opts, &bytes.Buffer{}
}

func TestServe_RunsUntilCancelledAndJournalsPinnedSignals(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "sigsync.cue")
	require.NoError(t, os.WriteFile(cfgPath, []byte(serveConfig), 0o644))
	journal := filepath.Join(dir, "sigsync.db")

	opts, out := newServeCommand(t)
	opts.Config = cfgPath
	opts.Journal = journal

	cmd := NewServeCommand(opts.RootOptions)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- runServe(opts, cmd) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
	assert.Contains(t, out.String(), "sigsync listening on 127.0.0.1:0")

	st, err := store.Open(journal)
	require.NoError(t, err)
	defer st.Close()

	signals, err := st.ListSignals(context.Background())
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, "counter", signals[0].ID)
	assert.Equal(t, "pinned", signals[0].Ownership)
	assert.Equal(t, 10, signals[0].Capacity)
	assert.Equal(t, "todos", signals[1].ID)
	assert.Nil(t, signals[1].Initial)
}

func TestServe_InvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bad.cue")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`capacity: -1`), 0o644))

	opts, out := newServeCommand(t)
	opts.Config = cfgPath
	cmd := NewServeCommand(opts.RootOptions)
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})

	err := runServe(opts, cmd)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestLoadServeConfig_Overrides(t *testing.T) {
	opts := &ServeOptions{Addr: ":9999", Journal: "x.db"}

	cfg, err := loadServeConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, "x.db", cfg.Journal)
	assert.Equal(t, 100, cfg.Capacity)
}

package signal

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sigsync/internal/eventlog"
	"github.com/roach88/sigsync/internal/ir"
)

func next(t *testing.T, sub *Subscription) ir.Event {
	t.Helper()
	select {
	case e, ok := <-sub.C():
		require.True(t, ok, "stream closed")
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return ir.Event{}
	}
}

func TestState_NewSubscriberGetsEmptyListSnapshot(t *testing.T) {
	s := New()
	defer s.Close()

	sub := s.Subscribe(context.Background(), nil)
	defer sub.Close()

	e := next(t, sub)
	assert.JSONEq(t,
		`{"id":null,"entries":[{"id":"`+ir.RootID+`","next":null,"prev":null,"value":{"head":null,"tail":null}}]}`,
		ir.MustEncodeEvent(e))
	assert.False(t, sub.Replayed())
}

func TestState_InsertIsBroadcastAndApplied(t *testing.T) {
	s := New()
	defer s.Close()

	sub := s.Subscribe(context.Background(), nil)
	defer sub.Close()
	next(t, sub)

	ev := ir.NewEvent("E1", ir.Insert(ir.RootID, ir.DirectionAfter, str("x")))
	require.NoError(t, s.Submit(ev))

	got := next(t, sub)
	assert.Equal(t, ir.MustEncodeEvent(ev), ir.MustEncodeEvent(got))

	snap := s.Snapshot()
	root, ok := Lookup(snap, ir.RootID)
	require.True(t, ok)
	assert.JSONEq(t, `{"head":"E1","tail":"E1"}`, root.Value.String())

	e1, ok := Lookup(snap, "E1")
	require.True(t, ok)
	assert.Nil(t, e1.Prev)
	assert.Nil(t, e1.Next)
	assert.JSONEq(t, `"x"`, e1.Value.String())
}

func TestState_DroppedCommandStillLoggedAndBroadcast(t *testing.T) {
	var drops []DropReason
	s := New(WithDropHook(func(r DropReason) { drops = append(drops, r) }))
	defer s.Close()

	sub := s.Subscribe(context.Background(), nil)
	defer sub.Close()
	next(t, sub)

	before, err := s.Hash()
	require.NoError(t, err)

	ev := ir.NewEvent("R1", ir.Remove("missing", ir.RootID))
	require.NoError(t, s.Submit(ev))

	assert.Equal(t, "R1", *next(t, sub).ID)
	assert.Equal(t, 1, s.Len())
	assert.True(t, s.Contains("R1"))
	assert.Equal(t, []DropReason{DropMissingTarget}, drops)

	after, err := s.Hash()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestState_ProtocolErrorNotAppended(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	s := New(WithLogger(logger))
	defer s.Close()

	err := s.Submit(ir.Event{ID: strPtr("bad")})
	require.Error(t, err)
	assert.Equal(t, ir.ErrCodeUnknownCommand, ir.ProtocolCode(err))
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, int64(0), s.Seq())
	assert.Contains(t, buf.String(), "rejected event")
	assert.Contains(t, buf.String(), "event_id=bad")
}

func TestState_ValueMode(t *testing.T) {
	s := New(WithValue(ir.MustValue(42)))
	defer s.Close()

	root, ok := Lookup(s.Snapshot(), ir.RootID)
	require.True(t, ok)
	assert.JSONEq(t, `42`, root.Value.String())

	require.NoError(t, s.Submit(ir.NewEvent("s1", ir.Set(ir.RootID, ir.MustValue(43)).When(ir.Expect(ir.RootID, ir.MustValue(42))))))
	require.NoError(t, s.Submit(ir.NewEvent("s2", ir.Set(ir.RootID, ir.MustValue(44)).When(ir.Expect(ir.RootID, ir.MustValue(42))))))

	root, _ = Lookup(s.Snapshot(), ir.RootID)
	assert.JSONEq(t, `43`, root.Value.String())

	// Inserting into a scalar root changes nothing.
	require.NoError(t, s.Submit(ir.NewEvent("i1", ir.Insert(ir.RootID, ir.DirectionAfter, str("x")))))
	_, ok = ListOrder(s.Snapshot(), ir.RootID)
	assert.False(t, ok)
}

func TestState_CheckpointResume(t *testing.T) {
	s := New()
	defer s.Close()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Submit(ir.NewEvent(fmt.Sprintf("e%d", i), ir.Insert(ir.RootID, ir.DirectionAfter, ir.MustValue(i)))))
	}

	cp := "e3"
	sub := s.Subscribe(context.Background(), &cp)
	defer sub.Close()

	assert.True(t, sub.Replayed())
	assert.Equal(t, "e4", *next(t, sub).ID)
	assert.Equal(t, "e5", *next(t, sub).ID)
}

func TestState_EvictedCheckpointFallsBackToSnapshot(t *testing.T) {
	s := New(WithCapacity(3))
	defer s.Close()

	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Submit(ir.NewEvent(fmt.Sprintf("e%d", i), ir.Insert(ir.RootID, ir.DirectionAfter, ir.MustValue(i)))))
	}
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Contains("e1"))

	cp := "e1"
	sub := s.Subscribe(context.Background(), &cp)
	defer sub.Close()

	first := next(t, sub)
	require.True(t, first.IsSnapshot())
	assert.False(t, sub.Replayed())

	values, ok := ListValues(first, ir.RootID)
	require.True(t, ok)
	require.Len(t, values, 5)
	assert.JSONEq(t, `1`, values[0].String())
	assert.JSONEq(t, `5`, values[4].String())
}

func TestState_ReplayFromSnapshotConverges(t *testing.T) {
	s := New()
	defer s.Close()

	require.NoError(t, s.Submit(ir.NewEvent("a", ir.Insert(ir.RootID, ir.DirectionAfter, str("a")))))
	mid := s.Snapshot()

	require.NoError(t, s.Submit(ir.NewEvent("b", ir.Insert(ir.RootID, ir.DirectionAfter, str("b")))))
	require.NoError(t, s.Submit(ir.NewEvent("c", ir.InsertAt(ir.RootID, ir.DirectionBefore, "b", str("c")))))
	require.NoError(t, s.Submit(ir.NewEvent("d", ir.Remove("a", ir.RootID))))

	// Rebuild a second signal from the mid snapshot plus the tail of history.
	replica := fromSnapshot(t, mid)
	for _, e := range s.History()[1:] {
		require.NoError(t, replica.Process(e))
	}

	assert.Equal(t, ir.MustSnapshotHash(s.Snapshot()), ir.MustSnapshotHash(replica.Snapshot()))
}

func TestState_ConcurrentWritersAllObservedInOrder(t *testing.T) {
	s := New(WithCapacity(1000), WithBuffer(1000))
	defer s.Close()

	sub := s.Subscribe(context.Background(), nil)
	defer sub.Close()
	next(t, sub)

	const writers, perWriter = 4, 25
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				id := fmt.Sprintf("w%d-%d", w, i)
				assert.NoError(t, s.Submit(ir.NewEvent(id, ir.Insert(ir.RootID, ir.DirectionAfter, str(id)))))
			}
		}()
	}
	wg.Wait()

	var seen []string
	for range writers * perWriter {
		seen = append(seen, *next(t, sub).ID)
	}
	got, ok := ListOrder(s.Snapshot(), ir.RootID)
	require.True(t, ok)
	assert.Equal(t, seen, got, "list order matches broadcast order")
}

func TestState_HooksObserveLifecycle(t *testing.T) {
	var appended, subscribed, left int
	s := New(WithHooks(Hooks{
		OnAppend:    func(int64, ir.Event) { appended++ },
		OnSubscribe: func(int) { subscribed++ },
		OnLeave:     func(int, bool) { left++ },
	}))

	sub := s.Subscribe(context.Background(), nil)
	require.NoError(t, s.Submit(ir.NewEvent("x", ir.Set(ir.RootID, str("v")))))
	sub.Close()

	assert.Equal(t, 1, appended)
	assert.Equal(t, 1, subscribed)
	assert.Equal(t, 1, left)

	s.Close()
	assert.ErrorIs(t, s.Submit(ir.NewEvent("y", ir.Set(ir.RootID, str("v")))), eventlog.ErrClosed)
}

// fromSnapshot rebuilds a processor from a snapshot event.
func fromSnapshot(t *testing.T, snap ir.Event) *processor {
	t.Helper()
	require.NotNil(t, snap.Command.Snapshot)
	p := &processor{entries: make(map[string]*Entry)}
	for _, e := range snap.Command.Snapshot.Entries {
		p.entries[e.ID] = &Entry{ID: e.ID, Prev: clonePtr(e.Prev), Next: clonePtr(e.Next), Value: e.Value}
	}
	return p
}

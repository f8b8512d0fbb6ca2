package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flag struct {
	ID     string
	Public bool
}

func flagKey(f flag) string { return f.ID }

type call struct {
	req   Request
	reply chan error
}

// gate holds every dispatched request until the test answers it.
type gate struct {
	calls chan call
}

func newGate() *gate { return &gate{calls: make(chan call, 16)} }

func (g *gate) Dispatch(ctx context.Context, req Request) error {
	c := call{req: req, reply: make(chan error, 1)}
	g.calls <- c
	select {
	case err := <-c.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-g.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no dispatch received")
		return call{}
	}
}

var accept = DispatcherFunc(func(context.Context, Request) error { return nil })

type recorder struct {
	mu     sync.Mutex
	toasts []Toast
	states []State
}

func (r *recorder) Notify(t Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, t)
}

func (r *recorder) ObserveMutation(_, _ string, s State, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func toggle(m *Mutator[string, flag], id string) Mutation[string, flag] {
	cur, _ := m.Mirror().Get(id)
	next := flag{ID: id, Public: !cur.Public}
	return Mutation[string, flag]{Action: "toggle", Data: next, Changes: []Change[string, flag]{m.Put(next)}}
}

func TestToggleTwiceRestoresOriginal(t *testing.T) {
	mirror := NewMirror([]flag{{"r1", false}, {"r2", true}}, flagKey)
	m := NewMutator("resource", mirror, accept)

	require.True(t, m.Apply(context.Background(), toggle(m, "r1")).OK())
	got, _ := mirror.Get("r1")
	assert.True(t, got.Public)

	require.True(t, m.Apply(context.Background(), toggle(m, "r1")).OK())
	got, _ = mirror.Get("r1")
	assert.False(t, got.Public)
}

func TestSuccessChangesOnlyTargetRecord(t *testing.T) {
	mirror := NewMirror([]flag{{"r1", false}, {"r2", true}, {"r3", false}}, flagKey)
	m := NewMutator("resource", mirror, accept)

	res := m.Apply(context.Background(), toggle(m, "r2"))

	require.True(t, res.OK())
	assert.Equal(t, []flag{{"r1", false}, {"r2", false}, {"r3", false}}, mirror.Items())
}

func TestRejectionReverts(t *testing.T) {
	fail := DispatcherFunc(func(context.Context, Request) error {
		return NewError(KindBusiness, "resource is locked")
	})
	mirror := NewMirror([]flag{{"r1", false}}, flagKey)
	m := NewMutator("resource", mirror, fail)

	res := m.Apply(context.Background(), toggle(m, "r1"))

	assert.Equal(t, Rejected, res.State)
	assert.Equal(t, KindBusiness, res.Kind())
	assert.Equal(t, "resource is locked", res.Err.Message)
	assert.Equal(t, []flag{{"r1", false}}, mirror.Items())
	assert.Zero(t, m.Pending("r1"))
}

func TestRejectedAppendIsRemoved(t *testing.T) {
	fail := DispatcherFunc(func(context.Context, Request) error { return errors.New("boom") })
	mirror := NewMirror([]flag{{"r1", false}}, flagKey)
	m := NewMutator("resource", mirror, fail)

	res := m.Apply(context.Background(), Mutation[string, flag]{
		Action:  "create",
		Changes: []Change[string, flag]{m.Put(flag{ID: "r2", Public: true})},
	})

	assert.Equal(t, KindInternal, res.Kind())
	assert.Equal(t, 1, mirror.Len())
}

func TestRejectedDeleteRestoresPosition(t *testing.T) {
	fail := DispatcherFunc(func(context.Context, Request) error {
		return NewError(KindTransport, "network down")
	})
	mirror := NewMirror([]flag{{"a", false}, {"b", true}, {"c", false}}, flagKey)
	m := NewMutator("resource", mirror, fail)

	res := m.Apply(context.Background(), Mutation[string, flag]{
		Action:  "delete",
		Changes: []Change[string, flag]{m.Delete("b")},
	})

	assert.False(t, res.OK())
	assert.Equal(t, []flag{{"a", false}, {"b", true}, {"c", false}}, mirror.Items())
}

func TestRejectedDeleteAfterEarlierDeleteCommits(t *testing.T) {
	g := newGate()
	mirror := NewMirror([]flag{{"a", false}, {"b", true}, {"c", false}}, flagKey)
	m := NewMutator("resource", mirror, g)
	del := func(id string) Mutation[string, flag] {
		return Mutation[string, flag]{Action: "delete", Changes: []Change[string, flag]{m.Delete(id)}}
	}

	resB := make(chan Result, 1)
	go func() { resB <- m.Apply(context.Background(), del("b")) }()
	callB := g.next(t)

	resA := make(chan Result, 1)
	go func() { resA <- m.Apply(context.Background(), del("a")) }()
	callA := g.next(t)

	callA.reply <- nil
	require.True(t, (<-resA).OK())
	callB.reply <- NewError(KindConflict, "resource changed")
	require.False(t, (<-resB).OK())

	assert.Equal(t, []flag{{"b", true}, {"c", false}}, mirror.Items())
}

func TestRejectedDeletesRestoreOriginalOrder(t *testing.T) {
	g := newGate()
	mirror := NewMirror([]flag{{"a", false}, {"b", true}, {"c", false}, {"d", false}}, flagKey)
	m := NewMutator("resource", mirror, g)
	del := func(id string) Mutation[string, flag] {
		return Mutation[string, flag]{Action: "delete", Changes: []Change[string, flag]{m.Delete(id)}}
	}

	results := make(chan Result, 2)
	go func() { results <- m.Apply(context.Background(), del("c")) }()
	callC := g.next(t)
	go func() { results <- m.Apply(context.Background(), del("b")) }()
	callB := g.next(t)
	require.Equal(t, []flag{{"a", false}, {"d", false}}, mirror.Items())

	callB.reply <- NewError(KindTransport, "network down")
	<-results
	callC.reply <- NewError(KindTransport, "network down")
	<-results

	assert.Equal(t, []flag{{"a", false}, {"b", true}, {"c", false}, {"d", false}}, mirror.Items())
}

func TestOptimisticValueVisibleWhilePending(t *testing.T) {
	g := newGate()
	mirror := NewMirror([]flag{{"r1", false}}, flagKey)
	m := NewMutator("resource", mirror, g)

	done := make(chan Result, 1)
	go func() { done <- m.Apply(context.Background(), toggle(m, "r1")) }()

	c := g.next(t)
	got, _ := mirror.Get("r1")
	assert.True(t, got.Public, "mirror shows the optimistic value before the reply")
	assert.Equal(t, 1, m.Pending("r1"))
	assert.NotEmpty(t, c.req.Token)

	c.reply <- nil
	assert.True(t, (<-done).OK())
	assert.Zero(t, m.Pending("r1"))
}

func TestStaleRejectionKeepsNewerValue(t *testing.T) {
	g := newGate()
	mirror := NewMirror([]row{{"s1", "ABSENT"}}, rowKey)
	m := NewMutator("attendance", mirror, g)
	mark := func(status string) Mutation[string, row] {
		return Mutation[string, row]{Action: "mark", Changes: []Change[string, row]{m.Put(row{"s1", status})}}
	}

	first := make(chan Result, 1)
	go func() { first <- m.Apply(context.Background(), mark("LATE")) }()
	c1 := g.next(t)

	second := make(chan Result, 1)
	go func() { second <- m.Apply(context.Background(), mark("PRESENT")) }()
	c2 := g.next(t)

	got, _ := mirror.Get("s1")
	assert.Equal(t, "PRESENT", got.Name)

	c1.reply <- NewError(KindTransport, "timeout")
	r1 := <-first
	assert.Equal(t, Rejected, r1.State)
	assert.True(t, r1.Superseded)
	got, _ = mirror.Get("s1")
	assert.Equal(t, "PRESENT", got.Name, "stale rejection must not clobber the newer pending value")

	c2.reply <- nil
	assert.True(t, (<-second).OK())
	got, _ = mirror.Get("s1")
	assert.Equal(t, "PRESENT", got.Name)
}

func TestNewerRejectionFallsBackToOlderPending(t *testing.T) {
	g := newGate()
	mirror := NewMirror([]row{{"s1", "ABSENT"}}, rowKey)
	m := NewMutator("attendance", mirror, g)
	mark := func(status string) Mutation[string, row] {
		return Mutation[string, row]{Action: "mark", Changes: []Change[string, row]{m.Put(row{"s1", status})}}
	}

	first := make(chan Result, 1)
	go func() { first <- m.Apply(context.Background(), mark("LATE")) }()
	c1 := g.next(t)
	second := make(chan Result, 1)
	go func() { second <- m.Apply(context.Background(), mark("EXCUSED")) }()
	c2 := g.next(t)

	c2.reply <- NewError(KindValidation, "bad status")
	assert.False(t, (<-second).OK())
	got, _ := mirror.Get("s1")
	assert.Equal(t, "LATE", got.Name)

	c1.reply <- NewError(KindTransport, "timeout")
	<-first
	got, _ = mirror.Get("s1")
	assert.Equal(t, "ABSENT", got.Name, "everything rejected, back to the confirmed value")
}

func TestOutOfOrderCommitKeepsNewest(t *testing.T) {
	g := newGate()
	mirror := NewMirror([]row{{"s1", "ABSENT"}}, rowKey)
	m := NewMutator("attendance", mirror, g)
	mark := func(status string) Mutation[string, row] {
		return Mutation[string, row]{Action: "mark", Changes: []Change[string, row]{m.Put(row{"s1", status})}}
	}

	first := make(chan Result, 1)
	go func() { first <- m.Apply(context.Background(), mark("LATE")) }()
	c1 := g.next(t)
	second := make(chan Result, 1)
	go func() { second <- m.Apply(context.Background(), mark("PRESENT")) }()
	c2 := g.next(t)

	c2.reply <- nil
	assert.True(t, (<-second).OK())
	c1.reply <- nil
	r1 := <-first
	assert.True(t, r1.OK())
	assert.True(t, r1.Superseded)

	got, _ := mirror.Get("s1")
	assert.Equal(t, "PRESENT", got.Name)
}

func TestConcurrentAppendsNeverDuplicate(t *testing.T) {
	g := newGate()
	mirror := NewMirror[string, row](nil, rowKey)
	m := NewMutator("attendance", mirror, g)

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Apply(context.Background(), Mutation[string, row]{
				Action:  "mark",
				Changes: []Change[string, row]{m.Put(row{"s1|sch1", "PRESENT"})},
			})
		}()
	}
	c1, c2 := g.next(t), g.next(t)
	assert.Equal(t, 1, mirror.Len(), "double click while both calls are in flight")
	assert.NotEqual(t, c1.req.Token, c2.req.Token)

	c1.reply <- nil
	c2.reply <- nil
	wg.Wait()
	assert.Equal(t, 1, mirror.Len())
}

func TestBatchCoversEveryRecord(t *testing.T) {
	var calls int
	d := DispatcherFunc(func(context.Context, Request) error { calls++; return nil })
	mirror := NewMirror[string, row](nil, rowKey)
	m := NewMutator("attendance", mirror, d)

	roster := []string{"s1", "s2", "s3"}
	mut := Mutation[string, row]{Action: "bulk_mark"}
	for _, id := range roster {
		mut.Changes = append(mut.Changes, m.Put(row{id, "PRESENT"}))
	}
	res := m.Apply(context.Background(), mut)

	require.True(t, res.OK())
	assert.Equal(t, 1, calls)
	require.Equal(t, 3, mirror.Len())
	for _, r := range mirror.Items() {
		assert.Equal(t, "PRESENT", r.Name)
	}
}

func TestBatchRejectionRevertsAll(t *testing.T) {
	fail := DispatcherFunc(func(context.Context, Request) error { return NewError(KindForbidden, "not your class") })
	mirror := NewMirror([]row{{"s1", "ABSENT"}}, rowKey)
	m := NewMutator("attendance", mirror, fail)

	mut := Mutation[string, row]{Action: "bulk_mark"}
	for _, id := range []string{"s1", "s2", "s3"} {
		mut.Changes = append(mut.Changes, m.Put(row{id, "PRESENT"}))
	}
	res := m.Apply(context.Background(), mut)

	assert.Equal(t, KindForbidden, res.Kind())
	assert.Equal(t, []row{{"s1", "ABSENT"}}, mirror.Items())
}

func TestBatchWithRepeatedKeySettlesOnLastValue(t *testing.T) {
	mirror := NewMirror[string, row](nil, rowKey)
	m := NewMutator("attendance", mirror, accept)

	res := m.Apply(context.Background(), Mutation[string, row]{
		Action:  "bulk_mark",
		Changes: []Change[string, row]{m.Put(row{"s1", "LATE"}), m.Put(row{"s1", "PRESENT"})},
	})

	require.True(t, res.OK())
	got, _ := mirror.Get("s1")
	assert.Equal(t, "PRESENT", got.Name)
	assert.Equal(t, 1, mirror.Len())
}

func TestCancelledContextRejects(t *testing.T) {
	g := newGate()
	mirror := NewMirror([]flag{{"r1", false}}, flagKey)
	m := NewMutator("resource", mirror, g)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Result, 1)
	go func() { done <- m.Apply(ctx, toggle(m, "r1")) }()
	g.next(t)
	cancel()

	res := <-done
	assert.Equal(t, KindTransport, res.Kind())
	got, _ := mirror.Get("r1")
	assert.False(t, got.Public)
}

func TestAlreadyCancelledContextSkipsDispatch(t *testing.T) {
	var called bool
	d := DispatcherFunc(func(context.Context, Request) error { called = true; return nil })
	mirror := NewMirror([]flag{{"r1", false}}, flagKey)
	m := NewMutator("resource", mirror, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := m.Apply(ctx, toggle(m, "r1"))

	assert.False(t, called)
	assert.Equal(t, Rejected, res.State)
}

func TestFeedbackAndObserver(t *testing.T) {
	rec := &recorder{}
	calls := 0
	d := DispatcherFunc(func(context.Context, Request) error {
		calls++
		if calls == 2 {
			return NewError(KindConflict, "version mismatch")
		}
		return nil
	})
	mirror := NewMirror([]flag{{"r1", false}}, flagKey)
	m := NewMutator("resource", mirror, d, WithNotifier(rec), WithObserver(rec), WithTokens(func() string {
		return fmt.Sprintf("tok-%d", calls)
	}))

	mut := toggle(m, "r1")
	mut.Success, mut.Failure = "Visibility updated", "Could not update visibility"
	m.Apply(context.Background(), mut)
	mut = toggle(m, "r1")
	mut.Success, mut.Failure = "Visibility updated", "Could not update visibility"
	m.Apply(context.Background(), mut)

	require.Len(t, rec.toasts, 2)
	assert.Equal(t, LevelSuccess, rec.toasts[0].Level)
	assert.Equal(t, "Visibility updated", rec.toasts[0].Message)
	assert.Equal(t, LevelError, rec.toasts[1].Level)
	assert.Equal(t, "version mismatch", rec.toasts[1].Description)
	assert.Equal(t, KindConflict, rec.toasts[1].Kind)
	assert.Equal(t, []State{Committed, Rejected}, rec.states)
}

func TestKindOf(t *testing.T) {
	sentinel := NewError(KindNotFound, "student not found")
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"plain", errors.New("x"), KindInternal},
		{"typed", sentinel, KindNotFound},
		{"wrapped", fmt.Errorf("mark: %w", sentinel), KindNotFound},
		{"deadline", context.DeadlineExceeded, KindTransport},
		{"cancelled", fmt.Errorf("dispatch: %w", context.Canceled), KindTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestAsErrorKeepsWrappedMessage(t *testing.T) {
	sentinel := NewError(KindNotFound, "student not found")
	e := AsError(fmt.Errorf("mark s1: %w", sentinel))

	assert.Equal(t, KindNotFound, e.Kind)
	assert.Equal(t, "mark s1: student not found", e.Message)
	assert.ErrorIs(t, e, sentinel)
}

func TestRejectSkipsDispatch(t *testing.T) {
	rec := &recorder{}
	var called bool
	d := DispatcherFunc(func(context.Context, Request) error { called = true; return nil })
	mirror := NewMirror([]flag{{"r1", false}}, flagKey)
	m := NewMutator("resource", mirror, d, WithNotifier(rec), WithObserver(rec))

	mut := toggle(m, "r1")
	mut.Failure = "Could not update"
	res := m.Reject(mut, NewError(KindValidation, "title is required"))

	assert.False(t, called)
	assert.Equal(t, KindValidation, res.Kind())
	assert.Equal(t, []flag{{"r1", false}}, mirror.Items())
	require.Len(t, rec.toasts, 1)
	assert.Equal(t, "title is required", rec.toasts[0].Description)
}

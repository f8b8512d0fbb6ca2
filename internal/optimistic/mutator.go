package optimistic

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Request is a single remote call. Data is sent as-is; Token identifies the
// mutation so the server can drop a replayed request.
type Request struct {
	Action string `json:"action"`
	Data   any    `json:"data"`
	Token  string `json:"token"`
}

// Dispatcher issues the remote call for one user action.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, req Request) error

func (f DispatcherFunc) Dispatch(ctx context.Context, req Request) error { return f(ctx, req) }

// Observer receives the outcome of every mutation.
type Observer interface {
	ObserveMutation(entity, action string, state State, elapsed time.Duration)
}

// State is the lifecycle position of a mutation.
type State int

const (
	Pending State = iota
	Committed
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Result is the outcome of Apply: committed, or rejected with a kind.
// Superseded is set when a newer mutation on one of the same keys was still
// pending, so the mirror kept showing the newer value.
type Result struct {
	Seq        uint64
	Token      string
	State      State
	Superseded bool
	Err        *Error
}

// OK reports whether the mutation committed.
func (r Result) OK() bool { return r.State == Committed }

// Kind returns the rejection kind, or "" when committed.
func (r Result) Kind() ErrorKind {
	if r.Err == nil {
		return ""
	}
	return r.Err.Kind
}

// Op is the effect of a change on the mirror.
type Op int

const (
	OpPut Op = iota
	OpDelete
)

// Change is one record-level effect of a mutation. Build them with
// Mutator.Put and Mutator.Delete.
type Change[K comparable, T any] struct {
	Op    Op
	Key   K
	Value T
}

// Mutation describes one user action: the remote call and its expected
// effect on the mirror. Success and Failure are toast messages; empty
// messages are not shown.
type Mutation[K comparable, T any] struct {
	Action  string
	Data    any
	Changes []Change[K, T]
	Success string
	Failure string
}

type pendingChange[T any] struct {
	seq    uint64
	value  T
	exists bool
}

// keyState tracks a key while at least one mutation on it is in flight.
type keyState[K comparable, T any] struct {
	base       T
	baseExists bool
	baseSeq    uint64
	slot       slot[K]
	pending    []pendingChange[T]
}

// view is the newest pending value unless a later mutation has already
// committed.
func (ks *keyState[K, T]) view() (T, bool) {
	if n := len(ks.pending); n > 0 && ks.pending[n-1].seq > ks.baseSeq {
		p := ks.pending[n-1]
		return p.value, p.exists
	}
	return ks.base, ks.baseExists
}

// Mutator applies mutations to a Mirror ahead of server confirmation and
// reconciles once the Dispatcher answers. Rejected mutations are always
// reverted. It is safe for concurrent use.
type Mutator[K comparable, T any] struct {
	entity     string
	mirror     *Mirror[K, T]
	dispatcher Dispatcher
	notifier   Notifier
	observer   Observer
	newToken   func() string

	mu   sync.Mutex
	seq  uint64
	keys map[K]*keyState[K, T]
}

// Option configures a Mutator.
type Option func(*options)

type options struct {
	notifier Notifier
	observer Observer
	newToken func() string
}

// WithNotifier sets the feedback channel.
func WithNotifier(n Notifier) Option { return func(o *options) { o.notifier = n } }

// WithObserver sets the outcome observer.
func WithObserver(obs Observer) Option { return func(o *options) { o.observer = obs } }

// WithTokens overrides the request token generator.
func WithTokens(fn func() string) Option { return func(o *options) { o.newToken = fn } }

// NewMutator creates a mutator for entity over mirror.
func NewMutator[K comparable, T any](entity string, mirror *Mirror[K, T], d Dispatcher, opts ...Option) *Mutator[K, T] {
	o := options{newToken: uuid.NewString}
	for _, opt := range opts {
		opt(&o)
	}
	return &Mutator[K, T]{
		entity:     entity,
		mirror:     mirror,
		dispatcher: d,
		notifier:   o.notifier,
		observer:   o.observer,
		newToken:   o.newToken,
		keys:       make(map[K]*keyState[K, T]),
	}
}

// Mirror returns the mirror the mutator writes to.
func (m *Mutator[K, T]) Mirror() *Mirror[K, T] { return m.mirror }

// Put builds a change that stores value under its key.
func (m *Mutator[K, T]) Put(value T) Change[K, T] {
	return Change[K, T]{Op: OpPut, Key: m.mirror.Key(value), Value: value}
}

// Delete builds a change that removes key.
func (m *Mutator[K, T]) Delete(key K) Change[K, T] {
	return Change[K, T]{Op: OpDelete, Key: key}
}

// Pending reports how many mutations on key are still in flight.
func (m *Mutator[K, T]) Pending(key K) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ks, ok := m.keys[key]; ok {
		return len(ks.pending)
	}
	return 0
}

// Apply updates the mirror optimistically, dispatches the remote call and
// blocks until it answers or ctx ends. All changes of the mutation commit
// or revert together.
func (m *Mutator[K, T]) Apply(ctx context.Context, mut Mutation[K, T]) Result {
	start := time.Now()
	seq := m.begin(mut.Changes)
	token := m.newToken()

	var err error
	if err = ctx.Err(); err == nil {
		err = m.dispatcher.Dispatch(ctx, Request{Action: mut.Action, Data: mut.Data, Token: token})
	}

	res := Result{Seq: seq, Token: token, State: Committed}
	if err != nil {
		res.State = Rejected
		res.Err = AsError(err)
	}
	res.Superseded = m.settle(seq, mut.Changes, err == nil)

	m.feedback(mut, res)
	if m.observer != nil {
		m.observer.ObserveMutation(m.entity, mut.Action, res.State, time.Since(start))
	}
	return res
}

// begin records the pending changes and applies them to the mirror.
func (m *Mutator[K, T]) begin(changes []Change[K, T]) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	seq := m.seq
	for _, ch := range changes {
		ks, ok := m.keys[ch.Key]
		if !ok {
			cur, exists := m.mirror.Get(ch.Key)
			ks = &keyState[K, T]{base: cur, baseExists: exists, slot: m.mirror.slotOf(ch.Key)}
			m.keys[ch.Key] = ks
		}
		p := pendingChange[T]{seq: seq, value: ch.Value, exists: ch.Op == OpPut}
		ks.pending = append(ks.pending, p)
		m.show(ch.Key, ks)
	}
	return seq
}

// settle removes the mutation from the pending lists, promotes committed
// values to the confirmed baseline and re-renders each key. It reports
// whether a newer mutation owned any of the keys.
func (m *Mutator[K, T]) settle(seq uint64, changes []Change[K, T], committed bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	superseded := false
	// newest change first, so a key changed twice in one batch settles on
	// its last value
	for i := len(changes) - 1; i >= 0; i-- {
		ch := changes[i]
		ks, ok := m.keys[ch.Key]
		if !ok {
			continue
		}
		kept := ks.pending[:0]
		for _, p := range ks.pending {
			if p.seq == seq {
				continue
			}
			if p.seq > seq {
				superseded = true
			}
			kept = append(kept, p)
		}
		ks.pending = kept
		if ks.baseSeq > seq {
			superseded = true
		}
		if committed && seq > ks.baseSeq {
			ks.base, ks.baseExists, ks.baseSeq = ch.Value, ch.Op == OpPut, seq
		}
		m.show(ch.Key, ks)
		if len(ks.pending) == 0 {
			m.forget(ch.Key, ks)
		}
	}
	return superseded
}

func (m *Mutator[K, T]) show(key K, ks *keyState[K, T]) {
	v, exists := ks.view()
	if !exists {
		m.mirror.unset(key)
		return
	}
	m.mirror.restore(key, v, m.anchor(ks.slot))
}

// anchor follows a slot whose neighbour is hidden by its own pending
// delete back to the nearest neighbour still on show.
func (m *Mutator[K, T]) anchor(s slot[K]) slot[K] {
	for i, n := 0, len(m.keys); i < n; i++ {
		if !s.hasPrev {
			break
		}
		if _, ok := m.mirror.Get(s.prev); ok {
			break
		}
		ks, ok := m.keys[s.prev]
		if !ok || !ks.slot.placed {
			break
		}
		s = ks.slot
	}
	return s
}

// forget drops the state of a settled key. Slots that pointed at a key
// which is now gone for good take over its own slot.
func (m *Mutator[K, T]) forget(key K, ks *keyState[K, T]) {
	delete(m.keys, key)
	if _, ok := m.mirror.Get(key); ok {
		return
	}
	for _, other := range m.keys {
		if other.slot.hasPrev && other.slot.prev == key {
			other.slot.prev, other.slot.hasPrev = ks.slot.prev, ks.slot.hasPrev
		}
	}
}

func (m *Mutator[K, T]) feedback(mut Mutation[K, T], res Result) {
	if m.notifier == nil {
		return
	}
	now := time.Now()
	switch {
	case res.OK() && mut.Success != "":
		m.notifier.Notify(Toast{Level: LevelSuccess, Message: mut.Success, At: now})
	case !res.OK() && mut.Failure != "":
		m.notifier.Notify(Toast{Level: LevelError, Message: mut.Failure, Description: res.Err.Error(), Kind: res.Err.Kind, At: now})
	}
}

// Reject settles mut as rejected without touching the mirror or dispatching,
// for input the caller already knows the server would refuse.
func (m *Mutator[K, T]) Reject(mut Mutation[K, T], err error) Result {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	res := Result{Seq: seq, State: Rejected, Err: AsError(err)}
	m.feedback(mut, res)
	if m.observer != nil {
		m.observer.ObserveMutation(m.entity, mut.Action, res.State, 0)
	}
	return res
}

package handle

import (
	"context"
	"sync"
	"time"
)

// DefaultDebounce is the pause after the last proposal before a lookup runs.
const DefaultDebounce = 500 * time.Millisecond

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. *time.Timer satisfies Timer.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clock struct{}

func (clock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Result is a snapshot of the negotiator.
type Result struct {
	Handle     string
	State      State
	Err        error
	Generation uint64
}

// Option configures a Negotiator.
type Option func(*Negotiator)

// WithScheduler replaces the wall-clock timer source.
func WithScheduler(s Scheduler) Option {
	return func(n *Negotiator) { n.sched = s }
}

// WithDebounce sets the debounce window.
func WithDebounce(d time.Duration) Option {
	return func(n *Negotiator) { n.delay = d }
}

// WithEditing puts the negotiator in edit mode for an existing account.
func WithEditing(e Editing) Option {
	return func(n *Negotiator) { n.editing = e }
}

// WithContext sets the context passed to directory lookups.
func WithContext(ctx context.Context) Option {
	return func(n *Negotiator) { n.ctx = ctx }
}

// Negotiator tracks the availability of a handle as it is typed.
// Every proposal bumps a generation; only the lookup issued for the latest
// generation may change the state, so a slow stale lookup never overwrites
// a newer result.
type Negotiator struct {
	dir     Directory
	sched   Scheduler
	delay   time.Duration
	editing Editing
	ctx     context.Context

	mu        sync.Mutex
	gen       uint64
	candidate string
	state     State
	err       error
	timer     Timer
	observers []func(Result)
}

// NewNegotiator creates a negotiator in the idle state.
func NewNegotiator(dir Directory, opts ...Option) *Negotiator {
	n := &Negotiator{
		dir:   dir,
		sched: clock{},
		delay: DefaultDebounce,
		ctx:   context.Background(),
		state: Idle,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// OnChange registers fn to be called after every state change.
// Callbacks run outside the negotiator's lock.
func (n *Negotiator) OnChange(fn func(Result)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.observers = append(n.observers, fn)
}

// Current returns the latest state.
func (n *Negotiator) Current() Result {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.snapshot()
}

// Propose records a new candidate. A pending lookup is cancelled; if the
// candidate needs the directory, a single lookup is scheduled after the
// debounce window.
func (n *Negotiator) Propose(candidate string) {
	n.mu.Lock()
	n.gen++
	gen := n.gen
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.candidate = candidate
	n.err = nil

	state, done := precheck(candidate, n.editing)
	n.state = state
	if !done {
		n.timer = n.sched.AfterFunc(n.delay, func() { n.run(gen, candidate) })
	}
	res, observers := n.snapshot(), n.observerList()
	n.mu.Unlock()

	notify(observers, res)
}

// Resolve evaluates a candidate immediately with the negotiator's edit
// settings. It does not change the negotiator's state.
func (n *Negotiator) Resolve(ctx context.Context, candidate string) (State, error) {
	return Resolve(ctx, n.dir, candidate, n.editing)
}

// Stop cancels any pending lookup.
func (n *Negotiator) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
}

func (n *Negotiator) run(gen uint64, candidate string) {
	n.mu.Lock()
	if gen != n.gen {
		n.mu.Unlock()
		return
	}
	n.timer = nil
	n.mu.Unlock()

	state, err := lookup(n.ctx, n.dir, candidate, n.editing)

	n.mu.Lock()
	if gen != n.gen {
		n.mu.Unlock()
		return
	}
	n.state = state
	n.err = err
	res, observers := n.snapshot(), n.observerList()
	n.mu.Unlock()

	notify(observers, res)
}

func (n *Negotiator) snapshot() Result {
	return Result{
		Handle:     n.candidate,
		State:      n.state,
		Err:        n.err,
		Generation: n.gen,
	}
}

func (n *Negotiator) observerList() []func(Result) {
	out := make([]func(Result), len(n.observers))
	copy(out, n.observers)
	return out
}

func notify(observers []func(Result), res Result) {
	for _, fn := range observers {
		fn(res)
	}
}

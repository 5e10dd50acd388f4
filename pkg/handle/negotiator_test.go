package handle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-idm-profile/pkg/domain"
)

type fakeTimer struct {
	sched   *fakeScheduler
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{sched: s, f: f}
	s.timers = append(s.timers, t)
	s.delays = append(s.delays, d)
	return t
}

// fire runs every pending timer that was not stopped.
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped {
			t.stopped = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

type fakeDirectory struct {
	mu       sync.Mutex
	profiles map[string][]*domain.Profile
	queries  []string
	err      error
	gates    map[string]chan struct{}
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		profiles: map[string][]*domain.Profile{},
		gates:    map[string]chan struct{}{},
	}
}

func (d *fakeDirectory) add(id uuid.UUID, username string) {
	d.profiles[username] = append(d.profiles[username], &domain.Profile{ID: id, Username: username})
}

func (d *fakeDirectory) QueryByUsername(ctx context.Context, username string) ([]*domain.Profile, error) {
	d.mu.Lock()
	d.queries = append(d.queries, username)
	gate := d.gates[username]
	err := d.err
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return d.profiles[username], nil
}

func (d *fakeDirectory) queryLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.queries...)
}

func TestNegotiator_InitialState(t *testing.T) {
	n := NewNegotiator(newFakeDirectory())
	assert.Equal(t, Idle, n.Current().State)
}

func TestNegotiator_Debounce(t *testing.T) {
	dir := newFakeDirectory()
	sched := &fakeScheduler{}
	n := NewNegotiator(dir, WithScheduler(sched))

	n.Propose("ab")
	assert.Equal(t, Indeterminate, n.Current().State)
	n.Propose("abc")
	assert.Equal(t, Checking, n.Current().State)
	n.Propose("abcd")
	assert.Equal(t, Checking, n.Current().State)

	sched.fire()

	assert.Equal(t, []string{"abcd"}, dir.queryLog())
	assert.Equal(t, Available, n.Current().State)
	assert.Equal(t, "abcd", n.Current().Handle)
	assert.Equal(t, []time.Duration{DefaultDebounce, DefaultDebounce}, sched.delays)
}

func TestNegotiator_IndeterminateNeverQueries(t *testing.T) {
	for _, candidate := range []string{"", "a", "ab", "has space", " abc", "tab\there", "new\nline"} {
		t.Run(candidate, func(t *testing.T) {
			dir := newFakeDirectory()
			sched := &fakeScheduler{}
			n := NewNegotiator(dir, WithScheduler(sched))

			n.Propose(candidate)
			sched.fire()

			assert.Equal(t, Indeterminate, n.Current().State)
			assert.False(t, n.Current().State.Submittable())
			assert.Empty(t, dir.queryLog())
		})
	}
}

func TestNegotiator_CaseInsensitiveTaken(t *testing.T) {
	dir := newFakeDirectory()
	dir.add(uuid.New(), "alice")
	sched := &fakeScheduler{}
	n := NewNegotiator(dir, WithScheduler(sched))

	n.Propose("ALICE")
	sched.fire()

	assert.Equal(t, Taken, n.Current().State)
	assert.Equal(t, []string{"alice"}, dir.queryLog())
}

func TestNegotiator_EditMode(t *testing.T) {
	self := uuid.New()
	dir := newFakeDirectory()
	dir.add(self, "alice")
	dir.add(uuid.New(), "bob")
	sched := &fakeScheduler{}
	n := NewNegotiator(dir, WithScheduler(sched), WithEditing(Editing{AccountID: self, Handle: "Alice"}))

	n.Propose("alice")
	assert.Equal(t, Available, n.Current().State)
	sched.fire()
	assert.Empty(t, dir.queryLog(), "unchanged handle must not query")

	n.Propose("bob")
	sched.fire()
	assert.Equal(t, Taken, n.Current().State)

	state, err := n.Resolve(context.Background(), "carol")
	require.NoError(t, err)
	assert.Equal(t, Available, state)
}

func TestNegotiator_OwnProfileIsNotAConflict(t *testing.T) {
	self := uuid.New()
	dir := newFakeDirectory()
	dir.add(self, "alice")

	state, err := Resolve(context.Background(), dir, "Alice", Editing{AccountID: self})
	require.NoError(t, err)
	assert.Equal(t, Available, state)

	state, err = Resolve(context.Background(), dir, "Alice", Editing{})
	require.NoError(t, err)
	assert.Equal(t, Taken, state)
}

func TestNegotiator_LookupError(t *testing.T) {
	dir := newFakeDirectory()
	dir.err = errors.New("directory unavailable")
	sched := &fakeScheduler{}
	n := NewNegotiator(dir, WithScheduler(sched))

	n.Propose("alice")
	sched.fire()

	res := n.Current()
	assert.Equal(t, Error, res.State)
	assert.NotEqual(t, Taken, res.State)
	assert.False(t, res.State.Submittable())
	assert.ErrorIs(t, res.Err, dir.err)
}

func TestNegotiator_LastIssuedWins(t *testing.T) {
	dir := newFakeDirectory()
	dir.add(uuid.New(), "first")
	releaseA := make(chan struct{})
	dir.gates["first"] = releaseA

	sched := &fakeScheduler{}
	n := NewNegotiator(dir, WithScheduler(sched))

	n.Propose("first")
	doneA := make(chan struct{})
	go func() {
		sched.fire()
		close(doneA)
	}()

	require.Eventually(t, func() bool {
		return len(dir.queryLog()) == 1
	}, time.Second, time.Millisecond)

	n.Propose("second")
	sched.fire()
	assert.Equal(t, Available, n.Current().State)

	close(releaseA)
	<-doneA

	res := n.Current()
	assert.Equal(t, "second", res.Handle)
	assert.Equal(t, Available, res.State, "stale lookup for first must not overwrite")
}

func TestNegotiator_OnChange(t *testing.T) {
	dir := newFakeDirectory()
	sched := &fakeScheduler{}
	n := NewNegotiator(dir, WithScheduler(sched))

	var states []State
	n.OnChange(func(r Result) { states = append(states, r.State) })

	n.Propose("ab")
	n.Propose("abc")
	sched.fire()

	assert.Equal(t, []State{Indeterminate, Checking, Available}, states)
}

func TestNegotiator_Stop(t *testing.T) {
	dir := newFakeDirectory()
	sched := &fakeScheduler{}
	n := NewNegotiator(dir, WithScheduler(sched))

	n.Propose("abc")
	n.Stop()
	sched.fire()

	assert.Empty(t, dir.queryLog())
	assert.Equal(t, Checking, n.Current().State)
}

func TestNegotiator_RealClock(t *testing.T) {
	dir := newFakeDirectory()
	n := NewNegotiator(dir, WithDebounce(5*time.Millisecond))

	done := make(chan Result, 4)
	n.OnChange(func(r Result) { done <- r })

	n.Propose("abc")
	assert.Equal(t, Checking, (<-done).State)

	select {
	case r := <-done:
		assert.Equal(t, Available, r.State)
	case <-time.After(time.Second):
		t.Fatal("lookup never ran")
	}
}

func TestStateNames(t *testing.T) {
	for _, s := range []State{Idle, Checking, Available, Taken, Indeterminate, Error} {
		parsed, ok := ParseState(s.String())
		assert.True(t, ok)
		assert.Equal(t, s, parsed)
	}
	_, ok := ParseState("bogus")
	assert.False(t, ok)
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, Available.Submittable())
	assert.False(t, Checking.Submittable())
}

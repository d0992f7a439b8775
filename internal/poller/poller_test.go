package poller

import (
	"context"
	"errors"
	"testing"
	"time"
)

// scriptedReconciler returns a fixed pending-flag sequence per user and
// counts reconcile calls.
type scriptedReconciler struct {
	pending    map[string][]bool
	reconciles map[string]int
	rerr       error
}

func (s *scriptedReconciler) Reconcile(_ context.Context, userID string) error {
	if s.reconciles == nil {
		s.reconciles = make(map[string]int)
	}
	s.reconciles[userID]++
	return s.rerr
}

func (s *scriptedReconciler) HasUnprocessedJobs(_ context.Context, userID string) (bool, error) {
	queue := s.pending[userID]
	if len(queue) == 0 {
		return false, nil
	}
	next := queue[0]
	if len(queue) > 1 {
		s.pending[userID] = queue[1:]
	}
	return next, nil
}

type staticUsers struct {
	users []string
}

func (s *staticUsers) UsersWithPendingJobs(context.Context) ([]string, error) {
	return s.users, nil
}

type recordingNotifier struct {
	notified []string
	err      error
}

func (r *recordingNotifier) GenerationCompleted(_ context.Context, userID string) error {
	r.notified = append(r.notified, userID)
	return r.err
}

func TestTickUserNotifiesOnCompletionEdge(t *testing.T) {
	ctx := context.Background()
	rec := &scriptedReconciler{pending: map[string][]bool{
		"u1": {true, true, false},
	}}
	n := &recordingNotifier{}
	p := New(rec, &staticUsers{}, n, time.Second)

	p.TickUser(ctx, "u1") // pending
	p.TickUser(ctx, "u1") // still pending
	if len(n.notified) != 0 {
		t.Fatalf("notified while still pending: %v", n.notified)
	}
	p.TickUser(ctx, "u1") // done
	if len(n.notified) != 1 || n.notified[0] != "u1" {
		t.Fatalf("notified = %v, want exactly [u1]", n.notified)
	}
}

func TestTickUserNotifiesOnlyOncePerEdge(t *testing.T) {
	ctx := context.Background()
	rec := &scriptedReconciler{pending: map[string][]bool{
		"u1": {true, false, false, false},
	}}
	n := &recordingNotifier{}
	p := New(rec, &staticUsers{}, n, time.Second)

	for i := 0; i < 4; i++ {
		p.TickUser(ctx, "u1")
	}
	if len(n.notified) != 1 {
		t.Fatalf("notified %d times, want 1", len(n.notified))
	}
}

func TestTickUserNoSignalWithoutPriorPending(t *testing.T) {
	ctx := context.Background()
	rec := &scriptedReconciler{pending: map[string][]bool{
		"u1": {false, false},
	}}
	n := &recordingNotifier{}
	p := New(rec, &staticUsers{}, n, time.Second)

	p.TickUser(ctx, "u1")
	p.TickUser(ctx, "u1")
	if len(n.notified) != 0 {
		t.Fatalf("notified without a prior pending observation: %v", n.notified)
	}
}

func TestTickUserSecondCycleSignalsAgain(t *testing.T) {
	ctx := context.Background()
	rec := &scriptedReconciler{pending: map[string][]bool{
		"u1": {true, false, true, false},
	}}
	n := &recordingNotifier{}
	p := New(rec, &staticUsers{}, n, time.Second)

	for i := 0; i < 4; i++ {
		p.TickUser(ctx, "u1")
	}
	if len(n.notified) != 2 {
		t.Fatalf("notified %d times across two cycles, want 2", len(n.notified))
	}
}

func TestTickUserSkipsNotifyOnReconcileError(t *testing.T) {
	ctx := context.Background()
	rec := &scriptedReconciler{
		pending: map[string][]bool{"u1": {false}},
		rerr:    errors.New("remote unavailable"),
	}
	n := &recordingNotifier{}
	p := New(rec, &staticUsers{}, n, time.Second)

	p.pending["u1"] = true
	p.TickUser(ctx, "u1")
	if len(n.notified) != 0 {
		t.Fatalf("notified despite reconcile failure: %v", n.notified)
	}
	if !p.pending["u1"] {
		t.Fatal("pending flag must survive a failed cycle")
	}
}

func TestTickCoversUsersWhoLeftThePendingSet(t *testing.T) {
	ctx := context.Background()
	// u1 completed its last job between ticks, so the users query no longer
	// returns it. The poller must still observe the edge.
	rec := &scriptedReconciler{pending: map[string][]bool{
		"u1": {true, false},
		"u2": {true, true},
	}}
	n := &recordingNotifier{}
	p := New(rec, &staticUsers{users: []string{"u1", "u2"}}, n, time.Second)

	p.Tick(ctx)
	if len(n.notified) != 0 {
		t.Fatalf("notified on first tick: %v", n.notified)
	}

	// u1 disappears from the pending query.
	src := &staticUsers{users: []string{"u2"}}
	p.users = src
	p.Tick(ctx)
	if len(n.notified) != 1 || n.notified[0] != "u1" {
		t.Fatalf("notified = %v, want [u1]", n.notified)
	}
	if rec.reconciles["u1"] != 2 {
		t.Fatalf("u1 reconciled %d times, want 2", rec.reconciles["u1"])
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	rec := &scriptedReconciler{pending: map[string][]bool{}}
	p := New(rec, &staticUsers{}, &recordingNotifier{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

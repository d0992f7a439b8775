// Package poller drives periodic reconciliation and signals completion edges.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Reconciler is the orchestrator surface the poller drives.
type Reconciler interface {
	Reconcile(ctx context.Context, userID string) error
	HasUnprocessedJobs(ctx context.Context, userID string) (bool, error)
}

// UserSource lists users that currently have pending jobs.
// *store.Store satisfies it.
type UserSource interface {
	UsersWithPendingJobs(ctx context.Context) ([]string, error)
}

// Notifier receives the edge-triggered "generation completed" signal.
type Notifier interface {
	GenerationCompleted(ctx context.Context, userID string) error
}

// Poller invokes reconciliation on a fixed cadence and watches each user's
// pending flag. When it transitions true->false the Notifier fires exactly
// once for that transition.
type Poller struct {
	reconciler Reconciler
	users      UserSource
	notifier   Notifier
	interval   time.Duration

	mu      sync.Mutex
	pending map[string]bool // last observed pending flag per user
}

func New(r Reconciler, users UserSource, notifier Notifier, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		reconciler: r,
		users:      users,
		notifier:   notifier,
		interval:   interval,
		pending:    make(map[string]bool),
	}
}

// Run ticks until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick reconciles every user the poller is watching: users with pending jobs
// plus users whose last observed flag was true (so the completion edge is
// seen even after their last job finishes).
func (p *Poller) Tick(ctx context.Context) {
	users, err := p.users.UsersWithPendingJobs(ctx)
	if err != nil {
		slog.Error("list users with pending jobs", "error", err)
		return
	}

	seen := make(map[string]bool, len(users))
	for _, u := range users {
		seen[u] = true
	}
	p.mu.Lock()
	for u, wasPending := range p.pending {
		if wasPending && !seen[u] {
			users = append(users, u)
		}
	}
	p.mu.Unlock()

	for _, userID := range users {
		p.TickUser(ctx, userID)
	}
}

// TickUser runs one reconcile-then-check cycle for a single user. Also the
// entry point for explicit client-driven ticks.
func (p *Poller) TickUser(ctx context.Context, userID string) {
	if err := p.reconciler.Reconcile(ctx, userID); err != nil {
		slog.Error("reconcile", "user_id", userID, "error", err)
		return
	}

	pending, err := p.reconciler.HasUnprocessedJobs(ctx, userID)
	if err != nil {
		slog.Error("check pending jobs", "user_id", userID, "error", err)
		return
	}

	p.mu.Lock()
	wasPending, known := p.pending[userID]
	if pending {
		p.pending[userID] = true
	} else {
		delete(p.pending, userID)
	}
	p.mu.Unlock()

	// Edge-triggered: only the true->false transition signals completion.
	if known && wasPending && !pending {
		if err := p.notifier.GenerationCompleted(ctx, userID); err != nil {
			slog.Error("notify generation completed", "user_id", userID, "error", err)
		}
	}
}

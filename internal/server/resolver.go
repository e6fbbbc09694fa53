package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wisq/autocrew/internal/constrained"
	"github.com/wisq/autocrew/internal/store"
	"github.com/wisq/autocrew/internal/tma"
	"golang.org/x/sync/errgroup"
)

// Resolver periodically re-solves contacts that received observations.
type Resolver struct {
	contacts *ContactManager
	solver   *tma.Solver
	store    *store.FSStore // nil disables checkpoints and traces
	interval time.Duration
	workers  int

	// traceMu serializes trace appends per process; each solve opens and
	// closes its contact's trace.
	traceMu sync.Mutex
}

func NewResolver(contacts *ContactManager, solver *tma.Solver, st *store.FSStore, interval time.Duration, workers int) *Resolver {
	return &Resolver{
		contacts: contacts,
		solver:   solver,
		store:    st,
		interval: interval,
		workers:  max(workers, 1),
	}
}

// Run resolves dirty contacts every interval until ctx is done.
func (r *Resolver) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("Resolver started", "interval", r.interval, "workers", r.workers)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Resolver stopped")
			return nil
		case <-ticker.C:
			if err := r.ResolveDirty(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Resolve pass failed", "error", err)
			}
		}
	}
}

// ResolveDirty solves every contact with new observations, at most
// workers at a time. A failed solve is recorded on its contact and doesn't
// stop the others; the error is only non-nil if ctx ended the pass.
func (r *Resolver) ResolveDirty(ctx context.Context) error {
	ids := r.contacts.ClaimDirty()
	if len(ids) == 0 {
		return nil
	}
	slog.Debug("Resolving contacts", "count", len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, id := range ids {
		g.Go(func() error {
			return r.resolve(gctx, id)
		})
	}
	return g.Wait()
}

// resolve runs one solve. It only returns an error when ctx is done.
func (r *Resolver) resolve(ctx context.Context, id string) error {
	c, ok := r.contacts.GetContact(id)
	if !ok {
		return nil // deleted while queued
	}

	contact, err := c.Scenario.Contact()
	if err != nil {
		r.finish(id, nil, err)
		return nil
	}

	start := "cold"
	if c.Solution != nil {
		start = "warm"
	}
	began := time.Now()
	sol, err := r.solver.Solve(ctx, contact, c.Solution)
	solveDuration.WithLabelValues(start).Observe(time.Since(began).Seconds())

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		_ = r.contacts.UpdateContact(id, func(c *Contact) {
			c.inFlight = false
			c.Dirty = true
			c.State = StatePending
		})
		return err
	}

	var notFound *constrained.NotFoundError
	switch {
	case err == nil:
		solvesTotal.WithLabelValues(start, "ok").Inc()
	case errors.As(err, &notFound):
		solvesTotal.WithLabelValues(start, "not_converged").Inc()
		slog.Warn("Solve did not converge", "contactID", id, "value", sol.Value, "error", err)
	default:
		solvesTotal.WithLabelValues(start, "error").Inc()
		r.finish(id, nil, err)
		return nil
	}
	solveIterations.Observe(float64(sol.Stats.Iterations - statsBase(c.Solution)))

	r.finish(id, &sol, err)
	return nil
}

func statsBase(previous *tma.Solution) int {
	if previous == nil {
		return 0
	}
	return previous.Stats.Iterations
}

// finish records a solve's outcome on the contact, then checkpoints,
// traces and broadcasts it. sol is nil when the solve produced nothing.
func (r *Resolver) finish(id string, sol *tma.Solution, solveErr error) {
	var snap Contact
	var settled bool
	err := r.contacts.UpdateContact(id, func(c *Contact) {
		c.inFlight = false
		now := time.Now()
		c.LastSolve = &now
		c.Error = ""
		if solveErr != nil {
			c.Error = solveErr.Error()
		}

		switch {
		case sol == nil:
			c.State = StateFailed
		default:
			c.Solves++
			c.Solution = sol
			settled = c.tracker.Update(*sol)
			c.State = StateSolved
			if settled {
				c.State = StateSettled
			}
		}
		if c.Dirty {
			c.State = StatePending
		}
		snap = c.snapshot()
	})
	if err != nil {
		return // deleted while solving
	}

	if sol != nil {
		slog.Info("Contact solved",
			"contactID", id,
			"observations", sol.Observations,
			"course", sol.Course,
			"speed", sol.Speed,
			"value", sol.Value,
			"warm", sol.Warm,
			"settled", settled,
		)
		if err := r.persist(snap, *sol, settled, solveErr); err != nil {
			slog.Error("Failed to persist solution", "contactID", id, "error", err)
		}
	} else {
		slog.Error("Contact solve failed", "contactID", id, "error", solveErr)
	}
	r.contacts.broadcaster.Broadcast(newProgressEvent(snap))
}

func (r *Resolver) persist(c Contact, sol tma.Solution, settled bool, solveErr error) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveCheckpoint(c.ID, store.NewCheckpoint(c.ID, c.Scenario, sol, settled)); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	r.traceMu.Lock()
	defer r.traceMu.Unlock()
	if err := store.AppendTrace(r.store.BaseDir(), c.ID, store.NewTraceEntry(c.Solves, sol, solveErr)); err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	return nil
}

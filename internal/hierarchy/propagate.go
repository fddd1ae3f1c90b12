// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"cattree/internal/store"
)

// DefaultWorkers bounds concurrent sibling subtrees per propagation.
const DefaultWorkers = 8

// Stats summarizes one propagation run.
type Stats struct {
	Visited int
	Rebuilt int
	Cleared int
}

// Propagator re-derives the ancestor chains of a category and everything
// below it after a structural change.
type Propagator struct {
	store   store.CategoryStore
	chain   *ChainBuilder
	workers int
}

// NewPropagator returns a Propagator that runs at most workers sibling
// subtrees at once. workers < 1 means fully sequential.
func NewPropagator(s store.CategoryStore, chain *ChainBuilder, workers int) *Propagator {
	if workers < 1 {
		workers = 1
	}
	return &Propagator{store: s, chain: chain, workers: workers}
}

// task is one pending (category, new parent) rebuild.
type task struct {
	id     uuid.UUID
	parent *uuid.UUID
}

// propagation is the state of a single Propagate call.
type propagation struct {
	p    *Propagator
	root uuid.UUID
	g    errgroup.Group

	mu      sync.Mutex
	visited map[uuid.UUID]struct{}
	errs    []error

	visitedN atomic.Int64
	rebuiltN atomic.Int64
	clearedN atomic.Int64
}

// Propagate rebuilds the chain of categoryID from parentID, then walks the
// live parent→child relation below it. A node's chain is written before
// its children are read, so each root-to-leaf path is strictly sequential;
// sibling subtrees may run concurrently.
//
// A category reached twice aborts that branch with ErrCycle. Failures in
// one branch do not stop the others and nothing is rolled back: the
// returned error joins every branch failure, and re-running converges.
func (p *Propagator) Propagate(ctx context.Context, categoryID uuid.UUID, parentID *uuid.UUID) (Stats, error) {
	if categoryID == uuid.Nil {
		return Stats{}, nil
	}
	if parentID == nil && p.chain.Policy() == KeepStale {
		return Stats{}, nil
	}

	run := &propagation{
		p:       p,
		root:    categoryID,
		visited: make(map[uuid.UUID]struct{}),
	}
	run.g.SetLimit(p.workers)
	run.g.Go(func() error {
		run.walk(ctx, task{id: categoryID, parent: parentID})
		return nil
	})
	_ = run.g.Wait()

	stats := Stats{
		Visited: int(run.visitedN.Load()),
		Rebuilt: int(run.rebuiltN.Load()),
		Cleared: int(run.clearedN.Load()),
	}
	return stats, errors.Join(run.errs...)
}

// walk drains a depth-first worklist. Children are handed to a free worker
// when one is available and otherwise stay on this goroutine's stack, so
// no worker ever blocks waiting for another.
func (r *propagation) walk(ctx context.Context, start task) {
	stack := []task{start}
	for len(stack) > 0 {
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := ctx.Err(); err != nil {
			r.fail(fmt.Errorf("propagate %s: %w", t.id, err))
			return
		}
		if !r.visit(t.id) {
			slog.Warn("category hierarchy cycle detected", "category", t.id, "root", r.root)
			r.fail(fmt.Errorf("%w: category %s reached twice while propagating from %s", ErrCycle, t.id, r.root))
			continue
		}

		outcome, err := r.p.chain.Rebuild(ctx, t.id, t.parent)
		if err != nil {
			// A descendant deleted mid-walk has nothing left to fix.
			if t.id != r.root && errors.Is(err, store.ErrNotFound) {
				slog.Debug("category vanished during propagation", "category", t.id)
				continue
			}
			r.fail(err)
			continue
		}
		switch outcome {
		case ChainRebuilt:
			r.rebuiltN.Add(1)
		case ChainCleared:
			r.clearedN.Add(1)
		}

		children, err := r.p.store.FindChildren(ctx, t.id)
		if err != nil {
			r.fail(fmt.Errorf("load children of %s: %w", t.id, err))
			continue
		}

		parent := t.id
		for _, child := range children {
			next := task{id: child.ID, parent: &parent}
			if !r.g.TryGo(func() error {
				r.walk(ctx, next)
				return nil
			}) {
				stack = append(stack, next)
			}
		}
	}
}

// visit marks id as seen and reports whether it was new.
func (r *propagation) visit(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.visited[id]; seen {
		return false
	}
	r.visited[id] = struct{}{}
	r.visitedN.Add(1)
	return true
}

func (r *propagation) fail(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

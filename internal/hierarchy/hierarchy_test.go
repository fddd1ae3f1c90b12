// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package hierarchy

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cattree/internal/models"
	"cattree/internal/slug"
	"cattree/internal/store"
)

// add inserts a category under parent (nil for a root) without touching
// any ancestor chain.
func add(t *testing.T, s store.CategoryStore, name string, parent *models.Category) *models.Category {
	t.Helper()

	c := &models.Category{
		Name:   name,
		Slug:   slug.Generate(name),
		Order:  models.DefaultOrder,
		IsShow: true,
	}
	if parent != nil {
		id := parent.ID
		c.ParentID = &id
	}
	out, err := s.Insert(context.Background(), c)
	require.NoError(t, err)
	return out
}

func reload(t *testing.T, s store.CategoryStore, id uuid.UUID) *models.Category {
	t.Helper()
	c, err := s.GetByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func newEngine(s store.CategoryStore, workers int) (*ChainBuilder, *Propagator) {
	chain := NewChainBuilder(s, ClearStale)
	return chain, NewPropagator(s, chain, workers)
}

// propagateRoots re-derives every chain in s starting from its roots.
func propagateRoots(t *testing.T, s store.CategoryStore, p *Propagator) {
	t.Helper()
	ctx := context.Background()

	roots, err := s.Find(ctx, store.Filter{RootsOnly: true})
	require.NoError(t, err)
	for _, r := range roots {
		_, err := p.Propagate(ctx, r.ID, nil)
		require.NoError(t, err)
	}
}

// assertConsistent checks that every category's chain starts with its
// parent and continues with the parent's own chain.
func assertConsistent(t *testing.T, s store.CategoryStore) {
	t.Helper()

	all, err := s.Find(context.Background(), store.Filter{})
	require.NoError(t, err)

	byID := make(map[uuid.UUID]models.Category, len(all))
	for _, c := range all {
		byID[c.ID] = c
	}
	for _, c := range all {
		if c.ParentID == nil {
			assert.Empty(t, c.Ancestors, "root %s carries ancestors", c.Name)
			continue
		}
		parent, ok := byID[*c.ParentID]
		if !ok {
			continue
		}
		if assert.NotEmpty(t, c.Ancestors, "category %s has no chain", c.Name) {
			assert.Equal(t, parent.ID, c.Ancestors[0].ID, "category %s", c.Name)
			assert.Equal(t, parent.Ancestors.IDs(), c.Ancestors[1:].IDs(), "category %s", c.Name)
		}
		assert.False(t, c.Ancestors.Contains(c.ID), "category %s is its own ancestor", c.Name)
	}
}

// chains snapshots every chain by category id.
func chains(t *testing.T, s store.CategoryStore) map[uuid.UUID]models.Ancestors {
	t.Helper()
	all, err := s.Find(context.Background(), store.Filter{})
	require.NoError(t, err)

	out := make(map[uuid.UUID]models.Ancestors, len(all))
	for _, c := range all {
		out[c.ID] = c.Ancestors
	}
	return out
}

// faultyStore fails UpdateFields for selected ids until healed.
type faultyStore struct {
	store.CategoryStore

	mu    sync.Mutex
	fails map[uuid.UUID]error
}

func newFaultyStore(inner store.CategoryStore) *faultyStore {
	return &faultyStore{CategoryStore: inner, fails: make(map[uuid.UUID]error)}
}

func (f *faultyStore) failOn(id uuid.UUID, err error) {
	f.mu.Lock()
	f.fails[id] = err
	f.mu.Unlock()
}

func (f *faultyStore) heal() {
	f.mu.Lock()
	clear(f.fails)
	f.mu.Unlock()
}

func (f *faultyStore) UpdateFields(ctx context.Context, id uuid.UUID, u store.Update) error {
	f.mu.Lock()
	err := f.fails[id]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.CategoryStore.UpdateFields(ctx, id, u)
}

// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package categories

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cattree/internal/hierarchy"
	"cattree/internal/models"
	"cattree/internal/store"
)

// memoryCache is an in-process TreeCache that records invalidations.
type memoryCache struct {
	mu          sync.Mutex
	forest      []*models.TreeNode
	hits        int
	invalidated int
}

func (c *memoryCache) Get(context.Context) ([]*models.TreeNode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.forest == nil {
		return nil, false
	}
	c.hits++
	return c.forest, true
}

func (c *memoryCache) Set(_ context.Context, forest []*models.TreeNode) {
	c.mu.Lock()
	c.forest = forest
	c.mu.Unlock()
}

func (c *memoryCache) Invalidate(context.Context) {
	c.mu.Lock()
	c.forest = nil
	c.invalidated++
	c.mu.Unlock()
}

func newTestService(t *testing.T) (*Service, *store.MemoryStore, *memoryCache) {
	t.Helper()
	s := store.NewMemoryStore()
	c := &memoryCache{}
	return NewService(s, Options{Workers: 4, Cache: c}), s, c
}

func create(t *testing.T, svc *Service, name string, parent *models.Category) *models.Category {
	t.Helper()
	in := CreateInput{Name: name}
	if parent != nil {
		in.ParentID = &parent.ID
	}
	c, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	return c
}

func ptr[T any](v T) *T { return &v }

func TestCreateSeedsChain(t *testing.T) {
	svc, _, _ := newTestService(t)

	a := create(t, svc, "Electronics", nil)
	b := create(t, svc, "Phones", a)
	c := create(t, svc, "Smartphones", b)

	assert.Equal(t, "electronics", a.Slug)
	assert.Empty(t, a.Ancestors)
	assert.Equal(t, models.DefaultOrder, a.Order)
	assert.True(t, a.IsShow)

	require.Len(t, b.Ancestors, 1)
	assert.Equal(t, models.AncestorRef{ID: a.ID, Name: "Electronics", Slug: "electronics"}, b.Ancestors[0])
	assert.Equal(t, []uuid.UUID{b.ID, a.ID}, c.Ancestors.IDs())
}

func TestCreateOptionalFields(t *testing.T) {
	svc, _, _ := newTestService(t)

	c, err := svc.Create(context.Background(), CreateInput{
		Name:      "Kitchen",
		Icon:      ptr("pan.svg"),
		Thumbnail: ptr(""),
		Order:     ptr(3),
		IsShow:    ptr(false),
	})
	require.NoError(t, err)
	require.NotNil(t, c.Icon)
	assert.Equal(t, "pan.svg", *c.Icon)
	assert.Nil(t, c.Thumbnail)
	assert.Equal(t, 3, c.Order)
	assert.False(t, c.IsShow)
}

func TestCreateDuplicateSlug(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()

	create(t, svc, "Shoes", nil)

	_, err := svc.Create(ctx, CreateInput{Name: "Shoes"})
	assert.ErrorIs(t, err, store.ErrConflict)

	// Same slug through a different spelling.
	_, err = svc.Create(ctx, CreateInput{Name: "  SHOES!  "})
	assert.ErrorIs(t, err, store.ErrConflict)

	assert.Equal(t, 1, s.Len())
}

func TestCreateInvalid(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateInput
	}{
		{"empty name", CreateInput{Name: "   "}},
		{"no slug characters", CreateInput{Name: "!!!"}},
		{"unknown parent", CreateInput{Name: "Phones", ParentID: ptr(uuid.New())}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.in)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
	assert.Zero(t, s.Len())
}

func TestUpdateReparentToNull(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a := create(t, svc, "Electronics", nil)
	b := create(t, svc, "Phones", a)
	c := create(t, svc, "Smartphones", b)

	updated, err := svc.Update(ctx, b.ID, UpdateInput{Parent: &uuid.NullUUID{}})
	require.NoError(t, err)
	assert.Nil(t, updated.ParentID)
	assert.Empty(t, updated.Ancestors)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b.ID}, got.Ancestors.IDs())

	forest, err := svc.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, forest, 2)
	byName := map[string]*models.TreeNode{forest[0].Name: forest[0], forest[1].Name: forest[1]}
	assert.Empty(t, byName["Electronics"].Children)
	require.Len(t, byName["Phones"].Children, 1)
	assert.Equal(t, c.ID, byName["Phones"].Children[0].ID)
}

func TestUpdateRenamePropagatesSnapshots(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a := create(t, svc, "Electronics", nil)
	b := create(t, svc, "Phones", a)
	c := create(t, svc, "Smartphones", b)

	updated, err := svc.Update(ctx, a.ID, UpdateInput{Name: ptr("Consumer Electronics"), Icon: ptr("plug.svg")})
	require.NoError(t, err)
	assert.Equal(t, "consumer-electronics", updated.Slug)

	got, err := svc.Get(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Ancestors, 2)
	assert.Equal(t, "Consumer Electronics", got.Ancestors[1].Name)
	assert.Equal(t, "consumer-electronics", got.Ancestors[1].Slug)
	require.NotNil(t, got.Ancestors[1].Icon)
	assert.Equal(t, "plug.svg", *got.Ancestors[1].Icon)
}

func TestUpdateRejectsCycles(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a := create(t, svc, "Electronics", nil)
	b := create(t, svc, "Phones", a)
	c := create(t, svc, "Smartphones", b)

	_, err := svc.Update(ctx, a.ID, UpdateInput{Parent: &uuid.NullUUID{UUID: a.ID, Valid: true}})
	assert.ErrorIs(t, err, hierarchy.ErrCycle)

	_, err = svc.Update(ctx, a.ID, UpdateInput{Parent: &uuid.NullUUID{UUID: c.ID, Valid: true}})
	assert.ErrorIs(t, err, hierarchy.ErrCycle)

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)
}

func TestUpdateRejectsCycleBehindStaleChain(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()

	a := create(t, svc, "Electronics", nil)
	b := create(t, svc, "Phones", a)
	c := create(t, svc, "Smartphones", b)

	// Leave C with the chain a failed propagation would have left behind.
	require.NoError(t, s.UpdateFields(ctx, c.ID, store.Update{Ancestors: &models.Ancestors{}}))

	_, err := svc.Update(ctx, a.ID, UpdateInput{Parent: &uuid.NullUUID{UUID: c.ID, Valid: true}})
	assert.ErrorIs(t, err, hierarchy.ErrCycle)

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)
}

func TestUpdateAcceptsParentAboveOrphan(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()

	a := create(t, svc, "Electronics", nil)
	b := create(t, svc, "Phones", a)
	other := create(t, svc, "Fashion", nil)
	_, err := s.DeleteByIDs(ctx, []uuid.UUID{a.ID})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, other.ID, UpdateInput{Parent: &uuid.NullUUID{UUID: b.ID, Valid: true}})
	require.NoError(t, err)
	require.NotNil(t, updated.ParentID)
	assert.Equal(t, b.ID, *updated.ParentID)
}

func TestUpdateErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	create(t, svc, "Shoes", nil)
	boots := create(t, svc, "Boots", nil)

	_, err := svc.Update(ctx, uuid.New(), UpdateInput{Name: ptr("X")})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Update(ctx, boots.ID, UpdateInput{Name: ptr("Shoes")})
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = svc.Update(ctx, boots.ID, UpdateInput{Name: ptr(" ")})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = svc.Update(ctx, boots.ID, UpdateInput{Parent: &uuid.NullUUID{UUID: uuid.New(), Valid: true}})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestUpdateNoChanges(t *testing.T) {
	svc, _, cache := newTestService(t)
	ctx := context.Background()

	a := create(t, svc, "Electronics", nil)
	before := cache.invalidated

	got, err := svc.Update(ctx, a.ID, UpdateInput{Name: ptr("Electronics")})
	require.NoError(t, err)
	assert.Equal(t, a.UpdatedAt, got.UpdatedAt)
	assert.Equal(t, before, cache.invalidated)
}

func TestDeleteLeavesOrphans(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a := create(t, svc, "Electronics", nil)
	b := create(t, svc, "Phones", a)

	require.NoError(t, svc.Delete(ctx, a.ID))
	assert.ErrorIs(t, svc.Delete(ctx, a.ID), store.ErrNotFound)

	orphan, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, orphan.ParentID)
	assert.Equal(t, a.ID, *orphan.ParentID)
	assert.Equal(t, []uuid.UUID{a.ID}, orphan.Ancestors.IDs())

	forest, err := svc.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, forest, 1)
	assert.Equal(t, b.ID, forest[0].ID)

	// Rebuilding the orphan clears its stale chain.
	stats, err := svc.Rebuild(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Cleared)
	orphan, err = svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, orphan.Ancestors)
}

func TestDeleteMany(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()

	a := create(t, svc, "A", nil)
	b := create(t, svc, "B", nil)
	create(t, svc, "C", nil)

	n, err := svc.DeleteMany(ctx, []uuid.UUID{a.ID, b.ID, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, s.Len())

	_, err = svc.DeleteMany(ctx, nil)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestTreeCaching(t *testing.T) {
	svc, _, cache := newTestService(t)
	ctx := context.Background()

	a := create(t, svc, "Electronics", nil)

	first, err := svc.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	_, err = svc.Tree(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	create(t, svc, "Phones", a)
	forest, err := svc.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, forest, 1)
	assert.Len(t, forest[0].Children, 1)
}

// gatedStore blocks full-table reads until released, holding a tree
// materialization open while a write runs.
type gatedStore struct {
	*store.MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) Find(ctx context.Context, f store.Filter) ([]models.Category, error) {
	full := f.Slug == "" && f.ExcludeID == nil && f.ParentID == nil && !f.RootsOnly && len(f.IDs) == 0
	if full {
		g.once.Do(func() {
			close(g.entered)
			<-g.release
		})
	}
	return g.MemoryStore.Find(ctx, f)
}

func TestTreeDoesNotCacheForestBuiltBeforeWrite(t *testing.T) {
	gs := &gatedStore{
		MemoryStore: store.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	cache := &memoryCache{}
	svc := NewService(gs, Options{Workers: 2, Cache: cache})
	ctx := context.Background()

	a := create(t, svc, "Electronics", nil)

	done := make(chan []*models.TreeNode)
	go func() {
		forest, err := svc.Tree(ctx)
		assert.NoError(t, err)
		done <- forest
	}()

	<-gs.entered
	create(t, svc, "Phones", a)
	close(gs.release)

	stale := <-done
	require.Len(t, stale, 1)
	assert.Empty(t, stale[0].Children)

	_, cached := cache.Get(ctx)
	assert.False(t, cached, "forest read before the write must not be cached")

	fresh, err := svc.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Len(t, fresh[0].Children, 1)
}

func TestServiceWithoutCache(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), Options{})
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "Electronics"})
	require.NoError(t, err)

	forest, err := svc.Tree(ctx)
	require.NoError(t, err)
	assert.Len(t, forest, 1)

	items, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestRebuildUnknown(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Rebuild(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPropagationRunsAreLogged(t *testing.T) {
	s := store.NewMemoryStore()
	log := store.NewMemoryPropagationLog(10)
	svc := NewService(s, Options{Workers: 2, Log: log})
	ctx := context.Background()

	a := create(t, svc, "Electronics", nil)
	b := create(t, svc, "Phones", a)
	_, err := svc.Update(ctx, b.ID, UpdateInput{Parent: &uuid.NullUUID{}})
	require.NoError(t, err)
	_, err = svc.Rebuild(ctx, a.ID)
	require.NoError(t, err)

	runs, err := svc.Propagations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ActionRebuild, runs[0].Action)
	assert.Equal(t, a.ID, runs[0].CategoryID)
	assert.Equal(t, ActionUpdate, runs[1].Action)
	assert.Equal(t, ActionCreate, runs[2].Action)
	assert.Equal(t, b.ID, runs[2].CategoryID)
	for _, r := range runs {
		assert.Nil(t, r.Error)
	}
}

func TestFailedPropagationIsLogged(t *testing.T) {
	s := store.NewMemoryStore()
	log := store.NewMemoryPropagationLog(10)
	svc := NewService(s, Options{Workers: 1, Log: log})
	ctx := context.Background()

	// Two categories pointing at each other.
	a, b := uuid.New(), uuid.New()
	s.Put(models.Category{ID: a, Name: "A", Slug: "a", ParentID: &b})
	s.Put(models.Category{ID: b, Name: "B", Slug: "b", ParentID: &a})

	_, err := svc.Rebuild(ctx, a)
	require.ErrorIs(t, err, hierarchy.ErrCycle)

	runs, err := svc.Propagations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].Error)
	assert.Contains(t, *runs[0].Error, "cycle")
}

func TestPropagationsWithoutLog(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), Options{})
	runs, err := svc.Propagations(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

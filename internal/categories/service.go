// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package categories implements the category operations exposed over HTTP:
// slug derivation, duplicate checks, ancestor propagation and the cached
// tree view.
package categories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"cattree/internal/hierarchy"
	"cattree/internal/models"
	"cattree/internal/slug"
	"cattree/internal/store"
)

// ErrInvalid is returned for input that can never succeed, such as a name
// that yields an empty slug.
var ErrInvalid = errors.New("invalid category")

// TreeCache stores the materialized forest between writes.
type TreeCache interface {
	Get(ctx context.Context) ([]*models.TreeNode, bool)
	Set(ctx context.Context, forest []*models.TreeNode)
	Invalidate(ctx context.Context)
}

// Options configures a Service. The zero value propagates with
// hierarchy.DefaultWorkers, clears stale chains, caches nothing and keeps
// no run log.
type Options struct {
	Workers int
	Policy  hierarchy.StaleChainPolicy
	Cache   TreeCache
	Log     store.PropagationLog
}

// Propagation run actions.
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionRebuild = "rebuild"
)

// Service coordinates the store and the hierarchy engine.
type Service struct {
	store        store.CategoryStore
	propagator   *hierarchy.Propagator
	materializer *hierarchy.Materializer
	cache        TreeCache
	log          store.PropagationLog

	// cacheMu orders Tree's Set against invalidate; gen counts
	// invalidations so a forest built before a write is never stored.
	cacheMu sync.Mutex
	gen     uint64
}

// NewService creates a Service on top of s.
func NewService(s store.CategoryStore, opts Options) *Service {
	workers := opts.Workers
	if workers == 0 {
		workers = hierarchy.DefaultWorkers
	}
	chain := hierarchy.NewChainBuilder(s, opts.Policy)
	return &Service{
		store:        s,
		propagator:   hierarchy.NewPropagator(s, chain, workers),
		materializer: hierarchy.NewMaterializer(s),
		cache:        opts.Cache,
		log:          opts.Log,
	}
}

// CreateInput holds the fields accepted when creating a category.
type CreateInput struct {
	Name      string
	ParentID  *uuid.UUID
	Icon      *string
	Thumbnail *string
	Order     *int
	IsShow    *bool
}

// UpdateInput holds a partial update. Nil fields are left unchanged;
// Parent with Valid=false moves the category to the top level.
type UpdateInput struct {
	Name      *string
	Parent    *uuid.NullUUID
	Icon      *string
	Thumbnail *string
	Order     *int
	IsShow    *bool
}

// Create derives the slug from in.Name, rejects duplicates before writing
// anything, inserts the category and seeds its ancestor chain.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Category, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalid)
	}
	catSlug := slug.Generate(name)
	if catSlug == "" {
		return nil, fmt.Errorf("%w: name %q has no usable characters", ErrInvalid, name)
	}

	if err := s.ensureSlugFree(ctx, catSlug, nil); err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		if err := s.ensureParentExists(ctx, *in.ParentID); err != nil {
			return nil, err
		}
	}

	c := &models.Category{
		Name:      name,
		Slug:      catSlug,
		ParentID:  in.ParentID,
		Ancestors: models.Ancestors{},
		Order:     models.DefaultOrder,
		Icon:      nonEmpty(in.Icon),
		Thumbnail: nonEmpty(in.Thumbnail),
		IsShow:    true,
	}
	if in.Order != nil {
		c.Order = *in.Order
	}
	if in.IsShow != nil {
		c.IsShow = *in.IsShow
	}

	created, err := s.store.Insert(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	slog.Info("category created", "id", created.ID, "slug", created.Slug)

	if created.ParentID != nil {
		err = s.propagate(ctx, ActionCreate, created.ID, created.ParentID)
	}
	s.invalidate(ctx)
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, created.ID)
}

// Update applies in to the category and re-derives the chains of the
// category and its subtree when the parent or a displayed field changes.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*models.Category, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var u store.Update
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrInvalid)
		}
		if name != current.Name {
			catSlug := slug.Generate(name)
			if catSlug == "" {
				return nil, fmt.Errorf("%w: name %q has no usable characters", ErrInvalid, name)
			}
			if catSlug != current.Slug {
				if err := s.ensureSlugFree(ctx, catSlug, &id); err != nil {
					return nil, err
				}
				u.Slug = &catSlug
			}
			u.Name = &name
		}
	}
	if in.Parent != nil {
		if err := s.checkParent(ctx, id, *in.Parent); err != nil {
			return nil, err
		}
		u.Parent = in.Parent
	}
	u.Icon = in.Icon
	u.Thumbnail = in.Thumbnail
	u.Order = in.Order
	u.IsShow = in.IsShow

	if u.IsEmpty() {
		return current, nil
	}
	if err := s.store.UpdateFields(ctx, id, u); err != nil {
		return nil, fmt.Errorf("update category %s: %w", id, err)
	}

	switch {
	case in.Parent != nil:
		var parent *uuid.UUID
		if in.Parent.Valid {
			parent = &in.Parent.UUID
		}
		err = s.propagate(ctx, ActionUpdate, id, parent)
	case u.TouchesDisplay():
		err = s.propagate(ctx, ActionUpdate, id, current.ParentID)
	}
	s.invalidate(ctx)
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

// Delete removes one category. Its descendants keep their parent link and
// chain and surface as roots in the tree.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.store.DeleteByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return fmt.Errorf("delete category %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete category %s: %w", id, store.ErrNotFound)
	}
	slog.Info("category deleted", "id", id)
	s.invalidate(ctx)
	return nil
}

// DeleteMany removes every listed category and reports how many existed.
func (s *Service) DeleteMany(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: no ids given", ErrInvalid)
	}
	n, err := s.store.DeleteByIDs(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("delete categories: %w", err)
	}
	slog.Info("categories deleted", "requested", len(ids), "deleted", n)
	if n > 0 {
		s.invalidate(ctx)
	}
	return n, nil
}

// Get returns one category.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get category %s: %w", id, err)
	}
	return c, nil
}

// List returns every category as a flat list.
func (s *Service) List(ctx context.Context) ([]models.Category, error) {
	items, err := s.store.Find(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return items, nil
}

// Tree returns the nested forest, served from the cache when possible.
func (s *Service) Tree(ctx context.Context) ([]*models.TreeNode, error) {
	if s.cache != nil {
		if forest, ok := s.cache.Get(ctx); ok {
			return forest, nil
		}
	}

	gen := s.generation()
	forest, err := s.materializer.Materialize(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cacheMu.Lock()
		if s.gen == gen {
			s.cache.Set(ctx, forest)
		}
		s.cacheMu.Unlock()
	}
	return forest, nil
}

// Rebuild re-runs propagation from id using its current parent. It is the
// retry path after a partially failed propagation.
func (s *Service) Rebuild(ctx context.Context, id uuid.UUID) (hierarchy.Stats, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return hierarchy.Stats{}, err
	}

	stats, err := s.propagator.Propagate(ctx, id, current.ParentID)
	s.record(ctx, ActionRebuild, id, stats, err)
	s.invalidate(ctx)
	if err != nil {
		return stats, fmt.Errorf("rebuild hierarchy from %s: %w", id, err)
	}
	slog.Info("hierarchy rebuilt", "id", id, "visited", stats.Visited, "rebuilt", stats.Rebuilt, "cleared", stats.Cleared)
	return stats, nil
}

// Propagations returns the most recent propagation runs, newest first.
func (s *Service) Propagations(ctx context.Context, limit int) ([]models.PropagationRun, error) {
	if s.log == nil {
		return []models.PropagationRun{}, nil
	}
	runs, err := s.log.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list propagation runs: %w", err)
	}
	return runs, nil
}

func (s *Service) propagate(ctx context.Context, action string, id uuid.UUID, parent *uuid.UUID) error {
	stats, err := s.propagator.Propagate(ctx, id, parent)
	s.record(ctx, action, id, stats, err)
	if err != nil {
		slog.Error("hierarchy propagation failed", "id", id, "visited", stats.Visited, "error", err)
		return fmt.Errorf("propagate hierarchy from %s: %w", id, err)
	}
	slog.Debug("hierarchy propagated", "id", id, "visited", stats.Visited, "rebuilt", stats.Rebuilt, "cleared", stats.Cleared)
	return nil
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID, stats hierarchy.Stats, err error) {
	if s.log == nil {
		return
	}
	run := models.PropagationRun{
		CategoryID: id,
		Action:     action,
		Visited:    stats.Visited,
		Rebuilt:    stats.Rebuilt,
		Cleared:    stats.Cleared,
	}
	if err != nil {
		msg := err.Error()
		run.Error = &msg
	}
	// A cancelled request still gets its run recorded.
	s.log.Record(context.WithoutCancel(ctx), run)
}

func (s *Service) ensureSlugFree(ctx context.Context, catSlug string, except *uuid.UUID) error {
	existing, err := s.store.Find(ctx, store.Filter{Slug: catSlug, ExcludeID: except})
	if err != nil {
		return fmt.Errorf("check slug %q: %w", catSlug, err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("slug %q: %w", catSlug, store.ErrConflict)
	}
	return nil
}

func (s *Service) ensureParentExists(ctx context.Context, parentID uuid.UUID) error {
	_, err := s.store.GetByID(ctx, parentID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: parent %s does not exist", ErrInvalid, parentID)
	}
	if err != nil {
		return fmt.Errorf("load parent %s: %w", parentID, err)
	}
	return nil
}

// checkParent rejects a new parent that is the category itself or one of
// its descendants before anything is written. It follows the live
// parent_id links rather than the stored chains, which may lag behind
// after a partially failed propagation.
func (s *Service) checkParent(ctx context.Context, id uuid.UUID, parent uuid.NullUUID) error {
	if !parent.Valid {
		return nil
	}
	if parent.UUID == id {
		return fmt.Errorf("%w: category %s cannot be its own parent", hierarchy.ErrCycle, id)
	}

	seen := map[uuid.UUID]bool{}
	next := &parent.UUID
	for next != nil && !seen[*next] {
		seen[*next] = true
		p, err := s.store.GetByID(ctx, *next)
		if errors.Is(err, store.ErrNotFound) {
			if *next == parent.UUID {
				return fmt.Errorf("%w: parent %s does not exist", ErrInvalid, parent.UUID)
			}
			// The walk reached an orphan; id is not above it.
			return nil
		}
		if err != nil {
			return fmt.Errorf("load ancestor %s: %w", *next, err)
		}
		if p.ParentID != nil && *p.ParentID == id {
			return fmt.Errorf("%w: parent %s is a descendant of %s", hierarchy.ErrCycle, parent.UUID, id)
		}
		next = p.ParentID
	}
	return nil
}

func (s *Service) generation() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.gen
}

func (s *Service) invalidate(ctx context.Context) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.gen++
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func nonEmpty(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	return v
}

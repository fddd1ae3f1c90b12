// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"cattree/internal/models"
)

// MemoryStore is an in-process CategoryStore. It has no native closure
// query, so tree materialization over it uses the BFS fallback.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]models.Category
	now  func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[uuid.UUID]models.Category),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// GetByID retrieves a category by id.
func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	c = clone(c)
	return &c, nil
}

// Find returns the categories matching f ordered by sort_order, name.
func (s *MemoryStore) Find(ctx context.Context, f Filter) ([]models.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	items := []models.Category{}
	for _, c := range s.rows {
		if matches(c, f) {
			items = append(items, clone(c))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(items, func(a, b models.Category) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		if n := strings.Compare(a.Name, b.Name); n != 0 {
			return n
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return items, nil
}

// FindChildren returns the direct children of parentID.
func (s *MemoryStore) FindChildren(ctx context.Context, parentID uuid.UUID) ([]models.Category, error) {
	return s.Find(ctx, Filter{ParentID: &parentID})
}

// Insert stores a copy of c under a fresh id.
func (s *MemoryStore) Insert(ctx context.Context, c *models.Category) (*models.Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.slugTaken(c.Slug, uuid.Nil) {
		return nil, fmt.Errorf("insert category %q: %w", c.Slug, ErrConflict)
	}

	row := clone(*c)
	row.ID = uuid.New()
	if row.Ancestors == nil {
		row.Ancestors = models.Ancestors{}
	}
	row.UpdatedAt = s.now()
	s.rows[row.ID] = row

	out := clone(row)
	return &out, nil
}

// UpdateFields writes only the fields set in u and bumps UpdatedAt.
func (s *MemoryStore) UpdateFields(ctx context.Context, id uuid.UUID, u Update) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if u.Slug != nil && s.slugTaken(*u.Slug, id) {
		return fmt.Errorf("update category %s: %w", id, ErrConflict)
	}

	if u.Name != nil {
		row.Name = *u.Name
	}
	if u.Slug != nil {
		row.Slug = *u.Slug
	}
	if u.Parent != nil {
		if u.Parent.Valid {
			parent := u.Parent.UUID
			row.ParentID = &parent
		} else {
			row.ParentID = nil
		}
	}
	if u.Ancestors != nil {
		row.Ancestors = slices.Clone(*u.Ancestors)
		if row.Ancestors == nil {
			row.Ancestors = models.Ancestors{}
		}
	}
	if u.Order != nil {
		row.Order = *u.Order
	}
	if u.Icon != nil {
		row.Icon = optional(*u.Icon)
	}
	if u.Thumbnail != nil {
		row.Thumbnail = optional(*u.Thumbnail)
	}
	if u.IsShow != nil {
		row.IsShow = *u.IsShow
	}
	row.UpdatedAt = s.now()
	s.rows[id] = row
	return nil
}

// DeleteByIDs removes the given categories. Descendants are not touched.
func (s *MemoryStore) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range ids {
		if _, ok := s.rows[id]; ok {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

// Put stores c verbatim, keeping its id. It bypasses slug checks and is
// meant for seeding fixtures, including deliberately corrupted ones.
func (s *MemoryStore) Put(c models.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Ancestors == nil {
		c.Ancestors = models.Ancestors{}
	}
	s.rows[c.ID] = clone(c)
}

// Len returns the number of stored categories.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// slugTaken must be called with s.mu held.
func (s *MemoryStore) slugTaken(slug string, except uuid.UUID) bool {
	for id, c := range s.rows {
		if id != except && c.Slug == slug {
			return true
		}
	}
	return false
}

func matches(c models.Category, f Filter) bool {
	if f.Slug != "" && c.Slug != f.Slug {
		return false
	}
	if f.ExcludeID != nil && c.ID == *f.ExcludeID {
		return false
	}
	if f.ParentID != nil && (c.ParentID == nil || *c.ParentID != *f.ParentID) {
		return false
	}
	if f.RootsOnly && c.ParentID != nil {
		return false
	}
	if len(f.IDs) > 0 && !slices.Contains(f.IDs, c.ID) {
		return false
	}
	return true
}

// clone copies c so callers never share pointers or slices with the store.
func clone(c models.Category) models.Category {
	if c.ParentID != nil {
		parent := *c.ParentID
		c.ParentID = &parent
	}
	if c.Icon != nil {
		c.Icon = optional(*c.Icon)
	}
	if c.Thumbnail != nil {
		c.Thumbnail = optional(*c.Thumbnail)
	}
	c.Ancestors = slices.Clone(c.Ancestors)
	return c
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

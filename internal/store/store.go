// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package store persists categories. CategoryStore is the contract the
// hierarchy engine is written against; PGCategoryStore and MemoryStore
// implement it.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"cattree/internal/models"
)

var (
	// ErrNotFound is returned when a category id does not exist.
	ErrNotFound = errors.New("category not found")
	// ErrConflict is returned when a write would duplicate a unique slug.
	ErrConflict = errors.New("category already exists")
)

// CategoryStore is the document-store interface for categories.
type CategoryStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	Find(ctx context.Context, f Filter) ([]models.Category, error)
	FindChildren(ctx context.Context, parentID uuid.UUID) ([]models.Category, error)
	Insert(ctx context.Context, c *models.Category) (*models.Category, error)
	UpdateFields(ctx context.Context, id uuid.UUID, u Update) error
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// ClosureEdge is one (ancestor, descendant, hop count) triple of the
// parent→child transitive closure.
type ClosureEdge struct {
	AncestorID uuid.UUID
	Descendant models.Category
	Level      int
}

// ClosureQuerier is implemented by stores that can compute the transitive
// closure natively. Stores without it get an in-memory BFS.
type ClosureQuerier interface {
	Closure(ctx context.Context) ([]ClosureEdge, error)
}

// Filter selects categories. Zero-valued fields do not constrain.
type Filter struct {
	Slug      string
	ExcludeID *uuid.UUID
	ParentID  *uuid.UUID
	RootsOnly bool
	IDs       []uuid.UUID
}

// Update is a targeted partial update. Nil fields are left untouched.
// Parent uses uuid.NullUUID so that "set to null" differs from "unchanged".
type Update struct {
	Name      *string
	Slug      *string
	Parent    *uuid.NullUUID
	Ancestors *models.Ancestors
	Order     *int
	Icon      *string
	Thumbnail *string
	IsShow    *bool
}

// IsEmpty reports whether the update sets no field.
func (u Update) IsEmpty() bool {
	return u.Name == nil && u.Slug == nil && u.Parent == nil && u.Ancestors == nil &&
		u.Order == nil && u.Icon == nil && u.Thumbnail == nil && u.IsShow == nil
}

// TouchesDisplay reports whether the update changes a field that
// descendants snapshot into their ancestor chains.
func (u Update) TouchesDisplay() bool {
	return u.Name != nil || u.Slug != nil || u.Icon != nil || u.Thumbnail != nil
}

// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package models defines the domain types shared by the store, the
// hierarchy engine and the HTTP layer.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultOrder marks a category that has no explicit sibling position.
const DefaultOrder = -1

// Category is a node in the category hierarchy. Ancestors is a denormalized
// copy of the parent chain, nearest parent first, maintained by the
// hierarchy propagator.
type Category struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	ParentID  *uuid.UUID `json:"parent_id"`
	Ancestors Ancestors  `json:"ancestors"`
	Order     int        `json:"order"`
	Icon      *string    `json:"icon"`
	Thumbnail *string    `json:"thumbnail"`
	IsShow    bool       `json:"is_show"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsRoot reports whether the category has no declared parent.
func (c *Category) IsRoot() bool {
	return c.ParentID == nil
}

// Ref returns the snapshot of c that its descendants embed in their chains.
func (c *Category) Ref() AncestorRef {
	return AncestorRef{
		ID:        c.ID,
		Name:      c.Name,
		Slug:      c.Slug,
		Icon:      c.Icon,
		Thumbnail: c.Thumbnail,
	}
}

// AncestorRef is a point-in-time snapshot of an ancestor's display fields.
// It is not a live reference and goes stale until the next propagation.
type AncestorRef struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Icon      *string   `json:"icon"`
	Thumbnail *string   `json:"thumbnail"`
}

// Ancestors is an ordered ancestor chain. It is persisted as a JSON array.
type Ancestors []AncestorRef

// Contains reports whether id appears anywhere in the chain.
func (a Ancestors) Contains(id uuid.UUID) bool {
	for _, ref := range a {
		if ref.ID == id {
			return true
		}
	}
	return false
}

// IDs returns the ancestor ids in chain order.
func (a Ancestors) IDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(a))
	for i, ref := range a {
		ids[i] = ref.ID
	}
	return ids
}

// Value implements driver.Valuer. A nil chain is stored as an empty array.
func (a Ancestors) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	b, err := json.Marshal([]AncestorRef(a))
	if err != nil {
		return nil, fmt.Errorf("marshal ancestors: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner for JSON/JSONB columns.
func (a *Ancestors) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*a = Ancestors{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan ancestors: unsupported type %T", src)
	}

	chain := Ancestors{}
	if err := json.Unmarshal(raw, &chain); err != nil {
		return fmt.Errorf("scan ancestors: %w", err)
	}
	*a = chain
	return nil
}

// MarshalJSON always renders a chain as an array, never null.
func (a Ancestors) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]AncestorRef(a))
}

// TreeNode is a category together with its materialized children.
type TreeNode struct {
	Category
	Children []*TreeNode `json:"children"`
}

// PropagationRun is one recorded propagation over a category's subtree.
// Error is set when any branch failed; such a run can be retried.
type PropagationRun struct {
	ID         int64     `json:"id"`
	CategoryID uuid.UUID `json:"category_id"`
	Action     string    `json:"action"`
	Visited    int       `json:"visited"`
	Rebuilt    int       `json:"rebuilt"`
	Cleared    int       `json:"cleared"`
	Error      *string   `json:"error"`
	RanAt      time.Time `json:"ran_at"`
}

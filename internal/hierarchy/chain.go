// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package hierarchy keeps the denormalized ancestor chains of categories
// consistent with their parent links and rebuilds nested trees from the
// flat collection.
package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"cattree/internal/models"
	"cattree/internal/store"
)

// ErrCycle reports a parent graph in which a category is its own ancestor.
var ErrCycle = errors.New("hierarchy corrupted: cycle detected")

// StaleChainPolicy decides what Rebuild does when a category has no
// parent, or its parent no longer exists.
type StaleChainPolicy int

const (
	// ClearStale persists an empty chain, so roots and orphans never carry
	// ancestors.
	ClearStale StaleChainPolicy = iota
	// KeepStale leaves the current chain untouched.
	KeepStale
)

// Outcome is what Rebuild did to the target's chain.
type Outcome int

const (
	ChainUnchanged Outcome = iota
	ChainRebuilt
	ChainCleared
)

// ChainBuilder computes and persists the ancestor chain of one category.
type ChainBuilder struct {
	store  store.CategoryStore
	policy StaleChainPolicy
}

// NewChainBuilder returns a ChainBuilder writing through s.
func NewChainBuilder(s store.CategoryStore, policy StaleChainPolicy) *ChainBuilder {
	return &ChainBuilder{store: s, policy: policy}
}

// Policy returns the builder's stale chain policy.
func (b *ChainBuilder) Policy() StaleChainPolicy {
	return b.policy
}

// Rebuild sets the chain of categoryID to [parent] ++ parent.ancestors with
// a single targeted field update. It reads the parent once and never
// recurses.
func (b *ChainBuilder) Rebuild(ctx context.Context, categoryID uuid.UUID, parentID *uuid.UUID) (Outcome, error) {
	if parentID == nil {
		return b.stale(ctx, categoryID)
	}
	if *parentID == categoryID {
		return ChainUnchanged, fmt.Errorf("%w: category %s is its own parent", ErrCycle, categoryID)
	}

	parent, err := b.store.GetByID(ctx, *parentID)
	if errors.Is(err, store.ErrNotFound) {
		slog.Debug("parent category missing", "category", categoryID, "parent", *parentID)
		return b.stale(ctx, categoryID)
	}
	if err != nil {
		return ChainUnchanged, fmt.Errorf("load parent %s: %w", *parentID, err)
	}
	if parent.Ancestors.Contains(categoryID) {
		return ChainUnchanged, fmt.Errorf("%w: category %s is an ancestor of its parent %s", ErrCycle, categoryID, parent.ID)
	}

	chain := Compose(parent)
	if err := b.store.UpdateFields(ctx, categoryID, store.Update{Ancestors: &chain}); err != nil {
		return ChainUnchanged, fmt.Errorf("persist ancestors of %s: %w", categoryID, err)
	}
	return ChainRebuilt, nil
}

func (b *ChainBuilder) stale(ctx context.Context, categoryID uuid.UUID) (Outcome, error) {
	if b.policy == KeepStale {
		return ChainUnchanged, nil
	}

	empty := models.Ancestors{}
	if err := b.store.UpdateFields(ctx, categoryID, store.Update{Ancestors: &empty}); err != nil {
		return ChainUnchanged, fmt.Errorf("clear ancestors of %s: %w", categoryID, err)
	}
	return ChainCleared, nil
}

// Compose returns the chain a direct child of parent must carry.
func Compose(parent *models.Category) models.Ancestors {
	chain := make(models.Ancestors, 0, len(parent.Ancestors)+1)
	chain = append(chain, parent.Ref())
	return append(chain, parent.Ancestors...)
}

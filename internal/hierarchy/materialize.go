// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"cattree/internal/models"
	"cattree/internal/store"
)

// Materializer reconstructs the nested category forest from the flat
// collection in one bulk pass.
type Materializer struct {
	store store.CategoryStore
}

// NewMaterializer returns a Materializer reading from s.
func NewMaterializer(s store.CategoryStore) *Materializer {
	return &Materializer{store: s}
}

// Materialize returns every root category with its children nested to
// full depth. It reads a point-in-time view and takes no locks, so
// concurrent writes may show up as a torn snapshot.
func (m *Materializer) Materialize(ctx context.Context) ([]*models.TreeNode, error) {
	flat, err := m.store.Find(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("materialize: load categories: %w", err)
	}

	var edges []store.ClosureEdge
	if q, ok := m.store.(store.ClosureQuerier); ok {
		edges, err = q.Closure(ctx)
		if err != nil {
			return nil, fmt.Errorf("materialize: closure: %w", err)
		}
	} else {
		edges = BuildClosure(flat)
	}

	return Fold(flat, edges), nil
}

// BuildClosure computes the parent→child transitive closure of flat by
// breadth-first expansion from every node, annotating each pair with its
// hop count. A node already reached from the same source is not expanded
// again, so a cyclic parent graph still terminates.
func BuildClosure(flat []models.Category) []store.ClosureEdge {
	children := make(map[uuid.UUID][]models.Category, len(flat))
	for _, c := range flat {
		if c.ParentID != nil {
			children[*c.ParentID] = append(children[*c.ParentID], c)
		}
	}

	var edges []store.ClosureEdge
	for _, src := range flat {
		seen := map[uuid.UUID]bool{src.ID: true}
		frontier := []uuid.UUID{src.ID}
		for level := 1; len(frontier) > 0; level++ {
			var next []uuid.UUID
			for _, id := range frontier {
				for _, c := range children[id] {
					if seen[c.ID] {
						continue
					}
					seen[c.ID] = true
					edges = append(edges, store.ClosureEdge{AncestorID: src.ID, Descendant: c, Level: level})
					next = append(next, c.ID)
				}
			}
			frontier = next
		}
	}
	return edges
}

// Fold groups closure edges by ancestor and folds each root's descendants
// from the deepest level upward into a nested tree.
//
// Roots are categories without a parent and categories whose parent no
// longer exists, so deleting a node never hides its subtree.
func Fold(flat []models.Category, edges []store.ClosureEdge) []*models.TreeNode {
	present := make(map[uuid.UUID]bool, len(flat))
	for _, c := range flat {
		present[c.ID] = true
	}

	groups := make(map[uuid.UUID][]store.ClosureEdge)
	for _, e := range edges {
		groups[e.AncestorID] = append(groups[e.AncestorID], e)
	}

	forest := []*models.TreeNode{}
	for _, c := range flat {
		if c.ParentID != nil && present[*c.ParentID] {
			continue
		}
		forest = append(forest, foldRoot(c, groups[c.ID]))
	}
	sortSiblings(forest)
	return forest
}

// foldRoot builds root's subtree from its closure group. carry holds the
// nodes folded so far, keyed by the parent they still need to be attached
// to; each level claims the entries for its own ids and passes the rest on.
func foldRoot(root models.Category, group []store.ClosureEdge) *models.TreeNode {
	byLevel := make(map[int][]models.Category)
	maxLevel := 0
	for _, e := range group {
		byLevel[e.Level] = append(byLevel[e.Level], e.Descendant)
		maxLevel = max(maxLevel, e.Level)
	}

	carry := map[uuid.UUID][]*models.TreeNode{}
	for level := maxLevel; level >= 1; level-- {
		next := map[uuid.UUID][]*models.TreeNode{}
		for _, c := range byLevel[level] {
			node := newNode(c, carry[c.ID])
			delete(carry, c.ID)
			if c.ParentID != nil {
				next[*c.ParentID] = append(next[*c.ParentID], node)
			}
		}
		for parentID, nodes := range carry {
			next[parentID] = append(next[parentID], nodes...)
		}
		carry = next
	}

	node := newNode(root, carry[root.ID])
	delete(carry, root.ID)
	if len(carry) > 0 {
		slog.Debug("materialize dropped detached nodes", "root", root.ID, "parents", len(carry))
	}
	return node
}

func newNode(c models.Category, children []*models.TreeNode) *models.TreeNode {
	if children == nil {
		children = []*models.TreeNode{}
	}
	sortSiblings(children)
	return &models.TreeNode{Category: c, Children: children}
}

// sortSiblings puts explicitly ordered categories first by order, then the
// unordered ones; ties break on name and id.
func sortSiblings(nodes []*models.TreeNode) {
	slices.SortFunc(nodes, func(a, b *models.TreeNode) int {
		ao, bo := a.Order < 0, b.Order < 0
		switch {
		case ao != bo && ao:
			return 1
		case ao != bo:
			return -1
		case a.Order != b.Order:
			return a.Order - b.Order
		}
		if n := strings.Compare(a.Name, b.Name); n != 0 {
			return n
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}

// Flatten walks a forest depth-first and returns every category once,
// parents before their children.
func Flatten(forest []*models.TreeNode) []models.Category {
	var out []models.Category
	var walk func(nodes []*models.TreeNode)
	walk = func(nodes []*models.TreeNode) {
		for _, n := range nodes {
			out = append(out, n.Category)
			walk(n.Children)
		}
	}
	walk(forest)
	return out
}

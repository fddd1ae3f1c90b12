// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"cattree/internal/models"
	"cattree/internal/slug"
)

// seedNode describes one category of the development taxonomy.
type seedNode struct {
	name     string
	children []seedNode
}

// demoTaxonomy is inserted into an empty database in development.
var demoTaxonomy = []seedNode{
	{name: "Electronics", children: []seedNode{
		{name: "Phones", children: []seedNode{
			{name: "Smartphones"},
			{name: "Feature Phones"},
		}},
		{name: "Laptops"},
		{name: "Televisions"},
	}},
	{name: "Home & Garden", children: []seedNode{
		{name: "Furniture"},
		{name: "Kitchen"},
	}},
	{name: "Fashion", children: []seedNode{
		{name: "Shoes"},
		{name: "T-Shirts"},
	}},
}

// Seed populates an empty categories table with a small demo taxonomy.
// Ancestor chains are computed while walking the tree, so the seeded
// rows already satisfy the chain invariant without a propagation pass.
func Seed(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM categories").Scan(&count); err != nil {
		return fmt.Errorf("seed check categories: %w", err)
	}

	if count > 0 {
		slog.Info("database already seeded, skipping")
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed begin tx: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	var insert func(nodes []seedNode, parent *models.Category) error
	insert = func(nodes []seedNode, parent *models.Category) error {
		for i, n := range nodes {
			c := models.Category{
				ID:        uuid.New(),
				Name:      n.name,
				Slug:      slug.Generate(n.name),
				Ancestors: models.Ancestors{},
				Order:     i,
				IsShow:    true,
			}
			if parent != nil {
				c.ParentID = &parent.ID
				c.Ancestors = append(models.Ancestors{parent.Ref()}, parent.Ancestors...)
			}

			_, err := tx.Exec(`
				INSERT INTO categories (id, name, slug, parent_id, ancestors, sort_order, is_show)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, c.ID, c.Name, c.Slug, c.ParentID, c.Ancestors, c.Order, c.IsShow)
			if err != nil {
				return fmt.Errorf("seed insert %q: %w", n.name, err)
			}
			inserted++

			if err := insert(n.children, &c); err != nil {
				return err
			}
		}
		return nil
	}

	if err := insert(demoTaxonomy, nil); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}

	slog.Info("database seeded with demo taxonomy", "categories", inserted)
	return nil
}

// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"cattree/internal/models"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique index conflict.
const uniqueViolation = "23505"

// PGCategoryStore manages categories in PostgreSQL.
type PGCategoryStore struct {
	db *sql.DB
}

// NewPGCategoryStore returns a new PGCategoryStore.
func NewPGCategoryStore(db *sql.DB) *PGCategoryStore {
	return &PGCategoryStore{db: db}
}

const categoryColumns = `id, name, slug, parent_id, ancestors, sort_order, icon, thumbnail, is_show, updated_at`

// categoryFields returns scan destinations in categoryColumns order.
func categoryFields(c *models.Category) []any {
	return []any{
		&c.ID, &c.Name, &c.Slug, &c.ParentID, &c.Ancestors,
		&c.Order, &c.Icon, &c.Thumbnail, &c.IsShow, &c.UpdatedAt,
	}
}

// scanCategory scans a row into a Category struct.
func scanCategory(scanner interface{ Scan(...any) error }) (*models.Category, error) {
	var c models.Category
	if err := scanner.Scan(categoryFields(&c)...); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID retrieves a category by id.
func (s *PGCategoryStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get category by id: %w", err)
	}
	return c, nil
}

// Find returns the categories matching f ordered by sort_order, name.
func (s *PGCategoryStore) Find(ctx context.Context, f Filter) ([]models.Category, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Slug != "" {
		where = append(where, "slug = "+arg(f.Slug))
	}
	if f.ExcludeID != nil {
		where = append(where, "id <> "+arg(*f.ExcludeID))
	}
	if f.ParentID != nil {
		where = append(where, "parent_id = "+arg(*f.ParentID))
	}
	if f.RootsOnly {
		where = append(where, "parent_id IS NULL")
	}
	if len(f.IDs) > 0 {
		where = append(where, "id = ANY("+arg(uuidStrings(f.IDs))+"::uuid[])")
	}

	query := `SELECT ` + categoryColumns + ` FROM categories`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY sort_order, name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find categories: %w", err)
	}
	defer rows.Close()

	items := []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

// FindChildren returns the direct children of parentID.
func (s *PGCategoryStore) FindChildren(ctx context.Context, parentID uuid.UUID) ([]models.Category, error) {
	return s.Find(ctx, Filter{ParentID: &parentID})
}

// Insert stores a new category and returns it with its assigned id.
// A duplicate slug yields ErrConflict.
func (s *PGCategoryStore) Insert(ctx context.Context, c *models.Category) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO categories (id, name, slug, parent_id, ancestors, sort_order, icon, thumbnail, is_show)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+categoryColumns,
		uuid.New(), c.Name, c.Slug, c.ParentID, c.Ancestors, c.Order, c.Icon, c.Thumbnail, c.IsShow,
	)
	result, err := scanCategory(row)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("insert category %q: %w", c.Slug, ErrConflict)
	}
	if err != nil {
		return nil, fmt.Errorf("insert category: %w", err)
	}
	return result, nil
}

// UpdateFields writes only the fields set in u and bumps updated_at.
func (s *PGCategoryStore) UpdateFields(ctx context.Context, id uuid.UUID, u Update) error {
	var (
		sets []string
		args []any
	)
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if u.Name != nil {
		set("name", *u.Name)
	}
	if u.Slug != nil {
		set("slug", *u.Slug)
	}
	if u.Parent != nil {
		set("parent_id", *u.Parent)
	}
	if u.Ancestors != nil {
		set("ancestors", *u.Ancestors)
	}
	if u.Order != nil {
		set("sort_order", *u.Order)
	}
	if u.Icon != nil {
		set("icon", nullString(*u.Icon))
	}
	if u.Thumbnail != nil {
		set("thumbnail", nullString(*u.Thumbnail))
	}
	if u.IsShow != nil {
		set("is_show", *u.IsShow)
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE categories SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if isUniqueViolation(err) {
		return fmt.Errorf("update category %s: %w", id, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("update category %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update category %s: rows affected: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByIDs removes the given categories. Descendants are not touched.
func (s *PGCategoryStore) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ANY($1::uuid[])`, uuidStrings(ids))
	if err != nil {
		return 0, fmt.Errorf("delete categories: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete categories: rows affected: %w", err)
	}
	return n, nil
}

// Closure computes every (ancestor, descendant, level) pair with a
// recursive CTE. The path array stops expansion on a corrupted, cyclic
// parent graph.
func (s *PGCategoryStore) Closure(ctx context.Context) ([]ClosureEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE closure (ancestor_id, id, level, path) AS (
			SELECT c.parent_id, c.id, 1, ARRAY[c.parent_id, c.id]
			FROM categories c
			WHERE c.parent_id IS NOT NULL
			UNION ALL
			SELECT cl.ancestor_id, c.id, cl.level + 1, cl.path || c.id
			FROM closure cl
			JOIN categories c ON c.parent_id = cl.id
			WHERE NOT c.id = ANY (cl.path)
		)
		SELECT cl.ancestor_id, cl.level,
		       c.id, c.name, c.slug, c.parent_id, c.ancestors, c.sort_order,
		       c.icon, c.thumbnail, c.is_show, c.updated_at
		FROM closure cl
		JOIN categories c ON c.id = cl.id
		ORDER BY cl.ancestor_id, cl.level
	`)
	if err != nil {
		return nil, fmt.Errorf("category closure: %w", err)
	}
	defer rows.Close()

	var edges []ClosureEdge
	for rows.Next() {
		var e ClosureEdge
		dest := append([]any{&e.AncestorID, &e.Level}, categoryFields(&e.Descendant)...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan closure edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// isUniqueViolation reports whether err is a PostgreSQL unique violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// nullString maps an empty string to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

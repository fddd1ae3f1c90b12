// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// propagation_log.go records hierarchy propagation runs for audit and
// debugging. Each entry captures which category the run started from,
// why (create/update/rebuild), how much of the subtree it touched and
// whether any branch failed.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"cattree/internal/models"
)

// DefaultLogLimit is the number of runs Recent returns when asked for
// zero or fewer.
const DefaultLogLimit = 50

// PropagationLog stores propagation runs. Record is best-effort and never
// fails the caller.
type PropagationLog interface {
	Record(ctx context.Context, run models.PropagationRun)
	Recent(ctx context.Context, limit int) ([]models.PropagationRun, error)
}

// PGPropagationLog keeps the run log in PostgreSQL.
type PGPropagationLog struct {
	db *sql.DB
}

// NewPGPropagationLog creates a new PGPropagationLog.
func NewPGPropagationLog(db *sql.DB) *PGPropagationLog {
	return &PGPropagationLog{db: db}
}

// Record inserts a run.
func (s *PGPropagationLog) Record(ctx context.Context, run models.PropagationRun) {
	var errText sql.NullString
	if run.Error != nil {
		errText = sql.NullString{String: *run.Error, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO propagation_log (category_id, action, visited, rebuilt, cleared, error)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.CategoryID, run.Action, run.Visited, run.Rebuilt, run.Cleared, errText)
	if err != nil {
		slog.Warn("failed to log propagation run",
			"category_id", run.CategoryID,
			"action", run.Action,
			"error", err,
		)
		return
	}
	slog.Debug("propagation run logged", "category_id", run.CategoryID, "action", run.Action)
}

// Recent returns the latest runs, newest first.
func (s *PGPropagationLog) Recent(ctx context.Context, limit int) ([]models.PropagationRun, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, category_id, action, visited, rebuilt, cleared, error, ran_at
		FROM propagation_log
		ORDER BY ran_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query propagation log: %w", err)
	}
	defer rows.Close()

	runs := []models.PropagationRun{}
	for rows.Next() {
		var r models.PropagationRun
		if err := rows.Scan(&r.ID, &r.CategoryID, &r.Action, &r.Visited, &r.Rebuilt, &r.Cleared, &r.Error, &r.RanAt); err != nil {
			return nil, fmt.Errorf("scan propagation log: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// MemoryPropagationLog keeps the most recent runs in a bounded slice.
type MemoryPropagationLog struct {
	mu     sync.Mutex
	runs   []models.PropagationRun
	nextID int64
	max    int
}

// NewMemoryPropagationLog returns a log that retains at most max runs.
func NewMemoryPropagationLog(max int) *MemoryPropagationLog {
	if max <= 0 {
		max = 1000
	}
	return &MemoryPropagationLog{max: max}
}

// Record appends a run, dropping the oldest once full.
func (l *MemoryPropagationLog) Record(_ context.Context, run models.PropagationRun) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	run.ID = l.nextID
	run.RanAt = time.Now().UTC()
	l.runs = append(l.runs, run)
	if len(l.runs) > l.max {
		l.runs = slices.Delete(l.runs, 0, len(l.runs)-l.max)
	}
}

// Recent returns the latest runs, newest first.
func (l *MemoryPropagationLog) Recent(ctx context.Context, limit int) ([]models.PropagationRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLogLimit
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	n := min(limit, len(l.runs))
	out := make([]models.PropagationRun, 0, n)
	for i := len(l.runs) - 1; i >= len(l.runs)-n; i-- {
		out = append(out, l.runs[i])
	}
	return out, nil
}

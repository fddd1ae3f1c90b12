// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// tree.go caches the materialized category forest in Valkey so repeated
// tree reads skip the closure query and the fold.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"cattree/internal/models"
)

const (
	// TreeKey is the Valkey key holding the JSON-encoded forest.
	TreeKey = "tree:categories"

	// DefaultTreeTTL bounds how long a forest survives without an
	// invalidating write.
	DefaultTreeTTL = 5 * time.Minute
)

// TreeCache stores the materialized forest. Errors are logged and treated
// as misses; the cache never fails a request.
type TreeCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTreeCache creates a tree cache backed by the given Valkey client.
func NewTreeCache(client *redis.Client, ttl time.Duration) *TreeCache {
	if ttl <= 0 {
		ttl = DefaultTreeTTL
	}
	return &TreeCache{client: client, ttl: ttl}
}

// Get returns the cached forest, if any.
func (tc *TreeCache) Get(ctx context.Context) ([]*models.TreeNode, bool) {
	raw, err := tc.client.Get(ctx, TreeKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("tree cache get error", "error", err)
		return nil, false
	}

	var forest []*models.TreeNode
	if err := json.Unmarshal(raw, &forest); err != nil {
		slog.Warn("tree cache entry unreadable, dropping", "error", err)
		tc.Invalidate(ctx)
		return nil, false
	}
	slog.Debug("tree cache hit", "roots", len(forest))
	return forest, true
}

// Set stores forest with the configured TTL.
func (tc *TreeCache) Set(ctx context.Context, forest []*models.TreeNode) {
	raw, err := json.Marshal(forest)
	if err != nil {
		slog.Warn("tree cache encode error", "error", err)
		return
	}
	if err := tc.client.Set(ctx, TreeKey, raw, tc.ttl).Err(); err != nil {
		slog.Warn("tree cache set error", "error", err)
	}
}

// Invalidate drops the cached forest.
func (tc *TreeCache) Invalidate(ctx context.Context) {
	if err := tc.client.Del(ctx, TreeKey).Err(); err != nil {
		slog.Warn("tree cache invalidate error", "error", err)
		return
	}
	slog.Debug("tree cache invalidated")
}

// Package coverage resolves a metric's coverage declaration into a
// concrete set of content-item ids at the metric's level.
package coverage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/learnward/metron/internal/adapters/store"
	"github.com/learnward/metron/internal/domain/model"
)

// Cache stores resolved coverage sets. Resolution is deterministic and
// safe to cache keyed by (level, coverage, catalog version); misses are
// not errors.
type Cache interface {
	Get(ctx context.Context, key string) ([]string, bool)
	Set(ctx context.Context, key string, ids []string)
}

// Resolver turns coverage declarations into sorted item-id sets.
type Resolver struct {
	catalog store.ContentCatalog
	cache   Cache
}

// Option applies a configuration option to the Resolver.
type Option func(*Resolver)

// WithCache installs a resolution cache.
func WithCache(c Cache) Option {
	return func(r *Resolver) {
		if c != nil {
			r.cache = c
		}
	}
}

// NewResolver creates a Resolver over the given catalog.
func NewResolver(catalog store.ContentCatalog, opts ...Option) *Resolver {
	r := &Resolver{catalog: catalog}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the item ids the coverage selects at the given level,
// sorted for order-independence.
//
// All covers the whole catalog at the level. Include validates every id
// against the catalog and fails with ErrUnknownItem on a miss. Exclude
// subtracts its ids from the full level; unknown ids in an exclude list
// are ignored, exclusion is defensive not assertive.
func (r *Resolver) Resolve(ctx context.Context, level model.Level, cov model.Coverage) ([]string, error) {
	key, err := r.cacheKey(ctx, level, cov)
	if err == nil && r.cache != nil {
		if ids, ok := r.cache.Get(ctx, key); ok {
			return ids, nil
		}
	}

	ids, err2 := r.resolve(ctx, level, cov)
	if err2 != nil {
		return nil, err2
	}
	sort.Strings(ids)

	if err == nil && r.cache != nil {
		r.cache.Set(ctx, key, ids)
	}
	return ids, nil
}

func (r *Resolver) resolve(ctx context.Context, level model.Level, cov model.Coverage) ([]string, error) {
	switch cov.Kind {
	case model.CoverAll:
		return r.catalog.ItemsAtLevel(ctx, level)

	case model.CoverInclude:
		ids := make([]string, 0, len(cov.IDs))
		for _, id := range cov.IDs {
			itemLevel, err := r.catalog.ItemLevel(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("include %q: %w", id, ErrUnknownItem)
			}
			if err != nil {
				return nil, err
			}
			if itemLevel != level {
				return nil, fmt.Errorf("include %q at %s, want %s: %w", id, itemLevel, level, ErrUnknownItem)
			}
			ids = append(ids, id)
		}
		return ids, nil

	case model.CoverExclude:
		all, err := r.catalog.ItemsAtLevel(ctx, level)
		if err != nil {
			return nil, err
		}
		drop := make(map[string]bool, len(cov.IDs))
		for _, id := range cov.IDs {
			drop[id] = true
		}
		ids := make([]string, 0, len(all))
		for _, id := range all {
			if !drop[id] {
				ids = append(ids, id)
			}
		}
		return ids, nil

	default:
		return nil, fmt.Errorf("coverage kind %d: %w", cov.Kind, ErrUnknownCoverage)
	}
}

// cacheKey builds the (level, coverage, catalog version) cache key.
func (r *Resolver) cacheKey(ctx context.Context, level model.Level, cov model.Coverage) (string, error) {
	version, err := r.catalog.Version(ctx)
	if err != nil {
		return "", err
	}
	ids := make([]string, len(cov.IDs))
	copy(ids, cov.IDs)
	sort.Strings(ids)
	return fmt.Sprintf("coverage:%s:%d:%s:%s", level, cov.Kind, strings.Join(ids, ","), version), nil
}

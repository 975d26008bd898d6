// Package store defines the contracts for the external collaborators
// the engine reads from and the one surface it writes to.
package store

import (
	"context"

	"github.com/learnward/metron/internal/domain/model"
)

// ContentCatalog is the read-only lookup of content items.
type ContentCatalog interface {
	// ItemsAtLevel returns the ids of every item at the given level.
	ItemsAtLevel(ctx context.Context, level model.Level) ([]string, error)

	// ItemLevel returns the level of the given item.
	// Returns ErrNotFound if the item is unknown.
	ItemLevel(ctx context.Context, itemID string) (model.Level, error)

	// Version identifies the current catalog revision, used to key
	// coverage-resolution caches.
	Version(ctx context.Context) (string, error)
}

// SubmissionFeed is the append-only sequence of raw submission events.
// The engine only reads, never mutates the feed.
type SubmissionFeed interface {
	// Submissions returns all submissions for one (learner, item) pair
	// in append order.
	Submissions(ctx context.Context, learnerID, itemID string) ([]model.Submission, error)
}

// MetricStore provides read access to metric definitions. The engine
// never writes configuration fields; TouchLastUpdated maintains the
// engine-owned bookkeeping timestamp only.
type MetricStore interface {
	// Definition returns one definition by id.
	// Returns ErrNotFound if the id is unknown.
	Definition(ctx context.Context, id string) (*model.MetricDefinition, error)

	// Definitions returns every stored definition.
	Definitions(ctx context.Context) ([]*model.MetricDefinition, error)

	// TouchLastUpdated records the timestamp of the most recent
	// successful aggregation for a definition.
	TouchLastUpdated(ctx context.Context, id string, ts int64) error
}

// ScoreStore is the engine's sole write surface. Upserts replace the
// prior value for the same key wholesale; scores are never patched.
type ScoreStore interface {
	// Get returns the score for (metric, learner, item). ItemID is
	// empty for the aggregate score. Returns ErrNotFound when no score
	// has been computed for the key.
	Get(ctx context.Context, metricID, learnerID, itemID string) (model.Score, error)

	// ItemScores returns the per-item scores of a metric for one
	// learner, keyed by item id. Items without a stored score are
	// simply omitted.
	ItemScores(ctx context.Context, metricID, learnerID string, itemIDs []string) (map[string]model.Score, error)

	// UpsertBatch replaces the scores for each key in the batch.
	UpsertBatch(ctx context.Context, scores []model.Score) error
}

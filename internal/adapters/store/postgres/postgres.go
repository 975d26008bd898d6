// Package postgres implements the engine's store contracts on
// PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/learnward/metron/internal/adapters/store"
	"github.com/learnward/metron/internal/domain/model"
)

// Connect opens a pgx pool against the given DSN and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// Migrate creates the tables the adapter needs.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS content_items (
			id    TEXT PRIMARY KEY,
			level TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id         BIGSERIAL PRIMARY KEY,
			learner_id TEXT   NOT NULL,
			item_id    TEXT   NOT NULL,
			value      DOUBLE PRECISION NOT NULL,
			tag        TEXT   NOT NULL DEFAULT '',
			ts         BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS submissions_learner_item
			ON submissions (learner_id, item_id, id)`,
		`CREATE TABLE IF NOT EXISTS metric_definitions (
			id                 TEXT PRIMARY KEY,
			name               TEXT NOT NULL,
			level              TEXT NOT NULL,
			coverage_kind      INT  NOT NULL,
			coverage_ids       TEXT[] NOT NULL DEFAULT '{}',
			rule_name          TEXT NOT NULL,
			rule_params        DOUBLE PRECISION[] NOT NULL DEFAULT '{}',
			submetric          TEXT NOT NULL DEFAULT '',
			tag_weights        JSONB,
			window_start       BIGINT NOT NULL,
			window_end         BIGINT NOT NULL,
			multiples          INT  NOT NULL,
			auto_compute       BOOLEAN NOT NULL,
			visible_to_student BOOLEAN NOT NULL,
			last_updated       BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS scores (
			metric_id   TEXT NOT NULL,
			learner_id  TEXT NOT NULL,
			item_id     TEXT NOT NULL DEFAULT '',
			value       DOUBLE PRECISION,
			tag         TEXT NOT NULL DEFAULT '',
			computed_at BIGINT NOT NULL,
			PRIMARY KEY (metric_id, learner_id, item_id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// wrap maps pgx errors to the store sentinels: no rows is a lookup
// miss, anything else is treated as transient.
func wrap(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

// Catalog implements store.ContentCatalog on the content_items table.
type Catalog struct {
	pool *pgxpool.Pool
}

// NewCatalog creates a Postgres-backed catalog.
func NewCatalog(pool *pgxpool.Pool) *Catalog {
	return &Catalog{pool: pool}
}

// ItemsAtLevel returns the ids of every item at the given level.
func (c *Catalog) ItemsAtLevel(ctx context.Context, level model.Level) ([]string, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT id FROM content_items WHERE level = $1`, level.String())
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrap(err)
		}
		ids = append(ids, id)
	}
	return ids, wrap(rows.Err())
}

// ItemLevel returns the level of the given item.
func (c *Catalog) ItemLevel(ctx context.Context, itemID string) (model.Level, error) {
	var name string
	err := c.pool.QueryRow(ctx,
		`SELECT level FROM content_items WHERE id = $1`, itemID).Scan(&name)
	if err != nil {
		return 0, wrap(err)
	}
	level, ok := model.ParseLevel(name)
	if !ok {
		return 0, fmt.Errorf("item %q has level %q: %w", itemID, name, store.ErrNotFound)
	}
	return level, nil
}

// Version derives a catalog revision from the row count and the
// greatest id, cheap to compute and changing on every edit that
// matters for coverage.
func (c *Catalog) Version(ctx context.Context) (string, error) {
	var count int64
	var maxID *string
	err := c.pool.QueryRow(ctx,
		`SELECT COUNT(*), MAX(id) FROM content_items`).Scan(&count, &maxID)
	if err != nil {
		return "", wrap(err)
	}
	top := ""
	if maxID != nil {
		top = *maxID
	}
	return fmt.Sprintf("%d:%s", count, top), nil
}

// Feed implements store.SubmissionFeed on the submissions table.
type Feed struct {
	pool *pgxpool.Pool
}

// NewFeed creates a Postgres-backed submission feed.
func NewFeed(pool *pgxpool.Pool) *Feed {
	return &Feed{pool: pool}
}

// Submissions returns all submissions for one (learner, item) pair in
// append order.
func (f *Feed) Submissions(ctx context.Context, learnerID, itemID string) ([]model.Submission, error) {
	rows, err := f.pool.Query(ctx,
		`SELECT learner_id, item_id, value, tag, ts
		   FROM submissions
		  WHERE learner_id = $1 AND item_id = $2
		  ORDER BY id`, learnerID, itemID)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var s model.Submission
		if err := rows.Scan(&s.LearnerID, &s.ItemID, &s.Value, &s.Tag, &s.Timestamp); err != nil {
			return nil, wrap(err)
		}
		subs = append(subs, s)
	}
	return subs, wrap(rows.Err())
}

// MetricStore implements store.MetricStore on the metric_definitions
// table.
type MetricStore struct {
	pool *pgxpool.Pool
}

// NewMetricStore creates a Postgres-backed definition store.
func NewMetricStore(pool *pgxpool.Pool) *MetricStore {
	return &MetricStore{pool: pool}
}

const definitionColumns = `id, name, level, coverage_kind, coverage_ids,
	rule_name, rule_params, submetric, tag_weights,
	window_start, window_end, multiples, auto_compute,
	visible_to_student, last_updated`

func scanDefinition(row pgx.Row) (*model.MetricDefinition, error) {
	var def model.MetricDefinition
	var levelName string
	var coverageKind, multiples int
	var weightsRaw []byte
	err := row.Scan(
		&def.ID, &def.Name, &levelName, &coverageKind, &def.Coverage.IDs,
		&def.Rule.Name, &def.Rule.Params, &def.Submetric, &weightsRaw,
		&def.TimeFilter.Start, &def.TimeFilter.End, &multiples, &def.AutoCompute,
		&def.VisibleToStudent, &def.LastUpdated,
	)
	if err != nil {
		return nil, wrap(err)
	}
	level, ok := model.ParseLevel(levelName)
	if !ok {
		return nil, fmt.Errorf("definition %q has level %q: %w", def.ID, levelName, model.ErrInvalidLevel)
	}
	def.Level = level
	def.Coverage.Kind = model.CoverageKind(coverageKind)
	def.Multiples = model.Multiples(multiples)
	if len(weightsRaw) > 0 {
		if err := json.Unmarshal(weightsRaw, &def.TagWeights); err != nil {
			return nil, fmt.Errorf("definition %q tag weights: %w", def.ID, err)
		}
	}
	return &def, nil
}

// Definition returns one definition by id.
func (s *MetricStore) Definition(ctx context.Context, id string) (*model.MetricDefinition, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+definitionColumns+` FROM metric_definitions WHERE id = $1`, id)
	return scanDefinition(row)
}

// Definitions returns every stored definition.
func (s *MetricStore) Definitions(ctx context.Context) ([]*model.MetricDefinition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+definitionColumns+` FROM metric_definitions ORDER BY id`)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	var defs []*model.MetricDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, wrap(rows.Err())
}

// TouchLastUpdated records the timestamp of the most recent successful
// aggregation.
func (s *MetricStore) TouchLastUpdated(ctx context.Context, id string, ts int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE metric_definitions SET last_updated = $2 WHERE id = $1`, id, ts)
	if err != nil {
		return wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("metric %q: %w", id, store.ErrNotFound)
	}
	return nil
}

// ScoreStore implements store.ScoreStore on the scores table. A NULL
// value column encodes an absent score.
type ScoreStore struct {
	pool *pgxpool.Pool
}

// NewScoreStore creates a Postgres-backed score store.
func NewScoreStore(pool *pgxpool.Pool) *ScoreStore {
	return &ScoreStore{pool: pool}
}

func scanScore(row pgx.Row) (model.Score, error) {
	var sc model.Score
	var value *float64
	if err := row.Scan(&sc.MetricID, &sc.LearnerID, &sc.ItemID, &value, &sc.Tag, &sc.ComputedAt); err != nil {
		return model.Score{}, wrap(err)
	}
	if value != nil {
		sc.Value = model.Present(*value)
	} else {
		sc.Value = model.Absent()
	}
	return sc, nil
}

// Get returns the score for (metric, learner, item).
func (s *ScoreStore) Get(ctx context.Context, metricID, learnerID, itemID string) (model.Score, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT metric_id, learner_id, item_id, value, tag, computed_at
		   FROM scores
		  WHERE metric_id = $1 AND learner_id = $2 AND item_id = $3`,
		metricID, learnerID, itemID)
	return scanScore(row)
}

// ItemScores returns the stored per-item scores for the given items.
func (s *ScoreStore) ItemScores(ctx context.Context, metricID, learnerID string, itemIDs []string) (map[string]model.Score, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT metric_id, learner_id, item_id, value, tag, computed_at
		   FROM scores
		  WHERE metric_id = $1 AND learner_id = $2 AND item_id = ANY($3)`,
		metricID, learnerID, itemIDs)
	if err != nil {
		return nil, wrap(err)
	}
	defer rows.Close()

	out := make(map[string]model.Score)
	for rows.Next() {
		sc, err := scanScore(rows)
		if err != nil {
			return nil, err
		}
		out[sc.ItemID] = sc
	}
	return out, wrap(rows.Err())
}

// UpsertBatch replaces the scores for each key in one transaction, so
// a recomputation lands atomically or not at all.
func (s *ScoreStore) UpsertBatch(ctx context.Context, scores []model.Score) error {
	if len(scores) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, sc := range scores {
		var value *float64
		if v, present := sc.Value.Score(); present {
			value = &v
		}
		batch.Queue(
			`INSERT INTO scores (metric_id, learner_id, item_id, value, tag, computed_at)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (metric_id, learner_id, item_id)
			 DO UPDATE SET value = EXCLUDED.value, tag = EXCLUDED.tag, computed_at = EXCLUDED.computed_at`,
			sc.MetricID, sc.LearnerID, sc.ItemID, value, sc.Tag, sc.ComputedAt,
		)
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for range scores {
			if _, err := br.Exec(); err != nil {
				return err
			}
		}
		return nil
	})
	return wrap(err)
}

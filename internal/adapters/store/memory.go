package store

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/learnward/metron/internal/domain/model"
)

// MemoryCatalog implements ContentCatalog in memory. It is the default
// backend for tests and single-process deployments.
type MemoryCatalog struct {
	mu      sync.RWMutex
	levels  map[string]model.Level // item id -> level
	version int64
}

// NewMemoryCatalog creates an empty in-memory catalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{levels: make(map[string]model.Level)}
}

// AddItem registers an item at a level. Re-adding an item moves it and
// bumps the catalog version.
func (c *MemoryCatalog) AddItem(itemID string, level model.Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.levels[itemID] = level
	c.version++
}

// ItemsAtLevel returns the ids of every item at the given level.
func (c *MemoryCatalog) ItemsAtLevel(_ context.Context, level model.Level) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var ids []string
	for id, l := range c.levels {
		if l == level {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ItemLevel returns the level of the given item.
func (c *MemoryCatalog) ItemLevel(_ context.Context, itemID string) (model.Level, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	level, ok := c.levels[itemID]
	if !ok {
		return 0, fmt.Errorf("item %q: %w", itemID, ErrNotFound)
	}
	return level, nil
}

// Version identifies the current catalog revision.
func (c *MemoryCatalog) Version(_ context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return strconv.FormatInt(c.version, 10), nil
}

// MemoryFeed implements SubmissionFeed in memory, preserving append
// order per (learner, item) pair.
type MemoryFeed struct {
	mu   sync.RWMutex
	subs map[feedKey][]model.Submission
}

type feedKey struct {
	learnerID string
	itemID    string
}

// NewMemoryFeed creates an empty in-memory feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[feedKey][]model.Submission)}
}

// Append records one submission at the end of its (learner, item)
// sequence.
func (f *MemoryFeed) Append(sub model.Submission) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := feedKey{learnerID: sub.LearnerID, itemID: sub.ItemID}
	f.subs[k] = append(f.subs[k], sub)
}

// Submissions returns all submissions for one (learner, item) pair in
// append order.
func (f *MemoryFeed) Submissions(_ context.Context, learnerID, itemID string) ([]model.Submission, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	seq := f.subs[feedKey{learnerID: learnerID, itemID: itemID}]
	out := make([]model.Submission, len(seq))
	copy(out, seq)
	return out, nil
}

// MemoryMetricStore implements MetricStore in memory.
type MemoryMetricStore struct {
	mu   sync.RWMutex
	defs map[string]*model.MetricDefinition
}

// NewMemoryMetricStore creates an empty in-memory definition store.
func NewMemoryMetricStore() *MemoryMetricStore {
	return &MemoryMetricStore{defs: make(map[string]*model.MetricDefinition)}
}

// Put stores or replaces a definition. This stands in for the external
// administrative edit surface.
func (s *MemoryMetricStore) Put(def *model.MetricDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *def
	s.defs[def.ID] = &cp
}

// Definition returns one definition by id.
func (s *MemoryMetricStore) Definition(_ context.Context, id string) (*model.MetricDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[id]
	if !ok {
		return nil, fmt.Errorf("metric %q: %w", id, ErrNotFound)
	}
	cp := *def
	return &cp, nil
}

// Definitions returns every stored definition.
func (s *MemoryMetricStore) Definitions(_ context.Context) ([]*model.MetricDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.MetricDefinition, 0, len(s.defs))
	for _, def := range s.defs {
		cp := *def
		out = append(out, &cp)
	}
	return out, nil
}

// TouchLastUpdated records the timestamp of the most recent successful
// aggregation.
func (s *MemoryMetricStore) TouchLastUpdated(_ context.Context, id string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[id]
	if !ok {
		return fmt.Errorf("metric %q: %w", id, ErrNotFound)
	}
	def.LastUpdated = ts
	return nil
}

// MemoryScoreStore implements ScoreStore in memory.
type MemoryScoreStore struct {
	mu     sync.RWMutex
	scores map[scoreKey]model.Score
}

type scoreKey struct {
	metricID  string
	learnerID string
	itemID    string
}

// NewMemoryScoreStore creates an empty in-memory score store.
func NewMemoryScoreStore() *MemoryScoreStore {
	return &MemoryScoreStore{scores: make(map[scoreKey]model.Score)}
}

// Get returns the score for (metric, learner, item).
func (s *MemoryScoreStore) Get(_ context.Context, metricID, learnerID, itemID string) (model.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scores[scoreKey{metricID: metricID, learnerID: learnerID, itemID: itemID}]
	if !ok {
		return model.Score{}, fmt.Errorf("score %s/%s/%s: %w", metricID, learnerID, itemID, ErrNotFound)
	}
	return sc, nil
}

// ItemScores returns the stored per-item scores for the given items.
func (s *MemoryScoreStore) ItemScores(_ context.Context, metricID, learnerID string, itemIDs []string) (map[string]model.Score, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Score, len(itemIDs))
	for _, itemID := range itemIDs {
		if sc, ok := s.scores[scoreKey{metricID: metricID, learnerID: learnerID, itemID: itemID}]; ok {
			out[itemID] = sc
		}
	}
	return out, nil
}

// UpsertBatch replaces the scores for each key in the batch.
func (s *MemoryScoreStore) UpsertBatch(_ context.Context, scores []model.Score) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sc := range scores {
		s.scores[scoreKey{metricID: sc.MetricID, learnerID: sc.LearnerID, itemID: sc.ItemID}] = sc
	}
	return nil
}

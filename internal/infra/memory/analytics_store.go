package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"placement-quiz-service/internal/domain"
)

// AnalyticsStore is an in-memory implementation of app.AnalyticsStore.
// Apply serializes per (student, company) key; different keys fold in parallel.
type AnalyticsStore struct {
	keys *keyedMutex

	mu     sync.RWMutex
	rows   map[domain.RollupKey]map[string]domain.PerformanceAnalytics // topic -> row
	folded map[string]struct{}
}

func NewAnalyticsStore() *AnalyticsStore {
	return &AnalyticsStore{
		keys:   newKeyedMutex(),
		rows:   make(map[domain.RollupKey]map[string]domain.PerformanceAnalytics),
		folded: make(map[string]struct{}),
	}
}

func (s *AnalyticsStore) Apply(ctx context.Context, attemptID string, key domain.RollupKey, fn func([]domain.PerformanceAnalytics) ([]domain.PerformanceAnalytics, error)) error {
	unlock := s.keys.Lock(key.LockName())
	defer unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	_, done := s.folded[attemptID]
	current := make([]domain.PerformanceAnalytics, 0, len(s.rows[key]))
	for _, row := range s.rows[key] {
		current = append(current, cloneRow(row))
	}
	s.mu.RUnlock()
	if done {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyFolded, attemptID)
	}

	updated, err := fn(current)
	if err != nil {
		return err
	}
	for _, row := range updated {
		if row.Key() != key {
			return domain.Invalid("rollup", fmt.Sprintf("row for %s does not belong to %s", row.Key(), key))
		}
		if err := row.Validate(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The fold ledger and the rows are committed together.
	if _, done := s.folded[attemptID]; done {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyFolded, attemptID)
	}
	topics, ok := s.rows[key]
	if !ok {
		topics = make(map[string]domain.PerformanceAnalytics)
		s.rows[key] = topics
	}
	for _, row := range updated {
		topics[row.Topic] = cloneRow(row)
	}
	s.folded[attemptID] = struct{}{}
	return nil
}

func (s *AnalyticsStore) List(_ context.Context, filter domain.RollupFilter) ([]domain.PerformanceAnalytics, error) {
	s.mu.RLock()
	out := make([]domain.PerformanceAnalytics, 0)
	for _, topics := range s.rows {
		for _, row := range topics {
			if filter.Match(row) {
				out = append(out, cloneRow(row))
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		if out[i].Company != out[j].Company {
			return out[i].Company < out[j].Company
		}
		return out[i].Topic < out[j].Topic
	})
	return out, nil
}

// Folded reports whether the attempt is in the fold ledger.
func (s *AnalyticsStore) Folded(attemptID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.folded[attemptID]
	return ok
}

func cloneRow(row domain.PerformanceAnalytics) domain.PerformanceAnalytics {
	row.Strengths = append([]string{}, row.Strengths...)
	row.Weaknesses = append([]string{}, row.Weaknesses...)
	row.Recommendations = append([]string{}, row.Recommendations...)
	return row
}

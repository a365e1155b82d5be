package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"placement-quiz-service/internal/domain"
)

// AttemptStore is an in-memory implementation of app.AttemptStore.
// Every attempt has its own lock, so writes to different attempts never contend.
type AttemptStore struct {
	mu       sync.RWMutex
	attempts map[string]*attemptRecord
}

type attemptRecord struct {
	mu      sync.Mutex
	attempt domain.Attempt
}

func NewAttemptStore() *AttemptStore {
	return &AttemptStore{attempts: make(map[string]*attemptRecord)}
}

func (s *AttemptStore) Create(_ context.Context, attempt domain.Attempt) error {
	if err := attempt.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.attempts[attempt.ID]; exists {
		return fmt.Errorf("attempt %s already exists: %w", attempt.ID, domain.ErrInvalidState)
	}
	s.attempts[attempt.ID] = &attemptRecord{attempt: attempt.Clone()}
	return nil
}

func (s *AttemptStore) Get(_ context.Context, attemptID string) (domain.Attempt, error) {
	rec, ok := s.record(attemptID)
	if !ok {
		return domain.Attempt{}, fmt.Errorf("%w: %s", domain.ErrAttemptNotFound, attemptID)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.attempt.Clone(), nil
}

// Update applies fn to a private copy and commits it only when fn and validation succeed.
func (s *AttemptStore) Update(ctx context.Context, attemptID string, fn func(*domain.Attempt) error) (domain.Attempt, error) {
	rec, ok := s.record(attemptID)
	if !ok {
		return domain.Attempt{}, fmt.Errorf("%w: %s", domain.ErrAttemptNotFound, attemptID)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return domain.Attempt{}, err
	}

	working := rec.attempt.Clone()
	if err := fn(&working); err != nil {
		return domain.Attempt{}, err
	}
	if err := working.Validate(); err != nil {
		return domain.Attempt{}, err
	}
	rec.attempt = working
	return working.Clone(), nil
}

func (s *AttemptStore) ListByQuiz(_ context.Context, quizID string) ([]domain.Attempt, error) {
	return s.collect(func(a domain.Attempt) bool { return a.QuizID == quizID }), nil
}

func (s *AttemptStore) ListByCompany(_ context.Context, company string) ([]domain.Attempt, error) {
	return s.collect(func(a domain.Attempt) bool { return a.Company == company }), nil
}

func (s *AttemptStore) ListByStudent(_ context.Context, studentID string, limit int) ([]domain.Attempt, error) {
	out := s.collect(func(a domain.Attempt) bool { return a.StudentID == studentID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *AttemptStore) ListInProgress(_ context.Context, startedBefore time.Time) ([]domain.Attempt, error) {
	return s.collect(func(a domain.Attempt) bool {
		return a.Status == domain.AttemptInProgress && a.StartedAt.Before(startedBefore)
	}), nil
}

func (s *AttemptStore) record(attemptID string) (*attemptRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.attempts[attemptID]
	return rec, ok
}

func (s *AttemptStore) collect(match func(domain.Attempt) bool) []domain.Attempt {
	s.mu.RLock()
	records := make([]*attemptRecord, 0, len(s.attempts))
	for _, rec := range s.attempts {
		records = append(records, rec)
	}
	s.mu.RUnlock()

	out := make([]domain.Attempt, 0)
	for _, rec := range records {
		rec.mu.Lock()
		if match(rec.attempt) {
			out = append(out, rec.attempt.Clone())
		}
		rec.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

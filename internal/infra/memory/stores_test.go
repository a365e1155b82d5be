package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placement-quiz-service/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestAttemptStoreConcurrentSubmitOneWinner(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	attempt := domain.NewAttempt("a1", "s1", sampleQuiz("quiz-1", "acme"), domain.DeviceInfo{}, t0)
	require.NoError(t, store.Create(ctx, attempt))

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Update(ctx, "a1", func(a *domain.Attempt) error {
				_, err := a.RecordResponse("q1", 1, 3, t0)
				return err
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	accepted, duplicates := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, domain.ErrDuplicateResponse):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, writers-1, duplicates)

	got, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.QuestionsAnswered)
	assert.Equal(t, 1, got.Score)
	assert.Len(t, got.Responses, 1)
}

func TestAttemptStoreUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	require.NoError(t, store.Create(ctx, domain.NewAttempt("a1", "s1", sampleQuiz("quiz-1", "acme"), domain.DeviceInfo{}, t0)))

	boom := errors.New("boom")
	_, err := store.Update(ctx, "a1", func(a *domain.Attempt) error {
		a.Score = 2
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Zero(t, got.Score)

	_, err = store.Update(ctx, "missing", func(*domain.Attempt) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAttemptStoreListings(t *testing.T) {
	ctx := context.Background()
	store := NewAttemptStore()
	quiz := sampleQuiz("quiz-1", "acme")
	for i, id := range []string{"a1", "a2", "a3"} {
		a := domain.NewAttempt(id, "s1", quiz, domain.DeviceInfo{}, t0.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.Create(ctx, a))
	}
	_, err := store.Update(ctx, "a1", func(a *domain.Attempt) error {
		return a.Close(domain.AttemptCompleted, domain.BehaviorData{}, t0.Add(time.Hour))
	})
	require.NoError(t, err)

	history, err := store.ListByStudent(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "a3", history[0].ID)
	assert.Equal(t, "a2", history[1].ID)

	stale, err := store.ListInProgress(ctx, t0.Add(90*time.Second))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "a2", stale[0].ID)

	byQuiz, _ := store.ListByQuiz(ctx, "quiz-1")
	assert.Len(t, byQuiz, 3)
	byCompany, _ := store.ListByCompany(ctx, "globex")
	assert.Empty(t, byCompany)
}

func TestAnalyticsStoreLedgerAndSerialization(t *testing.T) {
	ctx := context.Background()
	store := NewAnalyticsStore()
	key := domain.RollupKey{StudentID: "s1", Company: "acme"}

	bump := func(current []domain.PerformanceAnalytics) ([]domain.PerformanceAnalytics, error) {
		row := domain.PerformanceAnalytics{StudentID: "s1", Company: "acme"}
		if len(current) > 0 {
			row = current[0]
		}
		row.TotalAttempts++
		row.TotalQuestions++
		row.CorrectAnswers++
		return []domain.PerformanceAnalytics{row}, nil
	}

	const folds = 20
	var wg sync.WaitGroup
	for i := 0; i < folds; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "attempt-" + string(rune('a'+i))
			assert.NoError(t, store.Apply(ctx, id, key, bump))
		}(i)
	}
	wg.Wait()

	rows, err := store.List(ctx, domain.RollupFilter{StudentID: "s1"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, folds, rows[0].TotalAttempts)

	err = store.Apply(ctx, "attempt-a", key, bump)
	assert.ErrorIs(t, err, domain.ErrAlreadyFolded)
	rows, _ = store.List(ctx, domain.RollupFilter{StudentID: "s1"})
	assert.Equal(t, folds, rows[0].TotalAttempts)
	assert.Zero(t, store.keys.size())
}

func TestAnalyticsStoreRejectsForeignRows(t *testing.T) {
	store := NewAnalyticsStore()
	err := store.Apply(context.Background(), "a1", domain.RollupKey{StudentID: "s1", Company: "acme"},
		func([]domain.PerformanceAnalytics) ([]domain.PerformanceAnalytics, error) {
			return []domain.PerformanceAnalytics{{StudentID: "s2", Company: "acme", TotalAttempts: 1}}, nil
		})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.False(t, store.Folded("a1"))
}

func TestStudentDirectory(t *testing.T) {
	dir := NewStudentDirectory(domain.Student{ID: "s1", Name: "Asha"})
	got, err := dir.GetStudent(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", got.Name)

	_, err = dir.GetStudent(context.Background(), "s2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnalyticsStoreKeepsSeparatorKeysApart(t *testing.T) {
	ctx := context.Background()
	store := NewAnalyticsStore()
	first := domain.RollupKey{StudentID: "a|b", Company: "c"}
	second := domain.RollupKey{StudentID: "a", Company: "b|c"}
	require.NotEqual(t, first.LockName(), second.LockName())

	seed := func(key domain.RollupKey) func([]domain.PerformanceAnalytics) ([]domain.PerformanceAnalytics, error) {
		return func(current []domain.PerformanceAnalytics) ([]domain.PerformanceAnalytics, error) {
			if len(current) != 0 {
				return nil, fmt.Errorf("key %s handed %d foreign rows", key, len(current))
			}
			return []domain.PerformanceAnalytics{{StudentID: key.StudentID, Company: key.Company, TotalAttempts: 1}}, nil
		}
	}
	require.NoError(t, store.Apply(ctx, "a1", first, seed(first)))
	require.NoError(t, store.Apply(ctx, "a2", second, seed(second)))

	rows, err := store.List(ctx, domain.RollupFilter{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

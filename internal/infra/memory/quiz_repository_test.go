package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"placement-quiz-service/internal/app"
	"placement-quiz-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewQuizCatalog(sampleQuiz("quiz-1", "acme"))}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
}

func TestQuizRepositoryExpires(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewQuizCatalog(sampleQuiz("quiz-1", "acme"))}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetQuiz(context.Background(), "quiz-1"); err != nil {
		t.Fatalf("get quiz after expiry: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls)
	}
}

func TestQuizRepositoryMissing(t *testing.T) {
	repo := NewQuizRepository(NewQuizCatalog(), time.Minute)
	_, err := repo.GetQuiz(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestQuizCatalogCreateAndList(t *testing.T) {
	ctx := context.Background()
	catalog := NewQuizCatalog()

	if err := catalog.CreateQuiz(ctx, sampleQuiz("quiz-1", "acme")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := catalog.CreateQuiz(ctx, sampleQuiz("quiz-1", "globex")); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("expected id collision to be rejected, got %v", err)
	}
	inactive := sampleQuiz("quiz-2", "acme")
	inactive.Active = false
	if err := catalog.CreateQuiz(ctx, inactive); err != nil {
		t.Fatalf("create inactive: %v", err)
	}
	if err := catalog.CreateQuiz(ctx, sampleQuiz("quiz-3", "globex")); err != nil {
		t.Fatalf("create quiz-3: %v", err)
	}

	got, err := catalog.ListQuizzes(ctx, app.QuizFilter{Company: "acme"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "quiz-1" {
		t.Fatalf("expected only the active acme quiz, got %+v", got)
	}

	all, _ := catalog.ListQuizzes(ctx, app.QuizFilter{})
	if len(all) != 2 {
		t.Fatalf("expected two active quizzes, got %d", len(all))
	}
}

type countingLoader struct {
	QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz(id, company string) domain.Quiz {
	return domain.Quiz{
		ID:      id,
		Company: company,
		Type:    domain.QuizTypeAptitude,
		Title:   "Numbers",
		Active:  true,
		Questions: []domain.Question{
			{ID: "q1", Prompt: "2 + 2?", Options: []string{"3", "4"}, CorrectAnswer: 1, Topic: "Mathematics", Points: 1},
			{ID: "q2", Prompt: "3 * 3?", Options: []string{"9", "6"}, CorrectAnswer: 0, Topic: "Mathematics", Points: 1},
		},
	}
}

package app

import (
	"context"
	"time"

	"placement-quiz-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizFilter narrows ListQuizzes; empty fields match anything.
type QuizFilter struct {
	Company string
	Type    domain.QuizType
}

// QuizCatalog stores immutable quiz definitions.
type QuizCatalog interface {
	// CreateQuiz stores a new quiz. An existing ID is never overwritten.
	CreateQuiz(ctx context.Context, quiz domain.Quiz) error
	ListQuizzes(ctx context.Context, filter QuizFilter) ([]domain.Quiz, error)
}

// AttemptStore owns attempt and response records.
type AttemptStore interface {
	Create(ctx context.Context, attempt domain.Attempt) error
	// Get returns the attempt with its responses, or domain.ErrAttemptNotFound.
	Get(ctx context.Context, attemptID string) (domain.Attempt, error)
	// Update runs fn against the attempt inside an exclusive per-attempt section and
	// persists the result only if fn succeeds.
	Update(ctx context.Context, attemptID string, fn func(*domain.Attempt) error) (domain.Attempt, error)
	ListByQuiz(ctx context.Context, quizID string) ([]domain.Attempt, error)
	ListByCompany(ctx context.Context, company string) ([]domain.Attempt, error)
	// ListByStudent returns newest first; limit <= 0 means no limit.
	ListByStudent(ctx context.Context, studentID string, limit int) ([]domain.Attempt, error)
	// ListInProgress returns in-progress attempts started before the cutoff.
	ListInProgress(ctx context.Context, startedBefore time.Time) ([]domain.Attempt, error)
}

// AnalyticsStore owns rollup rows and the ledger of folded attempts.
type AnalyticsStore interface {
	// Apply serializes against other Apply calls for the same key, hands fn every row of the
	// key (all topics) and upserts the rows fn returns. attemptID is recorded in the fold
	// ledger in the same unit; a second Apply for it returns domain.ErrAlreadyFolded.
	Apply(ctx context.Context, attemptID string, key domain.RollupKey, fn func(current []domain.PerformanceAnalytics) ([]domain.PerformanceAnalytics, error)) error
	List(ctx context.Context, filter domain.RollupFilter) ([]domain.PerformanceAnalytics, error)
}

// StudentDirectory resolves student identities for display joins.
type StudentDirectory interface {
	GetStudent(ctx context.Context, studentID string) (domain.Student, error)
}

// ProgressPublisher fans out live attempt progress.
type ProgressPublisher interface {
	Publish(ctx context.Context, progress domain.Progress) error
}

// ProgressSubscriber streams progress for one attempt. The caller must invoke the
// returned cancel function to avoid leaks.
type ProgressSubscriber interface {
	Subscribe(ctx context.Context, attemptID string) (<-chan domain.Progress, func(), error)
}

// EventPublisher emits domain events about closed attempts.
type EventPublisher interface {
	AttemptClosed(ctx context.Context, summary domain.AttemptSummary) error
	FoldFailed(ctx context.Context, attemptID string, cause error) error
}

// QuestionProvider is the opaque question generator (AI or question bank).
type QuestionProvider interface {
	Generate(ctx context.Context, company string, quizType domain.QuizType, count int) ([]domain.Question, error)
}

type noopEvents struct{}

func (noopEvents) AttemptClosed(context.Context, domain.AttemptSummary) error { return nil }
func (noopEvents) FoldFailed(context.Context, string, error) error           { return nil }

type noopProgress struct{}

func (noopProgress) Publish(context.Context, domain.Progress) error { return nil }

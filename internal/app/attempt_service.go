package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"placement-quiz-service/internal/domain"
	"placement-quiz-service/internal/policy"
	"placement-quiz-service/internal/validator"
)

// AttemptDeps wires an AttemptService. Progress, Events, Validator and Logger are optional.
type AttemptDeps struct {
	Attempts   AttemptStore
	Quizzes    QuizRepository
	Aggregator *Aggregator
	Progress   ProgressPublisher
	Events     EventPublisher
	Validator  *validator.Validator
	Logger     *slog.Logger
}

// AttemptService is the lifecycle controller: open, answer, close, fold.
type AttemptService struct {
	attempts   AttemptStore
	quizzes    QuizRepository
	aggregator *Aggregator
	progress   ProgressPublisher
	events     EventPublisher
	validate   *validator.Validator
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

func NewAttemptService(deps AttemptDeps) *AttemptService {
	s := &AttemptService{
		attempts:   deps.Attempts,
		quizzes:    deps.Quizzes,
		aggregator: deps.Aggregator,
		progress:   deps.Progress,
		events:     deps.Events,
		validate:   deps.Validator,
		logger:     deps.Logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	if s.progress == nil {
		s.progress = noopProgress{}
	}
	if s.events == nil {
		s.events = noopEvents{}
	}
	if s.validate == nil {
		s.validate = validator.New()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// WithClock is test-only for deterministic timestamps.
func (s *AttemptService) WithClock(now func() time.Time) *AttemptService {
	s.now = now
	return s
}

// Open creates an in-progress attempt against a snapshot of an active quiz.
// Concurrent opens for the same student and quiz each get their own attempt.
func (s *AttemptService) Open(ctx context.Context, req OpenAttemptRequest) (domain.Attempt, error) {
	if err := s.validate.Validate(req); err != nil {
		return domain.Attempt{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if !quiz.Active {
		return domain.Attempt{}, fmt.Errorf("%w: %s", domain.ErrQuizInactive, quiz.ID)
	}

	attempt := domain.NewAttempt(s.newID(), req.StudentID, quiz, req.Device, s.now())
	if err := s.attempts.Create(ctx, attempt); err != nil {
		return domain.Attempt{}, err
	}
	s.logger.InfoContext(ctx, "attempt opened",
		slog.String("attempt_id", attempt.ID),
		slog.String("quiz_id", attempt.QuizID),
		slog.String("student_id", attempt.StudentID))
	s.publish(ctx, progressOf(attempt, domain.Response{}, attempt.StartedAt))
	return attempt, nil
}

// SubmitResponse records one answer. The first submission for a question wins; later ones
// fail with domain.ErrDuplicateResponse without touching the running totals.
func (s *AttemptService) SubmitResponse(ctx context.Context, req SubmitResponseRequest) (domain.Progress, error) {
	if err := s.validate.Validate(req); err != nil {
		return domain.Progress{}, err
	}
	now := s.now()
	var response domain.Response
	attempt, err := s.attempts.Update(ctx, req.AttemptID, func(a *domain.Attempt) error {
		var err error
		response, err = a.RecordResponse(req.QuestionID, *req.SelectedAnswer, req.ResponseTime, now)
		return err
	})
	if err != nil {
		return domain.Progress{}, err
	}

	progress := progressOf(attempt, response, now)
	s.publish(ctx, progress)
	return progress, nil
}

// Close moves the attempt to a terminal status and, for completed attempts, folds it into
// analytics. A fold failure does not undo the close: the summary is returned together with
// a *domain.FoldError.
func (s *AttemptService) Close(ctx context.Context, req CloseAttemptRequest) (domain.AttemptSummary, error) {
	if err := s.validate.Validate(req); err != nil {
		return domain.AttemptSummary{}, err
	}
	now := s.now()
	attempt, err := s.attempts.Update(ctx, req.AttemptID, func(a *domain.Attempt) error {
		if err := a.Close(req.Status, req.Behavior, now); err != nil {
			return err
		}
		integrity := assessIntegrity(*a)
		a.Integrity = &integrity
		return nil
	})
	if err != nil {
		return domain.AttemptSummary{}, err
	}

	log := s.logger.With(
		slog.String("attempt_id", attempt.ID),
		slog.String("quiz_id", attempt.QuizID),
		slog.String("student_id", attempt.StudentID))
	log.InfoContext(ctx, "attempt closed",
		slog.String("status", string(attempt.Status)),
		slog.Int("score", attempt.Score),
		slog.Int("max_score", attempt.MaxScore))
	if attempt.Integrity != nil && attempt.Integrity.Suspicious {
		log.WarnContext(ctx, "attempt flagged by integrity check",
			slog.Float64("suspicious_score", attempt.Integrity.SuspiciousScore),
			slog.Any("reasons", attempt.Integrity.Reasons))
	}

	s.publish(ctx, progressOf(attempt, domain.Response{}, now))
	if err := s.events.AttemptClosed(ctx, attempt.Summary()); err != nil {
		log.WarnContext(ctx, "publish attempt closed event", slog.Any("error", err))
	}

	if attempt.Status != domain.AttemptCompleted {
		return attempt.Summary(), nil
	}
	return s.fold(ctx, attempt, log, true)
}

// RetryFold re-runs the guarded fold for a completed attempt. It is a no-op when the
// attempt has already been applied. A failed retry is returned to the caller and does not
// emit another fold-failed event.
func (s *AttemptService) RetryFold(ctx context.Context, attemptID string) (domain.AttemptSummary, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.AttemptSummary{}, err
	}
	if attempt.Status != domain.AttemptCompleted {
		return domain.AttemptSummary{}, fmt.Errorf("retry fold of %s attempt: %w", attempt.Status, domain.ErrInvalidState)
	}
	if attempt.AnalyticsApplied {
		return attempt.Summary(), nil
	}
	log := s.logger.With(slog.String("attempt_id", attempt.ID), slog.String("student_id", attempt.StudentID))
	return s.fold(ctx, attempt, log, false)
}

func (s *AttemptService) fold(ctx context.Context, attempt domain.Attempt, log *slog.Logger, emitFailure bool) (domain.AttemptSummary, error) {
	err := s.aggregator.Fold(ctx, attempt)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadyFolded):
		log.InfoContext(ctx, "attempt already folded")
	default:
		log.ErrorContext(ctx, "fold attempt into analytics", slog.Any("error", err))
		if emitFailure {
			if perr := s.events.FoldFailed(ctx, attempt.ID, err); perr != nil {
				log.WarnContext(ctx, "publish fold failed event", slog.Any("error", perr))
			}
		}
		return attempt.Summary(), &domain.FoldError{AttemptID: attempt.ID, Err: err}
	}

	updated, err := s.attempts.Update(ctx, attempt.ID, func(a *domain.Attempt) error {
		a.AnalyticsApplied = true
		return nil
	})
	if err != nil {
		// the fold ledger already guards against a second application
		log.WarnContext(ctx, "mark attempt analytics applied", slog.Any("error", err))
		summary := attempt.Summary()
		summary.AnalyticsApplied = true
		return summary, nil
	}
	return updated.Summary(), nil
}

// GetAttemptDetails returns the attempt with its responses.
func (s *AttemptService) GetAttemptDetails(ctx context.Context, attemptID string) (domain.AttemptDetails, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.AttemptDetails{}, err
	}
	return domain.AttemptDetails{Attempt: attempt, Responses: attempt.Responses}, nil
}

// History returns a student's attempts, newest first.
func (s *AttemptService) History(ctx context.Context, studentID string, limit int) ([]domain.AttemptSummary, error) {
	if studentID == "" {
		return nil, domain.Invalid("studentId", "is required")
	}
	attempts, err := s.attempts.ListByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AttemptSummary, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, a.Summary())
	}
	return out, nil
}

// SweepStale closes in-progress attempts whose quiz time limit plus grace has elapsed as
// timed_out. Quizzes without a time limit are never swept. It returns the number closed.
func (s *AttemptService) SweepStale(ctx context.Context, grace time.Duration) (int, error) {
	now := s.now()
	stale, err := s.attempts.ListInProgress(ctx, now.Add(-grace))
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, attempt := range stale {
		if attempt.Quiz.TimeLimit <= 0 {
			continue
		}
		deadline := attempt.StartedAt.Add(time.Duration(attempt.Quiz.TimeLimit)*time.Second + grace)
		if now.Before(deadline) {
			continue
		}
		_, err := s.Close(ctx, CloseAttemptRequest{AttemptID: attempt.ID, Status: domain.AttemptTimedOut})
		switch {
		case err == nil:
			closed++
		case errors.Is(err, domain.ErrInvalidState):
			// closed by the student in the meantime
		default:
			return closed, fmt.Errorf("sweep attempt %s: %w", attempt.ID, err)
		}
	}
	if closed > 0 {
		s.logger.InfoContext(ctx, "swept stale attempts", slog.Int("closed", closed))
	}
	return closed, nil
}

func (s *AttemptService) publish(ctx context.Context, progress domain.Progress) {
	if err := s.progress.Publish(ctx, progress); err != nil {
		s.logger.WarnContext(ctx, "publish progress",
			slog.String("attempt_id", progress.AttemptID), slog.Any("error", err))
	}
}

func progressOf(a domain.Attempt, r domain.Response, now time.Time) domain.Progress {
	return domain.Progress{
		AttemptID:         a.ID,
		QuestionID:        r.QuestionID,
		Correct:           r.IsCorrect,
		Awarded:           r.PointsEarned,
		Score:             a.Score,
		MaxScore:          a.MaxScore,
		Percentage:        a.Percentage,
		QuestionsAnswered: a.QuestionsAnswered,
		TotalQuestions:    a.TotalQuestions(),
		Status:            a.Status,
		UpdatedAt:         now,
	}
}

func assessIntegrity(a domain.Attempt) domain.Integrity {
	pattern := make([]int, 0, len(a.Responses))
	total := 0.0
	for _, r := range a.Responses {
		pattern = append(pattern, r.SelectedAnswer)
		total += r.ResponseTime
	}
	avg := 0.0
	if len(pattern) > 0 {
		avg = total / float64(len(pattern))
	}
	got := policy.AssessIntegrity(policy.IntegritySignals{
		TabSwitches:       a.Behavior.TabSwitches,
		AverageAnswerTime: avg,
		AnswerPattern:     pattern,
	})
	return domain.Integrity{
		SuspiciousScore: got.Score,
		Suspicious:      got.Suspicious,
		Reasons:         nonNil(got.Reasons),
	}
}

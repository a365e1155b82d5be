package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"placement-quiz-service/internal/domain"
)

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts"`

	ID                string              `bun:"id,pk"`
	StudentID         string              `bun:"student_id"`
	QuizID            string              `bun:"quiz_id"`
	Company           string              `bun:"company"`
	QuizType          string              `bun:"quiz_type"`
	Quiz              domain.Quiz         `bun:"quiz,type:jsonb"`
	Status            string              `bun:"status"`
	Score             int                 `bun:"score"`
	MaxScore          int                 `bun:"max_score"`
	Percentage        float64             `bun:"percentage"`
	QuestionsAnswered int                 `bun:"questions_answered"`
	CorrectAnswers    int                 `bun:"correct_answers"`
	IncorrectAnswers  int                 `bun:"incorrect_answers"`
	SkippedQuestions  int                 `bun:"skipped_questions"`
	StartedAt         time.Time           `bun:"started_at"`
	CompletedAt       *time.Time          `bun:"completed_at"`
	TimeTaken         float64             `bun:"time_taken"`
	Behavior          domain.BehaviorData `bun:"behavior,type:jsonb"`
	Device            domain.DeviceInfo   `bun:"device,type:jsonb"`
	Integrity         *domain.Integrity   `bun:"integrity,type:jsonb"`
	AnalyticsApplied  bool                `bun:"analytics_applied"`
}

type responseRow struct {
	bun.BaseModel `bun:"table:attempt_responses"`

	AttemptID      string    `bun:"attempt_id,pk"`
	QuestionID     string    `bun:"question_id,pk"`
	Seq            int       `bun:"seq"`
	SelectedAnswer int       `bun:"selected_answer"`
	CorrectAnswer  int       `bun:"correct_answer"`
	IsCorrect      bool      `bun:"is_correct"`
	ResponseTime   float64   `bun:"response_time"`
	PointsEarned   int       `bun:"points_earned"`
	Topic          string    `bun:"topic"`
	Difficulty     float64   `bun:"difficulty"`
	AnsweredAt     time.Time `bun:"answered_at"`
}

// AttemptStore persists attempts and responses with bun. Update locks the attempt row
// (SELECT ... FOR UPDATE) for the whole read-modify-write.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) Create(ctx context.Context, attempt domain.Attempt) error {
	if err := attempt.Validate(); err != nil {
		return err
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(toAttemptRow(attempt)).Exec(ctx); err != nil {
			if isIntegrityViolation(err) {
				return fmt.Errorf("attempt %s already exists: %w", attempt.ID, domain.ErrInvalidState)
			}
			return fmt.Errorf("insert attempt: %w", err)
		}
		return insertResponses(ctx, tx, attempt.Responses, 0)
	})
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return loadAttempt(ctx, s.db, attemptID, false)
}

func (s *AttemptStore) Update(ctx context.Context, attemptID string, fn func(*domain.Attempt) error) (domain.Attempt, error) {
	var out domain.Attempt
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		attempt, err := loadAttempt(ctx, tx, attemptID, true)
		if err != nil {
			return err
		}
		before := len(attempt.Responses)
		if err := fn(&attempt); err != nil {
			return err
		}
		if err := attempt.Validate(); err != nil {
			return err
		}
		if len(attempt.Responses) < before {
			return domain.Invalid("responses", "cannot be removed")
		}
		if err := insertResponses(ctx, tx, attempt.Responses[before:], before); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().Model(toAttemptRow(attempt)).WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update attempt: %w", err)
		}
		out = attempt
		return nil
	})
	if err != nil {
		return domain.Attempt{}, err
	}
	return out, nil
}

func (s *AttemptStore) ListByQuiz(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	return s.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("quiz_id = ?", quizID).Order("started_at ASC")
	})
}

func (s *AttemptStore) ListByCompany(ctx context.Context, company string) ([]domain.Attempt, error) {
	return s.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("company = ?", company).Order("started_at ASC")
	})
}

func (s *AttemptStore) ListByStudent(ctx context.Context, studentID string, limit int) ([]domain.Attempt, error) {
	return s.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		q = q.Where("student_id = ?", studentID).Order("started_at DESC")
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
}

func (s *AttemptStore) ListInProgress(ctx context.Context, startedBefore time.Time) ([]domain.Attempt, error) {
	return s.list(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("status = ?", string(domain.AttemptInProgress)).
			Where("started_at < ?", startedBefore).
			Order("started_at ASC")
	})
}

func (s *AttemptStore) list(ctx context.Context, apply func(*bun.SelectQuery) *bun.SelectQuery) ([]domain.Attempt, error) {
	var rows []attemptRow
	if err := apply(s.db.NewSelect().Model(&rows)).Scan(ctx); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	if len(rows) == 0 {
		return []domain.Attempt{}, nil
	}

	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	var responses []responseRow
	err := s.db.NewSelect().Model(&responses).
		Where("attempt_id IN (?)", bun.In(ids)).
		Order("attempt_id", "seq").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	byAttempt := make(map[string][]responseRow, len(rows))
	for _, r := range responses {
		byAttempt[r.AttemptID] = append(byAttempt[r.AttemptID], r)
	}

	out := make([]domain.Attempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain(byAttempt[row.ID]))
	}
	return out, nil
}

func loadAttempt(ctx context.Context, db bun.IDB, attemptID string, forUpdate bool) (domain.Attempt, error) {
	row := new(attemptRow)
	q := db.NewSelect().Model(row).Where("id = ?", attemptID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Attempt{}, fmt.Errorf("%w: %s", domain.ErrAttemptNotFound, attemptID)
		}
		return domain.Attempt{}, fmt.Errorf("load attempt: %w", err)
	}
	var responses []responseRow
	if err := db.NewSelect().Model(&responses).Where("attempt_id = ?", attemptID).Order("seq").Scan(ctx); err != nil {
		return domain.Attempt{}, fmt.Errorf("load responses: %w", err)
	}
	return row.toDomain(responses), nil
}

func insertResponses(ctx context.Context, tx bun.Tx, responses []domain.Response, offset int) error {
	if len(responses) == 0 {
		return nil
	}
	rows := make([]responseRow, 0, len(responses))
	for i, r := range responses {
		rows = append(rows, responseRow{
			AttemptID:      r.AttemptID,
			QuestionID:     r.QuestionID,
			Seq:            offset + i,
			SelectedAnswer: r.SelectedAnswer,
			CorrectAnswer:  r.CorrectAnswer,
			IsCorrect:      r.IsCorrect,
			ResponseTime:   r.ResponseTime,
			PointsEarned:   r.PointsEarned,
			Topic:          r.Topic,
			Difficulty:     r.Difficulty,
			AnsweredAt:     r.AnsweredAt,
		})
	}
	if _, err := tx.NewInsert().Model(&rows).Exec(ctx); err != nil {
		if isIntegrityViolation(err) {
			return fmt.Errorf("%w: %v", domain.ErrDuplicateResponse, err)
		}
		return fmt.Errorf("insert responses: %w", err)
	}
	return nil
}

func toAttemptRow(a domain.Attempt) *attemptRow {
	return &attemptRow{
		ID:                a.ID,
		StudentID:         a.StudentID,
		QuizID:            a.QuizID,
		Company:           a.Company,
		QuizType:          string(a.QuizType),
		Quiz:              a.Quiz,
		Status:            string(a.Status),
		Score:             a.Score,
		MaxScore:          a.MaxScore,
		Percentage:        a.Percentage,
		QuestionsAnswered: a.QuestionsAnswered,
		CorrectAnswers:    a.CorrectAnswers,
		IncorrectAnswers:  a.IncorrectAnswers,
		SkippedQuestions:  a.SkippedQuestions,
		StartedAt:         a.StartedAt,
		CompletedAt:       a.CompletedAt,
		TimeTaken:         a.TimeTaken,
		Behavior:          a.Behavior,
		Device:            a.Device,
		Integrity:         a.Integrity,
		AnalyticsApplied:  a.AnalyticsApplied,
	}
}

func (r attemptRow) toDomain(responses []responseRow) domain.Attempt {
	a := domain.Attempt{
		ID:                r.ID,
		StudentID:         r.StudentID,
		QuizID:            r.QuizID,
		Company:           r.Company,
		QuizType:          domain.QuizType(r.QuizType),
		Quiz:              r.Quiz,
		Status:            domain.AttemptStatus(r.Status),
		Score:             r.Score,
		MaxScore:          r.MaxScore,
		Percentage:        r.Percentage,
		QuestionsAnswered: r.QuestionsAnswered,
		CorrectAnswers:    r.CorrectAnswers,
		IncorrectAnswers:  r.IncorrectAnswers,
		SkippedQuestions:  r.SkippedQuestions,
		StartedAt:         r.StartedAt,
		CompletedAt:       r.CompletedAt,
		TimeTaken:         r.TimeTaken,
		Behavior:          r.Behavior,
		Device:            r.Device,
		Integrity:         r.Integrity,
		AnalyticsApplied:  r.AnalyticsApplied,
		Responses:         make([]domain.Response, 0, len(responses)),
	}
	for _, rr := range responses {
		a.Responses = append(a.Responses, domain.Response{
			AttemptID:      rr.AttemptID,
			QuestionID:     rr.QuestionID,
			SelectedAnswer: rr.SelectedAnswer,
			CorrectAnswer:  rr.CorrectAnswer,
			IsCorrect:      rr.IsCorrect,
			ResponseTime:   rr.ResponseTime,
			PointsEarned:   rr.PointsEarned,
			Topic:          rr.Topic,
			Difficulty:     rr.Difficulty,
			AnsweredAt:     rr.AnsweredAt,
		})
	}
	return a
}

func isIntegrityViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.IntegrityViolation()
}

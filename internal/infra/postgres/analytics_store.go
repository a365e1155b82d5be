package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"placement-quiz-service/internal/domain"
)

type rollupRow struct {
	bun.BaseModel `bun:"table:performance_analytics"`

	StudentID           string    `bun:"student_id,pk"`
	Company             string    `bun:"company,pk"`
	Topic               string    `bun:"topic,pk"`
	TotalAttempts       int       `bun:"total_attempts"`
	TotalQuestions      int       `bun:"total_questions"`
	CorrectAnswers      int       `bun:"correct_answers"`
	IncorrectAnswers    int       `bun:"incorrect_answers"`
	SkippedQuestions    int       `bun:"skipped_questions"`
	TotalScore          int       `bun:"total_score"`
	MaxPossibleScore    int       `bun:"max_possible_score"`
	AverageScore        float64   `bun:"average_score"`
	TotalResponseTime   float64   `bun:"total_response_time"`
	AverageResponseTime float64   `bun:"average_response_time"`
	ImprovementTrend    string    `bun:"improvement_trend"`
	Strengths           []string  `bun:"strengths,type:jsonb"`
	Weaknesses          []string  `bun:"weaknesses,type:jsonb"`
	Recommendations     []string  `bun:"recommendations,type:jsonb"`
	CalculatedAt        time.Time `bun:"calculated_at"`
}

type foldRow struct {
	bun.BaseModel `bun:"table:analytics_folds"`

	AttemptID string    `bun:"attempt_id,pk"`
	StudentID string    `bun:"student_id"`
	Company   string    `bun:"company"`
	FoldedAt  time.Time `bun:"folded_at"`
}

// AnalyticsStore keeps rollups in performance_analytics. Apply takes a transaction-scoped
// advisory lock on the rollup key, so folds for one (student, company) run one at a time
// across every instance while other keys proceed in parallel.
type AnalyticsStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewAnalyticsStore(db *bun.DB) *AnalyticsStore {
	return &AnalyticsStore{db: db, now: time.Now}
}

func (s *AnalyticsStore) Apply(ctx context.Context, attemptID string, key domain.RollupKey, fn func([]domain.PerformanceAnalytics) ([]domain.PerformanceAnalytics, error)) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", key.LockName()); err != nil {
			return fmt.Errorf("lock rollup %s: %w", key, err)
		}

		res, err := tx.NewInsert().
			Model(&foldRow{AttemptID: attemptID, StudentID: key.StudentID, Company: key.Company, FoldedAt: s.now().UTC()}).
			On("CONFLICT (attempt_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("record fold: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyFolded, attemptID)
		}

		var rows []rollupRow
		err = tx.NewSelect().Model(&rows).
			Where("student_id = ?", key.StudentID).
			Where("company = ?", key.Company).
			Scan(ctx)
		if err != nil {
			return fmt.Errorf("load rollups: %w", err)
		}
		current := make([]domain.PerformanceAnalytics, 0, len(rows))
		for _, row := range rows {
			current = append(current, row.toDomain())
		}

		updated, err := fn(current)
		if err != nil {
			return err
		}
		if len(updated) == 0 {
			return nil
		}
		out := make([]rollupRow, 0, len(updated))
		for _, row := range updated {
			if row.Key() != key {
				return domain.Invalid("rollup", fmt.Sprintf("row for %s does not belong to %s", row.Key(), key))
			}
			if err := row.Validate(); err != nil {
				return err
			}
			out = append(out, toRollupRow(row))
		}
		_, err = tx.NewInsert().Model(&out).
			On("CONFLICT (student_id, company, topic) DO UPDATE").
			Set("total_attempts = EXCLUDED.total_attempts").
			Set("total_questions = EXCLUDED.total_questions").
			Set("correct_answers = EXCLUDED.correct_answers").
			Set("incorrect_answers = EXCLUDED.incorrect_answers").
			Set("skipped_questions = EXCLUDED.skipped_questions").
			Set("total_score = EXCLUDED.total_score").
			Set("max_possible_score = EXCLUDED.max_possible_score").
			Set("average_score = EXCLUDED.average_score").
			Set("total_response_time = EXCLUDED.total_response_time").
			Set("average_response_time = EXCLUDED.average_response_time").
			Set("improvement_trend = EXCLUDED.improvement_trend").
			Set("strengths = EXCLUDED.strengths").
			Set("weaknesses = EXCLUDED.weaknesses").
			Set("recommendations = EXCLUDED.recommendations").
			Set("calculated_at = EXCLUDED.calculated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert rollups: %w", err)
		}
		return nil
	})
}

func (s *AnalyticsStore) List(ctx context.Context, filter domain.RollupFilter) ([]domain.PerformanceAnalytics, error) {
	var rows []rollupRow
	q := s.db.NewSelect().Model(&rows)
	if filter.StudentID != "" {
		q = q.Where("student_id = ?", filter.StudentID)
	}
	if filter.Company != "" {
		q = q.Where("company = ?", filter.Company)
	}
	if !filter.AllTopics {
		q = q.Where("topic = ?", filter.Topic)
	}
	if err := q.Order("student_id", "company", "topic").Scan(ctx); err != nil {
		return nil, fmt.Errorf("list rollups: %w", err)
	}
	out := make([]domain.PerformanceAnalytics, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func toRollupRow(p domain.PerformanceAnalytics) rollupRow {
	return rollupRow{
		StudentID:           p.StudentID,
		Company:             p.Company,
		Topic:               p.Topic,
		TotalAttempts:       p.TotalAttempts,
		TotalQuestions:      p.TotalQuestions,
		CorrectAnswers:      p.CorrectAnswers,
		IncorrectAnswers:    p.IncorrectAnswers,
		SkippedQuestions:    p.SkippedQuestions,
		TotalScore:          p.TotalScore,
		MaxPossibleScore:    p.MaxPossibleScore,
		AverageScore:        p.AverageScore,
		TotalResponseTime:   p.TotalResponseTime,
		AverageResponseTime: p.AverageResponseTime,
		ImprovementTrend:    string(p.ImprovementTrend),
		Strengths:           nonNil(p.Strengths),
		Weaknesses:          nonNil(p.Weaknesses),
		Recommendations:     nonNil(p.Recommendations),
		CalculatedAt:        p.CalculatedAt,
	}
}

func (r rollupRow) toDomain() domain.PerformanceAnalytics {
	return domain.PerformanceAnalytics{
		StudentID:           r.StudentID,
		Company:             r.Company,
		Topic:               r.Topic,
		TotalAttempts:       r.TotalAttempts,
		TotalQuestions:      r.TotalQuestions,
		CorrectAnswers:      r.CorrectAnswers,
		IncorrectAnswers:    r.IncorrectAnswers,
		SkippedQuestions:    r.SkippedQuestions,
		TotalScore:          r.TotalScore,
		MaxPossibleScore:    r.MaxPossibleScore,
		AverageScore:        r.AverageScore,
		TotalResponseTime:   r.TotalResponseTime,
		AverageResponseTime: r.AverageResponseTime,
		ImprovementTrend:    domain.Trend(r.ImprovementTrend),
		Strengths:           nonNil(r.Strengths),
		Weaknesses:          nonNil(r.Weaknesses),
		Recommendations:     nonNil(r.Recommendations),
		CalculatedAt:        r.CalculatedAt,
	}
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

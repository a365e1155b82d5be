package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"placement-quiz-service/internal/app"
	"placement-quiz-service/internal/domain"
)

// QuizCatalog stores quiz definitions as JSONB and serves as the loader behind the caches.
type QuizCatalog struct {
	pool *pgxpool.Pool
}

func NewQuizCatalog(pool *pgxpool.Pool) *QuizCatalog {
	return &QuizCatalog{pool: pool}
}

func (c *QuizCatalog) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw []byte
	err := c.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

// CreateQuiz inserts a quiz; an existing id is left untouched and reported as ErrInvalidState.
func (c *QuizCatalog) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	tag, err := c.pool.Exec(ctx,
		`INSERT INTO quizzes (id, company, type, active, created_at, data)
		 VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		 ON CONFLICT (id) DO NOTHING`,
		quiz.ID, quiz.Company, string(quiz.Type), quiz.Active, quiz.CreatedAt, string(data))
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("quiz %s already exists: %w", quiz.ID, domain.ErrInvalidState)
	}
	return nil
}

func (c *QuizCatalog) ListQuizzes(ctx context.Context, filter app.QuizFilter) ([]domain.Quiz, error) {
	rows, err := c.pool.Query(ctx,
		`SELECT data FROM quizzes
		 WHERE active AND ($1 = '' OR company = $1) AND ($2 = '' OR type = $2)
		 ORDER BY created_at DESC, id`,
		filter.Company, string(filter.Type))
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Quiz, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		var quiz domain.Quiz
		if err := json.Unmarshal(raw, &quiz); err != nil {
			return nil, fmt.Errorf("unmarshal quiz: %w", err)
		}
		out = append(out, quiz)
	}
	return out, rows.Err()
}

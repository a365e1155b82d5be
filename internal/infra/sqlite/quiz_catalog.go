package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"placement-quiz-service/internal/app"
	"placement-quiz-service/internal/domain"
)

// QuizCatalog keeps quiz definitions as JSON text keyed by id.
type QuizCatalog struct {
	db *sql.DB
}

func NewQuizCatalog(db *sql.DB) *QuizCatalog {
	return &QuizCatalog{db: db}
}

func (c *QuizCatalog) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	var raw string
	err := c.db.QueryRowContext(ctx, `SELECT data FROM quizzes WHERE id = ?`, quizID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	return quiz, nil
}

func (c *QuizCatalog) CreateQuiz(ctx context.Context, quiz domain.Quiz) error {
	if err := quiz.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	res, err := c.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO quizzes (id, company, type, active, created_at_unix, data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		quiz.ID, quiz.Company, string(quiz.Type), boolToInt(quiz.Active), quiz.CreatedAt.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("quiz %s already exists: %w", quiz.ID, domain.ErrInvalidState)
	}
	return nil
}

func (c *QuizCatalog) ListQuizzes(ctx context.Context, filter app.QuizFilter) ([]domain.Quiz, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT data FROM quizzes
		 WHERE active = 1 AND (? = '' OR company = ?) AND (? = '' OR type = ?)
		 ORDER BY created_at_unix DESC, id`,
		filter.Company, filter.Company, string(filter.Type), string(filter.Type))
	if err != nil {
		return nil, fmt.Errorf("list quizzes: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Quiz, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		var quiz domain.Quiz
		if err := json.Unmarshal([]byte(raw), &quiz); err != nil {
			return nil, fmt.Errorf("unmarshal quiz: %w", err)
		}
		out = append(out, quiz)
	}
	return out, rows.Err()
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

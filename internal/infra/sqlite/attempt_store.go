package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"placement-quiz-service/internal/domain"
)

// AttemptStore keeps each attempt, responses included, as one JSON document next to the
// columns the list queries filter on.
type AttemptStore struct {
	db *sql.DB
}

func NewAttemptStore(db *sql.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) Create(ctx context.Context, attempt domain.Attempt) error {
	if err := attempt.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO attempts (id, student_id, quiz_id, company, status, started_at_unix, data)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID, attempt.StudentID, attempt.QuizID, attempt.Company, string(attempt.Status),
		attempt.StartedAt.UnixNano(), string(data))
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("attempt %s already exists: %w", attempt.ID, domain.ErrInvalidState)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	return loadAttempt(ctx, s.db, attemptID)
}

// Update runs inside a transaction. With a single pooled connection no other writer can
// interleave between the read and the write.
func (s *AttemptStore) Update(ctx context.Context, attemptID string, fn func(*domain.Attempt) error) (domain.Attempt, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Attempt{}, err
	}
	defer tx.Rollback()

	attempt, err := loadAttempt(ctx, tx, attemptID)
	if err != nil {
		return domain.Attempt{}, err
	}
	if err := fn(&attempt); err != nil {
		return domain.Attempt{}, err
	}
	if err := attempt.Validate(); err != nil {
		return domain.Attempt{}, err
	}
	data, err := json.Marshal(attempt)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("marshal attempt: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE attempts SET status = ?, data = ? WHERE id = ?`,
		string(attempt.Status), string(data), attempt.ID)
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("update attempt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Attempt{}, err
	}
	return attempt, nil
}

func (s *AttemptStore) ListByQuiz(ctx context.Context, quizID string) ([]domain.Attempt, error) {
	return s.list(ctx, `WHERE quiz_id = ? ORDER BY started_at_unix ASC, id`, quizID)
}

func (s *AttemptStore) ListByCompany(ctx context.Context, company string) ([]domain.Attempt, error) {
	return s.list(ctx, `WHERE company = ? ORDER BY started_at_unix ASC, id`, company)
}

func (s *AttemptStore) ListByStudent(ctx context.Context, studentID string, limit int) ([]domain.Attempt, error) {
	if limit > 0 {
		return s.list(ctx, `WHERE student_id = ? ORDER BY started_at_unix DESC, id LIMIT ?`, studentID, limit)
	}
	return s.list(ctx, `WHERE student_id = ? ORDER BY started_at_unix DESC, id`, studentID)
}

func (s *AttemptStore) ListInProgress(ctx context.Context, startedBefore time.Time) ([]domain.Attempt, error) {
	return s.list(ctx, `WHERE status = ? AND started_at_unix < ? ORDER BY started_at_unix ASC, id`,
		string(domain.AttemptInProgress), startedBefore.UnixNano())
}

func (s *AttemptStore) list(ctx context.Context, clause string, args ...any) ([]domain.Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM attempts `+strings.TrimSpace(clause), args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Attempt, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempt, err := decodeAttempt(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, attempt)
	}
	return out, rows.Err()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadAttempt(ctx context.Context, q queryRower, attemptID string) (domain.Attempt, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT data FROM attempts WHERE id = ?`, attemptID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Attempt{}, fmt.Errorf("%w: %s", domain.ErrAttemptNotFound, attemptID)
	}
	if err != nil {
		return domain.Attempt{}, fmt.Errorf("load attempt: %w", err)
	}
	return decodeAttempt(raw)
}

func decodeAttempt(raw string) (domain.Attempt, error) {
	var attempt domain.Attempt
	if err := json.Unmarshal([]byte(raw), &attempt); err != nil {
		return domain.Attempt{}, fmt.Errorf("unmarshal attempt: %w", err)
	}
	if attempt.Responses == nil {
		attempt.Responses = []domain.Response{}
	}
	return attempt, nil
}

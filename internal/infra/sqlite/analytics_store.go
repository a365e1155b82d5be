package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"placement-quiz-service/internal/domain"
)

// AnalyticsStore keeps rollup rows as JSON documents keyed by (student, company, topic).
type AnalyticsStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewAnalyticsStore(db *sql.DB) *AnalyticsStore {
	return &AnalyticsStore{db: db, now: time.Now}
}

func (s *AnalyticsStore) Apply(ctx context.Context, attemptID string, key domain.RollupKey, fn func([]domain.PerformanceAnalytics) ([]domain.PerformanceAnalytics, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO analytics_folds (attempt_id, student_id, company, folded_at_unix) VALUES (?, ?, ?, ?)`,
		attemptID, key.StudentID, key.Company, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("record fold: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyFolded, attemptID)
	}

	current, err := scanRollups(tx.QueryContext(ctx,
		`SELECT data FROM performance_analytics WHERE student_id = ? AND company = ? ORDER BY topic`,
		key.StudentID, key.Company))
	if err != nil {
		return err
	}

	updated, err := fn(current)
	if err != nil {
		return err
	}
	for _, row := range updated {
		if row.Key() != key {
			return domain.Invalid("rollup", fmt.Sprintf("row for %s does not belong to %s", row.Key(), key))
		}
		if err := row.Validate(); err != nil {
			return err
		}
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal rollup: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO performance_analytics (student_id, company, topic, average_score, data)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(student_id, company, topic) DO UPDATE SET
				average_score = excluded.average_score,
				data = excluded.data`,
			row.StudentID, row.Company, row.Topic, row.AverageScore, string(data))
		if err != nil {
			return fmt.Errorf("upsert rollup: %w", err)
		}
	}
	return tx.Commit()
}

func (s *AnalyticsStore) List(ctx context.Context, filter domain.RollupFilter) ([]domain.PerformanceAnalytics, error) {
	query := `SELECT data FROM performance_analytics
		WHERE (? = '' OR student_id = ?) AND (? = '' OR company = ?)`
	args := []any{filter.StudentID, filter.StudentID, filter.Company, filter.Company}
	if !filter.AllTopics {
		query += ` AND topic = ?`
		args = append(args, filter.Topic)
	}
	query += ` ORDER BY student_id, company, topic`
	return scanRollups(s.db.QueryContext(ctx, query, args...))
}

func scanRollups(rows *sql.Rows, err error) ([]domain.PerformanceAnalytics, error) {
	if err != nil {
		return nil, fmt.Errorf("load rollups: %w", err)
	}
	defer rows.Close()

	out := make([]domain.PerformanceAnalytics, 0)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan rollup: %w", err)
		}
		var row domain.PerformanceAnalytics
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return nil, fmt.Errorf("unmarshal rollup: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

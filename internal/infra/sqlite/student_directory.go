package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"placement-quiz-service/internal/domain"
)

type StudentDirectory struct {
	db *sql.DB
}

func NewStudentDirectory(db *sql.DB) *StudentDirectory {
	return &StudentDirectory{db: db}
}

func (d *StudentDirectory) GetStudent(ctx context.Context, studentID string) (domain.Student, error) {
	var s domain.Student
	err := d.db.QueryRowContext(ctx,
		`SELECT id, email, name, branch, year FROM students WHERE id = ?`, studentID,
	).Scan(&s.ID, &s.Email, &s.Name, &s.Branch, &s.Year)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Student{}, fmt.Errorf("%w: %s", domain.ErrStudentNotFound, studentID)
	}
	if err != nil {
		return domain.Student{}, fmt.Errorf("load student: %w", err)
	}
	return s, nil
}

// PutStudent inserts or replaces a student.
func (d *StudentDirectory) PutStudent(ctx context.Context, s domain.Student) error {
	if s.ID == "" {
		return domain.Invalid("id", "is required")
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO students (id, email, name, branch, year) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			branch = excluded.branch,
			year = excluded.year`,
		s.ID, s.Email, s.Name, s.Branch, s.Year)
	if err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"placement-quiz-service/internal/domain"
)

type studentRow struct {
	bun.BaseModel `bun:"table:students"`

	ID     string `bun:"id,pk"`
	Email  string `bun:"email"`
	Name   string `bun:"name"`
	Branch string `bun:"branch"`
	Year   string `bun:"year"`
}

// StudentDirectory reads student identities for display joins.
type StudentDirectory struct {
	db *bun.DB
}

func NewStudentDirectory(db *bun.DB) *StudentDirectory {
	return &StudentDirectory{db: db}
}

func (d *StudentDirectory) GetStudent(ctx context.Context, studentID string) (domain.Student, error) {
	row := new(studentRow)
	if err := d.db.NewSelect().Model(row).Where("id = ?", studentID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Student{}, fmt.Errorf("%w: %s", domain.ErrStudentNotFound, studentID)
		}
		return domain.Student{}, fmt.Errorf("load student: %w", err)
	}
	return domain.Student{ID: row.ID, Email: row.Email, Name: row.Name, Branch: row.Branch, Year: row.Year}, nil
}

// PutStudent inserts or replaces a student.
func (d *StudentDirectory) PutStudent(ctx context.Context, s domain.Student) error {
	if s.ID == "" {
		return domain.Invalid("id", "is required")
	}
	row := &studentRow{ID: s.ID, Email: s.Email, Name: s.Name, Branch: s.Branch, Year: s.Year}
	_, err := d.db.NewInsert().Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("name = EXCLUDED.name").
		Set("branch = EXCLUDED.branch").
		Set("year = EXCLUDED.year").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

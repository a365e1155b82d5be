package memory

import (
	"context"
	"fmt"
	"sync"

	"placement-quiz-service/internal/domain"
)

// StudentDirectory is a read-mostly map of student identities.
type StudentDirectory struct {
	mu       sync.RWMutex
	students map[string]domain.Student
}

func NewStudentDirectory(students ...domain.Student) *StudentDirectory {
	d := &StudentDirectory{students: make(map[string]domain.Student, len(students))}
	for _, s := range students {
		d.students[s.ID] = s
	}
	return d
}

func (d *StudentDirectory) GetStudent(_ context.Context, studentID string) (domain.Student, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if s, ok := d.students[studentID]; ok {
		return s, nil
	}
	return domain.Student{}, fmt.Errorf("%w: %s", domain.ErrStudentNotFound, studentID)
}

// PutStudent inserts or replaces a student.
func (d *StudentDirectory) PutStudent(_ context.Context, student domain.Student) error {
	if student.ID == "" {
		return domain.Invalid("id", "is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.students[student.ID] = student
	return nil
}

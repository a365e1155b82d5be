package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the root of every "referenced entity does not exist" error.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned when an attempt is not in the lifecycle state an operation requires.
	ErrInvalidState = errors.New("invalid attempt state")
	// ErrDuplicateResponse is returned when a question already has a response in the attempt.
	ErrDuplicateResponse = errors.New("question already answered in this attempt")
	// ErrValidation wraps malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyFolded reports that an attempt was applied to analytics before.
	ErrAlreadyFolded = errors.New("attempt already folded into analytics")

	ErrQuizNotFound     = fmt.Errorf("quiz %w", ErrNotFound)
	ErrQuizInactive     = fmt.Errorf("active quiz %w", ErrNotFound)
	ErrAttemptNotFound  = fmt.Errorf("attempt %w", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
	ErrStudentNotFound  = fmt.Errorf("student %w", ErrNotFound)
)

// ValidationError carries the offending field for ErrValidation failures.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// FoldError reports that an attempt was closed but could not be folded into analytics.
// The close itself stands; the fold can be retried.
type FoldError struct {
	AttemptID string
	Err       error
}

func (e *FoldError) Error() string {
	return fmt.Sprintf("fold attempt %s into analytics: %v", e.AttemptID, e.Err)
}

func (e *FoldError) Unwrap() error { return e.Err }

// IsFoldError reports whether err carries a *FoldError.
func IsFoldError(err error) bool {
	var fe *FoldError
	return errors.As(err, &fe)
}

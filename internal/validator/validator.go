package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"placement-quiz-service/internal/domain"
)

// Validator wraps go-playground/validator and reports failures as domain validation errors.
type Validator struct {
	validate *validator.Validate
}

// New creates a validator with the quiz-specific rules registered.
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("quiz_type", func(fl validator.FieldLevel) bool {
		return domain.QuizType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("terminal_status", func(fl validator.FieldLevel) bool {
		status := domain.AttemptStatus(fl.Field().String())
		return status == "" || status.Terminal()
	})
	return &Validator{validate: v}
}

// Validate checks s against its `validate` tags.
func (v *Validator) Validate(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	reasons := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		reasons = append(reasons, describe(fe))
	}
	return &domain.ValidationError{
		Field:  fieldErrs[0].Namespace(),
		Reason: strings.Join(reasons, "; "),
	}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "quiz_type":
		return fe.Field() + " must be aptitude, coding or technical"
	case "terminal_status":
		return fe.Field() + " must be completed, abandoned or timed_out"
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

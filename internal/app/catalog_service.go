package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"placement-quiz-service/internal/domain"
	"placement-quiz-service/internal/validator"
)

// CatalogService creates and lists quiz definitions.
type CatalogService struct {
	catalog   QuizCatalog
	quizzes   QuizRepository
	generator QuestionProvider
	validate  *validator.Validator
	logger    *slog.Logger
	now       func() time.Time
}

func NewCatalogService(catalog QuizCatalog, quizzes QuizRepository, generator QuestionProvider, v *validator.Validator, logger *slog.Logger) *CatalogService {
	if v == nil {
		v = validator.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{
		catalog:   catalog,
		quizzes:   quizzes,
		generator: generator,
		validate:  v,
		logger:    logger,
		now:       time.Now,
	}
}

// CreateQuiz stores a new active quiz. Question IDs default to q1..qN and points to 1.
func (s *CatalogService) CreateQuiz(ctx context.Context, req CreateQuizRequest) (domain.Quiz, error) {
	if err := s.validate.Validate(req); err != nil {
		return domain.Quiz{}, err
	}
	quiz := domain.Quiz{
		ID:        req.ID,
		Company:   req.Company,
		Type:      req.Type,
		Title:     req.Title,
		TimeLimit: req.TimeLimit,
		Active:    true,
		CreatedBy: req.CreatedBy,
		CreatedAt: s.now().UTC(),
		Questions: make([]domain.Question, 0, len(req.Questions)),
	}
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	if quiz.Title == "" {
		quiz.Title = fmt.Sprintf("%s %s quiz", quiz.Company, quiz.Type)
	}
	for i, in := range req.Questions {
		q := domain.Question{
			ID:            in.ID,
			Prompt:        in.Prompt,
			Options:       append([]string(nil), in.Options...),
			CorrectAnswer: *in.CorrectAnswer,
			Explanation:   in.Explanation,
			Difficulty:    in.Difficulty,
			Topic:         in.Topic,
			TimeLimit:     in.TimeLimit,
			Points:        in.Points,
		}
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		if q.Points == 0 {
			q.Points = 1
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	if err := s.catalog.CreateQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, err
	}
	s.logger.InfoContext(ctx, "quiz created",
		slog.String("quiz_id", quiz.ID),
		slog.String("company", quiz.Company),
		slog.Int("questions", len(quiz.Questions)))
	return quiz, nil
}

// GenerateQuiz asks the question provider for questions and stores them as a new quiz.
func (s *CatalogService) GenerateQuiz(ctx context.Context, req GenerateQuizRequest) (domain.Quiz, error) {
	if err := s.validate.Validate(req); err != nil {
		return domain.Quiz{}, err
	}
	if s.generator == nil {
		return domain.Quiz{}, fmt.Errorf("question provider not configured: %w", domain.ErrInvalidState)
	}
	questions, err := s.generator.Generate(ctx, req.Company, req.Type, req.Count)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("generate questions: %w", err)
	}
	create := CreateQuizRequest{
		Company:   req.Company,
		Type:      req.Type,
		TimeLimit: req.TimeLimit,
		CreatedBy: req.CreatedBy,
		Questions: make([]QuestionInput, 0, len(questions)),
	}
	for _, q := range questions {
		correct := q.CorrectAnswer
		create.Questions = append(create.Questions, QuestionInput{
			ID:            q.ID,
			Prompt:        q.Prompt,
			Options:       q.Options,
			CorrectAnswer: &correct,
			Explanation:   q.Explanation,
			Difficulty:    q.Difficulty,
			Topic:         q.Topic,
			TimeLimit:     q.TimeLimit,
			Points:        q.Points,
		})
	}
	return s.CreateQuiz(ctx, create)
}

// ListQuizzes returns active quizzes matching the filter.
func (s *CatalogService) ListQuizzes(ctx context.Context, filter QuizFilter) ([]domain.Quiz, error) {
	return s.catalog.ListQuizzes(ctx, filter)
}

// GetQuiz reads through the quiz cache.
func (s *CatalogService) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.quizzes.GetQuiz(ctx, quizID)
}

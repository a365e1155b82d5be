package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"placement-quiz-service/internal/app"
	"placement-quiz-service/internal/domain"
)

type QuizHandler struct {
	catalog   *app.CatalogService
	analytics *app.AnalyticsService
	logger    *slog.Logger
}

// publicQuestion is what a student sees: no correct answer, no explanation.
type publicQuestion struct {
	ID         string   `json:"id"`
	Prompt     string   `json:"question"`
	Options    []string `json:"options"`
	Difficulty float64  `json:"difficulty"`
	Topic      string   `json:"topic"`
	TimeLimit  int      `json:"timeLimit"`
	Points     int      `json:"points"`
}

type publicQuiz struct {
	ID        string           `json:"id"`
	Company   string           `json:"company"`
	Type      domain.QuizType  `json:"type"`
	Title     string           `json:"title"`
	TimeLimit int              `json:"timeLimit"`
	Questions []publicQuestion `json:"questions"`
	CreatedAt time.Time        `json:"createdAt"`
}

func toPublicQuiz(q domain.Quiz) publicQuiz {
	out := publicQuiz{
		ID:        q.ID,
		Company:   q.Company,
		Type:      q.Type,
		Title:     q.Title,
		TimeLimit: q.TimeLimit,
		CreatedAt: q.CreatedAt,
		Questions: make([]publicQuestion, 0, len(q.Questions)),
	}
	for _, question := range q.Questions {
		out.Questions = append(out.Questions, publicQuestion{
			ID:         question.ID,
			Prompt:     question.Prompt,
			Options:    question.Options,
			Difficulty: question.Difficulty,
			Topic:      question.Topic,
			TimeLimit:  question.TimeLimit,
			Points:     question.PointValue(),
		})
	}
	return out
}

func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	var req app.CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	quiz, err := h.catalog.CreateQuiz(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, quiz)
}

func (h *QuizHandler) GenerateQuiz(c *gin.Context) {
	var req app.GenerateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	quiz, err := h.catalog.GenerateQuiz(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, quiz)
}

func (h *QuizHandler) ListQuizzes(c *gin.Context) {
	quizzes, err := h.catalog.ListQuizzes(c.Request.Context(), app.QuizFilter{
		Company: c.Query("company"),
		Type:    domain.QuizType(c.Query("type")),
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	out := make([]publicQuiz, 0, len(quizzes))
	for _, q := range quizzes {
		out = append(out, toPublicQuiz(q))
	}
	c.JSON(http.StatusOK, gin.H{"quizzes": out})
}

func (h *QuizHandler) GetQuiz(c *gin.Context) {
	quiz, err := h.catalog.GetQuiz(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toPublicQuiz(quiz))
}

func (h *QuizHandler) Statistics(c *gin.Context) {
	stats, err := h.analytics.QuizStatistics(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if stats == nil {
		c.JSON(http.StatusOK, gin.H{"quizId": c.Param("id"), "statistics": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"quizId": c.Param("id"), "statistics": stats})
}

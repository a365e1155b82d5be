package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"placement-quiz-service/internal/app"
	"placement-quiz-service/internal/domain"
)

// StudentHeader carries the caller identity set by the upstream auth proxy.
const StudentHeader = "X-Student-ID"

type AttemptHandler struct {
	attempts *app.AttemptService
	logger   *slog.Logger
}

type openAttemptResponse struct {
	AttemptID string               `json:"attemptId"`
	StudentID string               `json:"studentId"`
	Status    domain.AttemptStatus `json:"status"`
	StartedAt time.Time            `json:"startedAt"`
	Quiz      publicQuiz           `json:"quiz"`
}

// closeResponse carries the summary even when the analytics fold failed.
type closeResponse struct {
	domain.AttemptSummary
	FoldError string `json:"foldError,omitempty"`
}

type submitBody struct {
	QuestionID     string  `json:"questionId"`
	SelectedAnswer *int    `json:"selectedAnswer"`
	ResponseTime   float64 `json:"responseTime"`
}

type closeBody struct {
	Status   domain.AttemptStatus `json:"status"`
	Behavior domain.BehaviorData  `json:"behaviorData"`
}

func (h *AttemptHandler) Open(c *gin.Context) {
	var req app.OpenAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if student := c.GetHeader(StudentHeader); student != "" {
		req.StudentID = student
	}
	if req.Device.IPAddress == "" {
		req.Device.IPAddress = c.ClientIP()
	}
	if req.Device.UserAgent == "" {
		req.Device.UserAgent = c.Request.UserAgent()
	}

	attempt, err := h.attempts.Open(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, openAttemptResponse{
		AttemptID: attempt.ID,
		StudentID: attempt.StudentID,
		Status:    attempt.Status,
		StartedAt: attempt.StartedAt,
		Quiz:      toPublicQuiz(attempt.Quiz),
	})
}

func (h *AttemptHandler) Get(c *gin.Context) {
	details, err := h.attempts.GetAttemptDetails(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *AttemptHandler) SubmitResponse(c *gin.Context) {
	var body submitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	progress, err := h.attempts.SubmitResponse(c.Request.Context(), app.SubmitResponseRequest{
		AttemptID:      c.Param("id"),
		QuestionID:     body.QuestionID,
		SelectedAnswer: body.SelectedAnswer,
		ResponseTime:   body.ResponseTime,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *AttemptHandler) Close(c *gin.Context) {
	var body closeBody
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, err)
			return
		}
	}
	summary, err := h.attempts.Close(c.Request.Context(), app.CloseAttemptRequest{
		AttemptID: c.Param("id"),
		Status:    body.Status,
		Behavior:  body.Behavior,
	})
	h.writeSummary(c, summary, err)
}

func (h *AttemptHandler) RetryFold(c *gin.Context) {
	summary, err := h.attempts.RetryFold(c.Request.Context(), c.Param("id"))
	h.writeSummary(c, summary, err)
}

func (h *AttemptHandler) writeSummary(c *gin.Context, summary domain.AttemptSummary, err error) {
	var foldErr *domain.FoldError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, closeResponse{AttemptSummary: summary})
	case errors.As(err, &foldErr):
		h.logger.WarnContext(c.Request.Context(), "attempt closed without analytics",
			slog.String("attempt_id", foldErr.AttemptID), slog.Any("error", foldErr.Err))
		c.JSON(http.StatusOK, closeResponse{AttemptSummary: summary, FoldError: foldErr.Error()})
	default:
		writeError(c, h.logger, err)
	}
}

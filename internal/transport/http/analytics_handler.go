package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"placement-quiz-service/internal/app"
)

type AnalyticsHandler struct {
	analytics *app.AnalyticsService
	attempts  *app.AttemptService
	logger    *slog.Logger
}

func (h *AnalyticsHandler) Performance(c *gin.Context) {
	rows, err := h.analytics.StudentPerformance(c.Request.Context(), c.Param("id"), c.Query("company"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"studentId": c.Param("id"), "analytics": rows})
}

func (h *AnalyticsHandler) History(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	history, err := h.attempts.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"studentId": c.Param("id"), "attempts": history})
}

func (h *AnalyticsHandler) Insights(c *gin.Context) {
	insights, err := h.analytics.Insights(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, insights)
}

func (h *AnalyticsHandler) NextDifficulty(c *gin.Context) {
	difficulty, err := h.analytics.RecommendDifficulty(c.Request.Context(), c.Param("id"), c.Query("company"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"studentId":  c.Param("id"),
		"company":    c.Query("company"),
		"difficulty": difficulty,
	})
}

func (h *AnalyticsHandler) CompanySummary(c *gin.Context) {
	summary, err := h.analytics.CompanySummary(c.Request.Context(), c.Param("company"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *AnalyticsHandler) Leaderboard(c *gin.Context) {
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	entries, err := h.analytics.Leaderboard(c.Request.Context(), app.LeaderboardQuery{
		Company: c.Query("company"),
		Topic:   c.Query("topic"),
		Limit:   limit,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"placement-quiz-service/internal/app"
)

// Services is everything the HTTP layer dispatches to.
type Services struct {
	Attempts  *app.AttemptService
	Catalog   *app.CatalogService
	Analytics *app.AnalyticsService
	Progress  app.ProgressSubscriber
	// Health reports backing-store reachability; nil means always healthy.
	Health func(ctx context.Context) error
	Logger *slog.Logger
}

// NewRouter builds the gin engine with every REST route and the progress websocket.
func NewRouter(svc Services) *gin.Engine {
	if svc.Logger == nil {
		svc.Logger = slog.Default()
	}
	router := gin.New()
	router.Use(requestID(), gin.Recovery(), requestLogger(svc.Logger))

	quizzes := &QuizHandler{catalog: svc.Catalog, analytics: svc.Analytics, logger: svc.Logger}
	attempts := &AttemptHandler{attempts: svc.Attempts, logger: svc.Logger}
	analytics := &AnalyticsHandler{analytics: svc.Analytics, attempts: svc.Attempts, logger: svc.Logger}
	ws := NewWSHandler(svc.Attempts, svc.Progress, svc.Logger)

	router.GET("/healthz", health(svc.Health))

	api := router.Group("/api")
	{
		api.POST("/quizzes", quizzes.CreateQuiz)
		api.POST("/quizzes/generate", quizzes.GenerateQuiz)
		api.GET("/quizzes", quizzes.ListQuizzes)
		api.GET("/quizzes/:id", quizzes.GetQuiz)
		api.GET("/quizzes/:id/statistics", quizzes.Statistics)

		api.POST("/attempts", attempts.Open)
		api.GET("/attempts/:id", attempts.Get)
		api.POST("/attempts/:id/responses", attempts.SubmitResponse)
		api.POST("/attempts/:id/close", attempts.Close)
		api.POST("/attempts/:id/fold", attempts.RetryFold)

		api.GET("/students/:id/performance", analytics.Performance)
		api.GET("/students/:id/history", analytics.History)
		api.GET("/students/:id/insights", analytics.Insights)
		api.GET("/students/:id/next-difficulty", analytics.NextDifficulty)
		api.GET("/companies/:company/summary", analytics.CompanySummary)
		api.GET("/leaderboard", analytics.Leaderboard)
	}

	router.GET("/ws/attempts/:id", func(c *gin.Context) {
		ws.ServeWS(c.Writer, c.Request, c.Param("id"))
	})
	return router
}

func health(check func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Set("request_id", id)
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.LogAttrs(c.Request.Context(), level, "http request",
			slog.String("request_id", c.GetString("request_id")),
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)))
	}
}

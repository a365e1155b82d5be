package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"placement-quiz-service/internal/domain"
)

// FoldRetrier re-runs a failed analytics fold.
type FoldRetrier interface {
	RetryFold(ctx context.Context, attemptID string) (domain.AttemptSummary, error)
}

const (
	foldRetryHandler = "analytics_fold_retry"
	TopicFoldPoison  = "analytics.fold_poison"
)

// NewFoldRouter consumes analytics.fold_failed and retries the fold. Messages that keep
// failing after the retry budget are moved to analytics.fold_poison.
func NewFoldRouter(bus *Bus, retrier FoldRetrier, logger *slog.Logger) (*message.Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	router, err := message.NewRouter(message.RouterConfig{}, bus.Logger)
	if err != nil {
		return nil, err
	}

	poison, err := middleware.PoisonQueue(bus.Publisher, TopicFoldPoison)
	if err != nil {
		return nil, err
	}
	router.AddMiddleware(
		poison,
		middleware.Retry{
			MaxRetries:      3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
			Logger:          bus.Logger,
		}.Middleware,
		middleware.Recoverer,
	)

	router.AddNoPublisherHandler(foldRetryHandler, TopicFoldFailed, bus.Subscriber, foldRetry(retrier, logger))
	return router, nil
}

func foldRetry(retrier FoldRetrier, logger *slog.Logger) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var data FoldFailedData
		if _, err := Decode(msg, &data); err != nil {
			logger.Error("drop malformed fold event", slog.String("message_uuid", msg.UUID), slog.Any("error", err))
			return nil
		}
		ctx := msg.Context()
		log := logger.With(slog.String("attempt_id", data.AttemptID))

		summary, err := retrier.RetryFold(ctx, data.AttemptID)
		switch {
		case err == nil:
			log.InfoContext(ctx, "fold retried", slog.Bool("analytics_applied", summary.AnalyticsApplied))
			return nil
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidState):
			log.WarnContext(ctx, "skip fold retry", slog.Any("error", err))
			return nil
		default:
			return err
		}
	}
}

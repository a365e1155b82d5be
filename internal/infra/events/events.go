// Package events publishes attempt lifecycle events through watermill and runs the worker
// that retries failed analytics folds.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"placement-quiz-service/internal/domain"
)

const (
	TopicAttemptCompleted = "attempt.completed"
	TopicAttemptAbandoned = "attempt.abandoned"
	TopicAttemptTimedOut  = "attempt.timed_out"
	TopicFoldFailed       = "analytics.fold_failed"

	source  = "placement-quiz-service"
	version = "1.0"
)

// Event is the envelope every message payload is wrapped in.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Version   string          `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// FoldFailedData is the payload of analytics.fold_failed.
type FoldFailedData struct {
	AttemptID string `json:"attemptId"`
	Error     string `json:"error"`
}

// Publisher adapts a watermill publisher to the attempt service's event port.
type Publisher struct {
	pub    message.Publisher
	logger *slog.Logger
	now    func() time.Time
}

func NewPublisher(pub message.Publisher, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{pub: pub, logger: logger, now: time.Now}
}

// AttemptClosed publishes the summary on the topic of its terminal status.
func (p *Publisher) AttemptClosed(ctx context.Context, summary domain.AttemptSummary) error {
	topic, err := closedTopic(summary.Status)
	if err != nil {
		return err
	}
	return p.publish(ctx, topic, summary.AttemptID, summary)
}

func (p *Publisher) FoldFailed(ctx context.Context, attemptID string, cause error) error {
	data := FoldFailedData{AttemptID: attemptID}
	if cause != nil {
		data.Error = cause.Error()
	}
	return p.publish(ctx, TopicFoldFailed, attemptID, data)
}

func (p *Publisher) publish(ctx context.Context, topic, attemptID string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	payload, err := json.Marshal(Event{
		ID:        watermill.NewUUID(),
		Type:      topic,
		Source:    source,
		Version:   version,
		Timestamp: p.now().UTC(),
		Data:      raw,
	})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", topic)
	msg.Metadata.Set("attempt_id", attemptID)
	msg.SetContext(ctx)

	if err := p.pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	p.logger.DebugContext(ctx, "event published", slog.String("topic", topic), slog.String("attempt_id", attemptID))
	return nil
}

func closedTopic(status domain.AttemptStatus) (string, error) {
	switch status {
	case domain.AttemptCompleted:
		return TopicAttemptCompleted, nil
	case domain.AttemptAbandoned:
		return TopicAttemptAbandoned, nil
	case domain.AttemptTimedOut:
		return TopicAttemptTimedOut, nil
	}
	return "", fmt.Errorf("no event topic for status %q", status)
}

// Decode unwraps an event envelope and its payload.
func Decode(msg *message.Message, data any) (Event, error) {
	var evt Event
	if err := json.Unmarshal(msg.Payload, &evt); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	if data != nil {
		if err := json.Unmarshal(evt.Data, data); err != nil {
			return Event{}, fmt.Errorf("unmarshal %s data: %w", evt.Type, err)
		}
	}
	return evt, nil
}

package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placement-quiz-service/internal/domain"
)

func TestPublisherRoutesClosedAttemptsByStatus(t *testing.T) {
	bus, err := NewBus(Options{}, nil)
	require.NoError(t, err)
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	completed, err := bus.Subscriber.Subscribe(ctx, TopicAttemptCompleted)
	require.NoError(t, err)
	abandoned, err := bus.Subscriber.Subscribe(ctx, TopicAttemptAbandoned)
	require.NoError(t, err)

	pub := NewPublisher(bus.Publisher, nil)
	require.NoError(t, pub.AttemptClosed(ctx, domain.AttemptSummary{AttemptID: "a1", Status: domain.AttemptCompleted, Score: 2}))
	require.NoError(t, pub.AttemptClosed(ctx, domain.AttemptSummary{AttemptID: "a2", Status: domain.AttemptAbandoned}))
	assert.Error(t, pub.AttemptClosed(ctx, domain.AttemptSummary{AttemptID: "a3", Status: domain.AttemptInProgress}))

	select {
	case msg := <-completed:
		var summary domain.AttemptSummary
		evt, err := Decode(msg, &summary)
		require.NoError(t, err)
		msg.Ack()
		assert.Equal(t, TopicAttemptCompleted, evt.Type)
		assert.Equal(t, source, evt.Source)
		assert.NotEmpty(t, evt.ID)
		assert.Equal(t, "a1", summary.AttemptID)
		assert.Equal(t, 2, summary.Score)
		assert.Equal(t, "a1", msg.Metadata.Get("attempt_id"))
	case <-ctx.Done():
		t.Fatalf("no completed event")
	}

	select {
	case msg := <-abandoned:
		msg.Ack()
		assert.Equal(t, "a2", msg.Metadata.Get("attempt_id"))
	case <-ctx.Done():
		t.Fatalf("no abandoned event")
	}
}

func TestNewBusRejectsUnknownDriver(t *testing.T) {
	_, err := NewBus(Options{Driver: "carrier-pigeon"}, nil)
	assert.Error(t, err)

	_, err = NewBus(Options{Driver: DriverKafka}, nil)
	assert.Error(t, err)
}

type scriptedRetrier struct {
	mu    sync.Mutex
	errs  []error
	calls []string
	done  chan struct{}
}

func (r *scriptedRetrier) RetryFold(_ context.Context, attemptID string) (domain.AttemptSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, attemptID)
	var err error
	if len(r.errs) > 0 {
		err, r.errs = r.errs[0], r.errs[1:]
	}
	if err == nil {
		close(r.done)
		return domain.AttemptSummary{AttemptID: attemptID, AnalyticsApplied: true}, nil
	}
	return domain.AttemptSummary{}, err
}

func TestFoldRouterRetriesUntilApplied(t *testing.T) {
	bus, err := NewBus(Options{}, nil)
	require.NoError(t, err)
	defer bus.Close()

	retrier := &scriptedRetrier{
		errs: []error{&domain.FoldError{AttemptID: "a1", Err: errors.New("db down")}},
		done: make(chan struct{}),
	}
	router, err := NewFoldRouter(bus, retrier, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go func() { _ = router.Run(ctx) }()
	defer router.Close()
	select {
	case <-router.Running():
	case <-ctx.Done():
		t.Fatalf("router did not start")
	}

	pub := NewPublisher(bus.Publisher, nil)
	require.NoError(t, pub.FoldFailed(ctx, "a1", errors.New("db down")))

	select {
	case <-retrier.done:
	case <-ctx.Done():
		t.Fatalf("fold was not retried to success")
	}
	retrier.mu.Lock()
	defer retrier.mu.Unlock()
	assert.Equal(t, []string{"a1", "a1"}, retrier.calls)
}

func TestFoldRetryAcksNonRetriableErrors(t *testing.T) {
	retrier := &scriptedRetrier{errs: []error{domain.ErrAttemptNotFound}, done: make(chan struct{})}
	handler := foldRetry(retrier, slogDiscard())

	bus, err := NewBus(Options{}, nil)
	require.NoError(t, err)
	defer bus.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msgs, err := bus.Subscriber.Subscribe(ctx, TopicFoldFailed)
	require.NoError(t, err)
	require.NoError(t, NewPublisher(bus.Publisher, nil).FoldFailed(ctx, "gone", nil))

	select {
	case msg := <-msgs:
		assert.NoError(t, handler(msg))
		msg.Ack()
	case <-ctx.Done():
		t.Fatalf("no fold failed event")
	}
	assert.Equal(t, []string{"gone"}, retrier.calls)
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

package app

import (
	"context"
	"sync"

	"placement-quiz-service/internal/domain"
)

// ProgressHub fans out attempt progress to in-process subscribers.
// It implements both ProgressPublisher and ProgressSubscriber.
type ProgressHub struct {
	mu     sync.Mutex
	topics map[string]*progressTopic
}

type progressTopic struct {
	last        *domain.Progress
	subscribers map[chan domain.Progress]struct{}
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{topics: make(map[string]*progressTopic)}
}

func (h *ProgressHub) Publish(_ context.Context, progress domain.Progress) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	topic, ok := h.topics[progress.AttemptID]
	if !ok {
		if progress.Status.Terminal() {
			return nil
		}
		topic = &progressTopic{subscribers: make(map[chan domain.Progress]struct{})}
		h.topics[progress.AttemptID] = topic
	}
	last := progress
	topic.last = &last
	for ch := range topic.subscribers {
		select {
		case ch <- progress:
		default:
			// drop the stale update so a slow client never blocks the writer
			select {
			case <-ch:
			default:
			}
			ch <- progress
		}
	}
	if progress.Status.Terminal() && len(topic.subscribers) == 0 {
		delete(h.topics, progress.AttemptID)
	}
	return nil
}

// Subscribe returns a channel that first receives the latest known progress, if any.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *ProgressHub) Subscribe(_ context.Context, attemptID string) (<-chan domain.Progress, func(), error) {
	ch := make(chan domain.Progress, 8)

	h.mu.Lock()
	topic, ok := h.topics[attemptID]
	if !ok {
		topic = &progressTopic{subscribers: make(map[chan domain.Progress]struct{})}
		h.topics[attemptID] = topic
	}
	topic.subscribers[ch] = struct{}{}
	if topic.last != nil {
		ch <- *topic.last
	}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := topic.subscribers[ch]; !ok {
			return
		}
		delete(topic.subscribers, ch)
		close(ch)
		if len(topic.subscribers) == 0 && (topic.last == nil || topic.last.Status.Terminal()) {
			if h.topics[attemptID] == topic {
				delete(h.topics, attemptID)
			}
		}
	}
	return ch, cancel, nil
}

// Subscribers reports how many subscribers watch an attempt.
func (h *ProgressHub) Subscribers(attemptID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if topic, ok := h.topics[attemptID]; ok {
		return len(topic.subscribers)
	}
	return 0
}

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"placement-quiz-service/internal/domain"
)

// ProgressBroker fans out attempt progress across instances with Redis pub/sub.
// The latest event per attempt is also kept under a key so late subscribers
// start from the current state:
//
//	PUBLISH attempt:{attemptID}:progress {json}
//	SET     attempt:{attemptID}:progress:last {json} EX ttl
type ProgressBroker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProgressBroker(client *redis.Client, ttl time.Duration) *ProgressBroker {
	return &ProgressBroker{client: client, ttl: ttl}
}

func (b *ProgressBroker) Publish(ctx context.Context, progress domain.Progress) error {
	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	pipe := b.client.Pipeline()
	pipe.Set(ctx, b.lastKey(progress.AttemptID), payload, b.ttl)
	pipe.Publish(ctx, b.channel(progress.AttemptID), payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

// Subscribe streams progress for one attempt until cancel is called or ctx ends.
func (b *ProgressBroker) Subscribe(ctx context.Context, attemptID string) (<-chan domain.Progress, func(), error) {
	ps := b.client.Subscribe(ctx, b.channel(attemptID))
	// wait for the subscription to be confirmed so no publish is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("subscribe progress: %w", err)
	}

	out := make(chan domain.Progress, 8)
	done := make(chan struct{})

	if last, err := b.client.Get(ctx, b.lastKey(attemptID)).Bytes(); err == nil {
		var p domain.Progress
		if json.Unmarshal(last, &p) == nil {
			out <- p
		}
	} else if !errors.Is(err, redis.Nil) {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("load last progress: %w", err)
	}

	go func() {
		defer close(out)
		messages := ps.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var p domain.Progress
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					continue
				}
				select {
				case out <- p:
				default:
					// drop the stale update so a slow client never blocks the reader
					select {
					case <-out:
					default:
					}
					out <- p
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
		})
	}
	return out, cancel, nil
}

func (b *ProgressBroker) channel(attemptID string) string {
	return "attempt:" + attemptID + ":progress"
}

func (b *ProgressBroker) lastKey(attemptID string) string {
	return "attempt:" + attemptID + ":progress:last"
}

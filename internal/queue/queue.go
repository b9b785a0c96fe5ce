// Package queue decouples the hot check-in path from scan-audit
// persistence. The API publishes one event per scan; the worker drains
// them into the store.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"eventpass/internal/registry"
)

// Queue is the abstraction over the redis and in-memory backends.
type Queue interface {
	Publish(ctx context.Context, ev registry.ScanEvent) error
	Consume(ctx context.Context) (<-chan registry.ScanEvent, error)
}

// InMemory is a channel-backed queue for dev and testing.
type InMemory struct {
	ch chan registry.ScanEvent
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan registry.ScanEvent, size)}
}

// Publish enqueues an event.
func (q *InMemory) Publish(ctx context.Context, ev registry.ScanEvent) error {
	select {
	case q.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel the worker ranges over; closed when ctx ends.
func (q *InMemory) Consume(ctx context.Context) (<-chan registry.ScanEvent, error) {
	out := make(chan registry.ScanEvent)
	go func() {
		defer close(out)
		for {
			select {
			case ev := <-q.ch:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue is a redis list-backed queue using LPUSH/BRPOP semantics, so
// multiple workers can drain the same list.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue on the given list key.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "eventpass:scans"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues an event as JSON.
func (q *RedisQueue) Publish(ctx context.Context, ev registry.ScanEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, body).Err()
}

// Consume streams events using BRPOP. Malformed payloads are dropped
// rather than wedging the worker.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan registry.ScanEvent, error) {
	out := make(chan registry.ScanEvent)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var ev registry.ScanEvent
			if err := json.Unmarshal([]byte(res[1]), &ev); err != nil {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

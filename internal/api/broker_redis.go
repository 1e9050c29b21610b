package api

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type EventBroker interface {
	Subscribe(runID string) chan SSEEvent
	Unsubscribe(runID string, ch chan SSEEvent)
	Publish(runID string, evt SSEEvent)
}

// RedisBroker implements EventBroker over Redis Pub/Sub so progress events
// reach subscribers on other instances.
type RedisBroker struct {
	rdb *redis.Client

	mu  sync.Mutex
	pss map[chan SSEEvent]*redis.PubSub
}

func NewRedisBroker(url string) (*RedisBroker, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBroker{rdb: redis.NewClient(opt), pss: map[chan SSEEvent]*redis.PubSub{}}, nil
}

func (b *RedisBroker) Subscribe(runID string) chan SSEEvent {
	ch := make(chan SSEEvent, 16)
	ctx := context.Background()
	ps := b.rdb.Subscribe(ctx, b.chanName(runID))
	_, _ = ps.Receive(ctx) // confirm the subscription before returning
	b.mu.Lock()
	b.pss[ch] = ps
	b.mu.Unlock()
	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			var evt SSEEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err == nil {
				select {
				case ch <- evt:
				default:
				}
			}
		}
	}()
	return ch
}

func (b *RedisBroker) Unsubscribe(runID string, ch chan SSEEvent) {
	b.mu.Lock()
	ps := b.pss[ch]
	delete(b.pss, ch)
	b.mu.Unlock()
	if ps != nil {
		// Closing the pubsub ends the reader goroutine, which closes ch.
		_ = ps.Close()
	}
}

func (b *RedisBroker) Publish(runID string, evt SSEEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, _ := json.Marshal(evt)
	_ = b.rdb.Publish(ctx, b.chanName(runID), data).Err()
}

func (b *RedisBroker) chanName(runID string) string { return "plan:" + runID }

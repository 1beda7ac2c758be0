package memory

import (
	"context"
	"sync"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/pkg"
)

const subscriberBuffer = 16

// broker fans values out to every subscriber of a topic. Slow subscribers miss values
// instead of blocking writers.
type broker[T any] struct {
	mu          sync.Mutex
	nextID      int
	subscribers map[string]map[int]chan T
}

func newBroker[T any]() *broker[T] {
	return &broker[T]{
		subscribers: make(map[string]map[int]chan T),
	}
}

func (that *broker[T]) subscribe(ctx context.Context, topic string) *pkg.Subscription[T] {
	that.mu.Lock()
	defer that.mu.Unlock()

	id := that.nextID
	that.nextID++

	updates := make(chan T, subscriberBuffer)
	if that.subscribers[topic] == nil {
		that.subscribers[topic] = make(map[int]chan T)
	}
	that.subscribers[topic][id] = updates

	unsubscribe := func() {
		that.mu.Lock()
		defer that.mu.Unlock()

		if ch, ok := that.subscribers[topic][id]; ok {
			delete(that.subscribers[topic], id)
			close(ch)
		}

		if len(that.subscribers[topic]) == 0 {
			delete(that.subscribers, topic)
		}
	}

	stop := context.AfterFunc(ctx, unsubscribe)

	return pkg.NewSubscription[T](updates, func() {
		stop()
		unsubscribe()
	})
}

func (that *broker[T]) publish(topic string, value T) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for _, ch := range that.subscribers[topic] {
		select {
		case ch <- value:
		default:
		}
	}
}

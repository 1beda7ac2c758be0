package pkg

import "sync"

// Subscription is a cancellable stream of updates. Close is idempotent and
// the updates channel is closed once the producer has stopped.
type Subscription[T any] struct {
	updates <-chan T
	cancel  func()
	once    sync.Once
}

func NewSubscription[T any](updates <-chan T, cancel func()) *Subscription[T] {
	return &Subscription[T]{
		updates: updates,
		cancel:  cancel,
	}
}

func (that *Subscription[T]) Updates() <-chan T {
	return that.updates
}

func (that *Subscription[T]) Close() {
	that.once.Do(that.cancel)
}

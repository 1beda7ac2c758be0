package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/pkg"
)

// maxTxRetries bounds optimistic transactions that keep losing their WATCH.
const maxTxRetries = 16

var ErrTxContention = errors.New("transaction retries exhausted")

// watchWithRetry runs fn as an optimistic transaction over keys, retrying when
// a watched key changes before EXEC.
func watchWithRetry(ctx context.Context, client *redis.Client, fn func(tx *redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return err
	}

	return ErrTxContention
}

// storeError marks infrastructure failures as StoreUnavailable and leaves domain errors untouched.
func storeError(op string, err error) error {
	if err == nil {
		return nil
	}

	if isDomainError(err) {
		return err
	}

	return fmt.Errorf("%w: %s: %w", apperror.ErrStoreUnavailable, op, err)
}

func isDomainError(err error) bool {
	for _, domainErr := range []error{
		apperror.ErrAlreadyWaiting,
		apperror.ErrNotAParticipant,
		apperror.ErrSessionEnded,
		apperror.ErrSessionNotEnded,
		apperror.ErrNotYourTurn,
		apperror.ErrCellOccupied,
		apperror.ErrIndexOutOfRange,
		apperror.ErrNotFound,
		ErrGameAlreadyExists,
	} {
		if errors.Is(err, domainErr) {
			return true
		}
	}

	return false
}

// subscribe forwards messages of a pub/sub channel until the subscription is closed or ctx is done.
func subscribe[T any](ctx context.Context, client *redis.Client, channel string, decode func(payload string) (T, error)) (*pkg.Subscription[T], error) {
	pubsub := client.Subscribe(ctx, channel)

	// wait for the subscription confirmation so no publish after return is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, storeError("subscribe", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	updates := make(chan T, 16)

	go func() {
		defer close(updates)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}

				value, err := decode(msg.Payload)
				if err != nil {
					continue
				}

				select {
				case updates <- value:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return pkg.NewSubscription[T](updates, cancel), nil
}

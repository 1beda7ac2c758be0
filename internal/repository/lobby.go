package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/pkg"
)

const (
	lobbyIndexKey = "onlinePlayers"
	lobbyChannel  = "onlinePlayers"
)

var ErrLobbyEntryNotFound = fmt.Errorf("lobby entry %w", apperror.ErrNotFound)

type LobbyRepository interface {
	Insert(ctx context.Context, entry *entity.LobbyEntry) error
	GetByID(ctx context.Context, id string) (*entity.LobbyEntry, error)
	ListSince(ctx context.Context, since time.Time) ([]*entity.LobbyEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]*entity.LobbyEntry, error)

	Claim(ctx context.Context, id, claimer string) (bool, error)
	Release(ctx context.Context, id, claimer string) (bool, error)

	Delete(ctx context.Context, id string) (bool, error)
	DeleteIfWaiting(ctx context.Context, id string) (bool, error)
	DeleteIfClaimedBy(ctx context.Context, id, claimer string) (bool, error)

	Subscribe(ctx context.Context) (*pkg.Subscription[string], error)
}

type dbLobby struct {
	client *redis.Client
}

func NewLobbyRepository(client *redis.Client) LobbyRepository {
	return &dbLobby{
		client: client,
	}
}

func lobbyEntryKey(id string) string {
	return "onlinePlayers/" + id
}

func lobbyPlayerKey(playerID string) string {
	return "onlinePlayers/byPlayer/" + playerID
}

func (that *dbLobby) Insert(ctx context.Context, entry *entity.LobbyEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal lobby entry: %w", err)
	}

	playerKey := lobbyPlayerKey(entry.PlayerID)

	txf := func(tx *redis.Tx) error {
		existingID, err := tx.Get(ctx, playerKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		if existingID != "" {
			// a concurrent Release may flip the old entry back to waiting
			if err = tx.Watch(ctx, lobbyEntryKey(existingID)).Err(); err != nil {
				return err
			}

			existing, err := getLobbyEntry(ctx, tx, existingID)
			if err == nil && existing.IsWaiting() {
				return apperror.ErrAlreadyWaiting
			}

			if err != nil && !errors.Is(err, apperror.ErrNotFound) {
				return err
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, lobbyEntryKey(entry.ID), entryJSON, 0)
			pipe.ZAdd(ctx, lobbyIndexKey, redis.Z{Score: float64(entry.Timestamp.UnixMilli()), Member: entry.ID})
			pipe.Set(ctx, playerKey, entry.ID, 0)
			pipe.Publish(ctx, lobbyChannel, entry.ID)
			return nil
		})

		return err
	}

	if err = watchWithRetry(ctx, that.client, txf, playerKey); err != nil {
		return storeError("insert lobby entry", err)
	}

	return nil
}

func (that *dbLobby) GetByID(ctx context.Context, id string) (*entity.LobbyEntry, error) {
	entry, err := getLobbyEntry(ctx, that.client, id)
	if err != nil {
		return nil, storeError("get lobby entry", err)
	}

	return entry, nil
}

func (that *dbLobby) ListSince(ctx context.Context, since time.Time) ([]*entity.LobbyEntry, error) {
	return that.listByScore(ctx, strconv.FormatInt(since.UnixMilli(), 10), "+inf")
}

func (that *dbLobby) ListBefore(ctx context.Context, before time.Time) ([]*entity.LobbyEntry, error) {
	return that.listByScore(ctx, "-inf", "("+strconv.FormatInt(before.UnixMilli(), 10))
}

func (that *dbLobby) listByScore(ctx context.Context, lowest, highest string) ([]*entity.LobbyEntry, error) {
	ids, err := that.client.ZRangeByScore(ctx, lobbyIndexKey, &redis.ZRangeBy{Min: lowest, Max: highest}).Result()
	if err != nil {
		return nil, storeError("list lobby index", err)
	}

	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, lobbyEntryKey(id))
	}

	values, err := that.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, storeError("list lobby entries", err)
	}

	entries := make([]*entity.LobbyEntry, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			// removed between the index scan and the read
			continue
		}

		var entry entity.LobbyEntry
		if err = json.Unmarshal([]byte(raw), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal lobby entry: %w", err)
		}

		entries = append(entries, &entry)
	}

	return entries, nil
}

func (that *dbLobby) Claim(ctx context.Context, id, claimer string) (bool, error) {
	key := lobbyEntryKey(id)
	claimed := false

	txf := func(tx *redis.Tx) error {
		claimed = false

		entry, err := getLobbyEntry(ctx, tx, id)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}

		if err != nil {
			return err
		}

		if !entry.IsWaiting() {
			return nil
		}

		entry.Status = entity.LobbyStatusMatched
		entry.ClaimedBy = claimer

		if err = setLobbyEntry(ctx, tx, entry); err != nil {
			return err
		}

		claimed = true

		return nil
	}

	if err := watchWithRetry(ctx, that.client, txf, key); err != nil {
		return false, storeError("claim lobby entry", err)
	}

	return claimed, nil
}

// Release hands a claimed entry back to the lobby. An entry whose player has
// re-entered the lobby in the meantime is dropped instead.
func (that *dbLobby) Release(ctx context.Context, id, claimer string) (bool, error) {
	key := lobbyEntryKey(id)
	released := false

	txf := func(tx *redis.Tx) error {
		released = false

		entry, err := getLobbyEntry(ctx, tx, id)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}

		if err != nil {
			return err
		}

		if !entry.IsMatched() || entry.ClaimedBy != claimer {
			return nil
		}

		playerKey := lobbyPlayerKey(entry.PlayerID)
		if err = tx.Watch(ctx, playerKey).Err(); err != nil {
			return err
		}

		currentID, err := tx.Get(ctx, playerKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		if currentID != id {
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				pipe.ZRem(ctx, lobbyIndexKey, id)
				return nil
			})

			return err
		}

		entry.Status = entity.LobbyStatusWaiting
		entry.ClaimedBy = ""

		if err = setLobbyEntry(ctx, tx, entry); err != nil {
			return err
		}

		released = true

		return nil
	}

	if err := watchWithRetry(ctx, that.client, txf, key); err != nil {
		return false, storeError("release lobby entry", err)
	}

	return released, nil
}

func (that *dbLobby) Delete(ctx context.Context, id string) (bool, error) {
	return that.delete(ctx, id, func(*entity.LobbyEntry) bool {
		return true
	})
}

func (that *dbLobby) DeleteIfWaiting(ctx context.Context, id string) (bool, error) {
	return that.delete(ctx, id, (*entity.LobbyEntry).IsWaiting)
}

// DeleteIfClaimedBy removes an entry only while claimer still holds its claim.
func (that *dbLobby) DeleteIfClaimedBy(ctx context.Context, id, claimer string) (bool, error) {
	return that.delete(ctx, id, func(entry *entity.LobbyEntry) bool {
		return entry.IsMatched() && entry.ClaimedBy == claimer
	})
}

func (that *dbLobby) delete(ctx context.Context, id string, allowed func(entry *entity.LobbyEntry) bool) (bool, error) {
	key := lobbyEntryKey(id)
	deleted := false

	txf := func(tx *redis.Tx) error {
		deleted = false

		entry, err := getLobbyEntry(ctx, tx, id)
		if errors.Is(err, apperror.ErrNotFound) {
			// drop a dangling index member left by an interrupted writer
			return tx.ZRem(ctx, lobbyIndexKey, id).Err()
		}

		if err != nil {
			return err
		}

		if !allowed(entry) {
			return nil
		}

		playerKey := lobbyPlayerKey(entry.PlayerID)
		if err = tx.Watch(ctx, playerKey).Err(); err != nil {
			return err
		}

		currentID, err := tx.Get(ctx, playerKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, lobbyIndexKey, id)
			if currentID == id {
				pipe.Del(ctx, playerKey)
			}
			pipe.Publish(ctx, lobbyChannel, id)
			return nil
		})
		if err != nil {
			return err
		}

		deleted = true

		return nil
	}

	if err := watchWithRetry(ctx, that.client, txf, key); err != nil {
		return false, storeError("delete lobby entry", err)
	}

	return deleted, nil
}

func (that *dbLobby) Subscribe(ctx context.Context) (*pkg.Subscription[string], error) {
	return subscribe(ctx, that.client, lobbyChannel, func(payload string) (string, error) {
		return payload, nil
	})
}

func getLobbyEntry(ctx context.Context, client redis.Cmdable, id string) (*entity.LobbyEntry, error) {
	response, err := client.Get(ctx, lobbyEntryKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrLobbyEntryNotFound
	}

	if err != nil {
		return nil, err
	}

	var entry entity.LobbyEntry
	if err = json.Unmarshal([]byte(response), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lobby entry: %w", err)
	}

	return &entry, nil
}

func setLobbyEntry(ctx context.Context, tx *redis.Tx, entry *entity.LobbyEntry) error {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal lobby entry: %w", err)
	}

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, lobbyEntryKey(entry.ID), entryJSON, redis.KeepTTL)
		pipe.Publish(ctx, lobbyChannel, entry.ID)
		return nil
	})

	return err
}

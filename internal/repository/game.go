package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/pkg"
)

var (
	ErrGameNotFound      = fmt.Errorf("game %w", apperror.ErrNotFound)
	ErrGameAlreadyExists = errors.New("game already exists")
)

type GameRepository interface {
	Create(ctx context.Context, game *entity.Game) error
	GetByID(ctx context.Context, id string) (*entity.Game, error)
	// Update applies fn to the stored game atomically. Nothing is written when fn fails.
	Update(ctx context.Context, id string, fn func(game *entity.Game) error) (*entity.Game, error)
	DeleteByID(ctx context.Context, id string) error
	Subscribe(ctx context.Context, id string) (*pkg.Subscription[*entity.Game], error)
}

type dbGame struct {
	client *redis.Client
}

func NewGameRepository(client *redis.Client) GameRepository {
	return &dbGame{
		client: client,
	}
}

func gameKey(id string) string {
	return "games/" + id
}

func (that *dbGame) Create(ctx context.Context, game *entity.Game) error {
	gameJSON, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("could not marshal game: %w", err)
	}

	key := gameKey(game.ID)

	txf := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}

		if exists > 0 {
			return ErrGameAlreadyExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, gameJSON, 0)
			pipe.Publish(ctx, key, gameJSON)
			return nil
		})

		return err
	}

	if err = watchWithRetry(ctx, that.client, txf, key); err != nil {
		return storeError("create game", err)
	}

	return nil
}

func (that *dbGame) GetByID(ctx context.Context, id string) (*entity.Game, error) {
	game, err := getGame(ctx, that.client, id)
	if err != nil {
		return nil, storeError("get game", err)
	}

	return game, nil
}

func (that *dbGame) Update(ctx context.Context, id string, fn func(game *entity.Game) error) (*entity.Game, error) {
	key := gameKey(id)

	var updated *entity.Game

	txf := func(tx *redis.Tx) error {
		game, err := getGame(ctx, tx, id)
		if err != nil {
			return err
		}

		if err = fn(game); err != nil {
			return err
		}

		gameJSON, err := json.Marshal(game)
		if err != nil {
			return fmt.Errorf("could not marshal game: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, gameJSON, redis.KeepTTL)
			pipe.Publish(ctx, key, gameJSON)
			return nil
		})
		if err != nil {
			return err
		}

		updated = game

		return nil
	}

	if err := watchWithRetry(ctx, that.client, txf, key); err != nil {
		return nil, storeError("update game", err)
	}

	return updated, nil
}

func (that *dbGame) DeleteByID(ctx context.Context, id string) error {
	if err := that.client.Del(ctx, gameKey(id)).Err(); err != nil {
		return storeError("delete game", err)
	}

	return nil
}

func (that *dbGame) Subscribe(ctx context.Context, id string) (*pkg.Subscription[*entity.Game], error) {
	return subscribe(ctx, that.client, gameKey(id), func(payload string) (*entity.Game, error) {
		var game entity.Game
		if err := json.Unmarshal([]byte(payload), &game); err != nil {
			return nil, fmt.Errorf("failed to unmarshal game: %w", err)
		}

		return &game, nil
	})
}

func getGame(ctx context.Context, client redis.Cmdable, id string) (*entity.Game, error) {
	response, err := client.Get(ctx, gameKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrGameNotFound
	}

	if err != nil {
		return nil, err
	}

	var existingGame entity.Game
	if err = json.Unmarshal([]byte(response), &existingGame); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %w", err)
	}

	return &existingGame, nil
}

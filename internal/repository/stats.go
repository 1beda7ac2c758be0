package repository

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
)

var ErrStatsNotFound = fmt.Errorf("stats %w", apperror.ErrNotFound)

var outcomeFields = map[string]string{
	entity.OutcomeWin:  "wins",
	entity.OutcomeLoss: "losses",
	entity.OutcomeDraw: "draws",
}

type StatsRepository interface {
	Init(ctx context.Context, userID string) error
	Increment(ctx context.Context, userID, outcome string) error
	GetByUserID(ctx context.Context, userID string) (*entity.Stats, error)
}

type dbStats struct {
	client *redis.Client
}

func NewStatsRepository(client *redis.Client) StatsRepository {
	return &dbStats{
		client: client,
	}
}

func statsKey(userID string) string {
	return "users/" + userID
}

// Init creates zeroed counters and keeps any that already exist.
func (that *dbStats) Init(ctx context.Context, userID string) error {
	key := statsKey(userID)

	_, err := that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, field := range outcomeFields {
			pipe.HSetNX(ctx, key, field, 0)
		}
		return nil
	})
	if err != nil {
		return storeError("init stats", err)
	}

	return nil
}

func (that *dbStats) Increment(ctx context.Context, userID, outcome string) error {
	field, ok := outcomeFields[outcome]
	if !ok {
		return fmt.Errorf("unknown outcome %q", outcome)
	}

	if err := that.client.HIncrBy(ctx, statsKey(userID), field, 1).Err(); err != nil {
		return storeError("increment stats", err)
	}

	return nil
}

func (that *dbStats) GetByUserID(ctx context.Context, userID string) (*entity.Stats, error) {
	values, err := that.client.HGetAll(ctx, statsKey(userID)).Result()
	if err != nil {
		return nil, storeError("get stats", err)
	}

	if len(values) == 0 {
		return nil, ErrStatsNotFound
	}

	var stats entity.Stats
	for field, target := range map[string]*int64{
		"wins":   &stats.Wins,
		"losses": &stats.Losses,
		"draws":  &stats.Draws,
	} {
		raw, ok := values[field]
		if !ok {
			continue
		}

		if *target, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return nil, fmt.Errorf("failed to parse %s counter: %w", field, err)
		}
	}

	return &stats, nil
}

package service

import (
	"context"
	"fmt"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
)

type StatsService interface {
	InitStats(ctx context.Context, userID string) error
	RecordResult(ctx context.Context, userID, outcome string) error
	GetStats(ctx context.Context, userID string) (*entity.Stats, error)
}

type statsRepo interface {
	Init(ctx context.Context, userID string) error
	Increment(ctx context.Context, userID, outcome string) error
	GetByUserID(ctx context.Context, userID string) (*entity.Stats, error)
}

type statsService struct {
	statsRepo statsRepo
}

func NewStatsService(statsRepo statsRepo) StatsService {
	return &statsService{
		statsRepo: statsRepo,
	}
}

func (that *statsService) InitStats(ctx context.Context, userID string) error {
	if err := that.statsRepo.Init(ctx, userID); err != nil {
		return fmt.Errorf("failed to init stats: %w", err)
	}

	return nil
}

func (that *statsService) RecordResult(ctx context.Context, userID, outcome string) error {
	if !entity.IsValidOutcome(outcome) {
		return fmt.Errorf("unknown outcome %q", outcome)
	}

	if err := that.statsRepo.Increment(ctx, userID, outcome); err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}

	return nil
}

// GetStats returns zero counters for users that never finished a game.
func (that *statsService) GetStats(ctx context.Context, userID string) (*entity.Stats, error) {
	stats, err := that.statsRepo.GetByUserID(ctx, userID)
	if isNotFound(err) {
		return &entity.Stats{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	return stats, nil
}

package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/repository"
)

type StatsRepository struct {
	mu    sync.Mutex
	stats map[string]entity.Stats
}

var _ repository.StatsRepository = (*StatsRepository)(nil)

func NewStatsRepository() *StatsRepository {
	return &StatsRepository{
		stats: make(map[string]entity.Stats),
	}
}

func (that *StatsRepository) Init(_ context.Context, userID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.stats[userID]; !ok {
		that.stats[userID] = entity.Stats{}
	}

	return nil
}

func (that *StatsRepository) Increment(_ context.Context, userID, outcome string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	stats := that.stats[userID]

	switch outcome {
	case entity.OutcomeWin:
		stats.Wins++
	case entity.OutcomeLoss:
		stats.Losses++
	case entity.OutcomeDraw:
		stats.Draws++
	default:
		return fmt.Errorf("unknown outcome %q", outcome)
	}

	that.stats[userID] = stats

	return nil
}

func (that *StatsRepository) GetByUserID(_ context.Context, userID string) (*entity.Stats, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	stats, ok := that.stats[userID]
	if !ok {
		return nil, repository.ErrStatsNotFound
	}

	return &stats, nil
}

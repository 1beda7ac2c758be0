package memory

import (
	"context"
	"sync"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/pkg"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/repository"
)

type GameRepository struct {
	mu     sync.Mutex
	games  map[string]*entity.Game
	broker *broker[*entity.Game]
}

var _ repository.GameRepository = (*GameRepository)(nil)

func NewGameRepository() *GameRepository {
	return &GameRepository{
		games:  make(map[string]*entity.Game),
		broker: newBroker[*entity.Game](),
	}
}

func (that *GameRepository) Create(_ context.Context, game *entity.Game) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.games[game.ID]; ok {
		return repository.ErrGameAlreadyExists
	}

	that.games[game.ID] = game.Clone()
	that.broker.publish(game.ID, game.Clone())

	return nil
}

func (that *GameRepository) GetByID(_ context.Context, id string) (*entity.Game, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	game, ok := that.games[id]
	if !ok {
		return nil, repository.ErrGameNotFound
	}

	return game.Clone(), nil
}

func (that *GameRepository) Update(_ context.Context, id string, fn func(game *entity.Game) error) (*entity.Game, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	stored, ok := that.games[id]
	if !ok {
		return nil, repository.ErrGameNotFound
	}

	game := stored.Clone()
	if err := fn(game); err != nil {
		return nil, err
	}

	that.games[id] = game
	that.broker.publish(id, game.Clone())

	return game.Clone(), nil
}

func (that *GameRepository) DeleteByID(_ context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.games, id)

	return nil
}

func (that *GameRepository) Subscribe(ctx context.Context, id string) (*pkg.Subscription[*entity.Game], error) {
	return that.broker.subscribe(ctx, id), nil
}

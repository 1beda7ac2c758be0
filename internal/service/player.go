package service

import (
	"context"
	"fmt"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
)

type PlayerService interface {
	// CurrentGameID returns the game the player was last seated in, or an empty string.
	CurrentGameID(ctx context.Context, id string) (string, error)
}

type playerService struct {
	playerRepo playerRepo
}

type playerRepo interface {
	CreateOrUpdate(ctx context.Context, player *entity.Player) error
	GetByID(ctx context.Context, id string) (*entity.Player, error)
}

func NewPlayerService(playerRepo playerRepo) PlayerService {
	return &playerService{
		playerRepo: playerRepo,
	}
}

func (that *playerService) CurrentGameID(ctx context.Context, id string) (string, error) {
	player, err := that.playerRepo.GetByID(ctx, id)
	if isNotFound(err) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("failed to get player by id: %w", err)
	}

	return player.GameID, nil
}

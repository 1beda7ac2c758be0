package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/pkg"
)

type GamePlayService interface {
	GetGame(ctx context.Context, gameID, playerID string) (*entity.Game, error)
	MakeTurn(ctx context.Context, gameID, playerID string, cell int) (*entity.Game, error)
	Reset(ctx context.Context, gameID, playerID string) (*entity.Game, error)
	Forfeit(ctx context.Context, gameID, playerID string) (*entity.Game, error)
	Subscribe(ctx context.Context, gameID, playerID string) (*pkg.Subscription[*entity.Game], error)
}

type gameRepo interface {
	Create(ctx context.Context, game *entity.Game) error
	GetByID(ctx context.Context, id string) (*entity.Game, error)
	Update(ctx context.Context, id string, fn func(game *entity.Game) error) (*entity.Game, error)
	DeleteByID(ctx context.Context, id string) error
	Subscribe(ctx context.Context, id string) (*pkg.Subscription[*entity.Game], error)
}

type resultRecorder interface {
	RecordResult(ctx context.Context, userID, outcome string) error
}

type gamePlayService struct {
	logger *slog.Logger
	now    func() time.Time

	gameRepo       gameRepo
	playerRepo     playerRepo
	resultRecorder resultRecorder
}

func NewGamePlayService(logger *slog.Logger, gameRepo gameRepo, playerRepo playerRepo, resultRecorder resultRecorder) GamePlayService {
	return &gamePlayService{
		logger:         logger,
		now:            time.Now,
		gameRepo:       gameRepo,
		playerRepo:     playerRepo,
		resultRecorder: resultRecorder,
	}
}

func (that *gamePlayService) GetGame(ctx context.Context, gameID, playerID string) (*entity.Game, error) {
	game, err := that.gameRepo.GetByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game by id: %w", err)
	}

	if !game.HasPlayer(playerID) {
		return nil, apperror.ErrNotAParticipant
	}

	return game, nil
}

func (that *gamePlayService) MakeTurn(ctx context.Context, gameID, playerID string, cell int) (*entity.Game, error) {
	return that.transition(ctx, gameID, func(game *entity.Game) error {
		return game.ApplyMove(playerID, cell, that.now())
	})
}

func (that *gamePlayService) Forfeit(ctx context.Context, gameID, playerID string) (*entity.Game, error) {
	return that.transition(ctx, gameID, func(game *entity.Game) error {
		return game.Forfeit(playerID, that.now())
	})
}

// transition applies change in one store transaction and records results once,
// for the caller whose write ended the game.
func (that *gamePlayService) transition(ctx context.Context, gameID string, change func(game *entity.Game) error) (*entity.Game, error) {
	endedHere := false

	game, err := that.gameRepo.Update(ctx, gameID, func(game *entity.Game) error {
		endedHere = false

		if err := change(game); err != nil {
			return err
		}

		endedHere = game.IsEnded()

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update game: %w", err)
	}

	if endedHere {
		that.recordResults(ctx, game)
	}

	return game, nil
}

func (that *gamePlayService) recordResults(ctx context.Context, game *entity.Game) {
	if game.IsLocal() {
		return
	}

	log := that.logger.With("method", "recordResults", "gameID", game.ID)

	for playerID, outcome := range game.Outcomes() {
		if err := that.resultRecorder.RecordResult(context.WithoutCancel(ctx), playerID, outcome); err != nil {
			log.Error("failed to record result", "playerID", playerID, "outcome", outcome, "error", err)
		}
	}
}

// Reset starts a rematch of an ended game. Concurrent resets agree on a single rematch.
func (that *gamePlayService) Reset(ctx context.Context, gameID, playerID string) (*entity.Game, error) {
	log := that.logger.With("method", "Reset", "gameID", gameID)

	game, err := that.GetGame(ctx, gameID, playerID)
	if err != nil {
		return nil, err
	}

	if game.NextGameID != "" {
		return that.getRematch(ctx, game.NextGameID)
	}

	rematch, err := game.Rematch(pkg.GenerateGameID(), that.now())
	if err != nil {
		return nil, err
	}

	if err = that.gameRepo.Create(ctx, rematch); err != nil {
		return nil, fmt.Errorf("failed to create rematch: %w", err)
	}

	game, err = that.gameRepo.Update(ctx, gameID, func(game *entity.Game) error {
		if game.NextGameID == "" {
			game.NextGameID = rematch.ID
		}
		return nil
	})
	if err != nil {
		that.dropRematch(ctx, log, rematch.ID)
		return nil, fmt.Errorf("failed to link rematch: %w", err)
	}

	if game.NextGameID != rematch.ID {
		that.dropRematch(ctx, log, rematch.ID)
		return that.getRematch(ctx, game.NextGameID)
	}

	for playerID, participant := range rematch.Players {
		player := &entity.Player{ID: playerID, Mark: participant.Marker, GameID: rematch.ID}
		if err = that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
			return nil, fmt.Errorf("failed to update player: %w", err)
		}
	}

	log.Info("rematch created", "rematchID", rematch.ID)

	return rematch, nil
}

func (that *gamePlayService) getRematch(ctx context.Context, rematchID string) (*entity.Game, error) {
	rematch, err := that.gameRepo.GetByID(ctx, rematchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get rematch: %w", err)
	}

	return rematch, nil
}

func (that *gamePlayService) dropRematch(ctx context.Context, log *slog.Logger, rematchID string) {
	if err := that.gameRepo.DeleteByID(context.WithoutCancel(ctx), rematchID); err != nil {
		log.Error("failed to delete unused rematch", "rematchID", rematchID, "error", err)
	}
}

func (that *gamePlayService) Subscribe(ctx context.Context, gameID, playerID string) (*pkg.Subscription[*entity.Game], error) {
	if _, err := that.GetGame(ctx, gameID, playerID); err != nil {
		return nil, err
	}

	subscription, err := that.gameRepo.Subscribe(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to game: %w", err)
	}

	return subscription, nil
}

// IsMoveRejection reports whether err is a rule violation the client caused.
func IsMoveRejection(err error) bool {
	for _, target := range []error{
		apperror.ErrNotAParticipant,
		apperror.ErrSessionEnded,
		apperror.ErrNotYourTurn,
		apperror.ErrCellOccupied,
		apperror.ErrIndexOutOfRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

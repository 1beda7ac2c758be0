package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/geo"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/pkg"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/service"
)

const cleanupTimeout = 5 * time.Second

type lobbyService interface {
	Enqueue(ctx context.Context, playerID, marker string, location *geo.Point) (*entity.LobbyEntry, error)
	Get(ctx context.Context, entryID string) (*entity.LobbyEntry, error)
	RemoveIfWaiting(ctx context.Context, entryID string) (bool, error)
}

type matchmaker interface {
	AttemptMatch(ctx context.Context, self *entity.LobbyEntry) (*service.MatchResult, error)
	WaitForMatch(ctx context.Context, self *entity.LobbyEntry) (*service.MatchResult, error)
}

type gamePlayService interface {
	GetGame(ctx context.Context, gameID, playerID string) (*entity.Game, error)
	MakeTurn(ctx context.Context, gameID, playerID string, cell int) (*entity.Game, error)
	Reset(ctx context.Context, gameID, playerID string) (*entity.Game, error)
	Forfeit(ctx context.Context, gameID, playerID string) (*entity.Game, error)
	Subscribe(ctx context.Context, gameID, playerID string) (*pkg.Subscription[*entity.Game], error)
}

type statsService interface {
	GetStats(ctx context.Context, userID string) (*entity.Stats, error)
}

type playerService interface {
	CurrentGameID(ctx context.Context, id string) (string, error)
}

// GameManager is what the transports talk to: lobby, matchmaking and sessions of one player.
type GameManager struct {
	logger *slog.Logger

	lobbyService    lobbyService
	matchmaker      matchmaker
	gamePlayService gamePlayService
	statsService    statsService
	playerService   playerService
}

func NewGameManager(
	logger *slog.Logger,
	lobbyService lobbyService,
	matchmaker matchmaker,
	gamePlayService gamePlayService,
	statsService statsService,
	playerService playerService,
) *GameManager {
	return &GameManager{
		logger: logger,

		lobbyService:    lobbyService,
		matchmaker:      matchmaker,
		gamePlayService: gamePlayService,
		statsService:    statsService,
		playerService:   playerService,
	}
}

// StartMatchmaking puts the player in the lobby and makes a first match attempt.
func (that *GameManager) StartMatchmaking(ctx context.Context, playerID, marker string, location *geo.Point) (*entity.LobbyEntry, *service.MatchResult, error) {
	log := that.logger.With("method", "StartMatchmaking", "playerID", playerID)

	entry, err := that.lobbyService.Enqueue(ctx, playerID, marker, location)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to enter lobby: %w", err)
	}

	result, err := that.matchmaker.AttemptMatch(ctx, entry)
	if err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()

		removed, removeErr := that.lobbyService.RemoveIfWaiting(cleanupCtx, entry.ID)
		if removeErr != nil {
			log.Error("failed to remove entry after a failed match attempt", "entryID", entry.ID, "error", removeErr)
		}

		if removeErr != nil || removed {
			return nil, nil, fmt.Errorf("failed to attempt match: %w", err)
		}

		// another matcher holds the entry, the client follows up on it
		log.Warn("match attempt failed on a claimed entry", "entryID", entry.ID, "error", err)

		return entry, &service.MatchResult{Status: service.MatchStatusPending}, nil
	}

	log.Info("player entered lobby", "entryID", entry.ID, "status", result.Status)

	return entry, result, nil
}

func (that *GameManager) AttemptMatch(ctx context.Context, playerID, entryID string) (*service.MatchResult, error) {
	entry, err := that.ownEntry(ctx, playerID, entryID)
	if err != nil {
		return nil, err
	}

	result, err := that.matchmaker.AttemptMatch(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to attempt match: %w", err)
	}

	return result, nil
}

// WaitForMatch blocks until the entry is matched, times out or ctx is cancelled.
func (that *GameManager) WaitForMatch(ctx context.Context, entry *entity.LobbyEntry) (*service.MatchResult, error) {
	result, err := that.matchmaker.WaitForMatch(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for match: %w", err)
	}

	return result, nil
}

func (that *GameManager) CancelMatchmaking(ctx context.Context, playerID, entryID string) error {
	log := that.logger.With("method", "CancelMatchmaking", "playerID", playerID, "entryID", entryID)

	entry, err := that.lobbyService.Get(ctx, entryID)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to get lobby entry: %w", err)
	}

	if entry.PlayerID != playerID {
		return apperror.ErrNotAParticipant
	}

	removed, err := that.lobbyService.RemoveIfWaiting(ctx, entryID)
	if err != nil {
		return fmt.Errorf("failed to leave lobby: %w", err)
	}

	log.Info("matchmaking cancelled", "removed", removed)

	return nil
}

// ownEntry loads a lobby entry of playerID. An entry that already left the lobby is
// returned as a stub so the matchmaker can resolve its outcome.
func (that *GameManager) ownEntry(ctx context.Context, playerID, entryID string) (*entity.LobbyEntry, error) {
	entry, err := that.lobbyService.Get(ctx, entryID)
	if errors.Is(err, apperror.ErrNotFound) {
		return &entity.LobbyEntry{ID: entryID, PlayerID: playerID}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get lobby entry: %w", err)
	}

	if entry.PlayerID != playerID {
		return nil, apperror.ErrNotAParticipant
	}

	return entry, nil
}

func (that *GameManager) GetGame(ctx context.Context, playerID, gameID string) (*entity.Game, error) {
	return that.gamePlayService.GetGame(ctx, gameID, playerID)
}

// CurrentGame returns the game the player was last seated in, so a reconnecting client can resume it.
func (that *GameManager) CurrentGame(ctx context.Context, playerID string) (*entity.Game, error) {
	gameID, err := that.playerService.CurrentGameID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get current game: %w", err)
	}

	if gameID == "" {
		return nil, fmt.Errorf("current game %w", apperror.ErrNotFound)
	}

	return that.gamePlayService.GetGame(ctx, gameID, playerID)
}

func (that *GameManager) MakeTurn(ctx context.Context, playerID, gameID string, cell int) (*entity.Game, error) {
	log := that.logger.With("method", "MakeTurn", "playerID", playerID, "gameID", gameID)

	game, err := that.gamePlayService.MakeTurn(ctx, gameID, playerID, cell)
	if err != nil {
		if service.IsMoveRejection(err) {
			log.Debug("move rejected", "cell", cell, "error", err)
		} else {
			log.Error("failed to make turn", "error", err)
		}

		return nil, err
	}

	if game.IsEnded() {
		log.Info("game finished", "winner", game.Winner)
	}

	return game, nil
}

func (that *GameManager) ResetGame(ctx context.Context, playerID, gameID string) (*entity.Game, error) {
	return that.gamePlayService.Reset(ctx, gameID, playerID)
}

func (that *GameManager) LeaveGame(ctx context.Context, playerID, gameID string) (*entity.Game, error) {
	game, err := that.gamePlayService.Forfeit(ctx, gameID, playerID)
	if err != nil {
		return nil, err
	}

	that.logger.Info("player left game", "method", "LeaveGame", "playerID", playerID, "gameID", gameID)

	return game, nil
}

func (that *GameManager) SubscribeGame(ctx context.Context, playerID, gameID string) (*pkg.Subscription[*entity.Game], error) {
	return that.gamePlayService.Subscribe(ctx, gameID, playerID)
}

func (that *GameManager) GetStats(ctx context.Context, userID string) (*entity.Stats, error) {
	stats, err := that.statsService.GetStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	return stats, nil
}

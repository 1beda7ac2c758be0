package service

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
)

type LobbyService interface {
	// Enqueue adds a waiting entry. A nil location means the client could not share one.
	Enqueue(ctx context.Context, playerID, marker string, location *geo.Point) (*entity.LobbyEntry, error)
	ListWaiting(ctx context.Context, activeSince time.Time) ([]*entity.LobbyEntry, error)
	Get(ctx context.Context, entryID string) (*entity.LobbyEntry, error)

	MarkMatched(ctx context.Context, entryID, claimer string) (bool, error)
	Release(ctx context.Context, entryID, claimer string) (bool, error)

	Remove(ctx context.Context, entryID string) error
	RemoveIfWaiting(ctx context.Context, entryID string) (bool, error)
	// RemoveClaimed drops an entry only while claimer still holds its claim.
	RemoveClaimed(ctx context.Context, entryID, claimer string) (bool, error)
	Expire(ctx context.Context, olderThan time.Time) (int, error)

	Subscribe(ctx context.Context) (*pkg.Subscription[string], error)
}

type lobbyRepo interface {
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

type lobbyService struct {
	logger *slog.Logger
	now    func() time.Time

	lobbyRepo lobbyRepo
}

func NewLobbyService(logger *slog.Logger, lobbyRepo lobbyRepo) LobbyService {
	return &lobbyService{
		logger:    logger,
		now:       time.Now,
		lobbyRepo: lobbyRepo,
	}
}

func (that *lobbyService) Enqueue(ctx context.Context, playerID, marker string, location *geo.Point) (*entity.LobbyEntry, error) {
	if location == nil {
		return nil, apperror.ErrPermissionDenied
	}

	if err := entity.ValidateLobbyRequest(marker, location.Latitude, location.Longitude); err != nil {
		return nil, err
	}

	entryID, err := pkg.GenerateEntryID()
	if err != nil {
		return nil, err
	}

	entry := entity.NewLobbyEntry(entryID, playerID, marker, location.Latitude, location.Longitude, that.now())
	if err = that.lobbyRepo.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to enqueue player: %w", err)
	}

	return entry, nil
}

func (that *lobbyService) ListWaiting(ctx context.Context, activeSince time.Time) ([]*entity.LobbyEntry, error) {
	entries, err := that.lobbyRepo.ListSince(ctx, activeSince)
	if err != nil {
		return nil, fmt.Errorf("failed to list lobby: %w", err)
	}

	waiting := entries[:0]
	for _, entry := range entries {
		if entry.IsWaiting() {
			waiting = append(waiting, entry)
		}
	}

	return waiting, nil
}

func (that *lobbyService) Get(ctx context.Context, entryID string) (*entity.LobbyEntry, error) {
	entry, err := that.lobbyRepo.GetByID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lobby entry: %w", err)
	}

	return entry, nil
}

func (that *lobbyService) MarkMatched(ctx context.Context, entryID, claimer string) (bool, error) {
	claimed, err := that.lobbyRepo.Claim(ctx, entryID, claimer)
	if err != nil {
		return false, fmt.Errorf("failed to mark entry matched: %w", err)
	}

	return claimed, nil
}

func (that *lobbyService) Release(ctx context.Context, entryID, claimer string) (bool, error) {
	released, err := that.lobbyRepo.Release(ctx, entryID, claimer)
	if err != nil {
		return false, fmt.Errorf("failed to release entry: %w", err)
	}

	return released, nil
}

func (that *lobbyService) Remove(ctx context.Context, entryID string) error {
	if _, err := that.lobbyRepo.Delete(ctx, entryID); err != nil {
		return fmt.Errorf("failed to remove entry: %w", err)
	}

	return nil
}

func (that *lobbyService) RemoveIfWaiting(ctx context.Context, entryID string) (bool, error) {
	removed, err := that.lobbyRepo.DeleteIfWaiting(ctx, entryID)
	if err != nil {
		return false, fmt.Errorf("failed to remove waiting entry: %w", err)
	}

	return removed, nil
}

func (that *lobbyService) RemoveClaimed(ctx context.Context, entryID, claimer string) (bool, error) {
	removed, err := that.lobbyRepo.DeleteIfClaimedBy(ctx, entryID, claimer)
	if err != nil {
		return false, fmt.Errorf("failed to remove claimed entry: %w", err)
	}

	return removed, nil
}

// Expire drops waiting entries older than olderThan and reports how many were removed.
func (that *lobbyService) Expire(ctx context.Context, olderThan time.Time) (int, error) {
	log := that.logger.With("method", "Expire")

	entries, err := that.lobbyRepo.ListBefore(ctx, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale entries: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsWaiting() {
			continue
		}

		ok, err := that.lobbyRepo.DeleteIfWaiting(ctx, entry.ID)
		if err != nil {
			return removed, fmt.Errorf("failed to expire entry: %w", err)
		}

		if ok {
			removed++
			log.Debug("entry expired", "entryID", entry.ID, "playerID", entry.PlayerID)
		}
	}

	return removed, nil
}

func (that *lobbyService) Subscribe(ctx context.Context) (*pkg.Subscription[string], error) {
	subscription, err := that.lobbyRepo.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to lobby: %w", err)
	}

	return subscription, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, apperror.ErrNotFound)
}

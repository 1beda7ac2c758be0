package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/pkg"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/repository"
)

const lobbyTopic = "onlinePlayers"

// LobbyRepository keeps the lobby in process memory. It is used for single-node runs and tests.
type LobbyRepository struct {
	mu       sync.Mutex
	entries  map[string]*entity.LobbyEntry
	byPlayer map[string]string
	broker   *broker[string]
}

var _ repository.LobbyRepository = (*LobbyRepository)(nil)

func NewLobbyRepository() *LobbyRepository {
	return &LobbyRepository{
		entries:  make(map[string]*entity.LobbyEntry),
		byPlayer: make(map[string]string),
		broker:   newBroker[string](),
	}
}

func (that *LobbyRepository) Insert(_ context.Context, entry *entity.LobbyEntry) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if existingID, ok := that.byPlayer[entry.PlayerID]; ok {
		if existing, ok := that.entries[existingID]; ok && existing.IsWaiting() {
			return apperror.ErrAlreadyWaiting
		}
	}

	stored := *entry
	that.entries[entry.ID] = &stored
	that.byPlayer[entry.PlayerID] = entry.ID
	that.broker.publish(lobbyTopic, entry.ID)

	return nil
}

func (that *LobbyRepository) GetByID(_ context.Context, id string) (*entity.LobbyEntry, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	entry, ok := that.entries[id]
	if !ok {
		return nil, repository.ErrLobbyEntryNotFound
	}

	found := *entry

	return &found, nil
}

func (that *LobbyRepository) ListSince(_ context.Context, since time.Time) ([]*entity.LobbyEntry, error) {
	return that.list(func(entry *entity.LobbyEntry) bool {
		return !entry.Timestamp.Before(since)
	}), nil
}

func (that *LobbyRepository) ListBefore(_ context.Context, before time.Time) ([]*entity.LobbyEntry, error) {
	return that.list(func(entry *entity.LobbyEntry) bool {
		return entry.Timestamp.Before(before)
	}), nil
}

func (that *LobbyRepository) list(keep func(entry *entity.LobbyEntry) bool) []*entity.LobbyEntry {
	that.mu.Lock()
	defer that.mu.Unlock()

	var entries []*entity.LobbyEntry
	for _, entry := range that.entries {
		if keep(entry) {
			found := *entry
			entries = append(entries, &found)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	return entries
}

func (that *LobbyRepository) Claim(_ context.Context, id, claimer string) (bool, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	entry, ok := that.entries[id]
	if !ok || !entry.IsWaiting() {
		return false, nil
	}

	entry.Status = entity.LobbyStatusMatched
	entry.ClaimedBy = claimer
	that.broker.publish(lobbyTopic, id)

	return true, nil
}

func (that *LobbyRepository) Release(_ context.Context, id, claimer string) (bool, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	entry, ok := that.entries[id]
	if !ok || !entry.IsMatched() || entry.ClaimedBy != claimer {
		return false, nil
	}

	if that.byPlayer[entry.PlayerID] != id {
		delete(that.entries, id)
		return false, nil
	}

	entry.Status = entity.LobbyStatusWaiting
	entry.ClaimedBy = ""
	that.broker.publish(lobbyTopic, id)

	return true, nil
}

func (that *LobbyRepository) Delete(_ context.Context, id string) (bool, error) {
	return that.delete(id, func(*entity.LobbyEntry) bool {
		return true
	}), nil
}

func (that *LobbyRepository) DeleteIfWaiting(_ context.Context, id string) (bool, error) {
	return that.delete(id, (*entity.LobbyEntry).IsWaiting), nil
}

func (that *LobbyRepository) DeleteIfClaimedBy(_ context.Context, id, claimer string) (bool, error) {
	return that.delete(id, func(entry *entity.LobbyEntry) bool {
		return entry.IsMatched() && entry.ClaimedBy == claimer
	}), nil
}

func (that *LobbyRepository) delete(id string, allowed func(entry *entity.LobbyEntry) bool) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	entry, ok := that.entries[id]
	if !ok || !allowed(entry) {
		return false
	}

	delete(that.entries, id)
	if that.byPlayer[entry.PlayerID] == id {
		delete(that.byPlayer, entry.PlayerID)
	}
	that.broker.publish(lobbyTopic, id)

	return true
}

func (that *LobbyRepository) Subscribe(ctx context.Context) (*pkg.Subscription[string], error) {
	return that.broker.subscribe(ctx, lobbyTopic), nil
}

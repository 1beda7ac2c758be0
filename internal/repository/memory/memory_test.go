package memory

import (
	"context"
	"testing"
	"time"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

func TestLobbyRepository(t *testing.T) {
	t.Run("Rejects a second waiting entry for the same player", func(t *testing.T) {
		ctx := context.Background()
		lobby := NewLobbyRepository()

		// Given: alice is waiting
		require.NoError(t, lobby.Insert(ctx, entity.NewLobbyEntry("e1", "alice", entity.PlayerX, 0, 0, testNow)))

		// When: alice enters again
		err := lobby.Insert(ctx, entity.NewLobbyEntry("e2", "alice", entity.PlayerO, 0, 0, testNow))

		// Then: ErrAlreadyWaiting should be returned
		require.ErrorIs(t, err, apperror.ErrAlreadyWaiting)
	})

	t.Run("Returned entries are copies", func(t *testing.T) {
		ctx := context.Background()
		lobby := NewLobbyRepository()

		// Given: a waiting entry
		require.NoError(t, lobby.Insert(ctx, entity.NewLobbyEntry("e1", "alice", entity.PlayerX, 0, 0, testNow)))

		// When: a read copy is modified
		entry, err := lobby.GetByID(ctx, "e1")
		require.NoError(t, err)
		entry.Status = entity.LobbyStatusMatched

		// Then: the stored entry is still claimable
		claimed, err := lobby.Claim(ctx, "e1", "bob")
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("Lists sorted by timestamp", func(t *testing.T) {
		ctx := context.Background()
		lobby := NewLobbyRepository()

		// Given: entries inserted out of order
		require.NoError(t, lobby.Insert(ctx, entity.NewLobbyEntry("e2", "bob", entity.PlayerX, 0, 0, testNow)))
		require.NoError(t, lobby.Insert(ctx, entity.NewLobbyEntry("e1", "alice", entity.PlayerX, 0, 0, testNow.Add(-time.Second))))

		// When: the lobby is listed
		entries, err := lobby.ListSince(ctx, testNow.Add(-time.Minute))
		require.NoError(t, err)

		// Then: the oldest entry comes first
		require.Len(t, entries, 2)
		assert.Equal(t, "e1", entries[0].ID)
		assert.Equal(t, "e2", entries[1].ID)
	})
}

func TestGameRepository_Subscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	games := NewGameRepository()
	require.NoError(t, games.Create(ctx, entity.NewGame("g1", "alice", "bob", testNow)))

	// Given: two subscribers of the same game
	first, err := games.Subscribe(ctx, "g1")
	require.NoError(t, err)
	second, err := games.Subscribe(ctx, "g1")
	require.NoError(t, err)
	defer second.Close()

	// When: a move is applied
	_, err = games.Update(ctx, "g1", func(game *entity.Game) error {
		return game.ApplyMove("alice", 0, testNow)
	})
	require.NoError(t, err)

	// Then: both receive the snapshot
	for _, subscription := range []interface {
		Updates() <-chan *entity.Game
	}{first, second} {
		select {
		case game := <-subscription.Updates():
			assert.Equal(t, entity.PlayerX, game.Board[0])
		case <-time.After(time.Second):
			t.Fatal("no update received")
		}
	}

	// And: a closed subscription stops receiving
	first.Close()
	_, ok := <-first.Updates()
	assert.False(t, ok)
}

func TestGameRepository_UpdateFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	games := NewGameRepository()

	// Given: a stored game
	require.NoError(t, games.Create(ctx, entity.NewGame("g1", "alice", "bob", testNow)))

	// When: an invalid move is attempted
	_, err := games.Update(ctx, "g1", func(game *entity.Game) error {
		return game.ApplyMove("mallory", 0, testNow)
	})

	// Then: the error is returned and the game is untouched
	require.ErrorIs(t, err, apperror.ErrNotAParticipant)

	game, err := games.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, entity.NewGame("g1", "alice", "bob", testNow), game)

	_, err = games.GetByID(ctx, "missing")
	require.ErrorIs(t, err, repository.ErrGameNotFound)
}

func TestTokenRepository(t *testing.T) {
	ctx := context.Background()
	tokens := NewTokenRepository()

	// Given: one token revoked for a minute and one with no lifetime left
	require.NoError(t, tokens.Revoke(ctx, "t1", time.Minute))
	require.NoError(t, tokens.Revoke(ctx, "t2", 0))

	// When: revocation is checked
	revoked, err := tokens.IsRevoked(ctx, "t1")
	require.NoError(t, err)
	expired, err := tokens.IsRevoked(ctx, "t2")
	require.NoError(t, err)

	// Then: only the live revocation is reported
	assert.True(t, revoked)
	assert.False(t, expired)
}

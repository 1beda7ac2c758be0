package repository

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/testing/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEntry(id, playerID string, at time.Time) *entity.LobbyEntry {
	return entity.NewLobbyEntry(id, playerID, entity.PlayerX, 52.52, 13.405, at)
}

func TestLobbyRepository_Insert(t *testing.T) {
	t.Run("Insert_Success", func(t *testing.T) {
		ctx, st := suite.New(t)

		lobbyRepo := NewLobbyRepository(st.Storage)

		// Given: a waiting entry
		entry := newTestEntry("e1", "alice", testNow)

		// When: Insert is called
		err := lobbyRepo.Insert(ctx, entry)
		require.NoError(t, err)

		// Then: the entry is readable and listed
		stored, err := lobbyRepo.GetByID(ctx, "e1")
		require.NoError(t, err)
		assert.Equal(t, entry, stored)

		entries, err := lobbyRepo.ListSince(ctx, testNow.Add(-time.Second))
		require.NoError(t, err)
		assert.Equal(t, []*entity.LobbyEntry{entry}, entries)
	})

	t.Run("Insert_AlreadyWaiting", func(t *testing.T) {
		ctx, st := suite.New(t)

		lobbyRepo := NewLobbyRepository(st.Storage)

		// Given: alice is already waiting
		require.NoError(t, lobbyRepo.Insert(ctx, newTestEntry("e1", "alice", testNow)))

		// When: alice enters the lobby again
		err := lobbyRepo.Insert(ctx, newTestEntry("e2", "alice", testNow))

		// Then: ErrAlreadyWaiting should be returned and no second entry exists
		require.ErrorIs(t, err, apperror.ErrAlreadyWaiting)

		_, err = lobbyRepo.GetByID(ctx, "e2")
		require.ErrorIs(t, err, ErrLobbyEntryNotFound)
	})

	t.Run("Insert_AfterRemoval", func(t *testing.T) {
		ctx, st := suite.New(t)

		lobbyRepo := NewLobbyRepository(st.Storage)

		// Given: alice entered and left the lobby
		require.NoError(t, lobbyRepo.Insert(ctx, newTestEntry("e1", "alice", testNow)))
		_, err := lobbyRepo.Delete(ctx, "e1")
		require.NoError(t, err)

		// When: alice enters again
		err = lobbyRepo.Insert(ctx, newTestEntry("e2", "alice", testNow))

		// Then: the new entry is accepted
		require.NoError(t, err)
	})
}

func TestLobbyRepository_InsertRacingRelease(t *testing.T) {
	ctx, st := suite.New(t)

	lobbyRepo := NewLobbyRepository(st.Storage)

	for round := range 20 {
		playerID := "player-" + strconv.Itoa(round)
		oldID := "old-" + strconv.Itoa(round)
		newID := "new-" + strconv.Itoa(round)

		// Given: the player's previous entry is claimed by a matcher
		require.NoError(t, lobbyRepo.Insert(ctx, newTestEntry(oldID, playerID, testNow)))
		claimed, err := lobbyRepo.Claim(ctx, oldID, "carol")
		require.NoError(t, err)
		require.True(t, claimed)

		// When: the player re-enters while the matcher hands the old entry back
		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()

			err := lobbyRepo.Insert(ctx, newTestEntry(newID, playerID, testNow))
			if err != nil {
				assert.ErrorIs(t, err, apperror.ErrAlreadyWaiting)
			}
		}()

		go func() {
			defer wg.Done()

			_, err := lobbyRepo.Release(ctx, oldID, "carol")
			assert.NoError(t, err)
		}()

		wg.Wait()

		// Then: the player never has two waiting entries
		entries, err := lobbyRepo.ListSince(ctx, testNow.Add(-time.Second))
		require.NoError(t, err)

		waiting := 0
		for _, entry := range entries {
			if entry.PlayerID == playerID && entry.IsWaiting() {
				waiting++
			}
		}
		assert.Equal(t, 1, waiting, "round %d", round)
	}
}

func TestLobbyRepository_ListByTimestamp(t *testing.T) {
	ctx, st := suite.New(t)

	lobbyRepo := NewLobbyRepository(st.Storage)

	// Given: an old and a fresh entry
	old := newTestEntry("e1", "alice", testNow.Add(-time.Minute))
	fresh := newTestEntry("e2", "bob", testNow)
	require.NoError(t, lobbyRepo.Insert(ctx, old))
	require.NoError(t, lobbyRepo.Insert(ctx, fresh))

	// When: the lobby is listed on both sides of a cutoff
	since, err := lobbyRepo.ListSince(ctx, testNow.Add(-10*time.Second))
	require.NoError(t, err)

	before, err := lobbyRepo.ListBefore(ctx, testNow.Add(-10*time.Second))
	require.NoError(t, err)

	// Then: each entry lands on its side
	assert.Equal(t, []*entity.LobbyEntry{fresh}, since)
	assert.Equal(t, []*entity.LobbyEntry{old}, before)
}

func TestLobbyRepository_Claim(t *testing.T) {
	t.Run("Claim_Once", func(t *testing.T) {
		ctx, st := suite.New(t)

		lobbyRepo := NewLobbyRepository(st.Storage)

		// Given: a waiting entry
		require.NoError(t, lobbyRepo.Insert(ctx, newTestEntry("e1", "alice", testNow)))

		// When: two claimers race for it
		const claimers = 8

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)

		for range claimers {
			wg.Add(1)
			go func() {
				defer wg.Done()

				claimed, err := lobbyRepo.Claim(ctx, "e1", "bob")
				assert.NoError(t, err)

				if claimed {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		// Then: exactly one claim succeeds and the entry is matched
		assert.Equal(t, 1, wins)

		stored, err := lobbyRepo.GetByID(ctx, "e1")
		require.NoError(t, err)
		assert.True(t, stored.IsMatched())
		assert.Equal(t, "bob", stored.ClaimedBy)
	})

	t.Run("Claim_Missing", func(t *testing.T) {
		ctx, st := suite.New(t)

		lobbyRepo := NewLobbyRepository(st.Storage)

		// When: a missing entry is claimed
		claimed, err := lobbyRepo.Claim(ctx, "nope", "bob")

		// Then: the claim fails without an error
		require.NoError(t, err)
		assert.False(t, claimed)
	})
}

func TestLobbyRepository_Release(t *testing.T) {
	t.Run("Release_ByClaimer", func(t *testing.T) {
		ctx, st := suite.New(t)

		lobbyRepo := NewLobbyRepository(st.Storage)

		// Given: an entry claimed by bob
		require.NoError(t, lobbyRepo.Insert(ctx, newTestEntry("e1", "alice", testNow)))
		claimed, err := lobbyRepo.Claim(ctx, "e1", "bob")
		require.NoError(t, err)
		require.True(t, claimed)

		// When: carol tries to release it, then bob does
		releasedByCarol, err := lobbyRepo.Release(ctx, "e1", "carol")
		require.NoError(t, err)

		releasedByBob, err := lobbyRepo.Release(ctx, "e1", "bob")
		require.NoError(t, err)

		// Then: only the claimer can release, and the entry waits again
		assert.False(t, releasedByCarol)
		assert.True(t, releasedByBob)

		stored, err := lobbyRepo.GetByID(ctx, "e1")
		require.NoError(t, err)
		assert.True(t, stored.IsWaiting())
		assert.Empty(t, stored.ClaimedBy)
	})
}

func TestLobbyRepository_DeleteIfWaiting(t *testing.T) {
	ctx, st := suite.New(t)

	lobbyRepo := NewLobbyRepository(st.Storage)

	// Given: one waiting and one claimed entry
	require.NoError(t, lobbyRepo.Insert(ctx, newTestEntry("e1", "alice", testNow)))
	require.NoError(t, lobbyRepo.Insert(ctx, newTestEntry("e2", "bob", testNow)))
	_, err := lobbyRepo.Claim(ctx, "e2", "carol")
	require.NoError(t, err)

	// When: both are removed only if still waiting
	waitingRemoved, err := lobbyRepo.DeleteIfWaiting(ctx, "e1")
	require.NoError(t, err)

	claimedRemoved, err := lobbyRepo.DeleteIfWaiting(ctx, "e2")
	require.NoError(t, err)

	// Then: only the waiting entry is gone
	assert.True(t, waitingRemoved)
	assert.False(t, claimedRemoved)

	_, err = lobbyRepo.GetByID(ctx, "e1")
	require.ErrorIs(t, err, ErrLobbyEntryNotFound)

	_, err = lobbyRepo.GetByID(ctx, "e2")
	require.NoError(t, err)
}

func TestLobbyRepository_DeleteIfClaimedBy(t *testing.T) {
	ctx, st := suite.New(t)

	lobbyRepo := NewLobbyRepository(st.Storage)

	// Given: a waiting entry and one claimed by carol
	require.NoError(t, lobbyRepo.Insert(ctx, newTestEntry("e1", "alice", testNow)))
	require.NoError(t, lobbyRepo.Insert(ctx, newTestEntry("e2", "bob", testNow)))
	_, err := lobbyRepo.Claim(ctx, "e2", "carol")
	require.NoError(t, err)

	// When: they are removed on behalf of different claimers
	waitingRemoved, err := lobbyRepo.DeleteIfClaimedBy(ctx, "e1", "carol")
	require.NoError(t, err)

	foreignRemoved, err := lobbyRepo.DeleteIfClaimedBy(ctx, "e2", "dave")
	require.NoError(t, err)

	ownRemoved, err := lobbyRepo.DeleteIfClaimedBy(ctx, "e2", "carol")
	require.NoError(t, err)

	// Then: only carol's own claim is removed and bob may enter again
	assert.False(t, waitingRemoved)
	assert.False(t, foreignRemoved)
	assert.True(t, ownRemoved)

	_, err = lobbyRepo.GetByID(ctx, "e1")
	require.NoError(t, err)

	_, err = lobbyRepo.GetByID(ctx, "e2")
	require.ErrorIs(t, err, ErrLobbyEntryNotFound)

	require.NoError(t, lobbyRepo.Insert(ctx, newTestEntry("e3", "bob", testNow)))
}

func TestLobbyRepository_Subscribe(t *testing.T) {
	ctx, st := suite.New(t)

	lobbyRepo := NewLobbyRepository(st.Storage)

	// Given: a lobby subscriber
	subscription, err := lobbyRepo.Subscribe(ctx)
	require.NoError(t, err)
	defer subscription.Close()

	// When: an entry is inserted
	require.NoError(t, lobbyRepo.Insert(ctx, newTestEntry("e1", "alice", testNow)))

	// Then: the subscriber is notified with its id
	select {
	case id := <-subscription.Updates():
		assert.Equal(t, "e1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("no lobby notification received")
	}
}

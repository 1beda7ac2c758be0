package repository

import (
	"testing"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/testing/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsRepository(t *testing.T) {
	t.Run("Init_And_Increment", func(t *testing.T) {
		ctx, st := suite.New(t)

		statsRepo := NewStatsRepository(st.Storage)

		// Given: a freshly initialized user
		require.NoError(t, statsRepo.Init(ctx, "alice"))

		// When: two wins and a draw are recorded
		require.NoError(t, statsRepo.Increment(ctx, "alice", entity.OutcomeWin))
		require.NoError(t, statsRepo.Increment(ctx, "alice", entity.OutcomeWin))
		require.NoError(t, statsRepo.Increment(ctx, "alice", entity.OutcomeDraw))

		// Then: the counters reflect them
		stats, err := statsRepo.GetByUserID(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, &entity.Stats{Wins: 2, Draws: 1}, stats)
	})

	t.Run("Init_KeepsExistingCounters", func(t *testing.T) {
		ctx, st := suite.New(t)

		statsRepo := NewStatsRepository(st.Storage)

		// Given: a user with a loss
		require.NoError(t, statsRepo.Increment(ctx, "bob", entity.OutcomeLoss))

		// When: Init runs again
		require.NoError(t, statsRepo.Init(ctx, "bob"))

		// Then: the loss is kept
		stats, err := statsRepo.GetByUserID(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, &entity.Stats{Losses: 1}, stats)
	})

	t.Run("GetByUserID_NotFound", func(t *testing.T) {
		ctx, st := suite.New(t)

		statsRepo := NewStatsRepository(st.Storage)

		// When: stats of an unknown user are requested
		stats, err := statsRepo.GetByUserID(ctx, "nobody")

		// Then: ErrStatsNotFound should be returned
		require.ErrorIs(t, err, ErrStatsNotFound)
		assert.Nil(t, stats)
	})

	t.Run("Increment_UnknownOutcome", func(t *testing.T) {
		ctx, st := suite.New(t)

		statsRepo := NewStatsRepository(st.Storage)

		// When: an unknown outcome is recorded
		err := statsRepo.Increment(ctx, "alice", "Surrender")

		// Then: an error is returned
		require.Error(t, err)
	})
}

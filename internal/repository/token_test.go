package repository

import (
	"testing"
	"time"

	"github.com/rocketscienceinc/nearby-tictactoe/testing/suite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRepository(t *testing.T) {
	ctx, st := suite.New(t)

	tokenRepo := NewTokenRepository(st.Storage)

	// Given: a revoked token
	require.NoError(t, tokenRepo.Revoke(ctx, "token-1", time.Minute))

	// When: revocation is checked
	revoked, err := tokenRepo.IsRevoked(ctx, "token-1")
	require.NoError(t, err)

	other, err := tokenRepo.IsRevoked(ctx, "token-2")
	require.NoError(t, err)

	// Then: only the revoked token is reported
	assert.True(t, revoked)
	assert.False(t, other)

	ttl, err := st.Storage.TTL(ctx, revokedTokenKey("token-1")).Result()
	require.NoError(t, err)
	assert.Positive(t, ttl)
}

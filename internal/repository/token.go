package repository

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type TokenRepository interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type dbToken struct {
	client *redis.Client
}

func NewTokenRepository(client *redis.Client) TokenRepository {
	return &dbToken{
		client: client,
	}
}

func revokedTokenKey(tokenID string) string {
	return "tokens/revoked/" + tokenID
}

func (that *dbToken) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		// already expired, nothing to remember
		return nil
	}

	if err := that.client.Set(ctx, revokedTokenKey(tokenID), 1, ttl).Err(); err != nil {
		return storeError("revoke token", err)
	}

	return nil
}

func (that *dbToken) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	count, err := that.client.Exists(ctx, revokedTokenKey(tokenID)).Result()
	if err != nil {
		return false, storeError("check revoked token", err)
	}

	return count > 0, nil
}

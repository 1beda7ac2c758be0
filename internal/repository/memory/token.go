package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/repository"
)

type TokenRepository struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

var _ repository.TokenRepository = (*TokenRepository)(nil)

func NewTokenRepository() *TokenRepository {
	return &TokenRepository{
		revoked: make(map[string]time.Time),
	}
}

func (that *TokenRepository) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	that.revoked[tokenID] = time.Now().Add(ttl)

	return nil
}

func (that *TokenRepository) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	expiresAt, ok := that.revoked[tokenID]
	if !ok {
		return false, nil
	}

	if time.Now().After(expiresAt) {
		delete(that.revoked, tokenID)
		return false, nil
	}

	return true, nil
}

package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/geo"
	"github.com/stretchr/testify/mock"
)

var testNow = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

var (
	berlin     = geo.Point{Latitude: 52.5200, Longitude: 13.4050}
	nearBerlin = geo.Point{Latitude: 52.5300, Longitude: 13.4100}
	munich     = geo.Point{Latitude: 48.1351, Longitude: 11.5820}
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type mockResultRecorder struct {
	mock.Mock
}

func (that *mockResultRecorder) RecordResult(ctx context.Context, userID, outcome string) error {
	args := that.Called(ctx, userID, outcome)
	return args.Error(0)
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]entity.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]entity.User)}
}

func (that *fakeUserRepo) Save(_ context.Context, user *entity.User) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.users[user.Email]; ok {
		return apperror.ErrAccountExists
	}

	that.users[user.Email] = *user

	return nil
}

func (that *fakeUserRepo) Find(_ context.Context, email string) (*entity.User, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	user, ok := that.users[email]
	if !ok {
		return nil, apperror.ErrNotFound
	}

	return &user, nil
}

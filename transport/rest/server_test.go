package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/repository/memory"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/service"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAuthService struct {
	mock.Mock
}

func (that *mockAuthService) SignUp(ctx context.Context, email, password string) (*entity.User, string, error) {
	args := that.Called(ctx, email, password)
	user, _ := args.Get(0).(*entity.User)
	return user, args.String(1), args.Error(2)
}

func (that *mockAuthService) SignIn(ctx context.Context, email, password string) (*entity.User, string, error) {
	args := that.Called(ctx, email, password)
	user, _ := args.Get(0).(*entity.User)
	return user, args.String(1), args.Error(2)
}

func (that *mockAuthService) SignOut(ctx context.Context, token string) error {
	return that.Called(ctx, token).Error(0)
}

// VerifyToken accepts "<userId>-token".
func (that *mockAuthService) VerifyToken(_ context.Context, token string) (string, error) {
	userID, ok := strings.CutSuffix(token, "-token")
	if !ok || userID == "" {
		return "", apperror.ErrUnauthorized
	}

	return userID, nil
}

func newTestServer(t *testing.T) (*Server, *mockAuthService) {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	games := memory.NewGameRepository()
	players := memory.NewPlayerRepository()
	statsService := service.NewStatsService(memory.NewStatsRepository())
	lobbyService := service.NewLobbyService(logger, memory.NewLobbyRepository())
	matchmaker := service.NewMatchmakerService(logger, service.DefaultMatchmakerOptions(), lobbyService, games, players)
	gamePlayService := service.NewGamePlayService(logger, games, players, statsService)
	manager := usecase.NewGameManager(logger, lobbyService, matchmaker, gamePlayService, statsService, service.NewPlayerService(players))

	auth := &mockAuthService{}

	return New(logger, auth, manager), auth
}

func doRequest(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	return w
}

func decodeResponse[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var value T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &value), w.Body.String())

	return value
}

func matchmakingBody(marker string, lat, lon float64) MatchmakingRequest {
	return MatchmakingRequest{Marker: marker, Latitude: &lat, Longitude: &lon}
}

func TestServer_Ping(t *testing.T) {
	server, _ := newTestServer(t)

	// When: ping is called without a token
	w := doRequest(t, server.Routes(), http.MethodGet, "/ping", "", nil)

	// Then: pong is returned as plain text
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
}

func TestServer_Auth(t *testing.T) {
	t.Run("Sign up returns the user id and a token", func(t *testing.T) {
		server, auth := newTestServer(t)
		auth.On("SignUp", mock.Anything, "alice@example.com", "secret1").
			Return(&entity.User{ID: "alice"}, "alice-token", nil).Once()

		// When: a new account is created
		w := doRequest(t, server.Routes(), http.MethodPost, "/auth/signup", "", credentialsRequest{Email: "alice@example.com", Password: "secret1"})

		// Then: 201 with credentials
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, authResponse{UserID: "alice", Token: "alice-token"}, decodeResponse[authResponse](t, w))
		auth.AssertExpectations(t)
	})

	t.Run("Existing account is a conflict", func(t *testing.T) {
		server, auth := newTestServer(t)
		auth.On("SignUp", mock.Anything, "alice@example.com", "secret1").
			Return(nil, "", apperror.ErrAccountExists).Once()

		// When: the same email signs up again
		w := doRequest(t, server.Routes(), http.MethodPost, "/auth/signup", "", credentialsRequest{Email: "alice@example.com", Password: "secret1"})

		// Then: 409
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Wrong password is unauthorized", func(t *testing.T) {
		server, auth := newTestServer(t)
		auth.On("SignIn", mock.Anything, "alice@example.com", "wrong").
			Return(nil, "", apperror.ErrInvalidCredentials).Once()

		// When: signing in with a bad password
		w := doRequest(t, server.Routes(), http.MethodPost, "/auth/signin", "", credentialsRequest{Email: "alice@example.com", Password: "wrong"})

		// Then: 401
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("Sign out revokes the presented token", func(t *testing.T) {
		server, auth := newTestServer(t)
		auth.On("SignOut", mock.Anything, "alice-token").Return(nil).Once()

		// When: alice signs out
		w := doRequest(t, server.Routes(), http.MethodPost, "/auth/signout", "alice-token", nil)

		// Then: 204 and the token was handed to the auth service
		assert.Equal(t, http.StatusNoContent, w.Code)
		auth.AssertExpectations(t)
	})

	t.Run("Protected routes need a bearer token", func(t *testing.T) {
		server, _ := newTestServer(t)

		// When: stats are requested without and with a bad token
		missing := doRequest(t, server.Routes(), http.MethodGet, "/stats", "", nil)
		invalid := doRequest(t, server.Routes(), http.MethodGet, "/stats", "garbage", nil)

		// Then: both are 401
		assert.Equal(t, http.StatusUnauthorized, missing.Code)
		assert.Equal(t, http.StatusUnauthorized, invalid.Code)
	})
}

func TestServer_MatchmakingAndGame(t *testing.T) {
	t.Run("Two nearby players are matched and play a move", func(t *testing.T) {
		server, _ := newTestServer(t)
		router := server.Routes()

		// Given: alice is waiting in Berlin
		w := doRequest(t, router, http.MethodPost, "/matchmaking", "alice-token", matchmakingBody(entity.PlayerX, 52.52, 13.405))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		alice := decodeResponse[MatchmakingResponse](t, w)
		assert.Equal(t, service.MatchStatusPending, alice.Result.Status)

		// When: bob enters nearby
		w = doRequest(t, router, http.MethodPost, "/matchmaking", "bob-token", matchmakingBody(entity.PlayerO, 52.525, 13.4))
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		bob := decodeResponse[MatchmakingResponse](t, w)

		// Then: bob is matched and alice's attempt resolves to the same game
		require.Equal(t, service.MatchStatusMatched, bob.Result.Status)

		w = doRequest(t, router, http.MethodPost, "/matchmaking/"+alice.Entry.ID+"/attempt", "alice-token", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, bob.Result.GameID, decodeResponse[service.MatchResult](t, w).GameID)

		// And: X can move, O moving out of turn is a conflict
		gamePath := "/games/" + bob.Result.GameID
		cell := 4

		w = doRequest(t, router, http.MethodPost, gamePath+"/moves", "alice-token", MoveRequest{Cell: &cell})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		game := decodeResponse[entity.Game](t, w)
		assert.Equal(t, entity.PlayerX, game.Board[4])

		w = doRequest(t, router, http.MethodPost, gamePath+"/moves", "alice-token", MoveRequest{Cell: &cell})
		assert.Equal(t, http.StatusConflict, w.Code)

		// And: a stranger cannot read the game
		w = doRequest(t, router, http.MethodGet, gamePath, "mallory-token", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)

		// And: bob resumes the same game after a reconnect
		w = doRequest(t, router, http.MethodGet, "/games/current", "bob-token", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, bob.Result.GameID, decodeResponse[entity.Game](t, w).ID)
	})

	t.Run("Missing location is permission denied", func(t *testing.T) {
		server, _ := newTestServer(t)

		// When: the client reports that location access was denied
		w := doRequest(t, server.Routes(), http.MethodPost, "/matchmaking", "alice-token", MatchmakingRequest{Marker: entity.PlayerX, LocationDenied: true})

		// Then: 403
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("Invalid marker and duplicate entry are rejected", func(t *testing.T) {
		server, _ := newTestServer(t)
		router := server.Routes()

		// When: an unknown marker is sent
		w := doRequest(t, router, http.MethodPost, "/matchmaking", "alice-token", matchmakingBody("Z", 52.52, 13.405))

		// Then: 400
		assert.Equal(t, http.StatusBadRequest, w.Code)

		// When: alice enters twice
		w = doRequest(t, router, http.MethodPost, "/matchmaking", "alice-token", matchmakingBody(entity.PlayerX, 52.52, 13.405))
		require.Equal(t, http.StatusCreated, w.Code)
		w = doRequest(t, router, http.MethodPost, "/matchmaking", "alice-token", matchmakingBody(entity.PlayerX, 52.52, 13.405))

		// Then: 409
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Cancel removes the waiting entry", func(t *testing.T) {
		server, _ := newTestServer(t)
		router := server.Routes()

		// Given: alice is waiting
		w := doRequest(t, router, http.MethodPost, "/matchmaking", "alice-token", matchmakingBody(entity.PlayerX, 52.52, 13.405))
		require.Equal(t, http.StatusCreated, w.Code)
		alice := decodeResponse[MatchmakingResponse](t, w)

		// When: she cancels
		w = doRequest(t, router, http.MethodDelete, "/matchmaking/"+alice.Entry.ID, "alice-token", nil)

		// Then: 204 and she may enter again
		assert.Equal(t, http.StatusNoContent, w.Code)
		w = doRequest(t, router, http.MethodPost, "/matchmaking", "alice-token", matchmakingBody(entity.PlayerX, 52.52, 13.405))
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("Unknown game is not found and a move without a cell is a bad request", func(t *testing.T) {
		server, _ := newTestServer(t)
		router := server.Routes()

		w := doRequest(t, router, http.MethodGet, "/games/missing", "alice-token", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = doRequest(t, router, http.MethodPost, "/games/missing/moves", "alice-token", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Stats start at zero", func(t *testing.T) {
		server, _ := newTestServer(t)

		w := doRequest(t, server.Routes(), http.MethodGet, "/stats", "alice-token", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, entity.Stats{}, decodeResponse[entity.Stats](t, w))
	})
}

func TestStatusFromError(t *testing.T) {
	cases := map[error]int{
		apperror.ErrAlreadyWaiting:   http.StatusConflict,
		apperror.ErrCellOccupied:     http.StatusConflict,
		apperror.ErrNotAParticipant:  http.StatusForbidden,
		apperror.ErrPermissionDenied: http.StatusForbidden,
		apperror.ErrIndexOutOfRange:  http.StatusBadRequest,
		apperror.ErrUnauthorized:     http.StatusUnauthorized,
		apperror.ErrStoreUnavailable: http.StatusServiceUnavailable,
		apperror.ErrNotFound:         http.StatusNotFound,
		io.EOF:                       http.StatusInternalServerError,
	}

	for err, status := range cases {
		assert.Equal(t, status, statusFromError(err), err.Error())
	}
}

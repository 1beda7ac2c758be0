package rest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/geo"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/service"
)

type gameManager interface {
	StartMatchmaking(ctx context.Context, playerID, marker string, location *geo.Point) (*entity.LobbyEntry, *service.MatchResult, error)
	AttemptMatch(ctx context.Context, playerID, entryID string) (*service.MatchResult, error)
	CancelMatchmaking(ctx context.Context, playerID, entryID string) error

	CurrentGame(ctx context.Context, playerID string) (*entity.Game, error)
	GetGame(ctx context.Context, playerID, gameID string) (*entity.Game, error)
	MakeTurn(ctx context.Context, playerID, gameID string, cell int) (*entity.Game, error)
	ResetGame(ctx context.Context, playerID, gameID string) (*entity.Game, error)
	LeaveGame(ctx context.Context, playerID, gameID string) (*entity.Game, error)

	GetStats(ctx context.Context, userID string) (*entity.Stats, error)
}

type Handlers interface {
	StartMatchmaking(w http.ResponseWriter, r *http.Request)
	AttemptMatch(w http.ResponseWriter, r *http.Request)
	CancelMatchmaking(w http.ResponseWriter, r *http.Request)

	CurrentGame(w http.ResponseWriter, r *http.Request)
	GetGame(w http.ResponseWriter, r *http.Request)
	MakeTurn(w http.ResponseWriter, r *http.Request)
	ResetGame(w http.ResponseWriter, r *http.Request)
	LeaveGame(w http.ResponseWriter, r *http.Request)

	GetStats(w http.ResponseWriter, r *http.Request)
}

// MatchmakingRequest carries the client's marker and device location. A client that
// could not get a location fix sends locationDenied or leaves the coordinates out.
type MatchmakingRequest struct {
	Marker         string   `json:"marker"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	LocationDenied bool     `json:"locationDenied,omitempty"`
}

func (that *MatchmakingRequest) Location() *geo.Point {
	if that.LocationDenied || that.Latitude == nil || that.Longitude == nil {
		return nil
	}

	return &geo.Point{Latitude: *that.Latitude, Longitude: *that.Longitude}
}

type MatchmakingResponse struct {
	Entry  *entity.LobbyEntry   `json:"entry"`
	Result *service.MatchResult `json:"result"`
}

type MoveRequest struct {
	Cell *int `json:"cell"`
}

type handlers struct {
	logger *slog.Logger

	gameManager gameManager
}

func NewHandlers(logger *slog.Logger, gameManager gameManager) Handlers {
	return &handlers{
		logger:      logger.With("component", "restHandlers"),
		gameManager: gameManager,
	}
}

func (that *handlers) StartMatchmaking(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "StartMatchmaking")

	var req MatchmakingRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	entry, result, err := that.gameManager.StartMatchmaking(r.Context(), userIDFromContext(r.Context()), req.Marker, req.Location())
	if err != nil {
		log.Error("failed to start matchmaking", "error", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, MatchmakingResponse{Entry: entry, Result: result})
}

func (that *handlers) AttemptMatch(w http.ResponseWriter, r *http.Request) {
	result, err := that.gameManager.AttemptMatch(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "entryId"))
	if err != nil {
		that.logger.Error("failed to attempt match", "method", "AttemptMatch", "error", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (that *handlers) CancelMatchmaking(w http.ResponseWriter, r *http.Request) {
	if err := that.gameManager.CancelMatchmaking(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "entryId")); err != nil {
		that.logger.Error("failed to cancel matchmaking", "method", "CancelMatchmaking", "error", err)
		respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (that *handlers) CurrentGame(w http.ResponseWriter, r *http.Request) {
	game, err := that.gameManager.CurrentGame(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, game)
}

func (that *handlers) GetGame(w http.ResponseWriter, r *http.Request) {
	that.respondGame(w, r, that.gameManager.GetGame)
}

func (that *handlers) MakeTurn(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	if req.Cell == nil {
		respondError(w, apperror.ErrIndexOutOfRange)
		return
	}

	that.respondGame(w, r, func(ctx context.Context, playerID, gameID string) (*entity.Game, error) {
		return that.gameManager.MakeTurn(ctx, playerID, gameID, *req.Cell)
	})
}

func (that *handlers) ResetGame(w http.ResponseWriter, r *http.Request) {
	that.respondGame(w, r, that.gameManager.ResetGame)
}

func (that *handlers) LeaveGame(w http.ResponseWriter, r *http.Request) {
	that.respondGame(w, r, that.gameManager.LeaveGame)
}

func (that *handlers) respondGame(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, playerID, gameID string) (*entity.Game, error)) {
	game, err := action(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "gameId"))
	if err != nil {
		if service.IsMoveRejection(err) {
			that.logger.Debug("game action rejected", "path", r.URL.Path, "error", err)
		} else {
			that.logger.Error("game action failed", "path", r.URL.Path, "error", err)
		}

		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, game)
}

func (that *handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := that.gameManager.GetStats(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		that.logger.Error("failed to get stats", "method", "GetStats", "error", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}

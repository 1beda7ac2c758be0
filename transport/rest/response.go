package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if payload == nil {
		return
	}

	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		respondJSON(w, status, errorResponse{Error: http.StatusText(status)})
		return
	}

	respondJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errInvalidBody
	}

	return nil
}

var errInvalidBody = errors.New("invalid request body")

func statusFromError(err error) int {
	switch {
	case errors.Is(err, errInvalidBody):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrAlreadyWaiting),
		errors.Is(err, apperror.ErrCellOccupied),
		errors.Is(err, apperror.ErrNotYourTurn),
		errors.Is(err, apperror.ErrSessionEnded),
		errors.Is(err, apperror.ErrSessionNotEnded),
		errors.Is(err, apperror.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(err, apperror.ErrNotAParticipant),
		errors.Is(err, apperror.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, apperror.ErrIndexOutOfRange),
		errors.Is(err, apperror.ErrInvalidMarker),
		errors.Is(err, apperror.ErrInvalidLocation):
		return http.StatusBadRequest
	case errors.Is(err, apperror.ErrInvalidCredentials),
		errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, apperror.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

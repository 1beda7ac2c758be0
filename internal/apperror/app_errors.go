package apperror

import "errors"

var (
	ErrAlreadyWaiting  = errors.New("player is already waiting for a match")
	ErrNotAParticipant = errors.New("player is not a participant of the game")
	ErrSessionEnded    = errors.New("game is already finished")
	ErrSessionNotEnded = errors.New("game is not finished yet")
	ErrNotYourTurn     = errors.New("it's not your turn")
	ErrCellOccupied    = errors.New("cell is already occupied")
	ErrIndexOutOfRange = errors.New("cell index out of range")

	ErrInvalidMarker    = errors.New("invalid marker")
	ErrInvalidLocation  = errors.New("invalid location")
	ErrPermissionDenied = errors.New("location permission denied")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountExists      = errors.New("account already exists")
	ErrUnauthorized       = errors.New("unauthorized")

	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotFound         = errors.New("not found")
)

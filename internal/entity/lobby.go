package entity

import (
	"fmt"
	"time"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
)

const (
	LobbyStatusWaiting = "waiting"
	LobbyStatusMatched = "matched"
)

// LobbyEntry is a waiting player's matchmaking record.
type LobbyEntry struct {
	ID        string    `json:"id"`
	PlayerID  string    `json:"playerId"`
	Marker    string    `json:"marker"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Status    string    `json:"status"`
	ClaimedBy string    `json:"claimedBy,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLobbyEntry(id, playerID, marker string, lat, lon float64, now time.Time) *LobbyEntry {
	return &LobbyEntry{
		ID:        id,
		PlayerID:  playerID,
		Marker:    marker,
		Latitude:  lat,
		Longitude: lon,
		Status:    LobbyStatusWaiting,
		Timestamp: now,
	}
}

func (that *LobbyEntry) IsWaiting() bool {
	return that.Status == LobbyStatusWaiting
}

func (that *LobbyEntry) IsMatched() bool {
	return that.Status == LobbyStatusMatched
}

// ValidateLobbyRequest checks the marker and coordinates a client wants to enqueue with.
func ValidateLobbyRequest(marker string, lat, lon float64) error {
	if !IsValidMarker(marker) {
		return fmt.Errorf("%w: %q", apperror.ErrInvalidMarker, marker)
	}

	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: %f,%f", apperror.ErrInvalidLocation, lat, lon)
	}

	return nil
}

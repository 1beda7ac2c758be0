package websocket

import (
	"encoding/json"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/geo"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/service"
)

const (
	actionConnect = "connect"

	actionMatchmakingStart  = "matchmaking:start"
	actionMatchmakingCancel = "matchmaking:cancel"

	actionMatchmakingPending = "matchmaking:pending"
	actionMatchmakingMatched = "matchmaking:matched"
	actionMatchmakingTimeout = "matchmaking:timeout"

	actionGameSubscribe = "game:subscribe"
	actionGameTurn      = "game:turn"
	actionGameReset     = "game:reset"
	actionGameLeave     = "game:leave"

	actionLocalStart = "local:start"
	actionLocalTurn  = "local:turn"
	actionLocalReset = "local:reset"

	actionGameUpdate = "game:update"
	actionError      = "error"
)

// Message represents a WebSocket message with an action type and a payload.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Request is the union of all client payloads; each action reads the fields it needs.
type Request struct {
	Marker         string   `json:"marker,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	LocationDenied bool     `json:"locationDenied,omitempty"`

	GameID string `json:"gameId,omitempty"`
	Cell   *int   `json:"cell,omitempty"`
}

func (that *Request) Location() *geo.Point {
	if that.LocationDenied || that.Latitude == nil || that.Longitude == nil {
		return nil
	}

	return &geo.Point{Latitude: *that.Latitude, Longitude: *that.Longitude}
}

type Payload struct {
	Entry  *entity.LobbyEntry   `json:"entry,omitempty"`
	Result *service.MatchResult `json:"result,omitempty"`
	Game   *entity.Game         `json:"game,omitempty"`
	Error  string               `json:"error,omitempty"`
}

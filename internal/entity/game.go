package entity

import (
	"fmt"
	"time"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
)

const (
	StatusActive = "active"
	StatusEnded  = "ended"

	PlayerX = "X"
	PlayerO = "O"
	Draw    = "Draw"

	EmptyCell = ""
)

const (
	OnlineMode = "online"
	LocalMode  = "local"
)

const (
	localPlayerX = "local:X"
	localPlayerO = "local:O"
)

var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Participant is a player's seat in a game.
type Participant struct {
	Marker string `json:"marker"`
}

// Game is one two-player session. Online games live in the shared store and are
// mutated only through single-document transactions; local games never leave the process.
type Game struct {
	ID          string                 `json:"id"`
	Players     map[string]Participant `json:"players"`
	Board       [9]string              `json:"board"`
	CurrentTurn string                 `json:"currentTurn"`
	Status      string                 `json:"status"`
	Winner      string                 `json:"winner,omitempty"`
	Moves       int                    `json:"moves"`
	Mode        string                 `json:"mode,omitempty"`
	NextGameID  string                 `json:"nextGameId,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	EndedAt     *time.Time             `json:"endedAt,omitempty"`
}

func NewGame(id, playerX, playerO string, now time.Time) *Game {
	return &Game{
		ID: id,
		Players: map[string]Participant{
			playerX: {Marker: PlayerX},
			playerO: {Marker: PlayerO},
		},
		Board:       [9]string{EmptyCell, EmptyCell, EmptyCell, EmptyCell, EmptyCell, EmptyCell, EmptyCell, EmptyCell, EmptyCell},
		CurrentTurn: PlayerX,
		Status:      StatusActive,
		Mode:        OnlineMode,
		CreatedAt:   now,
	}
}

// NewLocalGame creates a pass-and-play game for two people sharing one device.
func NewLocalGame(id string, now time.Time) *Game {
	game := NewGame(id, localPlayerX, localPlayerO, now)
	game.Mode = LocalMode

	return game
}

// LocalPlayerFor returns the synthetic participant id that owns marker in a local game.
func LocalPlayerFor(marker string) string {
	if marker == PlayerO {
		return localPlayerO
	}
	return localPlayerX
}

// CheckWinner returns the marker holding three equal cells on one of the winning
// lines, or an empty string when there is none.
func CheckWinner(board [9]string) string {
	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != EmptyCell && a == b && b == c {
			return a
		}
	}

	return ""
}

func IsBoardFull(board [9]string) bool {
	for _, cell := range board {
		if cell == EmptyCell {
			return false
		}
	}

	return true
}

// ApplyMove places the current player's marker on cell. The game is left untouched on error.
func (that *Game) ApplyMove(playerID string, cell int, now time.Time) error {
	participant, ok := that.Players[playerID]
	if !ok {
		return apperror.ErrNotAParticipant
	}

	if that.IsEnded() {
		return apperror.ErrSessionEnded
	}

	if cell < 0 || cell >= len(that.Board) {
		return fmt.Errorf("%w: cell %d", apperror.ErrIndexOutOfRange, cell)
	}

	if that.Board[cell] != EmptyCell {
		return apperror.ErrCellOccupied
	}

	if participant.Marker != that.CurrentTurn {
		return apperror.ErrNotYourTurn
	}

	that.Board[cell] = participant.Marker
	that.Moves++

	switch winner := CheckWinner(that.Board); {
	case winner != "":
		that.end(winner, now)
	case IsBoardFull(that.Board):
		that.end(Draw, now)
	default:
		that.CurrentTurn = OppositeMarker(that.CurrentTurn)
	}

	return nil
}

// Forfeit ends an active game in favour of the opponent of playerID.
func (that *Game) Forfeit(playerID string, now time.Time) error {
	participant, ok := that.Players[playerID]
	if !ok {
		return apperror.ErrNotAParticipant
	}

	if that.IsEnded() {
		return apperror.ErrSessionEnded
	}

	that.end(OppositeMarker(participant.Marker), now)

	return nil
}

// Rematch builds a fresh game with the same participants and markers.
func (that *Game) Rematch(id string, now time.Time) (*Game, error) {
	if !that.IsEnded() {
		return nil, apperror.ErrSessionNotEnded
	}

	var playerX, playerO string
	for playerID, participant := range that.Players {
		if participant.Marker == PlayerX {
			playerX = playerID
		} else {
			playerO = playerID
		}
	}

	game := NewGame(id, playerX, playerO, now)
	game.Mode = that.Mode

	return game, nil
}

func (that *Game) end(winner string, now time.Time) {
	endedAt := now
	that.Winner = winner
	that.Status = StatusEnded
	that.EndedAt = &endedAt
}

func (that *Game) IsEnded() bool {
	return that.Status == StatusEnded
}

func (that *Game) IsActive() bool {
	return that.Status == StatusActive
}

func (that *Game) IsLocal() bool {
	return that.Mode == LocalMode
}

func (that *Game) HasPlayer(playerID string) bool {
	_, ok := that.Players[playerID]
	return ok
}

// Outcomes maps every participant to the result they get from an ended game.
func (that *Game) Outcomes() map[string]string {
	if !that.IsEnded() {
		return nil
	}

	outcomes := make(map[string]string, len(that.Players))
	for playerID, participant := range that.Players {
		switch that.Winner {
		case Draw:
			outcomes[playerID] = OutcomeDraw
		case participant.Marker:
			outcomes[playerID] = OutcomeWin
		default:
			outcomes[playerID] = OutcomeLoss
		}
	}

	return outcomes
}

// Clone returns a deep copy so snapshots handed to subscribers cannot be mutated.
func (that *Game) Clone() *Game {
	clone := *that

	clone.Players = make(map[string]Participant, len(that.Players))
	for id, participant := range that.Players {
		clone.Players[id] = participant
	}

	if that.EndedAt != nil {
		endedAt := *that.EndedAt
		clone.EndedAt = &endedAt
	}

	return &clone
}

func OppositeMarker(marker string) string {
	if marker == PlayerX {
		return PlayerO
	}
	return PlayerX
}

func IsValidMarker(marker string) bool {
	return marker == PlayerX || marker == PlayerO
}

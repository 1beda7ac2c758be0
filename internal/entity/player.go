package entity

// Player tracks which game a player is currently seated in and the lobby entry
// that led to it.
type Player struct {
	ID      string `json:"id"`
	Mark    string `json:"mark,omitempty"`
	GameID  string `json:"gameId,omitempty"`
	EntryID string `json:"entryId,omitempty"`
}

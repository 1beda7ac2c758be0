package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/pkg"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

// client is one authenticated connection. gorilla allows a single concurrent
// writer, so every write goes through send.
type client struct {
	conn   *websocket.Conn
	userID string

	writeMu sync.Mutex

	mu            sync.Mutex
	entry         *entity.LobbyEntry
	stopMatching  context.CancelFunc
	subscriptions map[string]*pkg.Subscription[*entity.Game]

	// pass-and-play game; it lives only as long as the connection
	local *entity.Game
}

func newClient(conn *websocket.Conn, userID string) *client {
	return &client{
		conn:          conn,
		userID:        userID,
		subscriptions: make(map[string]*pkg.Subscription[*entity.Game]),
	}
}

func (that *client) send(action string, payload Payload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	if err = that.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err = that.conn.WriteJSON(Message{Action: action, Payload: raw}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (that *client) ping() error {
	return that.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// startMatching records the waiting entry. It fails when the client is already matching.
func (that *client) startMatching(entry *entity.LobbyEntry, stop context.CancelFunc) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.stopMatching != nil {
		return false
	}

	that.entry = entry
	that.stopMatching = stop

	return true
}

// finishMatching forgets the entry if it is still the current one.
func (that *client) finishMatching(entryID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.entry != nil && that.entry.ID == entryID {
		that.entry = nil
		that.stopMatching = nil
	}
}

// cancelMatching stops the wait loop and returns the entry it was waiting with.
func (that *client) cancelMatching() *entity.LobbyEntry {
	that.mu.Lock()
	defer that.mu.Unlock()

	entry := that.entry
	if that.stopMatching != nil {
		that.stopMatching()
	}

	that.entry = nil
	that.stopMatching = nil

	return entry
}

func (that *client) isMatching() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.stopMatching != nil
}

func (that *client) addSubscription(gameID string, subscription *pkg.Subscription[*entity.Game]) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.subscriptions[gameID]; ok {
		return false
	}

	that.subscriptions[gameID] = subscription

	return true
}

func (that *client) dropSubscription(gameID string) {
	that.mu.Lock()
	subscription, ok := that.subscriptions[gameID]
	delete(that.subscriptions, gameID)
	that.mu.Unlock()

	if ok {
		subscription.Close()
	}
}

func (that *client) dropSubscriptions() {
	that.mu.Lock()
	subscriptions := that.subscriptions
	that.subscriptions = make(map[string]*pkg.Subscription[*entity.Game])
	that.mu.Unlock()

	for _, subscription := range subscriptions {
		subscription.Close()
	}
}

// updateLocal applies change to a copy of the local game and keeps it only on success.
func (that *client) updateLocal(change func(game *entity.Game) (*entity.Game, error)) (*entity.Game, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	var current *entity.Game
	if that.local != nil {
		current = that.local.Clone()
	}

	next, err := change(current)
	if err != nil {
		return nil, err
	}

	that.local = next

	return next.Clone(), nil
}

package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/geo"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/pkg"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/service"
)

const cleanupTimeout = 5 * time.Second

type tokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

type gameManager interface {
	StartMatchmaking(ctx context.Context, playerID, marker string, location *geo.Point) (*entity.LobbyEntry, *service.MatchResult, error)
	WaitForMatch(ctx context.Context, entry *entity.LobbyEntry) (*service.MatchResult, error)
	CancelMatchmaking(ctx context.Context, playerID, entryID string) error

	CurrentGame(ctx context.Context, playerID string) (*entity.Game, error)
	GetGame(ctx context.Context, playerID, gameID string) (*entity.Game, error)
	MakeTurn(ctx context.Context, playerID, gameID string, cell int) (*entity.Game, error)
	ResetGame(ctx context.Context, playerID, gameID string) (*entity.Game, error)
	LeaveGame(ctx context.Context, playerID, gameID string) (*entity.Game, error)
	SubscribeGame(ctx context.Context, playerID, gameID string) (*pkg.Subscription[*entity.Game], error)
}

type handlerFunc func(ctx context.Context, client *client, message *Message) error

type Server struct {
	logger      *slog.Logger
	verifier    tokenVerifier
	gameManager gameManager

	upgrader websocket.Upgrader
	handlers map[string]handlerFunc
}

func New(logger *slog.Logger, verifier tokenVerifier, gameManager gameManager) *Server {
	server := &Server{
		logger:      logger.With("component", "websocket"),
		verifier:    verifier,
		gameManager: gameManager,

		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		handlers: make(map[string]handlerFunc),
	}

	server.handlers[actionMatchmakingStart] = server.handleMatchmakingStart
	server.handlers[actionMatchmakingCancel] = server.handleMatchmakingCancel
	server.handlers[actionConnect] = server.handleConnect
	server.handlers[actionGameSubscribe] = server.handleGameSubscribe
	server.handlers[actionGameTurn] = server.handleGameTurn
	server.handlers[actionGameReset] = server.handleGameReset
	server.handlers[actionGameLeave] = server.handleGameLeave
	server.handlers[actionLocalStart] = server.handleLocalStart
	server.handlers[actionLocalTurn] = server.handleLocalTurn
	server.handlers[actionLocalReset] = server.handleLocalReset

	return server
}

// Handler serves /ws until ctx is done.
func (that *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.upgradeToWebSocket(ctx, w, r)
	})

	return mux
}

// Start - starts WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	log := that.logger.With("method", "Start")

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     that.Handler(ctx),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shut down WebSocket server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// upgradeToWebSocket - authenticates the caller and upgrades the connection to WebSocket.
func (that *Server) upgradeToWebSocket(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "upgradeConnection")

	userID, err := that.verifier.VerifyToken(r.Context(), requestToken(r))
	if err != nil {
		log.Info("rejected connection", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}
	defer conn.Close()

	log = log.With("userID", userID)
	log.Info("WebSocket connection established")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := newClient(conn, userID)
	defer that.disconnect(connCtx, client)

	go that.keepAlive(connCtx, client)

	if err = that.handleMessages(connCtx, client); err != nil {
		log.Info("connection closed", "error", err)
	}
}

// handleMessages - processes messages from the client.
func (that *Server) handleMessages(ctx context.Context, client *client) error {
	log := that.logger.With("method", "handleMessages", "userID", client.userID)

	client.conn.SetReadLimit(maxMessageSize)
	if err := client.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return fmt.Errorf("failed to set read deadline: %w", err)
	}

	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}

		var message Message
		if err = json.Unmarshal(raw, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			that.sendError(client, actionError, errors.New("invalid message"))
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Info("unknown action", "action", message.Action)
			that.sendError(client, message.Action, errors.New("unknown action"))
			continue
		}

		if err = handler(ctx, client, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

func (that *Server) keepAlive(ctx context.Context, client *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := client.ping(); err != nil {
				return
			}
		}
	}
}

// disconnect stops matchmaking, which removes a still waiting entry, and drops game subscriptions.
func (that *Server) disconnect(ctx context.Context, client *client) {
	log := that.logger.With("method", "disconnect", "userID", client.userID)

	client.dropSubscriptions()

	entry := client.cancelMatching()
	if entry == nil {
		return
	}

	log.Debug("withdrawing lobby entry", "entryID", entry.ID)
	that.withdraw(ctx, client, entry)
}

// withdraw removes a still waiting entry the client can no longer follow.
func (that *Server) withdraw(ctx context.Context, client *client, entry *entity.LobbyEntry) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := that.gameManager.CancelMatchmaking(cleanupCtx, client.userID, entry.ID); err != nil {
		that.logger.Error("failed to cancel matchmaking", "method", "withdraw", "userID", client.userID, "entryID", entry.ID, "error", err)
	}
}

func (that *Server) sendError(client *client, action string, err error) {
	message := err.Error()
	if errors.Is(err, apperror.ErrStoreUnavailable) {
		message = apperror.ErrStoreUnavailable.Error()
	}

	if sendErr := client.send(action, Payload{Error: message}); sendErr != nil {
		that.logger.Error("failed to send error response", "action", action, "error", sendErr)
	}
}

func requestToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

	return strings.TrimSpace(token)
}

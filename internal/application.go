package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/config"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/repository"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/repository/storage"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/service"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/usecase"
	"github.com/rocketscienceinc/nearby-tictactoe/transport/rest"
	"github.com/rocketscienceinc/nearby-tictactoe/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedisStorage(ctx, redisAddrString, conf.Redis.Password, conf.Redis.DB)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	sqliteStorage, err := storage.NewSQLiteStorage(conf.SQLiteStoragePath)
	if err != nil {
		return fmt.Errorf("could not open sqlite storage: %w", err)
	}

	defer func() {
		if err = sqliteStorage.Close(); err != nil {
			log.Error("could not close sqlite storage", "error", err)
		}
	}()

	if err = sqliteStorage.Init(ctx); err != nil {
		return fmt.Errorf("could not init sqlite storage: %w", err)
	}

	lobbyRepo := repository.NewLobbyRepository(redisStorage.Connection)
	gameRepo := repository.NewGameRepository(redisStorage.Connection)
	playerRepo := repository.NewPlayerRepository(redisStorage.Connection)
	statsRepo := repository.NewStatsRepository(redisStorage.Connection)
	tokenRepo := repository.NewTokenRepository(redisStorage.Connection)
	userRepo := repository.NewUserRepository(sqliteStorage.Connection)

	statsService := service.NewStatsService(statsRepo)
	userService := service.NewUserService(userRepo)
	authService := service.NewAuthService(logger, conf.JWTSecretKey, conf.TokenTTL, userService, statsService, tokenRepo)
	lobbyService := service.NewLobbyService(logger, lobbyRepo)
	matchmaker := service.NewMatchmakerService(logger, matchmakerOptions(conf.Matchmaking), lobbyService, gameRepo, playerRepo)
	gamePlayService := service.NewGamePlayService(logger, gameRepo, playerRepo, statsService)
	playerService := service.NewPlayerService(playerRepo)

	gameManager := usecase.NewGameManager(logger, lobbyService, matchmaker, gamePlayService, statsService, playerService)

	// sweep entries whose owners never came back
	go matchmaker.RunExpiry(ctx)

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		httpServer := rest.New(logger, authService, gameManager)
		if httpErr := httpServer.Start(ctx, conf.HTTPPort); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, authService, gameManager)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

// matchmakerOptions converts the matchmaking section, keeping defaults for zero values.
func matchmakerOptions(section config.Matchmaking) service.MatchmakerOptions {
	options := service.DefaultMatchmakerOptions()

	if section.RadiusKm > 0 {
		options.RadiusKm = section.RadiusKm
	}
	if section.Window > 0 {
		options.Window = section.Window
	}
	if section.Timeout > 0 {
		options.Timeout = section.Timeout
	}
	if section.PollInterval > 0 {
		options.PollInterval = section.PollInterval
	}
	if section.ExpireAfter > 0 {
		options.ExpireAfter = section.ExpireAfter
	}
	if section.ExpireInterval > 0 {
		options.ExpireInterval = section.ExpireInterval
	}
	if section.ClaimGrace > 0 {
		options.ClaimGrace = section.ClaimGrace
	}

	return options
}

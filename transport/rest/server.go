package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	logger *slog.Logger

	ping     PingHandler
	auth     AuthHandler
	handlers Handlers

	verifier tokenVerifier
}

func New(logger *slog.Logger, auth authService, gameManager gameManager) *Server {
	return &Server{
		logger:   logger,
		ping:     NewPingHandler(logger),
		auth:     NewAuthHandler(logger, auth),
		handlers: NewHandlers(logger, gameManager),
		verifier: auth,
	}
}

// Routes builds the router. Everything except ping and the auth endpoints needs a bearer token.
func (that *Server) Routes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(that.logger))
	router.Use(middleware.Recoverer)

	router.Get("/ping", that.ping.PingHandler)

	router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", that.auth.SignUp)
		r.Post("/signin", that.auth.SignIn)
		r.With(bearerAuth(that.verifier)).Post("/signout", that.auth.SignOut)
	})

	router.Group(func(r chi.Router) {
		r.Use(bearerAuth(that.verifier))

		r.Route("/matchmaking", func(r chi.Router) {
			r.Post("/", that.handlers.StartMatchmaking)
			r.Post("/{entryId}/attempt", that.handlers.AttemptMatch)
			r.Delete("/{entryId}", that.handlers.CancelMatchmaking)
		})

		r.Get("/games/current", that.handlers.CurrentGame)
		r.Route("/games/{gameId}", func(r chi.Router) {
			r.Get("/", that.handlers.GetGame)
			r.Post("/moves", that.handlers.MakeTurn)
			r.Post("/reset", that.handlers.ResetGame)
			r.Post("/forfeit", that.handlers.LeaveGame)
		})

		r.Get("/stats", that.handlers.GetStats)
	})

	return router
}

// Start - runs the HTTP server until ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	log := that.logger.With("method", "Start")

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shut down HTTP server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

package rest

import (
	"log/slog"
	"net/http"
)

// PingHandler answers liveness checks from load balancers and the mobile client.
type PingHandler interface {
	PingHandler(w http.ResponseWriter, r *http.Request)
}

type pingHandler struct {
	logger *slog.Logger
}

func NewPingHandler(logger *slog.Logger) PingHandler {
	return &pingHandler{
		logger: logger,
	}
}

func (that *pingHandler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	// the status is already out, a failed write can only be logged
	if _, err := w.Write([]byte("pong")); err != nil {
		that.logger.Warn("failed to write ping response", "method", "PingHandler", "remoteAddr", r.RemoteAddr, "error", err)
	}
}

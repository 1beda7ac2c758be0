package rest

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
)

type tokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

type authService interface {
	tokenVerifier

	SignUp(ctx context.Context, email, password string) (*entity.User, string, error)
	SignIn(ctx context.Context, email, password string) (*entity.User, string, error)
	SignOut(ctx context.Context, token string) error
}

type AuthHandler interface {
	SignUp(w http.ResponseWriter, r *http.Request)
	SignIn(w http.ResponseWriter, r *http.Request)
	SignOut(w http.ResponseWriter, r *http.Request)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

type authHandler struct {
	logger *slog.Logger

	auth authService
}

func NewAuthHandler(logger *slog.Logger, auth authService) AuthHandler {
	return &authHandler{
		logger: logger.With("component", "authHandler"),
		auth:   auth,
	}
}

func (that *authHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	user, token, err := that.auth.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		that.logger.Error("sign up failed", "error", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, authResponse{UserID: user.ID, Token: token})
}

func (that *authHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	user, token, err := that.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		that.logger.Info("sign in rejected", "error", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, authResponse{UserID: user.ID, Token: token})
}

func (that *authHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	token, _ := bearerToken(r)

	if err := that.auth.SignOut(r.Context(), token); err != nil {
		that.logger.Error("sign out failed", "error", err)
		respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type userIDKey struct{}

// bearerAuth rejects requests without a valid bearer token and stores the user id in the context.
func bearerAuth(verifier tokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				respondError(w, apperror.ErrUnauthorized)
				return
			}

			userID, err := verifier.VerifyToken(r.Context(), token)
			if err != nil {
				respondError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}

	return strings.TrimSpace(token), true
}

func userIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey{}).(string)
	return userID
}

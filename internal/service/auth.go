package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/entity"
	"github.com/rocketscienceinc/nearby-tictactoe/internal/pkg"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

type AuthService interface {
	SignUp(ctx context.Context, email, password string) (*entity.User, string, error)
	SignIn(ctx context.Context, email, password string) (*entity.User, string, error)
	SignOut(ctx context.Context, token string) error
	// VerifyToken returns the user id the token was issued to.
	VerifyToken(ctx context.Context, token string) (string, error)
}

type tokenRepo interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type authServiceImpl struct {
	logger    *slog.Logger
	now       func() time.Time
	hashCost  int
	secretKey string
	tokenTTL  time.Duration

	userService  UserService
	statsService StatsService
	tokenRepo    tokenRepo
}

func NewAuthService(
	logger *slog.Logger,
	secretKey string,
	tokenTTL time.Duration,
	userService UserService,
	statsService StatsService,
	tokenRepo tokenRepo,
) AuthService {
	return &authServiceImpl{
		logger:       logger,
		now:          time.Now,
		hashCost:     bcrypt.DefaultCost,
		secretKey:    secretKey,
		tokenTTL:     tokenTTL,
		userService:  userService,
		statsService: statsService,
		tokenRepo:    tokenRepo,
	}
}

func (that *authServiceImpl) SignUp(ctx context.Context, email, password string) (*entity.User, string, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), that.hashCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entity.User{
		ID:           pkg.GenerateUserID(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    that.now().UTC(),
	}

	if err = that.userService.SaveUser(ctx, user); err != nil {
		return nil, "", err
	}

	if err = that.statsService.InitStats(ctx, user.ID); err != nil {
		return nil, "", err
	}

	token, err := that.GenerateToken(user.ID)
	if err != nil {
		return nil, "", err
	}

	that.logger.Info("user signed up", "method", "SignUp", "userID", user.ID)

	return user, token, nil
}

func (that *authServiceImpl) SignIn(ctx context.Context, email, password string) (*entity.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, "", apperror.ErrInvalidCredentials
	}

	user, err := that.userService.GetUserByEmail(ctx, email)
	if isNotFound(err) {
		return nil, "", apperror.ErrInvalidCredentials
	}

	if err != nil {
		return nil, "", err
	}

	if err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", apperror.ErrInvalidCredentials
	}

	token, err := that.GenerateToken(user.ID)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

func (that *authServiceImpl) SignOut(ctx context.Context, token string) error {
	claims, err := that.parse(token)
	if err != nil {
		return err
	}

	ttl := claims.ExpiresAt.Sub(that.now())
	if err = that.tokenRepo.Revoke(ctx, claims.ID, ttl); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	return nil
}

func (that *authServiceImpl) VerifyToken(ctx context.Context, token string) (string, error) {
	claims, err := that.parse(token)
	if err != nil {
		return "", err
	}

	revoked, err := that.tokenRepo.IsRevoked(ctx, claims.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check token: %w", err)
	}

	if revoked {
		return "", fmt.Errorf("%w: token revoked", apperror.ErrUnauthorized)
	}

	return claims.Subject, nil
}

func (that *authServiceImpl) GenerateToken(userID string) (string, error) {
	now := that.now()

	claims := jwt.RegisteredClaims{
		ID:        pkg.GenerateTokenID(),
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(that.tokenTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(that.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

func (that *authServiceImpl) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}

	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(that.secretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(that.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrUnauthorized, err)
	}

	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: incomplete token", apperror.ErrUnauthorized)
	}

	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("%w: email and password are required", apperror.ErrInvalidCredentials)
	}

	if !strings.Contains(email, "@") {
		return fmt.Errorf("%w: malformed email", apperror.ErrInvalidCredentials)
	}

	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", apperror.ErrInvalidCredentials, minPasswordLength)
	}

	return nil
}

// IsAuthError reports whether err should be answered with 401.
func IsAuthError(err error) bool {
	return errors.Is(err, apperror.ErrUnauthorized) || errors.Is(err, apperror.ErrInvalidCredentials)
}

package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/splax/hackhub/internal/domain"
	"github.com/splax/hackhub/internal/repository"
	"github.com/splax/hackhub/pkg/config"
	"github.com/splax/hackhub/pkg/crypto"
	jwtpkg "github.com/splax/hackhub/pkg/jwt"
)

var errTokenRequired = errors.New("token required")

// Service handles authentication workflows.
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
	cfg    config.APIConfig
}

// New constructs a Service.
func New(users repository.UserRepository, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{users: users, logger: logger, cfg: cfg}
}

// TokenPair contains access and refresh tokens. ExpiresIn is in seconds.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Signup registers a new user.
func (s Service) Signup(ctx context.Context, email, password string) (*domain.User, TokenPair, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, TokenPair{}, err
	}
	hash, err := crypto.HashPassword(password)
	if err != nil {
		return nil, TokenPair{}, domain.Invalid("%s", err.Error())
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, TokenPair{}, domain.ErrEmailTaken
		}
		return nil, TokenPair{}, err
	}
	tokens, err := s.issueTokens(user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return user, tokens, nil
}

// Login authenticates a user and returns tokens.
func (s Service) Login(ctx context.Context, email, password string) (*domain.User, TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, TokenPair{}, domain.ErrBadCredentials
		}
		return nil, TokenPair{}, err
	}
	if err := crypto.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, TokenPair{}, domain.ErrBadCredentials
	}
	tokens, err := s.issueTokens(user.ID)
	if err != nil {
		return nil, TokenPair{}, err
	}
	s.logger.Info("user logged in", "user_id", user.ID)
	return user, tokens, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (s Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := jwtpkg.Parse(strings.TrimSpace(refreshToken), jwtpkg.PurposeRefresh, s.cfg.JWTSecret)
	if err != nil {
		return TokenPair{}, domain.ErrInvalidToken
	}
	if _, err := s.users.GetUserByID(ctx, claims.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return TokenPair{}, domain.ErrInvalidToken
		}
		return TokenPair{}, err
	}
	return s.issueTokens(claims.UserID)
}

// Authorize validates a bearer token and returns the associated user.
func (s Service) Authorize(ctx context.Context, token string) (*domain.User, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, errTokenRequired
	}
	claims, err := jwtpkg.Parse(trimmed, jwtpkg.PurposeAccess, s.cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	return s.users.GetUserByID(ctx, claims.UserID)
}

func (s Service) issueTokens(userID string) (TokenPair, error) {
	access, err := jwtpkg.GenerateToken(userID, jwtpkg.PurposeAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := jwtpkg.GenerateToken(userID, jwtpkg.PurposeRefresh, s.cfg.JWTSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

func normalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", domain.Invalid("a valid email address is required")
	}
	return trimmed, nil
}

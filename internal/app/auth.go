// internal/app/auth.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/homeroom/internal/access"
	"github.com/shrimpsizemoose/homeroom/internal/models"
)

// UserSource loads the account behind an id.
type UserSource interface {
	Whois(ctx context.Context, id int64) (*models.User, error)
}

// Auth turns a request into an actor. With auth enabled it reads a bearer
// token and resolves it through Redis; without it the caller names itself in
// a header, which is only meant for local development.
type Auth struct {
	enabled      bool
	tokens       *TokenManager
	tokenHeader  string
	userIDHeader string
	users        UserSource
}

func NewAuth(config *Config, users UserSource) (*Auth, error) {
	a := &Auth{
		enabled:      config.Server.EnableAuth,
		tokenHeader:  config.Auth.TokenHeader,
		userIDHeader: config.API.UserIDHeader,
		users:        users,
	}
	if !a.enabled {
		logger.Info.Printf("Auth is disabled, trusting %s header", a.userIDHeader)
		return a, nil
	}

	opt, err := redis.ParseURL(config.Auth.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.tokens = NewTokenManager(client, config.SessionTTL())
	return a, nil
}

func (a *Auth) Enabled() bool {
	return a.enabled
}

func (a *Auth) Close() error {
	if a.tokens != nil {
		return a.tokens.Close()
	}
	return nil
}

func (a *Auth) bearer(r *http.Request) (string, error) {
	authHeader := r.Header.Get(a.tokenHeader)
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", fmt.Errorf("%w: invalid authorization header format", models.ErrPermissionDenied)
	}
	return strings.TrimPrefix(authHeader, "Bearer "), nil
}

// Identify resolves the actor making the request.
func (a *Auth) Identify(r *http.Request) (access.Actor, error) {
	ctx := r.Context()

	if !a.enabled {
		raw := r.Header.Get(a.userIDHeader)
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return access.Actor{}, fmt.Errorf("%w: missing or bad %s header", models.ErrPermissionDenied, a.userIDHeader)
		}
		user, err := a.users.Whois(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			return access.Actor{}, fmt.Errorf("%w: unknown user %d", models.ErrPermissionDenied, id)
		}
		if err != nil {
			return access.Actor{}, err
		}
		return access.Actor{UserID: user.ID, Role: user.Role}, nil
	}

	token, err := a.bearer(r)
	if err != nil {
		return access.Actor{}, err
	}
	session, err := a.tokens.FetchSession(ctx, token)
	if err != nil {
		logger.Debug.Printf("Session lookup failed: %v", err)
		return access.Actor{}, err
	}
	return access.Actor{UserID: session.UserID, Role: session.Role}, nil
}

// Login opens a session for an authenticated user. Without auth there is no
// session store and the caller is told to use the id header.
func (a *Auth) Login(ctx context.Context, user *models.User) (*models.Session, error) {
	if !a.enabled {
		return &models.Session{UserID: user.ID, Role: user.Role}, nil
	}
	return a.tokens.CreateSession(ctx, user)
}

func (a *Auth) Logout(r *http.Request) error {
	if !a.enabled {
		return nil
	}
	token, err := a.bearer(r)
	if err != nil {
		return err
	}
	return a.tokens.RevokeSession(r.Context(), token)
}

// Forget drops every session of a user. Failures are logged: the account
// change that triggered it has already happened.
func (a *Auth) Forget(ctx context.Context, userID int64) {
	if !a.enabled {
		return
	}
	if err := a.tokens.RevokeUser(ctx, userID); err != nil {
		logger.Error.Printf("Failed to revoke sessions of user %d: %v", userID, err)
	}
}

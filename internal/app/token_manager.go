package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shrimpsizemoose/homeroom/internal/models"
)

const (
	timeFormat         = "2006-01-02 15:04:05"
	sessionKeyTpl      = "session:%s"       // session:${token}
	userSessionsKeyTpl = "user_sessions:%d" // user_sessions:${user_id}
	tokenPrefix        = "sk-hmrm-"
)

// TokenManager keeps login sessions in Redis. Each session is a hash that
// expires after ttl without use.
type TokenManager struct {
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

func NewTokenManager(redis *redis.Client, ttl time.Duration) *TokenManager {
	return &TokenManager{redis: redis, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

func generateToken() (string, error) {
	randomBytes := make([]byte, 16)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return tokenPrefix + hex.EncodeToString(randomBytes), nil
}

// CreateSession issues a fresh token for user.
func (tm *TokenManager) CreateSession(ctx context.Context, user *models.User) (*models.Session, error) {
	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	now := tm.now()
	key := fmt.Sprintf(sessionKeyTpl, token)
	userKey := fmt.Sprintf(userSessionsKeyTpl, user.ID)

	pipe := tm.redis.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"user_id":               user.ID,
		"role":                  string(user.Role),
		"request_count":         0,
		"last_request_dttm_utc": now.Format(timeFormat),
		"created_dttm_utc":      now.Format(timeFormat),
	})
	pipe.Expire(ctx, key, tm.ttl)
	pipe.SAdd(ctx, userKey, token)
	pipe.Expire(ctx, userKey, tm.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create session: %w: %w", models.ErrStorage, err)
	}

	return &models.Session{
		Token:     token,
		UserID:    user.ID,
		Role:      user.Role,
		CreatedAt: now,
	}, nil
}

// FetchSession resolves a token and slides its expiry. An unknown or expired
// token is a permission error.
func (tm *TokenManager) FetchSession(ctx context.Context, token string) (*models.Session, error) {
	key := fmt.Sprintf(sessionKeyTpl, token)

	values, err := tm.redis.HGetAll(ctx, key).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to fetch session: %w: %w", models.ErrStorage, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: session not found", models.ErrPermissionDenied)
	}

	userID, err := strconv.ParseInt(values["user_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed session", models.ErrPermissionDenied)
	}
	createdTime, _ := time.Parse(timeFormat, values["created_dttm_utc"])

	// the user's token set must outlive every token in it, or RevokeUser
	// misses sessions that were kept alive by use
	userKey := fmt.Sprintf(userSessionsKeyTpl, userID)
	pipe := tm.redis.Pipeline()
	pipe.HIncrBy(ctx, key, "request_count", 1)
	pipe.HSet(ctx, key, "last_request_dttm_utc", tm.now().Format(timeFormat))
	pipe.Expire(ctx, key, tm.ttl)
	pipe.SAdd(ctx, userKey, token)
	pipe.Expire(ctx, userKey, tm.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to update session stats: %w: %w", models.ErrStorage, err)
	}

	return &models.Session{
		Token:     token,
		UserID:    userID,
		Role:      models.Role(values["role"]),
		CreatedAt: createdTime,
	}, nil
}

func (tm *TokenManager) RevokeSession(ctx context.Context, token string) error {
	key := fmt.Sprintf(sessionKeyTpl, token)

	userID, err := tm.redis.HGet(ctx, key, "user_id").Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w: %w", models.ErrStorage, err)
	}

	pipe := tm.redis.Pipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, "user_sessions:"+userID, token)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to revoke session: %w: %w", models.ErrStorage, err)
	}
	return nil
}

// RevokeUser drops every session of a user, e.g. after a role change or
// account removal.
func (tm *TokenManager) RevokeUser(ctx context.Context, userID int64) error {
	userKey := fmt.Sprintf(userSessionsKeyTpl, userID)

	tokens, err := tm.redis.SMembers(ctx, userKey).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to list sessions of user %d: %w: %w", userID, models.ErrStorage, err)
	}

	keys := make([]string, 0, len(tokens)+1)
	for _, token := range tokens {
		keys = append(keys, fmt.Sprintf(sessionKeyTpl, token))
	}
	keys = append(keys, userKey)

	if err := tm.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to revoke sessions of user %d: %w: %w", userID, models.ErrStorage, err)
	}
	return nil
}

func (tm *TokenManager) Close() error {
	if tm.redis != nil {
		return tm.redis.Close()
	}
	return nil
}

package auth

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Limiter tracks failed logins per identity.
type Limiter interface {
	Limited(ctx context.Context, username string) (bool, error)
	RecordFailure(ctx context.Context, username string) error
}

// RedisLimiter is a sliding-window failure counter stored in Redis sorted
// sets, one set per normalised username scored by failure time.
type RedisLimiter struct {
	client      *redis.Client
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// NewRedisLimiter constructs a limiter allowing maxAttempts failures per window.
func NewRedisLimiter(client *redis.Client, maxAttempts int, window time.Duration) *RedisLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &RedisLimiter{client: client, maxAttempts: maxAttempts, window: window, now: time.Now}
}

// Limited reports whether username exhausted its attempts in the current window.
func (l *RedisLimiter) Limited(ctx context.Context, username string) (bool, error) {
	key := l.key(username)
	now := l.now()
	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", l.cutoff(now))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("auth: limiter check: %w", err)
	}
	return card.Val() >= int64(l.maxAttempts), nil
}

// RecordFailure appends a failure timestamp for username.
func (l *RedisLimiter) RecordFailure(ctx context.Context, username string) error {
	key := l.key(username)
	now := l.now()
	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	pipe.ZRemRangeByScore(ctx, key, "-inf", l.cutoff(now))
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("auth: limiter record: %w", err)
	}
	return nil
}

// cutoff is the inclusive upper score bound of expired entries.
func (l *RedisLimiter) cutoff(now time.Time) string {
	return strconv.FormatInt(now.Add(-l.window).UnixNano(), 10)
}

func (l *RedisLimiter) key(username string) string {
	return "login:failures:" + normaliseUsername(username)
}

func normaliseUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

var _ Limiter = (*RedisLimiter)(nil)

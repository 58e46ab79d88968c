package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrTooManyAttempts = errors.New("too many attempts")

// Client is the slice of the redis client the limiter uses.
// *redis.Client satisfies it.
type Client interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Limiter counts attempts per subject in Redis with a rolling expiry window.
// Join-code guessing is the main thing it protects against.
type Limiter struct {
	redis Client
}

func New(client Client) *Limiter {
	return &Limiter{redis: client}
}

// CheckJoin allows up to 10 group-join attempts per user per 15 minutes.
func (l *Limiter) CheckJoin(ctx context.Context, subject string) error {
	return l.check(ctx, fmt.Sprintf("join_attempts:%s", subject), 10, 15*time.Minute)
}

// CheckLogin allows up to 5 login attempts per username per 15 minutes.
func (l *Limiter) CheckLogin(ctx context.Context, subject string) error {
	return l.check(ctx, fmt.Sprintf("login_attempts:%s", subject), 5, 15*time.Minute)
}

func (l *Limiter) check(ctx context.Context, key string, max int64, window time.Duration) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("ratelimit: failed to increment %s: %w", key, err)
	}

	if count == 1 {
		l.redis.Expire(ctx, key, window)
	}

	if count > max {
		return ErrTooManyAttempts
	}
	return nil
}

// Reset clears the counter after a successful attempt.
func (l *Limiter) Reset(ctx context.Context, operation, subject string) error {
	return l.redis.Del(ctx, fmt.Sprintf("%s_attempts:%s", operation, subject)).Err()
}

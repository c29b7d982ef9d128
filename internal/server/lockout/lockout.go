// Package lockout implements the brute-force login defense: a per-identity
// failed-attempt counter with a sliding window, and a lock marker with its
// own TTL, both stored in Redis. TTL expiry is the sole unlock mechanism
// apart from an explicit administrative unlock.
//
// Every Redis failure is handled fail-open: when the store is unreachable,
// login availability wins over brute-force protection. This is a deliberate
// availability-over-security tradeoff; degraded operation is logged, never
// hidden.
package lockout

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/carecircle/carecircle/internal/logging"
)

// Config holds the fixed lockout parameters.
type Config struct {
	Threshold     int           // failed attempts within the window before locking
	AttemptWindow time.Duration // sliding window during which failures accumulate
	LockDuration  time.Duration // how long the lock marker lives
}

// Status is the result of a lock check.
type Status struct {
	Locked     bool
	RetryAfter time.Duration // remaining lock time, zero when not locked
}

// Result describes the state after recording a failed attempt.
type Result struct {
	Locked            bool
	AttemptCount      int
	RemainingAttempts int // -1 when the counter was unavailable
	LockDuration      time.Duration
}

// Counter tracks failed login attempts per normalized identity.
type Counter struct {
	redis  redis.UniversalClient
	config Config
	log    logging.Logger
}

func NewCounter(redisClient redis.UniversalClient, cfg Config, log logging.Logger) *Counter {
	return &Counter{redis: redisClient, config: cfg, log: log}
}

func (c *Counter) attemptKey(identity string) string {
	return "la:" + identity
}

func (c *Counter) lockKey(identity string) string {
	return "ll:" + identity
}

// IsLocked reports whether the identity is currently locked and for how much
// longer. Store errors fail open: the identity is reported unlocked.
func (c *Counter) IsLocked(ctx context.Context, identity string) Status {
	ttl, err := c.redis.TTL(ctx, c.lockKey(identity)).Result()
	if err != nil {
		c.failOpen(ctx, "lock check", err)
		return Status{}
	}
	// TTL is negative when the key is absent or has no expiry.
	if ttl <= 0 {
		return Status{}
	}
	return Status{Locked: true, RetryAfter: ttl}
}

// RecordFailure atomically increments the failure counter. On the first
// failure the attempt window TTL is set so old failures age out. When the
// count reaches the threshold, the identity is locked: the lock marker is
// written with the lock TTL and the counter is deleted so a fresh window
// starts after unlock.
func (c *Counter) RecordFailure(ctx context.Context, identity string) Result {
	key := c.attemptKey(identity)

	count, err := c.redis.Incr(ctx, key).Result()
	if err != nil {
		c.failOpen(ctx, "attempt increment", err)
		return Result{RemainingAttempts: -1}
	}

	if count == 1 {
		if err := c.redis.Expire(ctx, key, c.config.AttemptWindow).Err(); err != nil {
			c.failOpen(ctx, "attempt window expire", err)
			return Result{AttemptCount: int(count), RemainingAttempts: -1}
		}
	}

	if count >= int64(c.config.Threshold) {
		if err := c.redis.Set(ctx, c.lockKey(identity), "1", c.config.LockDuration).Err(); err != nil {
			c.failOpen(ctx, "lock marker set", err)
			return Result{AttemptCount: int(count), RemainingAttempts: -1}
		}
		if err := c.redis.Del(ctx, key).Err(); err != nil {
			// The lock is already in place; a surviving counter only
			// shortens the next window.
			c.failOpen(ctx, "attempt counter delete", err)
		}
		return Result{
			Locked:       true,
			AttemptCount: int(count),
			LockDuration: c.config.LockDuration,
		}
	}

	return Result{
		AttemptCount:      int(count),
		RemainingAttempts: c.config.Threshold - int(count),
	}
}

// ResetOnSuccess deletes the failure counter after a successful login. It
// deliberately leaves any lock marker in place: a locked identity stays
// locked even if a valid credential races in.
func (c *Counter) ResetOnSuccess(ctx context.Context, identity string) {
	if err := c.redis.Del(ctx, c.attemptKey(identity)).Err(); err != nil {
		c.failOpen(ctx, "counter reset", err)
	}
}

// ManualUnlock removes both the counter and the lock marker. Administrative
// escape hatch.
func (c *Counter) ManualUnlock(ctx context.Context, identity string) {
	if err := c.redis.Del(ctx, c.attemptKey(identity), c.lockKey(identity)).Err(); err != nil {
		c.failOpen(ctx, "manual unlock", err)
	}
}

// Available probes the lockout store.
func (c *Counter) Available(ctx context.Context) bool {
	return c.redis.Ping(ctx).Err() == nil
}

func (c *Counter) failOpen(ctx context.Context, op string, err error) {
	c.log.Warn(ctx, "lockout store unavailable, failing open",
		"degraded_mode", "lockout", "op", op, "error", err)
}

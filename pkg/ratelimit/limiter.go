// Package ratelimit throttles clients per IP. The Redis limiter keeps
// one sliding window per client so replicas share a budget; the local
// limiter is the fallback when no Redis is configured.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/ledgerd/ledgerd/pkg/logger"
)

// Result is the outcome of one rate limit check
type Result struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// Limiter answers whether a client may proceed. Implementations fail
// open: an unreachable backend must never take the API down with it.
type Limiter interface {
	Allow(ctx context.Context, clientID string) Result
}

// SlidingWindowLimiter is a Redis backed sliding window counter. Each
// client holds a sorted set of request timestamps; requests older than
// the window are trimmed on every check.
type SlidingWindowLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
	logger *logger.Logger
}

// NewSlidingWindowLimiter creates a limiter allowing limit requests per window
func NewSlidingWindowLimiter(rdb *redis.Client, limit int64, window time.Duration, log *logger.Logger) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{redis: rdb, limit: limit, window: window, logger: log}
}

// Allow checks and records one request for clientID
func (l *SlidingWindowLimiter) Allow(ctx context.Context, clientID string) Result {
	key := "ratelimit:" + clientID
	now := time.Now()
	windowStart := now.Add(-l.window)

	pipe := l.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, l.window*2)

	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("Rate limit check failed, allowing request", "error", err)
		return Result{Allowed: true, Remaining: -1}
	}

	count := countCmd.Val()
	remaining := l.limit - count - 1
	if remaining < 0 {
		remaining = 0
	}

	if count >= l.limit {
		return Result{Allowed: false, Remaining: remaining, RetryAfter: l.window}
	}
	return Result{Allowed: true, Remaining: remaining}
}

// LocalLimiter is an in-process token bucket per client. State is not
// shared between replicas, so each replica grants the full budget.
type LocalLimiter struct {
	mu       sync.Mutex
	clients  map[string]*localClient
	limit    rate.Limit
	burst    int
	lastSeen time.Duration
}

type localClient struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewLocalLimiter creates a limiter allowing perMinute requests per client
func NewLocalLimiter(perMinute int) *LocalLimiter {
	return &LocalLimiter{
		clients:  make(map[string]*localClient),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    perMinute,
		lastSeen: 10 * time.Minute,
	}
}

// Allow checks one request for clientID
func (l *LocalLimiter) Allow(_ context.Context, clientID string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	client, ok := l.clients[clientID]
	if !ok {
		// Piggyback stale entry cleanup on cache misses.
		for id, c := range l.clients {
			if now.Sub(c.seen) > l.lastSeen {
				delete(l.clients, id)
			}
		}
		client = &localClient{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[clientID] = client
	}
	client.seen = now

	if !client.limiter.Allow() {
		return Result{Allowed: false, RetryAfter: time.Minute}
	}
	return Result{Allowed: true, Remaining: -1}
}

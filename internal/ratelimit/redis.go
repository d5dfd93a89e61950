package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// allowScript records one attempt atomically and returns {count, pttl}.
// Denied attempts are taken back so they do not consume budget.
var allowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local window = tonumber(ARGV[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], window)
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
if count > tonumber(ARGV[2]) then
  redis.call('DECR', KEYS[1])
end
return {count, ttl}
`)

// RedisLimiter shares fixed windows between instances. Each key holds a
// counter whose TTL is the window.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	max    int
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client redis.UniversalClient, prefix string, maxAttempts int, d time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: prefix,
		max:    maxAttempts,
		window: d,
		now:    time.Now,
	}
}

func (l *RedisLimiter) key(id string) string {
	return fmt.Sprintf("ratelimit:%s:%s", l.prefix, id)
}

func (l *RedisLimiter) Allow(ctx context.Context, id string) (Result, error) {
	vals, err := allowScript.Run(ctx, l.client, []string{l.key(id)}, l.window.Milliseconds(), l.max).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("failed to record rate limit attempt: %w", err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("unexpected rate limit script reply: %v", vals)
	}
	count, ttl := vals[0], time.Duration(vals[1])*time.Millisecond

	resetAt := l.now().Add(ttl)
	if count > int64(l.max) {
		return Result{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}
	return Result{Allowed: true, Remaining: l.max - int(count), ResetAt: resetAt}, nil
}

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/varaprasadreddy9676/integration-control-plane-sub005/pkg/models"
)

// checkAndIncrementScript performs the window check and increment in one
// round trip. KEYS[1] is the window key; ARGV[1] max requests, ARGV[2] window
// length in milliseconds, ARGV[3] now in unix milliseconds. Returns
// {allowed, count, windowEndMillis}.
const checkAndIncrementScript = `
local key = KEYS[1]
local max = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])

local window_end = tonumber(redis.call('HGET', key, 'window_end') or '0')
if now_ms >= window_end then
  window_end = now_ms + window_ms
  redis.call('HSET', key, 'window_end', window_end, 'count', 0)
  redis.call('PEXPIRE', key, window_ms)
end

local count = tonumber(redis.call('HGET', key, 'count') or '0')
if count >= max then
  return {0, count, window_end}
end

count = redis.call('HINCRBY', key, 'count', 1)
return {1, count, window_end}
`

// RedisLimiter is the shared limiter for multi-instance deployments. The
// script is preloaded at construction and invoked by SHA.
type RedisLimiter struct {
	client    redis.UniversalClient
	scriptSHA string
	now       func() time.Time
}

// NewRedisLimiter preloads the window script.
func NewRedisLimiter(ctx context.Context, client redis.UniversalClient) (*RedisLimiter, error) {
	sha, err := client.ScriptLoad(ctx, checkAndIncrementScript).Result()
	if err != nil {
		return nil, fmt.Errorf("loading rate limit script: %w", err)
	}
	return &RedisLimiter{client: client, scriptSHA: sha, now: time.Now}, nil
}

// CheckAndIncrement implements Limiter.
func (l *RedisLimiter) CheckAndIncrement(ctx context.Context, integrationID string, tenantID int64, spec models.RateLimitSpec) (models.RateLimitDecision, error) {
	if !spec.Enabled {
		return allowAll(), nil
	}

	now := l.now()
	key := fmt.Sprintf("ratelimit:%s:%d", integrationID, tenantID)
	windowMs := int64(spec.WindowSeconds) * 1000

	raw, err := l.client.EvalSha(ctx, l.scriptSHA, []string{key},
		spec.MaxRequests, windowMs, now.UnixMilli()).Result()
	if err == redis.Nil || (err != nil && redis.HasErrorPrefix(err, "NOSCRIPT")) {
		// Script cache flushed, fall back to a full EVAL.
		raw, err = l.client.Eval(ctx, checkAndIncrementScript, []string{key},
			spec.MaxRequests, windowMs, now.UnixMilli()).Result()
	}
	if err != nil {
		return models.RateLimitDecision{}, fmt.Errorf("rate limit eval: %w", err)
	}

	reply, ok := raw.([]any)
	if !ok || len(reply) != 3 {
		return models.RateLimitDecision{}, fmt.Errorf("rate limit script returned %T", raw)
	}
	allowed := asInt64(reply[0]) == 1
	count := asInt64(reply[1])
	resetAt := time.UnixMilli(asInt64(reply[2]))

	if !allowed {
		recordDenial(integrationID)
		return models.RateLimitDecision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}, nil
	}
	remaining := spec.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return models.RateLimitDecision{Allowed: true, Remaining: remaining, ResetAt: resetAt}, nil
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		var out int64
		_, _ = fmt.Sscan(n, &out)
		return out
	default:
		return 0
	}
}

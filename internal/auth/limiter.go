package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/mukund1606/taxmann-project/pkg/util/errorutil"
)

// SignInLimiter throttles credential submissions per client IP with a Redis
// token bucket. Redis failures let the request through.
type SignInLimiter struct {
	rdb      *redis.Client
	capacity int
	window   time.Duration
	logger   *zap.Logger
}

// NewSignInLimiter builds the limiter; a nil client disables throttling.
func NewSignInLimiter(rdb *redis.Client, capacity int, window time.Duration, logger *zap.Logger) *SignInLimiter {
	if capacity <= 0 {
		capacity = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignInLimiter{rdb: rdb, capacity: capacity, window: window, logger: logger}
}

// Handle rejects the request with RATE_LIMITED once the bucket is empty.
func (l *SignInLimiter) Handle(c *fiber.Ctx) error {
	if l == nil || l.rdb == nil {
		return c.Next()
	}
	key := "rl:signin:" + c.IP()
	allowed, remaining, retryAfter := l.take(c.UserContext(), key, time.Now().UnixMilli())
	if !allowed {
		if retryAfter > 0 {
			c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
		}
		return apperrors.NewTooManyRequests("too many sign-in attempts", nil)
	}
	c.Set("X-RateLimit-Remaining", fmt.Sprintf("%.0f", remaining))
	return c.Next()
}

var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local window = tonumber(ARGV[3])

local bucket = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(bucket[1])
local ts = tonumber(bucket[2])

if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end

local delta = now - ts
if delta < 0 then delta = 0 end

tokens = math.min(capacity, tokens + (delta * capacity) / window)

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("HSET", key, "tokens", tokens, "ts", now)
redis.call("PEXPIRE", key, window)

local retryAfterMs = 0
if allowed == 0 then
  retryAfterMs = math.ceil((1 - tokens) * window / capacity)
end

return {allowed, tostring(tokens), retryAfterMs}
`)

func (l *SignInLimiter) take(ctx context.Context, key string, nowMs int64) (bool, float64, int64) {
	res, err := tokenBucketScript.Run(ctx, l.rdb, []string{key}, nowMs, l.capacity, l.window.Milliseconds()).Slice()
	if err != nil || len(res) != 3 {
		l.logger.Warn("sign-in limiter unavailable", zap.Error(err))
		return true, float64(l.capacity), 0
	}
	allowed, _ := res[0].(int64)
	remaining, _ := strconv.ParseFloat(fmt.Sprint(res[1]), 64)
	retryMs, _ := res[2].(int64)
	var retryAfterSec int64
	if retryMs > 0 {
		retryAfterSec = (retryMs + 999) / 1000
	}
	return allowed == 1, remaining, retryAfterSec
}

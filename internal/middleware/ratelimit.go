package middleware

import (
    "context"
    "fmt"
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/iliyamo/elearning-backend/internal/config"
)

// tokenBucket takes one token from the bucket at KEYS[1].
// ARGV: now_ms, capacity, refill_tokens, interval_ms, ttl_s.
// Returns {allowed (0|1), tokens left, ms until the next refill}.
var tokenBucket = redis.NewScript(`
local now, cap, step, every, ttl =
    tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local b = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens, ts = tonumber(b[1]), tonumber(b[2])
if not tokens or not ts then
    tokens, ts = cap, now
end
local n = math.floor(math.max(0, now - ts) / every)
if n > 0 then
    tokens = math.min(cap, tokens + n * step)
    ts = ts + n * every
end
local ok, wait = 0, 0
if tokens > 0 then
    ok, tokens = 1, tokens - 1
else
    wait = math.max(0, every - (now - ts))
end
redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', ts)
redis.call('EXPIRE', KEYS[1], ttl)
return {ok, tokens, wait}
`)

// bucketState is the decoded script reply.
type bucketState struct {
    Allowed   bool
    Remaining int64
    RetryMs   int64
}

// RetryAfter is the Retry-After value in whole seconds.
func (s bucketState) RetryAfter() int {
    secs := int(math.Ceil(float64(s.RetryMs) / 1000.0))
    if secs < 0 {
        return 0
    }
    return secs
}

// NewTokenBucket limits requests per key (see buildRateKey) to cfg.Capacity
// tokens refilled at cfg.RefillTokens per cfg.RefillInterval.  Redis
// failures let the request through.  A nil client or a disabled config
// yields a pass-through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log *zap.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            st, err := take(c.Request().Context(), rdb, cfg, key)
            if err != nil {
                log.Warn("ratelimit: bucket unavailable", zap.String("key", key), zap.Error(err))
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(st.Remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if st.Allowed {
                return next(c)
            }

            h.Set("Retry-After", strconv.Itoa(st.RetryAfter()))
            if cfg.Debug {
                log.Info("ratelimit: block", zap.String("key", key), zap.Int64("retry_ms", st.RetryMs))
            }
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "success":     false,
                "message":     "Too many requests, please try again later",
                "retry_after": st.RetryAfter(),
            })
        }
    }
}

func take(ctx context.Context, rdb redis.Scripter, cfg config.RateLimitConfig, key string) (bucketState, error) {
    reply, err := tokenBucket.Run(ctx, rdb, []string{key},
        time.Now().UnixMilli(),
        cfg.Capacity,
        cfg.RefillTokens,
        cfg.RefillInterval.Milliseconds(),
        int64(cfg.TTL/time.Second),
    ).Result()
    if err != nil {
        return bucketState{}, err
    }
    return decodeBucket(reply)
}

func decodeBucket(reply any) (bucketState, error) {
    arr, ok := reply.([]any)
    if !ok || len(arr) != 3 {
        return bucketState{}, fmt.Errorf("unexpected script reply %#v", reply)
    }
    return bucketState{
        Allowed:   toInt64(arr[0]) == 1,
        Remaining: toInt64(arr[1]),
        RetryMs:   toInt64(arr[2]),
    }, nil
}

func toInt64(v any) int64 {
    switch t := v.(type) {
    case int64:
        return t
    case int:
        return int64(t)
    case float64:
        return int64(t)
    case string:
        n, _ := strconv.ParseInt(t, 10, 64)
        return n
    }
    return 0
}

// buildRateKey composes the bucket key from cfg.KeyStrategy, an underscore
// separated list of "ip", "user" and "route" (default: all three).
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    parts := []string{cfg.Prefix}
    strategy := strings.ToLower(cfg.KeyStrategy)
    if strategy == "" {
        strategy = "ip_user_route"
    }
    for _, dim := range strings.Split(strategy, "_") {
        switch dim {
        case "ip":
            ip := c.RealIP()
            if ip == "" {
                ip = "unknown"
            }
            parts = append(parts, "ip", ip)
        case "user":
            parts = append(parts, "user", userID(c))
        case "route":
            parts = append(parts, "route", c.Request().Method+" "+c.Path())
        }
    }
    return strings.Join(parts, ":")
}

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

    "github.com/iliyamo/chat-application/internal/config"
)

// takeToken refills the bucket at KEYS[1] for the whole intervals elapsed
// since its last refill and then tries to take one token.
// ARGV: now_ms, capacity, refill_tokens, interval_ms, ttl_s.
// Returns {allowed (0|1), tokens left, ms until the next refill}.
var takeToken = redis.NewScript(`
local now = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill = tonumber(ARGV[3])
local interval = tonumber(ARGV[4])

local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens'))
local last = tonumber(redis.call('HGET', KEYS[1], 'last_ms'))
if tokens == nil or last == nil then
    tokens, last = capacity, now
end

local steps = 0
if interval > 0 then
    steps = math.floor(math.max(0, now - last) / interval)
end
if steps > 0 then
    tokens = math.min(capacity, tokens + steps * refill)
    last = last + steps * interval
end

local allowed, wait = 0, 0
if tokens >= 1 then
    allowed, tokens = 1, tokens - 1
else
    wait = math.max(0, interval - (now - last))
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'last_ms', last)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[5]))
return {allowed, tokens, wait}
`)

type verdict struct {
    allowed    bool
    remaining  int64
    retryAfter time.Duration
}

type tokenBucket struct {
    cfg config.RateLimitConfig
    rdb *redis.Client
}

func (b tokenBucket) take(ctx context.Context, key string) (verdict, error) {
    res, err := takeToken.Run(ctx, b.rdb, []string{key},
        time.Now().UnixMilli(),
        b.cfg.Capacity,
        b.cfg.RefillTokens,
        b.cfg.RefillInterval.Milliseconds(),
        int64(b.cfg.TTL/time.Second),
    ).Int64Slice()
    if err != nil {
        return verdict{}, err
    }
    if len(res) != 3 {
        return verdict{}, fmt.Errorf("rate limit script returned %d values", len(res))
    }
    return verdict{allowed: res[0] == 1, remaining: res[1], retryAfter: time.Duration(res[2]) * time.Millisecond}, nil
}

// NewTokenBucket throttles requests per key (see buildRateKey) with a token
// bucket stored in Redis.  When Redis fails the request is let through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, logger *zap.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return passThrough
    }
    b := tokenBucket{cfg: cfg, rdb: rdb}
    limit := strconv.Itoa(cfg.Capacity)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            v, err := b.take(c.Request().Context(), key)
            if err != nil {
                logger.Warn("rate limit unavailable", zap.String("key", key), zap.Error(err))
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", limit)
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(v.remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if v.allowed {
                return next(c)
            }

            secs := int(math.Ceil(v.retryAfter.Seconds()))
            h.Set("Retry-After", strconv.Itoa(secs))
            if cfg.Debug {
                logger.Debug("throttled", zap.String("key", key), zap.Duration("retry_after", v.retryAfter))
            }
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "detail": fmt.Sprintf("Request was throttled. Expected available in %d seconds.", secs),
            })
        }
    }
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// rateKeyParts lists, per KeyStrategy, which request attributes form the key.
var rateKeyParts = map[string][]string{
    "ip":            {"ip"},
    "user":          {"user"},
    "route":         {"route"},
    "ip_user":       {"ip", "user"},
    "ip_route":      {"ip", "route"},
    "user_route":    {"user", "route"},
    "ip_user_route": {"ip", "user", "route"},
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    names, ok := rateKeyParts[strings.ToLower(cfg.KeyStrategy)]
    if !ok {
        names = rateKeyParts["ip_user_route"]
    }
    parts := []string{cfg.Prefix}
    for _, n := range names {
        switch n {
        case "ip":
            ip := c.RealIP()
            if ip == "" {
                ip = "unknown"
            }
            parts = append(parts, n, ip)
        case "user":
            parts = append(parts, n, userKey(c))
        case "route":
            parts = append(parts, n, c.Request().Method+" "+c.Path())
        }
    }
    return strings.Join(parts, ":")
}

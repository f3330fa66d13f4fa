package middleware

import (
    "bytes"
    "context"
    "crypto/sha1"
    "encoding/hex"
    "encoding/json"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/chat-application/internal/config"
)

const defaultCacheTTL = 5 * time.Minute

// Response headers that are never replayed from the cache.
var uncachedHeaders = map[string]bool{
    "Content-Length":        true,
    "Set-Cookie":            true,
    "X-Cache":               true,
    echo.HeaderXRequestID:   true,
    "X-Ratelimit-Limit":     true,
    "X-Ratelimit-Remaining": true,
    "X-Ratelimit-Key":       true,
}

// cacheEntry is the stored form of one response.
type cacheEntry struct {
    Status int         `json:"status"`
    Header http.Header `json:"header"`
    Body   []byte      `json:"body"`
}

func marshalEntry(status int, header http.Header, body []byte) ([]byte, error) {
    kept := make(http.Header, len(header))
    for k, vals := range header {
        if uncachedHeaders[http.CanonicalHeaderKey(k)] {
            continue
        }
        kept[k] = append([]string(nil), vals...)
    }
    return json.Marshal(cacheEntry{Status: status, Header: kept, Body: body})
}

func unmarshalEntry(bs []byte) (cacheEntry, bool) {
    var e cacheEntry
    if err := json.Unmarshal(bs, &e); err != nil || e.Status == 0 {
        return cacheEntry{}, false
    }
    return e, true
}

// teeWriter forwards the response and keeps a copy of up to limit bytes.
type teeWriter struct {
    http.ResponseWriter
    status   int
    buf      bytes.Buffer
    limit    int
    overflow bool
}

func (w *teeWriter) WriteHeader(code int) {
    w.status = code
    w.ResponseWriter.WriteHeader(code)
}

func (w *teeWriter) Write(b []byte) (int, error) {
    if !w.overflow {
        if w.limit > 0 && w.buf.Len()+len(b) > w.limit {
            w.overflow = true
            w.buf.Reset()
        } else {
            w.buf.Write(b)
        }
    }
    return w.ResponseWriter.Write(b)
}

// cacheKeyFrom builds "<prefix>:<route>:<hash>".  The route stays readable
// so that CachePurger can drop every entry of a route with one pattern;
// the hash covers the caller and, depending on KeyStrategy, method and query.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context) string {
    r := c.Request()
    uid := userKey(c)

    var parts []string
    switch strings.ToLower(cfg.KeyStrategy) {
    case "user_route":
        parts = []string{"user", uid}
    case "method_user_route_query":
        parts = []string{"method", r.Method, "user", uid, "q", r.URL.RawQuery}
    default: // "user_route_query"
        parts = []string{"user", uid, "q", r.URL.RawQuery}
    }

    sum := sha1.Sum([]byte(strings.Join(parts, ":")))
    return cfg.Prefix + ":" + c.Path() + ":" + hex.EncodeToString(sum[:])
}

// NewRedisCache replays successful responses from Redis.  Only 200
// responses without cookies, no larger than MaxBodyBytes, are stored.
// It must run after Auth so that entries are keyed by caller.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return passThrough
    }
    ttl := cfg.TTL
    if ttl <= 0 {
        ttl = defaultCacheTTL
    }
    methods := cfg.Methods()

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !methods[c.Request().Method] {
                return next(c)
            }
            ctx := c.Request().Context()
            key := cacheKeyFrom(cfg, c)
            res := c.Response()

            if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
                if entry, ok := unmarshalEntry(bs); ok {
                    for k, vals := range entry.Header {
                        for _, v := range vals {
                            res.Header().Add(k, v)
                        }
                    }
                    res.Header().Set("X-Cache", "HIT")
                    res.WriteHeader(entry.Status)
                    _, err := res.Write(entry.Body)
                    return err
                }
            }

            tw := &teeWriter{ResponseWriter: res.Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
            res.Writer = tw
            res.Header().Set("X-Cache", "MISS")
            if err := next(c); err != nil {
                return err
            }

            if tw.status != http.StatusOK || tw.overflow || len(res.Header().Values("Set-Cookie")) > 0 {
                return nil
            }
            if payload, err := marshalEntry(tw.status, res.Header(), tw.buf.Bytes()); err == nil {
                // The request context may already be done.
                _ = rdb.Set(context.WithoutCancel(ctx), key, payload, ttl).Err()
            }
            return nil
        }
    }
}

// CachePurger drops cached responses after writes that change them.
type CachePurger struct {
    rdb    *redis.Client
    prefix string
}

// NewCachePurger returns a purger; with a nil client every call is a no-op.
func NewCachePurger(cfg config.CacheConfig, rdb *redis.Client) *CachePurger {
    if !cfg.Enabled {
        rdb = nil
    }
    return &CachePurger{rdb: rdb, prefix: cfg.Prefix}
}

// PurgeRoute deletes every entry cached for route (an Echo path such as
// "/api/users/").
func (p *CachePurger) PurgeRoute(ctx context.Context, route string) error {
    if p == nil || p.rdb == nil {
        return nil
    }
    iter := p.rdb.Scan(ctx, 0, p.prefix+":"+route+":*", 100).Iterator()
    var keys []string
    for iter.Next(ctx) {
        keys = append(keys, iter.Val())
    }
    if err := iter.Err(); err != nil {
        return err
    }
    if len(keys) == 0 {
        return nil
    }
    return p.rdb.Del(ctx, keys...).Err()
}

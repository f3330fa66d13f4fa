package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/chat-application/internal/config"
	"github.com/iliyamo/chat-application/internal/session"
	"github.com/iliyamo/chat-application/internal/utils"
)

const testSecret = "test-secret"

func whoami(c echo.Context) error {
	uid, _ := UserID(c)
	return c.String(http.StatusOK, strconv.FormatUint(uid, 10))
}

func newAuthEcho(sessions *session.Manager) *echo.Echo {
	e := echo.New()
	e.GET("/api/me/", whoami, Auth(testSecret, sessions))
	return e
}

func TestAuthBearer(t *testing.T) {
	req := require.New(t)
	e := newAuthEcho(nil)
	tok, err := utils.NewAccessToken(testSecret, 7, 5)
	req.NoError(err)

	r := httptest.NewRequest(http.MethodGet, "/api/me/", nil)
	r.Header.Set("Authorization", "Bearer "+tok.Token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, r)
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("7", rec.Body.String())
}

func TestAuthRejects(t *testing.T) {
	other, err := utils.NewAccessToken("other-secret", 7, 5)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		detail string
	}{
		{"missing", "", msgNoCredentials},
		{"basic scheme", "Basic abc", msgInvalidToken},
		{"garbage", "Bearer nope", msgInvalidToken},
		{"wrong secret", "Bearer " + other.Token, msgInvalidToken},
	}
	e := newAuthEcho(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			r := httptest.NewRequest(http.MethodGet, "/api/me/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, r)
			req.Equal(http.StatusUnauthorized, rec.Code)
			req.Contains(rec.Body.String(), tt.detail)
		})
	}
}

func TestAuthSessionFallback(t *testing.T) {
	req := require.New(t)
	sessions := session.NewManager("0123456789abcdef0123456789abcdef", "chat_session", false, zap.NewNop())
	login := httptest.NewRecorder()
	req.NoError(sessions.Login(login, httptest.NewRequest(http.MethodPost, "/auth/login/", nil), 9))

	r := httptest.NewRequest(http.MethodGet, "/api/me/", nil)
	for _, ck := range login.Result().Cookies() {
		r.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	newAuthEcho(sessions).ServeHTTP(rec, r)
	req.Equal(http.StatusOK, rec.Code)
	req.Equal("9", rec.Body.String())
}

func TestCacheKeyPartitionsByUser(t *testing.T) {
	req := require.New(t)
	e := echo.New()
	cfg := config.CacheConfig{Prefix: "cache", KeyStrategy: "user_route_query"}

	keyFor := func(uid uint64, query string) string {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/users/?"+query, nil), httptest.NewRecorder())
		c.SetPath("/api/users/")
		if uid != 0 {
			SetUserID(c, uid)
		}
		return cacheKeyFrom(cfg, c)
	}

	a := keyFor(1, "")
	req.True(strings.HasPrefix(a, "cache:/api/users/:"))
	req.Equal(a, keyFor(1, ""))
	req.NotEqual(a, keyFor(2, ""))
	req.NotEqual(a, keyFor(1, "x=1"))
	req.NotEqual(a, keyFor(0, ""))
}

func TestCacheEntryDropsVolatileHeaders(t *testing.T) {
	req := require.New(t)
	hdr := http.Header{
		"Content-Type":          {"application/json"},
		"Set-Cookie":            {"s=1"},
		"X-Request-Id":          {"abc"},
		"X-Ratelimit-Remaining": {"3"},
	}
	bs, err := marshalEntry(http.StatusOK, hdr, []byte(`[{"id":1}]`))
	req.NoError(err)

	entry, ok := unmarshalEntry(bs)
	req.True(ok)
	req.Equal(http.StatusOK, entry.Status)
	req.Equal(http.Header{"Content-Type": {"application/json"}}, entry.Header)
	req.Equal(`[{"id":1}]`, string(entry.Body))

	_, ok = unmarshalEntry(bs[:5])
	req.False(ok)
}

func TestTeeWriterOverflow(t *testing.T) {
	req := require.New(t)
	rec := httptest.NewRecorder()
	w := &teeWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, err := w.Write([]byte("abc"))
	req.NoError(err)
	req.False(w.overflow)
	_, err = w.Write([]byte("def"))
	req.NoError(err)
	req.True(w.overflow)
	req.Equal("abcdef", rec.Body.String())
	req.Zero(w.buf.Len())
}

func TestBuildRateKey(t *testing.T) {
	req := require.New(t)
	e := echo.New()
	r := httptest.NewRequest(http.MethodGet, "/api/messages/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	c := e.NewContext(r, httptest.NewRecorder())
	c.SetPath("/api/messages/")

	cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "ip_user_route"}
	req.Equal("rl:ip:10.0.0.1:user:anon:route:GET /api/messages/", buildRateKey(cfg, c))

	SetUserID(c, 5)
	cfg.KeyStrategy = "user"
	req.Equal("rl:user:5", buildRateKey(cfg, c))

	cfg.KeyStrategy = "unknown"
	req.Equal("rl:ip:10.0.0.1:user:5:route:GET /api/messages/", buildRateKey(cfg, c))
}

func TestDisabledRedisMiddlewaresPassThrough(t *testing.T) {
	req := require.New(t)
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1, RefillInterval: time.Second}, nil, zap.NewNop()),
		NewRedisCache(config.CacheConfig{Enabled: true, RawMethods: "GET"}, nil))

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		req.Equal(http.StatusOK, rec.Code)
		req.Empty(rec.Header().Get("X-Cache"))
	}

	req.NoError(NewCachePurger(config.CacheConfig{Enabled: true}, nil).PurgeRoute(context.Background(), "/api/users/"))
}

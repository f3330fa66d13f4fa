package router

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/chat-application/internal/handler"
)

// apiMiddleware holds the per-route middleware of /api.
type apiMiddleware struct {
	auth  echo.MiddlewareFunc
	limit echo.MiddlewareFunc
	cache echo.MiddlewareFunc
}

type chatHandlers struct {
	users    *handler.UserHandler
	groups   *handler.GroupHandler
	messages *handler.MessageHandler
	loc      *time.Location
}

// RegisterAuth registers the token endpoints under /api/auth.  Signup,
// login, refresh and logout are public; me requires authentication.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, mw apiMiddleware) {
	g := e.Group("/api/auth")
	g.POST("/signup/", a.Signup, mw.limit)
	g.POST("/login/", a.Login, mw.limit)
	// Rotates the refresh token.
	g.POST("/refresh/", a.Refresh, mw.limit)
	// Revokes one refresh token, or all of the bearer's tokens.
	g.POST("/logout/", a.Logout, mw.limit)
	// Auth runs before the limiter so the bucket is keyed by user.
	g.GET("/me/", a.Me, mw.auth, mw.limit)
}

// RegisterChat registers the authenticated chat API.
func RegisterChat(e *echo.Echo, h chatHandlers, mw apiMiddleware) {
	g := e.Group("/api")
	protected := []echo.MiddlewareFunc{mw.auth, mw.limit}
	with := func(extra ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
		return append(append([]echo.MiddlewareFunc{}, protected...), extra...)
	}

	g.GET("/users/", h.users.List, with(mw.cache)...)

	g.GET("/groups/", h.groups.List, protected...)
	g.POST("/groups/", h.groups.Create, protected...)

	g.GET("/messages/", h.messages.List, protected...)
	g.POST("/messages/", h.messages.Create, protected...)
	// Registered ahead of /:id/ so "export" is never read as an id.
	g.GET("/messages/export/", h.messages.Export(h.loc), protected...)
	g.PATCH("/messages/:id/", h.messages.Update, protected...)
	g.DELETE("/messages/:id/", h.messages.Delete, protected...)
}

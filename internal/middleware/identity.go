package middleware

// identity.go defines helpers shared across middleware files and handlers.
// Auth stores the caller's id in the Echo context under userIDKey; the
// rate limiter and the response cache use it to partition their keys.

import (
    "strconv"

    "github.com/labstack/echo/v4"
)

const userIDKey = "user_id"

// SetUserID records the authenticated caller on the context.
func SetUserID(c echo.Context, id uint64) { c.Set(userIDKey, id) }

// UserID returns the authenticated caller set by Auth.
func UserID(c echo.Context) (uint64, bool) {
    id, ok := c.Get(userIDKey).(uint64)
    return id, ok && id != 0
}

// userKey renders the caller for use in a Redis key.  It returns "anon"
// when no user is authenticated.
func userKey(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return strconv.FormatUint(id, 10)
    }
    return "anon"
}

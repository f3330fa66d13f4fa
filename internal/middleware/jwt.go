package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/chat-application/internal/session"
    "github.com/iliyamo/chat-application/internal/utils"
)

const (
    msgNoCredentials = "Authentication credentials were not provided."
    msgInvalidToken  = "Given token not valid for any token type"
)

// Auth returns an Echo middleware that authenticates API requests.  A
// Bearer access token is checked first; when the Authorization header is
// absent the form-login session cookie is accepted instead.  On success
// the caller's id is available to handlers through UserID.
//
// sessions may be nil, in which case only bearer tokens are accepted.
func Auth(secret string, sessions *session.Manager) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        // The returned handler is invoked for each incoming HTTP request.
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if auth == "" {
                // No header: fall back to the session set by /auth/login/.
                if sessions != nil {
                    if uid := sessions.UserID(c.Request()); uid != 0 {
                        SetUserID(c, uid)
                        return next(c)
                    }
                }
                return c.JSON(http.StatusUnauthorized, echo.Map{"detail": msgNoCredentials})
            }
            // Any other scheme is rejected.
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"detail": msgInvalidToken})
            }
            raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

            // Signature, expiry and token type are all verified here.
            uid, err := utils.ParseAccessToken(secret, raw)
            if err != nil {
                return c.JSON(http.StatusUnauthorized, echo.Map{"detail": msgInvalidToken})
            }
            SetUserID(c, uid)
            // Call the next handler in the chain and return its result.
            return next(c)
        }
    }
}

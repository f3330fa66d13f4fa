package handler // declare the package name; contains HTTP handlers

import (
    "context"      // bounded database ping
    "database/sql" // the pool being checked
    "net/http"     // net/http provides status codes and response helpers
    "time"

    "github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Health is the health-check endpoint used by load balancers and
// monitoring systems.  It writes plain text "ok" when the database answers
// a ping within a second and 503 otherwise.  A nil db skips the ping.
func Health(db *sql.DB) echo.HandlerFunc {
    return func(c echo.Context) error {
        if db != nil {
            ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second)
            defer cancel()
            if err := db.PingContext(ctx); err != nil {
                return c.String(http.StatusServiceUnavailable, "database unavailable")
            }
        }
        return c.String(http.StatusOK, "ok") // write "ok" with a 200 OK status; String writes plain text
    }
}

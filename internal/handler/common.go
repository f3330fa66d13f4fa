package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/chat-application/internal/middleware"
	"github.com/iliyamo/chat-application/internal/model"
	"github.com/iliyamo/chat-application/internal/repository"
)

const (
	msgNoProfile    = "Custom user not found for this account"
	msgInvalidInput = "Invalid input."
	dbTimeout       = 5 * time.Second
	maxNameLen      = 150
)

// detail writes the {"detail": msg} error body used by every endpoint.
func detail(c echo.Context, status int, msg string) error {
	return c.JSON(status, echo.Map{"detail": msg})
}

// fieldErrors writes a 400 validation response naming the offending fields.
func fieldErrors(c echo.Context, errs map[string]string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"detail": msgInvalidInput, "errors": errs})
}

// internalError logs err and writes a generic 500.
func internalError(c echo.Context, log *zap.Logger, op string, err error) error {
	log.Error(op, zap.Error(err), zap.String("path", c.Path()))
	return detail(c, http.StatusInternalServerError, "internal server error")
}

func dbCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// caller loads the authenticated user's row.  found is false when the token
// subject no longer resolves to a user; the response has then been written.
func caller(c echo.Context, users *repository.UserRepo, log *zap.Logger) (model.User, bool, error) {
	uid, ok := middleware.UserID(c)
	if !ok {
		return model.User{}, false, detail(c, http.StatusUnauthorized, "Authentication credentials were not provided.")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	u, err := users.GetByID(ctx, uid)
	if errors.Is(err, repository.ErrUserNotFound) {
		return model.User{}, false, detail(c, http.StatusBadRequest, msgNoProfile)
	}
	if err != nil {
		return model.User{}, false, internalError(c, log, "load caller", err)
	}
	return u, true, nil
}

// conversationFilter reads the user_id/group_id query pair shared by the
// message list and the CSV export.  Exactly one must be a positive integer.
type conversationFilter struct {
	UserID  uint64
	GroupID uint64
}

func parseConversationFilter(c echo.Context) (conversationFilter, string) {
	rawUser := strings.TrimSpace(c.QueryParam("user_id"))
	rawGroup := strings.TrimSpace(c.QueryParam("group_id"))
	switch {
	case rawUser == "" && rawGroup == "":
		return conversationFilter{}, "user_id or group_id is required"
	case rawUser != "" && rawGroup != "":
		return conversationFilter{}, "provide only one of user_id or group_id"
	}
	var f conversationFilter
	if rawUser != "" {
		id, err := strconv.ParseUint(rawUser, 10, 64)
		if err != nil || id == 0 {
			return conversationFilter{}, "user_id must be a positive integer"
		}
		f.UserID = id
		return f, ""
	}
	id, err := strconv.ParseUint(rawGroup, 10, 64)
	if err != nil || id == 0 {
		return conversationFilter{}, "group_id must be a positive integer"
	}
	f.GroupID = id
	return f, ""
}

// absoluteURL turns a MEDIA_URL path into scheme://host/path for the
// current request.
func absoluteURL(c echo.Context, p string) string {
	if p == "" {
		return ""
	}
	return c.Scheme() + "://" + c.Request().Host + p
}

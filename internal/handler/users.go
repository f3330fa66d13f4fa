package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/chat-application/internal/repository"
	"github.com/iliyamo/chat-application/internal/storage"
)

// UserHandler serves the directory of chat users.
type UserHandler struct {
	Users *repository.UserRepo
	Media *storage.Local
	Log   *zap.Logger
}

func NewUserHandler(u *repository.UserRepo, media *storage.Local, log *zap.Logger) *UserHandler {
	return &UserHandler{Users: u, Media: media, Log: log}
}

// List returns every user except the caller, ordered by id.
func (h *UserHandler) List(c echo.Context) error {
	me, ok, err := caller(c, h.Users, h.Log)
	if !ok {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	users, err := h.Users.ListExcept(ctx, me.ID)
	if err != nil {
		return internalError(c, h.Log, "list users", err)
	}
	return c.JSON(http.StatusOK, newSerializer(c, h.Media).users(users))
}

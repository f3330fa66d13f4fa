package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/chat-application/internal/repository"
	"github.com/iliyamo/chat-application/internal/storage"
)

// GroupHandler lists and creates groups.
type GroupHandler struct {
	Users  *repository.UserRepo
	Groups *repository.GroupRepo
	Media  *storage.Local
	Log    *zap.Logger
}

func NewGroupHandler(u *repository.UserRepo, g *repository.GroupRepo, media *storage.Local, log *zap.Logger) *GroupHandler {
	return &GroupHandler{Users: u, Groups: g, Media: media, Log: log}
}

const (
	msgMemberIDs = "Expected a list of integers."
	msgNotString = "Not a valid string."
)

var errMemberIDs = errors.New(msgMemberIDs)

// memberIDList decodes a JSON list whose items are numbers or numeric
// strings.
type memberIDList []uint64

func (l *memberIDList) UnmarshalJSON(b []byte) error {
	var raw []flexID
	if err := json.Unmarshal(b, &raw); err != nil {
		return errMemberIDs
	}
	ids := make([]uint64, 0, len(raw))
	for _, f := range raw {
		if !f.Valid {
			return errMemberIDs
		}
		ids = append(ids, f.ID)
	}
	*l = ids
	return nil
}

type createGroupReq struct {
	Name      string       `json:"name" form:"name" validate:"required,max=150,nomarkup"`
	MemberIDs memberIDList `json:"member_ids" form:"member_ids"`
}

// bindFieldError maps a Bind failure to the request field that caused it.
func bindFieldError(err error) map[string]string {
	if errors.Is(err, errMemberIDs) {
		return map[string]string{"member_ids": msgMemberIDs}
	}
	var ute *json.UnmarshalTypeError
	if errors.As(err, &ute) {
		switch ute.Field {
		case "name":
			return map[string]string{"name": msgNotString}
		case "member_ids":
			return map[string]string{"member_ids": msgMemberIDs}
		}
	}
	return nil
}

// List returns the groups the caller belongs to.
func (h *GroupHandler) List(c echo.Context) error {
	me, ok, err := caller(c, h.Users, h.Log)
	if !ok {
		return err
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	groups, err := h.Groups.ListForMember(ctx, me.ID)
	if err != nil {
		return internalError(c, h.Log, "list groups", err)
	}
	return c.JSON(http.StatusOK, newSerializer(c, h.Media).groups(groups))
}

// Create makes a group owned by the caller.  The caller is always a member.
func (h *GroupHandler) Create(c echo.Context) error {
	me, ok, err := caller(c, h.Users, h.Log)
	if !ok {
		return err
	}
	var req createGroupReq
	if err := c.Bind(&req); err != nil {
		if errs := bindFieldError(err); errs != nil {
			return fieldErrors(c, errs)
		}
		return detail(c, http.StatusBadRequest, msgInvalidInput)
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := c.Validate(&req); err != nil {
		return fieldErrors(c, validationMessages(err))
	}

	ctx, cancel := dbCtx(c)
	defer cancel()
	g, err := h.Groups.CreateWithMembers(ctx, req.Name, me.ID, []uint64(req.MemberIDs))
	if errors.Is(err, repository.ErrGroupNameExists) {
		return fieldErrors(c, map[string]string{"name": "group with this name already exists."})
	}
	if err != nil {
		return internalError(c, h.Log, "create group", err)
	}
	return c.JSON(http.StatusCreated, newSerializer(c, h.Media).group(g))
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/chat-application/internal/model"
	"github.com/iliyamo/chat-application/internal/queue"
	"github.com/iliyamo/chat-application/internal/repository"
	"github.com/iliyamo/chat-application/internal/storage"
)

const (
	msgExactlyOneTarget = "Provide either to_user or to_group (but not both)."
	msgNotMember        = "Not a member of this group"
	msgNotFoundOrDenied = "Not found or not permitted"
	maxReactionLen      = 50
	publishTimeout      = 2 * time.Second
)

// EventPublisher delivers message lifecycle events.  A nil publisher
// disables events.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.MessageEvent) error
}

// MessageHandler serves /api/messages/.
type MessageHandler struct {
	Users    *repository.UserRepo
	Groups   *repository.GroupRepo
	Messages *repository.MessageRepo
	Media    *storage.Local
	Events   EventPublisher
	Log      *zap.Logger
	// PurgeDeleted clears reaction and attachment on delete and removes
	// the stored file.
	PurgeDeleted bool
}

func NewMessageHandler(u *repository.UserRepo, g *repository.GroupRepo, m *repository.MessageRepo,
	media *storage.Local, events EventPublisher, log *zap.Logger) *MessageHandler {
	return &MessageHandler{Users: u, Groups: g, Messages: m, Media: media, Events: events, Log: log}
}

// List returns the conversation selected by user_id or group_id, oldest first.
func (h *MessageHandler) List(c echo.Context) error {
	me, ok, err := caller(c, h.Users, h.Log)
	if !ok {
		return err
	}
	f, msg := parseConversationFilter(c)
	if msg != "" {
		return detail(c, http.StatusBadRequest, msg)
	}
	msgs, err := h.conversation(c, me.ID, f)
	if err != nil {
		return internalError(c, h.Log, "list messages", err)
	}
	return c.JSON(http.StatusOK, newSerializer(c, h.Media).messages(msgs))
}

func (h *MessageHandler) conversation(c echo.Context, callerID uint64, f conversationFilter) ([]model.Message, error) {
	ctx, cancel := dbCtx(c)
	defer cancel()
	if f.UserID != 0 {
		return h.Messages.ListConversation(ctx, callerID, f.UserID)
	}
	return h.Messages.ListGroup(ctx, f.GroupID, callerID)
}

// flexID accepts a JSON number, a numeric string or null.  Zero means unset.
type flexID struct {
	ID    uint64
	Valid bool // false when the value was not an integer
}

func (f *flexID) UnmarshalJSON(b []byte) error {
	f.Valid = true
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		f.ID = 0
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		f.ID = 0
		return nil
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		f.Valid = false
		return nil
	}
	f.ID = id
	return nil
}

func parseFormID(s string) flexID {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return flexID{Valid: true}
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return flexID{}
	}
	return flexID{ID: id, Valid: true}
}

type createMessageReq struct {
	Text     string  `json:"text"`
	ToUser   *flexID `json:"to_user"`
	ToGroup  *flexID `json:"to_group"`
	Reaction string  `json:"reaction"`
	file     *multipart.FileHeader
}

func (r createMessageReq) toUser() flexID {
	if r.ToUser == nil {
		return flexID{Valid: true}
	}
	return *r.ToUser
}

func (r createMessageReq) toGroup() flexID {
	if r.ToGroup == nil {
		return flexID{Valid: true}
	}
	return *r.ToGroup
}

func (h *MessageHandler) readCreate(c echo.Context) (createMessageReq, error) {
	var req createMessageReq
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ct, echo.MIMEMultipartForm) || strings.HasPrefix(ct, echo.MIMEApplicationForm) {
		req.Text = c.FormValue("text")
		req.Reaction = c.FormValue("reaction")
		tu, tg := parseFormID(c.FormValue("to_user")), parseFormID(c.FormValue("to_group"))
		req.ToUser, req.ToGroup = &tu, &tg
		if strings.HasPrefix(ct, echo.MIMEMultipartForm) {
			fh, err := c.FormFile("attachment")
			if err != nil && !errors.Is(err, http.ErrMissingFile) {
				return req, err
			}
			req.file = fh
		}
		return req, nil
	}
	if c.Request().ContentLength == 0 {
		return req, nil
	}
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}

// Create posts a message from the caller to one user or one group.
func (h *MessageHandler) Create(c echo.Context) error {
	me, ok, err := caller(c, h.Users, h.Log)
	if !ok {
		return err
	}
	req, err := h.readCreate(c)
	if err != nil {
		return detail(c, http.StatusBadRequest, "Malformed request body.")
	}

	errs := map[string]string{}
	toUser, toGroup := req.toUser(), req.toGroup()
	if !toUser.Valid {
		errs["to_user"] = "Incorrect type. Expected pk value."
	}
	if !toGroup.Valid {
		errs["to_group"] = "Incorrect type. Expected pk value."
	}
	if utf8.RuneCountInString(req.Reaction) > maxReactionLen {
		errs["reaction"] = fmt.Sprintf("Ensure this field has no more than %d characters.", maxReactionLen)
	}
	if len(errs) > 0 {
		return fieldErrors(c, errs)
	}
	if (toUser.ID != 0) == (toGroup.ID != 0) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"detail": msgExactlyOneTarget,
			"errors": echo.Map{"non_field_errors": msgExactlyOneTarget},
		})
	}

	ctx, cancel := dbCtx(c)
	defer cancel()

	if toUser.ID != 0 {
		if _, err := h.Users.GetByID(ctx, toUser.ID); err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				return fieldErrors(c, map[string]string{"to_user": invalidPK(toUser.ID)})
			}
			return internalError(c, h.Log, "load recipient", err)
		}
	} else {
		g, err := h.Groups.GetByID(ctx, toGroup.ID)
		if errors.Is(err, repository.ErrGroupNotFound) {
			return fieldErrors(c, map[string]string{"to_group": invalidPK(toGroup.ID)})
		}
		if err != nil {
			return internalError(c, h.Log, "load group", err)
		}
		if !g.HasMember(me.ID) {
			return detail(c, http.StatusForbidden, msgNotMember)
		}
	}

	m := model.Message{SenderID: me.ID, ToUserID: toUser.ID, ToGroupID: toGroup.ID, Text: req.Text, Reaction: req.Reaction}
	if req.file != nil {
		rel, err := h.Media.Save(storage.AttachmentDir, req.file)
		if err != nil {
			return internalError(c, h.Log, "store attachment", err)
		}
		m.Attachment = rel
	}

	saved, err := h.Messages.Create(ctx, m)
	if err != nil {
		if m.Attachment != "" {
			_ = h.Media.Delete(m.Attachment)
		}
		return internalError(c, h.Log, "create message", err)
	}
	h.publish(c, queue.MessageCreated, saved)
	return c.JSON(http.StatusCreated, newSerializer(c, h.Media).message(saved))
}

type patchMessageReq struct {
	Text     *string `json:"text" form:"text"`
	Reaction *string `json:"reaction" form:"reaction" validate:"omitempty,max=50"`
}

// Update edits the text and/or reaction of the caller's own message.
func (h *MessageHandler) Update(c echo.Context) error {
	me, ok, err := caller(c, h.Users, h.Log)
	if !ok {
		return err
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return detail(c, http.StatusNotFound, msgNotFoundOrDenied)
	}
	var req patchMessageReq
	if err := c.Bind(&req); err != nil {
		return detail(c, http.StatusBadRequest, "Malformed request body.")
	}
	if err := c.Validate(&req); err != nil {
		return fieldErrors(c, validationMessages(err))
	}

	ctx, cancel := dbCtx(c)
	defer cancel()
	m, err := h.Messages.Update(ctx, id, me.ID, repository.MessagePatch{Text: req.Text, Reaction: req.Reaction})
	if errors.Is(err, repository.ErrMessageNotFound) {
		return detail(c, http.StatusNotFound, msgNotFoundOrDenied)
	}
	if err != nil {
		return internalError(c, h.Log, "update message", err)
	}
	h.publish(c, queue.MessageUpdated, m)
	return c.JSON(http.StatusOK, newSerializer(c, h.Media).message(m))
}

// Delete soft-deletes the caller's own message and removes its file.
func (h *MessageHandler) Delete(c echo.Context) error {
	me, ok, err := caller(c, h.Users, h.Log)
	if !ok {
		return err
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return detail(c, http.StatusNotFound, msgNotFoundOrDenied)
	}

	ctx, cancel := dbCtx(c)
	defer cancel()
	before, err := h.Messages.SoftDelete(ctx, id, me.ID, h.PurgeDeleted)
	if errors.Is(err, repository.ErrMessageNotFound) {
		return detail(c, http.StatusNotFound, msgNotFoundOrDenied)
	}
	if err != nil {
		return internalError(c, h.Log, "delete message", err)
	}
	if h.PurgeDeleted && before.Attachment != "" {
		if err := h.Media.Delete(before.Attachment); err != nil {
			h.Log.Warn("remove attachment", zap.String("path", before.Attachment), zap.Error(err))
		}
	}
	h.publish(c, queue.MessageDeleted, before)
	return c.NoContent(http.StatusNoContent)
}

func (h *MessageHandler) publish(c echo.Context, typ string, m model.Message) {
	if h.Events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), publishTimeout)
	defer cancel()
	if err := h.Events.Publish(ctx, queue.NewMessageEvent(typ, m)); err != nil {
		h.Log.Warn("publish message event", zap.String("type", typ), zap.Uint64("message_id", m.ID), zap.Error(err))
	}
}

func invalidPK(id uint64) string {
	return fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", id)
}

package handler

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/iliyamo/chat-application/internal/config"
	"github.com/iliyamo/chat-application/internal/middleware"
	"github.com/iliyamo/chat-application/internal/repository"
	"github.com/iliyamo/chat-application/internal/session"
	"github.com/iliyamo/chat-application/internal/storage"
	"github.com/iliyamo/chat-application/internal/utils"
)

const chatPath = "/chat/"

// WebHandler serves the browser flows: form login and signup backed by the
// session cookie, and the page bootstrap data the chat client renders.
type WebHandler struct {
	Cfg      config.Config
	Users    *repository.UserRepo
	Groups   *repository.GroupRepo
	Sessions *session.Manager
	Media    *storage.Local
	Purger   *middleware.CachePurger
	Log      *zap.Logger
}

func NewWebHandler(cfg config.Config, u *repository.UserRepo, g *repository.GroupRepo, s *session.Manager,
	media *storage.Local, p *middleware.CachePurger, log *zap.Logger) *WebHandler {
	return &WebHandler{Cfg: cfg, Users: u, Groups: g, Sessions: s, Media: media, Purger: p, Log: log}
}

type pageContext struct {
	Authenticated bool           `json:"authenticated"`
	CurrentUser   *chatUserJSON  `json:"current_user"`
	Users         []chatUserJSON `json:"users"`
	Groups        []groupJSON    `json:"groups"`
	MediaURL      string         `json:"media_url"`
	Error         string         `json:"error,omitempty"`
}

// Index clears the session when ?logout is present and returns the page data.
func (h *WebHandler) Index(c echo.Context) error {
	if c.QueryParam("logout") != "" {
		if err := h.Sessions.Logout(c.Response(), c.Request()); err != nil {
			h.Log.Warn("logout", zap.Error(err))
		}
		return c.JSON(http.StatusOK, h.anonymousPage(c.QueryParam("error")))
	}
	return h.Chat(c)
}

// Chat returns the bootstrap data of the chat page.  Anonymous visitors get
// empty lists so the client shows its login dialog.
func (h *WebHandler) Chat(c echo.Context) error {
	page := h.anonymousPage(c.QueryParam("error"))
	uid := h.Sessions.UserID(c.Request())
	if uid == 0 {
		return c.JSON(http.StatusOK, page)
	}

	ctx, cancel := dbCtx(c)
	defer cancel()
	me, err := h.Users.GetByID(ctx, uid)
	if errors.Is(err, repository.ErrUserNotFound) {
		return c.JSON(http.StatusOK, page)
	}
	if err != nil {
		return internalError(c, h.Log, "load page user", err)
	}
	users, err := h.Users.ListExcept(ctx, me.ID)
	if err != nil {
		return internalError(c, h.Log, "list users", err)
	}
	groups, err := h.Groups.ListForMember(ctx, me.ID)
	if err != nil {
		return internalError(c, h.Log, "list groups", err)
	}

	s := newSerializer(c, h.Media)
	cu := s.user(me)
	page.Authenticated = true
	page.CurrentUser = &cu
	page.Users = s.users(users)
	page.Groups = s.groups(groups)
	return c.JSON(http.StatusOK, page)
}

func (h *WebHandler) anonymousPage(errMsg string) pageContext {
	return pageContext{Users: []chatUserJSON{}, Groups: []groupJSON{}, MediaURL: h.Cfg.MediaURL, Error: errMsg}
}

// LoginForm authenticates a form post and starts a session.
func (h *WebHandler) LoginForm(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return c.Redirect(http.StatusFound, chatPath)
	}
	ctx, cancel := dbCtx(c)
	defer cancel()
	u, ok, err := authenticate(ctx, h.Users, c.FormValue("email"), c.FormValue("password"))
	if err != nil {
		return internalError(c, h.Log, "form login", err)
	}
	if !ok {
		return c.Redirect(http.StatusSeeOther, chatPath)
	}
	if err := h.Sessions.Login(c.Response(), c.Request(), u.ID); err != nil {
		return internalError(c, h.Log, "save session", err)
	}
	next := c.QueryParam("next")
	if next == "" {
		next = c.FormValue("next")
	}
	return c.Redirect(http.StatusSeeOther, safeNext(next))
}

// SignupForm registers a user from a multipart form, stores the optional
// profile photo and starts a session.  Errors are reported to the page
// through ?error=.
func (h *WebHandler) SignupForm(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return c.Redirect(http.StatusFound, chatPath)
	}
	email := repository.NormalizeEmail(c.FormValue("email"))
	password := c.FormValue("password")
	name := strings.TrimSpace(c.FormValue("name"))
	if email == "" || password == "" {
		return h.signupError(c, msgEmailPasswordReq)
	}
	if name == "" {
		name = defaultName(email)
	}
	req := signupReq{Email: email, Password: password, Name: name}
	if err := c.Validate(&req); err != nil {
		return h.signupError(c, firstError(validationMessages(err)))
	}

	ctx, cancel := dbCtx(c)
	defer cancel()
	taken, err := h.Users.ExistsEmail(ctx, email)
	if err != nil {
		return internalError(c, h.Log, "check email", err)
	}
	if taken {
		return h.signupError(c, msgUserExists)
	}

	var photo string
	if fh, err := c.FormFile("profile_photo"); err == nil {
		photo, err = h.Media.SaveImage(storage.ProfilePhotoDir, fh)
		if errors.Is(err, storage.ErrNotImage) {
			return h.signupError(c, "Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
		}
		if err != nil {
			return internalError(c, h.Log, "store profile photo", err)
		}
	} else if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
		return h.signupError(c, "Invalid upload")
	}

	u, err := registerUser(ctx, h.Users, repository.NewUser{Name: name, Email: email, Password: password, ProfilePhoto: photo}, h.Cfg.BcryptCost)
	if err != nil {
		_ = h.Media.Delete(photo)
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return h.signupError(c, msgUserExists)
		case errors.Is(err, repository.ErrNameExists):
			return h.signupError(c, msgNameTaken)
		case errors.Is(err, utils.ErrPasswordTooLong):
			return h.signupError(c, err.Error())
		}
		return internalError(c, h.Log, "create user", err)
	}
	if err := h.Purger.PurgeRoute(ctx, usersRoute); err != nil {
		h.Log.Warn("purge users cache", zap.Error(err))
	}
	if err := h.Sessions.Login(c.Response(), c.Request(), u.ID); err != nil {
		return internalError(c, h.Log, "save session", err)
	}
	return c.Redirect(http.StatusSeeOther, chatPath)
}

func (h *WebHandler) signupError(c echo.Context, msg string) error {
	return c.Redirect(http.StatusSeeOther, chatPath+"?error="+url.QueryEscape(msg))
}

// safeNext keeps redirects on this site: only absolute local paths pass.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return chatPath
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return chatPath
	}
	return next
}

// firstError picks one validation message, by field name, for the page.
func firstError(errs map[string]string) string {
	if len(errs) == 0 {
		return msgInvalidInput
	}
	fields := lo.Keys(errs)
	sort.Strings(fields)
	return fields[0] + ": " + errs[fields[0]]
}

package handler

import (
    "context"  // provides context with cancellation for DB calls
    "errors"   // sentinel comparison
    "net/http" // HTTP status codes and primitives
    "strings"  // string manipulation utilities
    "time"     // token expiry timestamps

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing
    "go.uber.org/zap"

    "github.com/iliyamo/chat-application/internal/config"     // app configuration
    "github.com/iliyamo/chat-application/internal/middleware" // caller identity and cache purge
    "github.com/iliyamo/chat-application/internal/model"
    "github.com/iliyamo/chat-application/internal/repository" // DB repositories
    "github.com/iliyamo/chat-application/internal/utils"      // helper functions (hashing, token issuing)
)

const (
    msgInvalidCredentials = "Invalid credentials"
    msgEmailPasswordReq   = "Email and password required"
    msgUserExists         = "User already exists"
    msgNameTaken          = "user with this name already exists."

    usersRoute = "/api/users/"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Cfg    config.Config
    Users  *repository.UserRepo
    Tokens *repository.TokenRepo
    Purger *middleware.CachePurger
    Log    *zap.Logger
}

func NewAuthHandler(cfg config.Config, u *repository.UserRepo, t *repository.TokenRepo, p *middleware.CachePurger, log *zap.Logger) *AuthHandler {
    return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Purger: p, Log: log}
}

// ----- DTOs -----

type signupReq struct {
    Email    string `json:"email" form:"email" validate:"email,max=254"`
    Password string `json:"password" form:"password" validate:"max=128"`
    Name     string `json:"name" form:"name" validate:"max=150,nomarkup"`
}
type loginReq struct {
    Email    string `json:"email" form:"email"`
    Password string `json:"password" form:"password"`
}
type refreshReq struct {
    Refresh string `json:"refresh" form:"refresh"`
}

type authResp struct {
    Access         string       `json:"access"`
    Refresh        string       `json:"refresh"`
    AccessExpires  time.Time    `json:"access_expires"`
    RefreshExpires time.Time    `json:"refresh_expires"`
    User           identityJSON `json:"user"`
}

// defaultName derives a display name from email when none was given,
// cut to the name length limit.
func defaultName(email string) string {
    r := []rune(email)
    if len(r) > maxNameLen {
        r = r[:maxNameLen]
    }
    return string(r)
}

// Signup: create user and return tokens immediately.
func (h *AuthHandler) Signup(c echo.Context) error {
    var req signupReq
    if err := c.Bind(&req); err != nil {
        return detail(c, http.StatusBadRequest, msgEmailPasswordReq)
    }
    req.Email = repository.NormalizeEmail(req.Email)
    req.Name = strings.TrimSpace(req.Name)
    if req.Email == "" || req.Password == "" {
        return detail(c, http.StatusBadRequest, msgEmailPasswordReq)
    }
    if req.Name == "" {
        req.Name = defaultName(req.Email)
    }
    if err := c.Validate(&req); err != nil {
        return fieldErrors(c, validationMessages(err))
    }

    ctx, cancel := dbCtx(c)
    defer cancel()

    u, err := registerUser(ctx, h.Users, repository.NewUser{Name: req.Name, Email: req.Email, Password: req.Password}, h.Cfg.BcryptCost)
    switch {
    case errors.Is(err, repository.ErrEmailExists):
        return detail(c, http.StatusBadRequest, msgUserExists)
    case errors.Is(err, repository.ErrNameExists):
        return fieldErrors(c, map[string]string{"name": msgNameTaken})
    case errors.Is(err, utils.ErrPasswordTooLong):
        return fieldErrors(c, map[string]string{"password": err.Error()})
    case err != nil:
        return internalError(c, h.Log, "create user", err)
    }
    h.purgeUsers(ctx)

    resp, err := h.issue(ctx, u)
    if err != nil {
        return internalError(c, h.Log, "issue tokens", err)
    }
    return c.JSON(http.StatusCreated, resp)
}

// Login: verify and return new pair.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return detail(c, http.StatusUnauthorized, msgInvalidCredentials)
    }

    ctx, cancel := dbCtx(c)
    defer cancel()

    u, ok, err := authenticate(ctx, h.Users, req.Email, req.Password)
    if err != nil {
        return internalError(c, h.Log, "login lookup", err)
    }
    if !ok {
        return detail(c, http.StatusUnauthorized, msgInvalidCredentials)
    }

    resp, err := h.issue(ctx, u)
    if err != nil {
        return internalError(c, h.Log, "issue tokens", err)
    }
    return c.JSON(http.StatusOK, resp)
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Refresh) == "" {
        return fieldErrors(c, map[string]string{"refresh": "This field is required."})
    }
    hash := utils.HashRefreshRaw(strings.TrimSpace(req.Refresh))

    ctx, cancel := dbCtx(c)
    defer cancel()

    userID, err := h.Tokens.ValidateRefresh(ctx, hash)
    if errors.Is(err, repository.ErrInvalidRefresh) {
        return detail(c, http.StatusUnauthorized, "Token is invalid or expired")
    }
    if err != nil {
        return internalError(c, h.Log, "validate refresh", err)
    }
    u, err := h.Users.GetByID(ctx, userID)
    if errors.Is(err, repository.ErrUserNotFound) {
        return detail(c, http.StatusUnauthorized, "Token is invalid or expired")
    }
    if err != nil {
        return internalError(c, h.Log, "load user", err)
    }
    if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
        if errors.Is(err, repository.ErrInvalidRefresh) {
            return detail(c, http.StatusUnauthorized, "Token is invalid or expired")
        }
        return internalError(c, h.Log, "revoke refresh", err)
    }

    resp, err := h.issue(ctx, u)
    if err != nil {
        return internalError(c, h.Log, "issue tokens", err)
    }
    return c.JSON(http.StatusOK, resp)
}

// Logout revokes the refresh token in the body, or every token of the
// bearer's user when the body carries none.
func (h *AuthHandler) Logout(c echo.Context) error {
    var req refreshReq
    _ = c.Bind(&req)
    refresh := strings.TrimSpace(req.Refresh)

    ctx, cancel := dbCtx(c)
    defer cancel()

    if refresh != "" {
        hash := utils.HashRefreshRaw(refresh)
        if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
            if errors.Is(err, repository.ErrInvalidRefresh) {
                return detail(c, http.StatusUnauthorized, "Token is invalid or expired")
            }
            return internalError(c, h.Log, "validate refresh", err)
        }
        if err := h.Tokens.RevokeByHash(ctx, hash); err != nil && !errors.Is(err, repository.ErrInvalidRefresh) {
            return internalError(c, h.Log, "revoke refresh", err)
        }
        return c.NoContent(http.StatusNoContent)
    }

    // No refresh token: a valid bearer logs the user out everywhere.
    auth := c.Request().Header.Get("Authorization")
    if strings.HasPrefix(auth, "Bearer ") {
        uid, err := utils.ParseAccessToken(h.Cfg.JWTSecret, strings.TrimSpace(strings.TrimPrefix(auth, "Bearer ")))
        if err != nil {
            return detail(c, http.StatusUnauthorized, "Given token not valid for any token type")
        }
        if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
            return internalError(c, h.Log, "revoke all", err)
        }
        return c.NoContent(http.StatusNoContent)
    }
    return fieldErrors(c, map[string]string{"refresh": "This field is required."})
}

// Me returns the caller's public identity fields.
func (h *AuthHandler) Me(c echo.Context) error {
    uid, _ := middleware.UserID(c)
    ctx, cancel := dbCtx(c)
    defer cancel()
    u, err := h.Users.GetByID(ctx, uid)
    if errors.Is(err, repository.ErrUserNotFound) {
        return detail(c, http.StatusUnauthorized, "User not found")
    }
    if err != nil {
        return internalError(c, h.Log, "load user", err)
    }
    return c.JSON(http.StatusOK, toIdentity(u))
}

func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, h.Cfg.AccessTTLMin)
    if err != nil {
        return authResp{}, err
    }
    refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
    if err != nil {
        return authResp{}, err
    }
    if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
        return authResp{}, err
    }
    return authResp{
        Access:         access.Token,
        Refresh:        refresh.Raw, // raw back to client
        AccessExpires:  access.Exp,
        RefreshExpires: refresh.Exp,
        User:           toIdentity(u),
    }, nil
}

func (h *AuthHandler) purgeUsers(ctx context.Context) {
    if err := h.Purger.PurgeRoute(ctx, usersRoute); err != nil {
        h.Log.Warn("purge users cache", zap.Error(err))
    }
}

// registerUser creates a user after checking the email, so a taken email
// is reported even when the name is taken too.
func registerUser(ctx context.Context, users *repository.UserRepo, nu repository.NewUser, cost int) (model.User, error) {
    taken, err := users.ExistsEmail(ctx, nu.Email)
    if err != nil {
        return model.User{}, err
    }
    if taken {
        return model.User{}, repository.ErrEmailExists
    }
    return users.Create(ctx, nu, cost)
}

// authenticate checks email and password.  ok is false for unknown emails
// and wrong passwords alike.
func authenticate(ctx context.Context, users *repository.UserRepo, email, password string) (model.User, bool, error) {
    if strings.TrimSpace(email) == "" || password == "" {
        return model.User{}, false, nil
    }
    u, err := users.GetByEmail(ctx, email)
    if errors.Is(err, repository.ErrUserNotFound) {
        return model.User{}, false, nil
    }
    if err != nil {
        return model.User{}, false, err
    }
    if !utils.VerifyPassword(u.PasswordHash, password) {
        return model.User{}, false, nil
    }
    return u, true, nil
}

// Package session keeps the form-login identity in a signed cookie.
package session

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const userIDKey = "user_id"

// Manager wraps a cookie store and the name of the session cookie.
type Manager struct {
	Store *sessions.CookieStore
	Name  string
}

// NewManager builds the cookie store.  With an empty key a random one is
// generated, so sessions do not survive a restart.
func NewManager(key, name string, secure bool, logger *zap.Logger) *Manager {
	raw := []byte(key)
	if key == "" {
		raw = securecookie.GenerateRandomKey(32)
		logger.Warn("SESSION_KEY is empty; using a random key, sessions end on restart")
	} else if len(key) < 32 {
		logger.Warn("session key is short; 32+ chars recommended", zap.Int("length", len(key)))
	}

	store := sessions.NewCookieStore(raw)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 14,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{Store: store, Name: name}
}

// UserID returns the user id stored by Login, or 0 when the request carries
// no valid session.
func (m *Manager) UserID(r *http.Request) uint64 {
	sess, err := m.Store.Get(r, m.Name)
	if err != nil {
		return 0
	}
	v, ok := sess.Values[userIDKey].(string)
	if !ok {
		return 0
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// Login stores userID in a fresh session cookie.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, userID uint64) error {
	// A stale cookie signed with an old key yields an error and a new session.
	sess, _ := m.Store.Get(r, m.Name)
	sess.Values[userIDKey] = strconv.FormatUint(userID, 10)
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Logout expires the session cookie.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.Store.Get(r, m.Name)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

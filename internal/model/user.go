package model

import "time"

// User is a row of the `users` table and the single identity of the
// system: login credentials and chat profile share the row.  Name and
// Email are both unique; ProfilePhoto is a media-relative path or empty.
type User struct {
    ID           uint64
    Name         string
    Email        string // normalised, also the login username
    PasswordHash string // bcrypt
    ProfilePhoto string
    CreatedAt    time.Time
    UpdatedAt    time.Time
}

// RefreshToken is a row of `refresh_tokens`.  Only the SHA-256 of the raw
// token is kept.
type RefreshToken struct {
    ID        uint64
    UserID    uint64
    TokenHash string
    ExpiresAt time.Time
    RevokedAt *time.Time
    CreatedAt time.Time
}

// Active reports whether the token can still be exchanged at now.
func (t RefreshToken) Active(now time.Time) bool {
    return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

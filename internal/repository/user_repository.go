package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/chat-application/internal/model"
	"github.com/iliyamo/chat-application/internal/utils"
)

const userColumns = "id,name,email,password_hash,profile_photo,created_at,updated_at"

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// NewUser carries the fields needed to insert a user.
type NewUser struct {
	Name         string
	Email        string
	Password     string
	ProfilePhoto string
}

// NormalizeEmail trims and lower-cases an address the way it is stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create hashes the password and inserts the user.  A taken email or name
// is reported as ErrEmailExists or ErrNameExists.
func (r *UserRepo) Create(ctx context.Context, nu NewUser, cost int) (model.User, error) {
	email := NormalizeEmail(nu.Email)
	name := strings.TrimSpace(nu.Name)
	hash, err := utils.HashPassword(nu.Password, cost)
	if err != nil {
		return model.User{}, err
	}
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, profile_photo, created_at, updated_at) VALUES (?,?,?,?,?,?)",
		name, email, hash, nullString(nu.ProfilePhoto), now, now)
	if err != nil {
		if isDuplicate(err) {
			// The driver error does not reliably name the index; ask.
			if taken, _ := r.ExistsEmail(ctx, email); taken {
				return model.User{}, ErrEmailExists
			}
			return model.User{}, ErrNameExists
		}
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return model.User{
		ID:           uint64(id),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		ProfilePhoto: nu.ProfilePhoto,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", NormalizeEmail(email))
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// ExistsEmail reports whether a user with this email is registered.
func (r *UserRepo) ExistsEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "SELECT 1 FROM users WHERE email=? LIMIT 1", NormalizeEmail(email))
}

// ExistsName reports whether the display name is taken.
func (r *UserRepo) ExistsName(ctx context.Context, name string) (bool, error) {
	return r.exists(ctx, "SELECT 1 FROM users WHERE name=? LIMIT 1", strings.TrimSpace(name))
}

func (r *UserRepo) exists(ctx context.Context, q string, arg any) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, q, arg).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListExcept returns every user but exceptID, ordered by id.
func (r *UserRepo) ListExcept(ctx context.Context, exceptID uint64) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id<>? ORDER BY id", exceptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (model.User, error) {
	var (
		u     model.User
		photo sql.NullString
	)
	err := s.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &photo, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrUserNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.ProfilePhoto = photo.String
	return u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullID(id uint64) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: id != 0}
}

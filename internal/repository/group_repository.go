package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/iliyamo/chat-application/internal/model"
)

type GroupRepo struct{ DB *sql.DB }

func NewGroupRepo(db *sql.DB) *GroupRepo { return &GroupRepo{DB: db} }

// CreateWithMembers inserts a group and its member rows in one
// transaction.  Member ids that do not exist are skipped, duplicates are
// collapsed and the owner is always added.
func (r *GroupRepo) CreateWithMembers(ctx context.Context, name string, ownerID uint64, memberIDs []uint64) (model.Group, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.Group{}, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO chat_groups (name, owner_id, created_at) VALUES (?,?,?)",
		name, ownerID, now)
	if err != nil {
		if isDuplicate(err) {
			return model.Group{}, ErrGroupNameExists
		}
		return model.Group{}, err
	}
	gid, err := res.LastInsertId()
	if err != nil {
		return model.Group{}, err
	}

	wanted := lo.Uniq(append([]uint64{ownerID}, memberIDs...))
	wanted = lo.Filter(wanted, func(id uint64, _ int) bool { return id != 0 })
	existing, err := existingUserIDs(ctx, tx, wanted)
	if err != nil {
		return model.Group{}, err
	}
	for _, uid := range existing {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO group_members (group_id, user_id) VALUES (?,?)", gid, uid); err != nil {
			return model.Group{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Group{}, err
	}
	return r.GetByID(ctx, uint64(gid))
}

// GetByID loads a group with its members.
func (r *GroupRepo) GetByID(ctx context.Context, id uint64) (model.Group, error) {
	var g model.Group
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, name, owner_id, created_at FROM chat_groups WHERE id=? LIMIT 1", id).
		Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Group{}, ErrGroupNotFound
	}
	if err != nil {
		return model.Group{}, err
	}
	members, err := r.membersOf(ctx, []uint64{g.ID})
	if err != nil {
		return model.Group{}, err
	}
	g.Members = members[g.ID]
	return g, nil
}

// ListForMember returns the groups userID belongs to, ordered by id, with
// members loaded.
func (r *GroupRepo) ListForMember(ctx context.Context, userID uint64) ([]model.Group, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT g.id, g.name, g.owner_id, g.created_at
		FROM chat_groups g
		JOIN group_members gm ON gm.group_id = g.id
		WHERE gm.user_id = ?
		ORDER BY g.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []model.Group{}
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return groups, nil
	}

	members, err := r.membersOf(ctx, lo.Map(groups, func(g model.Group, _ int) uint64 { return g.ID }))
	if err != nil {
		return nil, err
	}
	for i := range groups {
		groups[i].Members = members[groups[i].ID]
	}
	return groups, nil
}

func (r *GroupRepo) membersOf(ctx context.Context, groupIDs []uint64) (map[uint64][]model.User, error) {
	q := `SELECT gm.group_id, u.id, u.name, u.email, u.password_hash, u.profile_photo, u.created_at, u.updated_at
		FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id IN (` + placeholders(len(groupIDs)) + `)
		ORDER BY gm.group_id, u.id`
	rows, err := r.DB.QueryContext(ctx, q, anySlice(groupIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uint64][]model.User, len(groupIDs))
	for rows.Next() {
		var (
			gid   uint64
			u     model.User
			photo sql.NullString
		)
		if err := rows.Scan(&gid, &u.ID, &u.Name, &u.Email, &u.PasswordHash, &photo, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		u.ProfilePhoto = photo.String
		out[gid] = append(out[gid], u)
	}
	return out, rows.Err()
}

// existingUserIDs keeps the ids of ids that refer to a users row, in the
// order given.
func existingUserIDs(ctx context.Context, tx *sql.Tx, ids []uint64) ([]uint64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := tx.QueryContext(ctx,
		"SELECT id FROM users WHERE id IN ("+placeholders(len(ids))+")", anySlice(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := map[uint64]bool{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lo.Filter(ids, func(id uint64, _ int) bool { return found[id] }), nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anySlice(ids []uint64) []any {
	return lo.Map(ids, func(id uint64, _ int) any { return id })
}

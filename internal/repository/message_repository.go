package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/chat-application/internal/model"
)

// messageSelect joins the sender and both possible targets so that list,
// detail and export queries share one scanner.
const messageSelect = `
	SELECT m.id, m.sender_id, m.to_user_id, m.to_group_id, m.text, m.attachment,
	       m.reaction, m.is_deleted, m.created_at, m.updated_at,
	       s.id, s.name, s.email, s.profile_photo,
	       tu.email, tg.name
	FROM messages m
	JOIN users s ON s.id = m.sender_id
	LEFT JOIN users tu ON tu.id = m.to_user_id
	LEFT JOIN chat_groups tg ON tg.id = m.to_group_id`

type MessageRepo struct{ DB *sql.DB }

func NewMessageRepo(db *sql.DB) *MessageRepo { return &MessageRepo{DB: db} }

// Create inserts m and returns the stored row with joined fields.
func (r *MessageRepo) Create(ctx context.Context, m model.Message) (model.Message, error) {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO messages (sender_id, to_user_id, to_group_id, text, attachment, reaction, is_deleted, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		m.SenderID, nullID(m.ToUserID), nullID(m.ToGroupID), m.Text,
		nullString(m.Attachment), nullString(m.Reaction), false, now, now)
	if err != nil {
		return model.Message{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Message{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID loads a message (deleted or not).
func (r *MessageRepo) GetByID(ctx context.Context, id uint64) (model.Message, error) {
	return scanMessage(r.DB.QueryRowContext(ctx, messageSelect+" WHERE m.id = ?", id))
}

// ListConversation returns the live messages exchanged between a and b,
// oldest first.
func (r *MessageRepo) ListConversation(ctx context.Context, a, b uint64) ([]model.Message, error) {
	return r.list(ctx, messageSelect+`
		WHERE m.is_deleted = ?
		  AND ((m.sender_id = ? AND m.to_user_id = ?) OR (m.sender_id = ? AND m.to_user_id = ?))
		ORDER BY m.created_at, m.id`, false, a, b, b, a)
}

// ListGroup returns the live messages of groupID, oldest first.  The result
// is empty unless callerID is a member.
func (r *MessageRepo) ListGroup(ctx context.Context, groupID, callerID uint64) ([]model.Message, error) {
	return r.list(ctx, messageSelect+`
		JOIN group_members gm ON gm.group_id = m.to_group_id AND gm.user_id = ?
		WHERE m.is_deleted = ? AND m.to_group_id = ?
		ORDER BY m.created_at, m.id`, callerID, false, groupID)
}

// GetOwnedActive loads a live message sent by senderID.  Anything else is
// ErrMessageNotFound.
func (r *MessageRepo) GetOwnedActive(ctx context.Context, id, senderID uint64) (model.Message, error) {
	return scanMessage(r.DB.QueryRowContext(ctx,
		messageSelect+" WHERE m.id = ? AND m.sender_id = ? AND m.is_deleted = ?", id, senderID, false))
}

// MessagePatch lists the fields of an update; nil leaves a field as is.
type MessagePatch struct {
	Text     *string
	Reaction *string // "" clears the reaction
}

// Update applies p to a live message owned by senderID and stamps
// updated_at.
func (r *MessageRepo) Update(ctx context.Context, id, senderID uint64, p MessagePatch) (model.Message, error) {
	cur, err := r.GetOwnedActive(ctx, id, senderID)
	if err != nil {
		return model.Message{}, err
	}
	if p.Text != nil {
		cur.Text = *p.Text
	}
	if p.Reaction != nil {
		cur.Reaction = *p.Reaction
	}
	res, err := r.DB.ExecContext(ctx,
		"UPDATE messages SET text=?, reaction=?, updated_at=? WHERE id=? AND sender_id=? AND is_deleted=?",
		cur.Text, nullString(cur.Reaction), time.Now().UTC(), id, senderID, false)
	if err != nil {
		return model.Message{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Message{}, ErrMessageNotFound
	}
	return r.GetByID(ctx, id)
}

// SoftDelete marks a live message of senderID as deleted and clears its
// text.  With purge set the reaction and attachment are cleared too.  It
// returns the message as it was before deletion so callers can remove the
// stored file.
func (r *MessageRepo) SoftDelete(ctx context.Context, id, senderID uint64, purge bool) (model.Message, error) {
	cur, err := r.GetOwnedActive(ctx, id, senderID)
	if err != nil {
		return model.Message{}, err
	}
	q := "UPDATE messages SET is_deleted=?, text='', updated_at=? WHERE id=? AND sender_id=? AND is_deleted=?"
	if purge {
		q = "UPDATE messages SET is_deleted=?, text='', reaction=NULL, attachment=NULL, updated_at=? WHERE id=? AND sender_id=? AND is_deleted=?"
	}
	res, err := r.DB.ExecContext(ctx, q, true, time.Now().UTC(), id, senderID, false)
	if err != nil {
		return model.Message{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.Message{}, ErrMessageNotFound
	}
	return cur, nil
}

func (r *MessageRepo) list(ctx context.Context, q string, args ...any) ([]model.Message, error) {
	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []model.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func scanMessage(s rowScanner) (model.Message, error) {
	var (
		m                     model.Message
		toUser, toGroup       sql.NullInt64
		attachment, reaction  sql.NullString
		senderPhoto           sql.NullString
		toUserEmail, toGroupN sql.NullString
	)
	err := s.Scan(&m.ID, &m.SenderID, &toUser, &toGroup, &m.Text, &attachment,
		&reaction, &m.IsDeleted, &m.CreatedAt, &m.UpdatedAt,
		&m.Sender.ID, &m.Sender.Name, &m.Sender.Email, &senderPhoto,
		&toUserEmail, &toGroupN)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return model.Message{}, err
	}
	m.ToUserID = uint64(toUser.Int64)
	m.ToGroupID = uint64(toGroup.Int64)
	m.Attachment = attachment.String
	m.Reaction = reaction.String
	m.Sender.ProfilePhoto = senderPhoto.String
	m.ToUserEmail = toUserEmail.String
	m.ToGroupName = toGroupN.String
	return m, nil
}

package handler

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/iliyamo/chat-application/internal/model"
	"github.com/iliyamo/chat-application/internal/storage"
)

// identityJSON is the public form of the login identity.
type identityJSON struct {
	ID        uint64 `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

type chatUserJSON struct {
	ID           uint64  `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	ProfilePhoto *string `json:"profile_photo"`
}

type groupJSON struct {
	ID        uint64         `json:"id"`
	Name      string         `json:"name"`
	Members   []chatUserJSON `json:"members"`
	Owner     uint64         `json:"owner"`
	CreatedAt time.Time      `json:"created_at"`
}

type messageJSON struct {
	ID            uint64       `json:"id"`
	Sender        chatUserJSON `json:"sender"`
	ToUser        *uint64      `json:"to_user"`
	ToGroup       *uint64      `json:"to_group"`
	Text          string       `json:"text"`
	Attachment    *string      `json:"attachment"`
	AttachmentURL *string      `json:"attachment_url"`
	FileName      *string      `json:"file_name"`
	IsImage       bool         `json:"is_image"`
	IsVideo       bool         `json:"is_video"`
	Reaction      *string      `json:"reaction"`
	IsDeleted     bool         `json:"is_deleted"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// serializer renders entities for one request; media URLs are absolute.
type serializer struct {
	c     echo.Context
	media *storage.Local
}

func newSerializer(c echo.Context, media *storage.Local) serializer {
	return serializer{c: c, media: media}
}

func toIdentity(u model.User) identityJSON {
	return identityJSON{ID: u.ID, Username: u.Email, FirstName: u.Name, LastName: "", Email: u.Email}
}

func (s serializer) mediaURL(rel string) *string {
	if rel == "" || s.media == nil {
		return nil
	}
	return lo.ToPtr(absoluteURL(s.c, s.media.URL(rel)))
}

func (s serializer) user(u model.User) chatUserJSON {
	return chatUserJSON{ID: u.ID, Name: u.Name, Email: u.Email, ProfilePhoto: s.mediaURL(u.ProfilePhoto)}
}

func (s serializer) users(us []model.User) []chatUserJSON {
	return lo.Map(us, func(u model.User, _ int) chatUserJSON { return s.user(u) })
}

func (s serializer) group(g model.Group) groupJSON {
	return groupJSON{
		ID:        g.ID,
		Name:      g.Name,
		Members:   s.users(g.Members),
		Owner:     g.OwnerID,
		CreatedAt: g.CreatedAt,
	}
}

func (s serializer) groups(gs []model.Group) []groupJSON {
	return lo.Map(gs, func(g model.Group, _ int) groupJSON { return s.group(g) })
}

func (s serializer) message(m model.Message) messageJSON {
	out := messageJSON{
		ID:        m.ID,
		Sender:    s.user(m.Sender),
		Text:      m.Text,
		IsImage:   m.IsImage(),
		IsVideo:   m.IsVideo(),
		IsDeleted: m.IsDeleted,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.ToUserID != 0 {
		out.ToUser = lo.ToPtr(m.ToUserID)
	}
	if m.ToGroupID != 0 {
		out.ToGroup = lo.ToPtr(m.ToGroupID)
	}
	if m.HasAttachment() {
		out.AttachmentURL = s.mediaURL(m.Attachment)
		out.Attachment = out.AttachmentURL
		out.FileName = lo.ToPtr(m.FileName())
	}
	if m.Reaction != "" {
		out.Reaction = lo.ToPtr(m.Reaction)
	}
	return out
}

func (s serializer) messages(ms []model.Message) []messageJSON {
	return lo.Map(ms, func(m model.Message, _ int) messageJSON { return s.message(m) })
}

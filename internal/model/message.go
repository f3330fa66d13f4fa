package model

import (
    "strings"
    "time"
)

var (
    imageExtensions = map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true, "bmp": true}
    videoExtensions = map[string]bool{"mp4": true, "webm": true, "ogg": true, "mov": true, "avi": true}
)

// Message is a row of the `messages` table. Exactly one of ToUserID and
// ToGroupID is set; zero means unset.
type Message struct {
    ID         uint64
    SenderID   uint64
    ToUserID   uint64
    ToGroupID  uint64
    Text       string
    Attachment string // media-relative path, empty when there is no attachment
    Reaction   string // empty when there is no reaction
    IsDeleted  bool
    CreatedAt  time.Time
    UpdatedAt  time.Time

    // Joined columns, filled by list queries.
    Sender      User
    ToUserEmail string
    ToGroupName string
}

// HasAttachment reports whether the message carries a file.
func (m *Message) HasAttachment() bool { return m.Attachment != "" }

// IsImage classifies the attachment by its file extension.
func (m *Message) IsImage() bool {
    return m.HasAttachment() && imageExtensions[extension(m.Attachment)]
}

// IsVideo classifies the attachment by its file extension.
func (m *Message) IsVideo() bool {
    return m.HasAttachment() && videoExtensions[extension(m.Attachment)]
}

// FileName returns the last path segment of the attachment.
func (m *Message) FileName() string {
    if !m.HasAttachment() {
        return ""
    }
    parts := strings.Split(m.Attachment, "/")
    return parts[len(parts)-1]
}

func extension(name string) string {
    parts := strings.Split(name, ".")
    return strings.ToLower(parts[len(parts)-1])
}

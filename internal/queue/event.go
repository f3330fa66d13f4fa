// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

import (
    "time"

    "github.com/iliyamo/chat-application/internal/model"
)

// Event types published for the message lifecycle.
const (
    MessageCreated = "message.created"
    MessageUpdated = "message.updated"
    MessageDeleted = "message.deleted"
)

// MessageEvent is published whenever a message is created, edited or
// soft-deleted.  It carries ids only; consumers that need the text must
// read it from the database.
type MessageEvent struct {
    Type       string  `json:"type"`
    MessageID  uint64  `json:"message_id"`
    SenderID   uint64  `json:"sender_id"`
    ToUserID   *uint64 `json:"to_user_id,omitempty"`
    ToGroupID  *uint64 `json:"to_group_id,omitempty"`
    OccurredAt string  `json:"occurred_at"` // RFC 3339, UTC
}

// NewMessageEvent builds the event of type typ for m.
func NewMessageEvent(typ string, m model.Message) MessageEvent {
    ev := MessageEvent{
        Type:       typ,
        MessageID:  m.ID,
        SenderID:   m.SenderID,
        OccurredAt: time.Now().UTC().Format(time.RFC3339),
    }
    if m.ToUserID != 0 {
        id := m.ToUserID
        ev.ToUserID = &id
    }
    if m.ToGroupID != 0 {
        id := m.ToGroupID
        ev.ToGroupID = &id
    }
    return ev
}

package model

import "time"

// Group is a named conversation with a fixed member set. The owner is
// always one of the members.  This struct corresponds to a row in the
// `chat_groups` table plus its `group_members` rows.
type Group struct {
    ID        uint64    // chat_groups.id
    Name      string    // chat_groups.name
    OwnerID   uint64    // chat_groups.owner_id
    CreatedAt time.Time // chat_groups.created_at
    Members   []User    // loaded from group_members
}

// HasMember reports whether userID is in the loaded member set.
func (g *Group) HasMember(userID uint64) bool {
    for _, m := range g.Members {
        if m.ID == userID {
            return true
        }
    }
    return false
}

package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageAttachmentClassification(t *testing.T) {
	tests := []struct {
		name       string
		attachment string
		image      bool
		video      bool
		fileName   string
	}{
		{"no attachment", "", false, false, ""},
		{"png", "message_attachments/cat.PNG", true, false, "cat.PNG"},
		{"jpeg", "message_attachments/a.b.jpeg", true, false, "a.b.jpeg"},
		{"webm", "message_attachments/clip.webm", false, true, "clip.webm"},
		{"mov", "message_attachments/clip.MOV", false, true, "clip.MOV"},
		{"pdf", "message_attachments/report.pdf", false, false, "report.pdf"},
		{"no extension", "message_attachments/README", false, false, "README"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			m := Message{Attachment: tt.attachment}
			req.Equal(tt.image, m.IsImage())
			req.Equal(tt.video, m.IsVideo())
			req.Equal(tt.fileName, m.FileName())
		})
	}
}

func TestGroupHasMember(t *testing.T) {
	req := require.New(t)
	g := Group{Members: []User{{ID: 1}, {ID: 3}}}
	req.True(g.HasMember(3))
	req.False(g.HasMember(2))
}

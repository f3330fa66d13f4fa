package storage

import (
	"bytes"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// pngHeader is the 8-byte PNG signature followed by an IHDR chunk start.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func fileHeader(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&buf, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"][0]
}

func TestSaveKeepsExistingFiles(t *testing.T) {
	req := require.New(t)
	s := NewLocal(t.TempDir(), "/media")

	first, err := s.Save(AttachmentDir, fileHeader(t, "my report.pdf", []byte("one")))
	req.NoError(err)
	req.Equal("message_attachments/my_report.pdf", first)

	second, err := s.Save(AttachmentDir, fileHeader(t, "my report.pdf", []byte("two")))
	req.NoError(err)
	req.NotEqual(first, second)
	req.True(strings.HasPrefix(second, "message_attachments/my_report_"))
	req.True(strings.HasSuffix(second, ".pdf"))

	got, err := os.ReadFile(filepath.Join(s.Root, filepath.FromSlash(first)))
	req.NoError(err)
	req.Equal("one", string(got))

	req.Equal("/media/"+first, s.URL(first))
	req.Empty(s.URL(""))
}

func TestSaveImageSniffsContent(t *testing.T) {
	req := require.New(t)
	s := NewLocal(t.TempDir(), "/media/")

	rel, err := s.SaveImage(ProfilePhotoDir, fileHeader(t, "me.png", pngHeader))
	req.NoError(err)
	req.Equal("profile_photos/me.png", rel)

	_, err = s.SaveImage(ProfilePhotoDir, fileHeader(t, "fake.png", []byte("just text")))
	req.ErrorIs(err, ErrNotImage)
}

func TestDelete(t *testing.T) {
	req := require.New(t)
	s := NewLocal(t.TempDir(), "/media/")
	rel, err := s.Save(AttachmentDir, fileHeader(t, "a.txt", []byte("x")))
	req.NoError(err)

	req.NoError(s.Delete(rel))
	_, err = os.Stat(filepath.Join(s.Root, rel))
	req.True(os.IsNotExist(err))
	req.NoError(s.Delete(rel))
	req.NoError(s.Delete(""))
}

func TestCleanName(t *testing.T) {
	tests := map[string]string{
		"photo.JPG":          "photo.JPG",
		"../../etc/passwd":   "passwd",
		`C:\Users\me\a b.png`: "a_b.png",
		"<script>.js":        "script.js",
		"...":                "upload",
		"":                   "upload",
	}
	for in, want := range tests {
		require.Equal(t, want, CleanName(in), in)
	}
}

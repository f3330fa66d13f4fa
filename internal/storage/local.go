// Package storage writes uploaded files below MEDIA_ROOT and maps the
// stored relative paths to public URLs under MEDIA_URL.
package storage

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	AttachmentDir   = "message_attachments"
	ProfilePhotoDir = "profile_photos"

	sniffLen = 3072
)

// ErrNotImage is returned by SaveImage for uploads whose content is not an image.
var ErrNotImage = errors.New("upload a valid image")

// Local stores files on the local filesystem.
type Local struct {
	Root      string // MEDIA_ROOT
	URLPrefix string // MEDIA_URL, always ending in "/"
}

func NewLocal(root, urlPrefix string) *Local {
	if !strings.HasSuffix(urlPrefix, "/") {
		urlPrefix += "/"
	}
	return &Local{Root: root, URLPrefix: urlPrefix}
}

// Save copies the uploaded file into dir and returns its path relative to
// Root, using forward slashes.  An existing file is never overwritten; a
// short random suffix is added to the name instead.
func (s *Local) Save(dir string, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()
	return s.write(dir, fh.Filename, src)
}

// SaveImage is Save restricted to image content, detected from the leading
// bytes of the upload rather than its name.
func (s *Local) SaveImage(dir string, fh *multipart.FileHeader) (string, error) {
	src, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if !strings.HasPrefix(mimetype.Detect(head).String(), "image/") {
		return "", ErrNotImage
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind upload: %w", err)
	}
	return s.write(dir, fh.Filename, src)
}

func (s *Local) write(dir, filename string, src io.Reader) (string, error) {
	if err := os.MkdirAll(filepath.Join(s.Root, dir), 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	name := CleanName(filename)
	var dst *os.File
	for attempt := 0; ; attempt++ {
		candidate := name
		if attempt > 0 {
			ext := path.Ext(name)
			candidate = strings.TrimSuffix(name, ext) + "_" + uuid.NewString()[:8] + ext
		}
		f, err := os.OpenFile(filepath.Join(s.Root, dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) && attempt < 10 {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", candidate, err)
		}
		dst, name = f, candidate
		break
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(dst.Name())
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return path.Join(dir, name), nil
}

// Delete removes a stored file.  A missing file is not an error.
func (s *Local) Delete(rel string) error {
	if rel == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.Root, filepath.FromSlash(rel)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// URL returns the public path of a stored file, or "" when rel is empty.
func (s *Local) URL(rel string) string {
	if rel == "" {
		return ""
	}
	return s.URLPrefix + rel
}

// CleanName reduces an uploaded filename to its base name made of letters,
// digits, '-', '_' and '.'.  Spaces become underscores.
func CleanName(filename string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			return r
		}
		return -1
	}, base)
	base = strings.TrimLeft(base, ".")
	if base == "" {
		return "upload"
	}
	return base
}

// Package download saves the document shown by the viewer to disk.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/csheth/actes/internal/fetch"
	"github.com/csheth/actes/internal/viewer"
)

// DefaultName is used when no better name can be derived.
const DefaultName = "document.pdf"

const maxCollisions = 999

var (
	ErrNoSource = errors.New("download: nothing to download")

	dispositionFallback = regexp.MustCompile(`(?i)filename\*?=(?:UTF-8''|")?([^";]+)`)
	unsafeNameChars     = regexp.MustCompile(`[\x00-\x1f<>:"/\\|?*]`)
)

// Fetcher retrieves remote documents with the user's credentials. Revalidate
// must reach the server and fail on an error status.
type Fetcher interface {
	Revalidate(ctx context.Context, url string) (fetch.Entry, error)
}

// Saver implements viewer.Downloader. Existing files are never overwritten.
type Saver struct {
	dir     string
	fetcher Fetcher
	logger  *zap.Logger
}

// New returns a Saver writing into dir.
func New(dir string, fetcher Fetcher, logger *zap.Logger) *Saver {
	if dir == "" {
		dir = "."
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{dir: dir, fetcher: fetcher, logger: logger.Named("download")}
}

// Download writes src into the download directory and returns the path.
func (s *Saver) Download(ctx context.Context, src viewer.Source) (string, error) {
	if src.IsZero() {
		return "", ErrNoSource
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", err
	}
	if src.IsLocal() {
		name := LocalName(src.Name)
		return s.write(name, func(w io.Writer) error {
			_, err := w.Write(src.Data)
			return err
		})
	}
	if s.fetcher == nil {
		return "", errors.New("download: no fetcher configured")
	}
	entry, err := s.fetcher.Revalidate(ctx, src.URL)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", src.URL, err)
	}
	name := RemoteName(entry.ContentDisposition, src.URL)
	return s.write(name, func(w io.Writer) error {
		in, err := os.Open(entry.Path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(w, in)
		return err
	})
}

func (s *Saver) write(name string, fill func(io.Writer) error) (string, error) {
	file, target, err := createUnique(s.dir, name)
	if err != nil {
		return "", err
	}
	if err := fill(file); err != nil {
		file.Close()
		_ = os.Remove(target)
		return "", err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(target)
		return "", err
	}
	s.logger.Info("document saved", zap.String("path", target))
	return target, nil
}

// createUnique creates dir/name, or "name (n).ext" for the first free n.
func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 0; n <= maxCollisions; n++ {
		candidate := name
		if n > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
		}
		target := filepath.Join(dir, candidate)
		file, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			return file, target, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("download: too many files named %q", name)
}

// LocalName is the file name used for a local blob.
func LocalName(original string) string {
	if name := sanitize(original); name != "" {
		return name
	}
	return DefaultName
}

// RemoteName picks the name for a remote document: the Content-Disposition
// filename, then the last URL path segment, then DefaultName.
func RemoteName(contentDisposition, rawURL string) string {
	if name := sanitize(FilenameFromDisposition(contentDisposition)); name != "" {
		return name
	}
	if name := FilenameFromURL(rawURL); name != "" {
		return name
	}
	return DefaultName
}

// FilenameFromDisposition extracts the filename parameter, preferring the
// RFC 5987 filename* form.
func FilenameFromDisposition(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}
	m := dispositionFallback.FindStringSubmatch(header)
	if len(m) < 2 {
		return ""
	}
	raw := strings.TrimSpace(m[1])
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

// FilenameFromURL returns the last path segment of rawURL, with ".pdf"
// appended when the segment has no extension.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	segment := path.Base(strings.TrimRight(u.Path, "/"))
	if segment == "." || segment == "/" {
		return ""
	}
	if decoded, err := url.PathUnescape(segment); err == nil {
		segment = decoded
	}
	segment = sanitize(segment)
	if segment == "" {
		return ""
	}
	if path.Ext(segment) == "" {
		segment += ".pdf"
	}
	return segment
}

func sanitize(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, ". ")
	if name == "" || name == "_" {
		return ""
	}
	return name
}

// Package fetch downloads remote PDFs into an on-disk cache. Fresh entries
// are reused, stale ones are revalidated with ETag/Last-Modified, and
// interrupted transfers resume from the partial file. Revalidate always asks
// the server and never falls back to the cached copy.
package fetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	cacheSubdir        = "actes/pdfs"
	defaultTTL         = 24 * time.Hour
	partialSuffix      = ".part"
	metaSuffix         = ".meta"
	defaultHTTPTimeout = 90 * time.Second
)

var actePDFPath = regexp.MustCompile(`/actes/([0-9A-Za-z_-]+)/pdf/?$`)

// Options configures a Cache.
type Options struct {
	// Dir is the cache directory. Empty means the user cache directory.
	Dir string
	// Client performs the requests. Its cookie jar carries the session.
	Client *http.Client
	TTL    time.Duration
	Logger *zap.Logger
}

// Entry describes a cached document.
type Entry struct {
	Path               string
	URL                string
	ContentDisposition string
	ContentType        string
	Size               int64
}

// Cache is safe for concurrent use. Concurrent fetches of the same URL share
// one transfer.
type Cache struct {
	dir    string
	client *http.Client
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
	locks  sync.Map // key -> *sync.Mutex
}

type cacheMeta struct {
	URL                string    `json:"url"`
	ETag               string    `json:"etag"`
	LastModified       string    `json:"lastModified"`
	ContentDisposition string    `json:"contentDisposition,omitempty"`
	ContentType        string    `json:"contentType,omitempty"`
	CachedAt           time.Time `json:"cachedAt"`
	Size               int64     `json:"size"`
}

// StatusError is returned for responses the cache cannot store.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pdf download failed: %s (%s)", e.Status, e.Body)
}

// New prepares the cache directory.
func New(opts Options) (*Cache, error) {
	dir := opts.Dir
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			base = filepath.Join(os.TempDir(), "actes-cache")
		}
		dir = filepath.Join(base, cacheSubdir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{dir: dir, client: client, ttl: ttl, logger: logger.Named("fetch")}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Fetch returns the cached copy of pdfURL, downloading it when missing or
// stale. A stale copy is served when the server cannot be reached, never when
// it answers with an error status.
func (c *Cache) Fetch(ctx context.Context, pdfURL string) (Entry, error) {
	return c.get(ctx, pdfURL, false)
}

// Revalidate asks the server for pdfURL even when the cached copy is fresh.
// A 304 confirms the copy; any failure is returned as is.
func (c *Cache) Revalidate(ctx context.Context, pdfURL string) (Entry, error) {
	return c.get(ctx, pdfURL, true)
}

// Invalidate marks the cached copy of pdfURL stale so the next Fetch
// revalidates it. The file is kept for conditional requests.
func (c *Cache) Invalidate(pdfURL string) error {
	pdfPath, _, _ := c.pathsFor(cacheKey(pdfURL))
	if err := os.Chtimes(pdfPath, time.Unix(0, 0), time.Unix(0, 0)); err != nil && !os.IsNotExist(err) {
		return err
	}
	c.logger.Debug("pdf invalidated", zap.String("url", pdfURL))
	return nil
}

func (c *Cache) get(ctx context.Context, pdfURL string, revalidate bool) (Entry, error) {
	key := cacheKey(pdfURL)
	flight := key
	if revalidate {
		flight += "#revalidate"
	}
	// The transfer outlives a single caller so a cancelled load does not fail
	// the others waiting on it; the partial file resumes next time.
	ch := c.group.DoChan(flight, func() (any, error) {
		return c.fetch(context.WithoutCancel(ctx), pdfURL, key, revalidate)
	})
	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Entry{}, res.Err
		}
		return res.Val.(Entry), nil
	}
}

func (c *Cache) lock(key string) func() {
	mu, _ := c.locks.LoadOrStore(key, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}

func (c *Cache) fetch(ctx context.Context, pdfURL, key string, revalidate bool) (Entry, error) {
	defer c.lock(key)()
	pdfPath, metaPath, partialPath := c.pathsFor(key)
	meta, _ := readMeta(metaPath)

	info, _ := os.Stat(pdfPath)
	if !revalidate && info != nil && info.Size() > 0 && time.Since(info.ModTime()) < c.ttl {
		return entryFor(pdfPath, pdfURL, meta, info.Size()), nil
	}

	start := time.Now()
	entry, err := c.download(ctx, pdfURL, pdfPath, metaPath, partialPath, meta, info)
	if err == nil {
		c.logger.Debug("pdf cached", zap.String("url", pdfURL), zap.Int64("size", entry.Size), zap.Duration("duration", time.Since(start)))
		return entry, nil
	}
	var statusErr *StatusError
	if !revalidate && !errors.As(err, &statusErr) && info != nil && info.Size() > 0 {
		c.logger.Warn("serving stale pdf", zap.String("url", pdfURL), zap.Error(err))
		return entryFor(pdfPath, pdfURL, meta, info.Size()), nil
	}
	return Entry{}, err
}

func (c *Cache) download(ctx context.Context, pdfURL, pdfPath, metaPath, partialPath string, meta cacheMeta, current os.FileInfo) (Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return Entry{}, err
	}
	req.Header.Set("Accept", "application/pdf")
	if current != nil && current.Size() > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	var partialSize int64
	if info, err := os.Stat(partialPath); err == nil && info.Size() > 0 {
		partialSize = info.Size()
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", partialSize))
		if meta.ETag != "" {
			req.Header.Set("If-Range", meta.ETag)
		} else if meta.LastModified != "" {
			req.Header.Set("If-Range", meta.LastModified)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Entry{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if current != nil && current.Size() > 0 {
			meta.CachedAt = time.Now().UTC()
			_ = writeMeta(metaPath, meta)
			now := time.Now()
			_ = os.Chtimes(pdfPath, now, now)
			return entryFor(pdfPath, pdfURL, meta, current.Size()), nil
		}
		return c.download(ctx, pdfURL, pdfPath, metaPath, partialPath, cacheMeta{}, nil)
	case http.StatusOK:
		return c.saveBody(resp, pdfPath, metaPath, partialPath, false)
	case http.StatusPartialContent:
		return c.saveBody(resp, pdfPath, metaPath, partialPath, partialSize > 0)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Entry{}, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(body))}
	}
}

func (c *Cache) saveBody(resp *http.Response, pdfPath, metaPath, partialPath string, appendExisting bool) (Entry, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendExisting {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(partialPath, flags, 0o644)
	if err != nil {
		return Entry{}, err
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		return Entry{}, err
	}
	if err := file.Close(); err != nil {
		return Entry{}, err
	}
	if err := os.Rename(partialPath, pdfPath); err != nil {
		return Entry{}, err
	}

	meta := cacheMeta{
		URL:                resp.Request.URL.String(),
		ETag:               resp.Header.Get("Etag"),
		LastModified:       resp.Header.Get("Last-Modified"),
		ContentDisposition: resp.Header.Get("Content-Disposition"),
		ContentType:        resp.Header.Get("Content-Type"),
		CachedAt:           time.Now().UTC(),
	}
	if info, err := os.Stat(pdfPath); err == nil {
		meta.Size = info.Size()
	}
	if err := writeMeta(metaPath, meta); err != nil {
		return Entry{}, err
	}
	return entryFor(pdfPath, meta.URL, meta, meta.Size), nil
}

func (c *Cache) pathsFor(key string) (string, string, string) {
	return filepath.Join(c.dir, key+".pdf"), filepath.Join(c.dir, key+metaSuffix), filepath.Join(c.dir, key+partialSuffix)
}

func entryFor(path, pdfURL string, meta cacheMeta, size int64) Entry {
	return Entry{
		Path:               path,
		URL:                pdfURL,
		ContentDisposition: meta.ContentDisposition,
		ContentType:        meta.ContentType,
		Size:               size,
	}
}

// cacheKey names acte PDFs after their host and identifier so the cache
// directory stays readable; anything else is hashed.
func cacheKey(pdfURL string) string {
	if u, err := url.Parse(pdfURL); err == nil && u.Host != "" {
		if m := actePDFPath.FindStringSubmatch(u.Path); len(m) > 1 {
			return sanitizeKey(u.Host + "-acte-" + m[1])
		}
	}
	sum := sha1.Sum([]byte(pdfURL))
	return hex.EncodeToString(sum[:])
}

func sanitizeKey(value string) string {
	value = strings.TrimSpace(value)
	value = strings.ReplaceAll(value, "/", "-")
	value = strings.ReplaceAll(value, ":", "-")
	value = strings.ReplaceAll(value, "..", "-")
	return value
}

func readMeta(path string) (cacheMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cacheMeta{}, err
	}
	var meta cacheMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}, err
	}
	return meta, nil
}

func writeMeta(path string, meta cacheMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestCache(t *testing.T, server *httptest.Server) *Cache {
	t.Helper()
	cache, err := New(Options{Dir: t.TempDir(), Client: server.Client()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return cache
}

func TestCacheReusesFreshFile(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Etag", `"v1"`)
		_, _ = w.Write([]byte("%PDF-1.4\nHello"))
	}))
	t.Cleanup(server.Close)

	cache := newTestCache(t, server)
	ctx := context.Background()

	first, err := cache.Fetch(ctx, server.URL+"/actes/12/pdf")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if _, err := os.Stat(first.Path); err != nil {
		t.Fatalf("cached file missing: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected single download, got %d hits", hits.Load())
	}

	second, err := cache.Fetch(ctx, server.URL+"/actes/12/pdf")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if first.Path != second.Path {
		t.Fatalf("paths differ: %s vs %s", first.Path, second.Path)
	}
	if hits.Load() != 1 {
		t.Fatalf("cache miss triggered download, total hits %d", hits.Load())
	}
}

func TestCacheRevalidatesStaleFile(t *testing.T) {
	var conditional atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v2"` {
			conditional.Store(true)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Etag", `"v2"`)
		_, _ = w.Write([]byte("%PDF-1.4\nUpdated"))
	}))
	t.Cleanup(server.Close)

	cache := newTestCache(t, server)
	ctx := context.Background()

	entry, err := cache.Fetch(ctx, server.URL+"/actes/3/pdf")
	if err != nil {
		t.Fatalf("initial fetch: %v", err)
	}

	// Age the file to force a conditional request.
	old := time.Now().Add(-(defaultTTL + time.Hour))
	if err := os.Chtimes(entry.Path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if _, err := cache.Fetch(ctx, server.URL+"/actes/3/pdf"); err != nil {
		t.Fatalf("conditional fetch: %v", err)
	}
	if !conditional.Load() {
		t.Fatal("expected server to be consulted for stale cache")
	}
}

func TestCacheResumesPartialDownload(t *testing.T) {
	var rangeHeader atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rangeHeader.Store(r.Header.Get("Range"))
		w.Header().Set("Etag", `"resume"`)
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("world"))
	}))
	t.Cleanup(server.Close)

	cache := newTestCache(t, server)
	pdfURL := server.URL + "/actes/44/pdf"
	pdfPath, metaPath, partPath := cache.pathsFor(cacheKey(pdfURL))

	if err := os.WriteFile(partPath, []byte("hello "), 0o644); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	if err := writeMeta(metaPath, cacheMeta{ETag: `"resume"`}); err != nil {
		t.Fatalf("write meta: %v", err)
	}

	entry, err := cache.Fetch(context.Background(), pdfURL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if entry.Path != pdfPath {
		t.Fatalf("unexpected path: %s", entry.Path)
	}
	data, err := os.ReadFile(entry.Path)
	if err != nil {
		t.Fatalf("read cached pdf: %v", err)
	}
	if string(data) != "hello world" {
		t.Fatalf("resume failed, got %q", string(data))
	}
	if got := rangeHeader.Load(); got != fmt.Sprintf("bytes=%d-", len("hello ")) {
		t.Fatalf("expected range header, got %q", got)
	}
	if _, err := os.Stat(partPath); err == nil || !os.IsNotExist(err) {
		t.Fatalf("partial file should be removed, err=%v", err)
	}
}

func TestCacheKeepsContentDisposition(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="arrete-2024-12.pdf"`)
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	t.Cleanup(server.Close)

	cache := newTestCache(t, server)
	ctx := context.Background()
	if _, err := cache.Fetch(ctx, server.URL+"/actes/5/pdf"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	// Served from disk the second time; the header comes from the meta file.
	entry, err := cache.Fetch(ctx, server.URL+"/actes/5/pdf")
	if err != nil {
		t.Fatalf("cached fetch: %v", err)
	}
	if !strings.Contains(entry.ContentDisposition, "arrete-2024-12.pdf") {
		t.Fatalf("content disposition lost: %q", entry.ContentDisposition)
	}
	if entry.ContentType != "application/pdf" {
		t.Fatalf("content type = %q", entry.ContentType)
	}
}

func TestCacheReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Acte introuvable", http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	cache := newTestCache(t, server)
	_, err := cache.Fetch(context.Background(), server.URL+"/actes/999/pdf")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound || !strings.Contains(statusErr.Body, "introuvable") {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}

func TestCacheFetchHonorsCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() { close(release) })

	cache := newTestCache(t, server)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := cache.Fetch(ctx, server.URL+"/actes/8/pdf"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCacheKey(t *testing.T) {
	t.Parallel()
	if got := cacheKey("http://localhost:8000/actes/7/pdf"); got != "localhost-8000-acte-7" {
		t.Fatalf("acte key = %q", got)
	}
	key := cacheKey("https://example.com/files/foo.pdf")
	if len(key) != 40 || strings.Contains(key, "/") {
		t.Fatalf("fallback key should be a sha1 hex digest, got %q", key)
	}
}

func TestCacheRevalidateAlwaysAsksServer(t *testing.T) {
	var hits atomic.Int32
	var gone atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if gone.Load() {
			http.Error(w, "Acte introuvable", http.StatusNotFound)
			return
		}
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Etag", `"v1"`)
		_, _ = w.Write([]byte("%PDF-1.4\nFresh"))
	}))
	t.Cleanup(server.Close)

	cache := newTestCache(t, server)
	ctx := context.Background()
	pdfURL := server.URL + "/actes/7/pdf"

	if _, err := cache.Fetch(ctx, pdfURL); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	entry, err := cache.Revalidate(ctx, pdfURL)
	if err != nil {
		t.Fatalf("revalidate: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("revalidate of a fresh copy should reach the server, hits=%d", hits.Load())
	}
	if entry.Size == 0 {
		t.Fatalf("304 should keep the cached copy, got %+v", entry)
	}

	gone.Store(true)
	_, err = cache.Revalidate(ctx, pdfURL)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
}

func TestCacheDoesNotServeStaleOnErrorStatus(t *testing.T) {
	var gone atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gone.Load() {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	t.Cleanup(server.Close)

	cache := newTestCache(t, server)
	ctx := context.Background()
	pdfURL := server.URL + "/actes/9/pdf"
	if _, err := cache.Fetch(ctx, pdfURL); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := cache.Invalidate(pdfURL); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	gone.Store(true)
	if _, err := cache.Fetch(ctx, pdfURL); err == nil {
		t.Fatal("expected the 403 to surface instead of the stale copy")
	}
}

func TestCacheServesStaleWhenUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	cache := newTestCache(t, server)
	ctx := context.Background()
	pdfURL := server.URL + "/actes/10/pdf"
	if _, err := cache.Fetch(ctx, pdfURL); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := cache.Invalidate(pdfURL); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	server.Close()

	entry, err := cache.Fetch(ctx, pdfURL)
	if err != nil {
		t.Fatalf("offline fetch should serve the stale copy: %v", err)
	}
	if entry.Size == 0 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if _, err := cache.Revalidate(ctx, pdfURL); err == nil {
		t.Fatal("revalidate must fail when the server is unreachable")
	}
}

func TestCacheInvalidateForcesConditionalRequest(t *testing.T) {
	var conditional atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v3"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Etag", `"v3"`)
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	t.Cleanup(server.Close)

	cache := newTestCache(t, server)
	ctx := context.Background()
	pdfURL := server.URL + "/actes/11/pdf"
	if _, err := cache.Fetch(ctx, pdfURL); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := cache.Invalidate(pdfURL); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := cache.Fetch(ctx, pdfURL); err != nil {
		t.Fatalf("fetch after invalidate: %v", err)
	}
	if conditional.Load() != 1 {
		t.Fatalf("expected one conditional request, got %d", conditional.Load())
	}
	if err := cache.Invalidate(server.URL + "/actes/404/pdf"); err != nil {
		t.Fatalf("invalidating a missing entry: %v", err)
	}
}

package viewer

import (
	"context"
	"strings"
)

// Source identifies the document a controller displays. Exactly one of URL or
// Data is meaningful; when both are set the local bytes win.
type Source struct {
	URL  string
	Name string
	Data []byte
}

// Remote returns a source fetched from url.
func Remote(url string) Source {
	return Source{URL: strings.TrimSpace(url)}
}

// Local returns a source backed by bytes already in memory. name is the
// original file name and may be empty.
func Local(name string, data []byte) Source {
	return Source{Name: name, Data: data}
}

// IsZero reports whether the source carries nothing to display.
func (s Source) IsZero() bool {
	return len(s.Data) == 0 && s.URL == ""
}

// IsLocal reports whether the source is a local blob.
func (s Source) IsLocal() bool {
	return len(s.Data) > 0
}

// Size is a width/height pair in surface cells.
type Size struct {
	Width  float64
	Height float64
}

// Raster is a rendered page: one string per surface row.
type Raster struct {
	Width  int
	Height int
	Lines  []string
}

// Backend opens documents. Implementations must honor ctx cancellation.
type Backend interface {
	Open(ctx context.Context, src Source) (Document, error)
}

// Document is a parsed document handle owned by a single controller.
type Document interface {
	PageCount() int
	Page(n int) (Page, error)
	Close() error
}

// Page is one page of a Document.
type Page interface {
	// Viewport returns the page's size on the surface at scale.
	Viewport(scale float64) Size
	// Render rasterizes the page at scale. It returns ctx.Err() when the
	// request is cancelled before completion.
	Render(ctx context.Context, scale float64) (Raster, error)
}

// Downloader saves the bytes behind a source and returns the written path.
type Downloader interface {
	Download(ctx context.Context, src Source) (string, error)
}

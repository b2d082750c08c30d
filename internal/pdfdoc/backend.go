// Package pdfdoc is the viewer backend for PDF files. Pages are rasterized
// into character grids by placing every text glyph and drawn rectangle at
// its position on the page.
package pdfdoc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/csheth/actes/internal/fetch"
	"github.com/csheth/actes/internal/viewer"
)

// ErrClosed is returned by pages of a released document.
var ErrClosed = errors.New("pdfdoc: document closed")

// minFileSize is below the trailer window the parser reads.
const minFileSize = 100

// Fetcher retrieves remote documents into local files.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetch.Entry, error)
}

// Backend opens local blobs directly and remote URLs through the fetcher.
type Backend struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// New returns a Backend. fetcher may be nil when only local sources are used.
func New(fetcher Fetcher, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backend{fetcher: fetcher, logger: logger.Named("pdfdoc")}
}

// Open implements viewer.Backend.
func (b *Backend) Open(ctx context.Context, src viewer.Source) (viewer.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if src.IsLocal() {
		data := src.Data
		reader, err := newReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return nil, err
		}
		return newDocument(reader, nil, b.logger), nil
	}
	if src.URL == "" {
		return nil, viewer.ErrNoDocument
	}
	if b.fetcher == nil {
		return nil, errors.New("pdfdoc: remote sources need a fetcher")
	}
	entry, err := b.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(entry.Path)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	reader, err := newReader(file, info.Size())
	if err != nil {
		file.Close()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		file.Close()
		return nil, err
	}
	return newDocument(reader, file, b.logger), nil
}

// newReader wraps pdf.NewReader, which panics on some malformed trailers.
func newReader(r io.ReaderAt, size int64) (reader *pdf.Reader, err error) {
	if size < minFileSize {
		return nil, fmt.Errorf("not a PDF file: %d bytes", size)
	}
	defer func() {
		if rec := recover(); rec != nil {
			reader, err = nil, fmt.Errorf("failed to open pdf: %v", rec)
		}
	}()
	reader, err = pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	return reader, nil
}

// document serializes access to the parser and defers closing the file until
// in-flight renders have returned. Page objects and their boxes are resolved
// once at open, so Page never waits for a content parse.
type document struct {
	reader *pdf.Reader
	file   io.Closer
	logger *zap.Logger
	pages  []resolvedPage

	// readSem holds the parser; waiting on it honors cancellation.
	readSem chan struct{}

	mu     sync.Mutex
	active int
	closed bool
}

type resolvedPage struct {
	v   pdf.Page
	box box
	err error
}

func newDocument(reader *pdf.Reader, file io.Closer, logger *zap.Logger) *document {
	d := &document{reader: reader, file: file, logger: logger, readSem: make(chan struct{}, 1)}
	count := d.countPages()
	d.pages = make([]resolvedPage, count)
	for i := range d.pages {
		d.pages[i] = d.resolve(i + 1)
	}
	return d
}

func (d *document) countPages() (n int) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Warn("page count unreadable", zap.Any("panic", rec))
			n = 0
		}
	}()
	return d.reader.NumPage()
}

func (d *document) resolve(n int) (rp resolvedPage) {
	defer func() {
		if rec := recover(); rec != nil {
			rp = resolvedPage{err: fmt.Errorf("pdfdoc: malformed page %d: %v", n, rec)}
		}
	}()
	v := d.reader.Page(n)
	if v.V.IsNull() {
		return resolvedPage{err: fmt.Errorf("pdfdoc: page %d missing from page tree", n)}
	}
	return resolvedPage{v: v, box: mediaBox(v)}
}

func (d *document) PageCount() int { return len(d.pages) }

func (d *document) Page(n int) (viewer.Page, error) {
	if n < 1 || n > len(d.pages) {
		return nil, fmt.Errorf("pdfdoc: page %d out of range [1, %d]", n, len(d.pages))
	}
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	rp := d.pages[n-1]
	if rp.err != nil {
		return nil, rp.err
	}
	return &page{doc: d, number: n, v: rp.v, box: rp.box}, nil
}

func (d *document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if d.active == 0 {
		return d.closeFile()
	}
	return nil
}

func (d *document) acquire() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.active++
	return true
}

func (d *document) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active--
	if d.closed && d.active == 0 {
		if err := d.closeFile(); err != nil {
			d.logger.Warn("closing pdf file", zap.Error(err))
		}
	}
}

func (d *document) closeFile() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// withReader runs fn while holding the parser, turning parser panics into
// errors. It gives up waiting when ctx is done.
func (d *document) withReader(ctx context.Context, fn func()) (err error) {
	select {
	case d.readSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-d.readSem }()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdfdoc: malformed page: %v", rec)
		}
	}()
	fn()
	return nil
}

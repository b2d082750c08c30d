package pdfdoc

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/csheth/actes/internal/viewer"
)

// One surface cell at scale 1 covers pointsPerColumn x pointsPerRow points,
// roughly a 12pt glyph.
const (
	pointsPerColumn = 6.0
	pointsPerRow    = 12.0

	// US Letter, used when no MediaBox is found.
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0

	cancelCheckEvery = 256
)

type box struct {
	minX, minY, maxX, maxY float64
}

func (b box) width() float64  { return b.maxX - b.minX }
func (b box) height() float64 { return b.maxY - b.minY }

// mediaBox resolves the page's MediaBox, inherited through the page tree.
func mediaBox(p pdf.Page) box {
	for v := p.V; !v.IsNull(); v = v.Key("Parent") {
		mb := v.Key("MediaBox")
		if mb.Kind() != pdf.Array || mb.Len() != 4 {
			continue
		}
		x0, y0 := mb.Index(0).Float64(), mb.Index(1).Float64()
		x1, y1 := mb.Index(2).Float64(), mb.Index(3).Float64()
		b := box{minX: math.Min(x0, x1), minY: math.Min(y0, y1), maxX: math.Max(x0, x1), maxY: math.Max(y0, y1)}
		if b.width() > 0 && b.height() > 0 {
			return b
		}
	}
	return box{maxX: defaultPageWidth, maxY: defaultPageHeight}
}

type page struct {
	doc    *document
	number int
	v      pdf.Page
	box    box
}

// Viewport implements viewer.Page.
func (p *page) Viewport(scale float64) viewer.Size {
	return viewer.Size{
		Width:  p.box.width() / pointsPerColumn * scale,
		Height: p.box.height() / pointsPerRow * scale,
	}
}

// Render implements viewer.Page.
func (p *page) Render(ctx context.Context, scale float64) (viewer.Raster, error) {
	if err := ctx.Err(); err != nil {
		return viewer.Raster{}, err
	}
	if !p.doc.acquire() {
		return viewer.Raster{}, ErrClosed
	}
	defer p.doc.release()

	var content pdf.Content
	if err := p.doc.withReader(ctx, func() { content = p.v.Content() }); err != nil {
		return viewer.Raster{}, err
	}
	if err := ctx.Err(); err != nil {
		return viewer.Raster{}, err
	}

	vp := p.Viewport(scale)
	g := newGrid(int(math.Ceil(vp.Width)), int(math.Ceil(vp.Height)))
	for _, r := range content.Rect {
		x0, y0 := p.toCell(r.Min.X, r.Max.Y, scale)
		x1, y1 := p.toCell(r.Max.X, r.Min.Y, scale)
		g.rect(x0, y0, x1, y1)
	}
	lastRow, lastCol := -1, -1
	for i, t := range content.Text {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return viewer.Raster{}, err
			}
		}
		col, row := p.toCell(t.X, t.Y, scale)
		// Fonts without widths report every glyph of a run at the same x.
		if row == lastRow && col <= lastCol {
			col = lastCol + 1
		}
		for _, ch := range t.S {
			if !unicode.IsPrint(ch) || unicode.IsSpace(ch) {
				col++
				continue
			}
			g.set(col, row, ch)
			col++
		}
		lastRow, lastCol = row, col-1
	}
	p.doc.logger.Debug("page rasterized",
		zap.Int("page", p.number),
		zap.Float64("scale", scale),
		zap.Int("glyphs", len(content.Text)),
	)
	return g.raster(), nil
}

// toCell maps page space (origin bottom-left) to surface cells (origin
// top-left).
func (p *page) toCell(x, y, scale float64) (int, int) {
	col := (x - p.box.minX) / pointsPerColumn * scale
	row := (p.box.maxY - y) / pointsPerRow * scale
	return int(math.Floor(col)), int(math.Floor(row))
}

type grid struct {
	width, height int
	cells         [][]rune
}

func newGrid(width, height int) *grid {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	cells := make([][]rune, height)
	for i := range cells {
		row := make([]rune, width)
		for j := range row {
			row[j] = ' '
		}
		cells[i] = row
	}
	return &grid{width: width, height: height, cells: cells}
}

func (g *grid) inside(col, row int) bool {
	return col >= 0 && row >= 0 && col < g.width && row < g.height
}

func (g *grid) set(col, row int, ch rune) {
	if g.inside(col, row) {
		g.cells[row][col] = ch
	}
}

// rect outlines a rectangle, or draws a rule when it is one cell thin.
func (g *grid) rect(x0, y0, x1, y1 int) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	x0, x1 = clamp(x0, -1, g.width), clamp(x1, -1, g.width)
	y0, y1 = clamp(y0, -1, g.height), clamp(y1, -1, g.height)
	switch {
	case y0 == y1:
		for x := x0; x <= x1; x++ {
			g.line(x, y0, '─')
		}
	case x0 == x1:
		for y := y0; y <= y1; y++ {
			g.line(x0, y, '│')
		}
	default:
		for x := x0; x <= x1; x++ {
			g.line(x, y0, '─')
			g.line(x, y1, '─')
		}
		for y := y0; y <= y1; y++ {
			g.line(x0, y, '│')
			g.line(x1, y, '│')
		}
	}
}

// line draws a rule cell without erasing text.
func (g *grid) line(col, row int, ch rune) {
	if !g.inside(col, row) {
		return
	}
	if cur := g.cells[row][col]; cur == ' ' || cur == '─' || cur == '│' {
		g.cells[row][col] = ch
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (g *grid) raster() viewer.Raster {
	lines := make([]string, g.height)
	for i, row := range g.cells {
		lines[i] = strings.TrimRight(string(row), " ")
	}
	return viewer.Raster{Width: g.width, Height: g.height, Lines: lines}
}

// Package viewer implements the document viewport controller: a single
// scrollable surface showing one page at a time, with page navigation, zoom,
// fit-to-page, wheel gestures that cross page boundaries and download.
//
// The controller is a bubbletea component. Every mutation happens inside
// Update or one of the operation methods, which run on the program loop;
// asynchronous work (opening, rasterizing, downloading) is returned as a
// tea.Cmd whose result comes back through Update. Results from superseded
// loads or renders are recognized by generation and sequence numbers and
// dropped.
package viewer

import (
	"context"
	"errors"
	"math"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

var (
	// ErrNoDocument is returned when an operation needs a loaded document.
	ErrNoDocument = errors.New("viewer: no document loaded")
	// ErrEmptyDocument marks a document that opened but reports no pages.
	ErrEmptyDocument = errors.New("viewer: document has no pages")
)

const (
	defaultWidth        = 80
	defaultHeight       = 24
	defaultInitialScale = 1.25
	wheelLines          = 3
	cellEpsilon         = 1e-6
)

// State is the controller lifecycle state.
type State int

const (
	StateEmpty State = iota
	StateLoading
	StateIdle
	StateRendering
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateLoading:
		return "loading"
	case StateIdle:
		return "idle"
	case StateRendering:
		return "rendering"
	default:
		return "unknown"
	}
}

// ScrollTarget is a one-shot scroll instruction applied after the next
// successful render.
type ScrollTarget int

const (
	ScrollNone ScrollTarget = iota
	ScrollTop
	ScrollBottom
)

// WheelEvent is a normalized wheel gesture. Positive DeltaY points away from
// the user (scroll down). Modifier is Ctrl or Cmd held.
type WheelEvent struct {
	DeltaY   float64
	Modifier bool
}

// ViewState is the navigable state of a loaded document.
type ViewState struct {
	CurrentPage int
	PageCount   int
	Zoom        Zoom
}

// Config wires a controller to its collaborators.
type Config struct {
	Backend      Backend
	Downloader   Downloader
	Logger       *zap.Logger
	Width        int
	Height       int
	InitialScale float64
	FitMode      FitMode
	// Toolbar returns extra content rendered at the end of the toolbar.
	Toolbar func() string
	KeyMap  KeyMap
}

// DownloadedMsg reports the outcome of Download.
type DownloadedMsg struct {
	id   int64
	Path string
	Err  error
}

type loadedMsg struct {
	id  int64
	gen uint64
	doc Document
	err error
}

type renderedMsg struct {
	id     int64
	gen    uint64
	seq    uint64
	raster Raster
	err    error
}

// Controller owns one document handle and one drawing surface.
type Controller struct {
	id     int64
	config Config
	logger *zap.Logger
	keys   KeyMap

	source     Source
	gen        uint64
	loading    bool
	loadCancel context.CancelFunc
	doc        Document
	ready      bool
	lastErr    error
	closed     bool

	state         ViewState
	task          *renderTask
	seq           uint64
	pendingScroll ScrollTarget

	width   int
	height  int
	surface viewport.Model
	raster  Raster
	xOffset int
	renders int
}

// New builds an empty controller. It performs no work until Load is called.
func New(config Config) *Controller {
	if config.Width <= 0 {
		config.Width = defaultWidth
	}
	if config.Height <= 0 {
		config.Height = defaultHeight
	}
	if config.InitialScale <= 0 {
		config.InitialScale = defaultInitialScale
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	keys := config.KeyMap
	if len(keys.Next.Keys()) == 0 {
		keys = DefaultKeyMap()
	}
	surface := viewport.New(config.Width, config.Height)
	surface.MouseWheelEnabled = false

	c := &Controller{
		id:      nextControllerID(),
		config:  config,
		logger:  logger.Named("viewer"),
		keys:    keys,
		width:   config.Width,
		height:  config.Height,
		surface: surface,
	}
	c.state.Zoom = c.initialZoom()
	return c
}

func (c *Controller) initialZoom() Zoom {
	if c.config.FitMode == FitNone {
		return Manual(c.config.InitialScale)
	}
	return Fit(c.config.InitialScale)
}

// State reports the lifecycle state.
func (c *Controller) State() State {
	switch {
	case c.closed || (c.doc == nil && !c.loading):
		return StateEmpty
	case c.loading || !c.ready:
		return StateLoading
	case c.task != nil:
		return StateRendering
	default:
		return StateIdle
	}
}

// ViewState returns a copy of the current view state.
func (c *Controller) ViewState() ViewState { return c.state }

// Source returns the source currently displayed or loading.
func (c *Controller) Source() Source { return c.source }

// Err returns the last load error, if the controller is empty because of it.
func (c *Controller) Err() error { return c.lastErr }

// CanNext reports whether a next page exists.
func (c *Controller) CanNext() bool {
	return c.doc != nil && c.state.CurrentPage < c.state.PageCount
}

// CanPrevious reports whether a previous page exists.
func (c *Controller) CanPrevious() bool {
	return c.doc != nil && c.state.CurrentPage > 1
}

// Load replaces the displayed document. The previous handle is released and
// any outstanding load or render is cancelled.
func (c *Controller) Load(src Source) tea.Cmd {
	c.gen++
	c.stopRender()
	c.stopLoad()
	c.release()
	c.pendingScroll = ScrollNone
	c.source = src
	c.lastErr = nil
	c.ready = false
	c.state = ViewState{Zoom: c.state.Zoom}
	c.clearSurface()
	if c.closed || src.IsZero() {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.loading = true
	c.loadCancel = cancel
	id, gen, backend := c.id, c.gen, c.config.Backend
	c.logger.Debug("loading document",
		zap.Uint64("generation", gen),
		zap.Bool("local", src.IsLocal()),
		zap.String("url", src.URL),
	)
	return func() tea.Msg {
		if backend == nil {
			return loadedMsg{id: id, gen: gen, err: errors.New("viewer: no backend configured")}
		}
		doc, err := backend.Open(ctx, src)
		return loadedMsg{id: id, gen: gen, doc: doc, err: err}
	}
}

// Close moves the controller to its terminal state.
func (c *Controller) Close() {
	c.closed = true
	c.gen++
	c.stopRender()
	c.stopLoad()
	c.release()
	c.pendingScroll = ScrollNone
	c.ready = false
	c.clearSurface()
}

// GoToPage moves to page n clamped into [1, PageCount].
func (c *Controller) GoToPage(n int) tea.Cmd {
	if c.doc == nil {
		return nil
	}
	target := clampPage(n, c.state.PageCount)
	if target == c.state.CurrentPage {
		return nil
	}
	c.state.CurrentPage = target
	if c.state.Zoom.IsFit() {
		c.FitToViewport()
	}
	return c.RenderCurrentPage()
}

// Next advances one page; no-op on the last page.
func (c *Controller) Next() tea.Cmd {
	if !c.CanNext() {
		return nil
	}
	return c.GoToPage(c.state.CurrentPage + 1)
}

// Previous goes back one page; no-op on the first page.
func (c *Controller) Previous() tea.Cmd {
	if !c.CanPrevious() {
		return nil
	}
	return c.GoToPage(c.state.CurrentPage - 1)
}

// ZoomTo sets an absolute scale and leaves fit mode.
func (c *Controller) ZoomTo(scale float64) tea.Cmd {
	c.state.Zoom = Manual(scale)
	return c.RenderCurrentPage()
}

// ZoomBy multiplies the scale by factor and leaves fit mode.
func (c *Controller) ZoomBy(factor float64) tea.Cmd {
	return c.ZoomTo(c.state.Zoom.Scale() * factor)
}

// ZoomStep adds delta to the scale and leaves fit mode.
func (c *Controller) ZoomStep(delta float64) tea.Cmd {
	return c.ZoomTo(c.state.Zoom.Scale() + delta)
}

// FitToViewport recomputes the scale so the current page fits the viewport
// and switches to fit mode. It does not render.
func (c *Controller) FitToViewport() {
	current := c.state.Zoom.Scale()
	if c.doc == nil {
		c.state.Zoom = Fit(current)
		return
	}
	page, err := c.doc.Page(c.state.CurrentPage)
	if err != nil {
		c.logger.Warn("fit: page lookup failed", zap.Int("page", c.state.CurrentPage), zap.Error(err))
		c.state.Zoom = Fit(current)
		return
	}
	scale, ok := fitScale(page.Viewport(1), Size{Width: float64(c.width), Height: float64(c.height)})
	if !ok {
		c.state.Zoom = Fit(current)
		return
	}
	c.state.Zoom = Fit(scale)
}

// Fit switches to fit mode and re-renders.
func (c *Controller) Fit() tea.Cmd {
	c.FitToViewport()
	return c.RenderCurrentPage()
}

// Resize records a new viewport size. In fit mode the page is refitted and
// re-rendered.
func (c *Controller) Resize(width, height int) tea.Cmd {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	if width == c.width && height == c.height {
		return nil
	}
	c.width, c.height = width, height
	c.surface.Width = width
	c.surface.Height = height
	c.xOffset = clampInt(c.xOffset, 0, maxInt(0, c.raster.Width-c.width))
	c.refreshSurface()
	if c.doc == nil || !c.state.Zoom.IsFit() {
		return nil
	}
	c.FitToViewport()
	return c.RenderCurrentPage()
}

// RenderCurrentPage cancels any in-flight render and requests a raster of
// the current page at the current scale.
func (c *Controller) RenderCurrentPage() tea.Cmd {
	c.stopRender()
	if c.doc == nil {
		return nil
	}
	page, err := c.doc.Page(c.state.CurrentPage)
	if err != nil {
		c.logger.Error("render: page lookup failed", zap.Int("page", c.state.CurrentPage), zap.Error(err))
		c.ready = true
		return nil
	}
	scale := c.state.Zoom.Scale()
	c.seq++
	task, ctx := newRenderTask(c.gen, c.seq, c.state.CurrentPage, scale)
	task.viewport = page.Viewport(scale)
	c.task = task
	id := c.id
	return func() tea.Msg {
		raster, err := page.Render(ctx, scale)
		if err == nil && ctx.Err() != nil {
			err = ctx.Err()
		}
		return renderedMsg{id: id, gen: task.gen, seq: task.seq, raster: raster, err: err}
	}
}

// Wheel interprets a wheel gesture.
func (c *Controller) Wheel(ev WheelEvent) tea.Cmd {
	if ev.DeltaY == 0 {
		return nil
	}
	if ev.Modifier {
		factor := wheelZoomIn
		if ev.DeltaY > 0 {
			factor = wheelZoomOut
		}
		return c.ZoomBy(factor)
	}
	if c.doc == nil || c.task != nil {
		return nil
	}
	if ev.DeltaY > 0 {
		if c.surface.AtBottom() && c.CanNext() {
			cmd := c.Next()
			c.pendingScroll = ScrollTop
			return cmd
		}
		c.surface.LineDown(wheelLines)
		return nil
	}
	if c.surface.AtTop() && c.CanPrevious() {
		cmd := c.Previous()
		c.pendingScroll = ScrollBottom
		return cmd
	}
	c.surface.LineUp(wheelLines)
	return nil
}

// PanBy shifts the visible columns of a surface wider than the viewport.
func (c *Controller) PanBy(delta int) {
	next := clampInt(c.xOffset+delta, 0, maxInt(0, c.raster.Width-c.width))
	if next == c.xOffset {
		return
	}
	c.xOffset = next
	c.refreshSurface()
}

// Download saves the current source through the configured Downloader.
func (c *Controller) Download() tea.Cmd {
	if c.source.IsZero() || c.config.Downloader == nil {
		return nil
	}
	src, downloader, id := c.source, c.config.Downloader, c.id
	return func() tea.Msg {
		path, err := downloader.Download(context.Background(), src)
		return DownloadedMsg{id: id, Path: path, Err: err}
	}
}

// Update routes asynchronous results and input events.
func (c *Controller) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case loadedMsg:
		if msg.id != c.id {
			return nil
		}
		return c.handleLoaded(msg)
	case renderedMsg:
		if msg.id != c.id {
			return nil
		}
		return c.handleRendered(msg)
	case DownloadedMsg:
		if msg.id == c.id && msg.Err != nil {
			c.logger.Error("download failed", zap.String("url", c.source.URL), zap.Error(msg.Err))
		}
		return nil
	case tea.KeyMsg:
		return c.handleKey(msg)
	case tea.MouseMsg:
		return c.handleMouse(msg)
	}
	return nil
}

// Owns reports whether msg is a DownloadedMsg produced by this controller.
func (m DownloadedMsg) Owns(c *Controller) bool {
	return c != nil && m.id == c.id
}

func (c *Controller) handleLoaded(msg loadedMsg) tea.Cmd {
	if msg.gen != c.gen || c.closed {
		if msg.doc != nil {
			_ = msg.doc.Close()
		}
		c.logger.Debug("discarding stale load", zap.Uint64("generation", msg.gen), zap.Uint64("current", c.gen))
		return nil
	}
	c.loading = false
	c.stopLoad()
	if msg.err != nil {
		if msg.doc != nil {
			_ = msg.doc.Close()
		}
		c.lastErr = msg.err
		c.logger.Error("document load failed", zap.String("url", c.source.URL), zap.Error(msg.err))
		return nil
	}
	count := msg.doc.PageCount()
	if count < 1 {
		_ = msg.doc.Close()
		c.lastErr = ErrEmptyDocument
		c.logger.Error("document load failed", zap.String("url", c.source.URL), zap.Error(ErrEmptyDocument))
		return nil
	}
	c.doc = msg.doc
	c.state.PageCount = count
	c.state.CurrentPage = 1
	if c.state.Zoom.IsFit() {
		c.FitToViewport()
	} else {
		c.state.Zoom = Manual(c.config.InitialScale)
	}
	c.logger.Info("document loaded", zap.Uint64("generation", msg.gen), zap.Int("pages", count))
	return c.RenderCurrentPage()
}

func (c *Controller) handleRendered(msg renderedMsg) tea.Cmd {
	if !c.task.matches(msg.gen, msg.seq) {
		return nil
	}
	task := c.task
	c.task = nil
	task.stop()
	c.ready = true
	if msg.err != nil {
		if errors.Is(msg.err, context.Canceled) {
			return nil
		}
		c.pendingScroll = ScrollNone
		c.logger.Error("render failed", zap.Int("page", task.page), zap.Float64("scale", task.scale), zap.Error(msg.err))
		return nil
	}
	c.commit(msg.raster, task.viewport)
	switch c.pendingScroll {
	case ScrollTop:
		c.surface.GotoTop()
	case ScrollBottom:
		c.surface.GotoBottom()
	}
	c.pendingScroll = ScrollNone
	c.renders++
	return nil
}

func (c *Controller) commit(r Raster, vp Size) {
	cols := cells(vp.Width)
	rows := cells(vp.Height)
	if cols < 1 {
		cols = maxInt(1, r.Width)
	}
	if rows < 1 {
		rows = maxInt(1, len(r.Lines))
	}
	lines := make([]string, rows)
	for i := range lines {
		if i < len(r.Lines) {
			lines[i] = clipColumns(r.Lines[i], 0, cols)
		}
	}
	c.raster = Raster{Width: cols, Height: rows, Lines: lines}
	c.xOffset = clampInt(c.xOffset, 0, maxInt(0, cols-c.width))
	c.refreshSurface()
}

func (c *Controller) stopRender() {
	if c.task == nil {
		return
	}
	c.task.stop()
	c.task = nil
}

func (c *Controller) stopLoad() {
	if c.loadCancel != nil {
		c.loadCancel()
		c.loadCancel = nil
	}
	c.loading = false
}

func (c *Controller) release() {
	if c.doc == nil {
		return
	}
	if err := c.doc.Close(); err != nil {
		c.logger.Warn("closing document", zap.Error(err))
	}
	c.doc = nil
}

// cells rounds a surface extent up to whole cells, ignoring floating point
// noise so a fitted page never gains a row.
func cells(extent float64) int {
	return int(math.Ceil(extent - cellEpsilon))
}

func clampPage(n, count int) int {
	if count < 1 {
		return 1
	}
	return clampInt(n, 1, count)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

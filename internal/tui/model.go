// Package tui hosts the document viewer in a full-screen terminal program:
// act metadata above, the viewer toolbar and surface in the middle, notices,
// status and key help below.
package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/csheth/actes/internal/actes"
	"github.com/csheth/actes/internal/viewer"
	"github.com/csheth/actes/internal/watch"
)

// Config wires the program to the viewer backend and optional extras.
type Config struct {
	Backend    viewer.Backend
	Downloader viewer.Downloader
	Logger     *zap.Logger

	// Source is loaded on start.
	Source viewer.Source
	// LocalPath is the file behind a local Source. Reloads re-read it.
	LocalPath string
	// Watcher, when set, reloads LocalPath whenever it changes on disk.
	Watcher *watch.Watcher

	// Cache, when set, is told to revalidate a remote source before a reload.
	Cache Invalidator

	// Lookup and ActeID fetch the metadata header of a published act.
	Lookup ActeLookup
	ActeID int

	// Height caps the surface height; zero fills the window.
	Height       int
	InitialScale float64
	FitMode      viewer.FitMode
	Admin        bool
}

type model struct {
	config Config
	logger *zap.Logger
	stage  stage
	layout pageLayout

	viewer  *viewer.Controller
	viewKey viewer.KeyMap
	keys    keyMap

	jobs     *jobBus
	running  map[string]jobSnapshot
	spinner  spinner.Model
	spinning bool

	pageInput textinput.Model
	help      help.Model

	acte        *actes.Acte
	toasts      []toast
	nextToastID int
	reportedErr error
}

// New returns a tea.Model ready to be mounted into a Program.
func New(config Config) tea.Model {
	return newModel(config)
}

func newModel(config Config) *model {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pageInput := textinput.New()
	pageInput.Prompt = "Go to page: "
	pageInput.Placeholder = "number"
	pageInput.CharLimit = 6
	pageInput.Width = 10

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	m := &model{
		config:    config,
		logger:    logger.Named("tui"),
		stage:     stageViewing,
		layout:    newPageLayout(),
		viewKey:   viewer.DefaultKeyMap(),
		keys:      defaultKeyMap(),
		jobs:      newJobBus(logger),
		running:   map[string]jobSnapshot{},
		spinner:   spin,
		pageInput: pageInput,
		help:      help.New(),
	}
	m.viewer = viewer.New(viewer.Config{
		Backend:      config.Backend,
		Downloader:   config.Downloader,
		Logger:       logger,
		Width:        m.layout.viewportWidth,
		Height:       m.surfaceHeight(m.layout.viewportHeight),
		InitialScale: config.InitialScale,
		FitMode:      config.FitMode,
		Toolbar:      m.toolbarExtra,
		KeyMap:       m.viewKey,
	})
	return m
}

func (m *model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.load(m.config.Source)}
	if m.config.Lookup != nil && m.config.ActeID > 0 {
		cmds = append(cmds, m.jobs.Start(jobKindMetadata, fetchMetadataJob(m.config.Lookup, m.config.ActeID)))
	}
	cmds = append(cmds, waitForChange(m.config.Watcher), m.startSpinner())
	return tea.Batch(cmds...)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		cmds = append(cmds, m.relayout(msg.Width, msg.Height))
	case spinner.TickMsg:
		if !m.busy() {
			m.spinning = false
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.viewer.Close()
			return m, tea.Quit
		}
		cmds = append(cmds, m.handleKey(msg))
	case jobSignalMsg:
		m.running[msg.Snapshot.ID] = msg.Snapshot
	case jobResultEnvelope:
		delete(m.running, msg.Snapshot.ID)
		if msg.Payload != nil {
			_, cmd := m.Update(msg.Payload)
			cmds = append(cmds, cmd)
		}
	case metadataResultMsg:
		if msg.err != nil {
			cmds = append(cmds, m.notify(toastError, "Metadata unavailable: "+msg.err.Error(), false))
			break
		}
		acte := msg.acte
		m.acte = &acte
		cmds = append(cmds, m.relayout(m.layout.windowWidth, m.layout.windowHeight))
	case reloadResultMsg:
		if msg.err != nil {
			cmds = append(cmds, m.notify(toastError, fmt.Sprintf("Reload failed: %v", msg.err), true))
			break
		}
		cmds = append(cmds,
			m.load(viewer.Local(displayName(msg.path), msg.data)),
			m.notify(toastInfo, "Reloaded "+displayName(msg.path), false),
		)
	case watchEventMsg:
		cmds = append(cmds, m.handleWatchEvent(msg.event), waitForChange(m.config.Watcher))
	case toastExpiredMsg:
		m.dismiss(msg.id)
	case viewer.DownloadedMsg:
		cmds = append(cmds, m.viewer.Update(msg))
		if msg.Owns(m.viewer) {
			if msg.Err != nil {
				cmds = append(cmds, m.notify(toastError, "Download failed: "+msg.Err.Error(), true))
			} else {
				cmds = append(cmds, m.notify(toastSuccess, "Saved "+msg.Path, false))
			}
		}
	default:
		cmds = append(cmds, m.viewer.Update(msg))
	}
	cmds = append(cmds, m.reportLoadError(), m.startSpinner())
	return m, tea.Batch(cmds...)
}

func (m *model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if m.stage == stagePageEntry {
		return m.handlePageEntryKey(msg)
	}
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.viewer.Close()
		return tea.Quit
	case key.Matches(msg, m.keys.GoTo):
		if m.viewer.ViewState().PageCount < 1 {
			return nil
		}
		m.stage = stagePageEntry
		m.pageInput.Reset()
		return m.pageInput.Focus()
	case key.Matches(msg, m.keys.Reload):
		return m.reload()
	case key.Matches(msg, m.keys.Dismiss):
		m.dismissLatest()
		return nil
	case key.Matches(msg, m.keys.DismissAll):
		m.toasts = nil
		return nil
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m.relayout(m.layout.windowWidth, m.layout.windowHeight)
	}
	return m.viewer.Update(msg)
}

func (m *model) handlePageEntryKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		m.closePageEntry()
		return nil
	case tea.KeyEnter:
		value := strings.TrimSpace(m.pageInput.Value())
		m.closePageEntry()
		if value == "" {
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return m.notify(toastError, fmt.Sprintf("Invalid page number %q", value), false)
		}
		return m.viewer.GoToPage(n)
	}
	var cmd tea.Cmd
	m.pageInput, cmd = m.pageInput.Update(msg)
	return cmd
}

func (m *model) closePageEntry() {
	m.stage = stageViewing
	m.pageInput.Blur()
	m.pageInput.Reset()
}

func (m *model) handleWatchEvent(ev watch.Event) tea.Cmd {
	if m.config.LocalPath == "" {
		return nil
	}
	if ev.Removed {
		return m.notify(toastInfo, displayName(ev.Path)+" was removed; keeping the last version", false)
	}
	return m.jobs.Start(jobKindReload, reloadFileJob(m.config.LocalPath))
}

func (m *model) reload() tea.Cmd {
	if m.config.LocalPath != "" {
		return m.jobs.Start(jobKindReload, reloadFileJob(m.config.LocalPath))
	}
	src := m.viewer.Source()
	if src.IsZero() {
		return nil
	}
	if !src.IsLocal() && m.config.Cache != nil {
		if err := m.config.Cache.Invalidate(src.URL); err != nil {
			m.logger.Warn("invalidate cached document", zap.String("url", src.URL), zap.Error(err))
		}
	}
	return m.load(src)
}

func (m *model) load(src viewer.Source) tea.Cmd {
	m.reportedErr = nil
	return m.viewer.Load(src)
}

// reportLoadError raises a notice the first time the viewer reports a load
// failure.
func (m *model) reportLoadError() tea.Cmd {
	err := m.viewer.Err()
	if err == nil || err == m.reportedErr {
		return nil
	}
	m.reportedErr = err
	return m.notify(toastError, "Could not open document: "+err.Error(), true)
}

func (m *model) relayout(width, height int) tea.Cmd {
	if width <= 0 || height <= 0 {
		return nil
	}
	m.help.Width = width
	header := heightOf(renderActeHeader(m.acte, width))
	footer := 2 + heightOf(m.help.View(m.helpKeys()))
	m.layout.Update(width, height, header, footer)
	return m.viewer.Resize(m.layout.viewportWidth, m.surfaceHeight(m.layout.viewportHeight))
}

func (m *model) surfaceHeight(available int) int {
	if m.config.Height > 0 && m.config.Height < available {
		return m.config.Height
	}
	return available
}

func (m *model) busy() bool {
	switch m.viewer.State() {
	case viewer.StateLoading, viewer.StateRendering:
		return true
	}
	return len(m.running) > 0
}

func (m *model) startSpinner() tea.Cmd {
	if m.spinning || !m.busy() {
		return nil
	}
	m.spinning = true
	return m.spinner.Tick
}

func (m *model) notify(kind toastKind, text string, sticky bool) tea.Cmd {
	m.nextToastID++
	t := toast{id: m.nextToastID, kind: kind, text: text, sticky: sticky}
	m.toasts = append(m.toasts, t)
	switch kind {
	case toastError:
		m.logger.Warn("notice", zap.String("text", text))
	default:
		m.logger.Debug("notice", zap.String("text", text))
	}
	if sticky {
		return nil
	}
	return expireToastCmd(t.id, toastLifetime)
}

func (m *model) dismiss(id int) {
	for i, t := range m.toasts {
		if t.id == id {
			m.toasts = append(m.toasts[:i], m.toasts[i+1:]...)
			return
		}
	}
}

func (m *model) dismissLatest() {
	if len(m.toasts) == 0 {
		return
	}
	m.toasts = m.toasts[:len(m.toasts)-1]
}

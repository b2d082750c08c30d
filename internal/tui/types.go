package tui

import (
	"time"

	"github.com/csheth/actes/internal/actes"
	"github.com/csheth/actes/internal/watch"
)

type stage int

const (
	stageViewing stage = iota
	stagePageEntry
)

const (
	minViewportWidth          = 40
	viewportHorizontalPadding = 2
	resumePreviewLimit        = 240
)

const toastLifetime = 3 * time.Second

type toastKind int

const (
	toastInfo toastKind = iota
	toastSuccess
	toastError
)

// toast is a transient notice. Sticky toasts stay until dismissed.
type toast struct {
	id     int
	kind   toastKind
	text   string
	sticky bool
}

type toastExpiredMsg struct {
	id int
}

type metadataResultMsg struct {
	acte actes.Acte
	err  error
}

type reloadResultMsg struct {
	path string
	data []byte
	err  error
}

type watchEventMsg struct {
	event watch.Event
}

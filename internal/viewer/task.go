package viewer

import (
	"context"
	"sync/atomic"
)

// renderTask is a cancellable render request. cancel is safe to call more
// than once and after completion.
type renderTask struct {
	gen      uint64
	seq      uint64
	page     int
	scale    float64
	viewport Size
	cancel   context.CancelFunc
}

func newRenderTask(gen, seq uint64, page int, scale float64) (*renderTask, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	return &renderTask{gen: gen, seq: seq, page: page, scale: scale, cancel: cancel}, ctx
}

func (t *renderTask) stop() {
	if t == nil || t.cancel == nil {
		return
	}
	t.cancel()
}

// matches reports whether a completion message belongs to this task.
func (t *renderTask) matches(gen, seq uint64) bool {
	return t != nil && t.gen == gen && t.seq == seq
}

var lastControllerID int64

func nextControllerID() int64 {
	return atomic.AddInt64(&lastControllerID, 1)
}

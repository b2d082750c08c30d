package tuitest

import (
	"bytes"
	"io"
)

// terminalQuery is a capability request a real terminal would answer.
type terminalQuery struct {
	pattern  []byte
	response []byte
}

// Cursor position and foreground/background colour queries, in both the BEL
// and ST terminated forms lipgloss and bubbletea emit.
var terminalQueries = []terminalQuery{
	{[]byte("\x1b[6n"), []byte("\x1b[1;1R")},
	{[]byte("\x1b]10;?\x07"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x07")},
	{[]byte("\x1b]10;?\x1b\\"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x1b\\")},
	{[]byte("\x1b]11;?\x07"), []byte("\x1b]11;rgb:0000/0000/0000\x07")},
	{[]byte("\x1b]11;?\x1b\\"), []byte("\x1b]11;rgb:0000/0000/0000\x1b\\")},
}

type terminalResponder struct {
	w   io.Writer
	buf []byte
}

func newTerminalResponder(w io.Writer) *terminalResponder {
	return &terminalResponder{w: w, buf: make([]byte, 0, 128)}
}

// Process answers any query contained in chunk. A short tail is kept so a
// query split across reads is still seen.
func (tr *terminalResponder) Process(chunk []byte) {
	tr.buf = append(tr.buf, chunk...)
	for tr.answerNext() {
	}
	if len(tr.buf) > 256 {
		tr.buf = tr.buf[len(tr.buf)-64:]
	}
}

func (tr *terminalResponder) answerNext() bool {
	for _, q := range terminalQueries {
		idx := bytes.Index(tr.buf, q.pattern)
		if idx < 0 {
			continue
		}
		tr.buf = tr.buf[idx+len(q.pattern):]
		_, _ = tr.w.Write(q.response)
		return true
	}
	return false
}

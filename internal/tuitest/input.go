package tuitest

import "fmt"

var (
	// KeyEnter sends a carriage return to the PTY.
	KeyEnter = []byte{'\r'}
	// KeyCtrlC requests the program to terminate.
	KeyCtrlC = []byte{3}
	// KeyEsc dismisses notices and cancels the page entry.
	KeyEsc = []byte{27}
	// KeyRight and KeyLeft are the cursor keys.
	KeyRight = []byte("\x1b[C")
	KeyLeft  = []byte("\x1b[D")
)

// Wheel button codes in SGR extended mouse mode.
const (
	sgrWheelUp   = 64
	sgrWheelDown = 65
	sgrCtrl      = 16
)

// WheelDown encodes one wheel notch away from the user at the 1-based cell
// (col, row), as sent by terminals in SGR mouse mode.
func WheelDown(col, row int) []byte {
	return sgrMouse(sgrWheelDown, col, row)
}

// WheelUp encodes one wheel notch towards the user.
func WheelUp(col, row int) []byte {
	return sgrMouse(sgrWheelUp, col, row)
}

// CtrlWheelDown is WheelDown with Ctrl held.
func CtrlWheelDown(col, row int) []byte {
	return sgrMouse(sgrWheelDown|sgrCtrl, col, row)
}

func sgrMouse(button, col, row int) []byte {
	return []byte(fmt.Sprintf("\x1b[<%d;%d;%dM", button, col, row))
}

// Type returns the bytes of s typed key by key.
func Type(s string) []byte {
	return []byte(s)
}

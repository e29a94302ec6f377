package monitor

import (
	"os"

	"golang.org/x/term"
)

// Key identifies one keypress relevant to the interactive views.
type Key int

const (
	KeyNone Key = iota
	KeyQuit
	KeySpace
	KeyFaster
	KeySlower
	KeySeekBack
	KeySeekForward
	KeyStep
	KeyJSONToggle
)

// keyboard reads single keypresses from a raw-mode terminal. Close
// restores the terminal state; skipping it leaves the shell raw.
type keyboard struct {
	oldState *term.State
	keys     chan Key
	stop     chan struct{}
}

func newKeyboard() (*keyboard, error) {
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return nil, err
	}
	kb := &keyboard{
		oldState: oldState,
		keys:     make(chan Key, 8),
		stop:     make(chan struct{}),
	}
	go kb.readLoop()
	return kb, nil
}

func (kb *keyboard) readLoop() {
	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return
		}
		key := parseKey(buf[:n])
		if key == KeyNone {
			continue
		}
		select {
		case kb.keys <- key:
		case <-kb.stop:
			return
		}
	}
}

func parseKey(buf []byte) Key {
	if len(buf) == 0 {
		return KeyNone
	}
	switch buf[0] {
	case 3, 'q', 'Q': // Ctrl+C
		return KeyQuit
	case ' ':
		return KeySpace
	case '+', '=':
		return KeyFaster
	case '-', '_':
		return KeySlower
	case '.':
		return KeyStep
	case 'j', 'J':
		return KeyJSONToggle
	case 27: // ESC [ D / ESC [ C
		if len(buf) >= 3 && buf[1] == '[' {
			switch buf[2] {
			case 'D':
				return KeySeekBack
			case 'C':
				return KeySeekForward
			}
		}
		return KeyNone
	}
	return KeyNone
}

func (kb *keyboard) Keys() <-chan Key {
	return kb.keys
}

func (kb *keyboard) Close() error {
	close(kb.stop)
	return term.Restore(int(os.Stdin.Fd()), kb.oldState)
}

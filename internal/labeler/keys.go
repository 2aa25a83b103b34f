package labeler

import (
	"bufio"
	"io"

	"github.com/gdamore/tcell/v2"
)

// Key is one logical operator input.
type Key int

const (
	KeyOther Key = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyQuit
)

func (k Key) String() string {
	switch k {
	case KeyUp:
		return "up"
	case KeyDown:
		return "down"
	case KeyLeft:
		return "left"
	case KeyRight:
		return "right"
	case KeyQuit:
		return "quit"
	default:
		return "other"
	}
}

// Keys blocks until the operator presses a key. io.EOF means no more input
// will arrive.
type Keys interface {
	ReadKey() (Key, error)
}

const (
	esc     = 0x1b
	quitKey = 'q'
)

// ByteKeys decodes raw terminal bytes. An escape sequence (ESC [ X or ESC O X)
// is consumed as a single key so arrow presses never leak partial bytes.
type ByteKeys struct {
	r *bufio.Reader
}

func NewByteKeys(r io.Reader) *ByteKeys {
	return &ByteKeys{r: bufio.NewReader(r)}
}

func (k *ByteKeys) ReadKey() (Key, error) {
	c, err := k.r.ReadByte()
	if err != nil {
		return KeyOther, err
	}
	switch c {
	case quitKey:
		return KeyQuit, nil
	case esc:
	default:
		return KeyOther, nil
	}

	var seq [2]byte
	for i := range seq {
		b, err := k.r.ReadByte()
		if err != nil {
			return KeyOther, err
		}
		seq[i] = b
	}
	if seq[0] != '[' && seq[0] != 'O' {
		return KeyOther, nil
	}
	switch seq[1] {
	case 'A':
		return KeyUp, nil
	case 'B':
		return KeyDown, nil
	case 'C':
		return KeyRight, nil
	case 'D':
		return KeyLeft, nil
	default:
		return KeyOther, nil
	}
}

// ScreenKeys reads keypresses from a tcell screen, which already runs the
// terminal raw and without echo.
type ScreenKeys struct {
	screen tcell.Screen
}

func NewScreenKeys(screen tcell.Screen) *ScreenKeys {
	return &ScreenKeys{screen: screen}
}

func (k *ScreenKeys) ReadKey() (Key, error) {
	for {
		ev := k.screen.PollEvent()
		switch ev := ev.(type) {
		case nil:
			// Screen finalized.
			return KeyOther, io.EOF
		case *tcell.EventResize:
			k.screen.Sync()
		case *tcell.EventKey:
			return mapEventKey(ev), nil
		}
	}
}

func mapEventKey(ev *tcell.EventKey) Key {
	switch ev.Key() {
	case tcell.KeyUp:
		return KeyUp
	case tcell.KeyDown:
		return KeyDown
	case tcell.KeyLeft:
		return KeyLeft
	case tcell.KeyRight:
		return KeyRight
	case tcell.KeyRune:
		if ev.Rune() == quitKey {
			return KeyQuit
		}
	}
	return KeyOther
}

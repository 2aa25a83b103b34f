package labeler

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestByteKeys(t *testing.T) {
	input := "\x1b[A\x1b[B\x1b[C\x1b[Dx\x1bOCq\x1b[Z"
	keys := NewByteKeys(strings.NewReader(input))

	want := []Key{KeyUp, KeyDown, KeyRight, KeyLeft, KeyOther, KeyRight, KeyQuit, KeyOther}
	for i, w := range want {
		got, err := keys.ReadKey()
		if err != nil {
			t.Fatalf("key %d: %v", i, err)
		}
		if got != w {
			t.Errorf("key %d = %s, want %s", i, got, w)
		}
	}
	if _, err := keys.ReadKey(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestByteKeys_TruncatedSequence(t *testing.T) {
	keys := NewByteKeys(bytes.NewReader([]byte{0x1b, '['}))
	if _, err := keys.ReadKey(); err != io.EOF {
		t.Errorf("expected io.EOF on truncated escape sequence, got %v", err)
	}
}

func newSimScreen(t *testing.T) tcell.SimulationScreen {
	t.Helper()
	s := tcell.NewSimulationScreen("UTF-8")
	if err := s.Init(); err != nil {
		t.Fatalf("init screen: %v", err)
	}
	s.SetSize(60, 8)
	return s
}

func TestScreenKeys(t *testing.T) {
	s := newSimScreen(t)
	defer s.Fini()

	s.InjectKey(tcell.KeyUp, 0, tcell.ModNone)
	s.InjectKey(tcell.KeyLeft, 0, tcell.ModNone)
	s.InjectKey(tcell.KeyRune, 'x', tcell.ModNone)
	s.InjectKey(tcell.KeyRight, 0, tcell.ModNone)
	s.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)

	keys := NewScreenKeys(s)
	want := []Key{KeyUp, KeyLeft, KeyOther, KeyRight, KeyQuit}
	for i, w := range want {
		got, err := keys.ReadKey()
		if err != nil {
			t.Fatalf("key %d: %v", i, err)
		}
		if got != w {
			t.Errorf("key %d = %s, want %s", i, got, w)
		}
	}
}

func TestScreenKeys_Finalized(t *testing.T) {
	s := newSimScreen(t)
	s.Fini()

	if _, err := NewScreenKeys(s).ReadKey(); err != io.EOF {
		t.Errorf("expected io.EOF after Fini, got %v", err)
	}
}

func screenRow(s tcell.SimulationScreen, y int) string {
	cells, w, _ := s.GetContents()
	var sb strings.Builder
	for _, c := range cells[y*w : (y+1)*w] {
		if len(c.Runes) > 0 {
			sb.WriteRune(c.Runes[0])
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

func TestScreenDisplay(t *testing.T) {
	s := newSimScreen(t)
	defer s.Fini()

	d := NewScreenDisplay(s, "0", "1")
	err := d.Render(View{Rated: true, Offset: -2, Number: 14, Window: 5, Text: `{"body":"hello"}`})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if got := screenRow(s, 2); got != "[*-2] (  14):" {
		t.Errorf("prefix row = %q", got)
	}
	if got := screenRow(s, 3); got != `{"body":"hello"}` {
		t.Errorf("text row = %q", got)
	}
	if got := screenRow(s, 7); !strings.Contains(got, "[q]=quit") {
		t.Errorf("help row = %q", got)
	}
}

func TestLineDisplay(t *testing.T) {
	var buf bytes.Buffer
	d := NewLineDisplay(&buf)

	_ = d.Render(View{Offset: 0, Number: 3, Text: "a,b"})
	_ = d.Render(View{Rated: true, Offset: -1, Number: 2, Text: "c,d"})

	want := "[  0] (   3): a,b\n[*-1] (   2): c,d\n"
	if buf.String() != want {
		t.Errorf("output =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestWrapText(t *testing.T) {
	lines := wrapText("abcdefgh", 3)
	if strings.Join(lines, "|") != "abc|def|gh" {
		t.Errorf("wrapText = %v", lines)
	}
	if got := wrapText("", 3); len(got) != 1 || got[0] != "" {
		t.Errorf("wrapText(empty) = %v", got)
	}
}

func TestWrapText_WideRunes(t *testing.T) {
	lines := wrapText("日本語ab", 4)
	if strings.Join(lines, "|") != "日本|語ab" {
		t.Errorf("wrapText = %v", lines)
	}
}

func TestDrawText_WideRunes(t *testing.T) {
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer screen.Fini()
	screen.SetSize(10, 2)

	drawText(screen, 0, 0, 6, tcell.StyleDefault, "日本x")

	for _, tt := range []struct {
		x    int
		want rune
	}{
		{0, '日'},
		{2, '本'},
		{4, 'x'},
		{5, ' '},
	} {
		if r, _, _, _ := screen.GetContent(tt.x, 0); r != tt.want {
			t.Errorf("cell %d = %q, want %q", tt.x, r, tt.want)
		}
	}
}

func TestFileSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewFileSink(&buf)
	_ = sink.Append([]byte("one"))
	_ = sink.Append([]byte("two"))

	if buf.String() != "one\ntwo\n" {
		t.Errorf("output = %q", buf.String())
	}
}

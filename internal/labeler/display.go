package labeler

import (
	"fmt"
	"io"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
)

// View is what the operator sees for the record under the cursor.
type View struct {
	Rated  bool   // the record was labeled during this visit
	Offset int    // cursor position relative to the newest slot (<= 0)
	Number int    // 1-based input record number of the slot
	Window int    // records currently in the history buffer
	Text   string // record rendition
}

// Marker is "*" when the last viewed record was rated, else a blank.
func (v View) Marker() string {
	if v.Rated {
		return "*"
	}
	return " "
}

// Prefix renders the "[* -1] (   3):" header used by every display.
func (v View) Prefix() string {
	return fmt.Sprintf("[%s%2d] (%4d):", v.Marker(), v.Offset, v.Number)
}

type Display interface {
	Render(v View) error
}

// LineDisplay prints one line per view, for pipes and plain terminals.
type LineDisplay struct {
	w io.Writer
}

func NewLineDisplay(w io.Writer) *LineDisplay {
	return &LineDisplay{w: w}
}

func (d *LineDisplay) Render(v View) error {
	_, err := fmt.Fprintf(d.w, "%s %s\n", v.Prefix(), v.Text)
	return err
}

// ScreenDisplay draws the view full-screen with tcell.
type ScreenDisplay struct {
	screen tcell.Screen
	left   string
	right  string
}

func NewScreenDisplay(screen tcell.Screen, left, right string) *ScreenDisplay {
	return &ScreenDisplay{screen: screen, left: left, right: right}
}

func (d *ScreenDisplay) Render(v View) error {
	d.screen.Clear()
	width, height := d.screen.Size()

	styleHeader := tcell.StyleDefault.Bold(true).Reverse(true)
	stylePrefix := tcell.StyleDefault.Foreground(tcell.ColorTeal)
	styleRated := tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleHelp := tcell.StyleDefault.Foreground(tcell.ColorGray)

	drawText(d.screen, 0, 0, width, styleHeader,
		fmt.Sprintf(" lblr  record %d  history %d", v.Number, v.Window))

	prefixStyle := stylePrefix
	if v.Rated {
		prefixStyle = styleRated
	}
	drawText(d.screen, 0, 2, width, prefixStyle, v.Prefix())

	y := 3
	for _, line := range wrapText(v.Text, width) {
		if y >= height-2 {
			break
		}
		drawText(d.screen, 0, y, width, tcell.StyleDefault, line)
		y++
	}

	help := fmt.Sprintf(" [←]=%s  [→]=%s  [↑]=previous  [↓]=next  [q]=quit ", d.left, d.right)
	drawText(d.screen, 0, height-1, width, styleHelp, help)
	d.screen.Show()
	return nil
}

func drawText(screen tcell.Screen, x, y, maxWidth int, style tcell.Style, text string) {
	col := 0
	for _, r := range text {
		var comb []rune
		w := runewidth.RuneWidth(r)
		if w == 0 {
			comb = []rune{r}
			r = ' '
			w = 1
		}
		if col+w > maxWidth {
			break
		}
		screen.SetContent(x+col, y, r, comb, style)
		col += w
	}
	for col < maxWidth {
		screen.SetContent(x+col, y, ' ', nil, style)
		col++
	}
}

// wrapText splits text into rows at most width cells wide.
func wrapText(text string, width int) []string {
	if width <= 0 {
		return nil
	}
	var (
		lines []string
		start int
		cells int
	)
	for i, r := range text {
		w := runewidth.RuneWidth(r)
		if cells+w > width && i > start {
			lines = append(lines, text[start:i])
			start, cells = i, 0
		}
		cells += w
	}
	return append(lines, text[start:])
}

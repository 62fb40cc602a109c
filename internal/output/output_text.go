package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tkjaer/mtr/internal/shared"
	"golang.org/x/term"
)

// TextOutput prints the hop table. When live is set the table is redrawn in
// place after every cycle; otherwise only the final table is printed.
type TextOutput struct {
	mu         sync.Mutex
	w          io.Writer
	noDNS      bool
	live       bool
	linesShown int
}

// NewTextOutput writes to stdout and redraws live when stdout is a terminal
// and the run is not in report mode.
func NewTextOutput(noDNS, report bool) *TextOutput {
	live := !report && term.IsTerminal(int(os.Stdout.Fd()))
	return newTextOutputWriter(os.Stdout, noDNS, live)
}

func newTextOutputWriter(w io.Writer, noDNS, live bool) *TextOutput {
	return &TextOutput{w: w, noDNS: noDNS, live: live}
}

func (t *TextOutput) Update(s shared.Snapshot) {
	if !t.live {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.redraw(s)
}

// Complete replaces the live table with the final one.
func (t *TextOutput) Complete(s shared.Snapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.redraw(s)
	t.linesShown = 0
}

func (t *TextOutput) redraw(s shared.Snapshot) {
	if t.linesShown > 0 {
		// cursor up and clear to end of screen
		fmt.Fprintf(t.w, "\x1b[%dA\x1b[J", t.linesShown)
	}
	_ = WriteTable(t.w, s, t.noDNS)
	t.linesShown = tableLines(s)
}

func (t *TextOutput) Close() error {
	return nil
}

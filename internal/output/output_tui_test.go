package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tkjaer/mtr/internal/shared"
)

func TestFormatCell(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		width     int
		alignment cellAlignment
		want      string
	}{
		{
			name:      "left align short",
			value:     "hello",
			width:     10,
			alignment: alignLeft,
			want:      "hello     ",
		},
		{
			name:      "right align short",
			value:     "world",
			width:     10,
			alignment: alignRight,
			want:      "     world",
		},
		{
			name:      "left align exact",
			value:     "exact",
			width:     5,
			alignment: alignLeft,
			want:      "exact",
		},
		{
			name:      "right align wide",
			value:     "toolong",
			width:     3,
			alignment: alignRight,
			want:      "toolong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatCell(tt.value, tt.width, tt.alignment)
			if got != tt.want {
				t.Errorf("formatCell(%q, %d, %v) = %q, want %q", tt.value, tt.width, tt.alignment, got, tt.want)
			}
		})
	}
}

func TestTruncateToWidth(t *testing.T) {
	tests := []struct {
		name  string
		value string
		width int
		want  string
	}{
		{
			name:  "shorter than width",
			value: "short",
			width: 10,
			want:  "short",
		},
		{
			name:  "exact width",
			value: "exact",
			width: 5,
			want:  "exact",
		},
		{
			name:  "zero width",
			value: "anything",
			width: 0,
			want:  "",
		},
		{
			name:  "negative width",
			value: "test",
			width: -1,
			want:  "",
		},
		{
			name:  "empty string",
			value: "",
			width: 5,
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateToWidth(tt.value, tt.width)
			if got != tt.want {
				t.Errorf("truncateToWidth(%q, %d) = %q, want %q", tt.value, tt.width, got, tt.want)
			}
		})
	}
}

func newTestModel() *tuiModel {
	tui := NewBubbleTUIOutput(shared.OutputInfo{
		Destination:   "example.com",
		DestinationIP: "203.0.113.1",
		Source:        "192.0.2.10",
		Interval:      time.Second,
	})
	return tui.model
}

func TestTUIModel_Snapshot(t *testing.T) {
	m := newTestModel()

	snap := testSnapshot()
	m.Update(snapshotMsg{snapshot: snap})

	if m.snapshot.Cycle != 5 {
		t.Errorf("Cycle = %d, want 5", m.snapshot.Cycle)
	}
	if len(m.paths) != 1 {
		t.Errorf("distinct paths = %d, want 1", len(m.paths))
	}
	if m.finished {
		t.Error("model should not be finished before the final snapshot")
	}

	snap.PathHash = "other"
	m.Update(snapshotMsg{snapshot: snap, final: true})

	if len(m.paths) != 2 {
		t.Errorf("distinct paths = %d, want 2", len(m.paths))
	}
	if !m.finished {
		t.Error("model should be finished after the final snapshot")
	}
}

func TestTUIModel_Selection(t *testing.T) {
	m := newTestModel()
	m.Update(snapshotMsg{snapshot: testSnapshot()})

	down := tea.KeyMsg{Type: tea.KeyDown}
	up := tea.KeyMsg{Type: tea.KeyUp}

	m.Update(down)
	m.Update(down)
	m.Update(down) // only three hops
	if m.selectedTTL != 3 {
		t.Errorf("selectedTTL = %d, want 3", m.selectedTTL)
	}

	for i := 0; i < 5; i++ {
		m.Update(up)
	}
	if m.selectedTTL != 1 {
		t.Errorf("selectedTTL = %d, want 1", m.selectedTTL)
	}
}

func TestTUIModel_Quit(t *testing.T) {
	m := newTestModel()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("quit key should return a command")
	}

	select {
	case <-m.quitCh:
	default:
		t.Error("quit key should signal the quit channel")
	}
}

func TestTUIModel_View(t *testing.T) {
	m := newTestModel()

	if got := m.View(); got != "Initializing..." {
		t.Errorf("View() before size = %q", got)
	}

	m.Update(tea.WindowSizeMsg{Width: 140, Height: 40})
	m.Update(snapshotMsg{snapshot: testSnapshot()})

	view := m.View()
	for _, want := range []string{"mtr to example.com (203.0.113.1) from 192.0.2.10", "final hop 3", "gw.example.net", "???"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() does not contain %q", want)
		}
	}

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	if strings.Contains(m.View(), "gw.example.net") {
		t.Error("View() shows names after toggling them off")
	}
}

func TestBubbleTUIOutput_CloseWithoutStart(t *testing.T) {
	var buf bytes.Buffer
	tui := NewBubbleTUIOutput(shared.OutputInfo{Destination: "example.com"})
	tui.out = &buf

	tui.Update(testSnapshot())
	tui.Complete(testSnapshot())

	if err := tui.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !strings.Contains(buf.String(), "mtr to example.com") {
		t.Errorf("Close() should print the final table, got %q", buf.String())
	}
}

package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tkjaer/mtr/internal/shared"
)

// BubbleTUIOutput is an MTR-like TUI using Bubble Tea
type BubbleTUIOutput struct {
	mu       sync.RWMutex
	program  *tea.Program
	model    *tuiModel
	updateCh chan snapshotMsg
	quitCh   chan struct{}
	doneCh   chan struct{}

	// The final table is printed here once the alternate screen is gone
	out   io.Writer
	final *shared.Snapshot
	noDNS bool
}

// snapshotMsg is sent after every completed cycle
type snapshotMsg struct {
	snapshot shared.Snapshot
	final    bool
}

// tickMsg is sent periodically to refresh the display
type tickMsg time.Time

// tuiModel holds the Bubble Tea model state
type tuiModel struct {
	// Data
	snapshot    shared.Snapshot
	paths       map[string]struct{} // distinct path hashes seen
	destination string
	source      string
	interval    time.Duration
	startTime   time.Time
	finished    bool

	// UI state
	width       int
	height      int
	selectedTTL uint8
	showDNS     bool
	help        help.Model
	keys        keyMap

	// Channel for receiving updates
	updateCh chan snapshotMsg
	quitCh   chan struct{}
}

// keyMap defines keyboard shortcuts
type keyMap struct {
	Up   key.Binding
	Down key.Binding
	DNS  key.Binding
	Quit key.Binding
	Help key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.DNS, k.Quit, k.Help}
}

// FullHelp returns keybindings for the expanded help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down},
		{k.DNS, k.Quit, k.Help},
	}
}

var keys = keyMap{
	Up: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "previous hop"),
	),
	Down: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "next hop"),
	),
	DNS: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "toggle names"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "toggle help"),
	),
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	summaryTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#5A67D8")).
				Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FBBF24"))

	hopStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#E5E7EB"))

	ipStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#60A5FA"))

	statsGoodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#34D399"))

	statsWarningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FBBF24"))

	statsBadStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

type cellAlignment int

const (
	alignLeft cellAlignment = iota
	alignRight
)

func formatCell(value string, width int, alignment cellAlignment) string {
	if alignment == alignRight {
		return fmt.Sprintf("%*s", width, value)
	}
	return fmt.Sprintf("%-*s", width, value)
}

func truncateToWidth(value string, width int) string {
	if width <= 0 {
		return ""
	}
	if lipgloss.Width(value) <= width {
		return value
	}
	return lipgloss.NewStyle().Width(width).Render(value)
}

func lossStyle(pct float64) lipgloss.Style {
	switch {
	case pct > 25:
		return statsBadStyle
	case pct > 10:
		return statsWarningStyle
	}
	return statsGoodStyle
}

// NewBubbleTUIOutput creates a new Bubble Tea TUI output
func NewBubbleTUIOutput(info shared.OutputInfo) *BubbleTUIOutput {
	updateCh := make(chan snapshotMsg, 16)
	quitCh := make(chan struct{}, 1)

	model := &tuiModel{
		paths:       make(map[string]struct{}),
		destination: fmt.Sprintf("%s (%s)", info.Destination, info.DestinationIP),
		source:      info.Source,
		interval:    info.Interval,
		startTime:   time.Now(),
		selectedTTL: 1,
		showDNS:     !info.NoDNS,
		help:        help.New(),
		keys:        keys,
		updateCh:    updateCh,
		quitCh:      quitCh,
	}

	return &BubbleTUIOutput{
		model:    model,
		updateCh: updateCh,
		quitCh:   quitCh,
		out:      os.Stdout,
		noDNS:    info.NoDNS,
	}
}

// Start initializes and starts the Bubble Tea program
func (b *BubbleTUIOutput) Start() {
	// Create program with proper cleanup options
	doneCh := make(chan struct{})
	b.mu.Lock()
	b.doneCh = doneCh
	b.program = tea.NewProgram(
		b.model,
		tea.WithAltScreen(), // Use alternate screen buffer
	)
	program := b.program
	b.mu.Unlock()

	go func() {
		// Ensure cleanup happens even if there's a panic
		defer func() {
			close(doneCh)
			if r := recover(); r != nil {
				slog.Error("TUI panic", "panic", r)
				// Force cleanup
				program.Kill()
			}
		}()

		if _, err := program.Run(); err != nil {
			slog.Error("Error running TUI", "error", err)
		}
	}()
}

// QuitChan returns the channel that signals when the user quits the TUI
func (b *BubbleTUIOutput) QuitChan() <-chan struct{} {
	return b.quitCh
}

// Update implements the Output interface
func (b *BubbleTUIOutput) Update(s shared.Snapshot) {
	b.send(snapshotMsg{snapshot: s})
}

// Complete implements the Output interface
func (b *BubbleTUIOutput) Complete(s shared.Snapshot) {
	b.mu.Lock()
	b.final = &s
	b.mu.Unlock()
	b.send(snapshotMsg{snapshot: s, final: true})
}

func (b *BubbleTUIOutput) send(msg snapshotMsg) {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case b.updateCh <- msg:
	default:
		// Channel full, skip update
		slog.Debug("TUI update channel full, dropping snapshot", "cycle", msg.snapshot.Cycle)
	}
}

// Close implements the Output interface. The final table is printed to the
// normal screen after the program exits.
func (b *BubbleTUIOutput) Close() error {
	b.mu.Lock()
	program := b.program
	doneCh := b.doneCh
	final := b.final
	b.mu.Unlock()

	if program != nil {
		// Request graceful shutdown
		program.Quit()

		if doneCh != nil {
			select {
			case <-doneCh:
				// Clean exit
			case <-time.After(500 * time.Millisecond):
				// Force cleanup if it takes too long
				program.Kill()
				<-doneCh
			}
		}
	}

	b.mu.Lock()
	b.program = nil
	b.doneCh = nil
	b.mu.Unlock()

	if final != nil && b.out != nil {
		return WriteTable(b.out, *final, b.noDNS)
	}
	return nil
}

// Init is the initial I/O for Bubble Tea
func (m *tuiModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		waitForUpdate(m.updateCh),
	)
}

// Update handles messages and updates the model
func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			// Signal quit to the main program
			select {
			case m.quitCh <- struct{}{}:
			default:
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.DNS):
			m.showDNS = !m.showDNS
		case key.Matches(msg, m.keys.Up):
			m.moveSelection(-1)
		case key.Matches(msg, m.keys.Down):
			m.moveSelection(1)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case snapshotMsg:
		m.applySnapshot(msg)
		return m, waitForUpdate(m.updateCh)

	case tickMsg:
		return m, tickCmd()
	}

	return m, nil
}

func (m *tuiModel) applySnapshot(msg snapshotMsg) {
	m.snapshot = msg.snapshot
	if msg.snapshot.Cycle > 0 {
		m.paths[msg.snapshot.PathHash] = struct{}{}
	}
	if msg.final {
		m.finished = true
	}
	m.clampSelection()
}

func (m *tuiModel) moveSelection(delta int) {
	next := int(m.selectedTTL) + delta
	m.selectedTTL = uint8(max(next, 1))
	m.clampSelection()
}

func (m *tuiModel) clampSelection() {
	n := len(m.snapshot.Hops)
	if n == 0 {
		m.selectedTTL = 1
		return
	}
	if int(m.selectedTTL) > n {
		m.selectedTTL = uint8(n)
	}
}

// View renders the UI
func (m *tuiModel) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var b strings.Builder

	// Title bar
	elapsed := time.Since(m.startTime)
	title := fmt.Sprintf(" mtr to %s ", m.destination)
	if m.source != "" {
		title += fmt.Sprintf("from %s ", m.source)
	}
	title += fmt.Sprintf("| Interval: %s | Elapsed: %s ", m.interval, elapsed.Round(time.Second))
	if m.finished {
		title += "| finished "
	}
	b.WriteString(titleStyle.Width(m.width).Render(title))
	b.WriteString("\n")

	// Calculate available height for content
	helpHeight := lipgloss.Height(m.help.View(m.keys))
	contentHeight := m.height - 4 - helpHeight // title + spacing + help

	b.WriteString(m.renderHops(contentHeight))

	// Help
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(m.help.View(m.keys)))

	return b.String()
}

func (m *tuiModel) summaryLine() string {
	s := m.snapshot
	final := "unresolved"
	if s.Resolved {
		final = fmt.Sprintf("final hop %d", s.FinalTTL)
	}
	return fmt.Sprintf(" Cycle %d | %s | Path %s (%d seen) ", s.Cycle, final, s.PathHash, len(m.paths))
}

// renderHops renders the hop table
func (m *tuiModel) renderHops(maxHeight int) string {
	var b strings.Builder

	b.WriteString(summaryTitleStyle.Render(m.summaryLine()))
	b.WriteString("\n\n")

	contentWidth := m.width - 4
	contentWidth = max(contentWidth, 20)

	fixedColumns := 64
	hostWidth := contentWidth - fixedColumns
	hostWidth = max(hostWidth, 10)

	headerFmt := fmt.Sprintf("%%-%ds %%-%ds %%7s %%5s %%8s %%8s %%8s %%8s %%8s", 4, hostWidth)
	header := fmt.Sprintf(headerFmt,
		"TTL", "Host", "Loss%", "Snt", "Last", "Avg", "Best", "Wrst", "StDev")
	b.WriteString(headerStyle.Render(truncateToWidth(header, contentWidth)))
	b.WriteString("\n")

	visibleRows := max(maxHeight-6, 1)
	start := 0
	if int(m.selectedTTL) > visibleRows {
		start = int(m.selectedTTL) - visibleRows
	}
	end := min(start+visibleRows, len(m.snapshot.Hops))

	for _, hop := range m.snapshot.Hops[start:end] {
		host := hostLabel(hop, !m.showDNS)
		if len(host) > hostWidth {
			host = host[:hostWidth-3] + "..."
		}

		stddev := noValue
		if hop.Received > 1 {
			stddev = formatMs(hop.StdDev)
		}

		cells := []string{
			formatCell(fmt.Sprintf("%d.", hop.TTL), 4, alignLeft),
			formatCell(host, hostWidth, alignLeft),
			formatCell(fmt.Sprintf("%.1f%%", hop.LossPct), 7, alignRight),
			formatCell(fmt.Sprintf("%d", hop.Sent), 5, alignRight),
			formatCell(formatMs(hop.Last), 8, alignRight),
			formatCell(formatMs(hop.Avg), 8, alignRight),
			formatCell(formatMs(hop.Best), 8, alignRight),
			formatCell(formatMs(hop.Worst), 8, alignRight),
			formatCell(stddev, 8, alignRight),
		}

		if hop.IP != "" {
			cells[1] = ipStyle.Render(cells[1])
		} else {
			cells[1] = ipStyle.Foreground(lipgloss.Color("#6B7280")).Render(cells[1])
		}
		cells[2] = lossStyle(hop.LossPct).Render(cells[2])

		style := hopStyle
		if hop.TTL == m.selectedTTL {
			style = style.Bold(true).Background(lipgloss.Color("#064E3B"))
		}
		if hop.Final {
			style = style.Foreground(lipgloss.Color("#10B981"))
		}

		line := truncateToWidth(strings.Join(cells, " "), contentWidth)
		b.WriteString(style.Render(line))
		b.WriteString("\n")
	}

	return borderStyle.Width(m.width - 2).Render(b.String())
}

// waitForUpdate waits for the next update message
func waitForUpdate(updateCh chan snapshotMsg) tea.Cmd {
	return func() tea.Msg {
		return <-updateCh
	}
}

// tickCmd returns a command that sends a tick message periodically
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

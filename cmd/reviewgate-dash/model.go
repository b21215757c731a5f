package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"reviewgate/pkg/detect"
	"reviewgate/pkg/eventlog"
	"reviewgate/pkg/monitor"
	"reviewgate/pkg/protocol"
)

// eventLimit is how many history rows the feed keeps on screen.
const eventLimit = 200

// tickMsg is sent by Bubble Tea on every tick interval.
type tickMsg time.Time

// statusMsg carries a fresh connection state reading.
type statusMsg connState

// eventsMsg carries fetched exchange history.
type eventsMsg []eventlog.Event

// tickCmd returns a command that sends a tickMsg after 2 seconds.
func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchStatusCmd reads the shared monitor's connection state.
func fetchStatusCmd(mon *monitor.Monitor, markerPath string) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(readState(mon, markerPath))
	}
}

// fetchEventsCmd reads recent exchange history from the event database.
func fetchEventsCmd(dbPath string) tea.Cmd {
	return func() tea.Msg {
		return eventsMsg(fetchEvents(context.Background(), dbPath, eventLimit))
	}
}

// Model is the Bubble Tea model for the reviewgate dashboard. It owns one
// long-lived monitor whose state machine runs for the life of the program,
// fed by a detector on the freshness marker.
type Model struct {
	markerPath string
	dbPath     string

	state  connState
	events []eventlog.Event
	feed   FeedModel

	mon       *monitor.Monitor
	markerDet detect.Detector // drives the monitor
	dirDet    detect.Detector // drives feed refresh

	width  int
	height int
}

// newModel creates a Model pointed at the default gate directory and
// event database.
func newModel() Model {
	gateDir := protocol.GateDir()
	markerPath := filepath.Join(gateDir, protocol.MarkerFileName)
	return Model{
		markerPath: markerPath,
		dbPath:     defaultDBPath(),
		state:      connState{Status: protocol.StatusDisconnected},
		feed:       NewFeed(80, 20),
		mon:        monitor.New(monitor.Config{MarkerPath: markerPath}),
		markerDet:  newDetector(gateDir, protocol.MarkerFileName),
		dirDet:     newDetector(gateDir),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		fetchStatusCmd(m.mon, m.markerPath),
		fetchEventsCmd(m.dbPath),
		tickCmd(),
	}
	if m.markerDet != nil {
		cmds = append(cmds, runDetector(m.markerDet), runMonitor(m.mon, m.markerDet.Events()))
	} else {
		cmds = append(cmds, runMonitor(m.mon, nil))
	}
	if m.dirDet != nil {
		cmds = append(cmds, runDetector(m.dirDet), awaitChange(m.dirDet.Events()))
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.feed, cmd = m.feed.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.feed.Resize(msg.Width, msg.Height-2)

	case statusMsg:
		m.state = connState(msg)

	case eventsMsg:
		m.events = []eventlog.Event(msg)
		m.feed.SetEvents(m.events)

	case tickMsg:
		return m, tea.Batch(fetchStatusCmd(m.mon, m.markerPath), fetchEventsCmd(m.dbPath), tickCmd())

	case fsChangeMsg:
		cmds := []tea.Cmd{fetchStatusCmd(m.mon, m.markerPath), fetchEventsCmd(m.dbPath)}
		if m.dirDet != nil {
			cmds = append(cmds, awaitChange(m.dirDet.Events()))
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	return m.renderStatusBar() + "\n\n" + m.feed.View()
}

// renderStatusBar renders connection state, marker age, and event count.
func (m Model) renderStatusBar() string {
	theme := DefaultTheme()

	var statusColor lipgloss.Color
	switch {
	case m.state.Status.Healthy():
		statusColor = theme.Success
	case m.state.Status == protocol.StatusError:
		statusColor = theme.Error
	default:
		statusColor = theme.Warning
	}

	parts := []string{
		lipgloss.NewStyle().Foreground(statusColor).Render(string(m.state.Status)),
	}
	if m.state.MarkerAge > 0 {
		parts = append(parts, lipgloss.NewStyle().Foreground(theme.Muted).Render(
			fmt.Sprintf("marker %s ago", m.state.MarkerAge.Round(time.Second))))
	}
	parts = append(parts, lipgloss.NewStyle().Foreground(theme.Primary).Render(
		fmt.Sprintf("%d events", len(m.events))))

	return lipgloss.JoinHorizontal(lipgloss.Left,
		parts[0], "  |  ", joinParts(parts[1:]))
}

func joinParts(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "  |  "
		}
		out += p
	}
	return out
}

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"reviewgate/pkg/eventlog"
)

// FeedModel is a scrollable viewport showing the exchange event history,
// newest at the bottom.
type FeedModel struct {
	vp     viewport.Model
	events []eventlog.Event
	width  int
	height int
}

// NewFeed constructs a FeedModel sized to width x height.
func NewFeed(width, height int) FeedModel {
	vp := viewport.New(width, height)
	vp.SetContent("")
	return FeedModel{vp: vp, width: width, height: height}
}

// SetEvents replaces the feed contents and scrolls to the bottom.
func (f *FeedModel) SetEvents(events []eventlog.Event) {
	f.events = events
	f.refresh()
}

// Resize adjusts the viewport dimensions.
func (f *FeedModel) Resize(width, height int) {
	f.width = width
	f.height = height
	f.vp.Width = width
	f.vp.Height = height
	f.refresh()
}

// Update forwards key and mouse messages to the viewport for scrolling.
func (f FeedModel) Update(msg tea.Msg) (FeedModel, tea.Cmd) {
	var cmd tea.Cmd
	f.vp, cmd = f.vp.Update(msg)
	return f, cmd
}

// View renders the viewport.
func (f FeedModel) View() string {
	if len(f.events) == 0 {
		return lipgloss.NewStyle().Foreground(DefaultTheme().Muted).Render("no events yet")
	}
	return f.vp.View()
}

func (f *FeedModel) refresh() {
	var b strings.Builder
	for _, evt := range f.events {
		b.WriteString(renderEvent(&evt))
		b.WriteByte('\n')
	}
	f.vp.SetContent(b.String())
	f.vp.GotoBottom()
}

// renderEvent formats one event line with a type-specific color.
func renderEvent(evt *eventlog.Event) string {
	theme := DefaultTheme()

	var color lipgloss.Color
	switch evt.Type {
	case eventlog.TypeResponded, eventlog.TypeAcked:
		color = theme.Success
	case eventlog.TypeDiscarded:
		color = theme.Warning
	case eventlog.TypeError:
		color = theme.Error
	default:
		color = theme.Primary
	}

	line := fmt.Sprintf("%s  %-10s",
		evt.CreatedAt.Format("15:04:05"),
		lipgloss.NewStyle().Foreground(color).Render(evt.Type))
	if evt.TriggerID != "" {
		line += "  " + evt.TriggerID
	}
	if evt.Detail != "" {
		line += "  " + lipgloss.NewStyle().Foreground(theme.Muted).Render(evt.Detail)
	}
	return line
}

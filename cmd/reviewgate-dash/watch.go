package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"reviewgate/pkg/detect"
	"reviewgate/pkg/monitor"
)

// fsChangeMsg is sent when a debounced change is detected in the gate
// directory.
type fsChangeMsg struct{}

// newDetector builds a debounced change detector on the gate directory,
// optionally filtered to specific basenames. A nil return means no change
// signals; the dashboard falls back to tick-only refresh.
func newDetector(gateDir string, basenames ...string) detect.Detector {
	det, err := detect.New(detect.Config{Dir: gateDir, Basenames: basenames})
	if err != nil {
		return nil
	}
	return det
}

// runDetector returns a tea.Cmd that drives the detector for the life of
// the program. It never delivers a message itself; consumers read the
// detector's Events channel.
func runDetector(det detect.Detector) tea.Cmd {
	return func() tea.Msg {
		_ = det.Run(context.Background())
		return nil
	}
}

// runMonitor returns a tea.Cmd that keeps the shared monitor current,
// driven by marker change signals plus its fallback tick.
func runMonitor(mon *monitor.Monitor, signals <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		_ = mon.Run(context.Background(), signals)
		return nil
	}
}

// awaitChange blocks until the detector signals, then delivers one
// fsChangeMsg. The model re-arms it from Update so the same detector keeps
// serving.
func awaitChange(signals <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-signals; !ok {
			return nil
		}
		return fsChangeMsg{}
	}
}

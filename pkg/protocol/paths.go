package protocol

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Origin tags stamped on (and expected in) envelopes. Triggers carrying a
// different fingerprint belong to some other tool sharing the temp dir.
const (
	SystemTag = "review-gate-v2"
	EditorTag = "cursor"
)

// File names inside the gate directory. The numbered trigger copies and the
// alternate response patterns exist for compatibility with older consumers
// that scan more than one name.
const (
	// TriggerFileName is the canonical trigger file.
	TriggerFileName = "review_gate_trigger.json"

	// BackupTriggerCount is how many numbered trigger copies the agent
	// writes alongside the canonical one.
	BackupTriggerCount = 3

	// MarkerFileName is the freshness marker. Only its mtime matters: the
	// agent appends a heartbeat line periodically, and the front-end reads
	// the file age to decide whether the peer is alive.
	MarkerFileName = "review_gate_v2.log"

	// ProgressFileName carries transient progress updates for the popup.
	ProgressFileName = "review_gate_progress.json"
)

// GateDirEnv overrides the directory used for all gate files.
const GateDirEnv = "REVIEW_GATE_DIR"

// GateDir returns the directory both processes exchange files in: the
// GateDirEnv override if set, /tmp on unix-likes, the system temp dir on
// windows. Matching the peer's choice exactly matters more than respecting
// TMPDIR, which can differ per process.
func GateDir() string {
	if v := os.Getenv(GateDirEnv); v != "" {
		return v
	}
	if runtime.GOOS == "windows" {
		return os.TempDir()
	}
	return "/tmp"
}

// BackupTriggerName returns the i-th numbered trigger copy name.
func BackupTriggerName(i int) string {
	return fmt.Sprintf("review_gate_trigger_%d.json", i)
}

// TriggerCandidates returns every basename that may carry a trigger, the
// canonical name first.
func TriggerCandidates() []string {
	names := make([]string, 0, BackupTriggerCount+1)
	names = append(names, TriggerFileName)
	for i := 0; i < BackupTriggerCount; i++ {
		names = append(names, BackupTriggerName(i))
	}
	return names
}

// IsTriggerName reports whether base is the canonical trigger file or one
// of its numbered copies.
func IsTriggerName(base string) bool {
	if base == TriggerFileName {
		return true
	}
	return strings.HasPrefix(base, "review_gate_trigger_") && strings.HasSuffix(base, ".json")
}

// AckFileName returns the acknowledgment file name for a trigger.
func AckFileName(triggerID string) string {
	return fmt.Sprintf("review_gate_ack_%s.json", triggerID)
}

// ResponsePatterns returns every response file name the agent-side reader
// scans for triggerID, most specific first. Writers must put byte-identical
// content under each so it never matters which one a reader finds.
func ResponsePatterns(triggerID string) []string {
	return []string{
		fmt.Sprintf("review_gate_response_%s.json", triggerID),
		"review_gate_response.json",
		fmt.Sprintf("mcp_response_%s.json", triggerID),
		"mcp_response.json",
	}
}

// GatePath joins a gate file basename onto the gate directory.
func GatePath(base string) string {
	return filepath.Join(GateDir(), base)
}

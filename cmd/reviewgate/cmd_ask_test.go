package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestAskCmd_RequiresMessage(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"ask", "--dir", t.TempDir(), "--skip-check"})

	if err := root.Execute(); err == nil {
		t.Fatal("expected error for missing message")
	}
}

func TestAskCmd_WarnsWhenDisconnected(t *testing.T) {
	// No reviewer, so the response never arrives; a short timeout turns
	// that into a fast failure after the warning is printed.
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"ask", "--dir", t.TempDir(), "--timeout", "200ms", "does this look right?"})

	if err := root.Execute(); err == nil {
		t.Fatal("expected timeout error with no reviewer")
	}
	if got := buf.String(); !strings.Contains(got, "warning") {
		t.Errorf("expected a connection warning, got: %q", got)
	}
}

// TestAskCmd_RoundTrip runs ask against a live serve loop.
func TestAskCmd_RoundTrip(t *testing.T) {
	gateDir := t.TempDir()
	t.Setenv("REVIEW_GATE_HOME", t.TempDir())
	t.Setenv("REVIEW_GATE_DB_PATH", "")
	t.Setenv("REVIEW_GATE_CONFIG", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, serveConfig{dir: gateDir, response: "ship it"}, &bytes.Buffer{}, strings.NewReader(""))
	}()

	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"ask", "--dir", gateDir, "--timeout", "5s", "ready for review?"})

	if err := root.Execute(); err != nil {
		t.Fatalf("ask command failed: %v", err)
	}
	if got := buf.String(); !strings.Contains(got, "ship it") {
		t.Errorf("output = %q", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("serve loop did not stop")
	}
}

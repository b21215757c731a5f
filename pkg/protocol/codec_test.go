package protocol_test

import (
	"strings"
	"testing"

	"reviewgate/pkg/protocol"
)

func TestDecodeTriggerRoundTrip(t *testing.T) {
	t.Parallel()

	in := `{
		"tool": "review_gate_chat",
		"trigger_id": "review_123",
		"editor": "cursor",
		"system": "review-gate-v2",
		"message": "please review",
		"urgent": true
	}`

	trig, err := protocol.DecodeTrigger([]byte(in))
	if err != nil {
		t.Fatalf("DecodeTrigger: %v", err)
	}
	if trig.Tool != "review_gate_chat" || trig.TriggerID != "review_123" {
		t.Fatalf("known fields not extracted: %+v", trig)
	}
	if !trig.Valid() {
		t.Fatal("trigger with tool and trigger_id must be valid")
	}
	if got := trig.StringField("message"); got != "please review" {
		t.Fatalf("StringField(message) = %q", got)
	}

	// Unknown fields must survive a round trip.
	out, err := protocol.EncodeTrigger(trig)
	if err != nil {
		t.Fatalf("EncodeTrigger: %v", err)
	}
	for _, want := range []string{`"urgent": true`, `"message"`, `"trigger_id"`} {
		if !strings.Contains(string(out), want) {
			t.Errorf("encoded trigger missing %s:\n%s", want, out)
		}
	}
}

func TestDecodeTriggerToleratesTrailingWhitespace(t *testing.T) {
	t.Parallel()

	trig, err := protocol.DecodeTrigger([]byte("{\"tool\":\"chat\",\"trigger_id\":\"abc\"}\n\n  \t"))
	if err != nil {
		t.Fatalf("DecodeTrigger: %v", err)
	}
	if trig.TriggerID != "abc" {
		t.Fatalf("trigger_id = %q", trig.TriggerID)
	}
}

func TestDecodeTriggerClassifiesFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		truncated bool
	}{
		{name: "empty file", input: "", truncated: true},
		{name: "whitespace only", input: "  \n", truncated: true},
		{name: "cut off mid-write", input: `{"tool":"chat","trigger_`, truncated: true},
		{name: "structurally invalid", input: `{"tool":}garbage{`, truncated: false},
		{name: "not json at all", input: "hello world", truncated: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := protocol.DecodeTrigger([]byte(tt.input))
			if err == nil {
				t.Fatal("expected a DecodeError")
			}
			if got := protocol.IsTruncated(err); got != tt.truncated {
				t.Fatalf("IsTruncated = %v, want %v (err: %v)", got, tt.truncated, err)
			}
		})
	}
}

func TestTriggerValidity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		trig  protocol.TriggerEnvelope
		valid bool
	}{
		{name: "both fields", trig: protocol.TriggerEnvelope{Tool: "chat", TriggerID: "a"}, valid: true},
		{name: "missing tool", trig: protocol.TriggerEnvelope{TriggerID: "a"}, valid: false},
		{name: "missing trigger_id", trig: protocol.TriggerEnvelope{Tool: "chat"}, valid: false},
		{name: "empty", trig: protocol.TriggerEnvelope{}, valid: false},
	}

	for _, tt := range tests {
		if got := tt.trig.Valid(); got != tt.valid {
			t.Errorf("%s: Valid() = %v, want %v", tt.name, got, tt.valid)
		}
	}
}

func TestMatchesOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		trig  protocol.TriggerEnvelope
		match bool
	}{
		{name: "tags absent", trig: protocol.TriggerEnvelope{}, match: true},
		{name: "tags match", trig: protocol.TriggerEnvelope{System: "review-gate-v2", Editor: "cursor"}, match: true},
		{name: "system mismatch", trig: protocol.TriggerEnvelope{System: "other-tool"}, match: false},
		{name: "editor mismatch", trig: protocol.TriggerEnvelope{Editor: "vscode"}, match: false},
	}

	for _, tt := range tests {
		if got := tt.trig.MatchesOrigin(protocol.SystemTag, protocol.EditorTag); got != tt.match {
			t.Errorf("%s: MatchesOrigin = %v, want %v", tt.name, got, tt.match)
		}
	}
}

func TestResponseTextPrecedence(t *testing.T) {
	t.Parallel()

	r := protocol.ResponseEnvelope{Message: "m", Response: "r", UserInput: "u"}
	if r.Text() != "u" {
		t.Fatalf("Text() = %q, want user_input first", r.Text())
	}
	r.UserInput = ""
	if r.Text() != "r" {
		t.Fatalf("Text() = %q, want response second", r.Text())
	}
	r.Response = ""
	if r.Text() != "m" {
		t.Fatalf("Text() = %q, want message last", r.Text())
	}
}

func TestNewResponseDuplicatesPayload(t *testing.T) {
	t.Parallel()

	r := protocol.NewResponse("abc", "done", nil)
	if r.Response != "done" || r.Message != "done" || r.UserInput != "done" {
		t.Fatalf("payload not duplicated across keys: %+v", r)
	}
	if r.TriggerID != "abc" {
		t.Fatalf("TriggerID = %q", r.TriggerID)
	}
}

func TestDecodeResponseAndAck(t *testing.T) {
	t.Parallel()

	resp, err := protocol.DecodeResponse([]byte(`{"trigger_id":"x","response":"ok","attachments":[{"fileName":"a.png","mimeType":"image/png"}]}`))
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if len(resp.Attachments) != 1 || resp.Attachments[0].MimeType != "image/png" {
		t.Fatalf("attachments not decoded: %+v", resp.Attachments)
	}

	data, err := protocol.EncodeAck(protocol.NewAck("x", "chat"))
	if err != nil {
		t.Fatalf("EncodeAck: %v", err)
	}
	ack, err := protocol.DecodeAck(data)
	if err != nil {
		t.Fatalf("DecodeAck: %v", err)
	}
	if !ack.Acknowledged || ack.TriggerID != "x" || ack.ToolType != "chat" {
		t.Fatalf("ack round trip: %+v", ack)
	}
}

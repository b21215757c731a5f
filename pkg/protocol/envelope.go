// Package protocol defines the wire format exchanged between the agent
// process and the front-end through the shared temp directory: trigger,
// response, and acknowledgment envelopes, the connection status enum, and
// the file naming scheme both sides agree on. Envelopes are plain JSON;
// unknown fields survive a decode/encode round trip so newer peers can
// attach payloads older peers ignore.
package protocol

import (
	"encoding/json"
	"time"
)

// Known top-level trigger keys. Everything else lands in Extra.
const (
	keyTool      = "tool"
	keyTriggerID = "trigger_id"
	keyEditor    = "editor"
	keySystem    = "system"
	keyTimestamp = "timestamp"
)

// TriggerEnvelope is one request from the agent to the front-end.
// Tool and TriggerID are mandatory; Editor and System are optional origin
// tags used to filter out foreign messages sharing the temp directory.
type TriggerEnvelope struct {
	Tool      string
	TriggerID string
	Editor    string
	System    string
	Timestamp string

	// Extra holds tool-specific payload fields verbatim. The set of keys is
	// polymorphic over Tool, so they are carried as raw JSON rather than
	// modeled here.
	Extra map[string]json.RawMessage
}

// Valid reports whether the envelope carries the two mandatory fields.
// An invalid envelope is a malformed or foreign message, not a fault.
func (t *TriggerEnvelope) Valid() bool {
	return t.Tool != "" && t.TriggerID != ""
}

// MatchesOrigin reports whether the envelope's origin tags are compatible
// with the expected system/editor fingerprint. Absent tags match anything;
// a present tag must be equal.
func (t *TriggerEnvelope) MatchesOrigin(system, editor string) bool {
	if t.System != "" && system != "" && t.System != system {
		return false
	}
	if t.Editor != "" && editor != "" && t.Editor != editor {
		return false
	}
	return true
}

// StringField returns the Extra field under key as a string, or "" if the
// field is absent or not a JSON string.
func (t *TriggerEnvelope) StringField(key string) string {
	raw, ok := t.Extra[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// MarshalJSON flattens the known fields and Extra into a single object.
func (t *TriggerEnvelope) MarshalJSON() ([]byte, error) {
	m := make(map[string]json.RawMessage, len(t.Extra)+5)
	for k, v := range t.Extra {
		m[k] = v
	}
	setString(m, keyTool, t.Tool)
	setString(m, keyTriggerID, t.TriggerID)
	setString(m, keyEditor, t.Editor)
	setString(m, keySystem, t.System)
	setString(m, keyTimestamp, t.Timestamp)
	return json.Marshal(m)
}

// UnmarshalJSON pulls the known fields out and preserves the rest in Extra.
func (t *TriggerEnvelope) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	t.Tool = takeString(m, keyTool)
	t.TriggerID = takeString(m, keyTriggerID)
	t.Editor = takeString(m, keyEditor)
	t.System = takeString(m, keySystem)
	t.Timestamp = takeString(m, keyTimestamp)
	if len(m) > 0 {
		t.Extra = m
	} else {
		t.Extra = nil
	}
	return nil
}

func setString(m map[string]json.RawMessage, key, val string) {
	if val == "" {
		return
	}
	raw, _ := json.Marshal(val)
	m[key] = raw
}

func takeString(m map[string]json.RawMessage, key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	delete(m, key)
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Attachment describes one file attached to a response. Field names match
// what the front-end popup produces.
type Attachment struct {
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	Base64Data string `json:"base64Data,omitempty"`
}

// ResponseEnvelope is the answer flowing back from the front-end. The
// textual payload is duplicated under Response, Message, and UserInput so
// older consumers keep working regardless of which key they read.
type ResponseEnvelope struct {
	TriggerID   string       `json:"trigger_id"`
	Response    string       `json:"response"`
	Message     string       `json:"message"`
	UserInput   string       `json:"user_input,omitempty"`
	Attachments []Attachment `json:"attachments"`
	Timestamp   string       `json:"timestamp"`
	Source      string       `json:"source,omitempty"`
}

// NewResponse builds a response envelope for triggerID with the text
// duplicated under every compatibility key.
func NewResponse(triggerID, text string, attachments []Attachment) *ResponseEnvelope {
	return &ResponseEnvelope{
		TriggerID:   triggerID,
		Response:    text,
		Message:     text,
		UserInput:   text,
		Attachments: attachments,
		Timestamp:   time.Now().Format(time.RFC3339),
		Source:      SystemTag,
	}
}

// NewFailureResponse builds the response used when dispatch fails, so the
// exchange still completes instead of leaving the agent waiting.
func NewFailureResponse(triggerID string, err error) *ResponseEnvelope {
	return NewResponse(triggerID, "ERROR: "+err.Error(), nil)
}

// Text returns the payload, preferring user_input over response over
// message (the order the original consumers use).
func (r *ResponseEnvelope) Text() string {
	if r.UserInput != "" {
		return r.UserInput
	}
	if r.Response != "" {
		return r.Response
	}
	return r.Message
}

// AckEnvelope is the lightweight proof that the front-end received a
// trigger and began processing, written before the interactive response.
type AckEnvelope struct {
	TriggerID    string `json:"trigger_id"`
	ToolType     string `json:"tool_type"`
	Acknowledged bool   `json:"acknowledged"`
	Timestamp    string `json:"timestamp"`
}

// NewAck builds an acknowledgment for a validated trigger.
func NewAck(triggerID, tool string) *AckEnvelope {
	return &AckEnvelope{
		TriggerID:    triggerID,
		ToolType:     tool,
		Acknowledged: true,
		Timestamp:    time.Now().Format(time.RFC3339),
	}
}

// ProgressUpdate is the payload of the progress file the agent side writes
// while a long-running step is in flight.
type ProgressUpdate struct {
	Title      string  `json:"title"`
	Percentage float64 `json:"percentage"`
	Step       string  `json:"step"`
	Status     string  `json:"status"` // "active" or "completed"
}

// ProgressEnvelope wraps a ProgressUpdate with origin metadata.
type ProgressEnvelope struct {
	Timestamp string         `json:"timestamp"`
	System    string         `json:"system"`
	Type      string         `json:"type"`
	Data      ProgressUpdate `json:"data"`
}

// NewProgress wraps u in a tagged envelope.
func NewProgress(u ProgressUpdate) *ProgressEnvelope {
	return &ProgressEnvelope{
		Timestamp: time.Now().Format(time.RFC3339),
		System:    SystemTag,
		Type:      "progress_update",
		Data:      u,
	}
}

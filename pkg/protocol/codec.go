package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// DecodeError reports a payload that could not be decoded. Truncated
// distinguishes a file caught mid-write (retryable: read again shortly)
// from a structurally invalid payload (discard it).
type DecodeError struct {
	Truncated bool
	Err       error
}

func (e *DecodeError) Error() string {
	if e.Truncated {
		return fmt.Sprintf("decode: payload truncated: %v", e.Err)
	}
	return fmt.Sprintf("decode: payload invalid: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsTruncated reports whether err is a DecodeError for a partially-written
// payload, which callers should treat as retryable rather than discarding.
func IsTruncated(err error) bool {
	var de *DecodeError
	return errors.As(err, &de) && de.Truncated
}

// EncodeTrigger serializes a trigger envelope. Output is indented JSON,
// matching what existing readers of the trigger file expect to tail.
func EncodeTrigger(t *TriggerEnvelope) ([]byte, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode trigger: %w", err)
	}
	return data, nil
}

// DecodeTrigger parses a trigger envelope, tolerating trailing whitespace.
// It fails closed with a DecodeError; it never panics on partial input.
func DecodeTrigger(data []byte) (*TriggerEnvelope, error) {
	var t TriggerEnvelope
	if err := decodeJSON(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// EncodeResponse serializes a response envelope as indented JSON.
func EncodeResponse(r *ResponseEnvelope) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return data, nil
}

// DecodeResponse parses a response envelope with the same tolerance rules
// as DecodeTrigger.
func DecodeResponse(data []byte) (*ResponseEnvelope, error) {
	var r ResponseEnvelope
	if err := decodeJSON(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// EncodeAck serializes an acknowledgment envelope.
func EncodeAck(a *AckEnvelope) ([]byte, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode ack: %w", err)
	}
	return data, nil
}

// DecodeAck parses an acknowledgment envelope.
func DecodeAck(data []byte) (*AckEnvelope, error) {
	var a AckEnvelope
	if err := decodeJSON(data, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// decodeJSON unmarshals trimmed data into v, classifying failures as
// truncated (empty or cut off at end of input) or structurally invalid.
func decodeJSON(data []byte, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &DecodeError{Truncated: true, Err: errors.New("empty payload")}
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) && syn.Offset >= int64(len(trimmed)) {
			// The parser ran off the end: the writer has not finished yet.
			return &DecodeError{Truncated: true, Err: err}
		}
		return &DecodeError{Err: err}
	}
	return nil
}

// Package llmjson extracts structured payloads from free-text LLM output.
//
// Generation prompts instruct the model to embed exactly one fenced JSON
// object in its reply. The model does not always comply, so this package is
// the single place that narrow contract is enforced: first fenced block only,
// first match wins.
package llmjson

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	openFence  = "```json"
	closeFence = "```"
)

// ParseError reports that an LLM reply did not contain the expected fenced
// JSON object, or that the embedded object failed to unmarshal.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse llm response: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse llm response: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Extract returns the raw content of the first ```json fenced block in text.
// The boolean reports whether a block was found; a missing block is not an
// error at this level.
func Extract(text string) (string, bool) {
	start := strings.Index(text, openFence)
	if start < 0 {
		return "", false
	}

	rest := text[start+len(openFence):]
	end := strings.Index(rest, closeFence)
	if end < 0 {
		return "", false
	}

	payload := strings.TrimSpace(rest[:end])
	if payload == "" {
		return "", false
	}
	return payload, true
}

// Decode extracts the first fenced JSON block from text and unmarshals it
// into v. It returns a *ParseError when the block is absent or malformed.
func Decode(text string, v any) error {
	payload, ok := Extract(text)
	if !ok {
		return &ParseError{Reason: "no fenced json block in response"}
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return &ParseError{Reason: "fenced block is not valid json", Err: err}
	}
	return nil
}

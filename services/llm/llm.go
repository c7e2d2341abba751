// Package llm provides the LLM completion service analysers resolve from
// the service container.
//
// The engine guarantees only the singleton lifecycle and graceful absence
// when no provider is configured. Provider choice, batching, and retry
// behaviour are private to the implementation.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ServiceName is the container key the LLM client is registered under.
const ServiceName = "llm"

// Request is a single completion request.
type Request struct {
	// System is the optional system prompt.
	System string
	// Prompt is the user prompt. Required.
	Prompt string
	// MaxTokens caps the completion length. Zero means the client default.
	MaxTokens int
	// Temperature overrides the client default when positive.
	Temperature float64
}

// Response is a completion result.
type Response struct {
	Text         string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// DecodeJSON unmarshals the response text into v. Models often wrap JSON
// in a markdown fence; the fence is stripped before decoding.
func (r *Response) DecodeJSON(v any) error {
	text := strings.TrimSpace(r.Text)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), v); err != nil {
		return fmt.Errorf("decode completion as JSON: %w", err)
	}
	return nil
}

// Client is the completion contract. Implementations must be safe for
// concurrent use; they may serialise requests internally.
type Client interface {
	// Complete issues one completion.
	Complete(ctx context.Context, req *Request) (*Response, error)
	// CompleteBatch issues one completion per request, preserving order.
	// A failed request fails the batch.
	CompleteBatch(ctx context.Context, reqs []*Request) ([]*Response, error)
}

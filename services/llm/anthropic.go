package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Default completion parameters used when Options leaves them zero.
const (
	DefaultModel     = "claude-sonnet-4-5"
	DefaultMaxTokens = 1024
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter. It is satisfied by *sdk.MessageService so callers can pass
// either a real client or a stub in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the Anthropic adapter.
type Options struct {
	// Model is the Claude model identifier. Empty means DefaultModel.
	Model string
	// MaxTokens is the default completion cap when a request does not set
	// one. Zero means DefaultMaxTokens.
	MaxTokens int
	// Temperature is used when a request does not specify one.
	Temperature float64
}

// Anthropic implements Client on top of the Claude Messages API.
type Anthropic struct {
	msg         MessagesClient
	model       string
	maxTokens   int
	temperature float64
}

// NewAnthropic builds a client from the provided Messages client and
// options.
func NewAnthropic(msg MessagesClient, opts Options) (*Anthropic, error) {
	if msg == nil {
		return nil, errors.New("anthropic messages client is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	return &Anthropic{
		msg:         msg,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}, nil
}

// NewAnthropicFromAPIKey constructs a client using the default Anthropic
// HTTP transport.
func NewAnthropicFromAPIKey(apiKey string, opts Options) (*Anthropic, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropic(&ac.Messages, opts)
}

// Complete implements Client.
func (c *Anthropic) Complete(ctx context.Context, req *Request) (*Response, error) {
	params, err := c.prepareRequest(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateResponse(msg)
}

// CompleteBatch implements Client. Requests are issued sequentially; the
// Messages API has no batch endpoint suitable for synchronous use.
func (c *Anthropic) CompleteBatch(ctx context.Context, reqs []*Request) ([]*Response, error) {
	out := make([]*Response, 0, len(reqs))
	for i, req := range reqs {
		resp, err := c.Complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("batch request %d: %w", i, err)
		}
		out = append(out, resp)
	}
	return out, nil
}

func (c *Anthropic) prepareRequest(req *Request) (*sdk.MessageNewParams, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("anthropic: prompt is required")
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.Prompt))},
		Model:     sdk.Model(c.model),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if t := c.effectiveTemperature(req.Temperature); t > 0 {
		params.Temperature = sdk.Float(t)
	}
	return &params, nil
}

func (c *Anthropic) effectiveTemperature(requested float64) float64 {
	if requested > 0 {
		return requested
	}
	return c.temperature
}

func translateResponse(msg *sdk.Message) (*Response, error) {
	if msg == nil {
		return nil, errors.New("anthropic: response message is nil")
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Response{
		Text:         text.String(),
		StopReason:   string(msg.StopReason),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// Verify Anthropic implements Client.
var _ Client = (*Anthropic)(nil)

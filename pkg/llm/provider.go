// Package llm defines the model capability consumed by the agent loop.
//
// A Provider takes the turn history and the available tool specs and
// returns either a final answer or tool-call requests. Providers may
// stream text to a StreamHandler while the response is produced; the loop
// acts only on the aggregated Response.
//
// Example usage:
//
//	provider, err := openai.NewProvider(os.Getenv("OPENAI_API_KEY"), openai.WithModel("gpt-4o"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	resp, err := provider.Send(ctx, &llm.Request{
//	    System:   "You are a helpful assistant.",
//	    Messages: []*types.Message{types.NewUserMessage("Hello!")},
//	    OnDelta:  func(s string) { fmt.Print(s) },
//	})
package llm

import (
	"context"

	"github.com/entrhq/mnemo/pkg/types"
)

// ToolSpec describes a tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string

	// Parameters is the JSON schema of the tool arguments.
	Parameters map[string]any
}

// StreamHandler receives answer text as it is generated.
type StreamHandler func(delta string)

// Request is one model round.
type Request struct {
	System   string
	Messages []*types.Message
	Tools    []ToolSpec

	// MaxTokens caps the completion. Zero uses the provider default.
	MaxTokens int

	OnDelta StreamHandler
}

// Usage reports token counts of one round as billed by the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response is the aggregated result of one model round.
type Response struct {
	Content string

	// Thinking holds reasoning the model marked as such. It is not part of
	// the answer.
	Thinking string

	ToolCalls    []types.ToolCall
	FinishReason string
	Usage        Usage
}

// HasToolCalls reports whether the model requested tools.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Provider defines the interface for model integrations.
type Provider interface {
	// Send runs one model round. Errors should be *StatusError when the
	// backend answered with a failure status, so callers can tell transient
	// faults from permanent ones.
	Send(ctx context.Context, req *Request) (*Response, error)

	// Model returns the model name being used.
	Model() string
}

// Package anthropic provides a model provider backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/entrhq/mnemo/pkg/llm"
	"github.com/entrhq/mnemo/pkg/llm/parser"
	"github.com/entrhq/mnemo/pkg/types"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "claude-sonnet-4-5"

	// DefaultMaxTokens caps completions when the request sets no limit.
	DefaultMaxTokens = 4096
)

// Provider implements llm.Provider for Anthropic models.
type Provider struct {
	client    anthropic.Client
	model     string
	maxTokens int64

	baseURL    string
	httpClient *http.Client
}

// ProviderOption is a function that configures a Provider.
type ProviderOption func(*Provider)

// WithModel sets the model to use.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithMaxTokens sets the default completion cap.
func WithMaxTokens(n int) ProviderOption {
	return func(p *Provider) {
		if n > 0 {
			p.maxTokens = int64(n)
		}
	}
}

// NewProvider creates an Anthropic provider. If apiKey is empty the
// ANTHROPIC_API_KEY environment variable is used.
func NewProvider(apiKey string, opts ...ProviderOption) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required (provide via parameter or ANTHROPIC_API_KEY environment variable)")
	}

	p := &Provider{model: DefaultModel, maxTokens: DefaultMaxTokens}
	for _, opt := range opts {
		opt(p)
	}

	// Retries belong to the agent loop, which owns the backoff policy.
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(p.httpClient))
	}
	p.client = anthropic.NewClient(reqOpts...)
	return p, nil
}

// Model returns the model name being used.
func (p *Provider) Model() string {
	return p.model
}

// Send runs one Messages API round. With a stream handler the response is
// streamed and accumulated.
func (p *Provider) Send(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	params := p.buildParams(req)

	var (
		msg *anthropic.Message
		err error
	)
	if req.OnDelta != nil {
		msg, err = p.stream(ctx, params, req.OnDelta)
	} else {
		msg, err = p.client.Messages.New(ctx, params)
	}
	if err != nil {
		return nil, convertError(err)
	}
	return convertResponse(msg)
}

func (p *Provider) stream(ctx context.Context, params anthropic.MessageNewParams, onDelta llm.StreamHandler) (*anthropic.Message, error) {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	thinking := parser.NewThinkingParser()
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, fmt.Errorf("anthropic: accumulate stream: %w", err)
		}
		if evt, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if delta, ok := evt.Delta.AsAny().(anthropic.TextDelta); ok {
				if _, text := thinking.Parse(delta.Text); text != "" {
					onDelta(text)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	if _, text := thinking.Flush(); text != "" {
		onDelta(text)
	}
	return &message, nil
}

func (p *Provider) buildParams(req *llm.Request) anthropic.MessageNewParams {
	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: maxTokens,
	}

	var system []anthropic.TextBlockParam
	if req.System != "" {
		system = append(system, anthropic.TextBlockParam{Text: req.System})
	}
	messages, extraSystem := convertMessages(req.Messages)
	for _, s := range extraSystem {
		system = append(system, anthropic.TextBlockParam{Text: s})
	}
	params.System = system
	params.Messages = messages

	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}
	return params
}

func convertTools(specs []llm.ToolSpec) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		schema := anthropic.ToolInputSchemaParam{Properties: s.Parameters["properties"]}
		if required, ok := s.Parameters["required"].([]string); ok {
			schema.Required = required
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        s.Name,
			Description: anthropic.String(s.Description),
			InputSchema: schema,
		}})
	}
	return out
}

// convertMessages maps the turn history onto Messages API params.
// Consecutive tool results are folded into one user message, as the API
// requires every result of an assistant turn in the next user message.
func convertMessages(messages []*types.Message) ([]anthropic.MessageParam, []string) {
	var (
		out     []anthropic.MessageParam
		system  []string
		results []anthropic.ContentBlockParamUnion
	)
	flush := func() {
		if len(results) > 0 {
			out = append(out, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	for _, msg := range messages {
		if msg.Role == types.RoleTool {
			callID := ""
			if msg.Result != nil {
				callID = msg.Result.CallID
			}
			isError := msg.Result != nil && msg.Result.IsError
			results = append(results, anthropic.NewToolResultBlock(callID, msg.Content, isError))
			continue
		}
		flush()

		switch msg.Role {
		case types.RoleSystem:
			system = append(system, msg.Content)
		case types.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if len(args) == 0 {
					args = json.RawMessage("{}")
				}
				blocks = append(blocks, anthropic.ContentBlockParamUnion{OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    tc.ID,
					Name:  tc.Name,
					Input: args,
				}})
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	flush()
	return out, system
}

func convertResponse(msg *anthropic.Message) (*llm.Response, error) {
	resp := &llm.Response{
		FinishReason: string(msg.StopReason),
		Usage: llm.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		},
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(v.Text)
		case anthropic.ToolUseBlock:
			args := json.RawMessage(v.Input)
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			resp.ToolCalls = append(resp.ToolCalls, types.ToolCall{ID: v.ID, Name: v.Name, Arguments: args})
		}
	}

	p := parser.NewThinkingParser()
	thinking, content := p.Parse(text.String())
	restThinking, restContent := p.Flush()
	resp.Thinking = thinking + restThinking
	resp.Content = content + restContent

	if resp.Content == "" && len(resp.ToolCalls) == 0 {
		return nil, llm.ErrEmptyResponse
	}
	return resp, nil
}

// convertError maps SDK API errors onto llm.StatusError so the agent loop
// can classify them.
func convertError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &llm.StatusError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
	}
	return fmt.Errorf("anthropic: %w", err)
}

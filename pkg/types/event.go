package types

import "time"

// AgentEventType defines the type of event emitted by the agent.
type AgentEventType string

const (
	EventTypeTurnStart       AgentEventType = "turn_start"        // EventTypeTurnStart indicates a turn has been accepted and started.
	EventTypeStateChange     AgentEventType = "state_change"      // EventTypeStateChange indicates the turn state machine moved to a new state.
	EventTypeContextBuilt    AgentEventType = "context_built"     // EventTypeContextBuilt indicates the memory context for the turn was assembled.
	EventTypeAPICallStart    AgentEventType = "api_call_start"    // EventTypeAPICallStart indicates the agent is calling the model.
	EventTypeAPICallEnd      AgentEventType = "api_call_end"      // EventTypeAPICallEnd indicates a model call has completed.
	EventTypeAPIRetry        AgentEventType = "api_retry"         // EventTypeAPIRetry indicates a failed model call will be retried after a delay.
	EventTypeMessageContent  AgentEventType = "message_content"   // EventTypeMessageContent indicates streamed text from the model.
	EventTypeMessageEnd      AgentEventType = "message_end"       // EventTypeMessageEnd indicates the model finished its reply text.
	EventTypeToolCall        AgentEventType = "tool_call"         // EventTypeToolCall indicates the agent is calling a tool.
	EventTypeToolResult      AgentEventType = "tool_result"       // EventTypeToolResult indicates a successful tool call result.
	EventTypeToolResultError AgentEventType = "tool_result_error" // EventTypeToolResultError indicates a tool call resulted in an error.
	EventTypeTokenUsage      AgentEventType = "token_usage"       // EventTypeTokenUsage indicates token usage information from a model call.
	EventTypeMemoryWrite     AgentEventType = "memory_write"      // EventTypeMemoryWrite indicates the turn was recorded in today's note.
	EventTypeUpdateBusy      AgentEventType = "update_busy"       // EventTypeUpdateBusy indicates a change in the agent's busy status.
	EventTypeTurnEnd         AgentEventType = "turn_end"          // EventTypeTurnEnd indicates the agent has finished processing the current turn.
	EventTypeError           AgentEventType = "error"             // EventTypeError indicates an error occurred during agent processing.
)

// AgentEvent represents an event emitted by the agent during execution.
type AgentEvent struct {
	// Metadata holds optional additional information about the event.
	Metadata map[string]interface{}

	// ToolInput is the raw JSON arguments of a tool call.
	ToolInput []byte

	// ToolOutput is the result from the tool (for tool result events).
	ToolOutput string

	// Error contains error information for error events.
	Error error

	// Content holds text content for content-type events.
	Content string

	// ToolName is the name of the tool being called (for tool events).
	ToolName string

	// ToolCallID pairs tool call and tool result events.
	ToolCallID string

	// Type indicates the kind of event.
	Type AgentEventType

	// TurnID identifies the turn that produced the event.
	TurnID string

	// IsBusy indicates if the agent is busy (for busy status events).
	IsBusy bool

	// TokenUsage contains token usage information (for token usage events).
	TokenUsage *TokenUsage

	// Retry contains retry information (for api retry events).
	Retry *RetryInfo

	// APICallInfo contains model call information (for API call events).
	APICallInfo *APICallInfo
}

// TokenUsage contains token usage statistics from a model call.
type TokenUsage struct {
	// PromptTokens is the number of tokens in the input/prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens in the generated completion/response.
	CompletionTokens int

	// TotalTokens is the total number of tokens used (prompt + completion).
	TotalTokens int
}

// RetryInfo describes a scheduled model call retry.
type RetryInfo struct {
	// Attempt is the 1-based number of the attempt that failed.
	Attempt int

	// MaxAttempts is the configured attempt budget.
	MaxAttempts int

	// Delay is how long the agent waits before the next attempt.
	Delay time.Duration
}

// APICallInfo contains information about a model call.
type APICallInfo struct {
	// Iteration is the 1-based model call number within the turn.
	Iteration int

	// ContextTokens is the size of the request in tokens.
	ContextTokens int
}

func newEvent(t AgentEventType) *AgentEvent {
	return &AgentEvent{
		Type:     t,
		Metadata: make(map[string]interface{}),
	}
}

// NewTurnStartEvent creates a turn start event.
func NewTurnStartEvent(turnID string) *AgentEvent {
	e := newEvent(EventTypeTurnStart)
	e.TurnID = turnID
	return e
}

// NewStateChangeEvent creates a state change event. Content holds the new state.
func NewStateChangeEvent(state string) *AgentEvent {
	e := newEvent(EventTypeStateChange)
	e.Content = state
	return e
}

// NewContextBuiltEvent creates a context built event.
func NewContextBuiltEvent(chunks, tokens int) *AgentEvent {
	e := newEvent(EventTypeContextBuilt)
	e.Metadata["chunks"] = chunks
	e.Metadata["tokens"] = tokens
	return e
}

// NewAPICallStartEvent creates an API call start event.
func NewAPICallStartEvent(iteration, contextTokens int) *AgentEvent {
	e := newEvent(EventTypeAPICallStart)
	e.APICallInfo = &APICallInfo{
		Iteration:     iteration,
		ContextTokens: contextTokens,
	}
	return e
}

// NewAPICallEndEvent creates an API call end event.
func NewAPICallEndEvent(iteration int) *AgentEvent {
	e := newEvent(EventTypeAPICallEnd)
	e.APICallInfo = &APICallInfo{Iteration: iteration}
	return e
}

// NewAPIRetryEvent creates an API retry event.
func NewAPIRetryEvent(attempt, maxAttempts int, delay time.Duration, err error) *AgentEvent {
	e := newEvent(EventTypeAPIRetry)
	e.Error = err
	e.Retry = &RetryInfo{
		Attempt:     attempt,
		MaxAttempts: maxAttempts,
		Delay:       delay,
	}
	return e
}

// NewMessageContentEvent creates a message content event.
func NewMessageContentEvent(content string) *AgentEvent {
	e := newEvent(EventTypeMessageContent)
	e.Content = content
	return e
}

// NewMessageEndEvent creates a message end event.
func NewMessageEndEvent() *AgentEvent {
	return newEvent(EventTypeMessageEnd)
}

// NewToolCallEvent creates a tool call event.
func NewToolCallEvent(call ToolCall) *AgentEvent {
	e := newEvent(EventTypeToolCall)
	e.ToolName = call.Name
	e.ToolCallID = call.ID
	e.ToolInput = call.Arguments
	return e
}

// NewToolResultEvent creates a tool result event.
func NewToolResultEvent(result ToolResult) *AgentEvent {
	e := newEvent(EventTypeToolResult)
	e.ToolName = result.Name
	e.ToolCallID = result.CallID
	e.ToolOutput = result.Content
	return e
}

// NewToolResultErrorEvent creates a tool result error event.
func NewToolResultErrorEvent(result ToolResult, err error) *AgentEvent {
	e := newEvent(EventTypeToolResultError)
	e.ToolName = result.Name
	e.ToolCallID = result.CallID
	e.ToolOutput = result.Content
	e.Error = err
	return e
}

// NewTokenUsageEvent creates a token usage event.
func NewTokenUsageEvent(promptTokens, completionTokens, totalTokens int) *AgentEvent {
	e := newEvent(EventTypeTokenUsage)
	e.TokenUsage = &TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      totalTokens,
	}
	return e
}

// NewMemoryWriteEvent creates a memory write event for the given day.
func NewMemoryWriteEvent(date string) *AgentEvent {
	e := newEvent(EventTypeMemoryWrite)
	e.Content = date
	return e
}

// NewUpdateBusyEvent creates a busy status event.
func NewUpdateBusyEvent(isBusy bool) *AgentEvent {
	e := newEvent(EventTypeUpdateBusy)
	e.IsBusy = isBusy
	return e
}

// NewTurnEndEvent creates a turn end event.
func NewTurnEndEvent(turnID string) *AgentEvent {
	e := newEvent(EventTypeTurnEnd)
	e.TurnID = turnID
	return e
}

// NewErrorEvent creates an error event.
func NewErrorEvent(err error) *AgentEvent {
	e := newEvent(EventTypeError)
	e.Error = err
	return e
}

// WithMetadata adds metadata to the event and returns the event for chaining.
func (e *AgentEvent) WithMetadata(key string, value interface{}) *AgentEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// WithTurnID tags the event with the turn that produced it.
func (e *AgentEvent) WithTurnID(turnID string) *AgentEvent {
	e.TurnID = turnID
	return e
}

// IsMessageEvent returns true if this is a message-related event.
func (e *AgentEvent) IsMessageEvent() bool {
	return e.Type == EventTypeMessageContent || e.Type == EventTypeMessageEnd
}

// IsToolEvent returns true if this is a tool-related event.
func (e *AgentEvent) IsToolEvent() bool {
	return e.Type == EventTypeToolCall ||
		e.Type == EventTypeToolResult ||
		e.Type == EventTypeToolResultError
}

// IsAPIEvent returns true if this is a model call event.
func (e *AgentEvent) IsAPIEvent() bool {
	return e.Type == EventTypeAPICallStart ||
		e.Type == EventTypeAPICallEnd ||
		e.Type == EventTypeAPIRetry
}

// IsErrorEvent returns true if this is an error event.
func (e *AgentEvent) IsErrorEvent() bool {
	return e.Type == EventTypeError || e.Type == EventTypeToolResultError
}

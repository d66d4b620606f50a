package types

import "encoding/json"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"    // RoleSystem carries instructions and memory context.
	RoleUser      Role = "user"      // RoleUser is a message from the human.
	RoleAssistant Role = "assistant" // RoleAssistant is a model reply, possibly with tool calls.
	RoleTool      Role = "tool"      // RoleTool carries the result of one tool call.
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned call ID used to pair the result.
	ID string

	Name string

	// Arguments is the raw JSON object produced by the model.
	Arguments json.RawMessage
}

// ToolResult is the outcome of a ToolCall. Failures are results too: they
// are fed back to the model with IsError set.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// Message is one entry of the turn history sent to a provider.
type Message struct {
	Role    Role
	Content string

	// ToolCalls is set on assistant messages that request tools.
	ToolCalls []ToolCall

	// Result is set on tool messages.
	Result *ToolResult
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) *Message {
	return &Message{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) *Message {
	return &Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates an assistant message with optional tool calls.
func NewAssistantMessage(content string, calls ...ToolCall) *Message {
	return &Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// NewToolMessage creates a tool message carrying result.
func NewToolMessage(result ToolResult) *Message {
	r := result
	return &Message{Role: RoleTool, Content: result.Content, Result: &r}
}

// HasToolCalls reports whether the message requests any tool.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

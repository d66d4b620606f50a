// Package prompts assembles the system prompt of a conversation turn.
package prompts

import (
	"fmt"
	"strings"
	"time"
)

// PromptBuilder constructs the system prompt for the agent loop.
type PromptBuilder struct {
	customInstructions string
	memoryContext      string
	now                time.Time
}

// NewPromptBuilder creates a new prompt builder with default settings
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// WithCustomInstructions adds user-provided instructions
func (pb *PromptBuilder) WithCustomInstructions(instructions string) *PromptBuilder {
	pb.customInstructions = instructions
	return pb
}

// WithMemoryContext adds the assembled memory block
func (pb *PromptBuilder) WithMemoryContext(context string) *PromptBuilder {
	pb.memoryContext = context
	return pb
}

// WithTime sets the current time shown to the model
func (pb *PromptBuilder) WithTime(now time.Time) *PromptBuilder {
	pb.now = now
	return pb
}

// Build constructs the complete system prompt by assembling all sections
func (pb *PromptBuilder) Build() string {
	var builder strings.Builder

	if pb.customInstructions != "" {
		builder.WriteString("<custom_instructions>\n")
		builder.WriteString(pb.customInstructions)
		builder.WriteString("\n</custom_instructions>\n\n")
	}

	builder.WriteString(SystemCapabilitiesPrompt)
	builder.WriteString("\n\n")
	builder.WriteString(MemoryPrompt)
	builder.WriteString("\n\n")
	builder.WriteString(ChainOfThoughtPrompt)
	builder.WriteString("\n\n")
	builder.WriteString(ToolUseRulesPrompt)

	if !pb.now.IsZero() {
		fmt.Fprintf(&builder, "\n\n<current_time>%s</current_time>", pb.now.Format("Monday, 2006-01-02 15:04 MST"))
	}

	if strings.TrimSpace(pb.memoryContext) != "" {
		builder.WriteString("\n\n<memory_context>\n")
		builder.WriteString(pb.memoryContext)
		builder.WriteString("\n</memory_context>")
	}

	return builder.String()
}

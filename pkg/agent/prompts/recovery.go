package prompts

import (
	"fmt"
	"strings"
)

// ErrorType classifies a tool failure reported back to the model.
type ErrorType string

const (
	ErrorTypeUnknownTool   ErrorType = "unknown_tool"
	ErrorTypeToolExecution ErrorType = "tool_execution"
)

// ErrorRecoveryContext describes a failed tool call.
type ErrorRecoveryContext struct {
	Type           ErrorType
	ToolName       string
	Error          error
	AvailableTools []string
}

// BuildErrorRecoveryMessage formats a tool failure as the tool result the
// model sees, with a hint on how to proceed.
func BuildErrorRecoveryMessage(ctx ErrorRecoveryContext) string {
	switch ctx.Type {
	case ErrorTypeUnknownTool:
		return fmt.Sprintf("ERROR: unknown tool '%s'. Available tools: %s. Call one of these or answer the user directly.",
			ctx.ToolName, strings.Join(ctx.AvailableTools, ", "))
	default:
		msg := "unknown error"
		if ctx.Error != nil {
			msg = ctx.Error.Error()
		}
		return fmt.Sprintf("ERROR: tool '%s' failed: %s. Check the arguments and try again, or continue without this tool.",
			ctx.ToolName, msg)
	}
}

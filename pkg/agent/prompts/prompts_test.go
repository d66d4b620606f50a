package prompts

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestBuildIncludesSections(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 5, 0, 0, time.UTC)
	prompt := NewPromptBuilder().
		WithCustomInstructions("Answer in French.").
		WithMemoryContext("## Long-term Memory\n\nLives in Lisbon.").
		WithTime(now).
		Build()

	for _, want := range []string{
		"<custom_instructions>\nAnswer in French.\n</custom_instructions>",
		"<system_capabilities>",
		"<memory>",
		"<tool_use_rules>",
		"<current_time>Monday, 2026-10-19 09:05 UTC</current_time>",
		"<memory_context>\n## Long-term Memory\n\nLives in Lisbon.\n</memory_context>",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	if !strings.HasPrefix(prompt, "<custom_instructions>") {
		t.Error("custom instructions should come first")
	}
	if !strings.HasSuffix(prompt, "</memory_context>") {
		t.Error("memory context should come last")
	}
}

func TestBuildOmitsEmptySections(t *testing.T) {
	prompt := NewPromptBuilder().WithMemoryContext("  \n").Build()

	for _, unwanted := range []string{"<custom_instructions>", "<memory_context>", "<current_time>"} {
		if strings.Contains(prompt, unwanted) {
			t.Errorf("prompt should not contain %q", unwanted)
		}
	}
}

func TestBuildErrorRecoveryMessage(t *testing.T) {
	unknown := BuildErrorRecoveryMessage(ErrorRecoveryContext{
		Type:           ErrorTypeUnknownTool,
		ToolName:       "web_search",
		AvailableTools: []string{"memory_search", "memory_recent"},
	})
	if !strings.Contains(unknown, "unknown tool 'web_search'") || !strings.Contains(unknown, "memory_search, memory_recent") {
		t.Errorf("unexpected unknown tool message: %s", unknown)
	}

	failed := BuildErrorRecoveryMessage(ErrorRecoveryContext{
		Type:     ErrorTypeToolExecution,
		ToolName: "memory_search",
		Error:    errors.New("query cannot be empty"),
	})
	if !strings.Contains(failed, "tool 'memory_search' failed: query cannot be empty") {
		t.Errorf("unexpected execution error message: %s", failed)
	}
}

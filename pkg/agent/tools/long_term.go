package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/mnemo/pkg/memory"
)

const (
	updateLongTermToolName = "update_long_term_memory"

	// LongTermResourceTag serializes writers of the long-term fact sheet.
	LongTermResourceTag = "memory:long-term"
)

// UpdateLongTermMemoryTool replaces the long-term fact sheet.
type UpdateLongTermMemoryTool struct {
	store memory.Store
}

// NewUpdateLongTermMemoryTool creates the tool over store.
func NewUpdateLongTermMemoryTool(store memory.Store) *UpdateLongTermMemoryTool {
	return &UpdateLongTermMemoryTool{store: store}
}

// Name returns the tool's identifier
func (t *UpdateLongTermMemoryTool) Name() string {
	return updateLongTermToolName
}

// Description returns a description of what this tool does
func (t *UpdateLongTermMemoryTool) Description() string {
	return "Replace the long-term memory with an updated version. " +
		"Long-term memory holds durable facts and preferences about the user and is shown to you in every conversation. " +
		"Pass the complete new text: anything left out is forgotten."
}

// Schema returns the JSON schema for the tool's arguments
func (t *UpdateLongTermMemoryTool) Schema() map[string]interface{} {
	return BaseToolSchema(
		map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The full new long-term memory, in Markdown.",
			},
		},
		[]string{"content"},
	)
}

// ResourceTag implements ResourceTagger.
func (t *UpdateLongTermMemoryTool) ResourceTag(json.RawMessage) string {
	return LongTermResourceTag
}

// Execute replaces the fact sheet.
func (t *UpdateLongTermMemoryTool) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Content string `json:"content"`
	}
	if err := decodeArgs(updateLongTermToolName, raw, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Content) == "" {
		return "", fmt.Errorf("%w: content cannot be empty", ErrInvalidArguments)
	}
	if err := t.store.UpdateLongTerm(ctx, args.Content); err != nil {
		return "", err
	}
	return "Long-term memory updated.", nil
}

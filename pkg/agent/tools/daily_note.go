package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/mnemo/pkg/memory"
)

const (
	appendDailyNoteToolName = "append_daily_note"

	// TodayResourceTag serializes writers of today's note.
	TodayResourceTag = "memory:today"
)

// AppendDailyNoteTool records a note in today's log.
type AppendDailyNoteTool struct {
	store memory.Store
}

// NewAppendDailyNoteTool creates the tool over store.
func NewAppendDailyNoteTool(store memory.Store) *AppendDailyNoteTool {
	return &AppendDailyNoteTool{store: store}
}

// Name returns the tool's identifier
func (t *AppendDailyNoteTool) Name() string {
	return appendDailyNoteToolName
}

// Description returns a description of what this tool does
func (t *AppendDailyNoteTool) Description() string {
	return "Write a note into today's log, for things worth finding again later that are not durable facts."
}

// Schema returns the JSON schema for the tool's arguments
func (t *AppendDailyNoteTool) Schema() map[string]interface{} {
	return BaseToolSchema(
		map[string]interface{}{
			"text": map[string]interface{}{
				"type":        "string",
				"description": "The note to record.",
			},
		},
		[]string{"text"},
	)
}

// ResourceTag implements ResourceTagger.
func (t *AppendDailyNoteTool) ResourceTag(json.RawMessage) string {
	return TodayResourceTag
}

// Execute appends the note.
func (t *AppendDailyNoteTool) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Text string `json:"text"`
	}
	if err := decodeArgs(appendDailyNoteToolName, raw, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Text) == "" {
		return "", fmt.Errorf("%w: text cannot be empty", ErrInvalidArguments)
	}
	if err := t.store.AppendToday(ctx, "Note: "+args.Text); err != nil {
		return "", err
	}
	return fmt.Sprintf("Noted in %s.", t.store.Today()), nil
}

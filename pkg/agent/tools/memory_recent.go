package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/entrhq/mnemo/pkg/memory"
)

const (
	memoryRecentToolName = "memory_recent"

	defaultRecentDays = 7
	maxRecentDays     = 30
)

// MemoryRecentTool returns the daily notes of the last few days.
type MemoryRecentTool struct {
	store memory.Store
}

// NewMemoryRecentTool creates a recent-notes tool over store.
func NewMemoryRecentTool(store memory.Store) *MemoryRecentTool {
	return &MemoryRecentTool{store: store}
}

// Name returns the tool's identifier
func (t *MemoryRecentTool) Name() string {
	return memoryRecentToolName
}

// Description returns a description of what this tool does
func (t *MemoryRecentTool) Description() string {
	return "Read the conversation notes of the last few days, newest first."
}

// Schema returns the JSON schema for the tool's arguments
func (t *MemoryRecentTool) Schema() map[string]interface{} {
	return BaseToolSchema(
		map[string]interface{}{
			"days": map[string]interface{}{
				"type":        "integer",
				"description": "How many calendar days to read, including today (default 7, at most 30).",
				"minimum":     1,
				"maximum":     maxRecentDays,
			},
		},
		nil,
	)
}

// Execute reads the recent notes.
func (t *MemoryRecentTool) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Days int `json:"days"`
	}
	if err := decodeArgs(memoryRecentToolName, raw, &args); err != nil {
		return "", err
	}
	days := args.Days
	switch {
	case days <= 0:
		days = defaultRecentDays
	case days > maxRecentDays:
		days = maxRecentDays
	}

	notes, err := t.store.RecentDays(ctx, days)
	if err != nil {
		return "", err
	}
	if notes == "" {
		return fmt.Sprintf("No notes in the last %d days.", days), nil
	}
	return notes, nil
}

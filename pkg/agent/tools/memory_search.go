package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/entrhq/mnemo/pkg/memory/index"
)

const (
	memorySearchToolName = "memory_search"

	defaultSearchCount = 10
	maxSearchCount     = 20
)

// Searcher is the retrieval side of the semantic index.
type Searcher interface {
	Enabled() bool
	Search(ctx context.Context, query string, k int) []index.Result
}

// MemorySearchTool searches past daily notes by meaning. Today's note is
// never searched; it is already part of the prompt.
type MemorySearchTool struct {
	index Searcher
}

// NewMemorySearchTool creates a memory search tool over idx.
func NewMemorySearchTool(idx Searcher) *MemorySearchTool {
	return &MemorySearchTool{index: idx}
}

// Name returns the tool's identifier
func (t *MemorySearchTool) Name() string {
	return memorySearchToolName
}

// Description returns a description of what this tool does
func (t *MemorySearchTool) Description() string {
	return "Search past conversation notes for fragments related to a query. " +
		"Use this when the user refers to something discussed on an earlier day. " +
		"Today's notes are already in your context and are not searched."
}

// Schema returns the JSON schema for the tool's arguments
func (t *MemorySearchTool) Schema() map[string]interface{} {
	return BaseToolSchema(
		map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "What to look for, phrased as a short description or question.",
			},
			"count": map[string]interface{}{
				"type":        "integer",
				"description": "Number of fragments to return (1-20, default 10).",
				"minimum":     1,
				"maximum":     maxSearchCount,
			},
		},
		[]string{"query"},
	)
}

// Execute runs the search and returns numbered fragments.
func (t *MemorySearchTool) Execute(ctx context.Context, raw json.RawMessage) (string, error) {
	var args struct {
		Query string `json:"query"`
		Count int    `json:"count"`
	}
	if err := decodeArgs(memorySearchToolName, raw, &args); err != nil {
		return "", err
	}
	if strings.TrimSpace(args.Query) == "" {
		return "", fmt.Errorf("%w: query cannot be empty", ErrInvalidArguments)
	}

	count := args.Count
	switch {
	case count <= 0:
		count = defaultSearchCount
	case count > maxSearchCount:
		count = maxSearchCount
	}

	if t.index == nil || !t.index.Enabled() {
		return "Semantic memory search is not available. Use memory_recent to read the notes of recent days instead.", nil
	}

	results := t.index.Search(ctx, args.Query, count)
	if len(results) == 0 {
		return fmt.Sprintf("No past memories found for %q.", args.Query), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d memory fragments for %q:\n", len(results), args.Query)
	for i, r := range results {
		fmt.Fprintf(&sb, "\n%d. [%s] (similarity %.2f)\n%s\n", i+1, r.Date, r.Similarity, strings.TrimSpace(r.Text))
	}
	return sb.String(), nil
}

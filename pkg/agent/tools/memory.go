package tools

import "github.com/entrhq/mnemo/pkg/memory"

// MemoryTools returns the built-in memory tools in the order they are
// offered to the model.
func MemoryTools(store memory.Store, idx Searcher) []Tool {
	return []Tool{
		NewMemorySearchTool(idx),
		NewMemoryRecentTool(store),
		NewUpdateLongTermMemoryTool(store),
		NewAppendDailyNoteTool(store),
	}
}

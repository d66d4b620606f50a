package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/entrhq/mnemo/pkg/agent"
	"github.com/entrhq/mnemo/pkg/agent/tools"
	"github.com/entrhq/mnemo/pkg/memory"
	"github.com/entrhq/mnemo/pkg/session"
	"github.com/entrhq/mnemo/pkg/types"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	got *types.Input
	err error
}

func (f *fakeChat) Handle(_ context.Context, in *types.Input, _ ...session.SubmitOption) (*agent.Result, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &agent.Result{State: agent.StateDone, Answer: "answer to " + in.Content}, nil
}

func newRegistry(t *testing.T) (*tools.Registry, *memory.FileStore) {
	t.Helper()
	at := time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
	store, err := memory.NewFileStore(t.TempDir(),
		memory.WithLocation(time.UTC),
		memory.WithClock(func() time.Time { return at }))
	require.NoError(t, err)
	return tools.NewRegistry(tools.MemoryTools(store, nil)...), store
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestToolsListed(t *testing.T) {
	registry, _ := newRegistry(t)
	s, err := New(registry, WithChat(&fakeChat{}))
	require.NoError(t, err)

	ctx := context.Background()
	s.MCP().HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"0"}}}`))
	resp := s.MCP().HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	b, err := json.Marshal(resp)
	require.NoError(t, err)

	for _, name := range append(registry.Names(), ChatToolName) {
		assert.Contains(t, string(b), `"`+name+`"`)
	}
}

func TestToolHandlerExecutesMemoryTools(t *testing.T) {
	ctx := context.Background()
	registry, store := newRegistry(t)
	s, err := New(registry)
	require.NoError(t, err)

	tool, ok := registry.Get("append_daily_note")
	require.True(t, ok)
	res, err := s.toolHandler(tool)(ctx, callRequest("append_daily_note", map[string]any{"text": "buy milk"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Noted in 2026-10-19.", resultText(t, res))

	today, err := store.ReadToday(ctx)
	require.NoError(t, err)
	assert.Contains(t, today, "buy milk")

	// memory_search degrades gracefully without an index
	tool, _ = registry.Get("memory_search")
	res, err = s.toolHandler(tool)(ctx, callRequest("memory_search", map[string]any{"query": "milk"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "not available")

	// invalid arguments become tool errors, not protocol errors
	res, err = s.toolHandler(tool)(ctx, callRequest("memory_search", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestChatHandler(t *testing.T) {
	ctx := context.Background()
	registry, _ := newRegistry(t)

	t.Run("default session", func(t *testing.T) {
		chat := &fakeChat{}
		s, err := New(registry, WithChat(chat))
		require.NoError(t, err)

		res, err := s.chatHandler(ctx, callRequest(ChatToolName, map[string]any{"message": " hi "}))
		require.NoError(t, err)
		assert.Equal(t, "answer to hi", resultText(t, res))
		assert.Equal(t, DefaultSessionID, chat.got.SessionID)
		assert.Equal(t, "mcp", chat.got.Channel)
	})

	t.Run("explicit session", func(t *testing.T) {
		chat := &fakeChat{}
		s, err := New(registry, WithChat(chat))
		require.NoError(t, err)

		_, err = s.chatHandler(ctx, callRequest(ChatToolName, map[string]any{"message": "hi", "session_id": "abc"}))
		require.NoError(t, err)
		assert.Equal(t, "abc", chat.got.SessionID)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name string
			args map[string]any
			err  error
			want string
		}{
			{"empty message", map[string]any{"message": "  "}, nil, "cannot be empty"},
			{"busy", map[string]any{"message": "hi"}, &session.BackpressureError{SessionID: "mcp", Depth: 8}, "busy"},
			{"failed turn", map[string]any{"message": "hi"}, agent.ErrToolLoopExceeded, "Turn failed"},
			{"provider", map[string]any{"message": "hi"}, &agent.ProviderError{Attempts: 3, Err: errors.New("timeout")}, "3 attempt"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				s, err := New(registry, WithChat(&fakeChat{err: tt.err}))
				require.NoError(t, err)
				res, err := s.chatHandler(ctx, callRequest(ChatToolName, tt.args))
				require.NoError(t, err)
				assert.True(t, res.IsError)
				assert.Contains(t, resultText(t, res), tt.want)
			})
		}
	})
}

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/entrhq/mnemo/pkg/agent/tools"
	"github.com/entrhq/mnemo/pkg/contextbuilder"
	"github.com/entrhq/mnemo/pkg/llm"
	"github.com/entrhq/mnemo/pkg/llm/tokenizer"
	"github.com/entrhq/mnemo/pkg/memory"
	"github.com/entrhq/mnemo/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider answers each call with respond(n), n being 1-based.
type scriptedProvider struct {
	mu       sync.Mutex
	calls    int
	requests [][]*types.Message
	systems  []string
	respond  func(n int) (*llm.Response, error)
}

func (p *scriptedProvider) Send(_ context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.calls++
	n := p.calls
	p.requests = append(p.requests, append([]*types.Message(nil), req.Messages...))
	p.systems = append(p.systems, req.System)
	p.mu.Unlock()

	resp, err := p.respond(n)
	if err == nil && resp.Content != "" && req.OnDelta != nil {
		req.OnDelta(resp.Content)
	}
	return resp, err
}

func (p *scriptedProvider) Model() string { return "scripted" }

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func answer(text string) (*llm.Response, error) {
	return &llm.Response{Content: text, FinishReason: "stop"}, nil
}

func callTools(calls ...types.ToolCall) (*llm.Response, error) {
	return &llm.Response{ToolCalls: calls, FinishReason: "tool_calls"}, nil
}

func call(id, name, args string) types.ToolCall {
	return types.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

// funcTool is a tool backed by a function, optionally tagged.
type funcTool struct {
	name string
	tag  string
	fn   func(ctx context.Context, args json.RawMessage) (string, error)
}

func (f *funcTool) Name() string                   { return f.name }
func (f *funcTool) Description() string            { return "test tool " + f.name }
func (f *funcTool) Schema() map[string]interface{} { return tools.BaseToolSchema(nil, nil) }
func (f *funcTool) ResourceTag(json.RawMessage) string {
	return f.tag
}

func (f *funcTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return f.fn(ctx, args)
}

type recordingScheduler struct {
	mu    sync.Mutex
	dates []string
}

func (r *recordingScheduler) Schedule(date string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dates = append(r.dates, date)
}

type harness struct {
	store    *memory.FileStore
	provider *scriptedProvider
	sched    *recordingScheduler
	sleeps   []time.Duration
	events   []*types.AgentEvent
}

func newHarness(t *testing.T, respond func(n int) (*llm.Response, error)) *harness {
	t.Helper()
	at := time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)
	store, err := memory.NewFileStore(t.TempDir(),
		memory.WithLocation(time.UTC),
		memory.WithClock(func() time.Time { return at }))
	require.NoError(t, err)
	return &harness{
		store:    store,
		provider: &scriptedProvider{respond: respond},
		sched:    &recordingScheduler{},
	}
}

func (h *harness) loop(registry *tools.Registry, opts ...LoopOption) *Loop {
	source := contextbuilder.New(h.store, contextbuilder.WithCounter(tokenizer.Heuristic{}))
	base := []LoopOption{
		WithRetry(3, 100*time.Millisecond, time.Second),
		WithReindexer(h.sched),
		WithObserver(func(e *types.AgentEvent) { h.events = append(h.events, e) }),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return ctx.Err()
		}),
	}
	return NewLoop(h.provider, registry, h.store, source, append(base, opts...)...)
}

func (h *harness) eventTypes() []types.AgentEventType {
	out := make([]types.AgentEventType, 0, len(h.events))
	for _, e := range h.events {
		out = append(out, e.Type)
	}
	return out
}

func TestRunAnswersAndRecordsTurn(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(int) (*llm.Response, error) { return answer("Hello!") })
	require.NoError(t, h.store.UpdateLongTerm(ctx, "- Lives in Lisbon"))

	res, err := h.loop(nil).Run(ctx, "hi", nil)
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "Hello!", res.Answer)
	assert.Equal(t, 1, res.Iterations)
	assert.NotEmpty(t, res.TurnID)

	today, err := h.store.ReadToday(ctx)
	require.NoError(t, err)
	assert.Contains(t, today, "User: hi\nAssistant: Hello!")
	assert.Equal(t, []string{"2026-10-19"}, h.sched.dates)

	require.Len(t, h.provider.systems, 1)
	assert.Contains(t, h.provider.systems[0], "Lives in Lisbon")

	got := h.eventTypes()
	assert.Equal(t, types.EventTypeTurnStart, got[0])
	assert.Equal(t, types.EventTypeTurnEnd, got[len(got)-1])
	assert.Contains(t, got, types.EventTypeContextBuilt)
	assert.Contains(t, got, types.EventTypeMemoryWrite)
	for _, e := range h.events {
		assert.Equal(t, res.TurnID, e.TurnID)
	}
}

func TestAPICallStartReportsRequestSize(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(n int) (*llm.Response, error) {
		if n == 1 {
			return callTools(call("c1", "memory_recent", `{"days":2}`))
		}
		return answer("nothing recent")
	})
	registry := tools.NewRegistry(tools.NewMemoryRecentTool(h.store))

	_, err := h.loop(registry).Run(ctx, "what did we do?", nil)
	require.NoError(t, err)

	var sizes []int
	for _, e := range h.events {
		if e.Type == types.EventTypeAPICallStart {
			sizes = append(sizes, e.APICallInfo.ContextTokens)
		}
	}
	require.Len(t, sizes, 2)

	h0 := tokenizer.Heuristic{}
	want := h0.CountTokens(h.provider.systems[0]) +
		tokenizer.CountMessages(h0, []*types.Message{types.NewUserMessage("what did we do?")})
	assert.Equal(t, want, sizes[0])
	assert.Greater(t, sizes[1], sizes[0])
}

func TestRunToolLoopExceeded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(n int) (*llm.Response, error) {
		return callTools(call(fmt.Sprintf("c%d", n), "memory_recent", `{}`))
	})
	registry := tools.NewRegistry(tools.NewMemoryRecentTool(h.store))

	res, err := h.loop(registry).Run(ctx, "loop forever", nil)
	require.ErrorIs(t, err, ErrToolLoopExceeded)
	assert.Equal(t, DefaultMaxIterations, h.provider.callCount())
	assert.Equal(t, DefaultMaxIterations, res.Iterations)
	assert.Equal(t, DefaultMaxIterations, res.ToolCalls)
	assert.Equal(t, StateFailed, res.State)

	today, err := h.store.ReadToday(ctx)
	require.NoError(t, err)
	assert.Empty(t, today)
	assert.Empty(t, h.sched.dates)
}

func TestRunRetriesModelCalls(t *testing.T) {
	timeout := errors.New("request timed out")
	badRequest := &llm.StatusError{Provider: "test", StatusCode: http.StatusBadRequest}

	tests := []struct {
		name         string
		respond      func(n int) (*llm.Response, error)
		wantErr      bool
		wantAttempts int
		wantCalls    int
		wantSleeps   []time.Duration
	}{
		{
			name:         "gives up after three attempts",
			respond:      func(int) (*llm.Response, error) { return nil, timeout },
			wantErr:      true,
			wantAttempts: 3,
			wantCalls:    3,
			wantSleeps:   []time.Duration{100 * time.Millisecond, 200 * time.Millisecond},
		},
		{
			name:         "non-retryable fails at once",
			respond:      func(int) (*llm.Response, error) { return nil, badRequest },
			wantErr:      true,
			wantAttempts: 1,
			wantCalls:    1,
		},
		{
			name: "recovers on the last attempt",
			respond: func(n int) (*llm.Response, error) {
				if n < 3 {
					return nil, &llm.StatusError{Provider: "test", StatusCode: http.StatusTooManyRequests}
				}
				return answer("ok")
			},
			wantCalls:  3,
			wantSleeps: []time.Duration{100 * time.Millisecond, 200 * time.Millisecond},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.respond)
			res, err := h.loop(nil).Run(context.Background(), "hi", nil)

			assert.Equal(t, tt.wantCalls, h.provider.callCount())
			assert.Equal(t, tt.wantSleeps, h.sleeps)
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "ok", res.Answer)
				return
			}
			var pe *ProviderError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, tt.wantAttempts, pe.Attempts)
			assert.Equal(t, StateFailed, res.State)
		})
	}
}

func TestBackoffIsCapped(t *testing.T) {
	l := NewLoop(nil, nil, nil, nil, WithRetry(6, time.Second, 5*time.Second))
	got := []time.Duration{l.backoff(1), l.backoff(2), l.backoff(3), l.backoff(4), l.backoff(5)}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}, got)
}

func TestRunFeedsToolFailuresBack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(n int) (*llm.Response, error) {
		if n == 1 {
			return callTools(call("a", "broken", `{}`), call("b", "nope", `{}`))
		}
		return answer("recovered")
	})
	broken := &funcTool{name: "broken", fn: func(context.Context, json.RawMessage) (string, error) {
		return "", errors.New("disk on fire")
	}}

	res, err := h.loop(tools.NewRegistry(broken)).Run(ctx, "try tools", nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Answer)
	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, 2, res.ToolCalls)

	second := h.provider.requests[1]
	require.Len(t, second, 4)
	assert.Equal(t, types.RoleAssistant, second[1].Role)
	require.Len(t, second[1].ToolCalls, 2)

	failed := second[2].Result
	require.NotNil(t, failed)
	assert.Equal(t, "a", failed.CallID)
	assert.True(t, failed.IsError)
	assert.Contains(t, failed.Content, "disk on fire")

	unknown := second[3].Result
	require.NotNil(t, unknown)
	assert.Equal(t, "b", unknown.CallID)
	assert.True(t, unknown.IsError)
	assert.Contains(t, unknown.Content, "unknown tool 'nope'")
	assert.Contains(t, unknown.Content, "broken")
}

func TestRunStorageFaultFailsTurn(t *testing.T) {
	h := newHarness(t, func(int) (*llm.Response, error) {
		return callTools(call("a", "write", `{}`))
	})
	write := &funcTool{name: "write", fn: func(context.Context, json.RawMessage) (string, error) {
		return "", &memory.StorageError{Op: "write", Err: errors.New("read-only file system")}
	}}

	res, err := h.loop(tools.NewRegistry(write)).Run(context.Background(), "save this", nil)
	require.Error(t, err)
	assert.True(t, memory.IsStorageError(err))
	assert.Equal(t, 1, h.provider.callCount())
	assert.Equal(t, StateFailed, res.State)
}

func TestRunCancellation(t *testing.T) {
	t.Run("before the model call", func(t *testing.T) {
		h := newHarness(t, func(int) (*llm.Response, error) { return answer("never") })
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := h.loop(nil).Run(ctx, "hi", nil)
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, h.provider.callCount())
		assert.Equal(t, StateFailed, res.State)
	})

	t.Run("during backoff", func(t *testing.T) {
		h := newHarness(t, func(int) (*llm.Response, error) { return nil, errors.New("timeout") })
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		l := h.loop(nil, WithSleep(func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		}))
		_, err := l.Run(ctx, "hi", nil)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, h.provider.callCount())
	})

	t.Run("before tool dispatch", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		h := newHarness(t, func(int) (*llm.Response, error) {
			cancel()
			return callTools(call("a", "count", `{}`))
		})
		var executed atomic.Int32
		count := &funcTool{name: "count", fn: func(context.Context, json.RawMessage) (string, error) {
			executed.Add(1)
			return "ok", nil
		}}

		_, err := h.loop(tools.NewRegistry(count)).Run(ctx, "hi", nil)
		require.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, executed.Load())
	})

	t.Run("running tools are not abandoned", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		h := newHarness(t, func(n int) (*llm.Response, error) {
			if n == 1 {
				return callTools(call("a", "slow", `{}`))
			}
			return answer("unreachable")
		})
		var sawCancel atomic.Bool
		slow := &funcTool{name: "slow", fn: func(toolCtx context.Context, _ json.RawMessage) (string, error) {
			cancel()
			sawCancel.Store(toolCtx.Err() != nil)
			return "finished", nil
		}}

		res, err := h.loop(tools.NewRegistry(slow)).Run(ctx, "hi", nil)
		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, sawCancel.Load())
		assert.Equal(t, 1, res.ToolCalls)
		assert.Equal(t, 1, h.provider.callCount())
	})
}

func TestExecuteToolsBoundsParallelism(t *testing.T) {
	const k = 2
	var (
		running atomic.Int32
		peak    atomic.Int32
	)
	slow := &funcTool{name: "slow", fn: func(_ context.Context, args json.RawMessage) (string, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return string(args), nil
	}}

	var calls []types.ToolCall
	for i := 0; i < 6; i++ {
		calls = append(calls, call(fmt.Sprintf("c%d", i), "slow", fmt.Sprintf(`"%d"`, i)))
	}
	h := newHarness(t, func(n int) (*llm.Response, error) {
		if n == 1 {
			return callTools(calls...)
		}
		return answer("done")
	})

	_, err := h.loop(tools.NewRegistry(slow), WithToolParallelism(k)).Run(context.Background(), "go", nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(k))

	second := h.provider.requests[1]
	require.Len(t, second, 8)
	for i := 0; i < 6; i++ {
		assert.Equal(t, fmt.Sprintf("c%d", i), second[2+i].Result.CallID)
		assert.Equal(t, fmt.Sprintf(`"%d"`, i), second[2+i].Content)
	}
}

func TestExecuteToolsSerializesSharedTags(t *testing.T) {
	var (
		mu      sync.Mutex
		order   []string
		running atomic.Int32
		overlap atomic.Bool
	)
	tagged := &funcTool{name: "write", tag: "memory:today", fn: func(_ context.Context, args json.RawMessage) (string, error) {
		if running.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		order = append(order, string(args))
		mu.Unlock()
		running.Add(-1)
		return "ok", nil
	}}
	free := &funcTool{name: "read", fn: func(context.Context, json.RawMessage) (string, error) {
		return "ok", nil
	}}

	h := newHarness(t, func(n int) (*llm.Response, error) {
		if n == 1 {
			return callTools(
				call("w1", "write", `"1"`),
				call("r1", "read", `{}`),
				call("w2", "write", `"2"`),
				call("w3", "write", `"3"`),
				call("r2", "read", `{}`),
			)
		}
		return answer("done")
	})

	_, err := h.loop(tools.NewRegistry(tagged, free), WithToolParallelism(4)).Run(context.Background(), "go", nil)
	require.NoError(t, err)
	assert.False(t, overlap.Load())
	assert.Equal(t, []string{`"1"`, `"2"`, `"3"`}, order)
}

func TestChains(t *testing.T) {
	tagged := &funcTool{name: "w", tag: "x"}
	other := &funcTool{name: "v", tag: "y"}
	free := &funcTool{name: "r"}
	l := NewLoop(nil, tools.NewRegistry(tagged, other, free), nil, nil)

	got := l.chains([]types.ToolCall{
		call("0", "w", `{}`),
		call("1", "r", `{}`),
		call("2", "v", `{}`),
		call("3", "w", `{}`),
		call("4", "missing", `{}`),
		call("5", "v", `{}`),
	})
	assert.Equal(t, [][]int{{0, 3}, {1}, {2, 5}, {4}}, got)
}

func TestRunStreamsDeltas(t *testing.T) {
	h := newHarness(t, func(int) (*llm.Response, error) { return answer("Hello!") })

	var got []string
	_, err := h.loop(nil).Run(context.Background(), "hi", func(s string) { got = append(got, s) })
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello!"}, got)

	var content []string
	for _, e := range h.events {
		if e.Type == types.EventTypeMessageContent {
			content = append(content, e.Content)
		}
	}
	assert.Equal(t, []string{"Hello!"}, content)
}

package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/entrhq/mnemo/pkg/agent/prompts"
	"github.com/entrhq/mnemo/pkg/agent/tools"
	"github.com/entrhq/mnemo/pkg/contextbuilder"
	"github.com/entrhq/mnemo/pkg/llm"
	"github.com/entrhq/mnemo/pkg/llm/tokenizer"
	"github.com/entrhq/mnemo/pkg/memory"
	"github.com/entrhq/mnemo/pkg/types"
	"github.com/google/uuid"
)

const (
	DefaultMaxIterations   = 20
	DefaultMaxAttempts     = 3
	DefaultBackoffBase     = 500 * time.Millisecond
	DefaultBackoffMax      = 8 * time.Second
	DefaultToolParallelism = 4
)

// ContextSource assembles the memory block of a turn.
type ContextSource interface {
	Build(ctx context.Context, query string) (*contextbuilder.Context, error)
}

// Scheduler queues a day note for reindexing.
type Scheduler interface {
	Schedule(date string)
}

// Observer receives the events of a turn. It is called from the goroutine
// running the turn.
type Observer func(*types.AgentEvent)

// Loop runs conversation turns. A Loop holds no per-conversation state and
// may run turns of different sessions concurrently; turns of one session
// are serialized by the session coordinator.
type Loop struct {
	provider llm.Provider
	registry *tools.Registry
	store    memory.Store
	source   ContextSource
	reindex  Scheduler
	observer Observer
	counter  tokenizer.Counter

	instructions    string
	maxIterations   int
	maxAttempts     int
	backoffBase     time.Duration
	backoffMax      time.Duration
	toolParallelism int
	maxTokens       int

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithMaxIterations caps the model rounds of a turn.
func WithMaxIterations(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxIterations = n
		}
	}
}

// WithRetry sets how many attempts a model round gets and the backoff
// between them. The delay starts at base and doubles up to max.
func WithRetry(attempts int, base, max time.Duration) LoopOption {
	return func(l *Loop) {
		if attempts > 0 {
			l.maxAttempts = attempts
		}
		if base > 0 {
			l.backoffBase = base
		}
		if max > 0 {
			l.backoffMax = max
		}
	}
}

// WithToolParallelism bounds how many tool calls run at once.
func WithToolParallelism(k int) LoopOption {
	return func(l *Loop) {
		if k > 0 {
			l.toolParallelism = k
		}
	}
}

// WithInstructions adds user-provided instructions to the system prompt.
func WithInstructions(s string) LoopOption {
	return func(l *Loop) {
		l.instructions = s
	}
}

// WithMaxTokens caps each completion.
func WithMaxTokens(n int) LoopOption {
	return func(l *Loop) {
		l.maxTokens = n
	}
}

// WithObserver sets the event observer.
func WithObserver(o Observer) LoopOption {
	return func(l *Loop) {
		l.observer = o
	}
}

// WithReindexer schedules today's note for reindexing after each turn.
func WithReindexer(s Scheduler) LoopOption {
	return func(l *Loop) {
		l.reindex = s
	}
}

// WithCounter sets the tokenizer used to size requests.
func WithCounter(c tokenizer.Counter) LoopOption {
	return func(l *Loop) {
		if c != nil {
			l.counter = c
		}
	}
}

// WithSleep replaces the backoff wait, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) LoopOption {
	return func(l *Loop) {
		l.sleep = sleep
	}
}

// NewLoop creates a Loop.
func NewLoop(provider llm.Provider, registry *tools.Registry, store memory.Store, source ContextSource, opts ...LoopOption) *Loop {
	l := &Loop{
		provider:        provider,
		registry:        registry,
		store:           store,
		source:          source,
		maxIterations:   DefaultMaxIterations,
		maxAttempts:     DefaultMaxAttempts,
		backoffBase:     DefaultBackoffBase,
		backoffMax:      DefaultBackoffMax,
		toolParallelism: DefaultToolParallelism,
		counter:         tokenizer.Heuristic{},
		sleep:           sleepContext,
		now:             time.Now,
	}
	if l.registry == nil {
		l.registry = tools.NewRegistry()
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Result describes a finished turn.
type Result struct {
	TurnID     string
	State      State
	Answer     string
	Iterations int
	ToolCalls  int
	Usage      llm.Usage
}

// turn is the mutable state of one Run.
type turn struct {
	id        string
	onDelta   llm.StreamHandler
	system    string
	history   []*types.Message
	result    *Result
	lastState State
}

// Run executes one turn for message. On success the exchange is appended
// to today's note. On failure the returned Result tells how far the turn
// got and the error is one of *ProviderError, ErrToolLoopExceeded, a
// *memory.StorageError or the context error.
func (l *Loop) Run(ctx context.Context, message string, onDelta llm.StreamHandler) (*Result, error) {
	t := &turn{
		id:      uuid.NewString(),
		onDelta: onDelta,
		history: []*types.Message{types.NewUserMessage(message)},
	}
	t.result = &Result{TurnID: t.id}

	l.emit(t, types.NewTurnStartEvent(t.id))
	l.emit(t, types.NewUpdateBusyEvent(true))
	defer func() {
		l.emit(t, types.NewUpdateBusyEvent(false))
		l.emit(t, types.NewTurnEndEvent(t.id))
	}()

	err := l.run(ctx, t, message)
	if err != nil {
		l.setState(t, StateFailed)
		l.emit(t, types.NewErrorEvent(err))
		agentLog.Errorf("turn %s failed after %d iterations: %v", t.id, t.result.Iterations, err)
		return t.result, err
	}
	l.setState(t, StateDone)
	return t.result, nil
}

func (l *Loop) run(ctx context.Context, t *turn, message string) error {
	mc, err := l.source.Build(ctx, message)
	if err != nil {
		return err
	}
	l.emit(t, types.NewContextBuiltEvent(len(mc.Retrieved), mc.Tokens))

	t.system = prompts.NewPromptBuilder().
		WithCustomInstructions(l.instructions).
		WithMemoryContext(mc.Text).
		WithTime(l.now()).
		Build()

	for {
		l.setState(t, StateAwaitingModel)
		if t.result.Iterations >= l.maxIterations {
			return fmt.Errorf("%w (%d)", ErrToolLoopExceeded, l.maxIterations)
		}
		t.result.Iterations++

		resp, err := l.callModel(ctx, t)
		if err != nil {
			return err
		}

		if !resp.HasToolCalls() {
			t.result.Answer = resp.Content
			return l.recordTurn(ctx, t, message)
		}

		t.history = append(t.history, types.NewAssistantMessage(resp.Content, resp.ToolCalls...))
		l.setState(t, StateExecutingTools)
		if err := ctx.Err(); err != nil {
			return err
		}

		results, err := l.executeTools(ctx, t, resp.ToolCalls)
		for _, r := range results {
			t.history = append(t.history, types.NewToolMessage(r))
		}
		t.result.ToolCalls += len(results)
		if err != nil {
			return err
		}
	}
}

// recordTurn appends the finished exchange to today's note. The write is
// not abandoned when the caller cancels after the answer was produced.
func (l *Loop) recordTurn(ctx context.Context, t *turn, message string) error {
	entry := fmt.Sprintf("User: %s\nAssistant: %s", message, t.result.Answer)
	if err := l.store.AppendToday(context.WithoutCancel(ctx), entry); err != nil {
		return err
	}
	date := l.store.Today()
	l.emit(t, types.NewMemoryWriteEvent(date))
	if l.reindex != nil {
		l.reindex.Schedule(date)
	}
	return nil
}

func (l *Loop) setState(t *turn, s State) {
	if t.lastState == s {
		return
	}
	t.lastState = s
	t.result.State = s
	l.emit(t, types.NewStateChangeEvent(string(s)))
}

func (l *Loop) emit(t *turn, event *types.AgentEvent) {
	if l.observer == nil {
		return
	}
	l.observer(event.WithTurnID(t.id))
}

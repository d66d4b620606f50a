// Package cli provides the terminal channel: a line-oriented REPL that sends
// each line to the session coordinator and renders the turn as it runs.
//
// Example usage:
//
//	exec := cli.NewExecutor(coordinator, cli.WithShowTools(true))
//	loop := agent.NewLoop(provider, registry, store, builder,
//	    agent.WithObserver(exec.Observe))
//	if err := exec.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/entrhq/mnemo/pkg/agent"
	"github.com/entrhq/mnemo/pkg/session"
	"github.com/entrhq/mnemo/pkg/types"
	"github.com/google/uuid"
)

// maxResultPreview caps how much of a tool result is echoed.
const maxResultPreview = 200

// Handler runs one message to completion.
type Handler interface {
	Handle(ctx context.Context, in *types.Input, opts ...session.SubmitOption) (*agent.Result, error)
}

// Executor is a CLI-based executor that enables turn-by-turn conversation
// with the agent through terminal input/output.
type Executor struct {
	handler   Handler
	sessionID string
	reader    *bufio.Reader
	writer    io.Writer

	// Display options
	showTools bool

	mu                  sync.Mutex
	messageStartPrinted bool
}

// ExecutorOption is a function that configures an Executor.
type ExecutorOption func(*Executor)

// WithShowTools enables/disables displaying tool calls and results.
func WithShowTools(show bool) ExecutorOption {
	return func(e *Executor) {
		e.showTools = show
	}
}

// WithWriter sets a custom output writer (default is os.Stdout).
func WithWriter(w io.Writer) ExecutorOption {
	return func(e *Executor) {
		e.writer = w
	}
}

// WithReader sets a custom input reader (default is os.Stdin).
func WithReader(r io.Reader) ExecutorOption {
	return func(e *Executor) {
		e.reader = bufio.NewReader(r)
	}
}

// WithSessionID pins the session the executor talks in. By default every
// executor starts a new session.
func WithSessionID(id string) ExecutorOption {
	return func(e *Executor) {
		if id != "" {
			e.sessionID = id
		}
	}
}

// NewExecutor creates a new CLI executor on top of handler.
func NewExecutor(handler Handler, opts ...ExecutorOption) *Executor {
	e := &Executor{
		handler:   handler,
		sessionID: uuid.NewString(),
		reader:    bufio.NewReader(os.Stdin),
		writer:    os.Stdout,
		showTools: true,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// SessionID returns the session the executor talks in.
func (e *Executor) SessionID() string {
	return e.sessionID
}

// Run starts the conversation loop. It returns when the user exits, input
// ends or ctx is cancelled.
func (e *Executor) Run(ctx context.Context) error {
	e.println(headerStyle.Render("mnemo"))
	e.println(tipsStyle.Render("Type your message and press Enter. Type 'exit' or 'quit' to end the conversation."))
	e.println("")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		e.print(promptStyle.Render("> "))
		input, err := e.reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read input: %w", err)
		}
		eof := errors.Is(err, io.EOF)

		input = strings.TrimSpace(input)
		if input == "exit" || input == "quit" {
			return nil
		}
		if input != "" {
			e.turn(ctx, input)
		}
		if eof {
			e.println("")
			return nil
		}
	}
}

func (e *Executor) turn(ctx context.Context, input string) {
	e.mu.Lock()
	e.messageStartPrinted = false
	e.mu.Unlock()

	in := types.NewUserInput(e.sessionID, input).WithChannel("cli")
	res, err := e.handler.Handle(ctx, in, session.WithDeltaHandler(e.handleMessageContent))
	if err != nil {
		e.handleError(err)
		return
	}

	e.mu.Lock()
	printed := e.messageStartPrinted
	e.mu.Unlock()
	if !printed && res != nil && res.Answer != "" {
		e.handleMessageContent(res.Answer)
	}
	e.println("")
}

// Observe renders agent events. Pass it to agent.WithObserver.
func (e *Executor) Observe(event *types.AgentEvent) {
	switch event.Type {
	case types.EventTypeToolCall:
		if e.showTools {
			e.println(toolStyle.Render(fmt.Sprintf("\n🔧 Tool: %s %s", event.ToolName, string(event.ToolInput))))
		}
	case types.EventTypeToolResult:
		if e.showTools {
			e.println(toolResultStyle.Render("✅ Result: " + preview(event.ToolOutput)))
		}
	case types.EventTypeToolResultError:
		if e.showTools {
			e.println(errorStyle.Render(fmt.Sprintf("❌ Tool Error (%s): %v", event.ToolName, event.Error)))
		}
	case types.EventTypeAPIRetry:
		if event.Retry != nil {
			e.println(tipsStyle.Render(fmt.Sprintf("\nmodel call failed (attempt %d/%d), retrying in %s",
				event.Retry.Attempt, event.Retry.MaxAttempts, event.Retry.Delay)))
		}
	}
}

func (e *Executor) handleMessageContent(content string) {
	e.mu.Lock()
	first := content != "" && !e.messageStartPrinted
	if first {
		e.messageStartPrinted = true
	}
	e.mu.Unlock()

	if first {
		e.println(headerStyle.Render("Assistant:"))
	}
	e.print(assistantStyle.Render(content))
}

func (e *Executor) handleError(err error) {
	var (
		bp *session.BackpressureError
		pe *agent.ProviderError
	)
	msg := err.Error()
	switch {
	case errors.As(err, &bp):
		msg = "still working on earlier messages, try again in a moment"
	case errors.As(err, &pe):
		msg = fmt.Sprintf("the model is unavailable (%d attempts): %v", pe.Attempts, pe.Err)
	case errors.Is(err, agent.ErrToolLoopExceeded):
		msg = "gave up: too many tool calls in one turn"
	case errors.Is(err, context.Canceled):
		msg = "cancelled"
	}
	e.println(errorStyle.Render("\n❌ Error: " + msg))
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxResultPreview {
		return s[:maxResultPreview] + "…"
	}
	return s
}

func (e *Executor) print(s string) {
	fmt.Fprint(e.writer, s)
}

func (e *Executor) println(s string) {
	fmt.Fprintln(e.writer, s)
}

// Package agent drives one conversation turn: it alternates model calls
// with tool execution until the model answers, under an iteration cap and
// a bounded retry policy.
//
// A turn moves through these states:
//
//	AwaitingModel -> ExecutingTools -> AwaitingModel -> ... -> Done | Failed
//
// Cancellation is only honored before a model call (including backoff
// waits) and before a batch of tool calls is dispatched. Tool calls
// already running are never abandoned.
package agent

import (
	"errors"
	"fmt"

	"github.com/entrhq/mnemo/pkg/logging"
)

var agentLog *logging.Logger

func init() {
	var err error
	agentLog, err = logging.NewLogger("agent")
	if err != nil {
		agentLog.Warnf("Failed to initialize agent logger, using stderr fallback: %v", err)
	}
}

// State is the state of a turn.
type State string

const (
	StateAwaitingModel  State = "awaiting_model"
	StateExecutingTools State = "executing_tools"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// ErrToolLoopExceeded fails a turn whose model kept requesting tools past
// the iteration cap.
var ErrToolLoopExceeded = errors.New("agent: tool loop exceeded maximum iterations")

// ErrUnknownTool is reported to the model when it calls a tool that is not
// registered.
var ErrUnknownTool = errors.New("unknown tool")

// ProviderError fails a turn whose model call could not be completed.
type ProviderError struct {
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("agent: model call failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ToolExecutionError is a failed tool call. It is fed back to the model
// and does not end the turn.
type ToolExecutionError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s (%s): %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error {
	return e.Err
}

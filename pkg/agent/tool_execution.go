package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/entrhq/mnemo/pkg/agent/prompts"
	"github.com/entrhq/mnemo/pkg/agent/tools"
	"github.com/entrhq/mnemo/pkg/memory"
	"github.com/entrhq/mnemo/pkg/types"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// callOutcome is the result of one dispatched tool call.
type callOutcome struct {
	result types.ToolResult
	err    error
}

// executeTools runs a batch of tool calls requested in one model round and
// returns their results in request order. At most toolParallelism calls run
// at once. Calls whose tools share a resource tag run one after another in
// request order; untagged calls are independent.
//
// Once dispatched, calls run to completion even if ctx is cancelled. Tool
// failures become error results for the model. The returned error is set
// only when a tool hit a memory storage fault, which fails the turn.
func (l *Loop) executeTools(ctx context.Context, t *turn, calls []types.ToolCall) ([]types.ToolResult, error) {
	for _, call := range calls {
		l.emit(t, types.NewToolCallEvent(call))
	}

	outcomes := make([]callOutcome, len(calls))
	runCtx := context.WithoutCancel(ctx)
	sem := semaphore.NewWeighted(int64(l.toolParallelism))

	var g errgroup.Group
	for _, chain := range l.chains(calls) {
		g.Go(func() error {
			for _, i := range chain {
				// Acquire cannot fail on a context that is never cancelled.
				_ = sem.Acquire(runCtx, 1)
				outcomes[i] = l.executeTool(runCtx, calls[i])
				sem.Release(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	results := make([]types.ToolResult, len(calls))
	var storageErr error
	for i, o := range outcomes {
		results[i] = o.result
		if o.err != nil {
			l.emit(t, types.NewToolResultErrorEvent(o.result, o.err))
			if storageErr == nil && memory.IsStorageError(o.err) {
				storageErr = o.err
			}
			continue
		}
		l.emit(t, types.NewToolResultEvent(o.result))
	}
	return results, storageErr
}

// chains groups call indexes into serial chains: one chain per resource tag
// plus one single-call chain per untagged call. Order within a chain follows
// the request order.
func (l *Loop) chains(calls []types.ToolCall) [][]int {
	var (
		out   [][]int
		byTag = make(map[string]int)
	)
	for i, call := range calls {
		tag := ""
		if tool, ok := l.registry.Get(call.Name); ok {
			tag = tools.TagOf(tool, call.Arguments)
		}
		if tag == "" {
			out = append(out, []int{i})
			continue
		}
		if pos, ok := byTag[tag]; ok {
			out[pos] = append(out[pos], i)
			continue
		}
		byTag[tag] = len(out)
		out = append(out, []int{i})
	}
	return out
}

func (l *Loop) executeTool(ctx context.Context, call types.ToolCall) (out callOutcome) {
	out.result = types.ToolResult{CallID: call.ID, Name: call.Name}

	tool, ok := l.registry.Get(call.Name)
	if !ok {
		out.err = &ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: ErrUnknownTool}
		out.result.IsError = true
		out.result.Content = prompts.BuildErrorRecoveryMessage(prompts.ErrorRecoveryContext{
			Type:           prompts.ErrorTypeUnknownTool,
			ToolName:       call.Name,
			AvailableTools: l.registry.Names(),
		})
		return out
	}

	defer func() {
		if r := recover(); r != nil {
			out.err = &ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: fmt.Errorf("panic: %v", r)}
			out.result.IsError = true
			out.result.Content = recoveryMessage(call.Name, out.err)
		}
	}()

	content, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		agentLog.Warnf("tool %s (%s) failed: %v", call.Name, call.ID, err)
		out.err = &ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: err}
		out.result.IsError = true
		out.result.Content = recoveryMessage(call.Name, err)
		return out
	}
	out.result.Content = content
	return out
}

func recoveryMessage(name string, err error) string {
	var te *ToolExecutionError
	if errors.As(err, &te) {
		err = te.Err
	}
	return prompts.BuildErrorRecoveryMessage(prompts.ErrorRecoveryContext{
		Type:     prompts.ErrorTypeToolExecution,
		ToolName: name,
		Error:    err,
	})
}

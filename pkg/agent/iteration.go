package agent

import (
	"context"
	"time"

	"github.com/entrhq/mnemo/pkg/llm"
	"github.com/entrhq/mnemo/pkg/llm/tokenizer"
	"github.com/entrhq/mnemo/pkg/types"
)

// callModel runs one model round. Transient failures are retried up to
// maxAttempts with exponential backoff; the context is checked before every
// attempt and during every wait.
func (l *Loop) callModel(ctx context.Context, t *turn) (*llm.Response, error) {
	req := &llm.Request{
		System:    t.system,
		Messages:  t.history,
		Tools:     l.registry.Specs(),
		MaxTokens: l.maxTokens,
		OnDelta: func(text string) {
			l.emit(t, types.NewMessageContentEvent(text))
			if t.onDelta != nil {
				t.onDelta(text)
			}
		},
	}

	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		l.emit(t, types.NewAPICallStartEvent(t.result.Iterations, l.requestTokens(t)))
		resp, err := l.provider.Send(ctx, req)
		l.emit(t, types.NewAPICallEndEvent(t.result.Iterations))
		if err == nil {
			l.emit(t, types.NewMessageEndEvent())
			l.recordUsage(t, resp.Usage)
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if !llm.IsRetryable(err) {
			return nil, &ProviderError{Attempts: attempt, Err: err}
		}
		if attempt == l.maxAttempts {
			break
		}

		delay := l.backoff(attempt)
		agentLog.Warnf("model call attempt %d/%d failed, retrying in %s: %v", attempt, l.maxAttempts, delay, err)
		l.emit(t, types.NewAPIRetryEvent(attempt, l.maxAttempts, delay, err))
		if err := l.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, &ProviderError{Attempts: l.maxAttempts, Err: lastErr}
}

// backoff returns the wait after the given failed attempt: base, 2*base,
// 4*base and so on, capped at backoffMax.
func (l *Loop) backoff(attempt int) time.Duration {
	d := l.backoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= l.backoffMax {
			return l.backoffMax
		}
	}
	if d > l.backoffMax {
		return l.backoffMax
	}
	return d
}

func (l *Loop) requestTokens(t *turn) int {
	return l.counter.CountTokens(t.system) + tokenizer.CountMessages(l.counter, t.history)
}

func (l *Loop) recordUsage(t *turn, u llm.Usage) {
	t.result.Usage.PromptTokens += u.PromptTokens
	t.result.Usage.CompletionTokens += u.CompletionTokens
	if u.PromptTokens > 0 || u.CompletionTokens > 0 {
		l.emit(t, types.NewTokenUsageEvent(u.PromptTokens, u.CompletionTokens, u.PromptTokens+u.CompletionTokens))
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

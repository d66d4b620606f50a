// Package session serializes agent turns per conversation.
//
// Each session owns a FIFO of pending messages and at most one running
// turn. Messages of one session are processed strictly in submission order;
// different sessions run concurrently.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/entrhq/mnemo/pkg/agent"
	"github.com/entrhq/mnemo/pkg/llm"
	"github.com/entrhq/mnemo/pkg/logging"
	"github.com/entrhq/mnemo/pkg/types"
)

var sessionLog *logging.Logger

func init() {
	var err error
	sessionLog, err = logging.NewLogger("session")
	if err != nil {
		sessionLog.Warnf("Failed to initialize session logger, using stderr fallback: %v", err)
	}
}

// DefaultMaxQueueDepth is the number of pending messages a session may hold
// behind its running turn.
const DefaultMaxQueueDepth = 8

// ErrClosed is returned for messages submitted to a closed session or a
// coordinator that is shutting down.
var ErrClosed = errors.New("session: closed")

// BackpressureError rejects a message whose session queue is full. The
// message was not accepted.
type BackpressureError struct {
	SessionID string
	Depth     int
}

func (e *BackpressureError) Error() string {
	return fmt.Sprintf("session %s: queue full (%d pending)", e.SessionID, e.Depth)
}

// Runner runs one agent turn.
type Runner interface {
	Run(ctx context.Context, message string, onDelta llm.StreamHandler) (*agent.Result, error)
}

// Outcome is the result of a processed message.
type Outcome struct {
	Result *agent.Result
	Err    error
}

// Ticket tracks a submitted message.
type Ticket struct {
	SessionID string
	done      chan struct{}
	outcome   Outcome
	once      sync.Once
}

// Done is closed once the message has been processed.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Outcome returns the result of the message. It is only valid after Done
// is closed.
func (t *Ticket) Outcome() Outcome {
	return t.outcome
}

// Wait blocks until the message has been processed or ctx is done.
func (t *Ticket) Wait(ctx context.Context) (*agent.Result, error) {
	select {
	case <-t.done:
		return t.outcome.Result, t.outcome.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *Ticket) finish(o Outcome) {
	t.once.Do(func() {
		t.outcome = o
		close(t.done)
	})
}

// SubmitOption configures one submitted message.
type SubmitOption func(*job)

// WithDeltaHandler streams the reply text of the turn to fn.
func WithDeltaHandler(fn llm.StreamHandler) SubmitOption {
	return func(j *job) {
		j.onDelta = fn
	}
}

type job struct {
	ctx     context.Context
	input   *types.Input
	onDelta llm.StreamHandler
	ticket  *Ticket
}

// state is the per-conversation state: a running flag, the pending FIFO and
// the cancel function of the running turn.
type state struct {
	id      string
	active  bool
	closed  bool
	pending []*job
	cancel  context.CancelFunc
	idle    chan struct{}
}

// Coordinator admits messages and runs them one at a time per session.
type Coordinator struct {
	runner   Runner
	maxDepth int

	mu       sync.Mutex
	sessions map[string]*state
	closing  bool
	wg       sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxQueueDepth bounds the pending messages per session.
func WithMaxQueueDepth(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.maxDepth = n
		}
	}
}

// NewCoordinator creates a Coordinator running turns with runner.
func NewCoordinator(runner Runner, opts ...Option) *Coordinator {
	c := &Coordinator{
		runner:   runner,
		maxDepth: DefaultMaxQueueDepth,
		sessions: make(map[string]*state),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit admits a message for its session. An idle session starts a worker
// at once; a busy one queues the message behind the running turn. When the
// queue already holds the maximum number of pending messages Submit fails
// with *BackpressureError.
//
// A cancel input cancels the running turn of its session and returns a nil
// ticket. Queued messages are kept.
//
// ctx governs the turn: cancelling it stops the turn at its next
// suspension point, or drops the message if it is still queued.
func (c *Coordinator) Submit(ctx context.Context, in *types.Input, opts ...SubmitOption) (*Ticket, error) {
	if in == nil || in.SessionID == "" {
		return nil, errors.New("session: input without session id")
	}
	if in.IsCancel() {
		c.Cancel(in.SessionID)
		return nil, nil
	}

	j := &job{
		ctx:    ctx,
		input:  in,
		ticket: &Ticket{SessionID: in.SessionID, done: make(chan struct{})},
	}
	for _, opt := range opts {
		opt(j)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return nil, ErrClosed
	}
	s, ok := c.sessions[in.SessionID]
	if !ok {
		s = &state{id: in.SessionID}
		c.sessions[in.SessionID] = s
	}
	if s.closed {
		return nil, ErrClosed
	}

	if !s.active {
		s.active = true
		s.idle = make(chan struct{})
		c.wg.Add(1)
		go c.work(s, j)
		return j.ticket, nil
	}
	if len(s.pending) >= c.maxDepth {
		return nil, &BackpressureError{SessionID: s.id, Depth: len(s.pending)}
	}
	s.pending = append(s.pending, j)
	return j.ticket, nil
}

// Handle submits a message and waits for its outcome.
func (c *Coordinator) Handle(ctx context.Context, in *types.Input, opts ...SubmitOption) (*agent.Result, error) {
	t, err := c.Submit(ctx, in, opts...)
	if err != nil || t == nil {
		return nil, err
	}
	return t.Wait(ctx)
}

// Cancel cancels the running turn of a session, if any.
func (c *Coordinator) Cancel(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[sessionID]; ok && s.cancel != nil {
		s.cancel()
	}
}

// Pending returns the number of queued messages of a session, not counting
// the running turn.
func (c *Coordinator) Pending(sessionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[sessionID]; ok {
		return len(s.pending)
	}
	return 0
}

// Close stops admitting messages for a session, waits for its running and
// queued messages to finish and drops its state. Closing an unknown session
// is a no-op.
func (c *Coordinator) Close(ctx context.Context, sessionID string) error {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	s.closed = true
	idle := s.idle
	active := s.active
	c.mu.Unlock()

	if active {
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.mu.Lock()
	if c.sessions[sessionID] == s {
		delete(c.sessions, sessionID)
	}
	c.mu.Unlock()
	return nil
}

// Shutdown stops admitting messages and waits for all workers to drain.
// If ctx ends first, running turns are cancelled, queued messages fail with
// ErrClosed and ctx's error is returned once the workers exit.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
	}

	c.mu.Lock()
	for _, s := range c.sessions {
		dropped := s.pending
		s.pending = nil
		for _, j := range dropped {
			j.ticket.finish(Outcome{Err: ErrClosed})
		}
		if s.cancel != nil {
			s.cancel()
		}
	}
	c.mu.Unlock()
	<-drained
	return ctx.Err()
}

// work processes j and then the session queue until it is empty.
func (c *Coordinator) work(s *state, j *job) {
	defer c.wg.Done()
	for j != nil {
		c.process(s, j)

		c.mu.Lock()
		if len(s.pending) == 0 {
			s.active = false
			close(s.idle)
			c.mu.Unlock()
			return
		}
		j = s.pending[0]
		s.pending = s.pending[1:]
		c.mu.Unlock()
	}
}

func (c *Coordinator) process(s *state, j *job) {
	if err := j.ctx.Err(); err != nil {
		j.ticket.finish(Outcome{Err: err})
		return
	}

	ctx, cancel := context.WithCancel(j.ctx)
	c.mu.Lock()
	s.cancel = cancel
	c.mu.Unlock()

	res, err := c.runner.Run(ctx, j.input.Content, j.onDelta)

	c.mu.Lock()
	s.cancel = nil
	c.mu.Unlock()
	cancel()

	if err != nil {
		sessionLog.Warnf("session %s: turn failed: %v", s.id, err)
	}
	j.ticket.finish(Outcome{Result: res, Err: err})
}

// Package mcpserver exposes the memory tools, and optionally whole agent
// turns, over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/mnemo/pkg/agent"
	"github.com/entrhq/mnemo/pkg/agent/tools"
	"github.com/entrhq/mnemo/pkg/logging"
	"github.com/entrhq/mnemo/pkg/session"
	"github.com/entrhq/mnemo/pkg/types"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

var mcpLog *logging.Logger

func init() {
	var err error
	mcpLog, err = logging.NewLogger("mcp")
	if err != nil {
		mcpLog.Warnf("Failed to initialize mcp logger, using stderr fallback: %v", err)
	}
}

// Version is reported to MCP clients.
var Version = "dev"

// ChatToolName is the tool that runs a full agent turn.
const ChatToolName = "mnemo_chat"

// DefaultSessionID is used for chat calls that name no session.
const DefaultSessionID = "mcp"

// Chatter runs one message to completion.
type Chatter interface {
	Handle(ctx context.Context, in *types.Input, opts ...session.SubmitOption) (*agent.Result, error)
}

// Server wraps an MCP server publishing a tool registry.
type Server struct {
	mcp      *server.MCPServer
	registry *tools.Registry
	chat     Chatter
}

// Option configures a Server.
type Option func(*Server)

// WithChat publishes the mnemo_chat tool, which hands its message to chat.
func WithChat(chat Chatter) Option {
	return func(s *Server) {
		s.chat = chat
	}
}

// New creates a Server publishing every tool of registry.
func New(registry *tools.Registry, opts ...Option) (*Server, error) {
	s := &Server{registry: registry}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = server.NewMCPServer(
		"mnemo",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("mnemo keeps a daily journal and a long-term fact sheet. "+
			"Search or read past notes before answering questions about earlier conversations."),
	)

	for _, t := range registry.List() {
		schema, err := json.Marshal(t.Schema())
		if err != nil {
			return nil, fmt.Errorf("mcpserver: encode schema of %s: %w", t.Name(), err)
		}
		s.mcp.AddTool(mcp.NewToolWithRawSchema(t.Name(), t.Description(), schema), s.toolHandler(t))
	}

	if s.chat != nil {
		s.mcp.AddTool(mcp.NewTool(ChatToolName,
			mcp.WithDescription("Send a message to the mnemo agent and return its answer. The exchange is recorded in today's note."),
			mcp.WithString("message", mcp.Required(), mcp.Description("The message for the agent")),
			mcp.WithString("session_id", mcp.Description("Conversation to continue; messages of one session are answered in order")),
		), s.chatHandler)
	}
	return s, nil
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// ServeStdio serves MCP over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	mcpLog.Infof("serving %d tools over stdio", len(s.registry.List()))
	return server.ServeStdio(s.mcp)
}

func (s *Server) toolHandler(t tools.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.Params.Arguments)
		if err != nil || string(args) == "null" {
			args = []byte("{}")
		}
		out, err := t.Execute(ctx, args)
		if err != nil {
			mcpLog.Warnf("tool %s failed: %v", t.Name(), err)
			return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", t.Name(), err)), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

func (s *Server) chatHandler(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("Invalid arguments"), nil
	}
	message, _ := args["message"].(string)
	if message = strings.TrimSpace(message); message == "" {
		return mcp.NewToolResultError("Message cannot be empty"), nil
	}
	sessionID, _ := args["session_id"].(string)
	if sessionID = strings.TrimSpace(sessionID); sessionID == "" {
		sessionID = DefaultSessionID
	}

	res, err := s.chat.Handle(ctx, types.NewUserInput(sessionID, message).WithChannel("mcp"))
	if err != nil {
		var bp *session.BackpressureError
		if errors.As(err, &bp) {
			return mcp.NewToolResultError(fmt.Sprintf("Session %s is busy, retry later", sessionID)), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("Turn failed: %v", err)), nil
	}
	return mcp.NewToolResultText(res.Answer), nil
}

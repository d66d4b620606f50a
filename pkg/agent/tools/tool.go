// Package tools defines the tool capability the agent loop dispatches to
// and the memory tools shipped with mnemo.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidArguments marks arguments the model produced that a tool
// cannot use.
var ErrInvalidArguments = errors.New("invalid arguments")

// Tool represents a capability that the model can invoke during a turn.
// Tools are offered to the model through their JSON schema and invoked
// with the JSON arguments the model produced.
type Tool interface {
	// Name returns the unique identifier for this tool (e.g., "memory_search")
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Schema returns the JSON schema for this tool's input parameters
	// The schema should be a valid JSON Schema object defining the structure
	// of the arguments that this tool accepts
	Schema() map[string]interface{}

	// Execute runs the tool with the given JSON arguments and returns a
	// result string. Errors are reported back to the model; they do not
	// end the turn.
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// ResourceTagger is an optional interface for tools that touch a shared
// resource. Calls returning the same non-empty tag run one at a time, in
// the order the model requested them.
type ResourceTagger interface {
	ResourceTag(args json.RawMessage) string
}

// TagOf returns the resource tag of a call, or "" for tools without one.
func TagOf(t Tool, args json.RawMessage) string {
	if rt, ok := t.(ResourceTagger); ok {
		return rt.ResourceTag(args)
	}
	return ""
}

// BaseToolSchema creates a common JSON schema structure for a tool
// with the given properties and required fields
func BaseToolSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// decodeArgs unmarshals tool arguments. Empty arguments decode to the zero
// value.
func decodeArgs(name string, raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w for %s: %v", ErrInvalidArguments, name, err)
	}
	return nil
}

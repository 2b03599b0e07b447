// Package tools implements the name→tool registry and dispatcher, the
// per-message context-injection capability hooks, and the built-in tools
// (message, think, the gateway proxy and its approval-poll companion).
package tools

import "context"

// ToolResult is what Execute returns. ForLLM is the text shown to the
// model; Silent suppresses the result from any side-channel display to the
// user since the tool already delivered a response directly (e.g. message).
type ToolResult struct {
	ForLLM  string
	ForUser string
	IsError bool
	Silent  bool
	Err     error
}

// ErrorResult builds a failure result from a message.
func ErrorResult(msg string) *ToolResult {
	return &ToolResult{ForLLM: "Error: " + msg, IsError: true}
}

// TextResult builds a plain success result shown to the model.
func TextResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM}
}

// SilentResult builds a success result whose text is not echoed to the user.
func SilentResult(forLLM string) *ToolResult {
	return &ToolResult{ForLLM: forLLM, Silent: true}
}

// Tool is the dispatcher's unit of work: a unique name, a description and
// JSON-schema parameters advertised to the model, and an executor.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *ToolResult
}

// ContextualTool is implemented by tools that need the routing context
// (originating channel + chat) threaded into them before each turn, without
// widening Execute's signature.
type ContextualTool interface {
	SetContext(channel, chatID string)
}

// MetadataAwareTool is implemented by tools that need the inbound message's
// opaque metadata (approval tokens, thread IDs) threaded in before each turn.
type MetadataAwareTool interface {
	SetMetadata(metadata map[string]string)
}

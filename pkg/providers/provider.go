// Package providers abstracts over LLM backends behind a single chat
// contract, so the turn engine never branches on which model API it's
// calling.
package providers

import "context"

// Message is one entry in the array sent to an LLM call. Role is one of
// user, assistant, tool, system. ToolCallID is set on tool-result messages;
// ToolCalls is set on assistant messages that invoked tools.
type Message struct {
	Role             string        `json:"role"`
	Content          string        `json:"content"`
	ReasoningContent string        `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID       string        `json:"tool_call_id,omitempty"`
	ContentParts     []ContentPart `json:"-"`
}

// ContentPart supports multipart user content (text plus inlined images).
type ContentPart struct {
	Type     string `json:"type"` // "text" or "image"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"` // data: URI
}

// ToolCall is a single invocation the model asked for. Arguments is the
// native decoded form; Function carries the wire encoding (a JSON string)
// used when replaying the call back to the provider as history.
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
	Function  *ToolCallFunction      `json:"function,omitempty"`
}

// ToolCallFunction is the {name, arguments (JSON string)} shape most
// provider wire formats use for tool_calls[i].function.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition is one entry of the array advertised to the model.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function ToolFunctionSchema `json:"function"`
}

// ToolFunctionSchema is {name, description, parameters (JSON schema)}.
type ToolFunctionSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// UsageInfo accumulates token counts for one LLM call.
type UsageInfo struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLMResponse is the normalized shape every provider adapter returns.
type LLMResponse struct {
	Content          string
	ReasoningContent string
	ToolCalls        []ToolCall
	FinishReason     string
	Usage            *UsageInfo
}

// HasToolCalls reports whether the response carries any tool invocations.
func (r *LLMResponse) HasToolCalls() bool {
	return r != nil && len(r.ToolCalls) > 0
}

// LLMProvider is the contract the turn engine calls against. options may
// carry max_tokens (int) and temperature (float64) overrides.
type LLMProvider interface {
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error)
	GetDefaultModel() string
}

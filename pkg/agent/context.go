package agent

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/nanobot-run/nanobot/pkg/logger"
	"github.com/nanobot-run/nanobot/pkg/providers"
	"github.com/nanobot-run/nanobot/pkg/session"
	"github.com/nanobot-run/nanobot/pkg/tools"
)

// bootstrapFiles is the fixed, canonical set of workspace files folded into
// the system prompt verbatim, one per "## {filename}" section.
var bootstrapFiles = []string{"AGENTS.md", "SOUL.md", "USER.md", "TOOLS.md", "IDENTITY.md"}

// ContextBuilder assembles the LLM message array for one turn: identity,
// bootstrap files, memory, skills catalogue, retrieved memories, structured
// context summary and session identifiers, joined with "\n\n---\n\n".
type ContextBuilder struct {
	workspace string
	memory    *MemoryStore
	skills    *SkillsLoader
	tools     *tools.Registry
}

// NewContextBuilder creates a context builder rooted at workspace.
func NewContextBuilder(workspace string) *ContextBuilder {
	return &ContextBuilder{
		workspace: workspace,
		memory:    NewMemoryStore(workspace),
		skills:    NewSkillsLoader(workspace),
	}
}

// SetToolsRegistry attaches the tool registry so Available Tools can be
// rendered dynamically from what's actually registered.
func (cb *ContextBuilder) SetToolsRegistry(registry *tools.Registry) {
	cb.tools = registry
}

func (cb *ContextBuilder) getIdentity() string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	workspacePath, _ := filepath.Abs(cb.workspace)
	host := fmt.Sprintf("%s %s, Go %s", runtime.GOOS, runtime.GOARCH, runtime.Version())

	return fmt.Sprintf(`# nanobot

You are nanobot, a helpful AI assistant running across whatever chat channels
are configured for this deployment. You have access to tools for reading and
writing files, running shell commands, sending messages to users, and
recalling prior context from session history and semantic memory.

## Current Time
%s

## Runtime
%s

## Workspace
Your workspace is at: %s
- Memory: %s/memory/MEMORY.md
- Skills: %s/skills/{skill-name}/SKILL.md

IMPORTANT: When responding to direct questions or conversations, reply
directly with your text response. Only use the 'message' tool when you need
to send a message to a specific chat channel. For normal conversation, just
respond with text — do not call the message tool.

CRITICAL: When you need to use a tool, you MUST make an actual function
call — never describe or simulate a tool call in text.

When remembering something, write to %s/memory/MEMORY.md`,
		now, host, workspacePath, workspacePath, workspacePath, workspacePath)
}

func (cb *ContextBuilder) loadBootstrapFiles() string {
	var parts []string
	for _, filename := range bootstrapFiles {
		path := filepath.Join(cb.workspace, filename)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", filename, string(data)))
	}
	return strings.Join(parts, "\n\n")
}

func (cb *ContextBuilder) buildToolsSection() string {
	if cb.tools == nil {
		return ""
	}
	defs := cb.tools.ToolDefinitions()
	if len(defs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("# Available Tools\n\n")
	for _, d := range defs {
		sb.WriteString(fmt.Sprintf("- **%s**: %s\n", d.Function.Name, d.Function.Description))
	}
	return sb.String()
}

// BuildSystemPrompt joins identity, bootstrap files, tools, skills and
// memory context with the "\n\n---\n\n" divider. Retrieved memories,
// structured-context summary and session identifiers are appended after the
// divider separately by BuildMessages, in that order, per the contract.
func (cb *ContextBuilder) BuildSystemPrompt() string {
	var parts []string
	parts = append(parts, cb.getIdentity())

	if bootstrap := cb.loadBootstrapFiles(); bootstrap != "" {
		parts = append(parts, bootstrap)
	}
	if toolsSection := cb.buildToolsSection(); toolsSection != "" {
		parts = append(parts, toolsSection)
	}
	if skillsSummary := cb.skills.BuildSkillsSummary(); skillsSummary != "" {
		parts = append(parts, fmt.Sprintf(`# Skills

The following skills extend your capabilities. To use a skill, read its
SKILL.md file using the read_file tool.

%s`, skillsSummary))
	}
	if memoryContext := cb.memory.GetMemoryContext(); memoryContext != "" {
		parts = append(parts, "# Memory\n\n"+memoryContext)
	}

	return strings.Join(parts, "\n\n---\n\n")
}

// formatContextSummary renders the task list and tool-execution history as a
// markdown block so the model sees factual context without being exposed to
// potentially contaminated assistant prose from older turns.
func formatContextSummary(ctx session.StructuredContext) string {
	var parts []string

	if len(ctx.TaskList) > 0 {
		var lines []string
		for _, t := range ctx.TaskList {
			lines = append(lines, fmt.Sprintf("- [%s] %s", t.Status, t.Task))
		}
		parts = append(parts, "## Current Task List\n"+strings.Join(lines, "\n"))
	}

	if len(ctx.ToolLog) > 0 {
		lines := []string{"These tools were called during previous turns in this conversation:"}
		for _, entry := range ctx.ToolLog {
			lines = append(lines, fmt.Sprintf("- **%s**(%s) -> %s", entry.Tool, entry.ArgsSummary, entry.Outcome))
		}
		parts = append(parts, "## Tool Execution History\n"+strings.Join(lines, "\n"))
	}

	return strings.Join(parts, "\n\n")
}

// BuildMessages assembles the full message array for one LLM call.
//
// history is used verbatim when structuredCtx is nil (raw-history
// fallback); otherwise structuredCtx.RecentPairs supplies the history and
// its task list / tool log are folded into the system prompt.
func (cb *ContextBuilder) BuildMessages(
	history []providers.Message,
	structuredCtx *session.StructuredContext,
	currentMessage string,
	mediaPaths []string,
	channel, chatID string,
	retrievedMemories string,
) []providers.Message {
	systemPrompt := cb.BuildSystemPrompt()

	if retrievedMemories != "" {
		systemPrompt += "\n\n---\n\n" + retrievedMemories
	}
	if structuredCtx != nil {
		if block := formatContextSummary(*structuredCtx); block != "" {
			systemPrompt += "\n\n---\n\n" + block
		}
	}
	if channel != "" && chatID != "" {
		systemPrompt += fmt.Sprintf("\n\n---\n\n## Current Session\nChannel: %s\nChat ID: %s", channel, chatID)
	}

	logger.DebugCF("agent", "system prompt built", map[string]interface{}{
		"total_chars": len(systemPrompt),
	})

	messages := []providers.Message{{Role: "system", Content: systemPrompt}}

	if structuredCtx != nil {
		messages = append(messages, recentPairsToMessages(structuredCtx.RecentPairs)...)
	} else {
		messages = append(messages, history...)
	}

	userMsg := providers.Message{Role: "user", Content: currentMessage}
	if parts := buildMediaParts(mediaPaths, currentMessage); len(parts) > 0 {
		userMsg.ContentParts = parts
	}
	messages = append(messages, userMsg)

	return messages
}

// recentPairsToMessages flattens structured-context pairs (plain
// {role, content} session records) into the provider wire shape. These
// stand in for the raw transcript as the conversation history.
func recentPairsToMessages(pairs []session.Message) []providers.Message {
	out := make([]providers.Message, len(pairs))
	for i, m := range pairs {
		out[i] = providers.Message{Role: m.Role, Content: m.Content}
	}
	return out
}

// buildMediaParts inlines each accepted image path as a base64 data URI
// image part followed by a trailing text part. A path is accepted only if
// it exists, is a regular file, and its guessed MIME type begins with
// "image/".
func buildMediaParts(paths []string, text string) []providers.ContentPart {
	if len(paths) == 0 {
		return nil
	}

	var parts []providers.ContentPart
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if !strings.HasPrefix(mimeType, "image/") {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		dataURI := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
		parts = append(parts, providers.ContentPart{Type: "image", ImageURL: dataURI})
	}
	if len(parts) == 0 {
		return nil
	}
	parts = append(parts, providers.ContentPart{Type: "text", Text: text})
	return parts
}

// AddToolResult appends a tool-result record keyed by tool_call_id.
func (cb *ContextBuilder) AddToolResult(messages []providers.Message, toolCallID, result string) []providers.Message {
	return append(messages, providers.Message{
		Role:       "tool",
		Content:    result,
		ToolCallID: toolCallID,
	})
}

// AddAssistantMessage appends an assistant record, with optional tool calls
// and an optional reasoning_content echo.
func (cb *ContextBuilder) AddAssistantMessage(messages []providers.Message, content, reasoningContent string, toolCalls []providers.ToolCall) []providers.Message {
	return append(messages, providers.Message{
		Role:             "assistant",
		Content:          content,
		ReasoningContent: reasoningContent,
		ToolCalls:        toolCalls,
	})
}

package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nanobot-run/nanobot/pkg/bus"
	"github.com/nanobot-run/nanobot/pkg/config"
	"github.com/nanobot-run/nanobot/pkg/providers"
	"github.com/nanobot-run/nanobot/pkg/session"
	"github.com/nanobot-run/nanobot/pkg/tools"
)

func TestClassifyRouteNonSystemChannel(t *testing.T) {
	route := classifyRoute(bus.InboundMessage{Channel: "telegram", ChatID: "c1"})

	if route.channel != "telegram" || route.chatID != "c1" {
		t.Fatalf("expected passthrough route, got %+v", route)
	}
}

func TestClassifyRouteSystemChannelParsesOrigin(t *testing.T) {
	route := classifyRoute(bus.InboundMessage{Channel: "system", ChatID: "telegram:c1"})

	if route.channel != "telegram" || route.chatID != "c1" {
		t.Fatalf("expected origin channel parsed out, got %+v", route)
	}
}

func TestClassifyRouteSystemChannelFallsBackToCLI(t *testing.T) {
	route := classifyRoute(bus.InboundMessage{Channel: "system", ChatID: "no-colon-here"})

	if route.channel != "cli" || route.chatID != "no-colon-here" {
		t.Fatalf("expected cli fallback, got %+v", route)
	}
}

func TestSessionKeyForMetadataOverride(t *testing.T) {
	msg := bus.InboundMessage{
		Channel: "telegram", SenderID: "u1", ChatID: "c1",
		Metadata: map[string]string{"session_id": "api:default"},
	}
	route := classifyRoute(msg)

	if got := sessionKeyFor(msg, route); got != "api:default" {
		t.Fatalf("expected metadata.session_id to win, got %q", got)
	}
}

func TestSessionKeyForDefaultsToChannelSender(t *testing.T) {
	msg := bus.InboundMessage{Channel: "telegram", SenderID: "u1", ChatID: "c1"}
	route := classifyRoute(msg)

	if got := sessionKeyFor(msg, route); got != "telegram:u1" {
		t.Fatalf("expected 'telegram:u1', got %q", got)
	}
}

func TestSessionKeyForSystemChannelUsesOriginRoute(t *testing.T) {
	msg := bus.InboundMessage{Channel: "system", ChatID: "telegram:c1"}
	route := classifyRoute(msg)

	if got := sessionKeyFor(msg, route); got != "telegram:c1" {
		t.Fatalf("expected session key folded into the origin conversation, got %q", got)
	}
}

func TestNonWhitespaceLen(t *testing.T) {
	cases := map[string]int{
		"":          0,
		"   ":       0,
		"hi":        2,
		" h i ":     2,
		"hello":     5,
		"   hello ": 5,
	}
	for input, want := range cases {
		if got := nonWhitespaceLen(input); got != want {
			t.Errorf("nonWhitespaceLen(%q) = %d, want %d", input, got, want)
		}
	}
}

// scriptedProvider replays a fixed response sequence, recording every
// message array it was handed. Once the script runs out, the last response
// repeats, which is how the bound-exhaustion tests keep the model "stuck".
type scriptedProvider struct {
	responses []*providers.LLMResponse
	err       error
	calls     int
	seen      [][]providers.Message
}

func (p *scriptedProvider) Chat(_ context.Context, messages []providers.Message, _ []providers.ToolDefinition, _ string, _ map[string]interface{}) (*providers.LLMResponse, error) {
	p.seen = append(p.seen, messages)
	if p.err != nil {
		return nil, p.err
	}
	idx := p.calls
	p.calls++
	if idx >= len(p.responses) {
		idx = len(p.responses) - 1
	}
	return p.responses[idx], nil
}

func (p *scriptedProvider) GetDefaultModel() string { return "test-model" }

type stubTool struct {
	name   string
	result *tools.ToolResult
	calls  int
}

func (t *stubTool) Name() string        { return t.name }
func (t *stubTool) Description() string { return "stub tool" }

func (t *stubTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}

func (t *stubTool) Execute(context.Context, map[string]interface{}) *tools.ToolResult {
	t.calls++
	return t.result
}

func newTestLoop(t *testing.T, cfg *config.Config, provider providers.LLMProvider, registry *tools.Registry) (*Loop, *bus.Bus, *session.Manager) {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	if cfg.Agent.Workspace == "" {
		cfg.Agent.Workspace = t.TempDir()
	}
	mgr, err := session.NewManager(filepath.Join(cfg.Agent.Workspace, "sessions"))
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	if registry == nil {
		registry = tools.NewRegistry()
	}
	b := bus.New(16)
	return New(cfg, b, provider, registry, mgr), b, mgr
}

func consumeOutbound(t *testing.T, b *bus.Bus) bus.OutboundMessage {
	t.Helper()
	out, ok := b.ConsumeOutbound(context.Background())
	if !ok {
		t.Fatal("expected an outbound message, got none")
	}
	return out
}

func TestProcessTurnPlainReply(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{{Content: "hi"}}}
	loop, b, mgr := newTestLoop(t, nil, provider, nil)

	loop.processTurn(context.Background(), bus.InboundMessage{
		Channel: "telegram", SenderID: "u1", ChatID: "c1", Content: "hello",
	})

	out := consumeOutbound(t, b)
	if out.Channel != "telegram" || out.ChatID != "c1" || out.Content != "hi" {
		t.Fatalf("unexpected outbound: %+v", out)
	}
	if out.Metadata["is_final"] != "true" {
		t.Fatalf("expected is_final=true, got %q", out.Metadata["is_final"])
	}

	sess := mgr.LoadOrCreate("telegram:u1")
	if len(sess.Messages) != 2 {
		t.Fatalf("expected a user+assistant pair, got %d messages", len(sess.Messages))
	}
	if sess.Messages[0].Role != "user" || sess.Messages[0].Content != "hello" {
		t.Fatalf("unexpected user record: %+v", sess.Messages[0])
	}
	if sess.Messages[1].Role != "assistant" || sess.Messages[1].Content != "hi" {
		t.Fatalf("unexpected assistant record: %+v", sess.Messages[1])
	}
}

func TestProcessTurnSingleToolCall(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		{ToolCalls: []providers.ToolCall{{
			ID: "call-1", Name: "read_file",
			Arguments: map[string]interface{}{"path": "AGENTS.md"},
		}}},
		{Content: "It says: Agents..."},
	}}
	tool := &stubTool{name: "read_file", result: &tools.ToolResult{ForLLM: "# Agents\n..."}}
	registry := tools.NewRegistry()
	registry.Register(tool)

	loop, b, mgr := newTestLoop(t, nil, provider, registry)
	loop.processTurn(context.Background(), bus.InboundMessage{
		Channel: "telegram", SenderID: "u1", ChatID: "c1", Content: "read AGENTS.md",
	})

	out := consumeOutbound(t, b)
	if out.Content != "It says: Agents..." {
		t.Fatalf("unexpected final content: %q", out.Content)
	}
	if tool.calls != 1 {
		t.Fatalf("expected exactly one tool execution, got %d", tool.calls)
	}

	// The second LLM call must see the tool round replayed: an assistant
	// record whose arguments are a JSON string, then the matching tool result.
	if len(provider.seen) != 2 {
		t.Fatalf("expected 2 LLM calls, got %d", len(provider.seen))
	}
	replay := provider.seen[1]
	var assistantIdx = -1
	for i, m := range replay {
		if m.Role == "assistant" && len(m.ToolCalls) > 0 {
			assistantIdx = i
			break
		}
	}
	if assistantIdx == -1 {
		t.Fatal("replayed history has no assistant record with tool calls")
	}
	call := replay[assistantIdx].ToolCalls[0]
	if call.Function == nil || !strings.Contains(call.Function.Arguments, `"path":"AGENTS.md"`) {
		t.Fatalf("expected JSON-string encoded arguments, got %+v", call.Function)
	}
	next := replay[assistantIdx+1]
	if next.Role != "tool" || next.ToolCallID != "call-1" {
		t.Fatalf("expected tool result keyed by call-1 right after assistant, got %+v", next)
	}

	sess := mgr.LoadOrCreate("telegram:u1")
	assistant := sess.Messages[len(sess.Messages)-1]
	if len(assistant.ToolActions) != 1 {
		t.Fatalf("expected one tool_action, got %d", len(assistant.ToolActions))
	}
	action := assistant.ToolActions[0]
	if action.Tool != "read_file" {
		t.Fatalf("unexpected tool_action tool: %q", action.Tool)
	}
	if !strings.Contains(action.ArgsSummary, "AGENTS.md") {
		t.Fatalf("args summary missing path: %q", action.ArgsSummary)
	}
	if !strings.HasPrefix(action.Outcome, "OK: # Agents") {
		t.Fatalf("unexpected outcome summary: %q", action.Outcome)
	}
}

func TestProcessTurnBoundExhaustion(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{
		{
			ToolCalls: []providers.ToolCall{{ID: "c", Name: "noop", Arguments: map[string]interface{}{}}},
			Usage:     &providers.UsageInfo{PromptTokens: 10, CompletionTokens: 5},
		},
	}}
	registry := tools.NewRegistry()
	registry.Register(&stubTool{name: "noop", result: &tools.ToolResult{ForLLM: "done"}})

	cfg := &config.Config{}
	cfg.Agent.MaxToolIterations = 3
	cfg.Debug.ShowTokenUsage = true

	loop, b, _ := newTestLoop(t, cfg, provider, registry)
	loop.processTurn(context.Background(), bus.InboundMessage{
		Channel: "telegram", SenderID: "u1", ChatID: "c1", Content: "loop forever",
	})

	if provider.calls != 3 {
		t.Fatalf("expected exactly max_iterations LLM calls, got %d", provider.calls)
	}

	out := consumeOutbound(t, b)
	if !strings.HasPrefix(out.Content, placeholderResponse) {
		t.Fatalf("expected the placeholder response, got %q", out.Content)
	}
	// Token totals accumulate across all iterations into the debug footer.
	if !strings.Contains(out.Content, "30 in / 15 out") {
		t.Fatalf("expected accumulated token footer, got %q", out.Content)
	}
	if out.Metadata["is_final"] != "true" {
		t.Fatal("bound exhaustion must still produce a final reply")
	}
}

func TestProcessTurnLLMFailureProducesErrorReply(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("model overloaded")}
	loop, b, mgr := newTestLoop(t, nil, provider, nil)

	loop.processTurn(context.Background(), bus.InboundMessage{
		Channel: "discord", SenderID: "u9", ChatID: "c9", Content: "hello",
	})

	out := consumeOutbound(t, b)
	if !strings.HasPrefix(out.Content, "Sorry, I encountered an error:") {
		t.Fatalf("expected an error reply, got %q", out.Content)
	}
	if !strings.Contains(out.Content, "model overloaded") {
		t.Fatalf("error reply should carry the detail, got %q", out.Content)
	}
	if out.Metadata["is_final"] != "true" {
		t.Fatal("error reply must be final")
	}

	// A failed turn is not persisted.
	if sess := mgr.LoadOrCreate("discord:u9"); len(sess.Messages) != 0 {
		t.Fatalf("expected no session records after a failed turn, got %d", len(sess.Messages))
	}
}

func TestProcessTurnMarksAPISessionServerSide(t *testing.T) {
	provider := &scriptedProvider{responses: []*providers.LLMResponse{{Content: "[]"}}}
	loop, b, mgr := newTestLoop(t, nil, provider, nil)

	loop.processTurn(context.Background(), bus.InboundMessage{
		Channel: "api", SenderID: "default", ChatID: "req-1", Content: "ping",
		Metadata: map[string]string{"session_id": "api:default"},
	})

	consumeOutbound(t, b)
	if sess := mgr.LoadOrCreate("api:default"); !sess.Metadata.ServerSide {
		t.Fatal("expected api-channel session to be marked server-side")
	}
	// Server-side turns additionally run the task-list updater.
	if provider.calls != 2 {
		t.Fatalf("expected main call + task-list call, got %d", provider.calls)
	}
}

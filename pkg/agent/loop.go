// Package agent implements the turn engine, the context builder, the
// session's memory surfaces, skills catalogue, and the task-list updater.
// It ties the message bus, the session store, and the tool registry
// together into the bounded reasoning loop.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/nanobot-run/nanobot/pkg/bus"
	"github.com/nanobot-run/nanobot/pkg/config"
	"github.com/nanobot-run/nanobot/pkg/logger"
	"github.com/nanobot-run/nanobot/pkg/memory"
	"github.com/nanobot-run/nanobot/pkg/metrics"
	"github.com/nanobot-run/nanobot/pkg/providers"
	"github.com/nanobot-run/nanobot/pkg/session"
	"github.com/nanobot-run/nanobot/pkg/tools"
	"github.com/nanobot-run/nanobot/pkg/webhook"
)

// placeholderResponse is substituted when the iteration bound is exhausted
// without a terminal assistant message.
const placeholderResponse = "I've completed processing but have no response to give."

// apiChannelName identifies the sync HTTP channel. Sessions created under
// it are marked server-side, which gates the post-turn task-list update.
const apiChannelName = "api"

// Loop is the bounded tool-using reasoning loop: one goroutine drains the
// bus's inbound queue and processes turns strictly sequentially, so session
// state and tool side effects need no locking.
type Loop struct {
	bus             *bus.Bus
	provider        providers.LLMProvider
	sessions        *session.Manager
	toolRegistry    *tools.Registry
	contextBuilder  *ContextBuilder
	taskListUpdater *TaskListUpdater
	tracker         *metrics.Tracker
	retrieval       *memory.RetrievalClient
	vectorStore     *memory.VectorStore
	extractor       *memory.KnowledgeExtractor
	hooks           *webhook.Emitter

	model             string
	maxIterations     int
	minPairs          int
	recencyMinutes    int
	maxPairs          int
	maxToolLogEntries int
	memoryTopK        int
	showTokenUsage    bool

	running atomic.Bool
}

// New wires a turn engine from configuration. The returned Loop is ready to
// Run once channels and tools have been registered.
func New(cfg *config.Config, b *bus.Bus, provider providers.LLMProvider, toolRegistry *tools.Registry, sessions *session.Manager) *Loop {
	contextBuilder := NewContextBuilder(cfg.Agent.Workspace)
	contextBuilder.SetToolsRegistry(toolRegistry)

	var taskListEndpoint string
	if cfg.Gateway.BaseURL != "" {
		taskListEndpoint = cfg.Gateway.BaseURL + "/task_list"
	}
	taskListUpdater := NewTaskListUpdater(provider, cfg.Agent.Model, taskListEndpoint, cfg.Gateway.NanobotToken)

	var retrieval *memory.RetrievalClient
	if cfg.Memory.Enabled {
		retrieval = memory.NewRetrievalClient(cfg.Memory.RetrievalURL, cfg.Memory.NanobotToken)
	}

	var vectorStore *memory.VectorStore
	var extractor *memory.KnowledgeExtractor
	if cfg.Memory.LocalCache {
		if embeddingFn := resolveEmbeddingFunc(cfg); embeddingFn != nil {
			vs, err := memory.NewVectorStore(cfg.Agent.Workspace, embeddingFn)
			if err != nil {
				logger.WarnCF("agent", "local semantic memory disabled", map[string]interface{}{"error": err.Error()})
			} else {
				vectorStore = vs
				extractor = memory.NewKnowledgeExtractor(provider, cfg.Agent.Model, vs)
			}
		}
	}

	return &Loop{
		bus:               b,
		provider:          provider,
		sessions:          sessions,
		toolRegistry:      toolRegistry,
		contextBuilder:    contextBuilder,
		taskListUpdater:   taskListUpdater,
		tracker:           metrics.NewTracker(cfg.Agent.Workspace, cfg.Agent.Pricing),
		retrieval:         retrieval,
		vectorStore:       vectorStore,
		extractor:         extractor,
		hooks:             webhook.NewEmitter(cfg.Hooks.WebhookURL, cfg.Hooks.NanobotToken),
		model:             cfg.Agent.Model,
		maxIterations:     nonZero(cfg.Agent.MaxToolIterations, 20),
		minPairs:          nonZero(cfg.Agent.MinPairs, 3),
		recencyMinutes:    nonZero(cfg.Agent.RecencyMinutes, 30),
		maxPairs:          nonZero(cfg.Agent.MaxPairs, 20),
		maxToolLogEntries: nonZero(cfg.Agent.MaxToolLogEntries, 30),
		memoryTopK:        nonZero(cfg.Memory.TopK, 5),
		showTokenUsage:    cfg.Debug.ShowTokenUsage,
	}
}

func nonZero(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

// Run drains the bus's inbound queue until ctx is cancelled or Stop is
// called, processing exactly one turn at a time. No second consumer may
// drain the queue.
func (l *Loop) Run(ctx context.Context) error {
	l.running.Store(true)
	defer l.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if !l.running.Load() {
			return nil
		}

		msg, ok := l.bus.ConsumeInbound(ctx)
		if !ok {
			continue
		}
		l.processTurn(ctx, msg)
	}
}

// Stop signals Run to return after its current wait. Running() remains
// accurate across a best-effort race with the loop's own deferred clear.
func (l *Loop) Stop() { l.running.Store(false) }

// Running reports whether the loop is actively draining the bus.
func (l *Loop) Running() bool { return l.running.Load() }

// turnRoute is the (channel, chat_id) pair used for tool context injection
// and outbound delivery. For "system" inbounds the chat_id field carries
// "{origin_channel}:{origin_chat_id}", which classifyRoute unpacks.
type turnRoute struct {
	channel string
	chatID  string
}

func classifyRoute(msg bus.InboundMessage) turnRoute {
	if msg.Channel != "system" {
		return turnRoute{channel: msg.Channel, chatID: msg.ChatID}
	}
	if origin, chatID, ok := strings.Cut(msg.ChatID, ":"); ok && origin != "" {
		return turnRoute{channel: origin, chatID: chatID}
	}
	return turnRoute{channel: "cli", chatID: msg.ChatID}
}

// sessionKeyFor resolves the session key: metadata.session_id wins
// outright; otherwise "{channel}:{sender_id}", using the classified route
// for system messages so a heartbeat/cron event folds into the origin
// conversation's session rather than a bare "system:..." key.
func sessionKeyFor(msg bus.InboundMessage, route turnRoute) string {
	if sid, ok := msg.Metadata["session_id"]; ok && sid != "" {
		return sid
	}
	channel := msg.Channel
	senderID := msg.SenderID
	if msg.Channel == "system" {
		channel = route.channel
		senderID = route.chatID
	}
	return channel + ":" + senderID
}

// nonWhitespaceLen counts runes that are not whitespace, for the memory
// retrieval gate's "≥5 non-whitespace characters" rule.
func nonWhitespaceLen(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

// processTurn runs one full turn: classify the route, load the session,
// retrieve memories, run the bounded loop, persist, and publish the reply.
// LLM failures are caught here and turned into a user-visible error reply;
// every other collaborator failure (memory, webhook, task-list update) is
// already swallowed by its own call site.
func (l *Loop) processTurn(ctx context.Context, msg bus.InboundMessage) {
	route := classifyRoute(msg)
	sessionKey := sessionKeyFor(msg, route)

	l.toolRegistry.UpdateContexts(route.channel, route.chatID)
	l.toolRegistry.UpdateMetadata(msg.Metadata)

	l.hooks.Emit(webhook.EventUserMessage, map[string]interface{}{
		"channel": msg.Channel,
		"chat_id": msg.ChatID,
		"content": msg.Content,
	})

	sess := l.sessions.LoadOrCreate(sessionKey)
	if route.channel == apiChannelName {
		sess.Metadata.ServerSide = true
	}

	retrievedMemories := l.retrieveMemories(ctx, msg.Content, sessionKey)

	structCtx := sess.GetStructuredContext(l.minPairs, l.recencyMinutes, l.maxPairs, l.maxToolLogEntries)
	mediaPaths := make([]string, 0, len(msg.Media))
	for _, a := range msg.Media {
		mediaPaths = append(mediaPaths, a.Path)
	}

	messages := l.contextBuilder.BuildMessages(nil, &structCtx, msg.Content, mediaPaths, route.channel, route.chatID, retrievedMemories)

	finalContent, toolActions, promptTokens, completionTokens, err := l.runBoundedLoop(ctx, messages, sessionKey)

	var outboundContent string
	if err != nil {
		logger.ErrorCF("agent", "LLM call failed", map[string]interface{}{"session": sessionKey, "error": err.Error()})
		outboundContent = fmt.Sprintf("Sorry, I encountered an error: %v", err)
	} else {
		outboundContent = finalContent
		if outboundContent == "" {
			outboundContent = placeholderResponse
		}

		sess.AddMessage(session.Message{Role: "user", Content: msg.Content})
		sess.AddMessage(session.Message{Role: "assistant", Content: outboundContent, ToolActions: toolActions})
		if saveErr := l.sessions.Save(sess); saveErr != nil {
			logger.ErrorCF("agent", "session save failed", map[string]interface{}{"session": sessionKey, "error": saveErr.Error()})
		}

		if sess.Metadata.ServerSide {
			toolNames := make([]string, 0, len(toolActions))
			for _, a := range toolActions {
				toolNames = append(toolNames, a.Tool)
			}
			l.taskListUpdater.Update(ctx, sess, msg.Content, toolNames, outboundContent)
			if saveErr := l.sessions.Save(sess); saveErr != nil {
				logger.ErrorCF("agent", "session save after task-list update failed", map[string]interface{}{"session": sessionKey, "error": saveErr.Error()})
			}
		}

		if l.extractor != nil {
			l.extractor.ExtractAndConsolidate(ctx, msg.Content, outboundContent, sessionKey, "conversation")
		}
		if l.vectorStore != nil {
			l.vectorStore.RememberTurn(ctx, sessionKey, route.channel, route.chatID, msg.Content, outboundContent)
		}

		l.hooks.Emit(webhook.EventAssistantMessage, map[string]interface{}{
			"channel": route.channel,
			"chat_id": route.chatID,
			"content": outboundContent,
		})
	}

	if l.tracker != nil {
		toolNames := make([]string, 0, len(toolActions))
		for _, a := range toolActions {
			toolNames = append(toolNames, a.Tool)
		}
		l.tracker.Record(metrics.TokenEvent{
			SessionKey:   sessionKey,
			Model:        l.model,
			InputTokens:  promptTokens,
			OutputTokens: completionTokens,
			ToolsUsed:    toolNames,
		})
	}

	if l.showTokenUsage {
		outboundContent += fmt.Sprintf("\n\n_tokens: %d in / %d out_", promptTokens, completionTokens)
	}

	l.bus.PublishOutbound(bus.OutboundMessage{
		Channel:  route.channel,
		ChatID:   route.chatID,
		Content:  outboundContent,
		Metadata: map[string]string{"is_final": "true"},
	})
}

// retrieveMemories queries the external endpoint when enabled and the
// message clears the 5-non-whitespace-character gate, folding in the local
// semantic cache's own search when present. Any failure yields "" and the
// turn proceeds without memories.
func (l *Loop) retrieveMemories(ctx context.Context, content, sessionKey string) string {
	if nonWhitespaceLen(content) < 5 {
		return ""
	}

	var parts []string
	if l.retrieval != nil {
		if remote := l.retrieval.Retrieve(ctx, content, l.memoryTopK); remote != "" {
			parts = append(parts, remote)
		}
	}
	if l.vectorStore != nil {
		if hits, err := l.vectorStore.Search(ctx, content, l.memoryTopK); err == nil && len(hits) > 0 {
			parts = append(parts, memory.FormatHits(hits))
		}
	}

	if len(parts) == 0 {
		return ""
	}
	l.hooks.Emit(webhook.EventMemoryRetrieval, map[string]interface{}{
		"session": sessionKey,
		"query":   content,
	})
	return "# Retrieved Memories\n\n" + strings.Join(parts, "\n\n")
}

// runBoundedLoop is the inner reasoning+tool loop. It returns the terminal
// assistant content (possibly empty, in which case the caller substitutes
// the placeholder), the tool_action summaries collected across every
// iteration of this turn, and the accumulated token usage.
func (l *Loop) runBoundedLoop(ctx context.Context, messages []providers.Message, sessionKey string) (string, []session.ToolAction, int, int, error) {
	var toolActions []session.ToolAction
	var promptTokens, completionTokens int

	toolDefs := l.toolRegistry.ToolDefinitions()

	for iter := 0; iter < l.maxIterations; iter++ {
		resp, err := l.provider.Chat(ctx, messages, toolDefs, l.model, nil)
		if err != nil {
			return "", toolActions, promptTokens, completionTokens, err
		}
		if resp.Usage != nil {
			promptTokens += resp.Usage.PromptTokens
			completionTokens += resp.Usage.CompletionTokens
		}

		if !resp.HasToolCalls() {
			return resp.Content, toolActions, promptTokens, completionTokens, nil
		}

		encodedCalls := make([]providers.ToolCall, len(resp.ToolCalls))
		for i, call := range resp.ToolCalls {
			encodedCalls[i] = encodeToolCallArguments(call)
		}
		messages = l.contextBuilder.AddAssistantMessage(messages, resp.Content, resp.ReasoningContent, encodedCalls)

		for _, call := range resp.ToolCalls {
			args := call.Arguments
			if args == nil {
				args = map[string]interface{}{}
			}

			l.hooks.Emit(webhook.EventToolCall, map[string]interface{}{
				"session": sessionKey,
				"tool":    call.Name,
				"args":    args,
			})

			result := l.toolRegistry.ExecuteWithContext(ctx, call.Name, args)

			l.hooks.Emit(webhook.EventToolResult, map[string]interface{}{
				"session":  sessionKey,
				"tool":     call.Name,
				"is_error": result.IsError,
			})

			messages = l.contextBuilder.AddToolResult(messages, call.ID, result.ForLLM)

			toolActions = append(toolActions, session.ToolAction{
				Tool:        call.Name,
				ArgsSummary: session.SummarizeArgs(args),
				Outcome:     session.SummarizeOutcome(result.ForLLM, result.IsError),
			})
		}
	}

	return "", toolActions, promptTokens, completionTokens, nil
}

// encodeToolCallArguments is used when a provider adapter hands back
// native (decoded) arguments without a preset Function.Arguments JSON
// string. The wire-replay form must carry arguments as a JSON string.
func encodeToolCallArguments(call providers.ToolCall) providers.ToolCall {
	if call.Function != nil && call.Function.Arguments != "" {
		return call
	}
	raw, err := json.Marshal(call.Arguments)
	if err != nil {
		raw = []byte("{}")
	}
	call.Function = &providers.ToolCallFunction{Name: call.Name, Arguments: string(raw)}
	return call
}

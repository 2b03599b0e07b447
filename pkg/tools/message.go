package tools

import (
	"context"
	"fmt"
)

// SendCallback delivers content to a channel/chat pair on the message
// tool's behalf; the engine wires this to bus.PublishOutbound.
type SendCallback func(channel, chatID, content string, metadata map[string]string) error

// MessageTool lets the model push an intermediate reply mid-turn, an
// OutboundMessage with metadata.is_final=false, rather than waiting
// for the bounded loop to terminate. The engine calls SetContext before
// every turn so a bare invocation routes back to the conversation that
// triggered it; an explicit channel/chat_id overrides that default for
// cross-channel notifications.
type MessageTool struct {
	send SendCallback

	routedChannel string
	routedChatID  string
	carryMeta     map[string]string
}

// NewMessageTool builds a message tool with no destination or callback
// wired yet; both are set by the engine before first use.
func NewMessageTool() *MessageTool {
	return &MessageTool{}
}

func (t *MessageTool) Name() string {
	return "message"
}

func (t *MessageTool) Description() string {
	return "Push a message to the user on a chat channel without ending your turn. Useful for progress updates or side notes while you keep working. Omit channel/chat_id to reply on the conversation currently in progress; set thread_id to target a specific sub-thread (e.g. a Telegram forum topic) on channels that support it."
}

func (t *MessageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "The text to send",
			},
			"channel": map[string]interface{}{
				"type":        "string",
				"description": "Optional: destination channel name, defaults to the current conversation's channel",
			},
			"chat_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional: destination chat/user ID, defaults to the current conversation's chat",
			},
			"thread_id": map[string]interface{}{
				"type":        "string",
				"description": "Optional: sub-thread identifier for channels that route within a chat (e.g. Telegram forum topics)",
			},
		},
		"required": []string{"content"},
	}
}

// SetContext implements ContextualTool: the engine calls this once per
// turn with the route a bare message/chat_id-less call should fall back
// to.
func (t *MessageTool) SetContext(channel, chatID string) {
	t.routedChannel = channel
	t.routedChatID = chatID
}

// SetMetadata implements MetadataAwareTool, carrying the inbound
// message's metadata (notably thread_id) so a tool-pushed reply stays on
// the same sub-thread as the message that triggered the turn, unless the
// model names a different one explicitly.
func (t *MessageTool) SetMetadata(metadata map[string]string) {
	t.carryMeta = metadata
}

func (t *MessageTool) SetSendCallback(send SendCallback) {
	t.send = send
}

func (t *MessageTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	content, ok := args["content"].(string)
	if !ok || content == "" {
		return ErrorResult("content is required")
	}

	channel, chatID := t.destination(args)
	if channel == "" || chatID == "" {
		return ErrorResult("no target channel/chat specified")
	}
	if t.send == nil {
		return ErrorResult("message sending not configured")
	}

	if err := t.send(channel, chatID, content, t.outboundMetadata(args)); err != nil {
		result := ErrorResult(fmt.Sprintf("sending message: %v", err))
		result.Err = err
		return result
	}

	// The user already received the content directly; don't echo it back.
	return &ToolResult{ForLLM: fmt.Sprintf("Message sent to %s:%s", channel, chatID), Silent: true}
}

// destination resolves the send target: explicit args win, otherwise the
// route SetContext last recorded.
func (t *MessageTool) destination(args map[string]interface{}) (channel, chatID string) {
	channel, _ = args["channel"].(string)
	if channel == "" {
		channel = t.routedChannel
	}
	chatID, _ = args["chat_id"].(string)
	if chatID == "" {
		chatID = t.routedChatID
	}
	return channel, chatID
}

// outboundMetadata carries an explicit thread_id argument, falling back to
// the inbound message's own thread_id so a reply stays on the thread it
// was triggered from.
func (t *MessageTool) outboundMetadata(args map[string]interface{}) map[string]string {
	if threadID, ok := args["thread_id"].(string); ok && threadID != "" {
		return map[string]string{"thread_id": threadID}
	}
	if threadID := t.carryMeta["thread_id"]; threadID != "" {
		return map[string]string{"thread_id": threadID}
	}
	return nil
}

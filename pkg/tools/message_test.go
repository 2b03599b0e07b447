package tools

import (
	"context"
	"errors"
	"testing"
)

func TestMessageTool_SendsWithRoutedDefaults(t *testing.T) {
	tool := NewMessageTool()
	tool.SetContext("telegram", "c1")

	var gotChannel, gotChatID, gotContent string
	tool.SetSendCallback(func(channel, chatID, content string, metadata map[string]string) error {
		gotChannel, gotChatID, gotContent = channel, chatID, content
		return nil
	})

	result := tool.Execute(context.Background(), map[string]interface{}{"content": "hello"})

	if gotChannel != "telegram" || gotChatID != "c1" || gotContent != "hello" {
		t.Fatalf("unexpected send target/content: channel=%q chatID=%q content=%q", gotChannel, gotChatID, gotContent)
	}
	if !result.Silent {
		t.Error("expected Silent=true: the content was already delivered directly to the user")
	}
	if result.IsError {
		t.Error("expected IsError=false for a successful send")
	}
	if result.ForLLM != "Message sent to telegram:c1" {
		t.Errorf("unexpected ForLLM: %q", result.ForLLM)
	}
	if result.ForUser != "" {
		t.Errorf("expected ForUser to stay empty, got %q", result.ForUser)
	}
}

func TestMessageTool_ExplicitChannelOverridesRoute(t *testing.T) {
	tool := NewMessageTool()
	tool.SetContext("telegram", "c1")

	var gotChannel, gotChatID string
	tool.SetSendCallback(func(channel, chatID, content string, metadata map[string]string) error {
		gotChannel, gotChatID = channel, chatID
		return nil
	})

	args := map[string]interface{}{"content": "ping", "channel": "discord", "chat_id": "c2"}
	result := tool.Execute(context.Background(), args)

	if gotChannel != "discord" || gotChatID != "c2" {
		t.Fatalf("expected explicit destination to win, got channel=%q chatID=%q", gotChannel, gotChatID)
	}
	if result.ForLLM != "Message sent to discord:c2" {
		t.Errorf("unexpected ForLLM: %q", result.ForLLM)
	}
}

func TestMessageTool_ExplicitThreadID(t *testing.T) {
	tool := NewMessageTool()
	tool.SetContext("telegram", "-1003732393703")

	var gotMeta map[string]string
	tool.SetSendCallback(func(channel, chatID, content string, metadata map[string]string) error {
		gotMeta = metadata
		return nil
	})

	args := map[string]interface{}{"content": "status update", "thread_id": "35"}
	if result := tool.Execute(context.Background(), args); result.IsError {
		t.Fatalf("expected no error, got %q", result.ForLLM)
	}

	if gotMeta["thread_id"] != "35" {
		t.Errorf("expected thread_id 35, got %v", gotMeta)
	}
}

func TestMessageTool_InheritsThreadIDFromInboundMetadata(t *testing.T) {
	tool := NewMessageTool()
	tool.SetContext("telegram", "-1003732393703")
	tool.SetMetadata(map[string]string{"thread_id": "35"})

	var gotMeta map[string]string
	tool.SetSendCallback(func(channel, chatID, content string, metadata map[string]string) error {
		gotMeta = metadata
		return nil
	})

	if result := tool.Execute(context.Background(), map[string]interface{}{"content": "heartbeat"}); result.IsError {
		t.Fatalf("expected no error, got %q", result.ForLLM)
	}

	if gotMeta["thread_id"] != "35" {
		t.Errorf("expected inherited thread_id 35, got %v", gotMeta)
	}
}

func TestMessageTool_ExplicitThreadIDBeatsInbound(t *testing.T) {
	tool := NewMessageTool()
	tool.SetContext("telegram", "-1003732393703")
	tool.SetMetadata(map[string]string{"thread_id": "35"})

	var gotMeta map[string]string
	tool.SetSendCallback(func(channel, chatID, content string, metadata map[string]string) error {
		gotMeta = metadata
		return nil
	})

	args := map[string]interface{}{"content": "override", "thread_id": "99"}
	if result := tool.Execute(context.Background(), args); result.IsError {
		t.Fatalf("expected no error, got %q", result.ForLLM)
	}

	if gotMeta["thread_id"] != "99" {
		t.Errorf("expected explicit thread_id 99 to win, got %v", gotMeta)
	}
}

func TestMessageTool_SendFailureSurfacesAsError(t *testing.T) {
	tool := NewMessageTool()
	tool.SetContext("test-channel", "test-chat-id")

	sendErr := errors.New("network error")
	tool.SetSendCallback(func(channel, chatID, content string, metadata map[string]string) error {
		return sendErr
	})

	result := tool.Execute(context.Background(), map[string]interface{}{"content": "test message"})

	if !result.IsError {
		t.Error("expected IsError=true when the send callback fails")
	}
	if result.ForLLM != "Error: sending message: network error" {
		t.Errorf("unexpected ForLLM: %q", result.ForLLM)
	}
	if !errors.Is(result.Err, sendErr) {
		t.Errorf("expected Err to wrap the original send error, got %v", result.Err)
	}
}

func TestMessageTool_MissingContent(t *testing.T) {
	tool := NewMessageTool()
	tool.SetContext("test-channel", "test-chat-id")

	result := tool.Execute(context.Background(), map[string]interface{}{})

	if !result.IsError {
		t.Error("expected IsError=true when content is missing")
	}
	if result.ForLLM != "Error: content is required" {
		t.Errorf("unexpected ForLLM: %q", result.ForLLM)
	}
}

func TestMessageTool_NoRouteAvailable(t *testing.T) {
	tool := NewMessageTool()
	// SetContext was never called, so there is no default destination.
	tool.SetSendCallback(func(channel, chatID, content string, metadata map[string]string) error {
		return nil
	})

	result := tool.Execute(context.Background(), map[string]interface{}{"content": "test message"})

	if !result.IsError {
		t.Error("expected IsError=true with no channel/chat available")
	}
	if result.ForLLM != "Error: no target channel/chat specified" {
		t.Errorf("unexpected ForLLM: %q", result.ForLLM)
	}
}

func TestMessageTool_SendCallbackNotConfigured(t *testing.T) {
	tool := NewMessageTool()
	tool.SetContext("test-channel", "test-chat-id")

	result := tool.Execute(context.Background(), map[string]interface{}{"content": "test message"})

	if !result.IsError {
		t.Error("expected IsError=true when no send callback was wired")
	}
	if result.ForLLM != "Error: message sending not configured" {
		t.Errorf("unexpected ForLLM: %q", result.ForLLM)
	}
}

func TestMessageTool_NameAndDescription(t *testing.T) {
	tool := NewMessageTool()
	if tool.Name() != "message" {
		t.Errorf("expected name 'message', got %q", tool.Name())
	}
	if tool.Description() == "" {
		t.Error("description should not be empty")
	}
}

func TestMessageTool_ParametersSchema(t *testing.T) {
	tool := NewMessageTool()
	params := tool.Parameters()

	if typ, _ := params["type"].(string); typ != "object" {
		t.Error("expected schema type 'object'")
	}

	props, ok := params["properties"].(map[string]interface{})
	if !ok {
		t.Fatal("expected properties to be a map")
	}

	required, ok := params["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "content" {
		t.Error("expected 'content' to be the only required property")
	}

	for _, name := range []string{"content", "channel", "chat_id", "thread_id"} {
		prop, ok := props[name].(map[string]interface{})
		if !ok {
			t.Errorf("expected %q property to be declared", name)
			continue
		}
		if prop["type"] != "string" {
			t.Errorf("expected %q property to be of type string", name)
		}
	}
}

// Package webhook implements the fire-and-forget event tap: every notable
// turn event (user message, assistant message, tool call, tool result,
// memory retrieval) is POSTed to an external collaborator URL with no
// effect on turn outcome, on a 10s timeout.
package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/nanobot-run/nanobot/pkg/logger"
)

// EventType is one of the fixed event kinds the webhook contract accepts.
type EventType string

const (
	EventUserMessage      EventType = "user_message"
	EventAssistantMessage EventType = "assistant_message"
	EventToolCall         EventType = "tool_call"
	EventToolResult       EventType = "tool_result"
	EventMemoryRetrieval  EventType = "memory_retrieval"
)

// Emitter POSTs events to the configured webhook URL, never blocking the
// turn that triggered them and never surfacing a failure beyond a log line.
//
// In-flight emits are tracked in a handle set keyed by a generated ID and
// removed on completion, so Pending can report outstanding work for
// graceful-shutdown draining and tests have a flush point to wait on.
type Emitter struct {
	url          string
	nanobotToken string
	client       *resty.Client

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewEmitter builds a webhook emitter. Returns nil if url is empty
// (webhooks disabled); callers should treat a nil *Emitter as a no-op.
func NewEmitter(url, nanobotToken string) *Emitter {
	if url == "" {
		return nil
	}
	return &Emitter{
		url:          url,
		nanobotToken: nanobotToken,
		client:       resty.New().SetTimeout(10 * time.Second),
		pending:      make(map[string]struct{}),
	}
}

// Emit fires event in a new goroutine and returns immediately. fields are
// merged into the JSON body alongside event_type, nanobot_token, and
// event_timestamp.
func (e *Emitter) Emit(eventType EventType, fields map[string]interface{}) {
	if e == nil {
		return
	}

	id := uuid.NewString()
	e.mu.Lock()
	e.pending[id] = struct{}{}
	e.mu.Unlock()

	go func() {
		defer func() {
			e.mu.Lock()
			delete(e.pending, id)
			e.mu.Unlock()
		}()

		body := map[string]interface{}{
			"event_type":      string(eventType),
			"nanobot_token":   e.nanobotToken,
			"event_timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		for k, v := range fields {
			body[k] = v
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		resp, err := e.client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post(e.url)
		if err != nil {
			logger.WarnCF("webhook", "emit failed", map[string]interface{}{"event_type": string(eventType), "error": err.Error()})
			return
		}
		if resp.IsError() {
			logger.WarnCF("webhook", "emit returned non-2xx", map[string]interface{}{"event_type": string(eventType), "status": resp.StatusCode()})
		}
	}()
}

// Pending returns the count of in-flight emits, mainly for tests and
// graceful-shutdown draining.
func (e *Emitter) Pending() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Package bus implements the process-local message bus: two bounded FIFO
// queues demultiplexing inbound events from N channels into a single
// consumer (the turn engine) and fanning outbound replies back out by
// channel name. There is no persistence; queues are in-memory only.
package bus

import (
	"context"
	"time"

	"github.com/nanobot-run/nanobot/pkg/media"
)

// InboundMessage is one event arriving from a channel adapter, the cron
// scheduler, or a system notification. SessionKey is derived by the
// producer as "{channel}:{chat_id}" unless Metadata["session_id"]
// overrides it.
type InboundMessage struct {
	Channel    string
	SenderID   string
	ChatID     string
	Content    string
	Media      []media.Attachment
	Metadata   map[string]string
	SessionKey string
	Timestamp  time.Time
}

// OutboundMessage is one reply routed back to a channel by name.
// Metadata["is_final"] distinguishes the terminal reply (the only kind
// that resolves a pending sync-HTTP request) from intermediate fan-out
// such as tool-emitted side messages.
type OutboundMessage struct {
	Channel  string
	ChatID   string
	Content  string
	Metadata map[string]string
}

const defaultQueueSize = 256

// consumeTimeout bounds how long ConsumeInbound/ConsumeOutbound block before
// returning, so a consumer loop can cooperatively check ctx.Done() even
// when nothing has been published.
const consumeTimeout = time.Second

// Bus is the two-queue message bus. Producers block when a queue is full;
// each queue has exactly one consumer. Publish order from a single producer
// is preserved; no ordering guarantee holds across producers.
type Bus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage
}

// New creates a bus with bounded queues of the given capacity. A capacity
// of 0 or less uses the default.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = defaultQueueSize
	}
	return &Bus{
		inbound:  make(chan InboundMessage, capacity),
		outbound: make(chan OutboundMessage, capacity),
	}
}

// PublishInbound enqueues a message for the turn engine, blocking if the
// queue is full until space frees up or ctx is cancelled.
func (b *Bus) PublishInbound(ctx context.Context, msg InboundMessage) bool {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.SessionKey == "" {
		if sid, ok := msg.Metadata["session_id"]; ok && sid != "" {
			msg.SessionKey = sid
		} else {
			msg.SessionKey = msg.Channel + ":" + msg.ChatID
		}
	}
	select {
	case b.inbound <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// ConsumeInbound blocks for up to one second waiting for a message, so a
// single-goroutine consumer loop can cooperatively re-check ctx.Done()
// between polls. Returns ok=false if ctx was cancelled or the bus closed.
func (b *Bus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	timer := time.NewTimer(consumeTimeout)
	defer timer.Stop()
	select {
	case msg, ok := <-b.inbound:
		return msg, ok
	case <-ctx.Done():
		return InboundMessage{}, false
	case <-timer.C:
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues a reply for the channel registry, blocking if
// the queue is full.
func (b *Bus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// ConsumeOutbound blocks for up to one second waiting for a reply.
func (b *Bus) ConsumeOutbound(ctx context.Context) (OutboundMessage, bool) {
	timer := time.NewTimer(consumeTimeout)
	defer timer.Stop()
	select {
	case msg, ok := <-b.outbound:
		return msg, ok
	case <-ctx.Done():
		return OutboundMessage{}, false
	case <-timer.C:
		return OutboundMessage{}, false
	}
}

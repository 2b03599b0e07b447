package bus

import (
	"context"
	"testing"
	"time"
)

func TestPublishConsumeInboundRoundTrip(t *testing.T) {
	b := New(4)
	ctx := context.Background()

	if ok := b.PublishInbound(ctx, InboundMessage{Channel: "telegram", SenderID: "u1", ChatID: "c1", Content: "hello"}); !ok {
		t.Fatalf("expected publish to succeed")
	}

	msg, ok := b.ConsumeInbound(ctx)
	if !ok {
		t.Fatalf("expected a message")
	}
	if msg.Channel != "telegram" || msg.Content != "hello" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.SessionKey != "telegram:c1" {
		t.Fatalf("expected derived session key telegram:c1, got %q", msg.SessionKey)
	}
}

func TestPublishInboundSessionIDOverride(t *testing.T) {
	b := New(4)
	ctx := context.Background()

	b.PublishInbound(ctx, InboundMessage{
		Channel: "api", ChatID: "req-1", Content: "ping",
		Metadata: map[string]string{"session_id": "api:default"},
	})

	msg, _ := b.ConsumeInbound(ctx)
	if msg.SessionKey != "api:default" {
		t.Fatalf("expected metadata.session_id override, got %q", msg.SessionKey)
	}
}

func TestConsumeInboundTimesOutWithoutBlockingForever(t *testing.T) {
	b := New(1)
	ctx := context.Background()

	start := time.Now()
	_, ok := b.ConsumeInbound(ctx)
	elapsed := time.Since(start)

	if ok {
		t.Fatalf("expected no message")
	}
	if elapsed > 2*time.Second {
		t.Fatalf("expected cooperative ~1s timeout, took %v", elapsed)
	}
}

func TestConsumeInboundRespectsCancellation(t *testing.T) {
	b := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := b.ConsumeInbound(ctx)
	if ok {
		t.Fatalf("expected consume to observe cancellation")
	}
}

func TestPublishOutboundPreservesProducerOrder(t *testing.T) {
	b := New(4)
	ctx := context.Background()

	b.PublishOutbound(OutboundMessage{Channel: "telegram", ChatID: "c1", Content: "first"})
	b.PublishOutbound(OutboundMessage{Channel: "telegram", ChatID: "c1", Content: "second"})

	first, _ := b.ConsumeOutbound(ctx)
	second, _ := b.ConsumeOutbound(ctx)

	if first.Content != "first" || second.Content != "second" {
		t.Fatalf("expected FIFO order, got %q then %q", first.Content, second.Content)
	}
}

func TestPublishInboundBlocksWhenFullUntilCancelled(t *testing.T) {
	b := New(1)
	ctx := context.Background()
	b.PublishInbound(ctx, InboundMessage{Channel: "telegram", ChatID: "c1"})

	full, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	ok := b.PublishInbound(full, InboundMessage{Channel: "telegram", ChatID: "c2"})
	if ok {
		t.Fatalf("expected publish to a full queue to block until cancellation")
	}
}

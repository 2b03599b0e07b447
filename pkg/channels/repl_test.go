package channels

import (
	"testing"

	"github.com/nanobot-run/nanobot/pkg/bus"
)

func TestNewREPLChannelDefaultsSenderID(t *testing.T) {
	ch := NewREPLChannel(nil, "")
	if ch.senderID != "operator" {
		t.Fatalf("expected default sender id \"operator\", got %q", ch.senderID)
	}
}

func TestNewREPLChannelKeepsSuppliedSenderID(t *testing.T) {
	ch := NewREPLChannel(nil, "alice")
	if ch.senderID != "alice" {
		t.Fatalf("expected sender id \"alice\", got %q", ch.senderID)
	}
}

func TestREPLChannelName(t *testing.T) {
	ch := NewREPLChannel(nil, "")
	if ch.Name() != "cli" {
		t.Fatalf("expected channel name \"cli\", got %q", ch.Name())
	}
}

func TestREPLChannelSendBeforeStartErrors(t *testing.T) {
	ch := NewREPLChannel(nil, "")
	if err := ch.Send(bus.OutboundMessage{Content: "hi"}); err == nil {
		t.Fatalf("expected an error sending before Start")
	}
}

func TestREPLChannelStopBeforeStartIsNoop(t *testing.T) {
	ch := NewREPLChannel(nil, "")
	if err := ch.Stop(); err != nil {
		t.Fatalf("expected Stop before Start to be a no-op, got %v", err)
	}
}

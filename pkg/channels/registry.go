package channels

import (
	"context"

	"github.com/nanobot-run/nanobot/pkg/bus"
	"github.com/nanobot-run/nanobot/pkg/logger"
)

// Registry holds name→channel and subscribes to the bus's outbound queue in
// a dedicated worker goroutine, dispatching each reply to the channel named
// by msg.Channel. An unknown channel name is logged and dropped.
type Registry struct {
	bus      *bus.Bus
	channels map[string]Channel
}

// NewRegistry creates an empty channel registry over bus b.
func NewRegistry(b *bus.Bus) *Registry {
	return &Registry{bus: b, channels: make(map[string]Channel)}
}

// Register adds a channel, keyed by its own Name().
func (r *Registry) Register(ch Channel) {
	r.channels[ch.Name()] = ch
}

// Get returns the channel registered under name, if any.
func (r *Registry) Get(name string) (Channel, bool) {
	ch, ok := r.channels[name]
	return ch, ok
}

// StartAll starts every registered channel. The first failure aborts and
// is returned; channels already started remain running.
func (r *Registry) StartAll(ctx context.Context) error {
	for name, ch := range r.channels {
		if err := ch.Start(ctx); err != nil {
			logger.ErrorCF("channels", "channel failed to start", map[string]interface{}{"channel": name, "error": err.Error()})
			return err
		}
		logger.InfoCF("channels", "channel started", map[string]interface{}{"channel": name})
	}
	return nil
}

// StopAll stops every registered channel, logging (but not stopping on)
// individual failures.
func (r *Registry) StopAll() {
	for name, ch := range r.channels {
		if err := ch.Stop(); err != nil {
			logger.WarnCF("channels", "channel failed to stop cleanly", map[string]interface{}{"channel": name, "error": err.Error()})
		}
	}
}

// Run is the dedicated outbound worker: it consumes the bus's outbound
// queue until ctx is cancelled and dispatches each message by channel name.
func (r *Registry) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg, ok := r.bus.ConsumeOutbound(ctx)
		if !ok {
			continue
		}

		ch, ok := r.channels[msg.Channel]
		if !ok {
			logger.WarnCF("channels", "dropping outbound message for unknown channel", map[string]interface{}{"channel": msg.Channel, "chat_id": msg.ChatID})
			continue
		}

		if err := ch.Send(msg); err != nil {
			logger.ErrorCF("channels", "send failed", map[string]interface{}{"channel": msg.Channel, "chat_id": msg.ChatID, "error": err.Error()})
		}
	}
}

package channels

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/nanobot-run/nanobot/pkg/bus"
	"github.com/nanobot-run/nanobot/pkg/logger"
)

const replChannelName = "cli"

// REPLChannel is a local stdin/stdout channel for interactive debugging: a
// human typing at a terminal stands in for a chat platform. It reuses the
// "cli" channel name the turn engine's system-message fallback already
// reserves for routes with no recognizable origin.
type REPLChannel struct {
	bus      *bus.Bus
	senderID string

	mu       sync.Mutex
	instance *readline.Instance
	cancel   context.CancelFunc
}

// NewREPLChannel builds a REPL channel keyed to a single local operator.
func NewREPLChannel(b *bus.Bus, senderID string) *REPLChannel {
	if senderID == "" {
		senderID = "operator"
	}
	return &REPLChannel{bus: b, senderID: senderID}
}

func (c *REPLChannel) Name() string { return replChannelName }

func (c *REPLChannel) Start(ctx context.Context) error {
	rl, err := readline.New("nanobot> ")
	if err != nil {
		return fmt.Errorf("repl: starting readline: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.instance = rl
	c.cancel = cancel
	c.mu.Unlock()

	go c.readLoop(runCtx)
	return nil
}

func (c *REPLChannel) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		rl := c.instance
		c.mu.Unlock()
		if rl == nil {
			return
		}

		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				return
			}
			logger.WarnCF("repl", "readline error", map[string]interface{}{"error": err.Error()})
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		c.bus.PublishInbound(ctx, bus.InboundMessage{
			Channel:  replChannelName,
			SenderID: c.senderID,
			ChatID:   c.senderID,
			Content:  line,
		})
	}
}

func (c *REPLChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.instance == nil {
		return nil
	}
	return c.instance.Close()
}

func (c *REPLChannel) Send(msg bus.OutboundMessage) error {
	c.mu.Lock()
	rl := c.instance
	c.mu.Unlock()
	if rl == nil {
		return fmt.Errorf("repl not started")
	}
	fmt.Fprintln(rl.Stdout(), msg.Content)
	return nil
}

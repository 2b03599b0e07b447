package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nanobot-run/nanobot/pkg/bus"
	"github.com/nanobot-run/nanobot/pkg/logger"
)

const whatsappChannelName = "whatsapp"

// bridgeEnvelope is the JSON frame exchanged with the local WhatsApp bridge
// process in both directions: {chat_id, sender_id, content} inbound,
// {chat_id, content} outbound.
type bridgeEnvelope struct {
	ChatID   string `json:"chat_id"`
	SenderID string `json:"sender_id,omitempty"`
	Content  string `json:"content"`
}

// WhatsAppChannel bridges to a separately-run WhatsApp connector process
// over a websocket, rather than embedding a WhatsApp protocol client
// directly. The bridge process owns the multi-device session; this side
// only speaks the bridge's JSON frames.
type WhatsAppChannel struct {
	bus       *bus.Bus
	bridgeURL string

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
}

// NewWhatsAppChannel builds an adapter that dials bridgeURL.
func NewWhatsAppChannel(b *bus.Bus, bridgeURL string) *WhatsAppChannel {
	return &WhatsAppChannel{bus: b, bridgeURL: bridgeURL}
}

func (c *WhatsAppChannel) Name() string { return whatsappChannelName }

func (c *WhatsAppChannel) Start(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.Dial(c.bridgeURL, nil)
	if err != nil {
		return fmt.Errorf("whatsapp bridge dial: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.conn = conn
	c.cancel = cancel
	c.mu.Unlock()

	go c.readLoop(runCtx)
	return nil
}

func (c *WhatsAppChannel) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			logger.WarnCF("whatsapp", "bridge read failed, reconnecting", map[string]interface{}{"error": err.Error()})
			c.reconnect(ctx)
			continue
		}

		var env bridgeEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.WarnCF("whatsapp", "dropping malformed bridge frame", map[string]interface{}{"error": err.Error()})
			continue
		}

		senderID := env.SenderID
		if senderID == "" {
			senderID = env.ChatID
		}

		c.bus.PublishInbound(ctx, bus.InboundMessage{
			Channel:  whatsappChannelName,
			SenderID: senderID,
			ChatID:   env.ChatID,
			Content:  env.Content,
		})
	}
}

func (c *WhatsAppChannel) reconnect(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.bridgeURL, nil)
		if err != nil {
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		return
	}
}

func (c *WhatsAppChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *WhatsAppChannel) Send(msg bus.OutboundMessage) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}

	data, err := json.Marshal(bridgeEnvelope{ChatID: msg.ChatID, Content: msg.Content})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logger.WarnCF("whatsapp", "send failed", map[string]interface{}{"chat_id": msg.ChatID, "error": err.Error()})
		return err
	}
	return nil
}

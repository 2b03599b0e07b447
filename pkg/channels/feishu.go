package channels

import (
	"context"
	"fmt"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkevent "github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"

	"github.com/nanobot-run/nanobot/pkg/bus"
	"github.com/nanobot-run/nanobot/pkg/logger"
)

const feishuChannelName = "feishu"

// FeishuChannel adapts larksuite/oapi-sdk-go's websocket long-connection
// event stream and IM API to the bus.
type FeishuChannel struct {
	bus    *bus.Bus
	client *lark.Client
	wsCli  *larkws.Client
}

// NewFeishuChannel builds a Feishu/Lark adapter for one app.
func NewFeishuChannel(b *bus.Bus, appID, appSecret string) (*FeishuChannel, error) {
	client := lark.NewClient(appID, appSecret)

	c := &FeishuChannel{bus: b, client: client}

	dispatcher := larkevent.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(c.handleMessageReceive)

	c.wsCli = larkws.NewClient(appID, appSecret, larkws.WithEventHandler(dispatcher))
	return c, nil
}

func (c *FeishuChannel) Name() string { return feishuChannelName }

func (c *FeishuChannel) Start(ctx context.Context) error {
	go func() {
		if err := c.wsCli.Start(ctx); err != nil {
			logger.ErrorCF("feishu", "websocket client stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	return nil
}

func (c *FeishuChannel) Stop() error {
	return nil
}

func (c *FeishuChannel) handleMessageReceive(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
	if event == nil || event.Event == nil || event.Event.Message == nil {
		return nil
	}
	msg := event.Event.Message

	chatID := ""
	if msg.ChatId != nil {
		chatID = *msg.ChatId
	}
	senderID := ""
	if event.Event.Sender != nil && event.Event.Sender.SenderId != nil && event.Event.Sender.SenderId.OpenId != nil {
		senderID = *event.Event.Sender.SenderId.OpenId
	}
	content := ""
	if msg.Content != nil {
		content = *msg.Content
	}

	c.bus.PublishInbound(ctx, bus.InboundMessage{
		Channel:  feishuChannelName,
		SenderID: senderID,
		ChatID:   chatID,
		Content:  content,
	})
	return nil
}

func (c *FeishuChannel) Send(msg bus.OutboundMessage) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType("chat_id").
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(msg.ChatID).
			MsgType("text").
			Content(fmt.Sprintf(`{"text":%q}`, msg.Content)).
			Build()).
		Build()

	resp, err := c.client.Im.V1.Message.Create(context.Background(), req)
	if err != nil {
		logger.WarnCF("feishu", "send failed", map[string]interface{}{"chat_id": msg.ChatID, "error": err.Error()})
		return err
	}
	if !resp.Success() {
		logger.WarnCF("feishu", "send returned error", map[string]interface{}{"chat_id": msg.ChatID, "code": resp.Code, "msg": resp.Msg})
		return fmt.Errorf("feishu send: %s", resp.Msg)
	}
	return nil
}

package channels

import (
	"context"
	"fmt"
	"strconv"

	"github.com/mymmrac/telego"

	"github.com/nanobot-run/nanobot/pkg/bus"
	"github.com/nanobot-run/nanobot/pkg/logger"
	"github.com/nanobot-run/nanobot/pkg/media"
)

const telegramChannelName = "telegram"

// TelegramChannel adapts mymmrac/telego's long-polling bot API to the bus.
type TelegramChannel struct {
	bus    *bus.Bus
	bot    *telego.Bot
	cancel context.CancelFunc
}

// NewTelegramChannel builds a Telegram adapter authenticated with token.
func NewTelegramChannel(b *bus.Bus, token string) (*TelegramChannel, error) {
	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	return &TelegramChannel{bus: b, bot: bot}, nil
}

func (c *TelegramChannel) Name() string { return telegramChannelName }

func (c *TelegramChannel) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	updates, err := c.bot.UpdatesViaLongPolling(runCtx, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("telegram long polling: %w", err)
	}

	go func() {
		for update := range updates {
			c.handleUpdate(runCtx, update)
		}
	}()
	return nil
}

func (c *TelegramChannel) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

func (c *TelegramChannel) handleUpdate(ctx context.Context, update telego.Update) {
	if update.Message == nil {
		return
	}
	msg := update.Message

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	senderID := chatID
	if msg.From != nil {
		senderID = strconv.FormatInt(msg.From.ID, 10)
	}

	var attachments []media.Attachment
	if len(msg.Photo) > 0 {
		best := msg.Photo[len(msg.Photo)-1]
		if file, err := c.bot.GetFile(ctx, &telego.GetFileParams{FileID: best.FileID}); err == nil {
			if path, err := downloadToTemp(c.bot.FileDownloadURL(file.FilePath), "nanobot-tg-*.jpg"); err == nil {
				attachments = append(attachments, media.Attachment{Path: path, MimeType: "image/jpeg"})
			} else {
				logger.WarnCF("telegram", "photo download failed", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	metadata := map[string]string{}
	if msg.MessageThreadID != 0 {
		metadata["thread_id"] = strconv.Itoa(msg.MessageThreadID)
	}

	c.bus.PublishInbound(ctx, bus.InboundMessage{
		Channel:  telegramChannelName,
		SenderID: senderID,
		ChatID:   chatID,
		Content:  msg.Text,
		Media:    attachments,
		Metadata: metadata,
	})
}

func (c *TelegramChannel) Send(msg bus.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", msg.ChatID, err)
	}

	params := &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: chatID},
		Text:   msg.Content,
	}
	if threadID, ok := msg.Metadata["thread_id"]; ok && threadID != "" {
		if tid, err := strconv.Atoi(threadID); err == nil {
			params.MessageThreadID = tid
		}
	}

	_, err = c.bot.SendMessage(context.Background(), params)
	if err != nil {
		logger.WarnCF("telegram", "send failed", map[string]interface{}{"chat_id": msg.ChatID, "error": err.Error()})
	}
	return err
}

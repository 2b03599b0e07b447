package channels

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/nanobot-run/nanobot/pkg/bus"
	"github.com/nanobot-run/nanobot/pkg/logger"
	"github.com/nanobot-run/nanobot/pkg/media"
)

const discordChannelName = "discord"

// DiscordChannel adapts bwmarrin/discordgo's gateway session to the bus.
type DiscordChannel struct {
	bus     *bus.Bus
	session *discordgo.Session
}

// NewDiscordChannel builds a Discord adapter authenticated with a bot token.
func NewDiscordChannel(b *bus.Bus, token string) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session init: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	c := &DiscordChannel{bus: b, session: session}
	session.AddHandler(c.handleMessageCreate)
	return c, nil
}

func (c *DiscordChannel) Name() string { return discordChannelName }

func (c *DiscordChannel) Start(ctx context.Context) error {
	if err := c.session.Open(); err != nil {
		return fmt.Errorf("discord gateway open: %w", err)
	}
	return nil
}

func (c *DiscordChannel) Stop() error {
	return c.session.Close()
}

func (c *DiscordChannel) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	var attachments []media.Attachment
	for _, a := range m.Attachments {
		if a.ContentType == "" || len(a.ContentType) < 6 || a.ContentType[:6] != "image/" {
			continue
		}
		path, err := downloadToTemp(a.URL, "nanobot-dc-*")
		if err != nil {
			logger.WarnCF("discord", "attachment download failed", map[string]interface{}{"error": err.Error()})
			continue
		}
		attachments = append(attachments, media.Attachment{Path: path, MimeType: a.ContentType})
	}

	c.bus.PublishInbound(context.Background(), bus.InboundMessage{
		Channel:  discordChannelName,
		SenderID: m.Author.ID,
		ChatID:   m.ChannelID,
		Content:  m.Content,
		Media:    attachments,
	})
}

func (c *DiscordChannel) Send(msg bus.OutboundMessage) error {
	_, err := c.session.ChannelMessageSend(msg.ChatID, msg.Content)
	if err != nil {
		logger.WarnCF("discord", "send failed", map[string]interface{}{"chat_id": msg.ChatID, "error": err.Error()})
	}
	return err
}

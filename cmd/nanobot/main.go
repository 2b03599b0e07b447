// Command nanobot wires the bus, the session store, the tool registry, the
// channel adapters, and the agent turn engine into one running process.
// Flag parsing here is deliberately thin: it only locates the config file;
// everything else comes from the config record itself.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nanobot-run/nanobot/pkg/agent"
	"github.com/nanobot-run/nanobot/pkg/bus"
	"github.com/nanobot-run/nanobot/pkg/channels"
	"github.com/nanobot-run/nanobot/pkg/config"
	"github.com/nanobot-run/nanobot/pkg/logger"
	"github.com/nanobot-run/nanobot/pkg/providers"
	"github.com/nanobot-run/nanobot/pkg/session"
	"github.com/nanobot-run/nanobot/pkg/tools"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logger.ErrorCF("main", "fatal startup error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return fmt.Errorf("building LLM provider: %w", err)
	}

	msgBus := bus.New(0)

	sessionsDir, err := session.DefaultSessionsDir()
	if err != nil {
		return fmt.Errorf("resolving sessions directory: %w", err)
	}
	sessionManager, err := session.NewManager(sessionsDir)
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}

	var scheduler *agent.Scheduler
	if cfg.Cron.Enabled {
		jobs := make([]agent.CronJob, 0, len(cfg.Cron.Jobs))
		for _, j := range cfg.Cron.Jobs {
			jobs = append(jobs, agent.CronJob{Name: j.Name, Schedule: j.Schedule, Prompt: j.Prompt})
		}
		scheduler = agent.NewScheduler(msgBus, jobs)
	}

	toolRegistry := buildToolRegistry(cfg, msgBus, scheduler)

	loop := agent.New(cfg, msgBus, provider, toolRegistry, sessionManager)

	channelRegistry := channels.NewRegistry(msgBus)
	if err := registerChannels(channelRegistry, cfg, msgBus); err != nil {
		return fmt.Errorf("registering channels: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := channelRegistry.StartAll(ctx); err != nil {
		return fmt.Errorf("starting channels: %w", err)
	}
	defer channelRegistry.StopAll()

	go channelRegistry.Run(ctx)

	if scheduler != nil {
		go scheduler.Run(ctx)
	}

	logger.InfoCF("main", "nanobot started", map[string]interface{}{"model": cfg.Agent.Model})

	return loop.Run(ctx)
}

// buildProvider selects the LLM provider from configured credentials.
// When both a primary model and a fallback model are configured, calls are
// wrapped in a FallbackProvider so a primary outage degrades rather than
// failing the turn outright.
func buildProvider(cfg *config.Config) (providers.LLMProvider, error) {
	var primary providers.LLMProvider

	switch {
	case cfg.Providers.Anthropic.APIKey != "":
		primary = providers.NewClaudeProvider(cfg.Providers.Anthropic.APIKey, cfg.Agent.Model)
	case cfg.Providers.OpenAI.APIKey != "":
		primary = providers.NewOpenAIProvider(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase, cfg.Agent.Model)
	default:
		return nil, fmt.Errorf("no LLM provider credentials configured")
	}

	if cfg.Agent.FallbackModel == "" || cfg.Providers.OpenAI.APIKey == "" {
		return primary, nil
	}

	fallback := providers.NewOpenAIProvider(cfg.Providers.OpenAI.APIKey, cfg.Providers.OpenAI.APIBase, cfg.Agent.FallbackModel)
	return providers.NewFallbackProvider(primary, fallback, cfg.Agent.Model, cfg.Agent.FallbackModel), nil
}

// buildToolRegistry registers the built-in tools (message, think) and any
// gateway-proxied tools from configuration.
func buildToolRegistry(cfg *config.Config, msgBus *bus.Bus, scheduler *agent.Scheduler) *tools.Registry {
	registry := tools.NewRegistry()

	messageTool := tools.NewMessageTool()
	messageTool.SetSendCallback(func(channel, chatID, content string, metadata map[string]string) error {
		md := map[string]string{"is_final": "false"}
		for k, v := range metadata {
			md[k] = v
		}
		msgBus.PublishOutbound(bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: content, Metadata: md})
		return nil
	})
	registry.Register(messageTool)
	registry.Register(tools.NewScratchpadTool())

	if scheduler != nil {
		registry.Register(tools.NewCronTool(scheduler.AsToolScheduler()))
	}

	if cfg.Gateway.BaseURL != "" {
		for _, def := range cfg.Gateway.Tools {
			registry.Register(tools.NewGatewayTool(def.Name, def.Description, def.Parameters, cfg.Gateway.BaseURL, cfg.Gateway.NanobotToken, cfg.Gateway.ContextToken))
		}
		if len(cfg.Gateway.Tools) > 0 {
			registry.Register(tools.NewCheckApprovalResultTool(cfg.Gateway.BaseURL, cfg.Gateway.NanobotToken, cfg.Gateway.ContextToken))
		}
	}

	return registry
}

// registerChannels instantiates and registers every enabled channel
// adapter. The sync HTTP channel is always registered since it also serves
// /health.
func registerChannels(registry *channels.Registry, cfg *config.Config, msgBus *bus.Bus) error {
	registry.Register(channels.NewAPIChannel(msgBus, cfg.Server.Host, cfg.Server.Port))

	if cfg.Channels.Telegram.Enabled {
		ch, err := channels.NewTelegramChannel(msgBus, cfg.Channels.Telegram.Token)
		if err != nil {
			return fmt.Errorf("telegram channel: %w", err)
		}
		registry.Register(ch)
	}

	if cfg.Channels.Discord.Enabled {
		ch, err := channels.NewDiscordChannel(msgBus, cfg.Channels.Discord.Token)
		if err != nil {
			return fmt.Errorf("discord channel: %w", err)
		}
		registry.Register(ch)
	}

	if cfg.Channels.Feishu.Enabled {
		ch, err := channels.NewFeishuChannel(msgBus, cfg.Channels.Feishu.AppID, cfg.Channels.Feishu.AppSecret)
		if err != nil {
			return fmt.Errorf("feishu channel: %w", err)
		}
		registry.Register(ch)
	}

	if cfg.Channels.WhatsApp.Enabled {
		registry.Register(channels.NewWhatsAppChannel(msgBus, cfg.Channels.WhatsApp.BridgeURL))
	}

	if cfg.REPL.Enabled {
		registry.Register(channels.NewREPLChannel(msgBus, cfg.REPL.SenderID))
	}

	return nil
}

// Package config assembles the runtime configuration record from a JSON
// file (defaults) and NANOBOT_-prefixed environment variables (overrides).
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"

	"github.com/nanobot-run/nanobot/pkg/metrics"
)

// ProviderConfig holds credentials and overrides for one LLM provider.
type ProviderConfig struct {
	APIKey  string `json:"api_key" env:"API_KEY"`
	APIBase string `json:"api_base" env:"API_BASE"`
	Model   string `json:"model" env:"MODEL"`
}

// ProvidersConfig lists the providers this instance may route to.
type ProvidersConfig struct {
	Anthropic ProviderConfig `json:"anthropic" envPrefix:"ANTHROPIC_"`
	OpenAI    ProviderConfig `json:"openai" envPrefix:"OPENAI_"`
}

// ChannelConfig is the common shape shared by every channel adapter:
// a bot credential plus whether the channel should be started at all.
type ChannelConfig struct {
	Enabled bool   `json:"enabled" env:"ENABLED"`
	Token   string `json:"token" env:"TOKEN"`
}

// FeishuChannelConfig additionally needs an app secret (Feishu/Lark apps
// authenticate with an app_id/app_secret pair rather than a single token).
type FeishuChannelConfig struct {
	Enabled   bool   `json:"enabled" env:"ENABLED"`
	AppID     string `json:"app_id" env:"APP_ID"`
	AppSecret string `json:"app_secret" env:"APP_SECRET"`
}

// WhatsAppChannelConfig points at a locally-run bridge process.
type WhatsAppChannelConfig struct {
	Enabled   bool   `json:"enabled" env:"ENABLED"`
	BridgeURL string `json:"bridge_url" env:"BRIDGE_URL"`
}

// ChannelsConfig groups every channel adapter's configuration.
type ChannelsConfig struct {
	Telegram ChannelConfig         `json:"telegram" envPrefix:"TELEGRAM_"`
	Discord  ChannelConfig         `json:"discord" envPrefix:"DISCORD_"`
	Feishu   FeishuChannelConfig   `json:"feishu" envPrefix:"FEISHU_"`
	WhatsApp WhatsAppChannelConfig `json:"whatsapp" envPrefix:"WHATSAPP_"`
}

// GatewayToolDef is one server-side tool definition loaded from the gateway
// configuration, exposed to the model as a first-class tool.
type GatewayToolDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// GatewayConfig configures the remote tool-execution proxy. Tools is
// config-file only: a list of struct values has no natural env-var
// encoding under caarlos0/env's delimiter-free nested-struct parsing.
type GatewayConfig struct {
	BaseURL      string           `json:"base_url" env:"BASE_URL"`
	NanobotToken string           `json:"nanobot_token" env:"NANOBOT_TOKEN"`
	ContextToken string           `json:"context_token" env:"CONTEXT_TOKEN"`
	Tools        []GatewayToolDef `json:"tools"`
}

// CronJobConfig is one scheduled heartbeat loaded from configuration.
type CronJobConfig struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Prompt   string `json:"prompt"`
}

// CronConfig configures the heartbeat scheduler. Jobs is config-file
// only, same rationale as GatewayConfig.Tools.
type CronConfig struct {
	Enabled bool            `json:"enabled" env:"ENABLED"`
	Jobs    []CronJobConfig `json:"jobs"`
}

// REPLConfig enables the local stdin/stdout debugging channel.
type REPLConfig struct {
	Enabled  bool   `json:"enabled" env:"ENABLED"`
	SenderID string `json:"sender_id" env:"SENDER_ID"`
}

// HooksConfig configures the webhook emitter.
type HooksConfig struct {
	WebhookURL   string `json:"webhook_url" env:"WEBHOOK_URL"`
	NanobotToken string `json:"nanobot_token" env:"NANOBOT_TOKEN"`
}

// MemoryConfig configures the external memory-retrieval collaborator and
// the optional local semantic-memory cache.
type MemoryConfig struct {
	Enabled      bool   `json:"enabled" env:"ENABLED"`
	RetrievalURL string `json:"retrieval_url" env:"RETRIEVAL_URL"`
	NanobotToken string `json:"nanobot_token" env:"NANOBOT_TOKEN"`
	TopK         int    `json:"top_k" env:"TOP_K" envDefault:"5"`
	LocalCache   bool   `json:"local_cache" env:"LOCAL_CACHE"`
}

// DebugConfig controls optional diagnostic behavior.
type DebugConfig struct {
	ShowTokenUsage bool `json:"show_token_usage" env:"SHOW_TOKEN_USAGE"`
	LogToolCalls   bool `json:"log_tool_calls" env:"LOG_TOOL_CALLS"`
}

// AgentDefaults configures the turn engine's bounds and default model.
type AgentDefaults struct {
	Workspace         string  `json:"workspace" env:"WORKSPACE" envDefault:"."`
	Model             string  `json:"model" env:"MODEL" envDefault:"claude-sonnet-4-5-20250929"`
	FallbackModel     string  `json:"fallback_model" env:"FALLBACK_MODEL"`
	MaxTokens         int     `json:"max_tokens" env:"MAX_TOKENS" envDefault:"4096"`
	Temperature       float64 `json:"temperature" env:"TEMPERATURE" envDefault:"0.7"`
	MaxToolIterations int     `json:"max_tool_iterations" env:"MAX_TOOL_ITERATIONS" envDefault:"20"`
	MinPairs          int     `json:"min_pairs" env:"MIN_PAIRS" envDefault:"3"`
	RecencyMinutes    int     `json:"recency_minutes" env:"RECENCY_MINUTES" envDefault:"30"`
	MaxPairs          int     `json:"max_pairs" env:"MAX_PAIRS" envDefault:"20"`
	MaxToolLogEntries int     `json:"max_tool_log_entries" env:"MAX_TOOL_LOG_ENTRIES" envDefault:"30"`

	// Pricing overrides/extends the tracker's built-in rate card by model
	// name. Config-file only, same rationale as GatewayConfig.Tools: a
	// map has no natural env-var encoding under caarlos0/env.
	Pricing map[string]metrics.ModelPrice `json:"pricing"`
}

// GatewayServerConfig configures the sync HTTP channel's listen address.
type GatewayServerConfig struct {
	Host string `json:"host" env:"HOST" envDefault:"0.0.0.0"`
	Port int    `json:"port" env:"PORT" envDefault:"8787"`
}

// Config is the root configuration record. Values are sourced from an
// optional JSON file first, then overridden by environment variables
// under the NANOBOT_ prefix (nested via struct tags rather than a
// delimiter; typed-struct env parsing makes the delimiter unnecessary).
type Config struct {
	Agent     AgentDefaults       `json:"agent" envPrefix:"AGENT_"`
	Providers ProvidersConfig     `json:"providers" envPrefix:"PROVIDERS_"`
	Channels  ChannelsConfig      `json:"channels" envPrefix:"CHANNELS_"`
	Gateway   GatewayConfig       `json:"gateway" envPrefix:"GATEWAY_"`
	Server    GatewayServerConfig `json:"server" envPrefix:"SERVER_"`
	Hooks     HooksConfig         `json:"hooks" envPrefix:"HOOKS_"`
	Memory    MemoryConfig        `json:"memory" envPrefix:"MEMORY_"`
	Debug     DebugConfig         `json:"debug" envPrefix:"DEBUG_"`
	Cron      CronConfig          `json:"cron" envPrefix:"CRON_"`
	REPL      REPLConfig          `json:"repl" envPrefix:"REPL_"`
}

// Load reads defaults from path (if non-empty and present) and then
// applies NANOBOT_-prefixed environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file %s: %w", path, err)
			}
		} else if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: "NANOBOT_"}); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	return cfg, nil
}

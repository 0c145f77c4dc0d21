package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         18800,
			RateLimitRPM: 120,
		},
		Database: DatabaseConfig{
			Mode:       "sqlite",
			SQLitePath: "data/messenger.db",
		},
		Features: FeaturesConfig{
			Bots:                  true,
			Knocks:                true,
			KnockTimeoutMinutes:   5,
			MessageReactions:      true,
			MessageImageUpload:    true,
			MessageDocumentUpload: true,
			MessageAudioUpload:    true,
		},
		Limits: LimitsConfig{
			MessageSize:            5000,
			MaxReactionsPerMessage: 10,
			ImageSizeKB:            5120,
			DocumentSizeKB:         10240,
			AudioSizeKB:            10240,
			BotPayloadSize:         2000,
		},
		Storage: StorageConfig{
			Disk:             "local",
			Root:             "data/storage",
			ThreadsDirectory: "threads",
			ImageMimes:       []string{"jpg", "jpeg", "png", "bmp", "gif", "webp"},
			DocumentMimes:    []string{"csv", "doc", "docx", "json", "pdf", "ppt", "pptx", "rar", "rtf", "txt", "xls", "xlsx", "xml", "zip", "7z"},
			AudioMimes:       []string{"aac", "mp3", "oga", "ogg", "opus", "wav", "weba", "webm"},
		},
		Providers: ProvidersConfig{
			Aliases: []string{"user"},
		},
		Bots: BotsConfig{
			SweepCron: "*/5 * * * *",
			Queue: QueueConfig{
				Driver:     "memory",
				Workers:    4,
				Buffer:     256,
				Exchange:   "messenger.bots",
				QueueName:  "messenger.bots.actions",
				RoutingKey: "bot.action.handle",
			},
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "messenger",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file yields defaults plus env.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at runtime.
func (c *Config) Validate() error {
	switch c.Database.Mode {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("database.mode %q: want memory, sqlite or postgres", c.Database.Mode)
	}
	switch c.Bots.Queue.Driver {
	case "memory", "amqp", "sync":
	default:
		return fmt.Errorf("bots.queue.driver %q: want memory, amqp or sync", c.Bots.Queue.Driver)
	}
	if c.Bots.Queue.Driver == "amqp" && c.Bots.Queue.AMQPURL == "" {
		return fmt.Errorf("bots.queue.driver is amqp but MESSENGER_AMQP_URL is not set")
	}
	if c.Bots.SweepCron != "" && !gronx.IsValid(c.Bots.SweepCron) {
		return fmt.Errorf("bots.sweep_cron %q is not a valid cron expression", c.Bots.SweepCron)
	}
	if c.Storage.Disk != "local" {
		return fmt.Errorf("storage.disk %q: only local is supported", c.Storage.Disk)
	}
	if len(c.Providers.Aliases) == 0 {
		return fmt.Errorf("providers.aliases must not be empty")
	}
	return nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				*dst = n
			}
		}
	}

	// Secrets
	envStr("MESSENGER_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("MESSENGER_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("MESSENGER_AMQP_URL", &c.Bots.Queue.AMQPURL)

	// Gateway host/port
	envStr("MESSENGER_HOST", &c.Gateway.Host)
	if v := os.Getenv("MESSENGER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	envInt("MESSENGER_RATE_LIMIT_RPM", &c.Gateway.RateLimitRPM)
	if v := os.Getenv("MESSENGER_ALLOWED_ORIGINS"); v != "" {
		c.Gateway.AllowedOrigins = strings.Split(v, ",")
	}

	// Database
	envStr("MESSENGER_MODE", &c.Database.Mode)
	envStr("MESSENGER_SQLITE_PATH", &c.Database.SQLitePath)

	// Storage
	envStr("MESSENGER_STORAGE_ROOT", &c.Storage.Root)

	// Features
	envBool("MESSENGER_BOTS", &c.Features.Bots)
	envBool("MESSENGER_KNOCKS", &c.Features.Knocks)
	envBool("MESSENGER_MESSAGE_REACTIONS", &c.Features.MessageReactions)
	envBool("MESSENGER_MESSAGE_IMAGE_UPLOAD", &c.Features.MessageImageUpload)
	envBool("MESSENGER_MESSAGE_DOCUMENT_UPLOAD", &c.Features.MessageDocumentUpload)
	envBool("MESSENGER_MESSAGE_AUDIO_UPLOAD", &c.Features.MessageAudioUpload)

	// Bots queue
	envStr("MESSENGER_QUEUE_DRIVER", &c.Bots.Queue.Driver)
	envInt("MESSENGER_QUEUE_WORKERS", &c.Bots.Queue.Workers)

	// Telemetry
	envStr("MESSENGER_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("MESSENGER_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("MESSENGER_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("MESSENGER_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("MESSENGER_TELEMETRY_INSECURE", &c.Telemetry.Insecure)
}

package config

import (
	"slices"
	"sync"
)

// Config is the root configuration for the messenger service.
type Config struct {
	Gateway   GatewayConfig   `json:"gateway"`
	Database  DatabaseConfig  `json:"database"`
	Features  FeaturesConfig  `json:"features"`
	Limits    LimitsConfig    `json:"limits"`
	Storage   StorageConfig   `json:"storage"`
	Providers ProvidersConfig `json:"providers"`
	Bots      BotsConfig      `json:"bots"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// GatewayConfig configures the HTTP + websocket listener.
type GatewayConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Token          string   `json:"-"`                         // from env MESSENGER_GATEWAY_TOKEN only
	AllowedOrigins []string `json:"allowed_origins,omitempty"` // WebSocket CORS whitelist (empty = allow all)
	RateLimitRPM   int      `json:"rate_limit_rpm,omitempty"`  // requests per minute per client (0 = disabled)
}

// DatabaseConfig selects the storage backend.
// PostgresDSN is NEVER read from config.json (secret), only from env MESSENGER_POSTGRES_DSN.
type DatabaseConfig struct {
	Mode        string `json:"mode,omitempty"` // "memory", "sqlite" (default) or "postgres"
	SQLitePath  string `json:"sqlite_path,omitempty"`
	PostgresDSN string `json:"-"`
}

// IsManagedMode reports whether Postgres is configured.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "postgres" && c.Database.PostgresDSN != ""
}

// FeaturesConfig toggles messenger features. Hot-reloadable.
type FeaturesConfig struct {
	Bots                  bool `json:"bots"`
	Knocks                bool `json:"knocks"`
	KnockTimeoutMinutes   int  `json:"knock_timeout_minutes"`
	MessageReactions      bool `json:"message_reactions"`
	MessageImageUpload    bool `json:"message_image_upload"`
	MessageDocumentUpload bool `json:"message_document_upload"`
	MessageAudioUpload    bool `json:"message_audio_upload"`
}

// LimitsConfig bounds user input.
type LimitsConfig struct {
	MessageSize            int `json:"message_size"`              // max characters in a text message
	MaxReactionsPerMessage int `json:"max_reactions_per_message"` // max distinct reactions on one message
	ImageSizeKB            int `json:"image_size_kb"`
	DocumentSizeKB         int `json:"document_size_kb"`
	AudioSizeKB            int `json:"audio_size_kb"`
	BotPayloadSize         int `json:"bot_payload_size"`
}

// StorageConfig configures attachment storage.
type StorageConfig struct {
	Disk             string   `json:"disk"` // only "local" is supported
	Root             string   `json:"root"`
	ThreadsDirectory string   `json:"threads_directory"`
	ImageMimes       []string `json:"image_mimes"`
	DocumentMimes    []string `json:"document_mimes"`
	AudioMimes       []string `json:"audio_mimes"`
}

// ProvidersConfig lists the provider aliases that can be messaged.
type ProvidersConfig struct {
	Aliases []string `json:"aliases"`
}

// BotsConfig configures bot dispatch.
type BotsConfig struct {
	SweepCron string      `json:"sweep_cron,omitempty"` // cooldown sweeper schedule (gronx expression)
	Queue     QueueConfig `json:"queue"`
}

// QueueConfig configures where queued bot handlers run.
type QueueConfig struct {
	Driver     string `json:"driver"` // "memory" (default), "amqp" or "sync"
	Workers    int    `json:"workers,omitempty"`
	Buffer     int    `json:"buffer,omitempty"`
	AMQPURL    string `json:"-"` // from env MESSENGER_AMQP_URL only
	Exchange   string `json:"exchange,omitempty"`
	QueueName  string `json:"queue_name,omitempty"`
	RoutingKey string `json:"routing_key,omitempty"`
}

// TelemetryConfig configures OpenTelemetry trace export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"` // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

// CurrentFeatures returns a copy of the feature toggles under the read lock.
func (c *Config) CurrentFeatures() FeaturesConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Features
}

// SetFeatures swaps the feature toggles.
func (c *Config) SetFeatures(f FeaturesConfig) {
	c.mu.Lock()
	c.Features = f
	c.mu.Unlock()
}

// IsMessagingProvider reports whether alias is configured as messageable.
func (c *Config) IsMessagingProvider(alias string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Contains(c.Providers.Aliases, alias)
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gateway = src.Gateway
	c.Database = src.Database
	c.Features = src.Features
	c.Limits = src.Limits
	c.Storage = src.Storage
	c.Providers = src.Providers
	c.Bots = src.Bots
	c.Telemetry = src.Telemetry
}

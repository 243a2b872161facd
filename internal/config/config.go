// Package config provides the configuration schema, loader, and provider
// registry for the speechgraph server.
package config

import "time"

// Config is the root configuration structure for the speechgraph server.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Queues    QueuesConfig    `yaml:"queues"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
}

// ServerConfig holds network and logging settings for the server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// external dependency. Each field selects a named provider registered in
// the [Registry].
type ProvidersConfig struct {
	STT        ProviderEntry `yaml:"stt"`
	LLM        ProviderEntry `yaml:"llm"`
	Cache      ProviderEntry `yaml:"cache"`
	ObjectStore ProviderEntry `yaml:"object_store"`
	Warehouse  ProviderEntry `yaml:"warehouse"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// QueuesConfig overrides the per-connection queue capacities and producer
// wait timeouts described in spec.md §4.2. Zero values fall back to the
// spec's defaults (see [DefaultQueues]).
type QueuesConfig struct {
	AudioCapacity      int           `yaml:"audio_capacity"`
	AudioWriteTimeout   time.Duration `yaml:"audio_write_timeout"`
	TextCapacity       int           `yaml:"text_capacity"`
	TextWriteTimeout    time.Duration `yaml:"text_write_timeout"`
	SentenceCapacity   int           `yaml:"sentence_capacity"`
	OutboundCapacity   int           `yaml:"outbound_capacity"`
	OutboundWriteTimeout time.Duration `yaml:"outbound_write_timeout"`
}

// DefaultQueues returns the queue capacities and timeouts mandated by
// spec.md §4.2.
func DefaultQueues() QueuesConfig {
	return QueuesConfig{
		AudioCapacity:        100,
		AudioWriteTimeout:    500 * time.Millisecond,
		TextCapacity:         100,
		TextWriteTimeout:     time.Second,
		SentenceCapacity:     100,
		OutboundCapacity:     200,
		OutboundWriteTimeout: time.Second,
	}
}

// HeartbeatConfig overrides the heartbeat tick/timeout described in
// spec.md §4.3.
type HeartbeatConfig struct {
	Tick            time.Duration `yaml:"tick"`
	InactiveTimeout time.Duration `yaml:"inactive_timeout"`
}

// DefaultHeartbeat returns the heartbeat cadence mandated by spec.md §4.3.
func DefaultHeartbeat() HeartbeatConfig {
	return HeartbeatConfig{
		Tick:            15 * time.Second,
		InactiveTimeout: 45 * time.Second,
	}
}

// ExtractionConfig overrides the extraction-worker batching thresholds
// described in spec.md §4.6.
type ExtractionConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	BatchMaxWait time.Duration `yaml:"batch_max_wait"`
}

// DefaultExtraction returns the batching thresholds mandated by spec.md §4.6.
func DefaultExtraction() ExtractionConfig {
	return ExtractionConfig{
		BatchSize:    3,
		BatchMaxWait: 5 * time.Second,
	}
}

// FeedbackConfig controls whether the feedback workflow (spec.md §6.4,
// §11) is enabled and where its artifacts are written.
type FeedbackConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ObjectStoreBucket string `yaml:"object_store_bucket"`
	WarehouseTable   string `yaml:"warehouse_table"`
}

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// validLogLevels lists the log levels accepted by [ServerConfig.LogLevel].
var validLogLevels = []string{"debug", "info", "warn", "error"}

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":          {"deepgram", "whisper", "openai"},
	"llm":          {"openai", "anthropic"},
	"cache":        {"postgres"},
	"object_store": {"fs"},
	"warehouse":    {"postgres"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills in defaults for any
// unset queue/heartbeat/extraction settings, and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued queue/heartbeat/extraction settings with
// the values mandated by spec.md §4.2, §4.3, and §4.6.
func applyDefaults(cfg *Config) {
	def := DefaultQueues()
	if cfg.Queues.AudioCapacity == 0 {
		cfg.Queues.AudioCapacity = def.AudioCapacity
	}
	if cfg.Queues.AudioWriteTimeout == 0 {
		cfg.Queues.AudioWriteTimeout = def.AudioWriteTimeout
	}
	if cfg.Queues.TextCapacity == 0 {
		cfg.Queues.TextCapacity = def.TextCapacity
	}
	if cfg.Queues.TextWriteTimeout == 0 {
		cfg.Queues.TextWriteTimeout = def.TextWriteTimeout
	}
	if cfg.Queues.SentenceCapacity == 0 {
		cfg.Queues.SentenceCapacity = def.SentenceCapacity
	}
	if cfg.Queues.OutboundCapacity == 0 {
		cfg.Queues.OutboundCapacity = def.OutboundCapacity
	}
	if cfg.Queues.OutboundWriteTimeout == 0 {
		cfg.Queues.OutboundWriteTimeout = def.OutboundWriteTimeout
	}

	hb := DefaultHeartbeat()
	if cfg.Heartbeat.Tick == 0 {
		cfg.Heartbeat.Tick = hb.Tick
	}
	if cfg.Heartbeat.InactiveTimeout == 0 {
		cfg.Heartbeat.InactiveTimeout = hb.InactiveTimeout
	}

	ex := DefaultExtraction()
	if cfg.Extraction.BatchSize == 0 {
		cfg.Extraction.BatchSize = ex.BatchSize
	}
	if cfg.Extraction.BatchMaxWait == 0 {
		cfg.Extraction.BatchMaxWait = ex.BatchMaxWait
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !slices.Contains(validLogLevels, cfg.Server.LogLevel) {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: %v", cfg.Server.LogLevel, validLogLevels))
	}

	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("cache", cfg.Providers.Cache.Name)
	validateProviderName("object_store", cfg.Providers.ObjectStore.Name)
	validateProviderName("warehouse", cfg.Providers.Warehouse.Name)

	if cfg.Providers.STT.Name == "" {
		slog.Warn("no speech recognizer configured; audio frames will not produce transcripts")
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; extraction and translation will be unavailable")
	}
	if cfg.Providers.Cache.Name == "" {
		slog.Warn("no cache provider configured; session graphs will not survive a restart")
	}

	if cfg.Feedback.Enabled {
		if cfg.Providers.ObjectStore.Name == "" {
			errs = append(errs, errors.New("feedback.enabled is true but providers.object_store is not configured"))
		}
		if cfg.Providers.Warehouse.Name == "" {
			errs = append(errs, errors.New("feedback.enabled is true but providers.warehouse is not configured"))
		}
		if cfg.Feedback.WarehouseTable == "" {
			errs = append(errs, errors.New("feedback.enabled is true but feedback.warehouse_table is empty"))
		}
	}

	if cfg.Queues.AudioCapacity < 0 || cfg.Queues.TextCapacity < 0 || cfg.Queues.SentenceCapacity < 0 || cfg.Queues.OutboundCapacity < 0 {
		errs = append(errs, errors.New("queues: capacities must be non-negative"))
	}
	if cfg.Heartbeat.Tick > 0 && cfg.Heartbeat.InactiveTimeout > 0 && cfg.Heartbeat.InactiveTimeout <= cfg.Heartbeat.Tick {
		errs = append(errs, fmt.Errorf("heartbeat.inactive_timeout (%s) must exceed heartbeat.tick (%s)", cfg.Heartbeat.InactiveTimeout, cfg.Heartbeat.Tick))
	}
	if cfg.Extraction.BatchSize < 1 {
		errs = append(errs, errors.New("extraction.batch_size must be at least 1"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

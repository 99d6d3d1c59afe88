package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Provider  ProviderConfig  `yaml:"provider"`
	Chat      ChatConfig      `yaml:"chat"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
	Retention RetentionConfig `yaml:"retention"`
	Stream    StreamConfig    `yaml:"stream"`
}

// ServerConfig holds http, storage and tls settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	DBPath  string    `yaml:"db_path"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProviderConfig selects and configures the completion backend.
type ProviderConfig struct {
	// Type is "openai" (any OpenAI-compatible endpoint, including local
	// Ollama servers via base_url) or "anthropic".
	Type      string  `yaml:"type"`
	BaseURL   string  `yaml:"base_url"`
	APIKey    string  `yaml:"api_key"`
	Model     string  `yaml:"model"`
	MaxTokens int     `yaml:"max_tokens"`
	RPS       float64 `yaml:"rps"`
	Burst     int     `yaml:"burst"`
}

// ChatConfig tunes the turn engine.
type ChatConfig struct {
	// Fallback is the human-readable content inserted for a failed
	// generation. Empty uses the built-in default.
	Fallback string `yaml:"fallback"`
}

// SecurityConfig holds CORS and rate limit settings. There is no
// authentication layer.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json|console
}

// RetentionConfig holds configuration for the automatic purge runner.
type RetentionConfig struct {
	Enabled      bool     `yaml:"enabled"`
	Cron         string   `yaml:"cron"`
	Period       Duration `yaml:"period"`
	BatchSize    int      `yaml:"batch_size"`
	BatchSleepMs int      `yaml:"batch_sleep_ms"`
	DryRun       bool     `yaml:"dry_run"`
}

// StreamConfig tunes ingest buffering.
type StreamConfig struct {
	MaxPooledBufferBytes SizeBytes `yaml:"max_pooled_buffer_bytes"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

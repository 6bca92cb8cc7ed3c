package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"
)

type Config struct {
	Ingest     IngestConfig   `json:"ingest"`
	Logging    LogConfig      `json:"logging"`
	Metrics    MetricsConfig  `json:"metrics"`
	Processing ProcConfig     `json:"processing"`
	Dispatch   DispatchConfig `json:"dispatch"`
	Digest     DigestConfig   `json:"digest"`
	Ledger     LedgerConfig   `json:"ledger"`
	Channels   ChannelsConfig `json:"channels"`
}

// ChannelsConfig carries credentials for channel adapters that need
// engine-level configuration. Adapters without a section here are
// configured entirely by the per-action config.
type ChannelsConfig struct {
	Email EmailChannelConfig `json:"email"`
	SMS   SMSChannelConfig   `json:"sms"`
}

type EmailChannelConfig struct {
	Enabled  bool   `json:"enabled"`
	SMTPHost string `json:"smtpHost"`
	SMTPPort int    `json:"smtpPort"`
	From     string `json:"from"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type SMSChannelConfig struct {
	Enabled    bool   `json:"enabled"`
	GatewayURL string `json:"gatewayUrl"`
	APIKey     string `json:"apiKey"`
}

// IngestConfig configures the event sources the engine subscribes to.
// Both sources are optional; the engine can also be fed directly through
// its Submit API.
type IngestConfig struct {
	MQTT MQTTConfig `json:"mqtt"`
	NATS NATSConfig `json:"nats"`
}

type MQTTConfig struct {
	Enabled  bool     `json:"enabled"`
	Broker   string   `json:"broker"`
	ClientID string   `json:"clientId"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Topics   []string `json:"topics"` // event topics, e.g. "careops/events/#"
	TLS      struct {
		Enable   bool   `json:"enable"`
		CertFile string `json:"certFile"`
		KeyFile  string `json:"keyFile"`
		CAFile   string `json:"caFile"`
	} `json:"tls"`
}

type NATSConfig struct {
	Enabled  bool     `json:"enabled"`
	URL      string   `json:"url"`
	Subjects []string `json:"subjects"` // event subjects, e.g. "careops.events.>"
}

type LogConfig struct {
	Level       string `json:"level"`    // debug, info, warn, error
	Encoding    string `json:"encoding"` // json or console
	LogToFile   bool   `json:"logToFile"`
	LogToStdout bool   `json:"logToStdout"`
	Directory   string `json:"directory"`
	MaxSize     int    `json:"maxSize"` // megabytes
	MaxAge      int    `json:"maxAge"`  // days
	MaxBackups  int    `json:"maxBackups"`
	Compress    bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled        bool   `json:"enabled"`
	Address        string `json:"address"`
	Path           string `json:"path"`
	UpdateInterval string `json:"updateInterval"` // Duration string
}

type ProcConfig struct {
	Workers   int `json:"workers"`
	QueueSize int `json:"queueSize"`
}

// DispatchConfig bounds action fan-out and the per-attempt retry policy.
type DispatchConfig struct {
	MaxParallel    int     `json:"maxParallel"`
	Timeout        string  `json:"timeout"`        // per channel attempt
	MaxRetries     int     `json:"maxRetries"`     // additional attempts after the first
	InitialBackoff string  `json:"initialBackoff"` // Duration string
	BackoffFactor  float64 `json:"backoffFactor"`
}

type DigestConfig struct {
	FlushInterval string `json:"flushInterval"` // Duration string
}

type LedgerConfig struct {
	Backend string `json:"backend"` // memory or redis
	Redis   struct {
		Addr      string `json:"addr"`
		Password  string `json:"password"`
		DB        int    `json:"db"`
		KeyPrefix string `json:"keyPrefix"`
	} `json:"redis"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with all defaults applied and no
// ingest sources enabled. Used by tests and embedded setups.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = "json"
	}
	if !c.Logging.LogToFile && !c.Logging.LogToStdout {
		c.Logging.LogToStdout = true
	}
	if c.Logging.MaxSize <= 0 {
		c.Logging.MaxSize = 100
	}
	if c.Logging.MaxBackups <= 0 {
		c.Logging.MaxBackups = 3
	}

	if c.Metrics.Address == "" {
		c.Metrics.Address = ":2112"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.UpdateInterval == "" {
		c.Metrics.UpdateInterval = "15s"
	}

	if c.Processing.Workers <= 0 {
		c.Processing.Workers = runtime.NumCPU()
	}
	if c.Processing.QueueSize <= 0 {
		c.Processing.QueueSize = 1000
	}

	if c.Dispatch.MaxParallel <= 0 {
		c.Dispatch.MaxParallel = 8
	}
	if c.Dispatch.Timeout == "" {
		c.Dispatch.Timeout = "5s"
	}
	if c.Dispatch.MaxRetries == 0 {
		c.Dispatch.MaxRetries = 2
	}
	if c.Dispatch.InitialBackoff == "" {
		c.Dispatch.InitialBackoff = "1s"
	}
	if c.Dispatch.BackoffFactor <= 0 {
		c.Dispatch.BackoffFactor = 3.0
	}

	if c.Digest.FlushInterval == "" {
		c.Digest.FlushInterval = "30s"
	}

	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "memory"
	}
	if c.Ledger.Redis.Addr == "" {
		c.Ledger.Redis.Addr = "localhost:6379"
	}
	if c.Ledger.Redis.KeyPrefix == "" {
		c.Ledger.Redis.KeyPrefix = "careops"
	}

	if c.Channels.Email.SMTPPort <= 0 {
		c.Channels.Email.SMTPPort = 587
	}
}

// validateConfig performs validation of all configuration values
func validateConfig(cfg *Config) error {
	if cfg.Ingest.MQTT.Enabled {
		if cfg.Ingest.MQTT.Broker == "" {
			return fmt.Errorf("mqtt broker address is required when mqtt ingest is enabled")
		}
		if len(cfg.Ingest.MQTT.Topics) == 0 {
			return fmt.Errorf("at least one mqtt topic is required when mqtt ingest is enabled")
		}
		if cfg.Ingest.MQTT.TLS.Enable {
			if cfg.Ingest.MQTT.TLS.CertFile == "" {
				return fmt.Errorf("tls cert file is required when tls is enabled")
			}
			if cfg.Ingest.MQTT.TLS.KeyFile == "" {
				return fmt.Errorf("tls key file is required when tls is enabled")
			}
			if cfg.Ingest.MQTT.TLS.CAFile == "" {
				return fmt.Errorf("tls ca file is required when tls is enabled")
			}
		}
	}

	if cfg.Ingest.NATS.Enabled {
		if cfg.Ingest.NATS.URL == "" {
			return fmt.Errorf("nats url is required when nats ingest is enabled")
		}
		if len(cfg.Ingest.NATS.Subjects) == 0 {
			return fmt.Errorf("at least one nats subject is required when nats ingest is enabled")
		}
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", cfg.Logging.Level)
	}

	switch cfg.Logging.Encoding {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %s", cfg.Logging.Encoding)
	}

	if cfg.Logging.LogToFile && cfg.Logging.Directory == "" {
		return fmt.Errorf("log directory is required when file logging is enabled")
	}

	if cfg.Metrics.Enabled {
		if _, err := time.ParseDuration(cfg.Metrics.UpdateInterval); err != nil {
			return fmt.Errorf("invalid metrics update interval: %w", err)
		}
	}

	if cfg.Processing.Workers < 1 {
		return fmt.Errorf("workers must be greater than 0")
	}
	if cfg.Processing.QueueSize < 1 {
		return fmt.Errorf("queue size must be greater than 0")
	}

	if cfg.Dispatch.MaxRetries < 0 {
		return fmt.Errorf("dispatch max retries cannot be negative")
	}
	if _, err := time.ParseDuration(cfg.Dispatch.Timeout); err != nil {
		return fmt.Errorf("invalid dispatch timeout: %w", err)
	}
	if _, err := time.ParseDuration(cfg.Dispatch.InitialBackoff); err != nil {
		return fmt.Errorf("invalid dispatch backoff: %w", err)
	}

	if _, err := time.ParseDuration(cfg.Digest.FlushInterval); err != nil {
		return fmt.Errorf("invalid digest flush interval: %w", err)
	}

	switch cfg.Ledger.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid ledger backend: %s", cfg.Ledger.Backend)
	}

	if cfg.Channels.Email.Enabled {
		if cfg.Channels.Email.SMTPHost == "" {
			return fmt.Errorf("smtp host is required when the email channel is enabled")
		}
		if cfg.Channels.Email.From == "" {
			return fmt.Errorf("smtp sender address is required when the email channel is enabled")
		}
	}
	if cfg.Channels.SMS.Enabled && cfg.Channels.SMS.GatewayURL == "" {
		return fmt.Errorf("sms gateway url is required when the sms channel is enabled")
	}

	return nil
}

// DispatchTimeout returns the parsed per-attempt channel timeout.
func (c *Config) DispatchTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Dispatch.Timeout)
	return d
}

// DispatchBackoff returns the parsed initial retry backoff.
func (c *Config) DispatchBackoff() time.Duration {
	d, _ := time.ParseDuration(c.Dispatch.InitialBackoff)
	return d
}

// DigestFlushInterval returns the parsed digest flush interval.
func (c *Config) DigestFlushInterval() time.Duration {
	d, _ := time.ParseDuration(c.Digest.FlushInterval)
	return d
}

// ApplyOverrides applies command line flag overrides to the configuration
func (c *Config) ApplyOverrides(workers, queueSize int, metricsAddr, metricsPath string, metricsInterval time.Duration) {
	if workers > 0 {
		c.Processing.Workers = workers
	}
	if queueSize > 0 {
		c.Processing.QueueSize = queueSize
	}
	if metricsAddr != "" {
		c.Metrics.Address = metricsAddr
	}
	if metricsPath != "" {
		c.Metrics.Path = metricsPath
	}
	if metricsInterval > 0 {
		c.Metrics.UpdateInterval = metricsInterval.String()
	}
}

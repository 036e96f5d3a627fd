// Package config provides configuration management for recurd.
// It uses koanf v2 to load configuration from YAML files and supports
// saving updated configuration.
//
// Configuration is loaded from /etc/recurd/config.yaml by default.
// The file should have restricted permissions (0600) as it may contain the
// API key and the NATS NKey seed.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	goyaml "gopkg.in/yaml.v3"

	"github.com/doughall/recurd/internal/store"
)

// DefaultConfigPath is the default location for the configuration file.
const DefaultConfigPath = "/etc/recurd/config.yaml"

// DefaultDataDir holds the schedule store and the due-event queue.
const DefaultDataDir = "/var/lib/recurd"

// Config holds the node configuration loaded from the YAML config file.
// Fields are tagged for both koanf (loading) and yaml (saving).
type Config struct {
	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `koanf:"log_level" yaml:"log_level"`

	// DataDir holds the bbolt files. Default: /var/lib/recurd.
	DataDir string `koanf:"data_dir" yaml:"data_dir"`

	// StoreBackend selects schedule storage: "bolt" (default) or "redis".
	StoreBackend string `koanf:"store_backend" yaml:"store_backend"`
	RedisAddr    string `koanf:"redis_addr" yaml:"redis_addr,omitempty"`
	RedisDB      int    `koanf:"redis_db" yaml:"redis_db,omitempty"`

	// TickIntervalSeconds is how often due schedules are checked. Default: 1.
	TickIntervalSeconds int `koanf:"tick_interval_seconds" yaml:"tick_interval_seconds"`

	// DispatchIntervalSeconds is how often queued due events are published.
	// Default: 5.
	DispatchIntervalSeconds int `koanf:"dispatch_interval_seconds" yaml:"dispatch_interval_seconds"`

	// PollInterval is how often (in seconds) the node sends a heartbeat and,
	// without NATS, pulls assignments. Default: 60.
	PollInterval int `koanf:"poll_interval" yaml:"poll_interval"`

	// JitterSeconds is the maximum random jitter added to PollInterval.
	// Default: 30.
	JitterSeconds int `koanf:"jitter_seconds" yaml:"jitter_seconds"`

	// ServerURL is the base URL of the control plane, used when NATS is off.
	ServerURL string `koanf:"server_url" yaml:"server_url,omitempty"`
	APIKey    string `koanf:"api_key" yaml:"api_key,omitempty"`

	// NATSServers is a comma-separated list of NATS server URLs.
	NATSServers  string `koanf:"nats_servers" yaml:"nats_servers,omitempty"`
	NATSNKeySeed string `koanf:"nats_nkey_seed" yaml:"nats_nkey_seed,omitempty"`
	TenantID     string `koanf:"tenant_id" yaml:"tenant_id,omitempty"`

	// NodeID identifies this node in subjects and URLs. Default: hostname.
	NodeID string `koanf:"node_id" yaml:"node_id"`

	// MetricsAddr is the listen address for /metrics. Empty disables it.
	MetricsAddr string `koanf:"metrics_addr" yaml:"metrics_addr,omitempty"`

	// SchedulesFile is an optional YAML file of assignments applied at start.
	SchedulesFile string `koanf:"schedules_file" yaml:"schedules_file,omitempty"`
}

// Validation errors returned by Load.
var (
	ErrUnknownStoreBackend = errors.New("store_backend must be bolt or redis")
	ErrRedisAddrRequired   = errors.New("redis_addr is required for the redis store backend")
	ErrNoTransport         = errors.New("either nats_servers, nats_nkey_seed and tenant_id or server_url and api_key are required")
	ErrInvalidTickInterval = errors.New("tick_interval_seconds must be positive")
	ErrInvalidDispatch     = errors.New("dispatch_interval_seconds must be positive")
	ErrInvalidPollInterval = errors.New("poll_interval must be positive")
	ErrNodeIDRequired      = errors.New("node_id is required")
)

// Load reads configuration from the specified YAML file path.
// It applies defaults for optional fields and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional configuration fields.
func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.StoreBackend == "" {
		c.StoreBackend = store.BackendBolt
	}
	if c.TickIntervalSeconds == 0 {
		c.TickIntervalSeconds = 1
	}
	if c.DispatchIntervalSeconds == 0 {
		c.DispatchIntervalSeconds = 5
	}
	if c.PollInterval == 0 {
		c.PollInterval = 60
	}
	if c.JitterSeconds == 0 {
		c.JitterSeconds = 30
	}
	if c.NodeID == "" {
		if host, err := os.Hostname(); err == nil {
			c.NodeID = host
		}
	}
}

// validate checks that required configuration fields are present and valid.
func (c *Config) validate() error {
	switch c.StoreBackend {
	case store.BackendBolt:
	case store.BackendRedis:
		if c.RedisAddr == "" {
			return ErrRedisAddrRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStoreBackend, c.StoreBackend)
	}
	if !c.NATSEnabled() && (c.ServerURL == "" || c.APIKey == "") {
		return ErrNoTransport
	}
	if c.TickIntervalSeconds <= 0 {
		return ErrInvalidTickInterval
	}
	if c.DispatchIntervalSeconds <= 0 {
		return ErrInvalidDispatch
	}
	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if c.NodeID == "" {
		return ErrNodeIDRequired
	}
	return nil
}

// Save writes the configuration to the specified YAML file path.
// The file is created with 0600 permissions (owner read/write only).
func Save(path string, cfg *Config) error {
	data, err := goyaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config to %s: %w", path, err)
	}

	return nil
}

// NATSEnabled returns true if NATS configuration is present.
func (c *Config) NATSEnabled() bool {
	return c.NATSServers != "" && c.NATSNKeySeed != "" && c.TenantID != ""
}

// StoreOptions returns the store settings for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:   c.StoreBackend,
		BoltPath:  filepath.Join(c.DataDir, "schedules.db"),
		RedisAddr: c.RedisAddr,
		RedisDB:   c.RedisDB,
	}
}

// QueuePath is the bbolt file holding undelivered due events.
func (c *Config) QueuePath() string {
	return filepath.Join(c.DataDir, "events.db")
}

// TickInterval returns TickIntervalSeconds as a duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// DispatchInterval returns DispatchIntervalSeconds as a duration.
func (c *Config) DispatchInterval() time.Duration {
	return time.Duration(c.DispatchIntervalSeconds) * time.Second
}

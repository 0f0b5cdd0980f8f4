// Package config handles the planlink.yaml configuration file.
package config

import (
	"fmt"
	"time"
)

// Config represents a planlink.yaml configuration file. Zero values
// fall back to the component defaults applied by Normalize.
type Config struct {
	Channel ChannelConfig `yaml:"channel"`
	Remote  RemoteConfig  `yaml:"remote"`
	Store   StoreConfig   `yaml:"store"`
	Sync    SyncConfig    `yaml:"sync"`
	Consent ConsentConfig `yaml:"consent"`
	Storage StorageConfig `yaml:"storage"`
}

// ChannelConfig configures the framed local channel transport.
type ChannelConfig struct {
	// Network is the socket network, "unix" by default.
	Network string `yaml:"network"`
	// Address is the socket address (unix socket path).
	Address string `yaml:"address"`
	// ConnectTimeout bounds dialing the peer.
	ConnectTimeout Duration `yaml:"connect_timeout"`
	// ExchangeTimeout bounds a full request/response exchange.
	ExchangeTimeout Duration `yaml:"exchange_timeout"`
}

// RemoteConfig configures the backend HTTP transport.
type RemoteConfig struct {
	BaseURL        string            `yaml:"base_url"`
	Timeout        Duration          `yaml:"timeout"`
	ProbeTimeout   Duration          `yaml:"probe_timeout"`
	RetryAttempts  int               `yaml:"retry_attempts"`
	RetryBaseDelay Duration          `yaml:"retry_base_delay"`
	Headers        map[string]string `yaml:"headers,omitempty"`
}

// StoreConfig configures the local data store.
type StoreConfig struct {
	DataDir   string `yaml:"data_dir"`
	BackupDir string `yaml:"backup_dir"`
}

// SyncConfig configures the sync orchestrator.
type SyncConfig struct {
	BulkConcurrency int    `yaml:"bulk_concurrency"`
	Category        string `yaml:"category"`
}

// ConsentConfig configures the permission store.
type ConsentConfig struct {
	StatePath string `yaml:"state_path"`
	// TTLDays bounds grant validity, 30 by default.
	TTLDays int `yaml:"ttl_days"`
}

// StorageConfig selects and configures the storage backends.
type StorageConfig struct {
	// Backend is the active backend name: filesystem, s3, redis or
	// memory.
	Backend    string           `yaml:"backend"`
	Filesystem FilesystemConfig `yaml:"filesystem"`
	S3         S3Config         `yaml:"s3"`
	Redis      RedisConfig      `yaml:"redis"`
}

// FilesystemConfig holds filesystem backend settings.
type FilesystemConfig struct {
	Root string `yaml:"root"`
}

// S3Config holds S3 backend settings.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// RedisConfig holds Redis backend settings.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Normalize fills unset fields with defaults.
func (c *Config) Normalize() {
	if c.Channel.Network == "" {
		c.Channel.Network = "unix"
	}
	if c.Sync.BulkConcurrency <= 0 {
		c.Sync.BulkConcurrency = 3
	}
	if c.Consent.TTLDays <= 0 {
		c.Consent.TTLDays = 30
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "memory"
	}
}

// PermissionTTL returns the consent TTL as a duration.
func (c *Config) PermissionTTL() time.Duration {
	days := c.Consent.TTLDays
	if days <= 0 {
		days = 30
	}
	return time.Duration(days) * 24 * time.Hour
}

// Validate checks cross-field requirements for the selected backend.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "filesystem":
		if c.Storage.Filesystem.Root == "" {
			return fmt.Errorf("storage backend %q requires filesystem.root", c.Storage.Backend)
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage backend %q requires s3.bucket", c.Storage.Backend)
		}
	case "redis":
		if c.Storage.Redis.URL == "" {
			return fmt.Errorf("storage backend %q requires redis.url", c.Storage.Backend)
		}
	case "memory", "":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}

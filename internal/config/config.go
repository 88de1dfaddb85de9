package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures credentials, polling cadence, dispatch sizing, and storage.
type Config struct {
	Credentials CredentialsConfig `yaml:"credentials"`
	Polling     PollingConfig     `yaml:"polling"`
	Dispatch    DispatchConfig    `yaml:"dispatch"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type CredentialsConfig struct {
	// X/Twitter API bearer token. If empty, read from env X_BEARER_TOKEN.
	// A blank token disables polling entirely: cycles become no-ops.
	BearerToken string `yaml:"bearerToken"`
}

type PollingConfig struct {
	// Interval between reconciliation cycles.
	Interval time.Duration `yaml:"interval"`
	// Workers bounds concurrent per-account/per-tweet reconciliation
	// within one cycle.
	Workers int `yaml:"workers"`
	// RequestTimeout bounds each remote call.
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

type DispatchConfig struct {
	// Workers on the dispatcher's own pool, decoupled from polling.
	Workers int `yaml:"workers"`
	// QueueSize bounds pending triggers; the oldest is dropped when full.
	QueueSize int `yaml:"queueSize"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type MetricsConfig struct {
	// Addr for the /metrics server, e.g. ":9090". Empty disables it.
	Addr string `yaml:"addr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Credentials: CredentialsConfig{BearerToken: ""},
		Polling: PollingConfig{
			Interval:       15 * time.Minute,
			Workers:        10,
			RequestTimeout: 15 * time.Second,
		},
		Dispatch: DispatchConfig{Workers: 4, QueueSize: 256},
		Storage:  StorageConfig{DBPath: "./tweetwatch.db"},
		Metrics:  MetricsConfig{Addr: ""},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Credentials.BearerToken == "" {
		c.Credentials.BearerToken = os.Getenv("X_BEARER_TOKEN")
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = os.Getenv("METRICS_ADDR")
	}
}

// Normalize clamps zero or negative sizing values back to defaults so a
// sparse config file still yields a runnable setup.
func (c *Config) Normalize() {
	def := Default()
	if c.Polling.Interval <= 0 {
		c.Polling.Interval = def.Polling.Interval
	}
	if c.Polling.Workers <= 0 {
		c.Polling.Workers = def.Polling.Workers
	}
	if c.Polling.RequestTimeout <= 0 {
		c.Polling.RequestTimeout = def.Polling.RequestTimeout
	}
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = def.Dispatch.Workers
	}
	if c.Dispatch.QueueSize <= 0 {
		c.Dispatch.QueueSize = def.Dispatch.QueueSize
	}
	if c.Storage.DBPath == "" {
		c.Storage.DBPath = def.Storage.DBPath
	}
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	cfg.Normalize()
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

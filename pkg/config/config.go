package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pario-ai/larder/pkg/models"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. LARDER_UPSTREAM.
const EnvPrefix = "LARDER_"

// Storage drivers.
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config holds all larder configuration.
type Config struct {
	Listen   string `yaml:"listen" env:"LISTEN"`
	Upstream string `yaml:"upstream" env:"UPSTREAM"`
	// Version tags both cache partitions; bumping it evicts the previous
	// partitions on the next activation.
	Version string `yaml:"version" env:"VERSION"`
	DBPath  string `yaml:"db_path" env:"DB_PATH"`
	Storage string `yaml:"storage" env:"STORAGE"`

	StaticAssets  []string `yaml:"static_assets" env:"STATIC_ASSETS"`
	APIPrefixes   []string `yaml:"api_prefixes" env:"API_PREFIXES"`
	OfflinePage   string   `yaml:"offline_page" env:"OFFLINE_PAGE"`
	VaryHeaders   []string `yaml:"vary_headers" env:"VARY_HEADERS"`
	SkipWaiting   bool     `yaml:"skip_waiting" env:"SKIP_WAITING"`
	ControlPrefix string   `yaml:"control_prefix" env:"CONTROL_PREFIX"`

	Fetch     FetchConfig          `yaml:"fetch" envPrefix:"FETCH_"`
	Sync      SyncConfig           `yaml:"sync" envPrefix:"SYNC_"`
	SyncLog   models.SyncLogConfig `yaml:"sync_log" envPrefix:"SYNC_LOG_"`
	Telemetry TelemetryConfig      `yaml:"telemetry" envPrefix:"OTEL_"`
}

// FetchConfig controls the upstream HTTP client.
// A zero Timeout means no client-side timeout.
type FetchConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// SyncConfig controls connectivity probing and deferred replay.
type SyncConfig struct {
	Tag           string        `yaml:"tag" env:"TAG"`
	ProbeURL      string        `yaml:"probe_url" env:"PROBE_URL"`
	ProbeInterval time.Duration `yaml:"probe_interval" env:"PROBE_INTERVAL"`
	ProbeTimeout  time.Duration `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`
}

// TelemetryConfig controls OTLP trace export. Tracing is off when Endpoint is empty.
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen:   ":8080",
		Upstream: "http://localhost:3000",
		Version:  "v1.0.0",
		DBPath:   "larder.db",
		Storage:  StorageSQLite,
		StaticAssets: []string{
			"/",
			"/index.html",
			"/manifest.json",
			"/src/css/main.css",
			"/src/css/components.css",
			"/src/css/responsive.css",
			"/src/js/app.js",
			"/src/js/utils.js",
			"/src/js/storage.js",
			"/src/js/camera.js",
			"/src/js/ai-vision.js",
			"/src/js/nutrition.js",
			"/src/js/dashboard.js",
			"/src/components/camera-modal.js",
			"/src/components/food-entry.js",
			"/src/components/chart-widgets.js",
			"/offline.html",
		},
		APIPrefixes: []string{
			"/api/nutrition/",
			"/api/ai-vision/",
			"/api/food-data/",
		},
		OfflinePage:   "/offline.html",
		SkipWaiting:   true,
		ControlPrefix: "/_larder/",
		Sync: SyncConfig{
			Tag:           "food-data-sync",
			ProbeInterval: 15 * time.Second,
			ProbeTimeout:  3 * time.Second,
		},
		SyncLog: models.SyncLogConfig{
			Enabled:       false,
			DBPath:        "larder-sync.db",
			RetentionDays: 30,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "larder",
		},
	}
}

// Load reads a YAML config file, expands environment variables and applies
// LARDER_* overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields Default with
// environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := ApplyEnv(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return Load(path)
}

// ApplyEnv overrides cfg fields from LARDER_* environment variables.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks the fields the dispatcher cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("version is required")
	}
	u, err := url.Parse(c.Upstream)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid upstream %q", c.Upstream)
	}
	switch c.Storage {
	case StorageSQLite, StorageMemory:
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}
	if !strings.HasPrefix(c.ControlPrefix, "/") || !strings.HasSuffix(c.ControlPrefix, "/") {
		return fmt.Errorf("control_prefix must start and end with /")
	}
	if c.OfflinePage != "" && !slices.Contains(c.StaticAssets, c.OfflinePage) {
		return fmt.Errorf("offline_page %q must be listed in static_assets", c.OfflinePage)
	}
	return nil
}

// StaticPartition is the label of the current static cache partition.
func (c *Config) StaticPartition() string {
	return "static-" + c.Version
}

// DynamicPartition is the label of the current dynamic cache partition.
func (c *Config) DynamicPartition() string {
	return "dynamic-" + c.Version
}

// ProbeURL returns the connectivity probe target, defaulting to the upstream origin.
func (c *Config) ProbeURL() string {
	if c.Sync.ProbeURL != "" {
		return c.Sync.ProbeURL
	}
	return c.Upstream
}

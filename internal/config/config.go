// Package config loads and validates mirror configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/inconceivableza/ghosts-toaster-site-generator/internal/rewrite"
)

// Storage backends.
const (
	BackendLocal  = "local"
	BackendMemory = "memory"
	BackendGCS    = "gcs"
)

// Config captures all mirror configuration knobs loaded via Viper.
type Config struct {
	Domains DomainsConfig `mapstructure:"domains"`
	Rewrite RewriteConfig `mapstructure:"rewrite"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
	Server  ServerConfig  `mapstructure:"server"`
}

// DomainsConfig holds the raw domain values. Missing values are not errors:
// the mirror then runs with remapping disabled.
type DomainsConfig struct {
	Source     string `mapstructure:"source"`
	Alternates string `mapstructure:"alternates"`
	Production string `mapstructure:"production"`
	Fetch      string `mapstructure:"fetch"`
}

// RewriteConfig selects how mirrored content is rewritten.
type RewriteConfig struct {
	Mode     string `mapstructure:"mode"`
	Residual bool   `mapstructure:"residual"`
}

// CrawlerConfig governs the crawl that feeds the mirror.
type CrawlerConfig struct {
	Seeds          []string `mapstructure:"seeds"`
	UserAgent      string   `mapstructure:"user_agent"`
	Concurrency    int      `mapstructure:"concurrency"`
	DelayMs        int      `mapstructure:"delay_ms"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	MaxDepth       int      `mapstructure:"max_depth"`
	MaxBodyBytes   int      `mapstructure:"max_body_bytes"`
	// HostHeader overrides the Host header sent to the fetch endpoint.
	HostHeader string `mapstructure:"host_header"`
	// ForwardedProto is sent as X-Forwarded-Proto when set.
	ForwardedProto string `mapstructure:"forwarded_proto"`
	// RequestsPerSecond paces requests per host; zero disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// StorageConfig selects where mirrored resources are written.
type StorageConfig struct {
	Backend      string `mapstructure:"backend"`
	BaseDir      string `mapstructure:"base_dir"`
	GCSBucket    string `mapstructure:"gcs_bucket"`
	Prefix       string `mapstructure:"prefix"`
	CacheControl string `mapstructure:"cache_control"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the optional health and metrics server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load builds a Config from disk/environment. Environment variables use the
// MIRROR_ prefix (MIRROR_CRAWLER_CONCURRENCY); the domain values also honour
// SOURCE_DOMAIN, ALT_DOMAINS, PRODUCTION_DOMAIN and FETCH_DOMAIN.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindDomainEnv(v); err != nil {
		return Config{}, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("domains.source", "")
	v.SetDefault("domains.alternates", "")
	v.SetDefault("domains.production", "")
	v.SetDefault("domains.fetch", "")
	v.SetDefault("rewrite.mode", string(rewrite.ModeStrip))
	v.SetDefault("rewrite.residual", true)
	v.SetDefault("crawler.seeds", []string{})
	v.SetDefault("crawler.user_agent", "ghost-mirror/0.1")
	v.SetDefault("crawler.concurrency", 4)
	v.SetDefault("crawler.delay_ms", 0)
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.max_depth", 0)
	v.SetDefault("crawler.max_body_bytes", 32<<20)
	v.SetDefault("crawler.host_header", "")
	v.SetDefault("crawler.forwarded_proto", "")
	v.SetDefault("crawler.requests_per_second", 0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.base_dir", "static")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.cache_control", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 9090)
}

var domainEnv = map[string]string{
	"domains.source":     "SOURCE_DOMAIN",
	"domains.alternates": "ALT_DOMAINS",
	"domains.production": "PRODUCTION_DOMAIN",
	"domains.fetch":      "FETCH_DOMAIN",
}

// bindDomainEnv lets the prefixed variable win over the bare one.
func bindDomainEnv(v *viper.Viper) error {
	for key, bare := range domainEnv {
		prefixed := "MIRROR_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, bare); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if _, err := rewrite.ParseMode(c.Rewrite.Mode); err != nil {
		return fmt.Errorf("rewrite.mode: %w", err)
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.DelayMs < 0 {
		return fmt.Errorf("crawler.delay_ms must be >= 0")
	}
	if c.Crawler.MaxDepth < 0 {
		return fmt.Errorf("crawler.max_depth must be >= 0")
	}
	if c.Crawler.MaxBodyBytes < 0 {
		return fmt.Errorf("crawler.max_body_bytes must be >= 0")
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("crawler.requests_per_second must be >= 0")
	}
	switch strings.ToLower(c.Crawler.ForwardedProto) {
	case "", "http", "https":
	default:
		return fmt.Errorf("crawler.forwarded_proto must be http or https")
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case BackendGCS:
		if strings.TrimSpace(c.Storage.GCSBucket) == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be one of %s, %s, %s", BackendLocal, BackendMemory, BackendGCS)
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	return nil
}

// RewriteMode returns the validated rewrite mode.
func (c Config) RewriteMode() rewrite.Mode {
	m, err := rewrite.ParseMode(c.Rewrite.Mode)
	if err != nil {
		return rewrite.ModeStrip
	}
	return m
}

// Timeout converts the crawler timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// Delay converts the per-request crawl delay into a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Crawler.DelayMs) * time.Millisecond
}

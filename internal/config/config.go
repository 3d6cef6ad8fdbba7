// Package config loads the service's configuration: a typed Config struct
// populated from built-in defaults, then overridden by environment
// variables, via koanf's layered-provider merge.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the full, flattened configuration surface (§6.2). Struct tags
// double as koanf paths (dot-separated) and the env-var mapping basis.
type Config struct {
	Session    SessionConfig    `koanf:"session"`
	YouTube    YouTubeConfig    `koanf:"youtube"`
	LLM        LLMConfig        `koanf:"llm"`
	Cache      CacheConfig      `koanf:"cache"`
	Server     ServerConfig     `koanf:"server"`
	DB         DBConfig         `koanf:"db"`
	Ingestion  IngestionConfig  `koanf:"ingestion"`
	Sweep      SweepConfig      `koanf:"sweep"`
	Embedding  EmbeddingConfig  `koanf:"embedding"`
	Log        LogConfig        `koanf:"log"`
	Features   FeaturesConfig   `koanf:"features"`
}

// SessionConfig holds C9's materialization/sliding-expiration settings.
type SessionConfig struct {
	TTLMinutes        int  `koanf:"ttl-minutes"`
	SlidingExpiration bool `koanf:"sliding-expiration"`
}

// YouTubeConfig holds C3/C6's per-search caps and quota governor settings.
type YouTubeConfig struct {
	MaxQueriesPerSearch int      `koanf:"max-queries-per-search"`
	MaxResultsPerQuery  int      `koanf:"max-results-per-query"`
	DailyQuota          int64    `koanf:"daily-quota"`
	DowngradeThreshold  float64  `koanf:"downgrade-threshold"`
	APIKeys             []string `koanf:"api-keys"`
	FetchVideoStats     bool     `koanf:"fetch-video-stats"`
	Enabled             bool     `koanf:"enabled"`
}

// LLMConfig holds C2/C5's token governor and chat-completions client
// settings.
type LLMConfig struct {
	DailyTokenBudget  int64   `koanf:"daily-token-budget"`
	PerRequestBudget  int64   `koanf:"per-request-budget"`
	FallbackThreshold float64 `koanf:"fallback-threshold"`
	Model             string  `koanf:"model"`
	APIKey            string  `koanf:"api-key"`
	BaseURL           string  `koanf:"base-url"`
	Enabled           bool    `koanf:"enabled"`
}

// CacheConfig holds bounded-cache settings. Only L1SessionSize is read by the
// service (as the session L1 capacity); C4's L1 and L2 and the
// channel-metadata cache use fixed sizes and TTLs from their own packages, so
// the other fields have no effect.
type CacheConfig struct {
	L1QueryDigestSize         int `koanf:"l1-query-digest-size"`
	L1SessionSize             int `koanf:"l1-session-size"`
	ChannelMetadataSize       int `koanf:"channel-metadata-size"`
	ChannelMetadataTTLMinutes int `koanf:"channel-metadata-ttl-minutes"`
	L2TTLHours                int `koanf:"l2-ttl-hours"`
}

// ServerConfig holds the HTTP server's listen address and limits.
type ServerConfig struct {
	HTTPAddr            string `koanf:"http-addr"`
	ReadTimeoutSeconds  int    `koanf:"read-timeout-seconds"`
	WriteTimeoutSeconds int    `koanf:"write-timeout-seconds"`
	MaxBodyBytes        int64  `koanf:"max-body-bytes"`
}

// DBConfig holds the PostgreSQL connection settings.
type DBConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int    `koanf:"max-conns"`
}

// IngestionConfig holds C11's worker pool sizing and the per-creator
// embedding token cost charged against the token governor.
type IngestionConfig struct {
	WorkerCount       int   `koanf:"worker-count"`
	QueueSize         int   `koanf:"queue-size"`
	EmbedBudgetTokens int64 `koanf:"embed-budget-tokens"`
	Enabled           bool  `koanf:"enabled"`
}

// SweepConfig holds the expired-session sweeper's period.
type SweepConfig struct {
	IntervalMinutes int `koanf:"interval-minutes"`
}

// EmbeddingConfig holds C11's embedding provider settings.
type EmbeddingConfig struct {
	Dimensions int    `koanf:"dimensions"`
	Model      string `koanf:"model"`
	APIKey     string `koanf:"api-key"`
	BaseURL    string `koanf:"base-url"`
}

// LogConfig holds the zerolog level.
type LogConfig struct {
	Level string `koanf:"level"`
}

// FeaturesConfig is reserved for future explicit feature-flag overrides;
// currently all four flags (§6.3) derive from credentials + the
// per-component Enabled fields above.
type FeaturesConfig struct{}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config populated with the defaults table from §6.2.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			TTLMinutes:        30,
			SlidingExpiration: true,
		},
		YouTube: YouTubeConfig{
			MaxQueriesPerSearch: 5,
			MaxResultsPerQuery:  50,
			DailyQuota:          10_000,
			DowngradeThreshold:  0.8,
			FetchVideoStats:     false,
		},
		LLM: LLMConfig{
			DailyTokenBudget:  1_000_000,
			PerRequestBudget:  2_000,
			FallbackThreshold: 0.9,
			Model:             "gpt-4o-mini",
		},
		Cache: CacheConfig{
			L1QueryDigestSize:         1000,
			L1SessionSize:             1000,
			ChannelMetadataSize:       2000,
			ChannelMetadataTTLMinutes: 60,
			L2TTLHours:                24,
		},
		Server: ServerConfig{
			HTTPAddr:            ":8080",
			ReadTimeoutSeconds:  15,
			WriteTimeoutSeconds: 30,
			MaxBodyBytes:        1 << 20,
		},
		DB: DBConfig{
			MaxConns: 10,
		},
		Ingestion: IngestionConfig{
			WorkerCount:       4,
			QueueSize:         256,
			EmbedBudgetTokens: 500,
		},
		Sweep: SweepConfig{
			IntervalMinutes: 5,
		},
		Embedding: EmbeddingConfig{
			Dimensions: 1536,
			Model:      "text-embedding-3-small",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load builds a Config by merging, in order: built-in defaults, then
// environment variables (CREATORDISCO_SECTION_KEY: the first underscore after
// the prefix separates the section, later underscores become hyphens).
// Environment variables always win.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	envProvider := env.Provider("CREATORDISCO_", ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if keys := os.Getenv("CREATORDISCO_YOUTUBE_API_KEYS"); keys != "" {
		cfg.YouTube.APIKeys = splitTrim(keys)
	}

	return cfg, nil
}

// envTransform maps CREATORDISCO_SESSION_TTL_MINUTES -> session.ttl-minutes.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "CREATORDISCO_"))
	parts := strings.SplitN(key, "_", 2)
	if len(parts) != 2 {
		return key
	}
	section, rest := parts[0], parts[1]
	return section + "." + strings.ReplaceAll(rest, "_", "-")
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Get returns the process-wide configuration, loading it on first call.
// Load failures fall back to defaults so the service can still start and
// degrade features per §6.3 rather than refuse to boot.
func Get() *Config {
	configOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		configMu.Lock()
		globalConfig = cfg
		configMu.Unlock()
	})

	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}

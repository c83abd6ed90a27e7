// Package config handles configuration loading for chartscout.
// It supports YAML config files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for every environment override.
const EnvPrefix = "CHARTSCOUT"

// Config represents the complete application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"      yaml:"llm"`
	Screener ScreenerConfig `mapstructure:"screener" yaml:"screener"`
	Sources  SourcesConfig  `mapstructure:"sources"  yaml:"sources"`
	News     NewsConfig     `mapstructure:"news"     yaml:"news"`
	API      APIConfig      `mapstructure:"api"      yaml:"api"`
	Logging  LoggingConfig  `mapstructure:"logging"  yaml:"logging"`
	Recorder RecorderConfig `mapstructure:"recorder" yaml:"recorder"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
}

// LLMConfig holds the chart-analysis model configuration.
type LLMConfig struct {
	Primary     string  `mapstructure:"primary"      yaml:"primary"` // "gemini" or "openai"
	GeminiKey   string  `mapstructure:"gemini_key"   yaml:"gemini_key"`
	OpenAIKey   string  `mapstructure:"openai_key"   yaml:"openai_key"`
	GeminiModel string  `mapstructure:"gemini_model" yaml:"gemini_model"`
	OpenAIModel string  `mapstructure:"openai_model" yaml:"openai_model"`
	Temperature float64 `mapstructure:"temperature"  yaml:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"   yaml:"max_tokens"`
	TimeoutSec  int     `mapstructure:"timeout_sec"  yaml:"timeout_sec"`
}

// ScreenerConfig selects a threshold preset and optionally overrides
// individual thresholds. Nil overrides keep the preset's value.
type ScreenerConfig struct {
	Preset string `mapstructure:"preset" yaml:"preset"` // "classic", "momentum", "wide"
	Market string `mapstructure:"market" yaml:"market"` // "KOSPI", "KOSDAQ", "ALL"
	Seed   int64  `mapstructure:"seed"   yaml:"seed"`   // 0 = time-based

	MinVolume         *int64   `mapstructure:"min_volume"          yaml:"min_volume,omitempty"`
	MinPrice          *float64 `mapstructure:"min_price"           yaml:"min_price,omitempty"`
	MinPctChange      *float64 `mapstructure:"min_pct_change"      yaml:"min_pct_change,omitempty"`
	MaxPctChange      *float64 `mapstructure:"max_pct_change"      yaml:"max_pct_change,omitempty"` // 0 = unbounded
	SamplePoolSize    *int     `mapstructure:"sample_pool_size"    yaml:"sample_pool_size,omitempty"`
	MinHistoryBars    *int     `mapstructure:"min_history_bars"    yaml:"min_history_bars,omitempty"`
	VolumeSurgeRatio  *float64 `mapstructure:"volume_surge_ratio"  yaml:"volume_surge_ratio,omitempty"` // 0 = disabled
	ShortWindow       *int     `mapstructure:"short_window"        yaml:"short_window,omitempty"`
	LongWindow        *int     `mapstructure:"long_window"         yaml:"long_window,omitempty"`
	TrendWindow       *int     `mapstructure:"trend_window"        yaml:"trend_window,omitempty"` // 0 = disabled
	RequireBullishBar *bool    `mapstructure:"require_bullish_bar" yaml:"require_bullish_bar,omitempty"`
	MaxCandidates     *int     `mapstructure:"max_candidates"      yaml:"max_candidates,omitempty"` // 0 = unlimited
	HistoryDays       *int     `mapstructure:"history_days"        yaml:"history_days,omitempty"`
}

// SourcesConfig holds market-data source settings.
type SourcesConfig struct {
	NaverBaseURL    string  `mapstructure:"naver_base_url"    yaml:"naver_base_url"`
	YahooBaseURL    string  `mapstructure:"yahoo_base_url"    yaml:"yahoo_base_url"`
	UserAgent       string  `mapstructure:"user_agent"        yaml:"user_agent"`
	TimeoutSec      int     `mapstructure:"timeout_sec"       yaml:"timeout_sec"`
	RequestsPerSec  float64 `mapstructure:"requests_per_sec"  yaml:"requests_per_sec"`
	Burst           int     `mapstructure:"burst"             yaml:"burst"`
	PageConcurrency int     `mapstructure:"page_concurrency"  yaml:"page_concurrency"`
	MaxPages        int     `mapstructure:"max_pages"         yaml:"max_pages"` // 0 = all pages
	AnalyzeDays     int     `mapstructure:"analyze_days"      yaml:"analyze_days"`
}

// NewsConfig holds RSS settings for the market-theme feature.
type NewsConfig struct {
	Feeds        []string `mapstructure:"feeds"         yaml:"feeds"`
	MaxHeadlines int      `mapstructure:"max_headlines" yaml:"max_headlines"`
	CacheTTL     int      `mapstructure:"cache_ttl"     yaml:"cache_ttl"` // seconds
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host          string   `mapstructure:"host"            yaml:"host"`
	Port          int      `mapstructure:"port"            yaml:"port"`
	CORSOrigins   []string `mapstructure:"cors_origins"    yaml:"cors_origins"`
	RunTimeoutSec int      `mapstructure:"run_timeout_sec" yaml:"run_timeout_sec"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// RecorderConfig selects where completed runs are stored.
type RecorderConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // "none" or "sqlite"
	Path   string `mapstructure:"path"   yaml:"path"`
}

// ScheduleConfig holds settings for the unattended screening job.
type ScheduleConfig struct {
	Cron    string `mapstructure:"cron"    yaml:"cron"` // six-field, seconds first
	Analyze bool   `mapstructure:"analyze" yaml:"analyze"`
	Theme   bool   `mapstructure:"theme"   yaml:"theme"`
}

// screenerOverrideKeys are bound explicitly so env overrides work even though
// they have no default.
var screenerOverrideKeys = []string{
	"min_volume", "min_price", "min_pct_change", "max_pct_change",
	"sample_pool_size", "min_history_bars", "volume_surge_ratio",
	"short_window", "long_window", "trend_window", "require_bullish_bar",
	"max_candidates", "history_days",
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.chartscout/config.yaml (home directory)
//  3. /etc/chartscout/config.yaml (system)
//
// Environment variables override config file values.
// Format: CHARTSCOUT_<SECTION>_<KEY>, e.g., CHARTSCOUT_LLM_GEMINI_KEY
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".chartscout"))
	v.AddConfigPath("/etc/chartscout")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return decode(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v)
}

// Marshal renders the effective configuration as YAML with secrets masked.
func Marshal(cfg *Config) ([]byte, error) {
	c := *cfg
	if c.LLM.GeminiKey != "" {
		c.LLM.GeminiKey = maskKey(c.LLM.GeminiKey)
	}
	if c.LLM.OpenAIKey != "" {
		c.LLM.OpenAIKey = maskKey(c.LLM.OpenAIKey)
	}
	out, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return out, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, k := range screenerOverrideKeys {
		_ = v.BindEnv("screener." + k)
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override sensitive values from environment
	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// LLM defaults
	v.SetDefault("llm.primary", "gemini")
	v.SetDefault("llm.gemini_model", "gemini-2.0-flash")
	v.SetDefault("llm.openai_model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 2048)
	v.SetDefault("llm.timeout_sec", 60)

	// Screener defaults
	v.SetDefault("screener.preset", "classic")
	v.SetDefault("screener.market", "ALL")
	v.SetDefault("screener.seed", 0)

	// Source defaults
	v.SetDefault("sources.naver_base_url", "https://finance.naver.com")
	v.SetDefault("sources.yahoo_base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("sources.user_agent", "Mozilla/5.0 (compatible; chartscout/1.0)")
	v.SetDefault("sources.timeout_sec", 15)
	v.SetDefault("sources.requests_per_sec", 4.0)
	v.SetDefault("sources.burst", 4)
	v.SetDefault("sources.page_concurrency", 4)
	v.SetDefault("sources.max_pages", 0)
	v.SetDefault("sources.analyze_days", 200)

	// News defaults
	v.SetDefault("news.feeds", []string{
		"https://www.mk.co.kr/rss/50200011/",
		"https://www.hankyung.com/feed/finance",
		"https://www.yna.co.kr/rss/economy.xml",
	})
	v.SetDefault("news.max_headlines", 30)
	v.SetDefault("news.cache_ttl", 900) // 15 minutes

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:8080"})
	v.SetDefault("api.run_timeout_sec", 600)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Recorder defaults
	v.SetDefault("recorder.driver", "none")
	v.SetDefault("recorder.path", filepath.Join(homeDir(), ".chartscout", "runs.db"))

	// Schedule defaults: ten minutes after the KRX close, weekdays
	v.SetDefault("schedule.cron", "0 40 15 * * 1-5")
	v.SetDefault("schedule.analyze", true)
	v.SetDefault("schedule.theme", false)
}

// overrideFromEnv explicitly reads sensitive keys from environment variables.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv(EnvPrefix + "_LLM_GEMINI_KEY"); key != "" {
		cfg.LLM.GeminiKey = key
	}
	if key := os.Getenv(EnvPrefix + "_LLM_OPENAI_KEY"); key != "" {
		cfg.LLM.OpenAIKey = key
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

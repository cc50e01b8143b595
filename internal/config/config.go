// Package config loads the service configuration from a YAML file with
// environment-variable overrides for deploy-time secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAddress        = ":8080"
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 10 * time.Minute // generation runs are slow
	defaultCheckoutPause  = time.Second
	defaultRetryDelay     = 2 * time.Second
	defaultMaxRetries     = 3
	defaultMaxCandidates  = 5
	defaultSearchCount    = 20
	defaultClientTimeout  = 2 * time.Minute
	defaultImagePollEvery = 2 * time.Second
	defaultImageMaxPolls  = 90
)

type Config struct {
	Debug    bool           `yaml:"debug"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	LLM      LLMConfig      `yaml:"llm"`
	Search   SearchConfig   `yaml:"search"`
	Image    ImageConfig    `yaml:"image"`
	Trending TrendingConfig `yaml:"trending"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

type ServerConfig struct {
	Address      string        `yaml:"address"`       // e.g., ":8080"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // Default: 10m, requests run the full pipeline
	CORSOrigins  []string      `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LLMConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type SearchConfig struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Count   int           `yaml:"count"` // results per query, default 20
	Timeout time.Duration `yaml:"timeout"`
}

type ImageConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Token        string        `yaml:"token"`
	ResultPrefix string        `yaml:"result_prefix"` // public URL prefix for finished assets
	Mode         string        `yaml:"mode"`          // text-to-image or template-edit
	Width        int           `yaml:"width"`
	Height       int           `yaml:"height"`
	Scale        float64       `yaml:"scale"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
	Timeout      time.Duration `yaml:"timeout"`
}

type TrendingConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type PipelineConfig struct {
	MaxCandidateAttempts int           `yaml:"max_candidate_attempts"`
	CandidatePause       time.Duration `yaml:"candidate_pause"`
	MaxRetries           int           `yaml:"max_retries"`
	RetryDelay           time.Duration `yaml:"retry_delay"`
	ConsumeOnFailure     string        `yaml:"consume_on_failure"` // unusable-only, always, never
}

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = defaultClientTimeout
	}
	if cfg.Search.Count == 0 {
		cfg.Search.Count = defaultSearchCount
	}
	if cfg.Search.Timeout == 0 {
		cfg.Search.Timeout = 30 * time.Second
	}
	if cfg.Image.PollInterval == 0 {
		cfg.Image.PollInterval = defaultImagePollEvery
	}
	if cfg.Image.MaxPolls == 0 {
		cfg.Image.MaxPolls = defaultImageMaxPolls
	}
	if cfg.Trending.Timeout == 0 {
		cfg.Trending.Timeout = 15 * time.Second
	}
	if cfg.Pipeline.MaxCandidateAttempts == 0 {
		cfg.Pipeline.MaxCandidateAttempts = defaultMaxCandidates
	}
	if cfg.Pipeline.CandidatePause == 0 {
		cfg.Pipeline.CandidatePause = defaultCheckoutPause
	}
	if cfg.Pipeline.MaxRetries == 0 {
		cfg.Pipeline.MaxRetries = defaultMaxRetries
	}
	if cfg.Pipeline.RetryDelay == 0 {
		cfg.Pipeline.RetryDelay = defaultRetryDelay
	}
	if cfg.Pipeline.ConsumeOnFailure == "" {
		cfg.Pipeline.ConsumeOnFailure = "unusable-only"
	}
}

func overrideWithEnvVars(cfg *Config) {
	if appDebug := os.Getenv("APP_DEBUG"); appDebug != "" {
		cfg.Debug = parseBool(appDebug)
	}
	if port := os.Getenv("NOTEGEN_PORT"); port != "" {
		cfg.Server.Address = ":" + port
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			cfg.Database.Port = n
		}
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if url := os.Getenv("LLM_BASE_URL"); url != "" {
		cfg.LLM.BaseURL = url
	}
	if key := os.Getenv("SEARCH_API_KEY"); key != "" {
		cfg.Search.APIKey = key
	}
	if token := os.Getenv("IMAGE_TOKEN"); token != "" {
		cfg.Image.Token = token
	}
}

// Validate checks the loaded configuration. Called after defaults and env
// overrides have been applied.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.DBName == "" {
		return errors.New("database.dbname is required")
	}
	if c.LLM.BaseURL == "" {
		return errors.New("llm.base_url is required")
	}
	if c.LLM.APIKey == "" {
		return errors.New("llm.api_key is required")
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}
	if c.Search.URL == "" {
		return errors.New("search.url is required")
	}
	if c.Image.BaseURL == "" {
		return errors.New("image.base_url is required")
	}
	if c.Image.Token == "" {
		return errors.New("image.token is required")
	}
	switch c.Image.Mode {
	case "", "text-to-image", "template-edit":
	default:
		return fmt.Errorf("image.mode must be text-to-image or template-edit, got %q", c.Image.Mode)
	}
	if c.Trending.Enabled && c.Trending.URL == "" {
		return errors.New("trending.url is required when trending.enabled is true")
	}
	switch c.Pipeline.ConsumeOnFailure {
	case "unusable-only", "always", "never":
	default:
		return fmt.Errorf("pipeline.consume_on_failure must be one of unusable-only, always, never; got %q",
			c.Pipeline.ConsumeOnFailure)
	}
	return nil
}

// parseBool returns true for "true", "1", "yes" (case-insensitive).
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

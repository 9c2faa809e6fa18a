// Package config loads settings from config/<env>.yaml, a .env file and
// environment variables, in that order of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultEnvironment is used when FLIGHTSEARCH_ENV is unset.
const DefaultEnvironment = "development"

// Known provider names, in default failover order.
var knownProviders = []string{"amadeus", "aviationstack", "static"}

type Config struct {
	Environment   string              `yaml:"environment"`
	Lookup        LookupConfig        `yaml:"lookup"`
	Amadeus       AmadeusConfig       `yaml:"amadeus"`
	AviationStack AviationStackConfig `yaml:"aviationstack"`
	Search        SearchConfig        `yaml:"search"`
	Index         IndexConfig         `yaml:"index"`
	Storage       StorageConfig       `yaml:"storage"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type LookupConfig struct {
	Providers  []string          `yaml:"providers"`
	CacheTTL   time.Duration     `yaml:"cache_ttl"`
	RateLimits []RateLimitConfig `yaml:"rate_limits"`
}

type RateLimitConfig struct {
	Provider string        `yaml:"provider"`
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

type AmadeusConfig struct {
	BaseURL      string        `yaml:"base_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Timeout      time.Duration `yaml:"timeout"`
}

type AviationStackConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

type SearchConfig struct {
	QuietPeriod    time.Duration `yaml:"quiet_period"`
	MinQueryLength int           `yaml:"min_query_length"`
}

type IndexConfig struct {
	Capacity   int    `yaml:"capacity"`
	StorageKey string `yaml:"storage_key"`
}

type StorageConfig struct {
	Type string `yaml:"type"` // "memory" or "file"
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Default returns a configuration that works without any file: the embedded
// dataset only, in-memory storage, text logs.
func Default() Config {
	return Config{
		Environment: DefaultEnvironment,
		Lookup: LookupConfig{
			Providers: slices.Clone(knownProviders),
			CacheTTL:  5 * time.Minute,
		},
		Amadeus: AmadeusConfig{
			BaseURL: "https://test.api.amadeus.com",
			Timeout: 10 * time.Second,
		},
		Search: SearchConfig{
			QuietPeriod:    300 * time.Millisecond,
			MinQueryLength: 2,
		},
		Index: IndexConfig{
			Capacity:   100,
			StorageKey: "flight-search.locations.v1",
		},
		Storage: StorageConfig{
			Type: "memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func findProjectRoot(start string) (string, error) {
	dir := start
	for {
		if info, err := os.Stat(filepath.Join(dir, "config")); err == nil && info.IsDir() {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not find project root (no config directory found)")
		}
		dir = parent
	}
}

// Load reads the configuration for env, or for FLIGHTSEARCH_ENV when env is
// empty, starting the project root search from the working directory.
func Load(env string) (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return loadFrom(wd, env)
}

func loadFrom(start, env string) (*Config, error) {
	cfg := Default()

	root, rootErr := findProjectRoot(start)
	if rootErr == nil {
		_ = godotenv.Load(filepath.Join(root, ".env"))
	} else {
		_ = godotenv.Load()
	}

	if env == "" {
		env = os.Getenv("FLIGHTSEARCH_ENV")
	}
	if env == "" {
		env = DefaultEnvironment
	}

	if rootErr == nil {
		path, err := configPath(root, env)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
		if cfg.Storage.Path != "" && !filepath.IsAbs(cfg.Storage.Path) {
			cfg.Storage.Path = filepath.Join(root, cfg.Storage.Path)
		}
	}
	cfg.Environment = env

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// configPath prefers <env>.yaml and falls back to <env>.yml.
func configPath(root, env string) (string, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(root, "config", env+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("config: no config file for environment %q in %s", env, filepath.Join(root, "config"))
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AMADEUS_CLIENT_ID"); v != "" {
		c.Amadeus.ClientID = v
	}
	if v := os.Getenv("AMADEUS_CLIENT_SECRET"); v != "" {
		c.Amadeus.ClientSecret = v
	}
	if v := os.Getenv("AMADEUS_API_BASE"); v != "" {
		c.Amadeus.BaseURL = v
	}
	if v := os.Getenv("AVIATIONSTACK_KEY"); v != "" {
		c.AviationStack.APIKey = v
	}
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Lookup.Providers) == 0 {
		errs = append(errs, errors.New("lookup.providers: at least one provider is required"))
	}
	for _, p := range c.Lookup.Providers {
		if !slices.Contains(knownProviders, p) {
			errs = append(errs, fmt.Errorf("lookup.providers: unknown provider %q", p))
		}
	}
	if c.Lookup.CacheTTL <= 0 {
		errs = append(errs, errors.New("lookup.cache_ttl: must be positive"))
	}
	for _, rl := range c.Lookup.RateLimits {
		if rl.Requests <= 0 || rl.Window <= 0 {
			errs = append(errs, fmt.Errorf("lookup.rate_limits: %s needs positive requests and window", rl.Provider))
		}
	}
	if c.Search.QuietPeriod <= 0 {
		errs = append(errs, errors.New("search.quiet_period: must be positive"))
	}
	if c.Search.MinQueryLength < 1 {
		errs = append(errs, errors.New("search.min_query_length: must be at least 1"))
	}
	if c.Index.Capacity < 1 {
		errs = append(errs, errors.New("index.capacity: must be at least 1"))
	}
	if c.Index.StorageKey == "" {
		errs = append(errs, errors.New("index.storage_key: must not be empty"))
	}
	switch c.Storage.Type {
	case "memory":
	case "file":
		if c.Storage.Path == "" {
			errs = append(errs, errors.New("storage.path: required for file storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type: unknown type %q", c.Storage.Type))
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid configuration: %w", err)
	}
	return nil
}

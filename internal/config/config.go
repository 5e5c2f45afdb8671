// Package config loads the devicewatch configuration file and applies
// environment overrides. The core packages never read configuration
// themselves; values from here are threaded into constructors by the cmds.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type OpenFDAConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	RateDelaySec   float64 `yaml:"rate_limit_delay"` // seconds between requests
	MaxRecords     int     `yaml:"max_records"`      // per-source record budget
	LookbackMonths int     `yaml:"lookback_months"`
	TimeoutSec     int     `yaml:"timeout"`
}

type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	TTLSeconds int    `yaml:"ttl_seconds"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LLMConfig struct {
	Enabled bool   `yaml:"enabled"`
	Model   string `yaml:"model"`
}

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"` // OTLP HTTP endpoint host:port
}

type Config struct {
	OpenFDA OpenFDAConfig `yaml:"openfda"`
	Cache   CacheConfig   `yaml:"cache"`
	Server  ServerConfig  `yaml:"server"`
	LLM     LLMConfig     `yaml:"llm"`
	Tracing TracingConfig `yaml:"tracing"`
}

func Default() Config {
	return Config{
		OpenFDA: OpenFDAConfig{
			BaseURL:        "https://api.fda.gov",
			RateDelaySec:   0.5,
			MaxRecords:     500,
			LookbackMonths: 6,
			TimeoutSec:     30,
		},
		Cache:  CacheConfig{Path: "devicewatch-cache.db", TTLSeconds: 3600},
		Server: ServerConfig{Addr: ":8080"},
		LLM:    LLMConfig{},
	}
}

// Load reads the YAML file at path over the defaults, then applies env
// overrides. A missing file is not an error; env-only setups are common.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENFDA_API_KEY"); v != "" {
		cfg.OpenFDA.APIKey = v
	}
	if v := os.Getenv("OPENFDA_BASE_URL"); v != "" {
		cfg.OpenFDA.BaseURL = v
	}
	if v := os.Getenv("DEVICEWATCH_RATE_DELAY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.OpenFDA.RateDelaySec = f
		}
	}
	if v := envInt("DEVICEWATCH_MAX_RECORDS"); v > 0 {
		cfg.OpenFDA.MaxRecords = v
	}
	if v := envInt("DEVICEWATCH_LOOKBACK_MONTHS"); v > 0 {
		cfg.OpenFDA.LookbackMonths = v
	}
	if v := os.Getenv("DEVICEWATCH_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("DEVICEWATCH_CACHE_PATH"); v != "" {
		cfg.Cache.Enabled = true
		cfg.Cache.Path = v
	}
	if v := os.Getenv("DEVICEWATCH_LLM_MODEL"); v != "" {
		cfg.LLM.Enabled = true
		cfg.LLM.Model = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Endpoint = v
	}
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func (c Config) validate() error {
	if c.OpenFDA.BaseURL == "" {
		return fmt.Errorf("openfda.base_url must not be empty")
	}
	if c.OpenFDA.RateDelaySec < 0 {
		return fmt.Errorf("openfda.rate_limit_delay must not be negative")
	}
	return nil
}

func (c OpenFDAConfig) RateDelay() time.Duration {
	return time.Duration(c.RateDelaySec * float64(time.Second))
}

func (c OpenFDAConfig) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

func (c CacheConfig) TTL() time.Duration {
	if c.TTLSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(c.TTLSeconds) * time.Second
}

// File path: internal/backend/bulk/config.go
package bulk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config describes how to reach the external bulk decoding service.
type Config struct {
	Host   string `json:"host"`
	Port   string `json:"port"`
	Scheme string `json:"scheme"`
	APIKey string `json:"api_key"`

	Timeout       time.Duration `json:"-"`
	TimeoutString string        `json:"timeout"`

	PollInterval       time.Duration `json:"-"`
	PollIntervalString string        `json:"poll_interval"`

	HTTPMaxIdleConns    int           `json:"http_max_idle_conns"`
	HTTPMaxIdlePerHost  int           `json:"http_max_idle_per_host"`
	HTTPIdleConnTimeout time.Duration `json:"-"`
	HTTPIdleConnStr     string        `json:"http_idle_conn_timeout"`
}

// Merge overlays non-empty override fields onto c.
func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.Host) != "" {
		result.Host = strings.TrimSpace(override.Host)
	}
	if strings.TrimSpace(override.Port) != "" {
		result.Port = strings.TrimSpace(override.Port)
	}
	if strings.TrimSpace(override.Scheme) != "" {
		result.Scheme = strings.TrimSpace(override.Scheme)
	}
	if strings.TrimSpace(override.APIKey) != "" {
		result.APIKey = override.APIKey
	}
	if override.Timeout > 0 {
		result.Timeout = override.Timeout
	}
	if strings.TrimSpace(override.TimeoutString) != "" {
		result.TimeoutString = strings.TrimSpace(override.TimeoutString)
	}
	if override.PollInterval > 0 {
		result.PollInterval = override.PollInterval
	}
	if strings.TrimSpace(override.PollIntervalString) != "" {
		result.PollIntervalString = strings.TrimSpace(override.PollIntervalString)
	}
	if override.HTTPMaxIdleConns > 0 {
		result.HTTPMaxIdleConns = override.HTTPMaxIdleConns
	}
	if override.HTTPMaxIdlePerHost > 0 {
		result.HTTPMaxIdlePerHost = override.HTTPMaxIdlePerHost
	}
	if override.HTTPIdleConnTimeout > 0 {
		result.HTTPIdleConnTimeout = override.HTTPIdleConnTimeout
	}
	if strings.TrimSpace(override.HTTPIdleConnStr) != "" {
		result.HTTPIdleConnStr = strings.TrimSpace(override.HTTPIdleConnStr)
	}
	return result
}

// LoadConfig builds the bulk backend configuration from an optional JSON
// file plus environment overrides, then applies defaults.
func LoadConfig() (Config, error) {
	cfg := Config{}
	if path := strings.TrimSpace(os.Getenv("COPYBOOK_BULK_CONFIG_FILE")); path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	envCfg, err := loadConfigEnv()
	if err != nil {
		return Config{}, err
	}
	cfg = cfg.Merge(envCfg)
	cfg.applyDefaults()
	return cfg, nil
}

// Enabled reports whether any bulk backend setting is present in the
// environment. The dispatcher only constructs the bulk client when the
// operator has configured one.
func Enabled() bool {
	keys := []string{
		"COPYBOOK_BULK_CONFIG_FILE",
		"COPYBOOK_BULK_HOST",
		"COPYBOOK_BULK_PORT",
		"COPYBOOK_BULK_SCHEME",
		"COPYBOOK_BULK_API_KEY",
		"COPYBOOK_BULK_TIMEOUT",
	}
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return true
		}
	}
	return false
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Host) == "" {
		c.Host = "localhost"
	}
	if strings.TrimSpace(c.Port) == "" {
		c.Port = "8090"
	}
	if strings.TrimSpace(c.Scheme) == "" {
		c.Scheme = "http"
	}
	if c.Timeout <= 0 {
		if c.TimeoutString != "" {
			if parsed, err := time.ParseDuration(c.TimeoutString); err == nil {
				c.Timeout = parsed
			}
		}
		if c.Timeout <= 0 {
			c.Timeout = 2 * time.Minute
		}
	}
	if c.PollInterval <= 0 {
		if c.PollIntervalString != "" {
			if parsed, err := time.ParseDuration(c.PollIntervalString); err == nil {
				c.PollInterval = parsed
			}
		}
		if c.PollInterval <= 0 {
			c.PollInterval = 500 * time.Millisecond
		}
	}
	if c.HTTPMaxIdleConns <= 0 {
		c.HTTPMaxIdleConns = 32
	}
	if c.HTTPMaxIdlePerHost <= 0 {
		c.HTTPMaxIdlePerHost = 8
	}
	if c.HTTPIdleConnTimeout <= 0 {
		if c.HTTPIdleConnStr != "" {
			if parsed, err := time.ParseDuration(c.HTTPIdleConnStr); err == nil {
				c.HTTPIdleConnTimeout = parsed
			}
		}
		if c.HTTPIdleConnTimeout <= 0 {
			c.HTTPIdleConnTimeout = 90 * time.Second
		}
	}
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read bulk config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse bulk config: %w", err)
	}
	return cfg, nil
}

func loadConfigEnv() (Config, error) {
	cfg := Config{}
	if host := strings.TrimSpace(os.Getenv("COPYBOOK_BULK_HOST")); host != "" {
		cfg.Host = host
	}
	if port := strings.TrimSpace(os.Getenv("COPYBOOK_BULK_PORT")); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return Config{}, fmt.Errorf("parse COPYBOOK_BULK_PORT: %w", err)
		}
		cfg.Port = port
	}
	if scheme := strings.TrimSpace(os.Getenv("COPYBOOK_BULK_SCHEME")); scheme != "" {
		cfg.Scheme = scheme
	}
	if apiKey := strings.TrimSpace(os.Getenv("COPYBOOK_BULK_API_KEY")); apiKey != "" {
		cfg.APIKey = apiKey
	}
	if timeout := strings.TrimSpace(os.Getenv("COPYBOOK_BULK_TIMEOUT")); timeout != "" {
		cfg.TimeoutString = timeout
		if parsed, err := time.ParseDuration(timeout); err == nil {
			cfg.Timeout = parsed
		}
	}
	if poll := strings.TrimSpace(os.Getenv("COPYBOOK_BULK_POLL_INTERVAL")); poll != "" {
		cfg.PollIntervalString = poll
		if parsed, err := time.ParseDuration(poll); err == nil {
			cfg.PollInterval = parsed
		}
	}
	return cfg, nil
}

// File path: internal/filestore/config.go
package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the settings of the local reference store: payloads live as
// files under Root, reference rows live in the SQLite catalog.
type Config struct {
	Root        string `json:"root"`
	CatalogPath string `json:"catalog_path"`

	BusyTimeout       time.Duration `json:"-"`
	BusyTimeoutString string        `json:"busy_timeout"`
}

// Merge overlays non-empty override fields onto c.
func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.Root) != "" {
		result.Root = strings.TrimSpace(override.Root)
	}
	if strings.TrimSpace(override.CatalogPath) != "" {
		result.CatalogPath = strings.TrimSpace(override.CatalogPath)
	}
	if override.BusyTimeout > 0 {
		result.BusyTimeout = override.BusyTimeout
	}
	if strings.TrimSpace(override.BusyTimeoutString) != "" {
		result.BusyTimeoutString = strings.TrimSpace(override.BusyTimeoutString)
	}
	return result
}

// LoadConfig builds the store configuration from an optional JSON config
// file plus environment overrides, then applies defaults.
func LoadConfig() (Config, error) {
	cfg := Config{}
	if path := strings.TrimSpace(os.Getenv("COPYBOOK_STORE_CONFIG_FILE")); path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	cfg = cfg.Merge(loadConfigEnv())
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Root) == "" {
		c.Root = filepath.Join(os.TempDir(), "copybook-store")
	}
	if strings.TrimSpace(c.CatalogPath) == "" {
		c.CatalogPath = filepath.Join(c.Root, "catalog.db")
	}
	if c.BusyTimeout <= 0 {
		if c.BusyTimeoutString != "" {
			if parsed, err := time.ParseDuration(c.BusyTimeoutString); err == nil {
				c.BusyTimeout = parsed
			}
		}
		if c.BusyTimeout <= 0 {
			c.BusyTimeout = 5 * time.Second
		}
	}
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read store config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse store config: %w", err)
	}
	return cfg, nil
}

func loadConfigEnv() Config {
	cfg := Config{}
	if root := strings.TrimSpace(os.Getenv("COPYBOOK_STORE_ROOT")); root != "" {
		cfg.Root = root
	}
	if catalog := strings.TrimSpace(os.Getenv("COPYBOOK_STORE_CATALOG")); catalog != "" {
		cfg.CatalogPath = catalog
	}
	if timeout := strings.TrimSpace(os.Getenv("COPYBOOK_STORE_BUSY_TIMEOUT")); timeout != "" {
		cfg.BusyTimeoutString = timeout
		if parsed, err := time.ParseDuration(timeout); err == nil {
			cfg.BusyTimeout = parsed
		}
	}
	return cfg
}

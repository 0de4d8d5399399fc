// Package config loads the viewer configuration from defaults, an optional
// YAML file, and ROUTEVIEW_-prefixed environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the complete application configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Service ServiceConfig `koanf:"service"`
	Map     MapConfig     `koanf:"map"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds the local HTTP surface settings.
type ServerConfig struct {
	Port        int      `koanf:"port"`
	CorsOrigins []string `koanf:"cors_origins"`
}

// ServiceConfig holds routing service client settings.
type ServiceConfig struct {
	BaseURL          string        `koanf:"base_url"`
	Timeout          time.Duration `koanf:"timeout"`
	MaxDepth         int           `koanf:"max_depth"`
	NearestNodeMaxKm float64       `koanf:"nearest_max_km"`
}

// MapConfig holds map surface settings.
type MapConfig struct {
	FlashDuration time.Duration `koanf:"flash_duration"`
}

// LoggingConfig selects the logger profile.
type LoggingConfig struct {
	Development bool `koanf:"development"`
}

// defaults mirror the original deployment: a local routing service on port
// 8000 and a permissive CORS policy.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"server.port":            8080,
		"server.cors_origins":    []string{"*"},
		"service.base_url":       "http://localhost:8000",
		"service.timeout":        "30s",
		"service.max_depth":      50,
		"service.nearest_max_km": 10.0,
		"map.flash_duration":     "2s",
		"logging.development":    false,
	}
}

// envPrefix namespaces environment overrides. A double underscore separates
// key path segments, so ROUTEVIEW_SERVICE__BASE_URL sets service.base_url.
const envPrefix = "ROUTEVIEW_"

// Load builds the configuration. path may be empty or point to a YAML file;
// a missing file at an explicitly given path is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Package config loads the service configuration from a YAML or JSON file
// with K_ environment overrides (K_SCHEDULING__CONSTRAINTS__MIN_NOTICE_HOURS).
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/rbtsched/core/factory"
	"github.com/kilianp07/rbtsched/core/metrics"
	"github.com/kilianp07/rbtsched/core/scheduling"
	"github.com/kilianp07/rbtsched/infra/logger"
	"github.com/kilianp07/rbtsched/infra/monitoring"
	"github.com/kilianp07/rbtsched/infra/mqtt"
)

type Config struct {
	Scheduling scheduling.Config `json:"scheduling"`
	Storage    StorageConfig     `json:"storage"`
	// Audit selects the event store backend: memory, jsonl, rotating or sqlite.
	Audit   factory.ModuleConfig `json:"audit"`
	Metrics metrics.Config       `json:"metrics"`
	// MQTT bridging is disabled while Broker is empty.
	MQTT    mqtt.Config       `json:"mqtt"`
	Sentry  monitoring.Config `json:"sentry"`
	HTTP    HTTPConfig        `json:"http"`
	Logging logger.Config     `json:"logging"`
}

// Load reads path, applies environment overrides, defaults and validation.
// An empty path loads defaults and the environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Scheduling.SetDefaults()
	c.Storage.SetDefaults()
	if c.Audit.Type == "" {
		c.Audit.Type = "memory"
	}
	c.Metrics.SetDefaults()
	if c.MQTT.Broker != "" {
		c.MQTT.SetDefaults()
	}
	c.HTTP.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section and names the failing one.
func (c Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"scheduling", c.Scheduling.Validate},
		{"storage", c.Storage.Validate},
		{"metrics", c.Metrics.Validate},
		{"http", c.HTTP.Validate},
		{"logging", c.Logging.Validate},
	}
	if c.MQTT.Broker != "" {
		checks = append(checks, struct {
			name string
			fn   func() error
		}{"mqtt", c.MQTT.Validate})
	}
	for _, ch := range checks {
		if err := ch.fn(); err != nil {
			return fmt.Errorf("%s: %w", ch.name, err)
		}
	}
	return nil
}

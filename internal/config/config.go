// Package config loads the gateway's YAML configuration: the broker
// list an upstream adapter is built from, the default-instrument list,
// and the ambient HTTP/logging/persistence settings.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SourceKind names one of the three adapter kinds spec.md collapses into
// one parameterized implementation.
type SourceKind string

const (
	SourceCTP  SourceKind = "ctp"
	SourceQQ   SourceKind = "qq"
	SourceSina SourceKind = "sina"
)

// BrokerConfig is one upstream front this gateway logs into.
type BrokerConfig struct {
	Name       string     `yaml:"name"`
	Source     SourceKind `yaml:"source"`
	FrontAddr  string     `yaml:"front_addr"`
	UserID     string     `yaml:"user_id"`
	Password   string     `yaml:"password"`
	BrokerID   string     `yaml:"broker_id"`
	AppID      string     `yaml:"app_id"`
	AuthCode   string     `yaml:"auth_code"`
	Enabled    bool       `yaml:"enabled"`
}

// Validate checks the broker config carries the fields the adapter's
// login call requires.
func (b *BrokerConfig) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	switch b.Source {
	case SourceCTP, SourceQQ, SourceSina:
	default:
		return fmt.Errorf("source must be one of ctp, qq, sina; got %q", b.Source)
	}
	if b.FrontAddr == "" {
		return fmt.Errorf("front_addr cannot be empty")
	}
	if b.UserID == "" {
		return fmt.Errorf("user_id cannot be empty")
	}
	if b.BrokerID == "" {
		return fmt.Errorf("broker_id cannot be empty")
	}
	return nil
}

// HTTPConfig is the gateway's listen address and routing surface.
type HTTPConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	MetricsPath string `yaml:"metrics_path"`
}

// PersistenceConfig names optional durable backends. Either may be left
// empty, in which case the in-memory/no-op defaults apply.
type PersistenceConfig struct {
	RedisAddr    string `yaml:"redis_addr"`
	PostgresDSN  string `yaml:"postgres_dsn"`
}

// GatewayConfig is the top-level configuration file shape.
type GatewayConfig struct {
	LogLevel   string            `yaml:"log_level"`
	HTTP       HTTPConfig        `yaml:"http"`
	Persistence PersistenceConfig `yaml:"persistence"`

	Brokers            []BrokerConfig `yaml:"brokers"`
	DefaultInstruments []string       `yaml:"default_instruments"`
}

// Load reads and validates a GatewayConfig from a YAML file path.
func Load(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway config: %w", err)
	}

	var cfg GatewayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse gateway config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway config: %w", err)
	}

	return &cfg, nil
}

func (c *GatewayConfig) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTP.Host == "" {
		c.HTTP.Host = "0.0.0.0"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.MetricsPath == "" {
		c.HTTP.MetricsPath = "/metrics"
	}
}

// Validate ensures the configuration has at least one enabled broker and
// that every broker's fields are individually well-formed.
func (c *GatewayConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("at least one broker must be configured")
	}

	anyEnabled := false
	seen := make(map[string]bool, len(c.Brokers))
	for i := range c.Brokers {
		b := &c.Brokers[i]
		if err := b.Validate(); err != nil {
			return fmt.Errorf("broker %d (%s): %w", i, b.Name, err)
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate broker name %q", b.Name)
		}
		seen[b.Name] = true
		if b.Enabled {
			anyEnabled = true
		}
	}
	if !anyEnabled {
		return fmt.Errorf("no broker is enabled")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be a valid TCP port, got %d", c.HTTP.Port)
	}

	return nil
}

// EnabledBrokers returns the subset of Brokers with Enabled set.
func (c *GatewayConfig) EnabledBrokers() []BrokerConfig {
	var out []BrokerConfig
	for _, b := range c.Brokers {
		if b.Enabled {
			out = append(out, b)
		}
	}
	return out
}

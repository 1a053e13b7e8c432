// Package config loads the daemon's launch configuration: defaults,
// then an optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/catherinevee/policyguard/internal/logger"
)

// Defaults for everything the file and environment leave unset.
const (
	DefaultPolicyFile      = "policies.json"
	DefaultStateFile       = "remediation_state.json"
	DefaultCacheTTLSeconds = 300
	DefaultRetryAttempts   = 3
)

// LoggingConfig controls the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
}

// Config is the daemon launch configuration.
type Config struct {
	CloudProvider     string `yaml:"cloud_provider" validate:"required,oneof=azure aws"`
	SubscriptionID    string `yaml:"subscription_id" validate:"required"`
	ManagementGroupID string `yaml:"management_group_id"`
	Region            string `yaml:"region"`

	PolicyFile      string `yaml:"policy_file" validate:"required"`
	StateFile       string `yaml:"state_file" validate:"required"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds" validate:"min=1"`
	RetryAttempts   int    `yaml:"retry_attempts" validate:"min=1"`

	Logging LoggingConfig `yaml:"logging"`
}

// Default returns the built-in configuration. The subscription has no
// default; it must come from the file or the environment.
func Default() *Config {
	return &Config{
		CloudProvider:   "azure",
		PolicyFile:      DefaultPolicyFile,
		StateFile:       DefaultStateFile,
		CacheTTLSeconds: DefaultCacheTTLSeconds,
		RetryAttempts:   DefaultRetryAttempts,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the file at path when it
// exists, and environment overrides, then validates the result. An empty
// path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			logger.New("config").Warn("Config file not found, using defaults and environment",
				logger.String("path", path))
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays the environment variables the daemon has always
// honored. Environment wins over the file.
func (c *Config) applyEnv() {
	overlay(&c.CloudProvider, "CLOUD_PROVIDER")
	overlay(&c.SubscriptionID, "AZURE_SUBSCRIPTION_ID")
	overlay(&c.ManagementGroupID, "AZURE_MANAGEMENT_GROUP_ID")
	overlay(&c.Region, "AWS_REGION")
	overlay(&c.PolicyFile, "POLICY_CONFIG")
	overlay(&c.StateFile, "STATE_FILE")

	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		if ttl, err := strconv.Atoi(v); err == nil && ttl > 0 {
			c.CacheTTLSeconds = ttl
		}
	}
}

func overlay(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// config.go - Configuration for the shield daemon
package main

import (
	"fmt"
	"os"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/noctura/shield/internal/merkle"
)

// Config represents the daemon configuration.
type Config struct {
	// Identity and storage
	WalletPath string `yaml:"wallet_path"`
	KeyDir     string `yaml:"key_dir"`

	// Collaborators
	RelayURL string `yaml:"relay_url"`
	ChainURL string `yaml:"chain_url"`

	// Fee policy
	FeeToken       string `yaml:"fee_token"`
	FlatFee        int64  `yaml:"flat_fee"`
	ShieldFeeBps   uint16 `yaml:"shield_fee_bps"`
	PriorityFeeBps uint16 `yaml:"priority_fee_bps"`

	// Accumulator
	TreeHeight int `yaml:"tree_height"`

	// Discovery
	ScanIntervalSeconds int `yaml:"scan_interval_seconds"`

	// Status HTTP server
	HTTPPort int `yaml:"http_port"`

	// Logging
	LogLevel     string `yaml:"log_level"`
	LogFile      string `yaml:"log_file"`
	EnableAudit  bool   `yaml:"enable_audit"`
	AuditLogPath string `yaml:"audit_log_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		WalletPath:          "shield_wallet.json",
		KeyDir:              "keys",
		RelayURL:            "http://localhost:8545",
		ChainURL:            "http://localhost:8545",
		FeeToken:            "NOC",
		FlatFee:             2,
		ShieldFeeBps:        50,
		PriorityFeeBps:      100,
		TreeHeight:          14,
		ScanIntervalSeconds: 15,
		HTTPPort:            8787,
		LogLevel:            "info",
		LogFile:             "shieldd.log",
		EnableAudit:         true,
		AuditLogPath:        "audit.log",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.WalletPath, validation.Required),
		validation.Field(&c.RelayURL, validation.Required),
		validation.Field(&c.ChainURL, validation.Required),
		validation.Field(&c.FeeToken, validation.Required),
		validation.Field(&c.FlatFee, validation.Min(0)),
		// The circuits fix the accumulator height at compile time.
		validation.Field(&c.TreeHeight, validation.Min(1), validation.Max(merkle.DefaultHeight)),
		validation.Field(&c.ScanIntervalSeconds, validation.Min(1)),
		validation.Field(&c.HTTPPort, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.LogLevel, validation.In("debug", "info", "warn", "error", "fatal")),
	)
}

// LoadConfig loads configuration from a YAML file, with environment variable
// expansion, falling back to defaults when the file does not exist.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}

// SaveConfig writes the configuration to a YAML file.
func SaveConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// config.go - Configuration management for the registry daemon
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration
type Config struct {
	// HTTP server
	ListenAddr string `json:"listen_addr"`

	// File paths
	DataDir        string `json:"data_dir"`
	KeyDir         string `json:"key_dir"`
	OracleKeysPath string `json:"oracle_keys_path"`
	SnapshotPath   string `json:"snapshot_path"`

	// Oracle wiring: "local" runs an in-process oracle, "redis" pushes
	// decryption requests onto a Redis queue for an external worker.
	OracleMode    string `json:"oracle_mode"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
	QueueName     string `json:"queue_name"`

	// Counter cryptosystem
	PaillierBits int `json:"paillier_bits"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Rate limiting
	RateLimitBurst  int `json:"rate_limit_burst"`
	RateLimitRefill int `json:"rate_limit_refill"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:      ":8380",
		DataDir:         "data",
		KeyDir:          "keys",
		OracleKeysPath:  "keys/oracle.json",
		SnapshotPath:    "ledger.json",
		OracleMode:      "local",
		RedisAddr:       "localhost:6379",
		QueueName:       "papers",
		PaillierBits:    2048,
		LogLevel:        "info",
		LogFile:         "registry.log",
		RateLimitBurst:  100,
		RateLimitRefill: 20,
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		var config Config
		if err := json.NewDecoder(file).Decode(&config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}

		return &config, nil
	}

	// Create default config and save it
	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}

	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	if c.OracleMode != "local" && c.OracleMode != "redis" {
		return fmt.Errorf("oracle_mode must be \"local\" or \"redis\", got %q", c.OracleMode)
	}
	if c.OracleMode == "redis" && c.RedisAddr == "" {
		return fmt.Errorf("redis_addr must be set in redis mode")
	}
	if c.PaillierBits < 512 {
		return fmt.Errorf("paillier_bits must be at least 512")
	}
	if c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate_limit_burst must be positive")
	}
	if c.RateLimitRefill <= 0 {
		return fmt.Errorf("rate_limit_refill must be positive")
	}
	return nil
}

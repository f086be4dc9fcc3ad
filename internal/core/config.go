package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type BlobStore struct {
	Type      string `yaml:"type"`
	Directory string `yaml:"directory"`
	BaseURL   string `yaml:"baseUrl"`
}

type Cleanup struct {
	QueueType    string `yaml:"queueType"`
	RedisAddress string `yaml:"redisAddress"`
	Interval     string `yaml:"interval"`
}

type ServiceConfig struct {
	Port          int       `yaml:"port"`
	MaxUploadSize string    `yaml:"maxUploadSize"`
	Database      Database  `yaml:"database"`
	BlobStore     BlobStore `yaml:"blobStore"`
	Cleanup       Cleanup   `yaml:"cleanup"`
}

const (
	defaultMaxUploadSize = "32M"
	defaultSweepInterval = 30 * time.Second
)

// SweepInterval returns the configured orphan sweep interval, falling back
// to the default when unset.
func (c Cleanup) SweepInterval() time.Duration {
	if c.Interval == "" {
		return defaultSweepInterval
	}
	interval, err := time.ParseDuration(c.Interval)
	if err != nil || interval <= 0 {
		return defaultSweepInterval
	}
	return interval
}

// LoadConfig loads configuration from the specified YAML file
func LoadConfig(configPath string) (*ServiceConfig, error) {
	// Read the config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	// Parse YAML
	var config ServiceConfig
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validateConfig ensures required fields are set and fills in defaults.
func validateConfig(config *ServiceConfig) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is out of range", config.Port)
	}
	if config.Database.Type == "" {
		return fmt.Errorf("database type must be set")
	}
	if config.Database.ConnectionString == "" {
		return fmt.Errorf("database connection string must be set")
	}
	if config.BlobStore.Type == "" {
		return fmt.Errorf("blob store type must be set")
	}
	if config.BlobStore.BaseURL == "" {
		config.BlobStore.BaseURL = fmt.Sprintf("http://localhost:%d", config.Port)
	}
	if config.MaxUploadSize == "" {
		config.MaxUploadSize = defaultMaxUploadSize
	}
	if config.Cleanup.Interval != "" {
		if _, err := time.ParseDuration(config.Cleanup.Interval); err != nil {
			return fmt.Errorf("invalid cleanup interval %q: %w", config.Cleanup.Interval, err)
		}
	}
	return nil
}

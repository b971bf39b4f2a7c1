// Package config provides configuration loading and validation for Comply.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Database DBConfig      `yaml:"database"`
	Ingest   *IngestConfig `yaml:"ingest,omitempty"`
	// RuleMapPath overrides the embedded rule table when set.
	RuleMapPath string `yaml:"rule_map,omitempty"`
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DBConfig contains SQLite settings.
type DBConfig struct {
	Path     string `yaml:"path"`
	MaxConns int    `yaml:"max_conns,omitempty"`
}

// IngestConfig describes where scanner output is picked up from.
type IngestConfig struct {
	CloudPosture *S3SourceConfig `yaml:"cloud_posture,omitempty"`
	RepoAudit    *S3SourceConfig `yaml:"repo_audit,omitempty"`
}

// S3SourceConfig points at a bucket prefix where a scanner drops results.
type S3SourceConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix,omitempty"`
}

// LoadConfig reads and parses a YAML configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is from trusted source (config file)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with defaults applied.
func Default() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "comply.db"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("database.max_conns must be positive, got %d", c.Database.MaxConns)
	}

	if c.Ingest != nil {
		for name, src := range map[string]*S3SourceConfig{
			"cloud_posture": c.Ingest.CloudPosture,
			"repo_audit":    c.Ingest.RepoAudit,
		} {
			if src != nil && src.Bucket == "" {
				return fmt.Errorf("ingest.%s.bucket is required", name)
			}
		}
	}

	return nil
}

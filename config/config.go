// Package config loads the server configuration from a yaml file with
// environment variable overrides. Loaded once at boot, never reloaded.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	// MasterKey is the hex-encoded 32-byte master scalar. Env: MASTER_KEY.
	MasterKey string `yaml:"master_key"`
	// KeyServerObjectID is the on-chain registration object of this server.
	// Env: KEY_SERVER_OBJECT_ID.
	KeyServerObjectID string `yaml:"key_server_object_id"`
	// PackageID is this server's own package, tracked on the slow refresh
	// cadence. Env: PACKAGE_ID.
	PackageID string `yaml:"package_id"`
	// NodeURL is the JSON-RPC full node endpoint. Env: NODE_URL.
	NodeURL string `yaml:"node_url"`
	// GraphQLURL is the indexer endpoint for lineage queries. Env: GRAPHQL_URL.
	GraphQLURL string `yaml:"graphql_url"`
	// RedisURL enables the shared revocation store and the audit stream;
	// empty falls back to in-memory. Env: REDIS_URL.
	RedisURL string `yaml:"redis_url"`
	// Port is the HTTP listen port. Env: PORT.
	Port int `yaml:"port"`
	// Seed, when set, makes the ephemeral token keypair deterministic.
	// Test deployments only. Env: SEED.
	Seed string `yaml:"seed"`
	// RateLimitRPS is the per-IP request rate; zero disables limiting.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	// RateLimitBurst is the per-IP burst size.
	RateLimitBurst int `yaml:"rate_limit_burst"`
	// Debug switches verbose logging on.
	Debug bool `yaml:"debug"`
}

// Default returns the configuration baseline before file and env overrides.
func Default() Config {
	return Config{
		Port:           2024,
		RateLimitBurst: 20,
	}
}

// Load reads the optional yaml file, then applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	setString(&cfg.MasterKey, "MASTER_KEY")
	setString(&cfg.KeyServerObjectID, "KEY_SERVER_OBJECT_ID")
	setString(&cfg.PackageID, "PACKAGE_ID")
	setString(&cfg.NodeURL, "NODE_URL")
	setString(&cfg.GraphQLURL, "GRAPHQL_URL")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.Seed, "SEED")

	if v, ok := os.LookupEnv("PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
}

// Validate checks the fields the server cannot start without.
func (c Config) Validate() error {
	if c.MasterKey == "" {
		return fmt.Errorf("master_key is required")
	}
	if c.KeyServerObjectID == "" {
		return fmt.Errorf("key_server_object_id is required")
	}
	if c.PackageID == "" {
		return fmt.Errorf("package_id is required")
	}
	if c.NodeURL == "" {
		return fmt.Errorf("node_url is required")
	}
	if c.GraphQLURL == "" {
		return fmt.Errorf("graphql_url is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	return nil
}

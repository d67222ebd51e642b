// Package config loads the engine's process configuration from YAML,
// adapted from the teacher's services/governd/config package: defaulted
// fields, an explicit Load(path), and fail-fast validation of required
// settings.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the dispatch surface and storage
// kernel.
type Config struct {
	ListenAddress string       `yaml:"listen"`
	StoragePath   string       `yaml:"storage_path"`
	Env           string       `yaml:"env"`
	Auth          AuthConfig   `yaml:"auth"`
	Policy        PolicyConfig `yaml:"policy"`
}

// AuthConfig describes the JWT bearer verification material.
type AuthConfig struct {
	JWTSigningSecret string `yaml:"jwt_signing_secret"`
}

// PolicyConfig holds default governance knobs read from the YAML file. The
// engines do not read these values: governance falls back to its built-in
// defaults (7-day voting period, 30% quorum, 50% approval) until a guild's
// config is set via update_governance_config.
type PolicyConfig struct {
	DefaultVotingPeriodSeconds uint64 `yaml:"default_voting_period_seconds"`
	DefaultQuorumPercentage    uint64 `yaml:"default_quorum_percentage"`
	DefaultApprovalPercentage  uint64 `yaml:"default_approval_percentage"`
}

// Load reads the YAML configuration from disk, applying defaults and
// failing fast on missing required fields.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: ":8080",
		StoragePath:   "guildcore.db",
		Env:           "development",
		Policy: PolicyConfig{
			DefaultVotingPeriodSeconds: 7 * 24 * 3600,
			DefaultQuorumPercentage:    30,
			DefaultApprovalPercentage:  50,
		},
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.StoragePath == "" {
		cfg.StoragePath = "guildcore.db"
	}
	if cfg.Auth.JWTSigningSecret == "" {
		return cfg, fmt.Errorf("auth.jwt_signing_secret is required")
	}
	return cfg, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const configFile = ".migrator-env"

// MigratorConfig is the persisted credentials file: one master and one or
// more destinations. The file layout (JSON, these two keys) is the contract
// with whoever provisions the tool.
type MigratorConfig struct {
	Master       ConnectionTarget   `json:"master_config"`
	Destinations []ConnectionTarget `json:"destination_configs"`
}

// loadMigratorConfig reads the credentials file and applies environment
// overrides. A .env file next to the process, if present, is loaded first
// so passwords can be kept out of the JSON file.
func loadMigratorConfig(path string) (*MigratorConfig, error) {
	_ = godotenv.Load() // best effort; absence is fine

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg MigratorConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("MIGRATOR_MASTER_PASSWORD"); v != "" {
		cfg.Master.Password = v
	}
	if v := os.Getenv("MIGRATOR_DESTINATION_PASSWORD"); v != "" {
		for i := range cfg.Destinations {
			cfg.Destinations[i].Password = v
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *MigratorConfig) validate() error {
	if c.Master.User == "" {
		return fmt.Errorf("master_config.user is required")
	}
	if c.Master.Database == "" {
		return fmt.Errorf("master_config.database is required")
	}
	if c.Master.Host == "" {
		c.Master.Host = "localhost"
	}
	if len(c.Destinations) == 0 {
		return fmt.Errorf("at least one destination is required")
	}
	for i, d := range c.Destinations {
		if d.Host == "" || d.Database == "" {
			return fmt.Errorf("destination_configs[%d]: host and database are required", i)
		}
	}
	return nil
}

// saveMigratorConfig writes the credentials file with restrictive permissions.
func saveMigratorConfig(path string, cfg *MigratorConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

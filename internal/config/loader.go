package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads and parses a configuration from the given YAML file path.
// After parsing, it applies defaults and environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault searches for a config in standard locations and loads the
// first one found. Search order: ./builddoctor.yaml, ~/.builddoctor/config.yaml
func LoadDefault() (*Config, error) {
	candidates := []string{"builddoctor.yaml"}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append(candidates, filepath.Join(home, ".builddoctor", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	return nil, fmt.Errorf("no config found (searched: %v)", candidates)
}

// applyDefaults fills in unset values and pulls secrets from the
// environment so they never have to live in the YAML file.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.DSN = v
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.DSN == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Database.DSN = filepath.Join(home, ".builddoctor", "builddoctor.db")
		}
	}

	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Anthropic.APIKey = v
	}
	if cfg.Anthropic.ClassifyModel == "" {
		cfg.Anthropic.ClassifyModel = "claude-3-haiku-20240307"
	}
	if cfg.Anthropic.DiagnoseModel == "" {
		cfg.Anthropic.DiagnoseModel = "claude-3-5-sonnet-20241022"
	}
}

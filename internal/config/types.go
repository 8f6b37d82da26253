package config

// Config is the top-level configuration structure parsed from YAML.
type Config struct {
	Server    Server    `yaml:"server"`
	Database  Database  `yaml:"database"`
	Anthropic Anthropic `yaml:"anthropic"`
}

// Server configures the HTTP API server.
type Server struct {
	Port int `yaml:"port"`
	// BaseURL is the externally reachable URL of this instance. It is
	// embedded in service-hook subscriptions so the upstream platform
	// knows where to deliver build.complete events.
	BaseURL string `yaml:"base_url"`
}

// Database selects the store driver and its connection string.
// Driver is "sqlite" (local file) or "postgres" (DSN).
type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Anthropic configures the model service used by the two-pass analyzer.
type Anthropic struct {
	APIKey        string `yaml:"api_key"`
	ClassifyModel string `yaml:"classify_model"`
	DiagnoseModel string `yaml:"diagnose_model"`
}

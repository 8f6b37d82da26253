package config

import "fmt"

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// recognizedDrivers is the set of valid database driver names.
var recognizedDrivers = map[string]bool{
	"sqlite":   true,
	"postgres": true,
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("invalid port %d", cfg.Server.Port),
		})
	}

	if !recognizedDrivers[cfg.Database.Driver] {
		errs = append(errs, ValidationError{
			Field:   "database.driver",
			Message: fmt.Sprintf("unrecognized driver %q", cfg.Database.Driver),
		})
	}
	if cfg.Database.DSN == "" {
		errs = append(errs, ValidationError{Field: "database.dsn", Message: "is required"})
	}

	if cfg.Anthropic.APIKey == "" {
		errs = append(errs, ValidationError{
			Field:   "anthropic.api_key",
			Message: "is required (set it in the config or via ANTHROPIC_API_KEY)",
		})
	}

	return errs
}

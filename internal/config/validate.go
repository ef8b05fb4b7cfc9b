package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "server.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Server.Port),
		})
	}

	validBinds := []string{"loopback", "lan", "custom"}
	if cfg.Server.Bind != "" && !slices.Contains(validBinds, cfg.Server.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "server.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Server.Bind),
		})
	}
	if cfg.Server.Bind == "custom" && cfg.Server.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "server.customBindHost",
			Message: "required when server.bind is \"custom\"",
		})
	}

	validDrivers := []string{"sqlite", "memory"}
	if cfg.Storage.Driver != "" && !slices.Contains(validDrivers, cfg.Storage.Driver) {
		issues = append(issues, ValidationIssue{
			Path:    "storage.driver",
			Message: fmt.Sprintf("must be one of %v, got %q", validDrivers, cfg.Storage.Driver),
		})
	}

	if cfg.Autosave.DebounceMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "autosave.debounceMs",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Autosave.DebounceMs),
		})
	}
	if cfg.Autosave.RetryDelayMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "autosave.retryDelayMs",
			Message: fmt.Sprintf("must not be negative, got %d", cfg.Autosave.RetryDelayMs),
		})
	}

	validProviders := []string{"", "http", "openai"}
	if !slices.Contains(validProviders, cfg.TitleGen.Provider) {
		issues = append(issues, ValidationIssue{
			Path:    "titleGen.provider",
			Message: fmt.Sprintf("must be \"http\", \"openai\" or empty, got %q", cfg.TitleGen.Provider),
		})
	}
	if cfg.TitleGen.Provider == "http" && cfg.TitleGen.Endpoint == "" {
		issues = append(issues, ValidationIssue{
			Path:    "titleGen.endpoint",
			Message: "required when titleGen.provider is \"http\"",
		})
	}
	if cfg.TitleGen.Provider == "openai" && cfg.TitleGen.APIKey == "" {
		issues = append(issues, ValidationIssue{
			Path:    "titleGen.apiKey",
			Message: "required when titleGen.provider is \"openai\"",
		})
	}

	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validStyles := []string{"pretty", "json"}
	if cfg.Logging.Style != "" && !slices.Contains(validStyles, cfg.Logging.Style) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.style",
			Message: fmt.Sprintf("must be one of %v, got %q", validStyles, cfg.Logging.Style),
		})
	}

	return issues
}

package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a config validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors represents multiple validation failures.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var b strings.Builder
	b.WriteString("config validation failed:\n")
	for _, err := range e {
		b.WriteString("  - ")
		b.WriteString(err.Error())
		b.WriteString("\n")
	}
	return b.String()
}

// validProviders lists recognized embedding/LLM providers.
var validProviders = map[string]bool{
	"local":  true,
	"remote": true,
}

// Validate checks the configuration for errors.
// Returns ValidationErrors if validation fails.
func Validate(cfg *Config) error {
	var errs ValidationErrors

	if cfg.RootFolder == "" {
		errs = append(errs, ValidationError{
			Field:   "root_folder",
			Message: "must not be empty",
		})
	}

	if !validProviders[cfg.Provider] {
		errs = append(errs, ValidationError{
			Field:   "provider",
			Message: fmt.Sprintf("must be one of: local, remote; got %q", cfg.Provider),
		})
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("must be between 1 and 65535, got %d", cfg.Server.Port),
		})
	}

	if cfg.Server.Bind == "" {
		errs = append(errs, ValidationError{
			Field:   "server.bind",
			Message: "must not be empty",
		})
	}

	if cfg.Server.ShutdownTimeout < 1 {
		errs = append(errs, ValidationError{
			Field:   "server.shutdown_timeout",
			Message: fmt.Sprintf("must be at least 1 second, got %d", cfg.Server.ShutdownTimeout),
		})
	}

	if cfg.Provider == "local" && cfg.Local.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "local.host",
			Message: "must not be empty when provider is local",
		})
	}

	if cfg.Provider == "local" && cfg.Local.EmbedModel == "" {
		errs = append(errs, ValidationError{
			Field:   "local.embed_model",
			Message: "must not be empty when provider is local",
		})
	}

	if cfg.Provider == "remote" && cfg.Remote.EmbedModel == "" {
		errs = append(errs, ValidationError{
			Field:   "remote.embed_model",
			Message: "must not be empty when provider is remote",
		})
	}

	if cfg.Remote.RateLimit < 1 {
		errs = append(errs, ValidationError{
			Field:   "remote.rate_limit",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Remote.RateLimit),
		})
	}

	if cfg.Tuning.WatchDebounceMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "tuning.watch_debounce_ms",
			Message: fmt.Sprintf("must be non-negative, got %d", cfg.Tuning.WatchDebounceMs),
		})
	}

	if cfg.Tuning.ReclusterDebounceMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "tuning.recluster_debounce_ms",
			Message: fmt.Sprintf("must be non-negative, got %d", cfg.Tuning.ReclusterDebounceMs),
		})
	}

	if cfg.Tuning.NoiseThreshold < 0 || cfg.Tuning.NoiseThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "tuning.noise_threshold",
			Message: fmt.Sprintf("must be between 0 and 1, got %g", cfg.Tuning.NoiseThreshold),
		})
	}

	if cfg.Tuning.ClusterThreshold < 0 || cfg.Tuning.ClusterThreshold > 1 {
		errs = append(errs, ValidationError{
			Field:   "tuning.cluster_threshold",
			Message: fmt.Sprintf("must be between 0 and 1, got %g", cfg.Tuning.ClusterThreshold),
		})
	}

	if cfg.Tuning.SmallCollectionMax < 1 {
		errs = append(errs, ValidationError{
			Field:   "tuning.small_collection_max",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Tuning.SmallCollectionMax),
		})
	}

	if cfg.Tuning.MaxExtractChars < 1 {
		errs = append(errs, ValidationError{
			Field:   "tuning.max_extract_chars",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Tuning.MaxExtractChars),
		})
	}

	if cfg.Tuning.EventBusBufferSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "tuning.event_bus_buffer_size",
			Message: fmt.Sprintf("must be at least 1, got %d", cfg.Tuning.EventBusBufferSize),
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// IsValidationError checks if an error is a validation error.
func IsValidationError(err error) bool {
	var ve ValidationError
	var ves ValidationErrors
	return errors.As(err, &ve) || errors.As(err, &ves)
}

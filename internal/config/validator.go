package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "publish.linger_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

const (
	maxLingerMs   = 60_000
	maxSettleMs   = 10_000
	minIntervalMs = 50
)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validatePublish()...)
	errors = append(errors, c.validateSource()...)
	errors = append(errors, c.validateWatch()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validatePublish validates the PublishConfig
func (c *Config) validatePublish() []ValidationError {
	var errors []ValidationError
	p := c.Publish

	// Socket names live in one directory; paths belong in socket_path
	if strings.ContainsAny(p.SocketName, `/\`) || p.SocketName == "." || p.SocketName == ".." {
		errors = append(errors, ValidationError{
			Field:   "publish.socket_name",
			Value:   p.SocketName,
			Message: "must be a plain name; use publish.socket_path for paths",
		})
	}

	if p.LingerMs < 0 || p.LingerMs > maxLingerMs {
		errors = append(errors, ValidationError{
			Field:   "publish.linger_ms",
			Value:   p.LingerMs,
			Message: fmt.Sprintf("must be between 0 and %d", maxLingerMs),
		})
	}

	if p.SettleMs < 0 || p.SettleMs > maxSettleMs {
		errors = append(errors, ValidationError{
			Field:   "publish.settle_ms",
			Value:   p.SettleMs,
			Message: fmt.Sprintf("must be between 0 and %d", maxSettleMs),
		})
	}

	for i, pattern := range p.Include {
		if _, err := glob.Compile(pattern, '.'); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("publish.include[%d]", i),
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob: %v", err),
			})
		}
	}

	return errors
}

// validateSource validates the SourceConfig
func (c *Config) validateSource() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Source.Script) == "" {
		errors = append(errors, ValidationError{
			Field:   "source.script",
			Value:   c.Source.Script,
			Message: "must not be empty",
		})
	}

	return errors
}

// validateWatch validates the WatchConfig
func (c *Config) validateWatch() []ValidationError {
	var errors []ValidationError

	if c.Watch.IntervalMs < minIntervalMs {
		errors = append(errors, ValidationError{
			Field:   "watch.interval_ms",
			Value:   c.Watch.IntervalMs,
			Message: fmt.Sprintf("must be at least %d", minIntervalMs),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

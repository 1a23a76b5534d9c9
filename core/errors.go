package core

import "fmt"

// ConfigError reports run configuration that could not be resolved (for
// example no API token in the run nor in the process defaults). Reason is
// short and safe to show to the end user; Err may carry technical detail.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

// NewConfigError constructs a ConfigError without an underlying cause.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Field, e.Reason, e.Err)
	}

	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// UserMessage returns the end-user facing text.
func (e *ConfigError) UserMessage() string { return e.Reason }

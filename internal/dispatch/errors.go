package dispatch

import "fmt"

// ConfigurationError rejects a request before any side effect: the named
// operation is not registered at all.
type ConfigurationError struct {
	Operation string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: unknown operation %q", e.Operation)
}

// NewConfigurationError creates a ConfigurationError for an unknown operation.
func NewConfigurationError(operation string) *ConfigurationError {
	return &ConfigurationError{Operation: operation}
}

// CapabilityDeniedError means the operation exists but its owning group is
// currently disabled. Informative and non-fatal: the caller can enable the
// group and retry.
type CapabilityDeniedError struct {
	Operation string
	Group     string
}

func (e *CapabilityDeniedError) Error() string {
	return fmt.Sprintf("capability denied: operation %q belongs to disabled group %q", e.Operation, e.Group)
}

// NewCapabilityDeniedError creates a CapabilityDeniedError naming the
// owning group.
func NewCapabilityDeniedError(operation, group string) *CapabilityDeniedError {
	return &CapabilityDeniedError{Operation: operation, Group: group}
}

// HandlerError wraps a downstream call failure. It is captured as
// error-result data in telemetry, never as a telemetry fault.
type HandlerError struct {
	Operation string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler error in %q: %v", e.Operation, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

package audit

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Use errors.Is to test for them; the concrete error types
// below wrap them with backend and field context.
var (
	ErrInvalidLogger        = errors.New("exactly one logger variant must be set")
	ErrInvalidOutput        = errors.New("unsupported console output")
	ErrInvalidDateFormat    = errors.New("invalid date format")
	ErrInvalidPattern       = errors.New("invalid regular expression")
	ErrInvalidMessageFormat = errors.New("unsupported syslog message format")
	ErrInvalidFacility      = errors.New("unsupported syslog facility")
	ErrInvalidProtocol      = errors.New("unsupported syslog protocol")
	ErrInvalidValue         = errors.New("invalid value")
	ErrLoggerClosed         = errors.New("audit logger is closed")
)

// ConfigError is a configuration fault for one backend (or the match
// pattern). It is reported to the operator and never degrades silently.
type ConfigError struct {
	Backend string
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	msg := "audit config"
	if e.Backend != "" {
		msg += ": " + e.Backend
	}
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// TransportError is a per-event syslog delivery failure. The event is lost
// for that backend; other backends are unaffected.
type TransportError struct {
	Backend string
	Addr    string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("audit transport: %s (%s): %v", e.Backend, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IOError is a file write or rotation failure after the file was opened.
// The backend keeps trying on later events.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("audit io: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// MultiError collects the backend failures of one dispatch.
type MultiError struct {
	Errors []error
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d audit backends failed: %s", len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

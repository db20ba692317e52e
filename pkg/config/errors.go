package config

import (
	"errors"
	"fmt"
	"strings"
)

// Load and save errors.
var (
	ErrFileNotFound     = errors.New("configuration file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidJSON      = errors.New("invalid JSON syntax")
	ErrInvalidYAML      = errors.New("invalid YAML syntax")
	ErrEmptyFile        = errors.New("configuration file is empty")
)

// Violation is one problem found in a configuration document.
type Violation struct {
	// Path locates the problem, e.g. "loggers[1].syslog.protocol".
	Path    string
	Message string
	Err     error
}

func (v Violation) Error() string {
	if v.Path == "" {
		return v.Message
	}
	return v.Path + ": " + v.Message
}

// ValidationError collects semantic problems. Each violation wraps the
// underlying audit error, so errors.Is works against the audit sentinels.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) add(path string, err error) {
	e.Violations = append(e.Violations, Violation{Path: path, Message: err.Error(), Err: err})
}

func (e *ValidationError) Error() string {
	return joinViolations("invalid configuration", e.Violations)
}

// Unwrap exposes the wrapped audit errors.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, 0, len(e.Violations))
	for _, v := range e.Violations {
		if v.Err != nil {
			out = append(out, v.Err)
		}
	}
	return out
}

// SchemaError lists structural problems reported by the JSON schema.
type SchemaError struct {
	Source     string
	Violations []Violation
}

func (e *SchemaError) Error() string {
	head := "configuration does not match schema"
	if e.Source != "" {
		head = fmt.Sprintf("%s does not match schema", e.Source)
	}
	return joinViolations(head, e.Violations)
}

func joinViolations(head string, violations []Violation) string {
	if len(violations) == 0 {
		return head
	}
	msgs := make([]string, len(violations))
	for i, v := range violations {
		msgs[i] = v.Error()
	}
	return head + ": " + strings.Join(msgs, "; ")
}

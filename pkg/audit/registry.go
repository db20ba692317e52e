package audit

import (
	"log/slog"
	"sync"

	"github.com/getmockd/audittrail/pkg/logging"
)

// Dispatcher fans a message out to audit backends.
type Dispatcher interface {
	Dispatch(message string) error
}

// Registry is the ordered list of configured backends. Insertion order is
// dispatch order; duplicates are allowed.
type Registry struct {
	mu       sync.RWMutex
	loggers  []AuditLogger
	reporter *slog.Logger
}

// NewRegistry creates a registry. Nil loggers are dropped; a nil reporter
// discards failure reports.
func NewRegistry(reporter *slog.Logger, loggers ...AuditLogger) *Registry {
	if reporter == nil {
		reporter = logging.Nop()
	}
	return &Registry{
		loggers:  compact(loggers),
		reporter: reporter,
	}
}

func compact(loggers []AuditLogger) []AuditLogger {
	out := make([]AuditLogger, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

// Dispatch logs message on every backend in order. A failing backend does
// not stop the others; each failure is reported once and the failures are
// returned together as a *MultiError.
func (r *Registry) Dispatch(message string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, l := range r.loggers {
		if err := l.Log(message); err != nil {
			r.reporter.Warn("audit backend write failed", "backend", l.String(), "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return &MultiError{Errors: errs}
	}
	return nil
}

// Add appends a backend.
func (r *Registry) Add(l AuditLogger) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loggers = append(r.loggers, l)
}

// Replace installs a new backend list and closes every previous backend
// that is not part of it. It waits for in-flight dispatches, so a retired
// backend is never closed under a write.
func (r *Registry) Replace(loggers []AuditLogger) error {
	next := compact(loggers)

	r.mu.Lock()
	prev := r.loggers
	r.loggers = next
	r.mu.Unlock()

	var errs []error
	for _, old := range prev {
		if containsInstance(next, old) {
			continue
		}
		if err := old.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &MultiError{Errors: errs}
	}
	return nil
}

func containsInstance(list []AuditLogger, l AuditLogger) bool {
	for _, x := range list {
		if x == l {
			return true
		}
	}
	return false
}

// Loggers returns a copy of the backend list.
func (r *Registry) Loggers() []AuditLogger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AuditLogger, len(r.loggers))
	copy(out, r.loggers)
	return out
}

// Configs returns the configuration of every backend, in order.
func (r *Registry) Configs() []LoggerConfig {
	loggers := r.Loggers()
	out := make([]LoggerConfig, len(loggers))
	for i, l := range loggers {
		out[i] = l.Config()
	}
	return out
}

// Find returns the first backend whose config equals cfg.
func (r *Registry) Find(cfg LoggerConfig) (AuditLogger, bool) {
	cfg = cfg.WithDefaults()
	for _, l := range r.Loggers() {
		if l.Config().Equal(cfg) {
			return l, true
		}
	}
	return nil, false
}

// Contains reports whether a backend with an equal config is registered.
func (r *Registry) Contains(cfg LoggerConfig) bool {
	_, ok := r.Find(cfg)
	return ok
}

// Len returns the number of backends.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.loggers)
}

// Configure calls Configure on every backend and returns the failures.
func (r *Registry) Configure() error {
	var errs []error
	for _, l := range r.Loggers() {
		if err := l.Configure(); err != nil {
			r.reporter.Error("audit backend configuration failed", "backend", l.String(), "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &MultiError{Errors: errs}
	}
	return nil
}

// Close closes every backend and empties the registry.
func (r *Registry) Close() error {
	return r.Replace(nil)
}

var _ Dispatcher = (*Registry)(nil)

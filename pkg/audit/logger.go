package audit

import (
	"io"
	"strings"
	"time"
)

// AuditLogger is one audit backend.
type AuditLogger interface {
	// Configure (re)initializes the backend's resource and derived state.
	// It is safe to call more than once.
	Configure() error

	// Log appends one record. Implementations must be thread-safe and
	// configure themselves lazily on first use.
	Log(message string) error

	// Close releases the backend's resource. Log fails after Close until
	// Configure is called again.
	Close() error

	// Config returns the backend's configuration with defaults applied.
	Config() LoggerConfig

	// String returns a short label for diagnostics.
	String() string
}

// Option customizes a backend at construction time.
type Option func(*options)

type options struct {
	now     func() time.Time
	stream  io.Writer
	timeout time.Duration
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithStream makes a console logger write to w instead of the standard
// stream its output selector names. The per-selector lock still applies.
func WithStream(w io.Writer) Option {
	return func(o *options) {
		o.stream = w
	}
}

// WithTimeout bounds syslog dialing and writes.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// NewLogger builds the backend described by cfg. The config is validated;
// the backend's resource is not acquired until Configure or the first Log.
func NewLogger(cfg LoggerConfig, opts ...Option) (AuditLogger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()

	switch cfg.Kind() {
	case "console":
		return NewConsoleLogger(*cfg.Console, opts...)
	case "logFile":
		return NewLogFileLogger(*cfg.LogFile, opts...)
	default:
		return NewSyslogLogger(*cfg.Syslog, opts...)
	}
}

var lineBreaks = strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\r`)

// Sanitize escapes line breaks so one event always occupies one line.
func Sanitize(message string) string {
	if !strings.ContainsAny(message, "\r\n") {
		return message
	}
	return lineBreaks.Replace(message)
}

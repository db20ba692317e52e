package audit

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/getmockd/audittrail/internal/datefmt"
)

// outputLocks serializes writes per output selector, so two console
// loggers on STD_OUT never interleave a line while STD_OUT and STD_ERR
// writers proceed independently.
var outputLocks = map[Output]*sync.Mutex{
	OutputStdout: {},
	OutputStderr: {},
}

// ConsoleLogger writes "{timestamp}{prefix}{message}" lines to stdout or
// stderr.
type ConsoleLogger struct {
	mu         sync.Mutex
	cfg        ConsoleConfig
	out        io.Writer
	layout     *datefmt.Layout
	prefix     string
	configured bool
	closed     bool

	stream io.Writer
	now    func() time.Time
}

// NewConsoleLogger validates cfg and returns an unconfigured logger.
func NewConsoleLogger(cfg ConsoleConfig, opts ...Option) (*ConsoleLogger, error) {
	lc := LoggerConfig{Console: &cfg}.WithDefaults()
	if err := lc.Console.validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	return &ConsoleLogger{
		cfg:    *lc.Console,
		stream: o.stream,
		now:    o.now,
	}, nil
}

// Configure resolves the stream, compiles the date format and computes the
// padded prefix.
func (l *ConsoleLogger) Configure() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.configureLocked()
}

func (l *ConsoleLogger) configureLocked() error {
	layout, err := datefmt.Compile(l.cfg.DateFormat)
	if err != nil {
		return &ConfigError{Backend: "console", Field: "dateFormat", Err: fmt.Errorf("%w: %v", ErrInvalidDateFormat, err)}
	}

	switch {
	case l.stream != nil:
		l.out = l.stream
	case l.cfg.Output == OutputStderr:
		l.out = os.Stderr
	default:
		l.out = os.Stdout
	}

	l.layout = layout
	l.prefix = paddedPrefix(l.cfg.LogPrefix)
	l.configured = true
	l.closed = false
	return nil
}

func paddedPrefix(prefix string) string {
	if prefix == "" {
		return " - "
	}
	return " - " + prefix + " - "
}

// Log writes one line.
func (l *ConsoleLogger) Log(message string) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoggerClosed
	}
	if !l.configured {
		if err := l.configureLocked(); err != nil {
			l.mu.Unlock()
			return err
		}
	}
	out, output := l.out, l.cfg.Output
	line := l.layout.Format(l.now()) + l.prefix + Sanitize(message) + "\n"
	l.mu.Unlock()

	lock := outputLocks[output]
	lock.Lock()
	defer lock.Unlock()

	if _, err := io.WriteString(out, line); err != nil {
		return &IOError{Path: string(output), Op: "write", Err: err}
	}
	return nil
}

// Close stops the logger. The standard streams are left open.
func (l *ConsoleLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	l.configured = false
	return nil
}

// SetOutput switches the output selector. The change takes effect on the
// next Configure or Log.
func (l *ConsoleLogger) SetOutput(output Output) error {
	if !output.Valid() {
		return &ConfigError{Backend: "console", Field: "output",
			Message: fmt.Sprintf("%q", output), Err: ErrInvalidOutput}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg.Output = output
	l.configured = false
	return nil
}

// SetDateFormat replaces the date format. Invalid patterns are rejected and
// the current pattern is kept.
func (l *ConsoleLogger) SetDateFormat(pattern string) error {
	if err := validateDateFormat(pattern); err != nil {
		return &ConfigError{Backend: "console", Field: "dateFormat", Err: err}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg.DateFormat = pattern
	l.configured = false
	return nil
}

// SetLogPrefix replaces the prefix.
func (l *ConsoleLogger) SetLogPrefix(prefix string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg.LogPrefix = prefix
	l.configured = false
}

// Config returns the logger configuration.
func (l *ConsoleLogger) Config() LoggerConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	cfg := l.cfg
	return LoggerConfig{Console: &cfg}
}

func (l *ConsoleLogger) String() string {
	return l.Config().String()
}

var _ AuditLogger = (*ConsoleLogger)(nil)

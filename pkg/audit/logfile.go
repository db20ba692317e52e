package audit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getmockd/audittrail/internal/datefmt"
)

// generationToken in a log path is replaced by the generation number.
const generationToken = "%g"

var fileTimestamp = datefmt.MustCompile(DefaultFileDateFormat)

// LogFileLogger appends timestamped lines to a file and rotates it by size
// through a fixed number of numbered generations.
type LogFileLogger struct {
	mu     sync.Mutex
	cfg    LogFileConfig
	file   *os.File
	size   int64
	closed bool

	now func() time.Time
}

// NewLogFileLogger validates cfg and returns an unopened logger.
func NewLogFileLogger(cfg LogFileConfig, opts ...Option) (*LogFileLogger, error) {
	lc := LoggerConfig{LogFile: &cfg}.WithDefaults()
	if err := lc.LogFile.validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	return &LogFileLogger{
		cfg: *lc.LogFile,
		now: o.now,
	}, nil
}

// Configure (re)opens the active file for append, creating parent
// directories. Failure is a configuration error.
func (l *LogFileLogger) Configure() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closeFileLocked()
	l.closed = false
	return l.openLocked()
}

// openLocked opens the active generation. The caller must hold the mutex.
func (l *LogFileLogger) openLocked() error {
	path := l.generationPath(0)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &ConfigError{Backend: "logFile", Field: "log", Message: "cannot create log directory", Err: err}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return &ConfigError{Backend: "logFile", Field: "log", Message: "cannot open log file", Err: err}
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return &ConfigError{Backend: "logFile", Field: "log", Message: "cannot stat log file", Err: err}
	}

	l.file = file
	l.size = info.Size()
	return nil
}

// Log writes one line and rotates when the file grew past the cap.
func (l *LogFileLogger) Log(message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLoggerClosed
	}
	if l.file == nil {
		if err := l.openLocked(); err != nil {
			return err
		}
	}

	line := fileTimestamp.Format(l.now()) + Sanitize(message) + "\n"
	n, err := l.file.WriteString(line)
	l.size += int64(n)
	if err != nil {
		// Drop the handle so the next event reopens the file.
		l.closeFileLocked()
		return &IOError{Path: l.generationPath(0), Op: "write", Err: err}
	}

	if limit := l.cfg.MaxBytesPerFile(); limit > 0 && l.size > limit {
		if err := l.rotateLocked(); err != nil {
			return err
		}
	}
	return nil
}

// rotateLocked shifts generations: the oldest is removed, n becomes n+1
// and the active file becomes generation 1. With a single generation the
// active file is truncated. The caller must hold the mutex.
func (l *LogFileLogger) rotateLocked() error {
	active := l.generationPath(0)
	l.closeFileLocked()

	if l.cfg.Count <= 1 {
		if err := os.Truncate(active, 0); err != nil {
			return &IOError{Path: active, Op: "truncate", Err: err}
		}
		return l.reopenAfterRotate(active)
	}

	oldest := l.generationPath(l.cfg.Count - 1)
	if err := os.Remove(oldest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &IOError{Path: oldest, Op: "remove", Err: err}
	}

	for i := l.cfg.Count - 2; i >= 1; i-- {
		from, to := l.generationPath(i), l.generationPath(i+1)
		if err := os.Rename(from, to); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &IOError{Path: from, Op: "rename", Err: err}
		}
	}

	if err := os.Rename(active, l.generationPath(1)); err != nil {
		_ = l.reopenAfterRotate(active)
		return &IOError{Path: active, Op: "rename", Err: err}
	}
	return l.reopenAfterRotate(active)
}

func (l *LogFileLogger) reopenAfterRotate(active string) error {
	if err := l.openLocked(); err != nil {
		return &IOError{Path: active, Op: "reopen", Err: err}
	}
	return nil
}

// generationPath returns the path of generation n (0 is the active file).
func (l *LogFileLogger) generationPath(n int) string {
	if strings.Contains(l.cfg.Log, generationToken) {
		return strings.ReplaceAll(l.cfg.Log, generationToken, strconv.Itoa(n))
	}
	if n == 0 {
		return l.cfg.Log
	}
	return fmt.Sprintf("%s.%d", l.cfg.Log, n)
}

func (l *LogFileLogger) closeFileLocked() {
	if l.file == nil {
		return
	}
	_ = l.file.Sync()
	_ = l.file.Close()
	l.file = nil
}

// Close flushes and closes the active file.
func (l *LogFileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	if l.file == nil {
		return nil
	}
	_ = l.file.Sync()
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the active file path.
func (l *LogFileLogger) Path() string {
	return l.generationPath(0)
}

// Size returns the active file size as tracked by the logger.
func (l *LogFileLogger) Size() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Config returns the logger configuration.
func (l *LogFileLogger) Config() LoggerConfig {
	cfg := l.cfg
	return LoggerConfig{LogFile: &cfg}
}

func (l *LogFileLogger) String() string {
	return l.Config().String()
}

var _ AuditLogger = (*LogFileLogger)(nil)

package audit

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/getmockd/audittrail/pkg/syslog"
)

// SyslogLogger forwards events to a syslog daemon.
type SyslogLogger struct {
	mu       sync.Mutex
	cfg      SyslogConfig
	format   syslog.Format
	facility syslog.Facility
	protocol syslog.Protocol
	hostname string
	procID   string
	client   *syslog.Client
	closed   bool

	timeout time.Duration
	now     func() time.Time
}

// NewSyslogLogger validates cfg and returns an unconnected logger.
func NewSyslogLogger(cfg SyslogConfig, opts ...Option) (*SyslogLogger, error) {
	lc := LoggerConfig{Syslog: &cfg}.WithDefaults()
	if err := lc.Syslog.validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts)
	return &SyslogLogger{
		cfg:     *lc.Syslog,
		timeout: o.timeout,
		now:     o.now,
	}, nil
}

// Configure parses the enumerated settings and replaces the network
// client. The connection itself is opened on the first send.
func (l *SyslogLogger) Configure() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.configureLocked()
}

func (l *SyslogLogger) configureLocked() error {
	format, err := syslog.ParseFormat(l.cfg.MessageFormat)
	if err != nil {
		return &ConfigError{Backend: "syslog", Field: "messageFormat", Message: err.Error(), Err: ErrInvalidMessageFormat}
	}
	facility, err := syslog.ParseFacility(l.cfg.Facility)
	if err != nil {
		return &ConfigError{Backend: "syslog", Field: "facility", Message: err.Error(), Err: ErrInvalidFacility}
	}
	protocol, err := syslog.ParseProtocol(l.cfg.Protocol)
	if err != nil {
		return &ConfigError{Backend: "syslog", Field: "protocol", Message: err.Error(), Err: ErrInvalidProtocol}
	}

	client, err := syslog.NewClient(protocol, l.cfg.SyslogServerHostname, l.cfg.SyslogServerPort, l.timeout)
	if err != nil {
		return &ConfigError{Backend: "syslog", Field: "protocol", Message: err.Error(), Err: ErrInvalidProtocol}
	}

	if l.client != nil {
		_ = l.client.Close()
	}

	l.format = format
	l.facility = facility
	l.protocol = protocol
	l.client = client
	l.hostname = l.cfg.MessageHostname
	if l.hostname == "" {
		l.hostname, _ = os.Hostname()
	}
	l.procID = strconv.Itoa(os.Getpid())
	l.closed = false
	return nil
}

// Log renders and sends one message. A delivery failure is returned as a
// *TransportError; the message is not retried.
func (l *SyslogLogger) Log(message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrLoggerClosed
	}
	if l.client == nil {
		if err := l.configureLocked(); err != nil {
			return err
		}
	}

	msg := syslog.Message{
		Facility:  l.facility,
		Severity:  syslog.SeverityInformational,
		Timestamp: l.now(),
		Hostname:  l.hostname,
		AppName:   l.cfg.AppName,
		ProcID:    l.procID,
		Text:      Sanitize(message),
	}
	payload, err := msg.Render(l.format)
	if err != nil {
		return &ConfigError{Backend: "syslog", Field: "messageFormat", Err: err}
	}

	if err := l.client.Send(payload); err != nil {
		return &TransportError{Backend: "syslog", Addr: l.client.Addr(), Err: err}
	}
	return nil
}

// Close releases the network client.
func (l *SyslogLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	if l.client == nil {
		return nil
	}
	err := l.client.Close()
	l.client = nil
	return err
}

// Config returns the logger configuration.
func (l *SyslogLogger) Config() LoggerConfig {
	cfg := l.cfg
	return LoggerConfig{Syslog: &cfg}
}

func (l *SyslogLogger) String() string {
	return l.Config().String()
}

var _ AuditLogger = (*SyslogLogger)(nil)

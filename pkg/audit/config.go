package audit

import (
	"fmt"

	"github.com/getmockd/audittrail/internal/datefmt"
	"github.com/getmockd/audittrail/pkg/syslog"
)

// Output selects the standard stream a console logger writes to.
type Output string

// Console outputs.
const (
	OutputStdout Output = "STD_OUT"
	OutputStderr Output = "STD_ERR"
)

// Valid reports whether o is one of the accepted outputs.
func (o Output) Valid() bool {
	return o == OutputStdout || o == OutputStderr
}

// Backend defaults.
const (
	DefaultConsoleDateFormat = "yyyy-MM-dd HH:mm:ss.SSS"
	DefaultFileDateFormat    = "MMM d, yyyy h:mm:ss,SSS aa "
	DefaultAppName           = "audit-trail"
	DefaultFacility          = syslog.FacilityUser
	DefaultSyslogPort        = 514
	DefaultMessageFormat     = syslog.RFC3164
	DefaultProtocol          = syslog.UDP

	// bytesPerLimitUnit converts LogFileConfig.Limit (MiB) to bytes.
	bytesPerLimitUnit = 1024 * 1024
)

// LoggerConfig describes one backend. Exactly one variant is set; the
// variant key doubles as the serialized type tag.
type LoggerConfig struct {
	Console *ConsoleConfig `json:"console,omitempty" yaml:"console,omitempty"`
	LogFile *LogFileConfig `json:"logFile,omitempty" yaml:"logFile,omitempty"`
	Syslog  *SyslogConfig  `json:"syslog,omitempty" yaml:"syslog,omitempty"`
}

// ConsoleConfig configures a console logger.
type ConsoleConfig struct {
	// Output is STD_OUT or STD_ERR.
	Output Output `json:"output" yaml:"output"`

	// DateFormat is a pattern such as "yyyy-MM-dd HH:mm:ss:SSS".
	DateFormat string `json:"dateFormat" yaml:"dateFormat"`

	// LogPrefix is inserted between timestamp and message when non-empty.
	LogPrefix string `json:"logPrefix,omitempty" yaml:"logPrefix,omitempty"`
}

// LogFileConfig configures a rotating file logger.
type LogFileConfig struct {
	// Log is the file path. A "%g" token is replaced by the generation
	// number (0 is the active file).
	Log string `json:"log" yaml:"log"`

	// Limit is the size cap per file in MiB. 0 disables rotation.
	Limit int `json:"limit" yaml:"limit"`

	// Count is the number of generations kept, the active file included.
	Count int `json:"count" yaml:"count"`

	// MaxBytes overrides Limit with an exact byte cap when > 0.
	MaxBytes int64 `json:"maxBytes,omitempty" yaml:"maxBytes,omitempty"`
}

// MaxBytesPerFile returns the effective byte cap (0 means unbounded).
func (c LogFileConfig) MaxBytesPerFile() int64 {
	if c.MaxBytes > 0 {
		return c.MaxBytes
	}
	return int64(c.Limit) * bytesPerLimitUnit
}

// SyslogConfig configures a syslog logger.
type SyslogConfig struct {
	SyslogServerHostname string `json:"syslogServerHostname,omitempty" yaml:"syslogServerHostname,omitempty"`
	SyslogServerPort     int    `json:"syslogServerPort,omitempty" yaml:"syslogServerPort,omitempty"`

	// MessageFormat is RFC_3164 or RFC_5424.
	MessageFormat string `json:"messageFormat,omitempty" yaml:"messageFormat,omitempty"`
	AppName       string `json:"appName,omitempty" yaml:"appName,omitempty"`

	// Facility is a facility name such as USER or LOCAL0.
	Facility string `json:"facility,omitempty" yaml:"facility,omitempty"`

	// Protocol is UDP, TCP or UNIX.
	Protocol string `json:"protocol,omitempty" yaml:"protocol,omitempty"`

	// MessageHostname overrides the HOSTNAME header field.
	MessageHostname string `json:"messageHostname,omitempty" yaml:"messageHostname,omitempty"`
}

// Kind returns the variant tag ("console", "logFile", "syslog"), or "" when
// the config does not hold exactly one variant.
func (c LoggerConfig) Kind() string {
	kind, n := "", 0
	if c.Console != nil {
		kind, n = "console", n+1
	}
	if c.LogFile != nil {
		kind, n = "logFile", n+1
	}
	if c.Syslog != nil {
		kind, n = "syslog", n+1
	}
	if n != 1 {
		return ""
	}
	return kind
}

// Equal reports value equality: same variant and same field values.
func (c LoggerConfig) Equal(o LoggerConfig) bool {
	switch c.Kind() {
	case "console":
		return o.Console != nil && o.Kind() == "console" && *c.Console == *o.Console
	case "logFile":
		return o.LogFile != nil && o.Kind() == "logFile" && *c.LogFile == *o.LogFile
	case "syslog":
		return o.Syslog != nil && o.Kind() == "syslog" && *c.Syslog == *o.Syslog
	default:
		return false
	}
}

// WithDefaults returns a deep copy with unset optional fields filled in.
func (c LoggerConfig) WithDefaults() LoggerConfig {
	var out LoggerConfig
	if c.Console != nil {
		cc := *c.Console
		if cc.Output == "" {
			cc.Output = OutputStdout
		}
		if cc.DateFormat == "" {
			cc.DateFormat = DefaultConsoleDateFormat
		}
		out.Console = &cc
	}
	if c.LogFile != nil {
		lc := *c.LogFile
		if lc.Count < 1 {
			lc.Count = 1
		}
		out.LogFile = &lc
	}
	if c.Syslog != nil {
		sc := *c.Syslog
		if sc.MessageFormat == "" {
			sc.MessageFormat = string(DefaultMessageFormat)
		}
		if sc.AppName == "" {
			sc.AppName = DefaultAppName
		}
		if sc.Facility == "" {
			sc.Facility = DefaultFacility.String()
		}
		if sc.Protocol == "" {
			sc.Protocol = string(DefaultProtocol)
		}
		if sc.SyslogServerPort == 0 && sc.Protocol != string(syslog.UNIX) {
			sc.SyslogServerPort = DefaultSyslogPort
		}
		out.Syslog = &sc
	}
	return out
}

// Validate checks the config after defaults are applied.
func (c LoggerConfig) Validate() error {
	c = c.WithDefaults()
	switch c.Kind() {
	case "console":
		return c.Console.validate()
	case "logFile":
		return c.LogFile.validate()
	case "syslog":
		return c.Syslog.validate()
	default:
		return &ConfigError{Message: "logger", Err: ErrInvalidLogger}
	}
}

// String returns a short label for diagnostics.
func (c LoggerConfig) String() string {
	switch c.Kind() {
	case "console":
		return fmt.Sprintf("console(%s)", c.Console.Output)
	case "logFile":
		return fmt.Sprintf("logFile(%s)", c.LogFile.Log)
	case "syslog":
		return fmt.Sprintf("syslog(%s:%d)", c.Syslog.SyslogServerHostname, c.Syslog.SyslogServerPort)
	default:
		return "invalid"
	}
}

func (c *ConsoleConfig) validate() error {
	if !c.Output.Valid() {
		return &ConfigError{Backend: "console", Field: "output",
			Message: fmt.Sprintf("%q, must be one of: %s, %s", c.Output, OutputStdout, OutputStderr),
			Err:     ErrInvalidOutput}
	}
	if err := validateDateFormat(c.DateFormat); err != nil {
		return &ConfigError{Backend: "console", Field: "dateFormat", Err: err}
	}
	return nil
}

func (c *LogFileConfig) validate() error {
	if c.Log == "" {
		return &ConfigError{Backend: "logFile", Field: "log", Message: "path is required", Err: ErrInvalidValue}
	}
	if c.Limit < 0 {
		return &ConfigError{Backend: "logFile", Field: "limit", Message: "must not be negative", Err: ErrInvalidValue}
	}
	if c.MaxBytes < 0 {
		return &ConfigError{Backend: "logFile", Field: "maxBytes", Message: "must not be negative", Err: ErrInvalidValue}
	}
	if c.Count < 1 {
		return &ConfigError{Backend: "logFile", Field: "count", Message: "must be at least 1", Err: ErrInvalidValue}
	}
	return nil
}

func (c *SyslogConfig) validate() error {
	if _, err := syslog.ParseFormat(c.MessageFormat); err != nil {
		return &ConfigError{Backend: "syslog", Field: "messageFormat", Message: err.Error(), Err: ErrInvalidMessageFormat}
	}
	if _, err := syslog.ParseFacility(c.Facility); err != nil {
		return &ConfigError{Backend: "syslog", Field: "facility", Message: err.Error(), Err: ErrInvalidFacility}
	}
	if _, err := syslog.ParseProtocol(c.Protocol); err != nil {
		return &ConfigError{Backend: "syslog", Field: "protocol", Message: err.Error(), Err: ErrInvalidProtocol}
	}
	if c.SyslogServerPort < 0 || c.SyslogServerPort > 65535 {
		return &ConfigError{Backend: "syslog", Field: "syslogServerPort",
			Message: fmt.Sprintf("%d out of range", c.SyslogServerPort), Err: ErrInvalidValue}
	}
	return nil
}

func validateDateFormat(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("%w: empty pattern", ErrInvalidDateFormat)
	}
	if err := datefmt.Validate(pattern); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDateFormat, err)
	}
	return nil
}

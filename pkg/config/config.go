package config

import (
	"fmt"
	"strings"

	"github.com/getmockd/audittrail/pkg/audit"
)

// Legacy defaults for a single-file setup without explicit limit or count.
const (
	LegacyDefaultLimit = 1
	LegacyDefaultCount = 1
)

// Config is the persisted audit trail configuration.
type Config struct {
	// Pattern selects audit-worthy request paths. Empty means the default.
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// LogBuildCause enables build start records. Completion records are
	// always written.
	LogBuildCause bool `json:"logBuildCause" yaml:"logBuildCause"`

	// Loggers is the ordered backend list.
	Loggers []audit.LoggerConfig `json:"loggers,omitempty" yaml:"loggers,omitempty"`

	// Include lists glob patterns of fragment files, relative to the
	// config file. Their loggers are appended in match order.
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`

	// Single-file settings from before the logger list existed. Consumed
	// by MigrateLegacy.
	Log   string `json:"log,omitempty" yaml:"log,omitempty"`
	Limit int    `json:"limit,omitempty" yaml:"limit,omitempty"`
	Count int    `json:"count,omitempty" yaml:"count,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Pattern:       audit.DefaultPattern,
		LogBuildCause: true,
	}
}

// EffectivePattern returns Pattern or the default pattern.
func (c *Config) EffectivePattern() string {
	if c.Pattern == "" {
		return audit.DefaultPattern
	}
	return c.Pattern
}

// HasLegacy reports whether single-file settings are present.
func (c *Config) HasLegacy() bool {
	return c.Log != ""
}

// MigrateLegacy turns the single-file settings into a logFile logger. The
// logger is appended only if no equal logger exists; the legacy fields are
// cleared either way. It reports whether legacy settings were consumed.
func (c *Config) MigrateLegacy() bool {
	if c.Log == "" {
		c.Limit, c.Count = 0, 0
		return false
	}

	lc := audit.LogFileConfig{Log: c.Log, Limit: c.Limit, Count: c.Count}
	if lc.Limit <= 0 {
		lc.Limit = LegacyDefaultLimit
	}
	if lc.Count <= 0 {
		lc.Count = LegacyDefaultCount
	}
	candidate := audit.LoggerConfig{LogFile: &lc}.WithDefaults()

	if !c.hasLogger(candidate) {
		c.Loggers = append(c.Loggers, candidate)
	}

	c.Log, c.Limit, c.Count = "", 0, 0
	return true
}

func (c *Config) hasLogger(cfg audit.LoggerConfig) bool {
	for _, l := range c.Loggers {
		if l.WithDefaults().Equal(cfg) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Loggers = make([]audit.LoggerConfig, len(c.Loggers))
	for i, l := range c.Loggers {
		out.Loggers[i] = l.WithDefaults()
	}
	out.Include = append([]string(nil), c.Include...)
	return &out
}

// Normalize applies backend defaults in place.
func (c *Config) Normalize() {
	for i := range c.Loggers {
		c.Loggers[i] = c.Loggers[i].WithDefaults()
	}
}

// ValidateLegacy checks the legacy log/limit/count fields. MigrateLegacy
// replaces out-of-range values with defaults, so it must run first.
func (c *Config) ValidateLegacy() error {
	result := &ValidationError{}
	c.validateLegacy(result)
	if len(result.Violations) == 0 {
		return nil
	}
	return result
}

func (c *Config) validateLegacy(result *ValidationError) {
	if c.Log == "" {
		return
	}
	if c.Limit < 0 {
		result.add("limit", fmt.Errorf("%w: must not be negative", audit.ErrInvalidValue))
	}
	if c.Count < 0 {
		result.add("count", fmt.Errorf("%w: must not be negative", audit.ErrInvalidValue))
	}
}

// Validate checks the pattern, every logger and any legacy fields not yet
// migrated. All problems are reported together.
func (c *Config) Validate() error {
	result := &ValidationError{}

	if c.Pattern != "" {
		if err := audit.ValidatePattern(c.Pattern); err != nil {
			result.add("pattern", err)
		}
	}

	for i, l := range c.Loggers {
		if err := l.Validate(); err != nil {
			result.add(fmt.Sprintf("loggers[%d]", i), err)
		}
	}

	c.validateLegacy(result)

	for i, pattern := range c.Include {
		if strings.TrimSpace(pattern) == "" {
			result.add(fmt.Sprintf("include[%d]", i), fmt.Errorf("%w: empty pattern", audit.ErrInvalidValue))
		}
	}

	if len(result.Violations) == 0 {
		return nil
	}
	return result
}

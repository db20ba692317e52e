package audit

import (
	"regexp"
	"sync/atomic"
)

// DefaultPattern matches the administrative and job-mutating endpoints of
// the automation server: configuration submission, deletion, enable and
// disable, queue cancellation, workspace wipe, item and view creation,
// restart and shutdown.
const DefaultPattern = ".*/(?:configSubmit|doDelete|postBuildResult|enable|disable|" +
	"cancelQueue|stop|toggleLogKeep|doWipeOutWorkspace|createItem|createView|toggleOffline|" +
	"cancelQuietDown|quietDown|restart|exit|safeExit)"

type compiledPattern struct {
	raw string
	re  *regexp.Regexp
}

// Matcher decides whether a request path is audit-worthy. The pattern must
// match the whole path. It is safe for concurrent use; SetPattern swaps the
// compiled pattern atomically.
type Matcher struct {
	current atomic.Pointer[compiledPattern]
}

// NewMatcher compiles pattern. An empty pattern selects DefaultPattern.
func NewMatcher(pattern string) (*Matcher, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	cp, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	m := &Matcher{}
	m.current.Store(cp)
	return m, nil
}

func compilePattern(pattern string) (*compiledPattern, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		// Report the error against the operator's pattern, not the anchored form.
		if _, rawErr := regexp.Compile(pattern); rawErr != nil {
			err = rawErr
		}
		return nil, &ConfigError{Field: "pattern", Message: err.Error(), Err: ErrInvalidPattern}
	}
	return &compiledPattern{raw: pattern, re: re}, nil
}

// ValidatePattern checks pattern syntax without installing it.
func ValidatePattern(pattern string) error {
	_, err := compilePattern(pattern)
	return err
}

// SetPattern validates and installs a new pattern. On error the active
// pattern is unchanged.
func (m *Matcher) SetPattern(pattern string) error {
	cp, err := compilePattern(pattern)
	if err != nil {
		return err
	}
	m.current.Store(cp)
	return nil
}

// Pattern returns the active pattern.
func (m *Matcher) Pattern() string {
	return m.current.Load().raw
}

// Match reports whether path matches the active pattern in full.
func (m *Matcher) Match(path string) bool {
	if path == "" {
		return false
	}
	return m.current.Load().re.MatchString(path)
}

package trail

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/getmockd/audittrail/pkg/audit"
	"github.com/getmockd/audittrail/pkg/config"
	"github.com/getmockd/audittrail/pkg/logging"
)

// Trail is a running audit trail: the backend registry, the request filter
// and the build observer, all driven by one configuration.
type Trail struct {
	log        *slog.Logger
	registry   *audit.Registry
	matcher    *audit.Matcher
	filter     *audit.RequestFilter
	observer   *audit.BuildObserver
	metrics    *Metrics
	configPath string
	loggerOpts []audit.Option
	filterOpts []audit.FilterOption

	// applyMu serializes configuration changes; readers use current.
	applyMu sync.Mutex
	current atomic.Pointer[config.Config]
}

// Option configures a Trail.
type Option func(*Trail)

// WithLogger sets the operator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) {
		if logger != nil {
			t.log = logger
		}
	}
}

// WithConfigPath persists pattern updates made through the API to path.
func WithConfigPath(path string) Option {
	return func(t *Trail) {
		t.configPath = path
	}
}

// WithLoggerOptions passes options to every backend the trail creates.
func WithLoggerOptions(opts ...audit.Option) Option {
	return func(t *Trail) {
		t.loggerOpts = append(t.loggerOpts, opts...)
	}
}

// WithFilterOptions customizes the request filter.
func WithFilterOptions(opts ...audit.FilterOption) Option {
	return func(t *Trail) {
		t.filterOpts = append(t.filterOpts, opts...)
	}
}

// New builds a trail from cfg without touching any backend resource. A nil
// cfg selects config.Default. Call Start to configure the backends and arm
// the observer.
func New(cfg *config.Config, opts ...Option) (*Trail, error) {
	t := &Trail{log: logging.Nop(), metrics: newMetrics()}
	for _, opt := range opts {
		opt(t)
	}

	cfg, err := prepare(cfg)
	if err != nil {
		return nil, err
	}

	matcher, err := audit.NewMatcher(cfg.EffectivePattern())
	if err != nil {
		return nil, err
	}

	loggers, err := t.buildLoggers(cfg.Loggers, nil)
	if err != nil {
		return nil, err
	}

	t.matcher = matcher
	t.registry = audit.NewRegistry(logging.Component(t.log, "audit"), loggers...)
	filterOpts := append([]audit.FilterOption{audit.WithExtra(audit.QueueItemExtra)}, t.filterOpts...)
	t.filter = audit.NewRequestFilter(matcher, t.counting("request"), filterOpts...)
	t.observer = audit.NewBuildObserver(t.counting("build"))
	t.observer.SetLogStarted(cfg.LogBuildCause)
	t.current.Store(cfg)
	t.metrics.setLoggers(loggers)
	return t, nil
}

// prepare copies, migrates, normalizes and validates cfg. Legacy fields
// are checked before migration clamps them.
func prepare(cfg *config.Config) (*config.Config, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	cfg = cfg.Clone()
	if err := cfg.ValidateLegacy(); err != nil {
		return nil, err
	}
	cfg.MigrateLegacy()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildLoggers creates one backend per config, reusing instances from
// existing whose config is equal. Each existing instance is reused at most
// once.
func (t *Trail) buildLoggers(cfgs []audit.LoggerConfig, existing []audit.AuditLogger) ([]audit.AuditLogger, error) {
	used := make([]bool, len(existing))
	out := make([]audit.AuditLogger, 0, len(cfgs))

	for i, c := range cfgs {
		if l := reuse(c, existing, used); l != nil {
			out = append(out, l)
			continue
		}
		l, err := audit.NewLogger(c, t.loggerOpts...)
		if err != nil {
			return nil, fmt.Errorf("loggers[%d]: %w", i, err)
		}
		out = append(out, instrument(l, t.metrics))
	}
	return out, nil
}

func reuse(cfg audit.LoggerConfig, existing []audit.AuditLogger, used []bool) audit.AuditLogger {
	for i, l := range existing {
		if !used[i] && l.Config().Equal(cfg) {
			used[i] = true
			return l
		}
	}
	return nil
}

// Start configures every backend and arms the build observer. Backend
// configuration failures are reported and returned, but the trail still
// starts: a failed backend retries on its next event.
func (t *Trail) Start() error {
	err := t.registry.Configure()
	t.observer.Arm()
	t.log.Info("audit trail started",
		"loggers", t.registry.Len(),
		"pattern", t.matcher.Pattern(),
		"logBuildCause", t.current.Load().LogBuildCause)
	return err
}

// Apply replaces the configuration. An invalid configuration is rejected
// as a whole and the running state is unchanged. Backends whose config is
// unchanged are kept open; retired backends are closed. A new backend that
// fails to configure is still installed and its error returned.
func (t *Trail) Apply(cfg *config.Config) error {
	t.applyMu.Lock()
	defer t.applyMu.Unlock()

	cfg, err := prepare(cfg)
	if err != nil {
		_ = t.metrics.Applies.Inc("invalid")
		return err
	}

	previous := t.registry.Loggers()
	loggers, err := t.buildLoggers(cfg.Loggers, previous)
	if err != nil {
		_ = t.metrics.Applies.Inc("invalid")
		return err
	}

	var configureErrs []error
	fresh := 0
	for _, l := range loggers {
		if containsLogger(previous, l) {
			continue
		}
		fresh++
		if err := l.Configure(); err != nil {
			t.log.Error("audit backend configuration failed", "backend", l.String(), "error", err)
			configureErrs = append(configureErrs, err)
		}
	}

	if err := t.matcher.SetPattern(cfg.EffectivePattern()); err != nil {
		for _, l := range loggers {
			if !containsLogger(previous, l) {
				_ = l.Close()
			}
		}
		_ = t.metrics.Applies.Inc("invalid")
		return err
	}
	if err := t.registry.Replace(loggers); err != nil {
		t.log.Warn("closing retired audit backends failed", "error", err)
	}
	t.observer.SetLogStarted(cfg.LogBuildCause)
	t.current.Store(cfg)
	t.metrics.setLoggers(loggers)

	t.log.Info("audit configuration applied",
		"loggers", len(loggers),
		"reused", len(loggers)-fresh,
		"pattern", cfg.EffectivePattern())

	if len(configureErrs) > 0 {
		_ = t.metrics.Applies.Inc("partial")
		return &audit.MultiError{Errors: configureErrs}
	}
	_ = t.metrics.Applies.Inc("ok")
	return nil
}

func containsLogger(list []audit.AuditLogger, l audit.AuditLogger) bool {
	for _, x := range list {
		if x == l {
			return true
		}
	}
	return false
}

// Reload loads path and applies it.
func (t *Trail) Reload(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	return t.Apply(cfg)
}

// Snapshot returns the live configuration: the active pattern and the
// config of every registered backend.
func (t *Trail) Snapshot() *config.Config {
	cfg := t.current.Load().Clone()
	cfg.Pattern = t.matcher.Pattern()
	cfg.Loggers = t.registry.Configs()
	return cfg
}

// SetPattern installs a new request pattern. An invalid pattern leaves the
// active one in place. With WithConfigPath the updated configuration is
// saved with include fragments inlined.
func (t *Trail) SetPattern(pattern string) error {
	t.applyMu.Lock()
	defer t.applyMu.Unlock()

	if strings.TrimSpace(pattern) == "" {
		pattern = audit.DefaultPattern
	}
	if err := t.matcher.SetPattern(pattern); err != nil {
		return err
	}

	cfg := t.current.Load().Clone()
	cfg.Pattern = pattern
	t.current.Store(cfg)
	t.log.Info("audit pattern updated", "pattern", pattern)

	if t.configPath == "" {
		return nil
	}
	// Loggers from include fragments are already in the snapshot.
	snap := t.Snapshot()
	snap.Include = nil
	if err := config.Save(t.configPath, snap); err != nil {
		return fmt.Errorf("pattern applied but not saved: %w", err)
	}
	return nil
}

// CheckPattern validates a pattern without installing it.
func (t *Trail) CheckPattern(pattern string) error {
	return audit.ValidatePattern(pattern)
}

// Dispatch sends message to every backend as an operator-issued record.
func (t *Trail) Dispatch(message string) error {
	return t.counting("manual").Dispatch(message)
}

func (t *Trail) counting(source string) audit.Dispatcher {
	return &countingDispatcher{next: t.registry, source: source, metrics: t.metrics}
}

// Metrics returns the trail's counters.
func (t *Trail) Metrics() *Metrics { return t.metrics }

// Registry returns the backend registry.
func (t *Trail) Registry() *audit.Registry { return t.registry }

// Matcher returns the request matcher.
func (t *Trail) Matcher() *audit.Matcher { return t.matcher }

// Filter returns the request filter.
func (t *Trail) Filter() *audit.RequestFilter { return t.filter }

// Observer returns the build observer.
func (t *Trail) Observer() *audit.BuildObserver { return t.observer }

// Middleware audits requests before handing them to next.
func (t *Trail) Middleware(next http.Handler) http.Handler {
	return t.filter.Middleware(next)
}

// Close disarms the observer and closes every backend.
func (t *Trail) Close() error {
	t.observer.Disarm()
	err := t.registry.Close()
	if err != nil {
		t.log.Warn("closing audit backends failed", "error", err)
	}
	return err
}

package metrics

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	// ErrLabelCountMismatch is returned when the number of label values doesn't match the defined labels.
	ErrLabelCountMismatch = errors.New("label count mismatch")

	// ErrNegativeCounterValue is returned when attempting to add a negative value to a counter.
	ErrNegativeCounterValue = errors.New("counter cannot be decreased")

	// ErrDuplicateMetric is returned when registering a metric with a name that is already registered.
	ErrDuplicateMetric = errors.New("duplicate metric name")
)

// Type is the exposition type of a metric family.
type Type string

const (
	TypeCounter Type = "counter"
	TypeGauge   Type = "gauge"
)

// Sample is one labeled value of a family.
type Sample struct {
	Labels map[string]string
	Value  float64
}

// value is a float64 updated atomically through its bit pattern.
type value struct {
	bits atomic.Uint64
}

func (v *value) load() float64 { return math.Float64frombits(v.bits.Load()) }

func (v *value) store(f float64) { v.bits.Store(math.Float64bits(f)) }

func (v *value) add(delta float64) {
	for {
		old := v.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if v.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

type series struct {
	labels map[string]string
	value
}

// family holds every label combination of one metric name.
type family struct {
	name       string
	help       string
	typ        Type
	labelNames []string

	mu     sync.RWMutex
	series map[string]*series
}

func (f *family) get(values []string) (*series, error) {
	if len(values) != len(f.labelNames) {
		return nil, fmt.Errorf("%w: %s expects %d labels, got %d",
			ErrLabelCountMismatch, f.name, len(f.labelNames), len(values))
	}
	key := strings.Join(values, "\x00")

	f.mu.RLock()
	s, ok := f.series[key]
	f.mu.RUnlock()
	if ok {
		return s, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok = f.series[key]; ok {
		return s, nil
	}
	labels := make(map[string]string, len(values))
	for i, name := range f.labelNames {
		labels[name] = values[i]
	}
	s = &series{labels: labels}
	f.series[key] = s
	return s, nil
}

// Samples returns a snapshot of every series.
func (f *family) Samples() []Sample {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Sample, 0, len(f.series))
	for _, s := range f.series {
		out = append(out, Sample{Labels: s.labels, Value: s.load()})
	}
	return out
}

// Counter is a monotonically increasing metric.
type Counter struct{ f *family }

// Add adds delta to the series selected by labels.
func (c *Counter) Add(delta float64, labels ...string) error {
	if delta < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeCounterValue, c.f.name)
	}
	s, err := c.f.get(labels)
	if err != nil {
		return err
	}
	s.add(delta)
	return nil
}

// Inc adds one to the series selected by labels.
func (c *Counter) Inc(labels ...string) error {
	return c.Add(1, labels...)
}

// Value returns the current value of a series, zero if it was never set.
func (c *Counter) Value(labels ...string) float64 {
	return c.f.valueOf(labels)
}

// Samples returns every series of the counter.
func (c *Counter) Samples() []Sample { return c.f.Samples() }

// Gauge is a metric that can go up and down.
type Gauge struct{ f *family }

// Set sets the series selected by labels.
func (g *Gauge) Set(v float64, labels ...string) error {
	s, err := g.f.get(labels)
	if err != nil {
		return err
	}
	s.store(v)
	return nil
}

// Add adds delta, which may be negative.
func (g *Gauge) Add(delta float64, labels ...string) error {
	s, err := g.f.get(labels)
	if err != nil {
		return err
	}
	s.add(delta)
	return nil
}

// Value returns the current value of a series, zero if it was never set.
func (g *Gauge) Value(labels ...string) float64 {
	return g.f.valueOf(labels)
}

func (f *family) valueOf(labels []string) float64 {
	if len(labels) != len(f.labelNames) {
		return 0
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if s, ok := f.series[strings.Join(labels, "\x00")]; ok {
		return s.load()
	}
	return 0
}

// Registry holds metric families in registration order.
type Registry struct {
	mu       sync.RWMutex
	families []*family
	names    map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter registers a counter. It panics on a duplicate name, which is a
// programming error.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	return &Counter{f: r.register(name, help, TypeCounter, labels)}
}

// NewGauge registers a gauge. It panics on a duplicate name.
func (r *Registry) NewGauge(name, help string, labels ...string) *Gauge {
	return &Gauge{f: r.register(name, help, TypeGauge, labels)}
}

func (r *Registry) register(name, help string, typ Type, labels []string) *family {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[name]; exists {
		panic(fmt.Sprintf("%s: %s", ErrDuplicateMetric, name))
	}
	f := &family{name: name, help: help, typ: typ, labelNames: labels, series: make(map[string]*series)}
	r.names[name] = struct{}{}
	r.families = append(r.families, f)
	return f
}

// WriteText writes every non-empty family in the Prometheus text format.
func (r *Registry) WriteText(w io.Writer) error {
	r.mu.RLock()
	families := append([]*family(nil), r.families...)
	r.mu.RUnlock()

	for _, f := range families {
		samples := f.Samples()
		if len(samples) == 0 {
			continue
		}
		sort.Slice(samples, func(i, j int) bool {
			return formatLabels(samples[i].Labels) < formatLabels(samples[j].Labels)
		})
		if _, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", f.name, escapeHelp(f.help), f.name, f.typ); err != nil {
			return err
		}
		for _, s := range samples {
			line := f.name
			if len(s.Labels) > 0 {
				line += "{" + formatLabels(s.Labels) + "}"
			}
			if _, err := fmt.Fprintf(w, "%s %s\n", line, formatFloat(s.Value)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Handler serves the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_ = r.WriteText(w)
	})
}

// formatLabels renders labels as key="value" pairs sorted by key.
func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + `="` + escapeLabelValue(labels[k]) + `"`
	}
	return strings.Join(parts, ",")
}

func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

var (
	helpEscaper  = strings.NewReplacer(`\`, `\\`, "\n", `\n`)
	labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
)

func escapeHelp(s string) string { return helpEscaper.Replace(s) }

func escapeLabelValue(s string) string { return labelEscaper.Replace(s) }

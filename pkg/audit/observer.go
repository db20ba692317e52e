package audit

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// Build message constants.
const (
	// FallbackCause is the cause text of a build without declared causes.
	FallbackCause = "Started"

	// UnknownNode names the node of a build with no recorded executor.
	UnknownNode = "#unknown#"
)

// Run is the read-only view of a build the observer needs.
type Run interface {
	FullDisplayName() string
	ParentURL() string
	Number() int
	// Causes returns the short descriptions of the declared causes.
	Causes() []string
	TimestampString() string
	DurationMillis() int64
	Result() string
	// BuiltOn returns the node display name, or "" when unknown.
	BuiltOn() string
}

// BuildInfo is a plain Run, used for build events delivered over HTTP.
type BuildInfo struct {
	Name      string   `json:"fullDisplayName"`
	Parent    string   `json:"parentUrl"`
	Build     int      `json:"number"`
	CauseList []string `json:"causes,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Duration  int64    `json:"durationMs,omitempty"`
	Outcome   string   `json:"result,omitempty"`
	Node      string   `json:"builtOn,omitempty"`
}

func (b *BuildInfo) FullDisplayName() string { return b.Name }
func (b *BuildInfo) ParentURL() string       { return b.Parent }
func (b *BuildInfo) Number() int             { return b.Build }
func (b *BuildInfo) Causes() []string        { return b.CauseList }
func (b *BuildInfo) TimestampString() string { return b.Timestamp }
func (b *BuildInfo) DurationMillis() int64   { return b.Duration }
func (b *BuildInfo) Result() string          { return b.Outcome }
func (b *BuildInfo) BuiltOn() string         { return b.Node }

var _ Run = (*BuildInfo)(nil)

// CauseSummary joins the cause descriptions with ", " as given, or returns
// FallbackCause when the joined text is empty.
func CauseSummary(causes []string) string {
	summary := strings.Join(causes, ", ")
	if summary == "" {
		return FallbackCause
	}
	return summary
}

// StartedMessage renders "{parentUrl} #{number} {causes}".
func StartedMessage(run Run) string {
	return run.ParentURL() + " #" + strconv.Itoa(run.Number()) + " " + CauseSummary(run.Causes())
}

// FinalizedMessage renders the completion line of a build.
func FinalizedMessage(run Run) string {
	node := run.BuiltOn()
	if node == "" {
		node = UnknownNode
	}

	var b strings.Builder
	b.WriteString(run.FullDisplayName())
	b.WriteByte(' ')
	b.WriteString(CauseSummary(run.Causes()))
	b.WriteString(" on node ")
	b.WriteString(node)
	b.WriteString(" started at ")
	b.WriteString(run.TimestampString())
	b.WriteString(" completed in ")
	b.WriteString(strconv.FormatInt(run.DurationMillis(), 10))
	b.WriteString("ms completed: ")
	b.WriteString(run.Result())
	return b.String()
}

// BuildObserver turns build start and finish events into audit messages.
// Events are ignored until Arm is called.
type BuildObserver struct {
	dispatcher Dispatcher
	armed      atomic.Bool
	logStarted atomic.Bool
}

// NewBuildObserver creates a disarmed observer that logs start events once
// armed.
func NewBuildObserver(dispatcher Dispatcher) *BuildObserver {
	o := &BuildObserver{dispatcher: dispatcher}
	o.logStarted.Store(true)
	return o
}

// Arm enables dispatch. Call it once the backends are configured.
func (o *BuildObserver) Arm() { o.armed.Store(true) }

// Disarm stops dispatch, e.g. during shutdown.
func (o *BuildObserver) Disarm() { o.armed.Store(false) }

// Armed reports whether events are dispatched.
func (o *BuildObserver) Armed() bool { return o.armed.Load() }

// SetLogStarted toggles logging of build start events.
func (o *BuildObserver) SetLogStarted(enabled bool) { o.logStarted.Store(enabled) }

// OnStarted records a build start. It reports whether a message was sent.
func (o *BuildObserver) OnStarted(run Run) bool {
	if run == nil || !o.armed.Load() || !o.logStarted.Load() {
		return false
	}
	_ = o.dispatcher.Dispatch(StartedMessage(run))
	return true
}

// OnFinalized records a build completion. It reports whether a message
// was sent.
func (o *BuildObserver) OnFinalized(run Run) bool {
	if run == nil || !o.armed.Load() {
		return false
	}
	_ = o.dispatcher.Dispatch(FinalizedMessage(run))
	return true
}

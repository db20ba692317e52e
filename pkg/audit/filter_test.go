package audit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Matcher
// ---------------------------------------------------------------------------

func TestMatcher_FullMatchOnly(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(".*/doDelete")
	require.NoError(t, err)

	assert.True(t, m.Match("/job/foo/doDelete"))
	assert.False(t, m.Match("/job/foo/doDeleteX"), "pattern must cover the whole path")
	assert.False(t, m.Match("/job/foo/doDelete/extra"))
	assert.False(t, m.Match(""))
}

func TestMatcher_DefaultPattern(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPattern, m.Pattern())

	for _, path := range []string{
		"/job/foo/configSubmit",
		"/job/foo/doDelete",
		"/job/foo/disable",
		"/queue/cancelItem/../cancelQueue",
		"/safeExit",
		"/view/all/createItem",
	} {
		assert.True(t, m.Match(path), path)
	}
	for _, path := range []string{"/job/foo/", "/api/json", "/job/foo/lastBuild/console"} {
		assert.False(t, m.Match(path), path)
	}
}

func TestMatcher_InvalidPatternKeepsPrevious(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(".*/doDelete")
	require.NoError(t, err)

	err = m.SetPattern("([unclosed")
	require.ErrorIs(t, err, ErrInvalidPattern)
	assert.NotContains(t, err.Error(), "^(?:", "error should quote the operator's pattern")

	assert.Equal(t, ".*/doDelete", m.Pattern())
	assert.True(t, m.Match("/job/foo/doDelete"))

	_, err = NewMatcher("*")
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestMatcher_HotSwapUnderLoad(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(".*/a")
	require.NoError(t, err)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					// Either pattern is acceptable; a torn state is not.
					_ = m.Match("/x/a")
					_ = m.Pattern()
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			require.NoError(t, m.SetPattern(".*/b"))
		} else {
			require.NoError(t, m.SetPattern(".*/a"))
		}
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, ".*/a", m.Pattern())
	assert.True(t, m.Match("/x/a"))
}

// ---------------------------------------------------------------------------
// Request filter
// ---------------------------------------------------------------------------

func TestRequestFilter_OnRequest(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(".*/doDelete")
	require.NoError(t, err)
	a, b := newCapturingLogger("a"), newCapturingLogger("b")
	f := NewRequestFilter(m, NewRegistry(nil, a, b))

	assert.True(t, f.OnRequest("/job/foo/doDelete", "", "alice"))
	assert.False(t, f.OnRequest("/job/foo/build", "", "alice"))

	for _, l := range []*capturingLogger{a, b} {
		msgs := l.Messages()
		require.Len(t, msgs, 1)
		assert.True(t, strings.HasSuffix(msgs[0], "/job/foo/doDelete by alice"))
	}
}

func TestRequestFilter_ExtraAndAnonymous(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(".*/cancelItem")
	require.NoError(t, err)
	l := newCapturingLogger("")
	f := NewRequestFilter(m, NewRegistry(nil, l))

	require.True(t, f.OnRequest("/queue/cancelItem", " (item 7)", ""))
	assert.Equal(t, []string{"/queue/cancelItem (item 7) by anonymous"}, l.Messages())
}

func TestRequestFilter_PatternUpdateAppliesToNextRequest(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(".*/doDelete")
	require.NoError(t, err)
	l := newCapturingLogger("")
	f := NewRequestFilter(m, NewRegistry(nil, l))

	require.NoError(t, f.Matcher().SetPattern(".*/disable"))
	assert.False(t, f.OnRequest("/job/foo/doDelete", "", "alice"))
	assert.True(t, f.OnRequest("/job/foo/disable", "", "alice"))
}

func TestRequestFilter_BackendFailureDoesNotReachCaller(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(".*/doDelete")
	require.NoError(t, err)
	failing := &failingLogger{}
	f := NewRequestFilter(m, NewRegistry(nil, failing))

	assert.True(t, f.OnRequest("/job/foo/doDelete", "", "alice"))
	assert.Equal(t, int32(1), failing.calls.Load())
}

func TestRequestFilter_Middleware(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(".*/(?:doDelete|cancelQueue)")
	require.NoError(t, err)
	l := newCapturingLogger("")
	f := NewRequestFilter(m, NewRegistry(nil, l), WithExtra(QueueItemExtra))

	var served int
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		w.WriteHeader(http.StatusNoContent)
	})
	handler := f.Middleware(upstream)

	req := httptest.NewRequest(http.MethodPost, "/job/foo/doDelete", nil)
	req.SetBasicAuth("alice", "secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/queue/cancelQueue?id=42", nil)
	req.Header.Set("X-Forwarded-User", "bob")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/job/foo/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 3, served, "every request reaches the upstream handler")
	assert.Equal(t, []string{
		"/job/foo/doDelete by alice",
		"/queue/cancelQueue (item 42) by bob",
	}, l.Messages())
}

func TestRequestFilter_CustomPrincipal(t *testing.T) {
	t.Parallel()

	m, err := NewMatcher(".*/restart")
	require.NoError(t, err)
	l := newCapturingLogger("")
	f := NewRequestFilter(m, NewRegistry(nil, l), WithPrincipal(func(r *http.Request) string {
		return r.Header.Get("X-User")
	}))

	req := httptest.NewRequest(http.MethodPost, "/restart", nil)
	req.Header.Set("X-User", "carol")
	f.Middleware(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodPost, "/restart", nil)
	f.Middleware(http.NotFoundHandler()).ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"/restart by carol", "/restart by anonymous"}, l.Messages())
}

func TestQueueItemExtra_SanitizesID(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/queue/cancelItem?id=1%0Aforged", nil)
	assert.Equal(t, ` (item 1\nforged)`, QueueItemExtra(req))

	req = httptest.NewRequest(http.MethodPost, "/job/x/doDelete?id=3", nil)
	assert.Empty(t, QueueItemExtra(req))
}

// ---------------------------------------------------------------------------
// Build observer
// ---------------------------------------------------------------------------

func TestBuildObserver_ArmedGate(t *testing.T) {
	t.Parallel()

	l := newCapturingLogger("")
	o := NewBuildObserver(NewRegistry(nil, l))
	run := &BuildInfo{Name: "foo #3", Parent: "job/foo/", Build: 3, Outcome: "SUCCESS"}

	assert.False(t, o.Armed())
	assert.False(t, o.OnStarted(run))
	assert.False(t, o.OnFinalized(run))
	assert.Empty(t, l.Messages())

	o.Arm()
	assert.True(t, o.OnStarted(run))
	assert.True(t, o.OnFinalized(run))
	assert.Len(t, l.Messages(), 2)

	o.Disarm()
	assert.False(t, o.OnFinalized(run))
	assert.False(t, o.OnStarted(nil))
}

func TestBuildObserver_StartedMessage(t *testing.T) {
	t.Parallel()

	l := newCapturingLogger("")
	o := NewBuildObserver(NewRegistry(nil, l))
	o.Arm()

	o.OnStarted(&BuildInfo{Parent: "job/foo/", Build: 3})
	o.OnStarted(&BuildInfo{Parent: "job/bar/", Build: 12,
		CauseList: []string{"Started by user alice", "Started by timer"}})

	assert.Equal(t, []string{
		"job/foo/ #3 Started",
		"job/bar/ #12 Started by user alice, Started by timer",
	}, l.Messages())
}

func TestCauseSummary(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		causes []string
		want   string
	}{
		{"none", nil, "Started"},
		{"single empty description", []string{""}, "Started"},
		{"one", []string{"Started by user alice"}, "Started by user alice"},
		{"kept as given", []string{" Timer ", "", "SCM change"}, " Timer , , SCM change"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CauseSummary(tt.causes))
		})
	}
}

func TestBuildObserver_LogStartedToggle(t *testing.T) {
	t.Parallel()

	l := newCapturingLogger("")
	o := NewBuildObserver(NewRegistry(nil, l))
	o.Arm()
	o.SetLogStarted(false)

	run := &BuildInfo{Name: "foo #1", Parent: "job/foo/", Build: 1, Outcome: "FAILURE"}
	assert.False(t, o.OnStarted(run))
	assert.True(t, o.OnFinalized(run), "completion is logged regardless")
	assert.Len(t, l.Messages(), 1)
}

func TestBuildObserver_FinalizedMessage(t *testing.T) {
	t.Parallel()

	run := &BuildInfo{
		Name:      "foo #7",
		Parent:    "job/foo/",
		Build:     7,
		Timestamp: "2024-03-07T14:05:09Z",
		Duration:  1200,
		Outcome:   "SUCCESS",
		Node:      "agent-1",
	}
	msg := FinalizedMessage(run)

	assert.Equal(t,
		"foo #7 Started on node agent-1 started at 2024-03-07T14:05:09Z completed in 1200ms completed: SUCCESS",
		msg)
	for _, part := range []string{"on node agent-1", "completed in 1200ms", "completed: SUCCESS", "Started"} {
		assert.Contains(t, msg, part)
	}

	run.Node = ""
	assert.Contains(t, FinalizedMessage(run), "on node #unknown#")
}

package audit

import (
	"net/http"
	"strings"
)

// AnonymousPrincipal names requests without an authenticated user.
const AnonymousPrincipal = "anonymous"

// PrincipalFunc extracts the acting user from a request.
type PrincipalFunc func(r *http.Request) string

// ExtraFunc returns descriptive context appended to the request path.
type ExtraFunc func(r *http.Request) string

// DefaultPrincipal uses the basic-auth user, then the X-Forwarded-User
// header set by an authenticating proxy, then AnonymousPrincipal.
func DefaultPrincipal(r *http.Request) string {
	if user, _, ok := r.BasicAuth(); ok && user != "" {
		return user
	}
	if user := strings.TrimSpace(r.Header.Get("X-Forwarded-User")); user != "" {
		return user
	}
	return AnonymousPrincipal
}

// QueueItemExtra names the queue item a cancellation request targets,
// rendering " (item 42)". Other requests get no extra context.
func QueueItemExtra(r *http.Request) string {
	if !strings.Contains(r.URL.Path, "/queue/cancel") {
		return ""
	}
	if id := r.URL.Query().Get("id"); id != "" {
		return " (item " + Sanitize(id) + ")"
	}
	return ""
}

// RequestFilter forwards audit-worthy requests to the backends.
type RequestFilter struct {
	matcher    *Matcher
	dispatcher Dispatcher
	principal  PrincipalFunc
	extra      ExtraFunc
}

// FilterOption customizes a RequestFilter.
type FilterOption func(*RequestFilter)

// WithPrincipal overrides DefaultPrincipal.
func WithPrincipal(fn PrincipalFunc) FilterOption {
	return func(f *RequestFilter) {
		if fn != nil {
			f.principal = fn
		}
	}
}

// WithExtra sets the extra-context function.
func WithExtra(fn ExtraFunc) FilterOption {
	return func(f *RequestFilter) {
		f.extra = fn
	}
}

// NewRequestFilter creates a filter over a shared matcher, so pattern
// updates made through the matcher apply to the next request.
func NewRequestFilter(matcher *Matcher, dispatcher Dispatcher, opts ...FilterOption) *RequestFilter {
	f := &RequestFilter{
		matcher:    matcher,
		dispatcher: dispatcher,
		principal:  DefaultPrincipal,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Matcher returns the filter's matcher.
func (f *RequestFilter) Matcher() *Matcher {
	return f.matcher
}

// OnRequest dispatches "{path}{extra} by {principal}" when path matches and
// reports whether it did. Backend failures are reported by the dispatcher
// and never returned to the request path.
func (f *RequestFilter) OnRequest(path, extra, principal string) bool {
	if !f.matcher.Match(path) {
		return false
	}
	f.dispatch(path, extra, principal)
	return true
}

func (f *RequestFilter) dispatch(path, extra, principal string) {
	if principal == "" {
		principal = AnonymousPrincipal
	}
	_ = f.dispatcher.Dispatch(path + extra + " by " + principal)
}

// Middleware audits matching requests before passing them to next.
func (f *RequestFilter) Middleware(next http.Handler) http.Handler {
	return &middleware{handler: next, filter: f}
}

type middleware struct {
	handler http.Handler
	filter  *RequestFilter
}

func (m *middleware) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if m.filter.matcher.Match(path) {
		var extra string
		if m.filter.extra != nil {
			extra = m.filter.extra(r)
		}
		m.filter.dispatch(path, extra, m.filter.principal(r))
	}
	m.handler.ServeHTTP(w, r)
}

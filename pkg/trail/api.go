package trail

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getmockd/audittrail/pkg/audit"
	"github.com/getmockd/audittrail/pkg/httputil"
)

// APIPrefix is the path prefix of the trail's own endpoints. Requests under
// it are never audited or proxied.
const APIPrefix = "/_audit"

// PatternRequest is the body of the pattern endpoints.
type PatternRequest struct {
	Pattern string `json:"pattern"`
}

// PatternCheck is the result of a pattern check.
type PatternCheck struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message,omitempty"`
}

// EventResult reports whether a build event produced a record.
type EventResult struct {
	Logged bool `json:"logged"`
}

// Health summarizes the running trail.
type Health struct {
	Status  string `json:"status"`
	Armed   bool   `json:"armed"`
	Loggers int    `json:"loggers"`
}

// Handler returns the API handler for paths under APIPrefix.
func (t *Trail) Handler() http.Handler {
	mux := http.NewServeMux()
	t.registerRoutes(mux)
	return httputil.RequestID(mux)
}

func (t *Trail) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+APIPrefix+"/health", t.handleHealth)
	mux.HandleFunc("GET "+APIPrefix+"/config", t.handleGetConfig)
	mux.Handle("GET "+APIPrefix+"/metrics", t.metrics.Registry().Handler())

	mux.HandleFunc("PUT "+APIPrefix+"/pattern", t.handleSetPattern)
	mux.HandleFunc("POST "+APIPrefix+"/pattern/check", t.handleCheckPattern)

	mux.HandleFunc("POST "+APIPrefix+"/builds/started", t.handleBuildStarted)
	mux.HandleFunc("POST "+APIPrefix+"/builds/finalized", t.handleBuildFinalized)
}

// Server routes APIPrefix to the API and audits everything else on the way
// to upstream.
func (t *Trail) Server(upstream http.Handler) http.Handler {
	api := t.Handler()
	audited := t.Middleware(upstream)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == APIPrefix || strings.HasPrefix(r.URL.Path, APIPrefix+"/") {
			api.ServeHTTP(w, r)
			return
		}
		audited.ServeHTTP(w, r)
	})
}

func (t *Trail) requestLog(r *http.Request) *slog.Logger {
	return t.log.With("requestId", httputil.RequestIDFrom(r.Context()))
}

func (t *Trail) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, Health{
		Status:  "ok",
		Armed:   t.observer.Armed(),
		Loggers: t.registry.Len(),
	})
}

func (t *Trail) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, t.Snapshot())
}

func (t *Trail) handleSetPattern(w http.ResponseWriter, r *http.Request) {
	var req PatternRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteBadRequest(w, "invalid_body", err.Error())
		return
	}

	if err := t.SetPattern(req.Pattern); err != nil {
		if errors.Is(err, audit.ErrInvalidPattern) {
			httputil.WriteBadRequest(w, "invalid_pattern", err.Error())
			return
		}
		t.requestLog(r).Error("saving pattern failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "save_failed", err.Error())
		return
	}
	httputil.WriteOK(w, PatternRequest{Pattern: t.matcher.Pattern()})
}

func (t *Trail) handleCheckPattern(w http.ResponseWriter, r *http.Request) {
	var req PatternRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteBadRequest(w, "invalid_body", err.Error())
		return
	}
	if err := t.CheckPattern(req.Pattern); err != nil {
		httputil.WriteOK(w, PatternCheck{Valid: false, Message: err.Error()})
		return
	}
	httputil.WriteOK(w, PatternCheck{Valid: true})
}

func (t *Trail) handleBuildStarted(w http.ResponseWriter, r *http.Request) {
	t.handleBuildEvent(w, r, t.observer.OnStarted)
}

func (t *Trail) handleBuildFinalized(w http.ResponseWriter, r *http.Request) {
	t.handleBuildEvent(w, r, t.observer.OnFinalized)
}

func (t *Trail) handleBuildEvent(w http.ResponseWriter, r *http.Request, record func(audit.Run) bool) {
	var build audit.BuildInfo
	if err := httputil.DecodeJSON(w, r, &build); err != nil {
		httputil.WriteBadRequest(w, "invalid_body", err.Error())
		return
	}
	if build.Parent == "" && build.Name == "" {
		httputil.WriteBadRequest(w, "invalid_build", "fullDisplayName or parentUrl is required")
		return
	}

	logged := record(&build)
	t.requestLog(r).Debug("build event received", "build", build.Name, "logged", logged)
	httputil.WriteAccepted(w, EventResult{Logged: logged})
}

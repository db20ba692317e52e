package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestCounter(t *testing.T) {
	t.Run("without labels", func(t *testing.T) {
		r := NewRegistry()
		c := r.NewCounter("test_counter", "A test counter")

		_ = c.Inc()
		_ = c.Inc()
		_ = c.Add(3)

		if got := c.Value(); got != 5 {
			t.Errorf("expected value 5, got %v", got)
		}
	})

	t.Run("with labels", func(t *testing.T) {
		r := NewRegistry()
		c := r.NewCounter("records_total", "Records", "backend", "result")

		_ = c.Inc("logFile", "ok")
		_ = c.Inc("logFile", "ok")
		_ = c.Add(5, "syslog", "error")

		if got := len(c.Samples()); got != 2 {
			t.Fatalf("expected 2 series, got %d", got)
		}
		if got := c.Value("logFile", "ok"); got != 2 {
			t.Errorf("expected logFile/ok=2, got %v", got)
		}
		if got := c.Value("syslog", "error"); got != 5 {
			t.Errorf("expected syslog/error=5, got %v", got)
		}
		if got := c.Value("console", "ok"); got != 0 {
			t.Errorf("expected unset series to read 0, got %v", got)
		}
	})

	t.Run("wrong label count", func(t *testing.T) {
		r := NewRegistry()
		c := r.NewCounter("test", "test", "label1", "label2")
		if err := c.Inc("only_one"); !errors.Is(err, ErrLabelCountMismatch) {
			t.Errorf("expected ErrLabelCountMismatch, got %v", err)
		}
	})

	t.Run("negative add", func(t *testing.T) {
		r := NewRegistry()
		c := r.NewCounter("test", "test")
		if err := c.Add(-1); !errors.Is(err, ErrNegativeCounterValue) {
			t.Errorf("expected ErrNegativeCounterValue, got %v", err)
		}
	})
}

func TestGauge(t *testing.T) {
	r := NewRegistry()
	g := r.NewGauge("loggers", "Configured loggers", "kind")

	_ = g.Set(3, "console")
	_ = g.Add(-1, "console")
	if got := g.Value("console"); got != 2 {
		t.Errorf("expected 2, got %v", got)
	}
	if err := g.Set(1); !errors.Is(err, ErrLabelCountMismatch) {
		t.Errorf("expected ErrLabelCountMismatch, got %v", err)
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.NewCounter("dup", "first")

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	r.NewGauge("dup", "second")
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("audittrail_records_total", "Records written.\nPer backend.", "backend")
	g := r.NewGauge("audittrail_loggers", "Configured loggers")
	r.NewCounter("audittrail_unused_total", "Never updated")

	_ = c.Inc(`syslog("a")`)
	_ = c.Add(2, "logFile")
	_ = g.Set(1.5)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain; version=0.0.4") {
		t.Errorf("unexpected content type %q", ct)
	}

	body, _ := io.ReadAll(rec.Body)
	want := `# HELP audittrail_records_total Records written.\nPer backend.
# TYPE audittrail_records_total counter
audittrail_records_total{backend="logFile"} 2
audittrail_records_total{backend="syslog(\"a\")"} 1
# HELP audittrail_loggers Configured loggers
# TYPE audittrail_loggers gauge
audittrail_loggers 1.5
`
	if string(body) != want {
		t.Errorf("unexpected exposition:\n%s\nwant:\n%s", body, want)
	}
}

func TestCounter_Concurrent(t *testing.T) {
	r := NewRegistry()
	c := r.NewCounter("concurrent_total", "test", "worker")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				_ = c.Inc("w")
			}
		}()
	}
	wg.Wait()

	if got := c.Value("w"); got != 8000 {
		t.Errorf("expected 8000, got %v", got)
	}
}

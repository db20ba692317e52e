package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/getmockd/audittrail/pkg/audit"
	"github.com/getmockd/audittrail/pkg/config"
	"github.com/getmockd/audittrail/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// writeConfig writes a config with one log file logger and returns the
// config path and the log path.
func writeConfig(t *testing.T, pattern string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "audit.log")
	cfgPath := filepath.Join(dir, "audit.yaml")
	data := "pattern: \"" + pattern + "\"\n" +
		"logBuildCause: true\n" +
		"loggers:\n" +
		"  - logFile:\n" +
		"      log: " + logPath + "\n" +
		"      limit: 50\n" +
		"      count: 10\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(data), 0644))
	return cfgPath, logPath
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// ============================================================================
// version
// ============================================================================

func TestVersion(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCLI(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "audittrail "))

	stdout, _, err = runCLI(t, "", "version", "--json")
	require.NoError(t, err)
	var out VersionOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.NotEmpty(t, out.Go)
	assert.NotEmpty(t, out.OS)
}

// ============================================================================
// validate
// ============================================================================

func TestValidate_Valid(t *testing.T) {
	t.Parallel()
	cfgPath, logPath := writeConfig(t, ".*/doDelete")

	stdout, _, err := runCLI(t, "", "validate", "-c", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "is valid")
	assert.Contains(t, stdout, "Pattern: .*/doDelete")
	assert.Contains(t, stdout, "Log File")
	assert.Contains(t, stdout, logPath)

	_, statErr := os.Stat(logPath)
	assert.True(t, os.IsNotExist(statErr), "validate must not open backends")
}

func TestValidate_Invalid(t *testing.T) {
	t.Parallel()

	cfgPath := filepath.Join(t.TempDir(), "audit.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
loggers:
  - syslog:
      protocol: QUIC
`), 0644))

	stdout, _, err := runCLI(t, "", "validate", "-c", cfgPath, "--json")
	require.ErrorIs(t, err, ErrInvalidConfig)

	var out ValidateOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.False(t, out.Valid)
	require.NotEmpty(t, out.Errors)
	assert.Contains(t, strings.Join(out.Errors, "\n"), "protocol")
}

func TestValidate_NoConfig(t *testing.T) {
	t.Parallel()

	_, _, err := runCLI(t, "", "validate", "-c", "")
	assert.ErrorIs(t, err, ErrNoConfig)
}

func TestKindLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Log File", kindLabel(audit.LoggerConfig{LogFile: &audit.LogFileConfig{Log: "a"}}))
	assert.Equal(t, "Console", kindLabel(audit.LoggerConfig{Console: &audit.ConsoleConfig{}}))
	assert.Equal(t, "Syslog", kindLabel(audit.LoggerConfig{Syslog: &audit.SyslogConfig{}}))
}

// ============================================================================
// check-pattern
// ============================================================================

func TestCheckPattern(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCLI(t, "", "check-pattern", ".*/doDelete", "/job/foo/doDelete", "/job/foo/doDeleteX")
	require.NoError(t, err)
	assert.Contains(t, stdout, "/job/foo/doDelete: match")
	assert.Contains(t, stdout, "/job/foo/doDeleteX: no match")
}

func TestCheckPattern_Invalid(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCLI(t, "", "check-pattern", "--json", "([broken")
	require.ErrorIs(t, err, audit.ErrInvalidPattern)

	var out PatternOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.False(t, out.Valid)
	assert.NotEmpty(t, out.Message)
}

// ============================================================================
// migrate
// ============================================================================

const legacyConfig = `
pattern: ".*/configSubmit"
log: /var/log/jenkins/audit-%g.log
limit: 5
count: 3
`

func TestMigrate_Stdout(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "old.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(legacyConfig), 0644))

	stdout, _, err := runCLI(t, "", "migrate", "-c", cfgPath)
	require.NoError(t, err)

	cfg, err := config.Parse([]byte(stdout), config.FormatYAML)
	require.NoError(t, err)
	assert.False(t, cfg.HasLegacy())
	require.Len(t, cfg.Loggers, 1)
	assert.Equal(t, "/var/log/jenkins/audit-%g.log", cfg.Loggers[0].LogFile.Log)
	assert.Equal(t, 5, cfg.Loggers[0].LogFile.Limit)
	assert.Equal(t, 3, cfg.Loggers[0].LogFile.Count)
}

func TestMigrate_OutputFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "old.yaml")
	outPath := filepath.Join(dir, "new.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(legacyConfig), 0644))

	_, stderr, err := runCLI(t, "", "migrate", "-c", cfgPath, "-o", outPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Wrote "+outPath)

	cfg, err := config.Load(outPath)
	require.NoError(t, err)
	assert.Equal(t, ".*/configSubmit", cfg.Pattern)
	assert.Len(t, cfg.Loggers, 1)
}

func TestMigrate_UnknownFormat(t *testing.T) {
	t.Parallel()
	cfgPath := filepath.Join(t.TempDir(), "old.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(legacyConfig), 0644))

	_, _, err := runCLI(t, "", "migrate", "-c", cfgPath, "--format", "toml")
	assert.ErrorContains(t, err, "unknown format")
}

// ============================================================================
// emit
// ============================================================================

func TestEmit_Message(t *testing.T) {
	t.Parallel()
	cfgPath, logPath := writeConfig(t, ".*")

	_, _, err := runCLI(t, "", "emit", "-c", cfgPath, "maintenance", "window", "opened")
	require.NoError(t, err)

	lines := readLines(t, logPath)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], "maintenance window opened"))
}

func TestEmit_Request(t *testing.T) {
	t.Parallel()
	cfgPath, logPath := writeConfig(t, ".*/doDelete")

	_, _, err := runCLI(t, "", "emit", "-c", cfgPath, "--request", "--user", "alice", "/job/foo/doDelete")
	require.NoError(t, err)

	_, stderr, err := runCLI(t, "", "emit", "-c", cfgPath, "--request", "/job/foo/build")
	require.NoError(t, err)
	assert.Contains(t, stderr, "not recorded")

	lines := readLines(t, logPath)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], "/job/foo/doDelete by alice"))
}

func TestEmit_Stdin(t *testing.T) {
	t.Parallel()
	cfgPath, logPath := writeConfig(t, ".*")

	_, _, err := runCLI(t, "first\n\n  second  \n", "emit", "-c", cfgPath)
	require.NoError(t, err)

	lines := readLines(t, logPath)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "first"))
	assert.True(t, strings.HasSuffix(lines[1], "second"))

	_, _, err = runCLI(t, "\n", "emit", "-c", cfgPath)
	assert.ErrorIs(t, err, ErrNoMessage)
}

// ============================================================================
// serve
// ============================================================================

func startServe(t *testing.T, opts *rootOptions, so *serveOptions) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	so.ready = func(addr string) { addrCh <- addr }
	if so.listen == "" {
		so.listen = "127.0.0.1:0"
	}
	if so.shutdownTimeout == 0 {
		so.shutdownTimeout = time.Second
	}

	done := make(chan error, 1)
	go func() { done <- runServe(ctx, opts, so, logging.Nop()) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("serve did not stop")
		}
	})

	select {
	case addr := <-addrCh:
		return "http://" + addr
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not start")
	}
	return ""
}

func TestServe_ProxiesAndAudits(t *testing.T) {
	t.Parallel()
	cfgPath, logPath := writeConfig(t, ".*/doDelete")

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "upstream:"+r.URL.Path)
	}))
	t.Cleanup(upstream.Close)

	base := startServe(t, &rootOptions{configPath: cfgPath}, &serveOptions{upstream: upstream.URL})

	req, err := http.NewRequest(http.MethodPost, base+"/job/foo/doDelete", nil)
	require.NoError(t, err)
	req.SetBasicAuth("alice", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "upstream:/job/foo/doDelete", string(body))

	resp, err = http.Get(base + "/_audit/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	lines := readLines(t, logPath)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], "/job/foo/doDelete by alice"))
}

func TestServe_WithoutUpstream(t *testing.T) {
	t.Parallel()

	base := startServe(t, &rootOptions{}, &serveOptions{})
	resp, err := http.Get(base + "/job/foo/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestServe_WatchReloads(t *testing.T) {
	t.Parallel()
	cfgPath, logPath := writeConfig(t, ".*/doDelete")

	base := startServe(t, &rootOptions{configPath: cfgPath}, &serveOptions{watch: true})

	updated := strings.Replace(mustRead(t, cfgPath), ".*/doDelete", ".*/disable", 1)
	require.NoError(t, os.WriteFile(cfgPath, []byte(updated), 0644))

	assert.Eventually(t, func() bool {
		resp, err := http.Get(base + "/_audit/config")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var cfg config.Config
		return json.NewDecoder(resp.Body).Decode(&cfg) == nil && cfg.Pattern == ".*/disable"
	}, 5*time.Second, 50*time.Millisecond)

	resp, err := http.Post(base+"/job/foo/disable", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()

	lines := readLines(t, logPath)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], "/job/foo/disable by anonymous"))
}

func TestServe_WatcherFailureKeepsServing(t *testing.T) {
	t.Parallel()
	cfgPath, logPath := writeConfig(t, ".*/doDelete")

	stopped := make(chan struct{})
	so := &serveOptions{
		watch: true,
		runWatcher: func(ctx context.Context, w *config.Watcher) error {
			defer close(stopped)
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_ = w.Run(cctx)
			return errors.New("inotify instance limit reached")
		},
	}
	base := startServe(t, &rootOptions{configPath: cfgPath}, so)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not run")
	}
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Post(base+"/job/foo/doDelete", "text/plain", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(base + "/_audit/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	lines := readLines(t, logPath)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], "/job/foo/doDelete by anonymous"))
}

func TestServe_WatchNeedsConfig(t *testing.T) {
	t.Parallel()

	err := runServe(context.Background(), &rootOptions{}, &serveOptions{watch: true}, logging.Nop())
	assert.ErrorIs(t, err, ErrNoConfig)
}

func TestUpstreamHandler_InvalidURL(t *testing.T) {
	t.Parallel()

	_, err := upstreamHandler("ftp://example.com", logging.Nop())
	assert.ErrorContains(t, err, "scheme must be http or https")

	_, err = upstreamHandler("http://[::1", logging.Nop())
	assert.Error(t, err)
}

func mustRead(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

// Package audit records a human-readable trail of sensitive operations
// performed against an automation server and of build lifecycle events.
//
// # Basic Usage
//
// Build backends from configuration, put them in a Registry and feed the
// registry from a RequestFilter and a BuildObserver:
//
//	file, err := audit.NewLogger(audit.LoggerConfig{
//		LogFile: &audit.LogFileConfig{Log: "/var/log/audit/audit.log", Limit: 50, Count: 10},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	registry := audit.NewRegistry(logger, file)
//	defer registry.Close()
//
//	matcher, _ := audit.NewMatcher(audit.DefaultPattern)
//	handler := audit.NewRequestFilter(matcher, registry).Middleware(upstream)
//
//	observer := audit.NewBuildObserver(registry)
//	observer.Arm()
//	observer.OnFinalized(run)
//
// # Backends
//
//   - ConsoleLogger: timestamped lines on stdout or stderr
//   - LogFileLogger: append-only file rotated by size through numbered generations
//   - SyslogLogger: RFC 3164 or RFC 5424 messages over UDP, TCP or a unix socket
//
// Backends acquire their resource lazily and serialize their own writes.
// Two backends never block each other, except console loggers sharing the
// same output stream.
//
// # Messages
//
// Every event is a single line. Line breaks inside a message are escaped
// by Sanitize before any backend writes it.
//
//   - request: "{path}{extra} by {principal}"
//   - build start: "{parentUrl} #{number} {causes}"
//   - build end: "{name} {causes} on node {node} started at {ts} completed in {ms}ms completed: {result}"
//
// # Errors
//
// Configuration faults are *ConfigError, syslog delivery failures are
// *TransportError and file write failures are *IOError. Registry.Dispatch
// reports each backend failure and keeps going; callers never see an audit
// failure abort the request or build that triggered it.
package audit

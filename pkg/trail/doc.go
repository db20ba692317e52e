// Package trail runs the audit trail: it owns the backend registry, the
// request matcher and filter and the build observer, applies configuration
// changes without reopening unchanged backends, and serves a small HTTP API
// under /_audit:
//
//	GET  /_audit/health            armed state and backend count
//	GET  /_audit/config            live configuration
//	GET  /_audit/metrics           Prometheus text exposition
//	PUT  /_audit/pattern           {"pattern": "..."}; 400 keeps the old one
//	POST /_audit/pattern/check     validate without applying
//	POST /_audit/builds/started    audit.BuildInfo body, 202
//	POST /_audit/builds/finalized  audit.BuildInfo body, 202
package trail

// Package cli implements the audittrail command line: serve, validate,
// check-pattern, migrate, emit and version.
package cli

// Package config loads and saves the audit trail configuration.
//
// A document is YAML or JSON (chosen by extension) and may hold the
// configuration at the top level or nested in the configuration-as-code
// shape:
//
//	unclassified:
//	  audit-trail:
//	    pattern: ".*/(?:configSubmit|doDelete)"
//	    logBuildCause: true
//	    loggers:
//	      - logFile:
//	          log: /var/log/jenkins/audit-%g.log
//	          limit: 50
//	          count: 10
//	      - syslog:
//	          syslogServerHostname: syslog.example.com
//	          messageFormat: RFC_5424
//	    include:
//	      - audit.d/**/*.yaml
//
// Load checks the document against an embedded JSON schema, appends the
// loggers of include fragments, migrates the single-file settings of older
// installations (log, limit, count) into a logFile logger and validates
// every backend. Save writes atomically. Watcher reports debounced changes
// to the file and its fragments.
package config

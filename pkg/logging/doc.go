// Package logging configures the operator log of the audit trail service.
//
// Operator logs describe the service itself: startup, configuration
// reloads and backend failures. They are separate from audit records and
// go to stderr by default.
//
//	logger, err := logging.FromFlags("debug", "json", os.Stderr)
//	if err != nil {
//		return err
//	}
//	registry := audit.NewRegistry(logging.Component(logger, "audit"))
//
// Components accept a *slog.Logger and fall back to Nop when given nil.
package logging

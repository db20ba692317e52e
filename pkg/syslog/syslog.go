// Package syslog renders syslog messages in the RFC 3164 (BSD) and RFC 5424
// wire formats and sends them to a syslog daemon over UDP, TCP or a local
// unix datagram socket.
package syslog

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors for parsing syslog settings.
var (
	ErrUnknownFacility = errors.New("unknown syslog facility")
	ErrUnknownFormat   = errors.New("unknown syslog message format")
	ErrUnknownProtocol = errors.New("unknown syslog protocol")
)

// Facility is a syslog facility code.
type Facility int

// Facility codes as defined by RFC 5424 section 6.2.1.
const (
	FacilityKern Facility = iota
	FacilityUser
	FacilityMail
	FacilityDaemon
	FacilityAuth
	FacilitySyslog
	FacilityLPR
	FacilityNews
	FacilityUUCP
	FacilityCron
	FacilityAuthPriv
	FacilityFTP
	FacilityNTP
	FacilityAudit
	FacilityAlert
	FacilityClock
	FacilityLocal0
	FacilityLocal1
	FacilityLocal2
	FacilityLocal3
	FacilityLocal4
	FacilityLocal5
	FacilityLocal6
	FacilityLocal7
)

var facilityNames = [...]string{
	"KERN", "USER", "MAIL", "DAEMON", "AUTH", "SYSLOG", "LPR", "NEWS",
	"UUCP", "CRON", "AUTHPRIV", "FTP", "NTP", "AUDIT", "ALERT", "CLOCK",
	"LOCAL0", "LOCAL1", "LOCAL2", "LOCAL3", "LOCAL4", "LOCAL5", "LOCAL6", "LOCAL7",
}

// String returns the upper-case facility name, e.g. "LOCAL0".
func (f Facility) String() string {
	if f < 0 || int(f) >= len(facilityNames) {
		return fmt.Sprintf("Facility(%d)", int(f))
	}
	return facilityNames[f]
}

// ParseFacility parses a facility name. Matching is case-insensitive.
func ParseFacility(s string) (Facility, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for i, n := range facilityNames {
		if n == name {
			return Facility(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFacility, s)
}

// Severity is a syslog severity level.
type Severity int

// Severity levels as defined by RFC 5424 section 6.2.1.
const (
	SeverityEmergency Severity = iota
	SeverityAlert
	SeverityCritical
	SeverityError
	SeverityWarning
	SeverityNotice
	SeverityInformational
	SeverityDebug
)

// Priority computes the PRI value for a facility/severity pair.
func Priority(f Facility, s Severity) int {
	return int(f)*8 + int(s)
}

// Format selects the message wire format.
type Format string

// Supported wire formats.
const (
	RFC3164 Format = "RFC_3164"
	RFC5424 Format = "RFC_5424"
)

// ParseFormat parses a message format name ("RFC_3164", "RFC_5424").
// The forms "RFC3164" and "rfc_5424" are accepted too.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RFC_3164", "RFC3164":
		return RFC3164, nil
	case "RFC_5424", "RFC5424":
		return RFC5424, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Protocol selects the transport.
type Protocol string

// Supported transports.
const (
	UDP  Protocol = "UDP"
	TCP  Protocol = "TCP"
	UNIX Protocol = "UNIX"
)

// ParseProtocol parses a transport name. Matching is case-insensitive.
func ParseProtocol(s string) (Protocol, error) {
	switch p := Protocol(strings.ToUpper(strings.TrimSpace(s))); p {
	case UDP, TCP, UNIX:
		return p, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
	}
}

package syslog

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RFC 5424 header field limits.
const (
	maxHostnameLen = 255
	maxAppNameLen  = 48
	maxProcIDLen   = 128
	maxMsgIDLen    = 32

	// maxTagLen is the RFC 3164 TAG limit.
	maxTagLen = 32

	nilValue = "-"
)

// Message is one syslog record before rendering.
type Message struct {
	Facility  Facility
	Severity  Severity
	Timestamp time.Time
	Hostname  string
	AppName   string
	ProcID    string
	MsgID     string
	Text      string
}

// Priority returns the PRI value of the message.
func (m Message) Priority() int {
	return Priority(m.Facility, m.Severity)
}

// Render encodes the message in the given wire format.
func (m Message) Render(f Format) ([]byte, error) {
	switch f {
	case RFC3164:
		return []byte(m.rfc3164()), nil
	case RFC5424:
		return []byte(m.rfc5424()), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, string(f))
	}
}

// rfc3164 renders "<PRI>Mmm _d hh:mm:ss HOSTNAME TAG: MSG".
func (m Message) rfc3164() string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(strconv.Itoa(m.Priority()))
	b.WriteByte('>')
	b.WriteString(m.timestamp().Format(time.Stamp))
	b.WriteByte(' ')

	host := headerField(m.Hostname, maxHostnameLen)
	if host == nilValue {
		host = "localhost"
	}
	b.WriteString(host)
	b.WriteByte(' ')

	tag := headerField(m.AppName, maxTagLen)
	if tag != nilValue {
		b.WriteString(tag)
		if m.ProcID != "" {
			b.WriteByte('[')
			b.WriteString(headerField(m.ProcID, maxProcIDLen))
			b.WriteByte(']')
		}
		b.WriteString(": ")
	}
	b.WriteString(m.Text)
	return b.String()
}

// rfc5424 renders "<PRI>1 TIMESTAMP HOSTNAME APP-NAME PROCID MSGID SD MSG".
func (m Message) rfc5424() string {
	var b strings.Builder
	b.WriteByte('<')
	b.WriteString(strconv.Itoa(m.Priority()))
	b.WriteString(">1 ")
	b.WriteString(m.timestamp().Format("2006-01-02T15:04:05.000000Z07:00"))
	b.WriteByte(' ')
	b.WriteString(headerField(m.Hostname, maxHostnameLen))
	b.WriteByte(' ')
	b.WriteString(headerField(m.AppName, maxAppNameLen))
	b.WriteByte(' ')
	b.WriteString(headerField(m.ProcID, maxProcIDLen))
	b.WriteByte(' ')
	b.WriteString(headerField(m.MsgID, maxMsgIDLen))
	// No structured data.
	b.WriteString(" -")
	if m.Text != "" {
		b.WriteByte(' ')
		b.WriteString(m.Text)
	}
	return b.String()
}

func (m Message) timestamp() time.Time {
	if m.Timestamp.IsZero() {
		return time.Now()
	}
	return m.Timestamp
}

// headerField keeps printable US-ASCII (33..126), truncates to limit and
// substitutes the nil value for empty fields.
func headerField(s string, limit int) string {
	var b strings.Builder
	for i := 0; i < len(s) && b.Len() < limit; i++ {
		if c := s[i]; c >= 33 && c <= 126 {
			b.WriteByte(c)
		}
	}
	if b.Len() == 0 {
		return nilValue
	}
	return b.String()
}

// Package datefmt formats timestamps using letter patterns such as
// "yyyy-MM-dd HH:mm:ss:SSS", the syntax used by persisted audit trail
// configuration. Patterns are compiled once; an invalid pattern is rejected
// by Compile so callers can fail at configuration time instead of at the
// first write.
package datefmt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidPattern is returned (wrapped) for patterns that cannot be compiled.
var ErrInvalidPattern = errors.New("invalid date format pattern")

// Layout is a compiled date pattern. The zero value formats to "".
type Layout struct {
	pattern string
	tokens  []token
}

type token struct {
	letter  byte // 0 for literal text
	count   int
	literal string
}

// letters lists every pattern letter Format understands.
const letters = "GyYMLwWDdFEuaHkKhmsSzZX"

// Compile parses pattern. Unquoted ASCII letters outside the supported set
// and unterminated quotes are errors.
func Compile(pattern string) (*Layout, error) {
	var tokens []token
	var lit strings.Builder

	flushLiteral := func() {
		if lit.Len() > 0 {
			tokens = append(tokens, token{literal: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch {
		case c == '\'':
			// '' is an escaped quote, 'text' is quoted literal text.
			if i+1 < len(pattern) && pattern[i+1] == '\'' {
				lit.WriteByte('\'')
				i += 2
				continue
			}
			end := i + 1
			for {
				if end >= len(pattern) {
					return nil, fmt.Errorf("%w: unterminated quote in %q", ErrInvalidPattern, pattern)
				}
				if pattern[end] == '\'' {
					if end+1 < len(pattern) && pattern[end+1] == '\'' {
						lit.WriteByte('\'')
						end += 2
						continue
					}
					break
				}
				lit.WriteByte(pattern[end])
				end++
			}
			i = end + 1
		case isASCIILetter(c):
			if !strings.ContainsRune(letters, rune(c)) {
				return nil, fmt.Errorf("%w: illegal pattern character '%c' in %q", ErrInvalidPattern, c, pattern)
			}
			j := i
			for j < len(pattern) && pattern[j] == c {
				j++
			}
			flushLiteral()
			tokens = append(tokens, token{letter: c, count: j - i})
			i = j
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flushLiteral()

	return &Layout{pattern: pattern, tokens: tokens}, nil
}

// MustCompile is like Compile but panics on error. Use it for constants.
func MustCompile(pattern string) *Layout {
	l, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return l
}

// Validate reports whether pattern compiles.
func Validate(pattern string) error {
	_, err := Compile(pattern)
	return err
}

// Pattern returns the source pattern.
func (l *Layout) Pattern() string {
	if l == nil {
		return ""
	}
	return l.pattern
}

// Format renders t.
func (l *Layout) Format(t time.Time) string {
	if l == nil {
		return ""
	}
	var b strings.Builder
	for _, tok := range l.tokens {
		if tok.letter == 0 {
			b.WriteString(tok.literal)
			continue
		}
		writeField(&b, tok, t)
	}
	return b.String()
}

func writeField(b *strings.Builder, tok token, t time.Time) {
	n := tok.count
	switch tok.letter {
	case 'G':
		if t.Year() > 0 {
			b.WriteString("AD")
		} else {
			b.WriteString("BC")
		}
	case 'y':
		writeYear(b, t.Year(), n)
	case 'Y':
		year, _ := t.ISOWeek()
		writeYear(b, year, n)
	case 'M', 'L':
		switch {
		case n >= 4:
			b.WriteString(t.Month().String())
		case n == 3:
			b.WriteString(t.Month().String()[:3])
		default:
			pad(b, int(t.Month()), n)
		}
	case 'w':
		_, week := t.ISOWeek()
		pad(b, week, n)
	case 'W':
		first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		pad(b, (t.Day()+int(first.Weekday())-1)/7+1, n)
	case 'D':
		pad(b, t.YearDay(), n)
	case 'd':
		pad(b, t.Day(), n)
	case 'F':
		pad(b, (t.Day()-1)/7+1, n)
	case 'E':
		if n >= 4 {
			b.WriteString(t.Weekday().String())
		} else {
			b.WriteString(t.Weekday().String()[:3])
		}
	case 'u':
		day := int(t.Weekday())
		if day == 0 {
			day = 7
		}
		pad(b, day, n)
	case 'a':
		if t.Hour() < 12 {
			b.WriteString("AM")
		} else {
			b.WriteString("PM")
		}
	case 'H':
		pad(b, t.Hour(), n)
	case 'k':
		h := t.Hour()
		if h == 0 {
			h = 24
		}
		pad(b, h, n)
	case 'K':
		pad(b, t.Hour()%12, n)
	case 'h':
		h := t.Hour() % 12
		if h == 0 {
			h = 12
		}
		pad(b, h, n)
	case 'm':
		pad(b, t.Minute(), n)
	case 's':
		pad(b, t.Second(), n)
	case 'S':
		pad(b, t.Nanosecond()/int(time.Millisecond), n)
	case 'z':
		if n >= 4 {
			b.WriteString(t.Location().String())
		} else {
			name, _ := t.Zone()
			b.WriteString(name)
		}
	case 'Z':
		b.WriteString(t.Format("-0700"))
	case 'X':
		_, offset := t.Zone()
		if offset == 0 {
			b.WriteByte('Z')
			return
		}
		switch n {
		case 1:
			b.WriteString(t.Format("-07"))
		case 2:
			b.WriteString(t.Format("-0700"))
		default:
			b.WriteString(t.Format("-07:00"))
		}
	}
}

func writeYear(b *strings.Builder, year, n int) {
	if n == 2 {
		pad(b, year%100, 2)
		return
	}
	pad(b, year, n)
}

func pad(b *strings.Builder, v, width int) {
	s := strconv.Itoa(v)
	for i := len(s); i < width; i++ {
		b.WriteByte('0')
	}
	b.WriteString(s)
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

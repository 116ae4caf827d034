package ptp

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBadDateTime is returned for malformed PTP datetime strings.
var ErrBadDateTime = errors.New("malformed PTP datetime")

const dateTimeLayout = "20060102T150405"

// FormatDateTime renders t as a PTP datetime without a zone suffix.
// The zero time renders as the empty string.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateTimeLayout)
}

// ParseDateTime parses "YYYYMMDDThhmmss[.s][Z|+hhmm|-hhmm]". Strings
// without a zone are taken as UTC. The empty string yields the zero time.
func ParseDateTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if len(s) < len(dateTimeLayout) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDateTime, s)
	}
	base, rest := s[:len(dateTimeLayout)], s[len(dateTimeLayout):]

	var tenths int
	if strings.HasPrefix(rest, ".") {
		if len(rest) < 2 || rest[1] < '0' || rest[1] > '9' {
			return time.Time{}, fmt.Errorf("%w: %q", ErrBadDateTime, s)
		}
		tenths = int(rest[1] - '0')
		rest = rest[2:]
	}

	loc := time.UTC
	switch {
	case rest == "" || rest == "Z":
	case len(rest) == 5 && (rest[0] == '+' || rest[0] == '-'):
		off, err := time.Parse("1504", rest[1:])
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrBadDateTime, s)
		}
		secs := off.Hour()*3600 + off.Minute()*60
		if rest[0] == '-' {
			secs = -secs
		}
		loc = time.FixedZone("", secs)
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDateTime, s)
	}

	t, err := time.ParseInLocation(dateTimeLayout, base, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrBadDateTime, s)
	}
	return t.Add(time.Duration(tenths) * 100 * time.Millisecond), nil
}

package logformat

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// timestampScanLimit is how much of a line is searched for a timestamp
const timestampScanLimit = 200

// TimestampKind names the format a timestamp was recognised in
type TimestampKind int

const (
	KindNone TimestampKind = iota
	KindISO8601
	KindISO8601Space
	KindClock
	KindSyslog
	KindApache
	KindSlashDate
	KindUnixEpoch
)

// TimestampParser detects and parses timestamps from log lines
type TimestampParser struct {
	patterns []timestampPattern
	now      func() time.Time
}

type timestampPattern struct {
	kind  TimestampKind
	regex *regexp.Regexp
	parse func(m []string, now time.Time) (time.Time, error)
}

// NewTimestampParser creates a parser with common timestamp formats.
// Patterns are tried in order and the first match wins.
func NewTimestampParser() *TimestampParser {
	return &TimestampParser{
		now: time.Now,
		patterns: []timestampPattern{
			// 2024-01-15T10:30:45.123Z
			// 2024-01-15T10:30:45+02:00
			{
				kind:  KindISO8601,
				regex: regexp.MustCompile(`(\d{4}-\d{2}-\d{2})T(\d{2}:\d{2}:\d{2}(?:[.,]\d{1,9})?)(Z|[+-]\d{2}:?\d{2})?`),
				parse: parseISO,
			},
			// 2024-01-15 10:30:45,123
			{
				kind:  KindISO8601Space,
				regex: regexp.MustCompile(`(\d{4}-\d{2}-\d{2}) (\d{2}:\d{2}:\d{2}(?:[.,]\d{1,9})?)(Z|[+-]\d{2}:?\d{2})?`),
				parse: parseISO,
			},
			// 10:30:45.123 at the start of a line
			{
				kind:  KindClock,
				regex: regexp.MustCompile(`^(\d{2}:\d{2}:\d{2}(?:[.,]\d{1,9})?)`),
				parse: func(m []string, _ time.Time) (time.Time, error) {
					return time.Parse("15:04:05", m[1])
				},
			},
			// Jan 15 10:30:45, in the current year
			{
				kind:  KindSyslog,
				regex: regexp.MustCompile(`([A-Z][a-z]{2})\s+(\d{1,2})\s+(\d{2}:\d{2}:\d{2})`),
				parse: func(m []string, now time.Time) (time.Time, error) {
					return time.Parse("2006 Jan 2 15:04:05",
						fmt.Sprintf("%d %s %s %s", now.Year(), m[1], m[2], m[3]))
				},
			},
			// 15/Jan/2024:10:30:45 +0000
			{
				kind:  KindApache,
				regex: regexp.MustCompile(`(\d{2}/[A-Z][a-z]{2}/\d{4}):(\d{2}:\d{2}:\d{2})(?: ([+-]\d{4}))?`),
				parse: func(m []string, _ time.Time) (time.Time, error) {
					if m[3] != "" {
						return time.Parse("02/Jan/2006:15:04:05 -0700", m[1]+":"+m[2]+" "+m[3])
					}
					return time.Parse("02/Jan/2006:15:04:05", m[1]+":"+m[2])
				},
			},
			// 2024/01/15 10:30:45
			{
				kind:  KindSlashDate,
				regex: regexp.MustCompile(`(\d{4}/\d{2}/\d{2}) (\d{2}:\d{2}:\d{2}(?:[.,]\d{1,9})?)`),
				parse: func(m []string, _ time.Time) (time.Time, error) {
					return time.Parse("2006/01/02 15:04:05", m[1]+" "+m[2])
				},
			},
			// 1705315845 or 1705315845.123
			{
				kind:  KindUnixEpoch,
				regex: regexp.MustCompile(`\b(\d{10})(?:\.(\d{1,6}))?\b`),
				parse: parseEpoch,
			},
		},
	}
}

func parseISO(m []string, _ time.Time) (time.Time, error) {
	value := m[1] + "T" + m[2]
	zone := m[3]
	switch {
	case zone == "":
		return time.Parse("2006-01-02T15:04:05", value)
	case zone == "Z" || strings.Contains(zone, ":"):
		return time.Parse("2006-01-02T15:04:05Z07:00", value+zone)
	default:
		return time.Parse("2006-01-02T15:04:05-0700", value+zone)
	}
}

func parseEpoch(m []string, _ time.Time) (time.Time, error) {
	secs, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	var nanos int64
	if frac := m[2]; frac != "" {
		frac += strings.Repeat("0", 9-len(frac))
		nanos, err = strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
	}
	return time.Unix(secs, nanos).UTC(), nil
}

// Parse extracts the first recognised timestamp from the leading 200 bytes
// of a line. Times without a zone are taken as UTC; a clock-only time has
// a zero date.
func (p *TimestampParser) Parse(content []byte) (time.Time, bool) {
	t, kind := p.ParseKind(content)
	return t, kind != KindNone
}

// ParseKind is Parse but also reports which format matched
func (p *TimestampParser) ParseKind(content []byte) (time.Time, TimestampKind) {
	if len(content) > timestampScanLimit {
		content = content[:timestampScanLimit]
	}
	line := string(content)

	for _, pattern := range p.patterns {
		m := pattern.regex.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		t, err := pattern.parse(m, p.now())
		if err != nil {
			continue
		}
		return t, pattern.kind
	}
	return time.Time{}, KindNone
}

// IsClockOnly reports whether t carries no date, as produced for lines that
// begin with a bare HH:MM:SS.
func IsClockOnly(t time.Time) bool {
	return t.Year() == 0 && t.Month() == time.January && t.Day() == 1
}

// FormatTime formats a timestamp for display
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("15:04:05")
}

// FormatTimeWithDate formats a timestamp with date for display
func FormatTimeWithDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	if IsClockOnly(t) {
		return t.Format("15:04:05")
	}
	return t.Format("2006-01-02 15:04:05")
}

// FormatDelta renders the gap between consecutive timestamps as +Nms,
// +N.Ns, +N.Nm or +N.Nh. The sign of d is ignored.
func FormatDelta(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	ms := d.Milliseconds()
	switch {
	case ms < 1000:
		return fmt.Sprintf("+%dms", ms)
	case ms < 60_000:
		return fmt.Sprintf("+%.1fs", float64(ms)/1000)
	case ms < 3_600_000:
		return fmt.Sprintf("+%.1fm", float64(ms)/60_000)
	default:
		return fmt.Sprintf("+%.1fh", float64(ms)/3_600_000)
	}
}

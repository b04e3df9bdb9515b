package nav

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeSpec is the argument of a time jump: a clock time, optionally with a
// date, or a signed offset from the cursor's timestamp
type TimeSpec struct {
	Relative bool
	Offset   time.Duration

	HasDate bool
	Year    int
	Month   time.Month
	Day     int
	Hour    int
	Minute  int
	Second  int
}

var (
	relativeSpec = regexp.MustCompile(`^([+-])(\d+)([smh])$`)
	absoluteSpec = regexp.MustCompile(`^(?:(\d{4})-(\d{2})-(\d{2})[ T])?(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
)

// ParseTimeSpec accepts HH:MM[:SS], YYYY-MM-DD HH:MM[:SS] or [+-]N(s|m|h)
func ParseTimeSpec(text string) (TimeSpec, error) {
	text = strings.TrimSpace(text)

	if m := relativeSpec.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return TimeSpec{}, fmt.Errorf("time offset %q: %w", text, err)
		}
		unit := map[string]time.Duration{"s": time.Second, "m": time.Minute, "h": time.Hour}[m[3]]
		if int64(n) > math.MaxInt64/int64(unit) {
			return TimeSpec{}, fmt.Errorf("time offset %q out of range", text)
		}
		d := time.Duration(n) * unit
		if m[1] == "-" {
			d = -d
		}
		return TimeSpec{Relative: true, Offset: d}, nil
	}

	m := absoluteSpec.FindStringSubmatch(text)
	if m == nil {
		return TimeSpec{}, fmt.Errorf("cannot parse time %q: use HH:MM[:SS] or an offset like -5m", text)
	}

	var spec TimeSpec
	if m[1] != "" {
		spec.HasDate = true
		spec.Year, _ = strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		spec.Month = time.Month(month)
		spec.Day, _ = strconv.Atoi(m[3])
	}
	spec.Hour, _ = strconv.Atoi(m[4])
	spec.Minute, _ = strconv.Atoi(m[5])
	if m[6] != "" {
		spec.Second, _ = strconv.Atoi(m[6])
	}

	if spec.Hour > 23 || spec.Minute > 59 || spec.Second > 59 {
		return TimeSpec{}, fmt.Errorf("time %q out of range", text)
	}
	if spec.HasDate && (spec.Month < 1 || spec.Month > 12 || spec.Day < 1 || spec.Day > 31) {
		return TimeSpec{}, fmt.Errorf("date %q out of range", text)
	}
	return spec, nil
}

// Resolve turns the spec into an instant. base is the cursor's timestamp
// for offsets, or the reference whose date and zone a bare clock adopts.
func (s TimeSpec) Resolve(base time.Time) time.Time {
	if s.Relative {
		return base.Add(s.Offset)
	}
	year, month, day := base.Date()
	if s.HasDate {
		year, month, day = s.Year, s.Month, s.Day
	}
	return time.Date(year, month, day, s.Hour, s.Minute, s.Second, 0, base.Location())
}

// String renders the spec the way it is typed
func (s TimeSpec) String() string {
	if s.Relative {
		sign := "+"
		d := s.Offset
		if d < 0 {
			sign, d = "-", -d
		}
		switch {
		case d%time.Hour == 0:
			return fmt.Sprintf("%s%dh", sign, d/time.Hour)
		case d%time.Minute == 0:
			return fmt.Sprintf("%s%dm", sign, d/time.Minute)
		default:
			return fmt.Sprintf("%s%ds", sign, d/time.Second)
		}
	}
	clock := fmt.Sprintf("%02d:%02d:%02d", s.Hour, s.Minute, s.Second)
	if s.HasDate {
		return fmt.Sprintf("%04d-%02d-%02d %s", s.Year, s.Month, s.Day, clock)
	}
	return clock
}

// Package timestamp caches per-line timestamps and resolves a target time
// to the nearest line that carries one.
package timestamp

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TimelordUK/loghew/pkg/logformat"
)

// Policy decides which stamped line a target time resolves to
type Policy int

const (
	// PreferPreceding picks the latest timestamp at or before the target,
	// falling back to the earliest one after it.
	PreferPreceding Policy = iota
	// PreferClosest picks the smallest absolute distance from the target.
	PreferClosest
)

// ParsePolicy maps a config value to a Policy. Empty means PreferPreceding.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "preceding":
		return PreferPreceding, nil
	case "closest":
		return PreferClosest, nil
	default:
		return PreferPreceding, fmt.Errorf("unknown time tie policy %q", s)
	}
}

// LineSource is the read side of the line index
type LineSource interface {
	Count() int
	Line(n int) ([]byte, error)
}

// Stamp is a line that carries a timestamp
type Stamp struct {
	Line int
	Time time.Time
}

type cached struct {
	t  time.Time
	ok bool
}

// Extractor detects timestamps lazily and keeps the ascending subsequence
// of stamped lines. It is owned by one goroutine.
type Extractor struct {
	lines  LineSource
	parser *logformat.TimestampParser

	stamped   []Stamp
	scanned   int // lines 1..scanned are reflected in stamped
	monotonic bool

	// lines beyond scanned that were looked up directly
	sparse map[int]cached
}

// New creates an extractor over lines
func New(lines LineSource, parser *logformat.TimestampParser) *Extractor {
	if parser == nil {
		parser = logformat.NewTimestampParser()
	}
	return &Extractor{
		lines:     lines,
		parser:    parser,
		monotonic: true,
		sparse:    make(map[int]cached),
	}
}

// At returns the timestamp on line n, if it has one
func (e *Extractor) At(n int) (time.Time, bool) {
	if n <= e.scanned {
		i := sort.Search(len(e.stamped), func(i int) bool { return e.stamped[i].Line >= n })
		if i < len(e.stamped) && e.stamped[i].Line == n {
			return e.stamped[i].Time, true
		}
		return time.Time{}, false
	}
	if c, ok := e.sparse[n]; ok {
		return c.t, c.ok
	}
	if n < 1 || n > e.lines.Count() {
		return time.Time{}, false
	}
	c := e.parse(n)
	e.sparse[n] = c
	return c.t, c.ok
}

func (e *Extractor) parse(n int) cached {
	line, err := e.lines.Line(n)
	if err != nil {
		return cached{}
	}
	t, ok := e.parser.Parse(line)
	return cached{t: t, ok: ok}
}

// Advance examines up to budget further indexed lines, all of them when
// budget <= 0. It returns how many were examined.
func (e *Extractor) Advance(budget int) int {
	count := e.lines.Count()
	examined := 0
	for e.scanned < count && (budget <= 0 || examined < budget) {
		n := e.scanned + 1
		c, ok := e.sparse[n]
		if ok {
			delete(e.sparse, n)
		} else {
			c = e.parse(n)
		}
		if c.ok {
			if last := len(e.stamped); last > 0 && c.t.Before(e.stamped[last-1].Time) {
				e.monotonic = false
			}
			e.stamped = append(e.stamped, Stamp{Line: n, Time: c.t})
		}
		e.scanned = n
		examined++
	}
	return examined
}

// Sync examines every indexed line not yet seen
func (e *Extractor) Sync() {
	e.Advance(0)
}

// Scanned returns how many lines have been examined in order
func (e *Extractor) Scanned() int {
	return e.scanned
}

// Stamped returns the number of stamped lines found so far
func (e *Extractor) Stamped() int {
	return len(e.stamped)
}

// Monotonic reports whether the stamped lines seen so far never go back in
// time
func (e *Extractor) Monotonic() bool {
	return e.monotonic
}

// First returns the earliest stamped line in file order
func (e *Extractor) First() (Stamp, bool) {
	e.advanceUntil(func() bool { return len(e.stamped) > 0 })
	if len(e.stamped) == 0 {
		return Stamp{}, false
	}
	return e.stamped[0], true
}

// Around returns the stamp of line n, else the nearest stamped line before
// it, else the nearest one after it.
func (e *Extractor) Around(n int) (Stamp, bool) {
	e.advanceUntil(func() bool { return e.scanned >= n })

	i := sort.Search(len(e.stamped), func(i int) bool { return e.stamped[i].Line > n })
	if i > 0 {
		return e.stamped[i-1], true
	}

	e.advanceUntil(func() bool { return len(e.stamped) > 0 })
	if len(e.stamped) > 0 {
		return e.stamped[0], true
	}
	return Stamp{}, false
}

func (e *Extractor) advanceUntil(done func() bool) {
	for !done() {
		if e.Advance(1024) == 0 {
			return
		}
	}
}

// Nearest resolves target to a stamped line under policy. Every indexed
// line is examined first. Ties go to the lowest line number.
func (e *Extractor) Nearest(target time.Time, policy Policy) (Stamp, bool) {
	return e.NearestFunc(target, policy, nil)
}

// NearestFunc is Nearest restricted to the stamped lines keep accepts. A
// nil keep accepts every line.
func (e *Extractor) NearestFunc(target time.Time, policy Policy, keep func(line int) bool) (Stamp, bool) {
	e.Sync()
	stamps := e.stamped
	if keep != nil {
		stamps = make([]Stamp, 0, len(e.stamped))
		for _, s := range e.stamped {
			if keep(s.Line) {
				stamps = append(stamps, s)
			}
		}
	}
	if len(stamps) == 0 {
		return Stamp{}, false
	}
	if e.monotonic {
		return nearestSorted(stamps, target, policy), true
	}
	return nearestLinear(stamps, target, policy), true
}

func nearestSorted(s []Stamp, target time.Time, policy Policy) Stamp {
	after := sort.Search(len(s), func(i int) bool { return s[i].Time.After(target) })

	var prev *Stamp
	if after > 0 {
		// lowest line holding the latest time at or before target
		v := s[after-1].Time
		k := sort.Search(after, func(i int) bool { return !s[i].Time.Before(v) })
		prev = &s[k]
	}
	var next *Stamp
	if after < len(s) {
		next = &s[after]
	}

	switch {
	case prev == nil:
		return *next
	case next == nil:
		return *prev
	case policy == PreferClosest && next.Time.Sub(target) < target.Sub(prev.Time):
		return *next
	default:
		return *prev
	}
}

func nearestLinear(stamps []Stamp, target time.Time, policy Policy) Stamp {
	if policy == PreferClosest {
		best := stamps[0]
		bestDist := distance(best.Time, target)
		for _, s := range stamps[1:] {
			if d := distance(s.Time, target); d < bestDist {
				best, bestDist = s, d
			}
		}
		return best
	}

	var prev, next *Stamp
	for i := range stamps {
		s := &stamps[i]
		if !s.Time.After(target) {
			if prev == nil || s.Time.After(prev.Time) {
				prev = s
			}
		} else if next == nil || s.Time.Before(next.Time) {
			next = s
		}
	}
	if prev != nil {
		return *prev
	}
	return *next
}

func distance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

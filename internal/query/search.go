package query

import (
	"fmt"
	"sort"

	"github.com/TimelordUK/loghew/internal/errs"
)

// Direction of a match step
type Direction int

const (
	Forward Direction = iota
	Backward
)

// StepPolicy decides what stepping past the last match does
type StepPolicy int

const (
	// Wrap continues from the other end of the indexed range
	Wrap StepPolicy = iota
	// Stop reports errs.ErrSourceExhausted
	Stop
)

// Search is the match state of one pattern
type Search struct {
	matcher *Matcher
	matches []int
	scanned int // lines 1..scanned have been tested
	current int // index into matches, -1 before the first step
}

// NewSearch compiles pattern. On error the caller keeps its previous search.
func NewSearch(pattern string, isRegex bool) (*Search, error) {
	m, err := NewMatcher(pattern, isRegex)
	if err != nil {
		return nil, err
	}
	return &Search{matcher: m, current: -1}, nil
}

// Matcher returns the compiled pattern
func (s *Search) Matcher() *Matcher {
	return s.matcher
}

// Advance tests up to budget lines past those already tested, all indexed
// lines when budget <= 0. It returns the number of lines tested.
func (s *Search) Advance(lines Lines, budget int) (int, error) {
	return advance(lines, &s.scanned, budget, func(n int, line []byte) {
		if s.matcher.Match(line) {
			s.matches = append(s.matches, n)
		}
	})
}

// Scanned returns how many lines have been tested
func (s *Search) Scanned() int {
	return s.scanned
}

// Count returns the number of matches found so far
func (s *Search) Count() int {
	return len(s.matches)
}

// Matches returns the ascending match line numbers found so far
func (s *Search) Matches() []int {
	return s.matches
}

// Current returns the match the last step landed on, as a 1-based ordinal
// and a line number
func (s *Search) Current() (ordinal, line int, ok bool) {
	if s.current < 0 || s.current >= len(s.matches) {
		return 0, 0, false
	}
	return s.current + 1, s.matches[s.current], true
}

// Step moves to the nearest match strictly after (Forward) or before
// (Backward) from. Matches on lines that visible rejects are skipped; a nil
// visible accepts every line.
func (s *Search) Step(from int, dir Direction, policy StepPolicy, visible func(int) bool) (int, error) {
	if visible == nil {
		visible = func(int) bool { return true }
	}

	var (
		i  int
		ok bool
	)
	if dir == Forward {
		start := sort.SearchInts(s.matches, from+1)
		i, ok = s.scan(start, len(s.matches), 1, visible)
		if !ok && policy == Wrap {
			i, ok = s.scan(0, start, 1, visible)
		}
	} else {
		start := sort.SearchInts(s.matches, from) - 1
		i, ok = s.scan(start, -1, -1, visible)
		if !ok && policy == Wrap {
			i, ok = s.scan(len(s.matches)-1, start, -1, visible)
		}
	}

	if !ok {
		if len(s.matches) == 0 {
			return from, fmt.Errorf("no matches for %q: %w", s.matcher.pattern, errs.ErrSourceExhausted)
		}
		return from, fmt.Errorf("no further match for %q: %w", s.matcher.pattern, errs.ErrSourceExhausted)
	}
	s.current = i
	return s.matches[i], nil
}

// scan walks match indices from start towards stop (exclusive)
func (s *Search) scan(start, stop, step int, visible func(int) bool) (int, bool) {
	for i := start; i != stop; i += step {
		if visible(s.matches[i]) {
			return i, true
		}
	}
	return 0, false
}

// advance is the incremental loop shared by Search and Projection
func advance(lines Lines, scanned *int, budget int, visit func(n int, line []byte)) (int, error) {
	count := lines.Count()
	tested := 0
	for *scanned < count && (budget <= 0 || tested < budget) {
		n := *scanned + 1
		line, err := lines.Line(n)
		if err != nil {
			return tested, err
		}
		visit(n, line)
		*scanned = n
		tested++
	}
	return tested, nil
}

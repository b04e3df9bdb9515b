// Package query implements incremental search and filtering over the line
// index. Match and visibility sets are ascending line-number sequences that
// only grow; a new pattern gets a new value rather than a rescan.
package query

import (
	"fmt"
	"regexp"

	"github.com/TimelordUK/loghew/internal/errs"
)

// Lines is the read side of the line index
type Lines interface {
	Count() int
	Line(n int) ([]byte, error)
}

// Matcher tests lines against one case-insensitive pattern
type Matcher struct {
	pattern string
	isRegex bool
	re      *regexp.Regexp
}

// NewMatcher compiles pattern. A literal pattern matches as a substring.
func NewMatcher(pattern string, isRegex bool) (*Matcher, error) {
	expr := regexp.QuoteMeta(pattern)
	if isRegex {
		expr = pattern
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("%q: %w: %v", pattern, errs.ErrInvalidPattern, err)
	}
	return &Matcher{pattern: pattern, isRegex: isRegex, re: re}, nil
}

// Pattern returns the source pattern
func (m *Matcher) Pattern() string {
	return m.pattern
}

// IsRegex reports whether the pattern is a regular expression
func (m *Matcher) IsRegex() bool {
	return m.isRegex
}

// Match reports whether line contains the pattern
func (m *Matcher) Match(line []byte) bool {
	return m.re.Match(line)
}

// Ranges returns the byte ranges of every non-empty match in line
func (m *Matcher) Ranges(line []byte) [][2]int {
	var ranges [][2]int
	for _, loc := range m.re.FindAllIndex(line, -1) {
		if loc[1] > loc[0] {
			ranges = append(ranges, [2]int{loc[0], loc[1]})
		}
	}
	return ranges
}

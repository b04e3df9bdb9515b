package query

import (
	"sort"
	"strings"
)

// Term is one unit of a filter expression
type Term struct {
	Text    string
	Negated bool
	IsRegex bool

	matcher *Matcher
}

// Filter is a conjunction of terms. A line is visible when every positive
// term matches and no negated term does.
type Filter struct {
	text  string
	terms []Term
}

// ParseFilter parses whitespace-separated terms. A leading ! negates a
// term, \! stands for a literal leading !, and /re/ is a regex term.
// Empty text yields a filter that shows every line.
func ParseFilter(text string) (*Filter, error) {
	f := &Filter{text: strings.TrimSpace(text)}

	for _, tok := range strings.Fields(text) {
		var term Term
		switch {
		case strings.HasPrefix(tok, `\!`):
			tok = tok[1:]
		case strings.HasPrefix(tok, "!") && len(tok) > 1:
			term.Negated = true
			tok = tok[1:]
		}

		if len(tok) > 2 && strings.HasPrefix(tok, "/") && strings.HasSuffix(tok, "/") {
			term.IsRegex = true
			tok = tok[1 : len(tok)-1]
		}
		term.Text = tok

		m, err := NewMatcher(term.Text, term.IsRegex)
		if err != nil {
			return nil, err
		}
		term.matcher = m
		f.terms = append(f.terms, term)
	}
	return f, nil
}

// String returns the expression text
func (f *Filter) String() string {
	return f.text
}

// Terms returns the parsed terms
func (f *Filter) Terms() []Term {
	return f.terms
}

// Empty reports whether the filter shows every line
func (f *Filter) Empty() bool {
	return len(f.terms) == 0
}

// Visible evaluates the predicate on one line
func (f *Filter) Visible(line []byte) bool {
	for _, t := range f.terms {
		if t.matcher.Match(line) == t.Negated {
			return false
		}
	}
	return true
}

// Positive returns matchers for the non-negated terms, for highlighting
func (f *Filter) Positive() []*Matcher {
	var ms []*Matcher
	for _, t := range f.terms {
		if !t.Negated {
			ms = append(ms, t.matcher)
		}
	}
	return ms
}

// Projection is the ascending sequence of lines a filter leaves visible
type Projection struct {
	filter  *Filter
	visible []int
	scanned int
}

// NewProjection starts an empty projection for f
func NewProjection(f *Filter) *Projection {
	return &Projection{filter: f}
}

// Filter returns the filter the projection evaluates
func (p *Projection) Filter() *Filter {
	return p.filter
}

// Advance evaluates up to budget lines past those already evaluated, all
// indexed lines when budget <= 0. It returns the number evaluated.
func (p *Projection) Advance(lines Lines, budget int) (int, error) {
	return advance(lines, &p.scanned, budget, func(n int, line []byte) {
		if p.filter.Visible(line) {
			p.visible = append(p.visible, n)
		}
	})
}

// Scanned returns how many lines have been evaluated
func (p *Projection) Scanned() int {
	return p.scanned
}

// Len returns the number of visible lines found so far
func (p *Projection) Len() int {
	return len(p.visible)
}

// LineAt returns the line number at 0-based visible position pos
func (p *Projection) LineAt(pos int) int {
	return p.visible[pos]
}

// PositionOf returns the position of the first visible line at or after
// line, and whether that line is line itself. The position equals Len when
// no such line exists.
func (p *Projection) PositionOf(line int) (int, bool) {
	pos := sort.SearchInts(p.visible, line)
	return pos, pos < len(p.visible) && p.visible[pos] == line
}

// Contains reports whether line is visible
func (p *Projection) Contains(line int) bool {
	_, ok := p.PositionOf(line)
	return ok
}

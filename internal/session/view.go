package session

import (
	"errors"
	"sort"
	"time"

	"github.com/TimelordUK/loghew/internal/errs"
	"github.com/TimelordUK/loghew/pkg/logformat"
)

// VisibleLine is one row of the current view
type VisibleLine struct {
	Number    int
	Text      string
	Timestamp time.Time
	HasTime   bool
	Level     logformat.Level
	// Highlights are byte ranges of Text matching the search, or the
	// filter's positive terms when no search is active
	Highlights [][2]int
	// Delta is the time since the previous line's entry. Unstamped lines
	// belong to the entry above them. It is empty before the first
	// timestamp or when delta mode is off.
	Delta    string
	Gap      time.Duration
	Bookmark string
	IsCursor bool
}

// View returns up to rows visible lines around the cursor, scrolling as
// needed to keep the cursor on screen
func (s *Session) View(rows int) ([]VisibleLine, error) {
	offset := s.nav.EnsureVisible(rows)
	view := s.nav.View()
	cursor := s.nav.Line()

	end := min(offset+rows, view.Len())
	out := make([]VisibleLine, 0, max(end-offset, 0))
	for pos := offset; pos < end; pos++ {
		n := view.LineAt(pos)
		text, err := s.idx.Line(n)
		if errors.Is(err, errs.ErrSourceLost) {
			// a truncated mapping no longer holds this line
			text, err = nil, nil
		}
		if err != nil {
			return out, err
		}

		vl := VisibleLine{
			Number:     n,
			Text:       string(text),
			Level:      s.levels.Detect(text),
			Highlights: s.highlights(text),
			IsCursor:   n == cursor,
		}
		vl.Timestamp, vl.HasTime = s.times.At(n)
		if s.delta {
			vl.Delta, vl.Gap = s.deltaAt(n)
		}
		if b, ok := s.marks.At(n); ok {
			vl.Bookmark = b.Name
		}
		out = append(out, vl)
	}
	return out, nil
}

func (s *Session) deltaAt(n int) (string, time.Duration) {
	if n == 1 {
		return logformat.FormatDelta(0), 0
	}
	cur, ok := s.entryTime(n)
	if !ok {
		return "", 0
	}
	prev, ok := s.entryTime(n - 1)
	if !ok {
		return "", 0
	}
	gap := cur.Sub(prev)
	if gap < 0 {
		gap = -gap
	}
	return logformat.FormatDelta(gap), gap
}

// entryTime is the timestamp of the entry line n belongs to: its own, or
// that of the nearest stamped line before it
func (s *Session) entryTime(n int) (time.Time, bool) {
	if t, ok := s.times.At(n); ok {
		return t, true
	}
	stamp, ok := s.times.Around(n)
	if !ok || stamp.Line > n {
		return time.Time{}, false
	}
	return stamp.Time, true
}

func (s *Session) highlights(text []byte) [][2]int {
	if s.search != nil {
		return s.search.Matcher().Ranges(text)
	}
	if s.projection == nil {
		return nil
	}

	var ranges [][2]int
	for _, m := range s.projection.Filter().Positive() {
		ranges = append(ranges, m.Ranges(text)...)
	}
	return mergeRanges(ranges)
}

// mergeRanges sorts ranges and joins overlapping ones
func mergeRanges(ranges [][2]int) [][2]int {
	if len(ranges) < 2 {
		return ranges
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i][0] < ranges[j][0] })
	out := ranges[:1]
	for _, r := range ranges[1:] {
		last := &out[len(out)-1]
		if r[0] <= last[1] {
			last[1] = max(last[1], r[1])
			continue
		}
		out = append(out, r)
	}
	return out
}

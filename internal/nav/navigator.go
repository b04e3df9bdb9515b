// Package nav moves a cursor over the visible lines of a log: by line
// number, by time, to a bookmark or to the next search match, and along
// the tail while following.
package nav

import (
	"errors"
	"fmt"
	"math"

	"github.com/TimelordUK/loghew/internal/bookmark"
	"github.com/TimelordUK/loghew/internal/errs"
	"github.com/TimelordUK/loghew/internal/query"
	"github.com/TimelordUK/loghew/internal/timestamp"
)

// minGrowLines is the smallest batch a forward search indexes at a time
const minGrowLines = 4096

// Index is the part of the line index the navigator grows on demand
type Index interface {
	Count() int
	BuildTo(target int) (int, error)
}

// View is an ascending sequence of visible line numbers
type View interface {
	Len() int
	LineAt(pos int) int
	// PositionOf returns the position of the first visible line at or
	// after line, Len when there is none, and whether it is line itself.
	PositionOf(line int) (int, bool)
}

// RawView shows every indexed line
type RawView struct {
	Index Index
}

// Len returns the number of indexed lines
func (v RawView) Len() int { return v.Index.Count() }

// LineAt maps a position to its line number
func (v RawView) LineAt(pos int) int { return pos + 1 }

// PositionOf maps a line number to its position
func (v RawView) PositionOf(line int) (int, bool) {
	count := v.Index.Count()
	switch {
	case line < 1:
		return 0, false
	case line > count:
		return count, false
	default:
		return line - 1, true
	}
}

// Cursor is the selected line and the position of the first row on screen
type Cursor struct {
	Line         int
	ScrollOffset int
}

// Options configures a Navigator
type Options struct {
	TimePolicy timestamp.Policy
	StepPolicy query.StepPolicy
	// AfterBuild runs whenever the navigator grew the index, so derived
	// views can catch up before the cursor is placed
	AfterBuild func()
}

// Navigator owns the cursor. It is used from one goroutine.
type Navigator struct {
	index Index
	view  View
	times *timestamp.Extractor
	marks *bookmark.Registry
	opts  Options

	line   int // 0 while nothing is visible
	offset int
	follow bool
}

// New creates a navigator over the raw index
func New(index Index, times *timestamp.Extractor, marks *bookmark.Registry, opts Options) *Navigator {
	n := &Navigator{
		index: index,
		view:  RawView{Index: index},
		times: times,
		marks: marks,
		opts:  opts,
	}
	n.Snap()
	return n
}

// Cursor returns the current cursor
func (n *Navigator) Cursor() Cursor {
	return Cursor{Line: n.line, ScrollOffset: n.offset}
}

// Line returns the current line, 0 when nothing is visible
func (n *Navigator) Line() int {
	return n.line
}

// View returns the sequence the cursor moves over
func (n *Navigator) View() View {
	return n.view
}

// SetView switches the visible sequence, nil meaning the raw index, and
// keeps the cursor on the nearest visible line
func (n *Navigator) SetView(v View) {
	if v == nil {
		v = RawView{Index: n.index}
	}
	n.view = v
	n.offset = 0
	n.Snap()
}

// Snap moves the cursor to the first visible line at or after it, else to
// the last visible line. It does not count as manual navigation.
func (n *Navigator) Snap() {
	n.place(max(n.line, 1))
}

// place puts the cursor on line or the nearest visible line after it
func (n *Navigator) place(line int) bool {
	total := n.view.Len()
	if total == 0 {
		n.line = 0
		return false
	}
	pos, exact := n.view.PositionOf(line)
	if pos >= total {
		pos = total - 1
	}
	n.line = n.view.LineAt(pos)
	return exact
}

// Position returns the cursor's position within the view
func (n *Navigator) Position() int {
	if n.line == 0 {
		return 0
	}
	pos, _ := n.view.PositionOf(n.line)
	return pos
}

// Following reports whether follow mode is on
func (n *Navigator) Following() bool {
	return n.follow
}

// SetFollow turns follow mode on or off. Turning it on does not move the
// cursor; the next AutoAdvance does.
func (n *Navigator) SetFollow(on bool) {
	n.follow = on
}

// AutoAdvance moves to the last visible line while following. It reports
// whether the cursor moved.
func (n *Navigator) AutoAdvance() bool {
	if !n.follow {
		return false
	}
	total := n.view.Len()
	if total == 0 {
		return false
	}
	last := n.view.LineAt(total - 1)
	if last == n.line {
		return false
	}
	n.line = last
	return true
}

// GotoLine moves to line target, indexing up to it first. Outside the
// valid range the cursor is clamped and errs.ErrSourceExhausted is
// returned. On a filtered view a hidden target snaps to the next visible
// line.
func (n *Navigator) GotoLine(target int) (int, error) {
	n.follow = false
	if err := n.build(target); err != nil {
		return n.line, err
	}
	if n.view.Len() == 0 {
		return n.line, fmt.Errorf("line %d: nothing visible: %w", target, errs.ErrSourceExhausted)
	}

	count := n.index.Count()
	clamped := min(max(target, 1), count)
	n.place(clamped)
	if clamped != target {
		return n.line, fmt.Errorf("line %d of %d: %w", target, count, errs.ErrSourceExhausted)
	}
	return n.line, nil
}

func (n *Navigator) build(target int) error {
	before := n.index.Count()
	if _, err := n.index.BuildTo(target); err != nil {
		return err
	}
	if n.index.Count() != before && n.opts.AfterBuild != nil {
		n.opts.AfterBuild()
	}
	return nil
}

// GotoTime jumps to the line nearest the time described by spec. Offsets
// apply to the cursor's timestamp; a bare clock time takes the date of the
// cursor's timestamp, or of the first one in the file. Everything available
// is indexed first, and only visible lines are candidates.
func (n *Navigator) GotoTime(spec TimeSpec) (int, error) {
	if err := n.build(math.MaxInt); err != nil {
		return n.line, err
	}
	ref, ok := n.times.Around(max(n.line, 1))
	if !ok {
		return n.line, fmt.Errorf("no timestamped lines: %w", errs.ErrOutOfRange)
	}

	var keep func(int) bool
	if _, raw := n.view.(RawView); !raw {
		keep = n.visible
	}
	target := spec.Resolve(ref.Time)
	stamp, ok := n.times.NearestFunc(target, n.opts.TimePolicy, keep)
	if !ok {
		return n.line, fmt.Errorf("no visible timestamped lines: %w", errs.ErrOutOfRange)
	}

	n.follow = false
	n.place(stamp.Line)
	return n.line, nil
}

// GotoBookmark jumps to a bookmark by name or line
func (n *Navigator) GotoBookmark(nameOrLine string) (int, error) {
	b, err := n.marks.Lookup(nameOrLine)
	if err != nil {
		return n.line, err
	}
	line, err := n.GotoLine(b.Line)
	if errors.Is(err, errs.ErrSourceExhausted) {
		return line, nil
	}
	return line, err
}

// StepBookmark jumps to the next or previous bookmark, wrapping
func (n *Navigator) StepBookmark(dir query.Direction) (int, error) {
	var (
		b  bookmark.Bookmark
		ok bool
	)
	if dir == query.Forward {
		b, ok = n.marks.Next(n.line)
	} else {
		b, ok = n.marks.Prev(n.line)
	}
	if !ok {
		return n.line, fmt.Errorf("no bookmarks: %w", errs.ErrOutOfRange)
	}
	return n.GotoBookmark(fmt.Sprint(b.Line))
}

// StepMatch moves to the next or previous match of s among visible lines.
// Moving forward indexes further until a match turns up or the source is
// exhausted, before the step policy decides whether to wrap.
func (n *Navigator) StepMatch(s *query.Search, dir query.Direction) (int, error) {
	for {
		line, err := s.Step(n.line, dir, query.Stop, n.visible)
		if err == nil {
			return n.moveTo(line), nil
		}
		if dir == query.Backward {
			break
		}
		grew, err := n.grow()
		if err != nil {
			return n.line, err
		}
		if !grew {
			break
		}
	}
	if n.opts.StepPolicy == query.Wrap && dir == query.Backward {
		// wrapping backwards lands on the last match in the file
		if err := n.build(math.MaxInt); err != nil {
			return n.line, err
		}
	}

	line, err := s.Step(n.line, dir, n.opts.StepPolicy, n.visible)
	if err != nil {
		return n.line, err
	}
	return n.moveTo(line), nil
}

func (n *Navigator) moveTo(line int) int {
	n.follow = false
	n.place(line)
	return n.line
}

// grow indexes another batch of lines, doubling the index each time
func (n *Navigator) grow() (bool, error) {
	before := n.index.Count()
	if err := n.build(before + max(before, minGrowLines)); err != nil {
		return false, err
	}
	return n.index.Count() > before, nil
}

func (n *Navigator) visible(line int) bool {
	_, exact := n.view.PositionOf(line)
	return exact
}

// ScrollBy moves the cursor delta visible lines, growing the raw index
// when moving past its end
func (n *Navigator) ScrollBy(delta int) error {
	n.follow = false
	if _, raw := n.view.(RawView); raw && delta > 0 {
		if err := n.build(n.line + delta); err != nil {
			return err
		}
	}
	total := n.view.Len()
	if total == 0 {
		n.line = 0
		return nil
	}
	pos := min(max(n.Position()+delta, 0), total-1)
	n.line = n.view.LineAt(pos)
	return nil
}

// Top moves to the first visible line
func (n *Navigator) Top() {
	n.follow = false
	n.offset = 0
	n.place(1)
}

// Bottom indexes everything available and moves to the last visible line
func (n *Navigator) Bottom() error {
	n.follow = false
	if err := n.build(math.MaxInt); err != nil {
		return err
	}
	if total := n.view.Len(); total > 0 {
		n.line = n.view.LineAt(total - 1)
	}
	return nil
}

// EnsureVisible adjusts the scroll offset so the cursor is on one of rows
// screen rows, and returns the offset
func (n *Navigator) EnsureVisible(rows int) int {
	if rows < 1 {
		rows = 1
	}
	pos := n.Position()
	total := n.view.Len()

	if pos < n.offset {
		n.offset = pos
	}
	if pos >= n.offset+rows {
		n.offset = pos - rows + 1
	}
	if maxOffset := max(total-rows, 0); n.offset > maxOffset {
		n.offset = maxOffset
	}
	if n.offset < 0 {
		n.offset = 0
	}
	return n.offset
}

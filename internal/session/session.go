// Package session ties the engine together for one open log: the source
// and its line index, timestamps, search and filter state, the cursor,
// bookmarks and the tail watcher. Every command either succeeds or leaves
// the session as it was.
package session

import (
	"context"
	"errors"
	"fmt"
	stdio "io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/TimelordUK/loghew/internal/bookmark"
	"github.com/TimelordUK/loghew/internal/config"
	"github.com/TimelordUK/loghew/internal/errs"
	"github.com/TimelordUK/loghew/internal/index"
	"github.com/TimelordUK/loghew/internal/logging"
	"github.com/TimelordUK/loghew/internal/nav"
	"github.com/TimelordUK/loghew/internal/query"
	"github.com/TimelordUK/loghew/internal/slice"
	"github.com/TimelordUK/loghew/internal/source"
	"github.com/TimelordUK/loghew/internal/tail"
	"github.com/TimelordUK/loghew/internal/timestamp"
	"github.com/TimelordUK/loghew/pkg/logformat"
)

// StdinName is the display name of a session reading standard input
const StdinName = "stdin"

// OpenRequest describes what to open. An empty Path reads standard input.
type OpenRequest struct {
	Path          string
	InitialLine   int
	InitialSearch string
}

// Options configures a session
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	// Stdin replaces os.Stdin when Path is empty
	Stdin stdio.Reader
	// Manual disables the background watcher; growth is picked up by Tick
	Manual bool
	// Rows is how many lines are indexed before the first view
	Rows int
}

// Stats summarizes the session for a status line
type Stats struct {
	Name      string
	Kind      source.Kind
	Lines     int
	Bytes     int64
	Visible   int
	Filtered  bool
	Filter    string
	Pattern   string
	Matches   int
	Match     int // 1-based ordinal of the match under the cursor, 0 if none
	Bookmarks int
	Watches   int
	Following bool
	Delta     bool
	Lost      bool
	Closed    bool
	// Levels counts detected levels over the lines Pump has reached
	Levels LevelCounts
}

// Session is one open log. Its methods are called from one goroutine; the
// watcher works in the background and reports through Events.
type Session struct {
	cfg *config.Config
	log *slog.Logger

	src     *source.FileSource
	idx     *index.LineIndex
	times   *timestamp.Extractor
	levels  *logformat.LevelDetector
	tally   *levelTally
	marks   *bookmark.Registry
	nav     *nav.Navigator
	watches *tail.Watches
	watcher *tail.Watcher

	search     *query.Search
	projection *query.Projection

	delta  bool
	lost   bool
	closed bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open opens the request's source and starts watching it for growth
func Open(ctx context.Context, req OpenRequest, opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	timePolicy, err := timestamp.ParsePolicy(cfg.Engine.TimeTie)
	if err != nil {
		return nil, err
	}
	stepPolicy := query.Stop
	if cfg.Engine.WrapMatches {
		stepPolicy = query.Wrap
	}

	var src *source.FileSource
	if req.Path == "" {
		in := opts.Stdin
		if in == nil {
			in = os.Stdin
		}
		src = source.OpenStream(in, StdinName)
	} else {
		src, err = source.Open(req.Path, source.Options{MmapThreshold: cfg.Engine.MmapThreshold()})
		if err != nil {
			return nil, err
		}
	}

	s := &Session{
		cfg:     cfg,
		log:     logging.NewComponentLogger(logger, "session"),
		src:     src,
		marks:   bookmark.NewRegistry(),
		watches: tail.NewWatches(),
		levels:  logformat.NewLevelDetector(cfg.LogLevels.Keywords()),
	}
	s.tally = newLevelTally(s.levels)
	s.idx = index.New(src)
	s.times = timestamp.New(s.idx, logformat.NewTimestampParser())
	s.nav = nav.New(s.idx, s.times, s.marks, nav.Options{
		TimePolicy: timePolicy,
		StepPolicy: stepPolicy,
		AfterBuild: s.Settle,
	})
	s.watcher = tail.New(src, s.idx, s.watches, tail.Options{
		PollInterval: cfg.Engine.PollInterval(),
		SliceBytes:   int64(cfg.Engine.SliceBytes),
		Logger:       logger,
	})

	rows := opts.Rows
	if rows <= 0 {
		rows = 200
	}
	if _, err := s.idx.BuildTo(max(rows, req.InitialLine)); err != nil {
		src.Close()
		return nil, fmt.Errorf("index %s: %w", src.Name(), err)
	}
	s.nav.Snap()

	if req.InitialSearch != "" {
		if _, err := s.Search(req.InitialSearch, false); err != nil {
			src.Close()
			return nil, err
		}
	}
	if req.InitialLine > 0 {
		if _, err := s.JumpLine(req.InitialLine); err != nil && !errors.Is(err, errs.ErrSourceExhausted) {
			src.Close()
			return nil, err
		}
	}

	s.log.Info("opened",
		"name", src.Name(),
		"backing", src.Kind().String(),
		"bytes", src.Size(),
		"lines", s.idx.Count(),
	)

	if !opts.Manual {
		ctx, s.cancel = context.WithCancel(ctx)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.watcher.Run(ctx); err != nil {
				s.log.Error("watcher stopped", "error", err)
			}
		}()
	}
	return s, nil
}

// Close stops the watcher and releases the source
func (s *Session) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return s.src.Close()
}

// Events delivers the watcher's events. Pass each one to Apply.
func (s *Session) Events() <-chan tail.Event {
	return s.watcher.Events()
}

// Tick runs one synchronous poll and applies its events, returning the
// messages they produced
func (s *Session) Tick(ctx context.Context) []string {
	var msgs []string
	for _, ev := range s.watcher.Tick(ctx) {
		if msg := s.Apply(ev); msg != "" {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

// Apply folds a watcher event into the session and returns a message for
// the user, empty when there is nothing to say. Source loss is reported
// once.
func (s *Session) Apply(ev tail.Event) string {
	switch ev.Kind {
	case tail.EventGrowth:
		if s.nav.Line() == 0 {
			s.Settle()
			s.nav.Snap()
		}
		if s.nav.Following() {
			s.Settle()
			s.nav.AutoAdvance()
		}
	case tail.EventNotify:
		if ev.Notification != nil {
			return ev.Notification.Message()
		}
	case tail.EventSourceLost:
		if s.lost {
			return ""
		}
		s.lost = true
		s.log.Warn("source lost", "name", s.src.Name(), "lines", s.idx.Count())
		return fmt.Sprintf("%s: source lost, showing %d indexed lines", s.src.Name(), s.idx.Count())
	case tail.EventSourceClosed:
		s.closed = true
		s.Settle()
		s.nav.Snap()
		s.nav.AutoAdvance()
	}
	return ""
}

// Pump advances background bookkeeping over newly indexed lines by at most
// budget lines per consumer. It reports whether work remains.
func (s *Session) Pump(budget int) bool {
	if budget <= 0 {
		budget = s.cfg.Engine.QueryBatchLines
	}
	if err := s.advanceQueries(budget); err != nil {
		s.log.Warn("query catch-up", "error", err)
	}
	s.times.Advance(budget)
	if err := s.tally.advance(s.idx, budget); err != nil {
		s.log.Warn("level count catch-up", "error", err)
	}
	if s.nav.Following() {
		s.nav.AutoAdvance()
	}
	return s.pending()
}

// Settle brings search and filter state up to date with the index
func (s *Session) Settle() {
	if err := s.advanceQueries(0); err != nil {
		s.log.Warn("query catch-up", "error", err)
	}
}

func (s *Session) advanceQueries(budget int) error {
	if s.search != nil {
		if _, err := s.search.Advance(s.idx, budget); err != nil {
			return err
		}
	}
	if s.projection != nil {
		if _, err := s.projection.Advance(s.idx, budget); err != nil {
			return err
		}
		s.nav.Snap()
	}
	return nil
}

func (s *Session) pending() bool {
	count := s.idx.Count()
	switch {
	case s.search != nil && s.search.Scanned() < count:
		return true
	case s.projection != nil && s.projection.Scanned() < count:
		return true
	case s.tally.scanned < count:
		return true
	default:
		return s.times.Scanned() < count
	}
}

// Search installs a case-insensitive search and moves to the first match
// at or after the cursor. An empty pattern clears the search. It returns
// the number of matches among indexed lines.
func (s *Session) Search(pattern string, isRegex bool) (int, error) {
	if pattern == "" {
		s.search = nil
		return 0, nil
	}
	search, err := query.NewSearch(pattern, isRegex)
	if err != nil {
		return 0, err
	}
	if _, err := search.Advance(s.idx, 0); err != nil {
		return 0, err
	}
	s.search = search

	if line := s.nav.Line(); line > 0 && s.isMatchVisible(line) {
		return search.Count(), nil
	}
	if _, err := s.nav.StepMatch(search, query.Forward); err != nil && !errors.Is(err, errs.ErrSourceExhausted) {
		return search.Count(), err
	}
	return search.Count(), nil
}

func (s *Session) isMatchVisible(line int) bool {
	text, err := s.idx.Line(line)
	if err != nil || !s.search.Matcher().Match(text) {
		return false
	}
	_, exact := s.nav.View().PositionOf(line)
	return exact
}

// StepMatch moves to the next or previous visible match
func (s *Session) StepMatch(dir query.Direction) (int, error) {
	if s.search == nil {
		return s.nav.Line(), fmt.Errorf("no active search: %w", errs.ErrOutOfRange)
	}
	s.Settle()
	return s.nav.StepMatch(s.search, dir)
}

// Filter restricts the view to lines matching text. Empty text shows every
// line again.
func (s *Session) Filter(text string) (int, error) {
	f, err := query.ParseFilter(text)
	if err != nil {
		return s.nav.View().Len(), err
	}
	if f.Empty() {
		s.projection = nil
		s.nav.SetView(nil)
		return s.nav.View().Len(), nil
	}

	p := query.NewProjection(f)
	if _, err := p.Advance(s.idx, 0); err != nil {
		return s.nav.View().Len(), err
	}
	s.projection = p
	s.nav.SetView(p)
	return p.Len(), nil
}

// JumpTime moves to the line nearest a time such as 14:30 or -5m
func (s *Session) JumpTime(spec string) (int, error) {
	ts, err := nav.ParseTimeSpec(spec)
	if err != nil {
		return s.nav.Line(), err
	}
	return s.nav.GotoTime(ts)
}

// JumpLine moves to line target. Out-of-range targets are clamped and
// reported with errs.ErrSourceExhausted.
func (s *Session) JumpLine(target int) (int, error) {
	return s.nav.GotoLine(target)
}

// Scroll moves the cursor delta visible lines
func (s *Session) Scroll(delta int) error {
	return s.nav.ScrollBy(delta)
}

// Top moves to the first visible line
func (s *Session) Top() {
	s.nav.Top()
}

// Bottom moves to the last visible line, indexing everything available
func (s *Session) Bottom() error {
	return s.nav.Bottom()
}

// SetFollow turns follow mode on or off
func (s *Session) SetFollow(on bool) {
	s.nav.SetFollow(on)
	if on {
		s.Settle()
		s.nav.AutoAdvance()
	}
}

// SetDeltaMode shows or hides the time delta column
func (s *Session) SetDeltaMode(on bool) {
	s.delta = on
}

// Cursor returns the cursor
func (s *Session) Cursor() nav.Cursor {
	return s.nav.Cursor()
}

// Position returns the cursor's position among visible lines
func (s *Session) Position() int {
	return s.nav.Position()
}

// BookmarkOp selects a bookmark command
type BookmarkOp int

const (
	BookmarkToggle BookmarkOp = iota
	BookmarkAdd
	BookmarkRemove
	BookmarkGoto
	BookmarkNext
	BookmarkPrev
)

// BookmarkResult describes what a bookmark command did
type BookmarkResult struct {
	Bookmark bookmark.Bookmark
	Removed  bool
	Line     int // cursor line afterwards
}

// Bookmark runs op. Toggle, Add and an empty-argument Remove act on the
// cursor line; arg is a name for Toggle and Add, and a name or line for
// Remove and Goto.
func (s *Session) Bookmark(op BookmarkOp, arg string) (BookmarkResult, error) {
	line := s.nav.Line()
	res := BookmarkResult{Line: line}

	switch op {
	case BookmarkToggle, BookmarkAdd:
		if line == 0 {
			return res, fmt.Errorf("no line under cursor: %w", errs.ErrOutOfRange)
		}
		if op == BookmarkAdd {
			b, err := s.marks.Add(line, arg)
			res.Bookmark = b
			return res, err
		}
		b, added, err := s.marks.Toggle(line, arg)
		res.Bookmark, res.Removed = b, !added && err == nil
		return res, err

	case BookmarkRemove:
		if arg == "" {
			arg = strconv.Itoa(line)
		}
		b, err := s.marks.Remove(arg)
		res.Bookmark, res.Removed = b, err == nil
		return res, err

	case BookmarkGoto:
		b, err := s.marks.Lookup(arg)
		if err != nil {
			return res, err
		}
		res.Bookmark = b
		res.Line, err = s.nav.GotoBookmark(arg)
		return res, err

	case BookmarkNext, BookmarkPrev:
		dir := query.Forward
		if op == BookmarkPrev {
			dir = query.Backward
		}
		var err error
		res.Line, err = s.nav.StepBookmark(dir)
		if b, ok := s.marks.At(res.Line); ok {
			res.Bookmark = b
		}
		return res, err

	default:
		return res, fmt.Errorf("bookmark op %d: %w", op, errs.ErrOutOfRange)
	}
}

// Bookmarks returns the bookmarks ordered by line
func (s *Session) Bookmarks() []bookmark.Bookmark {
	return s.marks.List()
}

// Watch adds a notify watch for lines indexed from now on
func (s *Session) Watch(pattern string, isRegex bool) (tail.Watch, error) {
	return s.watches.Add(pattern, isRegex, s.idx.Count())
}

// Unwatch removes a watch by id or pattern
func (s *Session) Unwatch(idOrPattern string) (tail.Watch, error) {
	return s.watches.Remove(idOrPattern)
}

// Watches returns the active watches
func (s *Session) Watches() []tail.Watch {
	return s.watches.List()
}

// Export writes every visible line to path, or to a temp file when path is
// empty
func (s *Session) Export(path string) (*slice.Info, error) {
	s.Settle()
	view := s.nav.View()
	return slice.NewSlicer("").SliceRange(s.src.Name(), s.idx, view, 0, view.Len(), path)
}

// CursorText returns the content of the line under the cursor
func (s *Session) CursorText() (string, error) {
	line := s.nav.Line()
	if line == 0 {
		return "", fmt.Errorf("no line under cursor: %w", errs.ErrOutOfRange)
	}
	text, err := s.idx.Line(line)
	if err != nil {
		return "", err
	}
	return string(text), nil
}

// Stats returns a snapshot for the status line
func (s *Session) Stats() Stats {
	st := Stats{
		Name:      s.src.Name(),
		Kind:      s.src.Kind(),
		Lines:     s.idx.Count(),
		Bytes:     s.src.Size(),
		Visible:   s.nav.View().Len(),
		Bookmarks: s.marks.Len(),
		Watches:   s.watches.Len(),
		Following: s.nav.Following(),
		Delta:     s.delta,
		Lost:      s.lost,
		Closed:    s.closed,
		Levels:    s.tally.snapshot(),
	}
	if s.projection != nil {
		st.Filtered = true
		st.Filter = s.projection.Filter().String()
	}
	if s.search != nil {
		st.Pattern = s.search.Matcher().Pattern()
		st.Matches = s.search.Count()
		st.Match = s.matchOrdinal(s.nav.Line())
	}
	return st
}

func (s *Session) matchOrdinal(line int) int {
	matches := s.search.Matches()
	i := sort.SearchInts(matches, line)
	if i < len(matches) && matches[i] == line {
		return i + 1
	}
	return 0
}

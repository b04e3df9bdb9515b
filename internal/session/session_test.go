package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/TimelordUK/loghew/internal/config"
	"github.com/TimelordUK/loghew/internal/errs"
	"github.com/TimelordUK/loghew/internal/query"
	"github.com/TimelordUK/loghew/internal/source"
	"github.com/TimelordUK/loghew/pkg/logformat"
)

const sample = `2024-01-15 10:00:00 INFO starting
2024-01-15 10:00:01 DEBUG debug error detail
2024-01-15 10:00:02 ERROR disk full
2024-01-15 10:00:05 WARN retrying
2024-01-15 10:01:05 ERROR gave up
2024-01-15 10:01:06 INFO shutdown
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func openSession(t *testing.T, req OpenRequest, opts Options) *Session {
	t.Helper()
	opts.Manual = true
	s, err := Open(context.Background(), req, opts)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenAndView(t *testing.T) {
	s := openSession(t, OpenRequest{Path: writeLog(t, sample)}, Options{})

	lines, err := s.View(10)
	if err != nil {
		t.Fatalf("View returned error: %v", err)
	}
	if len(lines) != 6 {
		t.Fatalf("View returned %d lines, want 6", len(lines))
	}
	if !lines[0].IsCursor || lines[0].Number != 1 {
		t.Errorf("first row = %+v, want cursor on line 1", lines[0])
	}
	if lines[2].Level != logformat.LevelError || lines[3].Level != logformat.LevelWarn {
		t.Errorf("levels = %v, %v", lines[2].Level, lines[3].Level)
	}
	if !lines[2].HasTime || lines[2].Timestamp.Second() != 2 {
		t.Errorf("timestamp on line 3 = %v (%v)", lines[2].Timestamp, lines[2].HasTime)
	}
	if lines[0].Delta != "" {
		t.Errorf("delta shown while delta mode is off: %q", lines[0].Delta)
	}

	st := s.Stats()
	if st.Name != "app.log" || st.Lines != 6 || st.Visible != 6 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestOpenErrors(t *testing.T) {
	_, err := Open(context.Background(), OpenRequest{Path: filepath.Join(t.TempDir(), "missing.log")}, Options{Manual: true})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = Open(context.Background(), OpenRequest{Path: t.TempDir()}, Options{Manual: true})
	if !errors.Is(err, errs.ErrNotRegularFile) {
		t.Fatalf("expected ErrNotRegularFile, got %v", err)
	}
}

func TestOpenInitialLineAndSearch(t *testing.T) {
	path := writeLog(t, sample)

	s := openSession(t, OpenRequest{Path: path, InitialLine: 4}, Options{})
	if got := s.Cursor().Line; got != 4 {
		t.Errorf("initial line: cursor = %d, want 4", got)
	}

	s = openSession(t, OpenRequest{Path: path, InitialLine: 99}, Options{})
	if got := s.Cursor().Line; got != 6 {
		t.Errorf("clamped initial line: cursor = %d, want 6", got)
	}

	s = openSession(t, OpenRequest{Path: path, InitialSearch: "disk"}, Options{})
	if got := s.Cursor().Line; got != 3 {
		t.Errorf("initial search: cursor = %d, want 3", got)
	}
}

func TestSearchAndStep(t *testing.T) {
	s := openSession(t, OpenRequest{Path: writeLog(t, sample)}, Options{})

	count, err := s.Search("error", false)
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if count != 3 || s.Cursor().Line != 2 {
		t.Fatalf("Search: count=%d cursor=%d, want 3 and 2", count, s.Cursor().Line)
	}

	if line, err := s.StepMatch(query.Forward); err != nil || line != 3 {
		t.Fatalf("StepMatch forward = %d, %v", line, err)
	}
	if st := s.Stats(); st.Match != 2 || st.Matches != 3 || st.Pattern != "error" {
		t.Errorf("Stats() = %+v", st)
	}

	lines, err := s.View(10)
	if err != nil {
		t.Fatalf("View returned error: %v", err)
	}
	if got := lines[2].Highlights; len(got) != 1 || lines[2].Text[got[0][0]:got[0][1]] != "ERROR" {
		t.Errorf("highlights on line 3 = %v", got)
	}

	// invalid pattern keeps the previous search
	if _, err := s.Search("err(", true); !errors.Is(err, errs.ErrInvalidPattern) {
		t.Fatalf("expected ErrInvalidPattern, got %v", err)
	}
	if st := s.Stats(); st.Pattern != "error" || s.Cursor().Line != 3 {
		t.Errorf("state changed after failed search: %+v cursor=%d", st, s.Cursor().Line)
	}

	if _, err := s.Search("", false); err != nil {
		t.Fatalf("clearing search returned error: %v", err)
	}
	if _, err := s.StepMatch(query.Forward); !errors.Is(err, errs.ErrOutOfRange) {
		t.Errorf("StepMatch without search: expected ErrOutOfRange, got %v", err)
	}
}

func TestStepMatchStopPolicy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Engine.WrapMatches = false
	s := openSession(t, OpenRequest{Path: writeLog(t, sample)}, Options{Config: cfg})

	if _, err := s.Search("gave up", false); err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if _, err := s.StepMatch(query.Forward); !errors.Is(err, errs.ErrSourceExhausted) {
		t.Fatalf("expected ErrSourceExhausted, got %v", err)
	}
	if got := s.Cursor().Line; got != 5 {
		t.Errorf("cursor moved to %d on exhausted step", got)
	}
}

func TestFilter(t *testing.T) {
	s := openSession(t, OpenRequest{Path: writeLog(t, sample)}, Options{})

	visible, err := s.Filter("ERROR !debug")
	if err != nil {
		t.Fatalf("Filter returned error: %v", err)
	}
	if visible != 2 {
		t.Fatalf("Filter visible = %d, want 2", visible)
	}
	lines, err := s.View(10)
	if err != nil {
		t.Fatalf("View returned error: %v", err)
	}
	if len(lines) != 2 || lines[0].Number != 3 || lines[1].Number != 5 {
		t.Fatalf("filtered view = %+v", lines)
	}
	if !lines[0].IsCursor || len(lines[0].Highlights) != 1 {
		t.Errorf("first filtered row = %+v", lines[0])
	}

	if _, err := s.Filter("/[/"); !errors.Is(err, errs.ErrInvalidPattern) {
		t.Fatalf("expected ErrInvalidPattern, got %v", err)
	}
	if st := s.Stats(); !st.Filtered || st.Visible != 2 {
		t.Errorf("state changed after failed filter: %+v", st)
	}

	if visible, err := s.Filter(""); err != nil || visible != 6 {
		t.Fatalf("clearing filter = %d, %v", visible, err)
	}
	if got := s.Cursor().Line; got != 3 {
		t.Errorf("cursor after clearing filter = %d, want 3", got)
	}
}

func TestJumpTime(t *testing.T) {
	s := openSession(t, OpenRequest{Path: writeLog(t, sample)}, Options{})

	tests := []struct {
		spec string
		want int
	}{
		{"10:00:04", 3},
		{"10:01", 4},
		{"+1m", 5},
		{"-1m", 4},
		{"09:00", 1},
	}
	for _, tt := range tests {
		line, err := s.JumpTime(tt.spec)
		if err != nil {
			t.Fatalf("JumpTime(%q) returned error: %v", tt.spec, err)
		}
		if line != tt.want {
			t.Errorf("JumpTime(%q) = %d, want %d", tt.spec, line, tt.want)
		}
	}

	if _, err := s.JumpTime("soon"); err == nil {
		t.Fatal("expected error for invalid time")
	}
	if got := s.Cursor().Line; got != 1 {
		t.Errorf("cursor moved to %d after invalid time", got)
	}
}

func TestJumpLineClamps(t *testing.T) {
	s := openSession(t, OpenRequest{Path: writeLog(t, sample)}, Options{})

	line, err := s.JumpLine(50)
	if !errors.Is(err, errs.ErrSourceExhausted) || line != 6 {
		t.Fatalf("JumpLine(50) = %d, %v", line, err)
	}
	if line, err := s.JumpLine(2); err != nil || line != 2 {
		t.Fatalf("JumpLine(2) = %d, %v", line, err)
	}
}

func TestBookmarks(t *testing.T) {
	s := openSession(t, OpenRequest{Path: writeLog(t, sample)}, Options{})

	if _, err := s.JumpLine(3); err != nil {
		t.Fatalf("JumpLine returned error: %v", err)
	}
	res, err := s.Bookmark(BookmarkToggle, "disk")
	if err != nil || res.Removed || res.Bookmark.Line != 3 {
		t.Fatalf("toggle on = %+v, %v", res, err)
	}
	if _, err := s.JumpLine(5); err != nil {
		t.Fatalf("JumpLine returned error: %v", err)
	}
	if _, err := s.Bookmark(BookmarkAdd, "disk"); !errors.Is(err, errs.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	if _, err := s.Bookmark(BookmarkAdd, ""); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	res, err = s.Bookmark(BookmarkGoto, "disk")
	if err != nil || res.Line != 3 {
		t.Fatalf("goto = %+v, %v", res, err)
	}
	res, err = s.Bookmark(BookmarkNext, "")
	if err != nil || res.Line != 5 || res.Bookmark.Name != "5" {
		t.Fatalf("next = %+v, %v", res, err)
	}

	lines, err := s.View(10)
	if err != nil {
		t.Fatalf("View returned error: %v", err)
	}
	if lines[2].Bookmark != "disk" || lines[4].Bookmark != "5" {
		t.Errorf("bookmark markers = %q, %q", lines[2].Bookmark, lines[4].Bookmark)
	}

	if _, err := s.Bookmark(BookmarkGoto, "nope"); !errors.Is(err, errs.ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
	if got := s.Cursor().Line; got != 5 {
		t.Errorf("cursor moved to %d after failed goto", got)
	}

	res, err = s.Bookmark(BookmarkRemove, "")
	if err != nil || !res.Removed {
		t.Fatalf("remove at cursor = %+v, %v", res, err)
	}
	if got := s.Bookmarks(); len(got) != 1 || got[0].Name != "disk" {
		t.Errorf("Bookmarks() = %+v", got)
	}
}

func TestDeltaMode(t *testing.T) {
	s := openSession(t, OpenRequest{Path: writeLog(t, sample)}, Options{})
	s.SetDeltaMode(true)

	lines, err := s.View(10)
	if err != nil {
		t.Fatalf("View returned error: %v", err)
	}
	want := []string{"+0ms", "+1.0s", "+1.0s", "+3.0s", "+1.0m", "+1.0s"}
	for i, w := range want {
		if lines[i].Delta != w {
			t.Errorf("line %d delta = %q, want %q", i+1, lines[i].Delta, w)
		}
	}
	if !s.Stats().Delta {
		t.Error("Stats().Delta should be set")
	}
}

func TestDeltaCarriesAcrossContinuationLines(t *testing.T) {
	log := `2024-01-15 10:00:00 ERROR request failed
    at handler.go:42
    at server.go:17
2024-01-15 10:00:03 INFO recovered
`
	s := openSession(t, OpenRequest{Path: writeLog(t, log)}, Options{})
	s.SetDeltaMode(true)

	lines, err := s.View(10)
	if err != nil {
		t.Fatalf("View returned error: %v", err)
	}
	want := []string{"+0ms", "+0ms", "+0ms", "+3.0s"}
	for i, w := range want {
		if lines[i].Delta != w {
			t.Errorf("line %d delta = %q, want %q", i+1, lines[i].Delta, w)
		}
	}
}

func TestLevelCounts(t *testing.T) {
	path := writeLog(t, sample)
	s := openSession(t, OpenRequest{Path: path}, Options{})
	for s.Pump(2) {
	}

	got := s.Stats().Levels
	want := LevelCounts{
		logformat.LevelInfo:  2,
		logformat.LevelDebug: 1,
		logformat.LevelError: 2,
		logformat.LevelWarn:  1,
	}
	if len(got) != len(want) {
		t.Fatalf("Levels = %v, want %v", got, want)
	}
	for level, n := range want {
		if got[level] != n {
			t.Errorf("Levels[%v] = %d, want %d", level, got[level], n)
		}
	}

	appendLog(t, path, "2024-01-15 10:02:00 ERROR again\n")
	s.Tick(context.Background())
	for s.Pump(0) {
	}
	if n := s.Stats().Levels[logformat.LevelError]; n != 3 {
		t.Errorf("error count after growth = %d, want 3", n)
	}
}

// stampedLog returns count lines one minute apart from 10:00, with text
// substituted on line hit
func stampedLog(count, hit int, text string) string {
	var b strings.Builder
	for i := 1; i <= count; i++ {
		msg := fmt.Sprintf("tick %d", i)
		if i == hit {
			msg = text
		}
		fmt.Fprintf(&b, "2024-01-15 %02d:%02d:00 INFO %s\n", 10+(i-1)/60, (i-1)%60, msg)
	}
	return b.String()
}

func TestJumpsPastIndexedLines(t *testing.T) {
	path := writeLog(t, stampedLog(800, 650, "needle"))

	s := openSession(t, OpenRequest{Path: path}, Options{Rows: 2})
	line, err := s.JumpTime("10:08")
	if err != nil || line != 9 {
		t.Fatalf("JumpTime(10:08) = %d, %v, want 9", line, err)
	}
	if line, _ := s.JumpTime("20:00"); line != 601 {
		t.Errorf("JumpTime(20:00) = %d, want 601", line)
	}
	if st := s.Stats(); st.Lines != 800 {
		t.Errorf("indexed %d lines after time jump, want 800", st.Lines)
	}

	s = openSession(t, OpenRequest{Path: path, InitialSearch: "needle"}, Options{Rows: 2})
	if got := s.Cursor().Line; got != 650 {
		t.Errorf("initial search past indexed lines: cursor = %d, want 650", got)
	}
}

func TestMappedSourceTruncated(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("a mapped file cannot be truncated on windows")
	}
	content := strings.Repeat("2024-01-15 10:00:00 INFO padding the file past the mapping threshold\n", 16000)
	path := writeLog(t, content)
	cfg := config.DefaultConfig()
	cfg.Engine.MmapThresholdMB = 1

	s := openSession(t, OpenRequest{Path: path}, Options{Config: cfg})
	if kind := s.Stats().Kind; kind != source.KindMapped {
		t.Fatalf("backing = %v, want mmap", kind)
	}

	if err := os.Truncate(path, 0); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	msgs := s.Tick(context.Background())
	if len(msgs) != 1 || !strings.Contains(msgs[0], "source lost") {
		t.Fatalf("Tick messages = %q", msgs)
	}
	lines, err := s.View(3)
	if err != nil || len(lines) != 3 {
		t.Fatalf("View after truncation = %d lines, %v", len(lines), err)
	}
}

func TestGrowthFollowAndNotify(t *testing.T) {
	path := writeLog(t, sample)
	s := openSession(t, OpenRequest{Path: path}, Options{})
	ctx := context.Background()

	if _, err := s.Watch("panic", false); err != nil {
		t.Fatalf("Watch returned error: %v", err)
	}
	s.SetFollow(true)
	if got := s.Cursor().Line; got != 6 {
		t.Fatalf("follow did not advance: cursor = %d", got)
	}

	appendLog(t, path, "2024-01-15 10:02:00 FATAL panic now\n2024-01-15 10:02:01 INFO after\n")
	msgs := s.Tick(ctx)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "line 7") {
		t.Fatalf("Tick messages = %q", msgs)
	}
	if got := s.Cursor().Line; got != 8 {
		t.Errorf("following cursor = %d, want 8", got)
	}

	// manual navigation leaves follow mode
	if err := s.Scroll(-1); err != nil {
		t.Fatalf("Scroll returned error: %v", err)
	}
	appendLog(t, path, "2024-01-15 10:02:02 INFO more\n")
	s.Tick(ctx)
	if st := s.Stats(); st.Following || st.Lines != 9 || s.Cursor().Line != 7 {
		t.Errorf("after scroll: %+v cursor=%d", st, s.Cursor().Line)
	}

	if _, err := s.Unwatch("panic"); err != nil {
		t.Fatalf("Unwatch returned error: %v", err)
	}
	if len(s.Watches()) != 0 {
		t.Errorf("Watches() = %+v", s.Watches())
	}
}

func TestSearchCatchesUpWithGrowth(t *testing.T) {
	path := writeLog(t, sample)
	s := openSession(t, OpenRequest{Path: path}, Options{})

	if _, err := s.Search("gave up", false); err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	appendLog(t, path, "2024-01-15 10:03:00 ERROR gave up again\n")
	s.Tick(context.Background())

	for s.Pump(2) {
	}
	if st := s.Stats(); st.Matches != 2 {
		t.Errorf("matches after growth = %d, want 2", st.Matches)
	}
	if line, err := s.StepMatch(query.Forward); err != nil || line != 7 {
		t.Errorf("StepMatch = %d, %v", line, err)
	}
}

func TestSourceLostSurfacedOnce(t *testing.T) {
	path := writeLog(t, sample)
	s := openSession(t, OpenRequest{Path: path}, Options{})
	ctx := context.Background()

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	msgs := s.Tick(ctx)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "source lost") {
		t.Fatalf("Tick messages = %q", msgs)
	}
	if msgs := s.Tick(ctx); len(msgs) != 0 {
		t.Errorf("second Tick messages = %q", msgs)
	}
	if !s.Stats().Lost {
		t.Error("Stats().Lost should be set")
	}

	if _, err := s.Search("disk", false); err != nil {
		t.Fatalf("Search after loss returned error: %v", err)
	}
	if lines, err := s.View(3); err != nil || len(lines) != 3 {
		t.Fatalf("View after loss = %d lines, %v", len(lines), err)
	}
}

func TestStdinStream(t *testing.T) {
	s := openSession(t, OpenRequest{}, Options{Stdin: strings.NewReader("alpha\nbeta")})
	ctx := context.Background()

	deadline := time.Now().Add(5 * time.Second)
	for !s.Stats().Closed {
		if time.Now().After(deadline) {
			t.Fatal("stream never closed")
		}
		s.Tick(ctx)
		time.Sleep(5 * time.Millisecond)
	}

	lines, err := s.View(5)
	if err != nil {
		t.Fatalf("View returned error: %v", err)
	}
	if len(lines) != 2 || lines[1].Text != "beta" {
		t.Fatalf("stdin lines = %+v", lines)
	}
	if st := s.Stats(); st.Name != StdinName || st.Lines != 2 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestBackgroundWatcher(t *testing.T) {
	path := writeLog(t, sample)
	cfg := config.DefaultConfig()
	cfg.Engine.PollIntervalMs = 10

	s, err := Open(context.Background(), OpenRequest{Path: path}, Options{Config: cfg})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer s.Close()

	appendLog(t, path, "2024-01-15 10:05:00 INFO tail\n")
	timeout := time.After(5 * time.Second)
	for s.Stats().Lines < 7 {
		select {
		case ev := <-s.Events():
			s.Apply(ev)
		case <-timeout:
			t.Fatalf("no growth observed, lines = %d", s.Stats().Lines)
		}
	}
}

func TestExportVisible(t *testing.T) {
	s := openSession(t, OpenRequest{Path: writeLog(t, sample)}, Options{})
	if _, err := s.Filter("ERROR"); err != nil {
		t.Fatalf("Filter returned error: %v", err)
	}

	out := filepath.Join(t.TempDir(), "errors.log")
	info, err := s.Export(out)
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if info.Lines != 3 || strings.Count(string(data), "\n") != 3 || !strings.Contains(string(data), "disk full") {
		t.Errorf("export = %+v %q", info, data)
	}

	text, err := s.CursorText()
	if err != nil || !strings.Contains(text, "debug error detail") {
		t.Errorf("CursorText() = %q, %v", text, err)
	}
}

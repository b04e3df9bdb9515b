package render

import (
	"strings"
	"time"

	"github.com/TimelordUK/loghew/internal/config"
	"github.com/TimelordUK/loghew/internal/session"
	"github.com/TimelordUK/loghew/pkg/logformat"
	"github.com/charmbracelet/lipgloss"
)

// Renderer applies styling to lines
type Renderer interface {
	Render(line *session.VisibleLine) string
	RenderDelta(line *session.VisibleLine) string
}

// LogLevelRenderer colors lines based on log level and highlights matches
type LogLevelRenderer struct {
	styles   map[logformat.Level]lipgloss.Style
	match    lipgloss.Style
	tabWidth int

	deltaQuiet lipgloss.Style
	deltaPlain lipgloss.Style
	deltaSlow  lipgloss.Style
	deltaStall lipgloss.Style
}

// NewLogLevelRenderer creates a renderer with config
func NewLogLevelRenderer(cfg *config.Config) *LogLevelRenderer {
	levels := cfg.Theme.Levels
	styles := map[logformat.Level]lipgloss.Style{
		logformat.LevelUnknown: lipgloss.NewStyle(),
		logformat.LevelTrace:   lipgloss.NewStyle().Foreground(lipgloss.Color(levels.Trace)),
		logformat.LevelDebug:   lipgloss.NewStyle().Foreground(lipgloss.Color(levels.Debug)),
		logformat.LevelInfo:    lipgloss.NewStyle().Foreground(lipgloss.Color(levels.Info)),
		logformat.LevelWarn:    lipgloss.NewStyle().Foreground(lipgloss.Color(levels.Warn)),
		logformat.LevelError:   lipgloss.NewStyle().Foreground(lipgloss.Color(levels.Error)),
		logformat.LevelFatal:   lipgloss.NewStyle().Foreground(lipgloss.Color(levels.Fatal)).Bold(true),
	}

	return &LogLevelRenderer{
		styles:     styles,
		match:      lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color(cfg.Theme.SearchMatch)),
		tabWidth:   tabWidth(cfg),
		deltaQuiet: lipgloss.NewStyle().Foreground(lipgloss.Color(levels.Debug)),
		deltaPlain: lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.Theme.Delta)),
		deltaSlow:  lipgloss.NewStyle().Foreground(lipgloss.Color(levels.Warn)),
		deltaStall: lipgloss.NewStyle().Foreground(lipgloss.Color(levels.Error)).Bold(true),
	}
}

func tabWidth(cfg *config.Config) int {
	if cfg.Display.TabWidth > 0 {
		return cfg.Display.TabWidth
	}
	return 4
}

// Render applies log level styling to a line, with match ranges on top
func (r *LogLevelRenderer) Render(line *session.VisibleLine) string {
	base := r.styles[line.Level]
	var b strings.Builder
	col := 0
	for _, seg := range Segments(line.Text, line.Highlights) {
		text := ExpandTabs(seg.Text, r.tabWidth, &col)
		if seg.Match {
			b.WriteString(r.match.Render(text))
		} else {
			b.WriteString(base.Render(text))
		}
	}
	return b.String()
}

// RenderDelta colors the delta column by how long the gap was
func (r *LogLevelRenderer) RenderDelta(line *session.VisibleLine) string {
	var style lipgloss.Style
	switch DeltaClassOf(line.Gap) {
	case DeltaQuiet:
		style = r.deltaQuiet
	case DeltaSlow:
		style = r.deltaSlow
	case DeltaStall:
		style = r.deltaStall
	default:
		style = r.deltaPlain
	}
	return style.Render(line.Delta)
}

// DeltaClass buckets the gap between consecutive timestamps
type DeltaClass int

const (
	DeltaQuiet DeltaClass = iota // under 100ms
	DeltaPlain
	DeltaSlow  // over a second
	DeltaStall // over ten seconds
)

// DeltaClassOf returns the bucket for gap
func DeltaClassOf(gap time.Duration) DeltaClass {
	switch {
	case gap < 100*time.Millisecond:
		return DeltaQuiet
	case gap <= time.Second:
		return DeltaPlain
	case gap <= 10*time.Second:
		return DeltaSlow
	case gap < time.Minute:
		return DeltaStall
	case gap < time.Hour:
		return DeltaSlow
	default:
		return DeltaStall
	}
}

// PlainRenderer renders without styling
type PlainRenderer struct {
	tabWidth int
}

// NewPlainRenderer creates a plain renderer
func NewPlainRenderer(tabWidth int) *PlainRenderer {
	if tabWidth <= 0 {
		tabWidth = 4
	}
	return &PlainRenderer{tabWidth: tabWidth}
}

// Render returns the line content with tabs expanded
func (r *PlainRenderer) Render(line *session.VisibleLine) string {
	col := 0
	return ExpandTabs(line.Text, r.tabWidth, &col)
}

// RenderDelta returns the delta text as-is
func (r *PlainRenderer) RenderDelta(line *session.VisibleLine) string {
	return line.Delta
}

// Segment is a run of text that is or is not inside a highlight
type Segment struct {
	Text  string
	Match bool
}

// Segments splits text at the given byte ranges. Ranges must be sorted and
// non-overlapping; out-of-bounds parts are ignored.
func Segments(text string, ranges [][2]int) []Segment {
	var segs []Segment
	pos := 0
	for _, r := range ranges {
		start, end := max(r[0], pos), min(r[1], len(text))
		if start >= end {
			continue
		}
		if start > pos {
			segs = append(segs, Segment{Text: text[pos:start]})
		}
		segs = append(segs, Segment{Text: text[start:end], Match: true})
		pos = end
	}
	if pos < len(text) {
		segs = append(segs, Segment{Text: text[pos:]})
	}
	return segs
}

// ExpandTabs replaces tabs with spaces up to the next stop. col carries the
// display column across calls for the same line.
func ExpandTabs(s string, width int, col *int) string {
	if !strings.Contains(s, "\t") {
		*col += lipgloss.Width(s)
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if r == '\t' {
			n := width - *col%width
			b.WriteString(strings.Repeat(" ", n))
			*col += n
			continue
		}
		b.WriteRune(r)
		*col++
	}
	return b.String()
}

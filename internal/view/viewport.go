package view

import (
	"fmt"
	"strings"

	"github.com/TimelordUK/loghew/internal/config"
	"github.com/TimelordUK/loghew/internal/render"
	"github.com/TimelordUK/loghew/internal/session"
	"github.com/charmbracelet/lipgloss"
)

// deltaWidth fits the widest FormatDelta output plus a space
const deltaWidth = 9

// Viewport lays out visible lines on screen.
// It knows nothing about log formats, filters, or file sources;
// the session decides which lines are visible.
type Viewport struct {
	renderer render.Renderer

	// Dimensions
	width  int
	height int

	// Styling
	lineNumberStyle lipgloss.Style
	cursorStyle     lipgloss.Style
	markStyle       lipgloss.Style

	// Options
	showLineNumbers bool
	showDelta       bool
}

// NewViewport creates a new viewport
func NewViewport(width, height int, theme config.ThemeConfig) *Viewport {
	return &Viewport{
		width:           width,
		height:          height,
		showLineNumbers: true,
		lineNumberStyle: lipgloss.NewStyle().Foreground(lipgloss.Color(theme.LineNumbers)),
		cursorStyle:     lipgloss.NewStyle().Background(lipgloss.Color(theme.Cursor)),
		markStyle:       lipgloss.NewStyle().Foreground(lipgloss.Color(theme.Bookmark)).Bold(true),
		renderer:        render.NewPlainRenderer(4),
	}
}

// SetRenderer sets the line renderer
func (v *Viewport) SetRenderer(r render.Renderer) {
	v.renderer = r
}

// SetSize updates viewport dimensions
func (v *Viewport) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// Height returns the number of rows available for lines
func (v *Viewport) Height() int {
	return max(v.height, 1)
}

// SetShowLineNumbers toggles line numbers
func (v *Viewport) SetShowLineNumbers(show bool) {
	v.showLineNumbers = show
}

// SetShowDelta toggles the delta column
func (v *Viewport) SetShowDelta(show bool) {
	v.showDelta = show
}

// Render returns the viewport content as a string. maxLine sizes the line
// number gutter so it does not jump while scrolling.
func (v *Viewport) Render(lines []session.VisibleLine, maxLine int) string {
	var builder strings.Builder
	lineNumWidth := len(fmt.Sprintf("%d", max(maxLine, 1)))

	for i := range lines {
		line := &lines[i]
		if i > 0 {
			builder.WriteString("\n")
		}

		var row strings.Builder
		if line.Bookmark != "" {
			row.WriteString(v.markStyle.Render("▶"))
		} else {
			row.WriteString(" ")
		}

		if v.showLineNumbers {
			numStr := fmt.Sprintf("%*d ", lineNumWidth, line.Number)
			row.WriteString(v.lineNumberStyle.Render(numStr))
		}

		if v.showDelta {
			pad := max(deltaWidth-len(line.Delta), 1)
			row.WriteString(v.renderer.RenderDelta(line))
			row.WriteString(strings.Repeat(" ", pad))
		}

		row.WriteString(v.renderer.Render(line))

		content := row.String()
		if v.width > 0 {
			content = lipgloss.NewStyle().MaxWidth(v.width).Render(content)
		}
		if line.IsCursor {
			pad := max(v.width-lipgloss.Width(content), 0)
			content = v.cursorStyle.Render(content + strings.Repeat(" ", pad))
		}
		builder.WriteString(content)
	}

	// Pad with empty lines if needed
	for i := len(lines); i < v.height; i++ {
		if i > 0 || len(lines) > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString("~")
	}

	return builder.String()
}

// PercentScrolled returns how far through the view the cursor is
func PercentScrolled(position, total int) float64 {
	if total <= 1 {
		return 100
	}
	return float64(position) / float64(total-1) * 100
}

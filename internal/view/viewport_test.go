package view

import (
	"strings"
	"testing"

	"github.com/TimelordUK/loghew/internal/config"
	"github.com/TimelordUK/loghew/internal/session"
	"github.com/charmbracelet/x/ansi"
)

func TestRenderPadsAndNumbers(t *testing.T) {
	v := NewViewport(80, 4, config.DefaultConfig().Theme)
	lines := []session.VisibleLine{
		{Number: 9, Text: "first"},
		{Number: 10, Text: "second", Bookmark: "x", IsCursor: true},
	}

	rows := strings.Split(ansi.Strip(v.Render(lines, 120)), "\n")
	if len(rows) != 4 {
		t.Fatalf("rendered %d rows, want 4", len(rows))
	}
	if rows[0] != "   9 first" {
		t.Errorf("row 0 = %q", rows[0])
	}
	if !strings.HasPrefix(rows[1], "▶ 10 second") {
		t.Errorf("row 1 = %q", rows[1])
	}
	if rows[2] != "~" || rows[3] != "~" {
		t.Errorf("padding rows = %q, %q", rows[2], rows[3])
	}
}

func TestRenderDeltaAndTruncate(t *testing.T) {
	v := NewViewport(20, 1, config.DefaultConfig().Theme)
	v.SetShowLineNumbers(false)
	v.SetShowDelta(true)

	out := ansi.Strip(v.Render([]session.VisibleLine{{Number: 1, Text: "a very long line of text", Delta: "+3.0s"}}, 1))
	if !strings.HasPrefix(out, " +3.0s    a very") {
		t.Errorf("delta row = %q", out)
	}
	if w := ansi.StringWidth(out); w > 20 {
		t.Errorf("row width %d exceeds viewport", w)
	}
}

func TestPercentScrolled(t *testing.T) {
	if got := PercentScrolled(0, 1); got != 100 {
		t.Errorf("single line = %v", got)
	}
	if got := PercentScrolled(50, 101); got != 50 {
		t.Errorf("middle = %v", got)
	}
}

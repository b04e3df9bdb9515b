package ui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/TimelordUK/loghew/internal/config"
	"github.com/TimelordUK/loghew/internal/errs"
	"github.com/TimelordUK/loghew/internal/query"
	"github.com/TimelordUK/loghew/internal/render"
	"github.com/TimelordUK/loghew/internal/session"
	"github.com/TimelordUK/loghew/internal/tail"
	"github.com/TimelordUK/loghew/internal/view"
	"github.com/TimelordUK/loghew/pkg/logformat"
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// pumpInterval is how often background query catch-up runs
const pumpInterval = 50 * time.Millisecond

// Mode represents the current UI mode
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
	ModeCommand
)

type eventMsg tail.Event

type pumpMsg time.Time

// Model is the main application model
type Model struct {
	session  *session.Session
	cfg      *config.Config
	viewport *view.Viewport
	input    textinput.Model
	keys     KeyMap

	mode   Mode
	width  int
	height int

	// Status
	message string
	isError bool
	delta   bool
	quit    bool

	statusStyle lipgloss.Style
	errorStyle  lipgloss.Style
	helpStyle   lipgloss.Style
}

// NewModel creates a new application model over an open session
func NewModel(s *session.Session, cfg *config.Config, plain bool) *Model {
	viewport := view.NewViewport(80, 22, cfg.Theme)
	viewport.SetShowLineNumbers(cfg.Display.ShowLineNumbers)
	if plain {
		viewport.SetRenderer(render.NewPlainRenderer(cfg.Display.TabWidth))
	} else {
		viewport.SetRenderer(render.NewLogLevelRenderer(cfg))
	}

	ti := textinput.New()
	ti.Placeholder = "Search..."
	ti.CharLimit = 256
	ti.Prompt = ""

	m := &Model{
		session:  s,
		cfg:      cfg,
		viewport: viewport,
		input:    ti,
		keys:     NewKeyMap(cfg.Keybindings),
		mode:     ModeNormal,
		statusStyle: lipgloss.NewStyle().
			Background(lipgloss.Color(cfg.Theme.StatusBar)).
			Foreground(lipgloss.Color(cfg.Theme.StatusBarText)),
		errorStyle: lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.Theme.Levels.Error)),
		helpStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color(cfg.Theme.LineNumbers)),
	}
	m.setDelta(cfg.Display.ShowDelta)
	return m
}

// Init implements tea.Model
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForEvent(), pumpTick())
}

func (m *Model) waitForEvent() tea.Cmd {
	events := m.session.Events()
	return func() tea.Msg {
		return eventMsg(<-events)
	}
}

func pumpTick() tea.Cmd {
	return tea.Tick(pumpInterval, func(t time.Time) tea.Msg {
		return pumpMsg(t)
	})
}

// Update implements tea.Model
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Reserve 2 lines for status bar
		m.viewport.SetSize(msg.Width, msg.Height-2)
		return m, nil

	case eventMsg:
		if text := m.session.Apply(tail.Event(msg)); text != "" {
			m.notify(text, msg.Kind == tail.EventSourceLost)
		}
		return m, m.waitForEvent()

	case pumpMsg:
		m.session.Pump(m.cfg.Engine.QueryBatchLines)
		return m, pumpTick()
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// Handle mode-specific input
	if m.mode != ModeNormal {
		return m.handleInputKey(msg)
	}

	page := max(m.viewport.Height()-1, 1)
	var err error

	switch m.keys.Lookup(msg.String()) {
	case ActQuit:
		m.quit = true
		return m, tea.Quit

	case ActScrollDown:
		err = m.session.Scroll(1)
	case ActScrollUp:
		err = m.session.Scroll(-1)
	case ActPageDown:
		err = m.session.Scroll(page)
	case ActPageUp:
		err = m.session.Scroll(-page)

	case ActTop:
		m.session.Top()
	case ActBottom:
		err = m.session.Bottom()

	case ActSearch:
		return m, m.openInput(ModeSearch, "", "Search...")
	case ActCommand:
		return m, m.openInput(ModeCommand, "/", "")

	case ActNextMatch:
		_, err = m.session.StepMatch(query.Forward)
	case ActPrevMatch:
		_, err = m.session.StepMatch(query.Backward)

	case ActBookmark:
		return m, m.run(Command{Kind: CmdBookmark})
	case ActNextMark:
		_, err = m.session.Bookmark(session.BookmarkNext, "")
	case ActPrevMark:
		_, err = m.session.Bookmark(session.BookmarkPrev, "")

	case ActFollow:
		return m, m.run(Command{Kind: CmdFollow})
	case ActDelta:
		return m, m.run(Command{Kind: CmdDelta})
	case ActCopy:
		err = m.copyCursorLine()
	}

	m.report(err)
	return m, nil
}

func (m *Model) openInput(mode Mode, value, placeholder string) tea.Cmd {
	m.mode = mode
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Placeholder = placeholder
	m.input.Focus()
	return textinput.Blink
}

func (m *Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		value := m.input.Value()
		m.closeInput()
		cmd, err := ParseCommand(value)
		if err != nil {
			m.report(err)
			return m, nil
		}
		return m, m.run(cmd)

	case "esc":
		m.closeInput()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) closeInput() {
	m.mode = ModeNormal
	m.input.Blur()
	m.input.SetValue("")
}

// run executes a parsed command against the session
func (m *Model) run(cmd Command) tea.Cmd {
	m.message, m.isError = "", false
	s := m.session

	switch cmd.Kind {
	case CmdSearch, CmdRegex:
		count, err := s.Search(cmd.Arg, cmd.Kind == CmdRegex)
		if err != nil {
			m.report(err)
			break
		}
		if cmd.Arg != "" {
			m.notify(fmt.Sprintf("%d matches", count), false)
		}

	case CmdFilter:
		visible, err := s.Filter(cmd.Arg)
		if err != nil {
			m.report(err)
			break
		}
		if cmd.Arg != "" {
			m.notify(fmt.Sprintf("%d lines match %q", visible, cmd.Arg), false)
		}

	case CmdTime:
		_, err := s.JumpTime(cmd.Arg)
		m.report(err)

	case CmdGoto:
		if n, convErr := strconv.Atoi(cmd.Arg); convErr == nil {
			_, err := s.JumpLine(n)
			m.report(err)
			break
		}
		_, err := s.Bookmark(session.BookmarkGoto, cmd.Arg)
		m.report(err)

	case CmdBookmark:
		res, err := s.Bookmark(session.BookmarkToggle, cmd.Arg)
		switch {
		case err != nil:
			m.report(err)
		case res.Removed:
			m.notify(fmt.Sprintf("bookmark %q removed", res.Bookmark.Name), false)
		default:
			m.notify(fmt.Sprintf("bookmark %q on line %d", res.Bookmark.Name, res.Bookmark.Line), false)
		}

	case CmdBookmarks:
		marks := s.Bookmarks()
		if len(marks) == 0 {
			m.notify("no bookmarks", false)
			break
		}
		parts := make([]string, len(marks))
		for i, b := range marks {
			parts[i] = fmt.Sprintf("%s:%d", b.Name, b.Line)
		}
		m.notify(strings.Join(parts, "  "), false)

	case CmdNotify:
		if cmd.Arg == "" {
			m.report(errors.New("/n needs a pattern"))
			break
		}
		w, err := s.Watch(cmd.Arg, false)
		if err != nil {
			m.report(err)
			break
		}
		m.notify(fmt.Sprintf("watching for %q", w.Pattern), false)

	case CmdUnnotify:
		w, err := s.Unwatch(cmd.Arg)
		if err != nil {
			m.report(err)
			break
		}
		m.notify(fmt.Sprintf("stopped watching %q", w.Pattern), false)

	case CmdNotifications:
		watches := s.Watches()
		if len(watches) == 0 {
			m.notify("no notify watches", false)
			break
		}
		parts := make([]string, len(watches))
		for i, w := range watches {
			parts[i] = strconv.Quote(w.Pattern)
		}
		m.notify("watching "+strings.Join(parts, " "), false)

	case CmdFollow:
		on := !s.Stats().Following
		s.SetFollow(on)
		if on {
			m.notify("follow on", false)
		} else {
			m.notify("follow off", false)
		}

	case CmdDelta:
		m.setDelta(!m.delta)

	case CmdWrite:
		info, err := s.Export(cmd.Arg)
		if err != nil {
			m.report(err)
			break
		}
		m.notify(fmt.Sprintf("wrote %d lines to %s", info.Lines, info.Path), false)

	case CmdTop:
		s.Top()

	case CmdBottom:
		m.report(s.Bottom())

	case CmdHelp:
		m.notify(strings.Join(Usage(), " | "), false)

	case CmdQuit:
		m.quit = true
		return tea.Quit
	}
	return nil
}

func (m *Model) copyCursorLine() error {
	text, err := m.session.CursorText()
	if err != nil {
		return err
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	m.notify("copied line to clipboard", false)
	return nil
}

func (m *Model) setDelta(on bool) {
	m.delta = on
	m.session.SetDeltaMode(on)
	m.viewport.SetShowDelta(on)
}

func (m *Model) notify(text string, isError bool) {
	m.message, m.isError = text, isError
}

// report shows err on the message line. Clamped navigation is not worth
// an error color.
func (m *Model) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrSourceExhausted):
		m.notify(err.Error(), false)
	default:
		m.notify(err.Error(), true)
	}
}

// View implements tea.Model
func (m *Model) View() string {
	if m.quit {
		return ""
	}
	var builder strings.Builder

	// Main content
	st := m.session.Stats()
	lines, err := m.session.View(m.viewport.Height())
	if err != nil {
		m.report(err)
	}
	builder.WriteString(m.viewport.Render(lines, st.Lines))
	builder.WriteString("\n")

	// Status bar
	var status string
	switch m.mode {
	case ModeSearch:
		status = "/" + m.input.View()
	case ModeCommand:
		status = ":" + m.input.View()
	default:
		status = statusLine(st, m.session.Cursor().Line, m.session.Position())
	}
	builder.WriteString(m.statusStyle.Width(m.width).Render(status))
	builder.WriteString("\n")

	// Message or help line
	switch {
	case m.message != "" && m.isError:
		builder.WriteString(m.errorStyle.Render(m.message))
	case m.message != "":
		builder.WriteString(m.message)
	default:
		help := "j/k:scroll  f/b:page  g/G:top/bottom  /:search  ::command  n/N:match  m:mark  F:follow  q:quit"
		builder.WriteString(m.helpStyle.Render(help))
	}

	return builder.String()
}

func statusLine(st session.Stats, line, position int) string {
	var b strings.Builder
	fmt.Fprintf(&b, " %s  L%d/%d  %.0f%%", st.Name, line, st.Lines, view.PercentScrolled(position, st.Visible))

	if n := st.Levels[logformat.LevelError] + st.Levels[logformat.LevelFatal]; n > 0 {
		fmt.Fprintf(&b, "  E:%d", n)
	}
	if n := st.Levels[logformat.LevelWarn]; n > 0 {
		fmt.Fprintf(&b, "  W:%d", n)
	}
	if n := st.Levels[logformat.LevelInfo]; n > 0 {
		fmt.Fprintf(&b, "  I:%d", n)
	}
	if st.Filtered {
		fmt.Fprintf(&b, "  [filter %q %d]", st.Filter, st.Visible)
	}
	if st.Pattern != "" {
		if st.Match > 0 {
			fmt.Fprintf(&b, "  [%d/%d]", st.Match, st.Matches)
		} else {
			fmt.Fprintf(&b, "  [%d matches]", st.Matches)
		}
	}
	if st.Bookmarks > 0 {
		fmt.Fprintf(&b, "  marks:%d", st.Bookmarks)
	}
	if st.Watches > 0 {
		fmt.Fprintf(&b, "  watch:%d", st.Watches)
	}
	switch {
	case st.Lost:
		b.WriteString("  LOST")
	case st.Following:
		b.WriteString("  FOLLOW")
	}
	if st.Delta {
		b.WriteString("  DELTA")
	}
	return b.String()
}

// Options configures Run
type Options struct {
	Config *config.Config
	// InputTTY reads keys from the terminal instead of stdin, for when the
	// log itself arrives on stdin
	InputTTY bool
	Plain    bool
}

// Run drives the program until the user quits or ctx is cancelled
func Run(ctx context.Context, s *session.Session, opts Options) error {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	model := NewModel(s, cfg, opts.Plain)

	progOpts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if opts.InputTTY {
		progOpts = append(progOpts, tea.WithInputTTY())
	}
	_, err := tea.NewProgram(model, progOpts...).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

package tail

import (
	"fmt"
	"sync"
	"time"

	"github.com/TimelordUK/loghew/internal/errs"
	"github.com/TimelordUK/loghew/internal/query"
	"github.com/google/uuid"
)

// Watch fires a notification when new lines match its pattern
type Watch struct {
	ID              string
	Pattern         string
	IsRegex         bool
	LastCheckedLine int

	matcher *query.Matcher
}

// Notification is one fired watch. ID is unique per notification so the
// delivery layer can drop duplicates.
type Notification struct {
	ID      string
	WatchID string
	Pattern string
	Line    int // first matching line in the batch
	Text    string
	Count   int // matching lines in the batch
	At      time.Time
}

// Message is the short text shown to the user
func (n Notification) Message() string {
	if n.Count == 1 {
		return fmt.Sprintf("%q matched line %d", n.Pattern, n.Line)
	}
	return fmt.Sprintf("%q: %d matches found from line %d", n.Pattern, n.Count, n.Line)
}

// Watches is the set of notify watches shared by the session and the
// watcher goroutine
type Watches struct {
	mu    sync.Mutex
	list  []*Watch
	newID func() string
	now   func() time.Time
}

// NewWatches creates an empty set
func NewWatches() *Watches {
	return &Watches{
		newID: uuid.NewString,
		now:   time.Now,
	}
}

// Add registers a watch that examines lines after from
func (w *Watches) Add(pattern string, isRegex bool, from int) (Watch, error) {
	m, err := query.NewMatcher(pattern, isRegex)
	if err != nil {
		return Watch{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	watch := &Watch{
		ID:              w.newID(),
		Pattern:         pattern,
		IsRegex:         isRegex,
		LastCheckedLine: from,
		matcher:         m,
	}
	w.list = append(w.list, watch)
	return *watch, nil
}

// Remove deletes the watch with the given ID or pattern
func (w *Watches) Remove(idOrPattern string) (Watch, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, watch := range w.list {
		if watch.ID == idOrPattern || watch.Pattern == idOrPattern {
			w.list = append(w.list[:i], w.list[i+1:]...)
			return *watch, nil
		}
	}
	return Watch{}, fmt.Errorf("no watch %q: %w", idOrPattern, errs.ErrOutOfRange)
}

// List returns the watches in the order they were added
func (w *Watches) List() []Watch {
	w.mu.Lock()
	defer w.mu.Unlock()
	list := make([]Watch, len(w.list))
	for i, watch := range w.list {
		list[i] = *watch
	}
	return list
}

// Len returns the number of watches
func (w *Watches) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.list)
}

// Check tests lines after each watch's LastCheckedLine up to upTo, and
// advances LastCheckedLine to upTo. A watch fires at most once per call.
func (w *Watches) Check(lines query.Lines, upTo int) ([]Notification, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var fired []Notification
	for _, watch := range w.list {
		var (
			first int
			text  string
			count int
		)
		for n := watch.LastCheckedLine + 1; n <= upTo; n++ {
			line, err := lines.Line(n)
			if err != nil {
				return fired, err
			}
			if !watch.matcher.Match(line) {
				continue
			}
			if count == 0 {
				first, text = n, string(line)
			}
			count++
		}
		if upTo > watch.LastCheckedLine {
			watch.LastCheckedLine = upTo
		}
		if count > 0 {
			fired = append(fired, Notification{
				ID:      w.newID(),
				WatchID: watch.ID,
				Pattern: watch.Pattern,
				Line:    first,
				Text:    text,
				Count:   count,
				At:      w.now(),
			})
		}
	}
	return fired, nil
}

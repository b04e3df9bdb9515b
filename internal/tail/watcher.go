// Package tail follows a growing source in the background. It extends the
// line index in bounded slices, fires notify watches on new lines and
// reports what happened as events on a channel.
package tail

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/TimelordUK/loghew/internal/errs"
	"github.com/TimelordUK/loghew/internal/logging"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is used when Options.PollInterval is zero
const DefaultPollInterval = 250 * time.Millisecond

// DefaultSliceBytes bounds how much input one extension step scans
const DefaultSliceBytes int64 = 4 * 1024 * 1024

// EventKind identifies what an event reports
type EventKind int

const (
	// EventGrowth reports lines FromLine..ToLine were indexed
	EventGrowth EventKind = iota
	// EventNotify carries a fired watch
	EventNotify
	// EventSourceLost reports the file went away; polling has stopped
	EventSourceLost
	// EventSourceClosed reports the stream ended; polling has stopped
	EventSourceClosed
)

// String returns the event kind name
func (k EventKind) String() string {
	switch k {
	case EventGrowth:
		return "growth"
	case EventNotify:
		return "notify"
	case EventSourceLost:
		return "source-lost"
	case EventSourceClosed:
		return "source-closed"
	default:
		return "unknown"
	}
}

// Event is one discrete result of background work
type Event struct {
	Kind         EventKind
	FromLine     int
	ToLine       int
	Notification *Notification
	Err          error
}

// Source is the growth side of a file source
type Source interface {
	DetectGrowth() (bool, error)
	Complete() bool
	Path() string
}

// Index is the extension side of the line index
type Index interface {
	Count() int
	Line(n int) ([]byte, error)
	ExtendBounded(maxBytes int64) (added int, more bool, err error)
}

// Options configures a Watcher
type Options struct {
	PollInterval time.Duration
	SliceBytes   int64
	// Buffer is the event channel capacity
	Buffer int
	Logger *slog.Logger
	// DisableNotify skips the fsnotify wakeup and relies on polling alone
	DisableNotify bool
}

// Watcher polls a source and extends its index
type Watcher struct {
	src     Source
	index   Index
	watches *Watches
	opts    Options
	log     *slog.Logger

	events chan Event
	wake   chan struct{}

	mu      sync.Mutex // serializes polls
	stopped bool
}

// New creates a watcher. Nothing runs until Run or Tick is called.
func New(src Source, index Index, watches *Watches, opts Options) *Watcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.SliceBytes <= 0 {
		opts.SliceBytes = DefaultSliceBytes
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 64
	}
	if watches == nil {
		watches = NewWatches()
	}

	return &Watcher{
		src:     src,
		index:   index,
		watches: watches,
		opts:    opts,
		log:     logging.NewComponentLogger(opts.Logger, "tail"),
		events:  make(chan Event, opts.Buffer),
		wake:    make(chan struct{}, 1),
	}
}

// Events returns the channel Run delivers events on
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Watches returns the notify watches checked on growth
func (w *Watcher) Watches() *Watches {
	return w.watches
}

// Stopped reports whether the source was lost or closed
func (w *Watcher) Stopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

// Run polls until ctx is cancelled or the source is lost or closed. When
// the source has a path, filesystem notifications wake the loop early.
func (w *Watcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return w.loop(gctx)
	})
	if path := w.src.Path(); path != "" && !w.opts.DisableNotify {
		g.Go(func() error {
			w.forwardNotify(gctx, path)
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Watcher) loop(ctx context.Context) error {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	send := func(ev Event) bool {
		select {
		case w.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// catch up with whatever exists before the first tick
	if !w.poll(ctx, send) {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
		if !w.poll(ctx, send) {
			return nil
		}
	}
}

// forwardNotify turns writes to path into wakeups. If the watch cannot be
// set up the loop keeps polling on its own.
func (w *Watcher) forwardNotify(ctx context.Context, path string) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn("fsnotify unavailable, polling only", "error", err)
		return
	}
	defer fw.Close()

	// watching the directory also sees rotation and removal
	if err := fw.Add(filepath.Dir(path)); err != nil {
		w.log.Warn("cannot watch directory, polling only", "path", path, "error", err)
		return
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			select {
			case w.wake <- struct{}{}:
			default:
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Debug("fsnotify error", "error", err)
		}
	}
}

// Tick runs one poll synchronously and returns the events it produced
func (w *Watcher) Tick(ctx context.Context) []Event {
	var out []Event
	w.poll(ctx, func(ev Event) bool {
		out = append(out, ev)
		return true
	})
	return out
}

// poll detects growth, extends the index slice by slice and checks the
// watches on each slice. It reports whether polling should continue.
func (w *Watcher) poll(ctx context.Context, emit func(Event) bool) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return false
	}

	_, growthErr := w.src.DetectGrowth()
	lost := errors.Is(growthErr, errs.ErrSourceLost)
	if growthErr != nil && !lost {
		w.log.Warn("growth check failed", "error", growthErr)
	}
	// read before extending so the final slices flush a pending tail
	complete := w.src.Complete()

	for {
		if ctx.Err() != nil {
			return false
		}

		from := w.index.Count()
		added, more, err := w.index.ExtendBounded(w.opts.SliceBytes)
		if err != nil {
			w.log.Error("extend index", "error", err)
			break
		}
		if added > 0 {
			to := from + added
			if !emit(Event{Kind: EventGrowth, FromLine: from + 1, ToLine: to}) {
				return false
			}
			if !w.notify(to, emit) {
				return false
			}
		}
		if !more {
			break
		}
	}

	switch {
	case lost:
		w.stopped = true
		w.log.Info("source lost", "error", growthErr)
		emit(Event{Kind: EventSourceLost, ToLine: w.index.Count(), Err: growthErr})
		return false
	case complete:
		w.stopped = true
		w.log.Info("source closed", "lines", w.index.Count())
		emit(Event{Kind: EventSourceClosed, ToLine: w.index.Count()})
		return false
	}
	return true
}

func (w *Watcher) notify(upTo int, emit func(Event) bool) bool {
	fired, err := w.watches.Check(w.index, upTo)
	if err != nil {
		w.log.Error("check watches", "error", err)
	}
	for i := range fired {
		n := fired[i]
		w.log.Debug("watch fired", "pattern", n.Pattern, "line", n.Line, "count", n.Count)
		if !emit(Event{Kind: EventNotify, FromLine: n.Line, ToLine: upTo, Notification: &n}) {
			return false
		}
	}
	return true
}

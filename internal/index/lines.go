package index

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/TimelordUK/loghew/internal/errs"
	"github.com/TimelordUK/loghew/internal/source"
)

// chunkSize bounds each read from the source while scanning
const chunkSize = 64 * 1024

// LogLine is one indexed line: 1-based number, byte offset of its first
// byte and its length excluding the terminator.
type LogLine struct {
	Number int
	Offset int64
	Length int64
}

// End returns the offset just past the line content
func (l LogLine) End() int64 {
	return l.Offset + l.Length
}

// LineIndex is a lazy, append-only table of line boundaries over a source.
//
// Nothing is scanned at construction. BuildTo and Extend advance the
// frontier on demand, and only one of them runs at a time. Lines below the
// published count can be read at any time without locking.
type LineIndex struct {
	src   source.ByteSource
	lines *arena

	mu       sync.Mutex // held by BuildTo and Extend
	frontier atomic.Int64
	// scanned is how far past the frontier has been searched for a
	// terminator, so a long pending line is not rescanned on every call.
	scanned int64
}

// New creates an empty index over src
func New(src source.ByteSource) *LineIndex {
	return &LineIndex{
		src:   src,
		lines: newArena(),
	}
}

// Count returns the number of indexed lines
func (idx *LineIndex) Count() int {
	return idx.lines.len()
}

// Frontier returns the byte offset up to which the index has been built
func (idx *LineIndex) Frontier() int64 {
	return idx.frontier.Load()
}

// Caught reports whether every observable byte is indexed or pending
func (idx *LineIndex) Caught() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.scanned >= idx.src.Size() && !idx.flushable()
}

// BuildTo scans forward until at least target lines are indexed or the
// source is exhausted. Calling it with a target already reached does
// nothing. It returns the line count.
func (idx *LineIndex) BuildTo(target int) (int, error) {
	if target <= idx.Count() {
		return idx.Count(), nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for idx.lines.pending < target {
		progressed, err := idx.scanChunk(idx.src.Size(), target)
		if err != nil {
			return idx.Count(), err
		}
		if !progressed {
			break
		}
	}
	return idx.Count(), nil
}

// Extend indexes every line completed between the frontier and the end of
// the source as observed on entry. It returns the number of lines added.
func (idx *LineIndex) Extend() (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	before := idx.lines.pending
	err := idx.scanTo(idx.src.Size())
	return idx.lines.pending - before, err
}

// ExtendBounded is one slice of Extend that scans at most maxBytes
// (unbounded when maxBytes <= 0). It reports whether unscanned input
// remains.
func (idx *LineIndex) ExtendBounded(maxBytes int64) (added int, more bool, err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	before := idx.lines.pending
	end := idx.src.Size()
	if maxBytes > 0 && idx.scanned+maxBytes < end {
		end = idx.scanned + maxBytes
	}

	if err := idx.scanTo(end); err != nil {
		return idx.lines.pending - before, false, err
	}

	more = idx.scanned < idx.src.Size() || idx.flushable()
	return idx.lines.pending - before, more, nil
}

func (idx *LineIndex) scanTo(end int64) error {
	for {
		progressed, err := idx.scanChunk(end, 0)
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
}

// scanChunk reads one chunk below limit and appends every line it
// completes. With stopAt > 0 it stops once that many lines exist. It
// reports whether anything was scanned or flushed.
func (idx *LineIndex) scanChunk(limit int64, stopAt int) (bool, error) {
	if idx.scanned >= limit {
		if idx.flushable() {
			idx.flushPending()
			return true, nil
		}
		return false, nil
	}

	start := idx.scanned
	end := start + chunkSize
	if end > limit {
		end = limit
	}

	chunk, err := idx.src.ReadRange(start, end)
	if err != nil {
		return false, fmt.Errorf("scan at %d: %w", start, err)
	}
	if len(chunk) == 0 {
		return false, nil
	}

	lineStart := idx.frontier.Load()
	pos := 0
	for {
		i := bytes.IndexByte(chunk[pos:], '\n')
		if i < 0 {
			break
		}
		term := start + int64(pos+i)
		idx.lines.push(LogLine{
			Number: idx.lines.pending + 1,
			Offset: lineStart,
			Length: term - lineStart,
		})
		lineStart = term + 1
		pos += i + 1
		if stopAt > 0 && idx.lines.pending >= stopAt {
			break
		}
	}

	if stopAt > 0 && idx.lines.pending >= stopAt {
		idx.scanned = lineStart
	} else {
		idx.scanned = start + int64(len(chunk))
	}
	idx.frontier.Store(lineStart)
	idx.lines.publish()
	return true, nil
}

// flushable reports whether a pending unterminated tail can be indexed
// because the source will never extend it.
func (idx *LineIndex) flushable() bool {
	// Complete is read before Size so the size seen is final
	if !idx.src.Complete() {
		return false
	}
	size := idx.src.Size()
	return idx.scanned >= size && idx.frontier.Load() < size
}

func (idx *LineIndex) flushPending() {
	lineStart := idx.frontier.Load()
	size := idx.src.Size()
	idx.lines.push(LogLine{
		Number: idx.lines.pending + 1,
		Offset: lineStart,
		Length: size - lineStart,
	})
	idx.frontier.Store(size)
	idx.scanned = size
	idx.lines.publish()
}

// Entry returns the record for 1-based line n
func (idx *LineIndex) Entry(n int) (LogLine, error) {
	count := idx.Count()
	if n < 1 || n > count {
		return LogLine{}, fmt.Errorf("line %d of %d: %w", n, count, errs.ErrOutOfRange)
	}
	return idx.lines.at(n - 1), nil
}

// Line returns the content of 1-based line n without its terminator
func (idx *LineIndex) Line(n int) ([]byte, error) {
	entry, err := idx.Entry(n)
	if err != nil {
		return nil, err
	}

	content, err := idx.src.ReadRange(entry.Offset, entry.End())
	if err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(content, []byte{'\r'}), nil
}

// Lines returns up to count lines starting at 1-based line start
func (idx *LineIndex) Lines(start, count int) ([][]byte, error) {
	if start < 1 {
		start = 1
	}
	total := idx.Count()
	if start > total {
		return nil, nil
	}
	if start+count-1 > total {
		count = total - start + 1
	}

	lines := make([][]byte, count)
	for i := 0; i < count; i++ {
		line, err := idx.Line(start + i)
		if err != nil {
			return nil, err
		}
		lines[i] = line
	}
	return lines, nil
}

// Pending returns the unterminated tail that is withheld from the index.
// It is nil until the tail has been scanned.
func (idx *LineIndex) Pending() []byte {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	frontier := idx.frontier.Load()
	size := idx.src.Size()
	if frontier >= size || idx.scanned < size {
		return nil
	}
	content, err := idx.src.ReadRange(frontier, size)
	if err != nil {
		return nil
	}
	return content
}

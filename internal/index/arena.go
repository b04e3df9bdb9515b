package index

import "sync/atomic"

const (
	segmentBits = 12
	segmentSize = 1 << segmentBits
	segmentMask = segmentSize - 1
)

type segment [segmentSize]LogLine

// arena is an append-only table of LogLine records addressed by position.
// One writer appends; any number of readers may call at concurrently.
// A record is written before the count that covers it is published, and the
// segment directory is replaced, never mutated, so a reader that loads the
// count first only ever sees fully written records.
type arena struct {
	dir   atomic.Pointer[[]*segment]
	count atomic.Int64
	// pending is the writer's unpublished length
	pending int
}

func newArena() *arena {
	a := &arena{}
	dir := make([]*segment, 0, 16)
	a.dir.Store(&dir)
	return a
}

func (a *arena) len() int {
	return int(a.count.Load())
}

func (a *arena) at(i int) LogLine {
	dir := *a.dir.Load()
	return dir[i>>segmentBits][i&segmentMask]
}

// push stages a record. It becomes visible to readers on publish.
func (a *arena) push(line LogLine) {
	i := a.pending
	dir := *a.dir.Load()
	seg := i >> segmentBits
	if seg == len(dir) {
		grown := make([]*segment, len(dir), max(2*len(dir), 16))
		copy(grown, dir)
		grown = append(grown, new(segment))
		a.dir.Store(&grown)
		dir = grown
	}
	dir[seg][i&segmentMask] = line
	a.pending++
}

func (a *arena) publish() {
	a.count.Store(int64(a.pending))
}

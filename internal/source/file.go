package source

import (
	"errors"
	"fmt"
	stdio "io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/TimelordUK/loghew/internal/errs"
	loghewio "github.com/TimelordUK/loghew/internal/io"
)

type backing interface {
	ReadRange(start, end int64) ([]byte, error)
	Size() int64
	Close() error
}

// FileSource provides byte-range access to a log file or to standard input
type FileSource struct {
	path string
	name string
	kind Kind
	info os.FileInfo

	backing  backing
	mapped   *loghewio.MappedFile
	buffered *loghewio.BufferedFile
	stream   *loghewio.StreamBuffer

	mu       sync.Mutex // serializes DetectGrowth
	observed atomic.Int64
	lost     atomic.Bool
}

// Open opens a regular file. Files at or above the mmap threshold are
// memory-mapped, smaller ones are buffered.
func Open(path string, opts Options) (*FileSource, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, classify(path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("open %s: %w", path, errs.ErrNotRegularFile)
	}

	threshold := opts.MmapThreshold
	if threshold <= 0 {
		threshold = DefaultMmapThreshold
	}

	src := &FileSource{
		path: path,
		name: filepath.Base(path),
		info: info,
	}

	if info.Size() >= threshold {
		mapped, err := loghewio.OpenMapped(path)
		if err != nil {
			return nil, classify(path, err)
		}
		src.kind = KindMapped
		src.mapped = mapped
		src.backing = mapped
	} else {
		buffered, err := loghewio.OpenBuffered(path)
		if err != nil {
			return nil, classify(path, err)
		}
		src.kind = KindBuffered
		src.buffered = buffered
		src.backing = buffered
	}

	src.observed.Store(src.backing.Size())
	return src, nil
}

// OpenStream exposes a reader, typically standard input, through the same
// interface as a file. Bytes are accumulated in the background.
func OpenStream(r stdio.Reader, name string) *FileSource {
	stream := loghewio.NewStreamBuffer(r)
	return &FileSource{
		name:    name,
		kind:    KindStream,
		backing: stream,
		stream:  stream,
	}
}

func classify(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("open %s: %w", path, errs.ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("open %s: %w", path, errs.ErrPermissionDenied)
	default:
		return fmt.Errorf("open %s: %w", path, err)
	}
}

// ReadRange returns bytes in [start, end)
func (s *FileSource) ReadRange(start, end int64) ([]byte, error) {
	return s.backing.ReadRange(start, end)
}

// Size returns the number of bytes currently observable
func (s *FileSource) Size() int64 {
	return s.backing.Size()
}

// Complete reports that no more bytes can arrive: the stream reached EOF
// or the file was lost.
func (s *FileSource) Complete() bool {
	if s.lost.Load() {
		return true
	}
	if s.stream != nil {
		return s.stream.Done()
	}
	return false
}

// Lost reports whether the underlying file went away
func (s *FileSource) Lost() bool {
	return s.lost.Load()
}

// Path returns the file path, empty for streams
func (s *FileSource) Path() string {
	return s.path
}

// Name returns a display name
func (s *FileSource) Name() string {
	return s.name
}

// Kind returns the backing kind
func (s *FileSource) Kind() Kind {
	return s.kind
}

// DetectGrowth compares the current size with the last observed size and
// pulls new bytes into the backing. It returns errs.ErrSourceLost once the
// file has been deleted, replaced or truncated.
func (s *FileSource) DetectGrowth() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lost.Load() {
		return false, errs.ErrSourceLost
	}

	if s.stream != nil {
		size := s.stream.Size()
		if size > s.observed.Load() {
			s.observed.Store(size)
			return true, nil
		}
		if err := s.stream.Err(); err != nil {
			return false, fmt.Errorf("read %s: %w", s.name, err)
		}
		return false, nil
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, s.markLost("deleted")
		}
		return false, fmt.Errorf("stat %s: %w", s.path, err)
	}
	if !os.SameFile(info, s.info) {
		return false, s.markLost("replaced")
	}

	size := info.Size()
	observed := s.observed.Load()
	switch {
	case size < observed:
		if s.mapped != nil {
			// pages past the new end fault on access
			s.mapped.Shrink(size)
		}
		return false, s.markLost("truncated")
	case size == observed:
		return false, nil
	}

	var grew bool
	if s.mapped != nil {
		grew, err = s.mapped.Remap(size)
	} else {
		grew, err = s.buffered.Grow(size)
	}
	if err != nil {
		return false, fmt.Errorf("refresh %s: %w", s.path, err)
	}
	s.observed.Store(s.backing.Size())
	return grew, nil
}

func (s *FileSource) markLost(reason string) error {
	s.lost.Store(true)
	return fmt.Errorf("%s %s: %w", s.path, reason, errs.ErrSourceLost)
}

// Close closes the source
func (s *FileSource) Close() error {
	return s.backing.Close()
}

// Package slice writes a range of visible lines out to a file.
package slice

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// Lines reads indexed line content
type Lines interface {
	Line(n int) ([]byte, error)
}

// View maps positions to line numbers
type View interface {
	Len() int
	LineAt(pos int) int
}

// Info contains metadata about a written slice
type Info struct {
	SourceName string
	Path       string
	FirstLine  int // first source line written
	LastLine   int // last source line written
	Lines      int
	Filtered   bool
}

// Slicer handles extracting portions of a view to files
type Slicer struct {
	cacheDir string
}

// NewSlicer creates a slicer that writes unnamed slices to dir, the
// system temp dir when empty
func NewSlicer(dir string) *Slicer {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Slicer{cacheDir: dir}
}

// SliceRange writes the lines at view positions [start, end) to path. An
// empty path picks a name in the slicer's directory.
func (s *Slicer) SliceRange(name string, lines Lines, view View, start, end int, path string) (*Info, error) {
	start = max(start, 0)
	end = min(end, view.Len())
	if start >= end {
		return nil, fmt.Errorf("invalid range: %d-%d of %d", start, end, view.Len())
	}

	first, last := view.LineAt(start), view.LineAt(end-1)
	if path == "" {
		path = filepath.Join(s.cacheDir, fmt.Sprintf("loghew-slice-%d-%d-%s", first, last, filepath.Base(name)))
	}

	outFile, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create slice file: %w", err)
	}

	w := bufio.NewWriter(outFile)
	for pos := start; pos < end; pos++ {
		n := view.LineAt(pos)
		line, err := lines.Line(n)
		if err == nil {
			_, err = w.Write(line)
		}
		if err == nil {
			err = w.WriteByte('\n')
		}
		if err != nil {
			outFile.Close()
			os.Remove(path)
			return nil, fmt.Errorf("failed to write line %d: %w", n, err)
		}
	}
	if err := w.Flush(); err != nil {
		outFile.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write slice: %w", err)
	}
	if err := outFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to close slice file: %w", err)
	}

	return &Info{
		SourceName: name,
		Path:       path,
		FirstLine:  first,
		LastLine:   last,
		Lines:      end - start,
		Filtered:   last-first+1 != end-start,
	}, nil
}

// Cleanup removes a slice's file
func (s *Slicer) Cleanup(info *Info) error {
	if info == nil || info.Path == "" {
		return nil
	}
	return os.Remove(info.Path)
}

package io

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/TimelordUK/loghew/internal/errs"
	"golang.org/x/exp/mmap"
)

// MappedFile provides memory-mapped read access to a file that may grow.
//
// The mapping is replaced on growth. Readers hold the read lock only while
// copying out of the mapping, so a remap never unmaps memory under a reader.
// Pages of a truncated file fault on access; such reads fail with
// errs.ErrSourceLost instead of crashing.
type MappedFile struct {
	mu     sync.RWMutex
	reader *mmap.ReaderAt
	size   atomic.Int64
	shrunk atomic.Bool
	path   string
}

// OpenMapped opens a file with memory mapping
func OpenMapped(path string) (*MappedFile, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}

	m := &MappedFile{reader: reader, path: path}
	m.size.Store(int64(reader.Len()))
	return m, nil
}

// ReadAt reads len(p) bytes at offset
func (m *MappedFile) ReadAt(p []byte, off int64) (n int, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.reader == nil {
		return 0, fmt.Errorf("read %s: mapping closed", m.path)
	}

	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	defer func() {
		if r := recover(); r != nil {
			if _, fault := r.(interface{ Addr() uintptr }); !fault {
				panic(r)
			}
			n, err = 0, fmt.Errorf("read %s at %d: %w", m.path, off, errs.ErrSourceLost)
		}
	}()
	return m.reader.ReadAt(p, off)
}

// Shrink caps the readable length at newSize after the file was
// truncated. Later reads reaching past the cap fail with errs.ErrSourceLost.
func (m *MappedFile) Shrink(newSize int64) {
	if newSize < 0 {
		newSize = 0
	}
	if newSize < m.size.Load() {
		m.size.Store(newSize)
		m.shrunk.Store(true)
	}
}

// Size returns the mapped length
func (m *MappedFile) Size() int64 {
	return m.size.Load()
}

// Path returns the file path
func (m *MappedFile) Path() string {
	return m.path
}

// Close closes the memory mapping
func (m *MappedFile) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reader == nil {
		return nil
	}
	err := m.reader.Close()
	m.reader = nil
	return err
}

// Remap re-opens the mapping when the file is larger than the current
// mapping. It reports whether the mapped size changed.
func (m *MappedFile) Remap(newSize int64) (bool, error) {
	if m.shrunk.Load() || newSize <= m.size.Load() {
		return false, nil
	}

	reader, err := mmap.Open(m.path)
	if err != nil {
		return false, err
	}
	if int64(reader.Len()) <= m.size.Load() {
		reader.Close()
		return false, nil
	}

	m.mu.Lock()
	old := m.reader
	m.reader = reader
	m.size.Store(int64(reader.Len()))
	m.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return true, nil
}

// ReadRange reads bytes from start to end. The returned slice is a copy.
func (m *MappedFile) ReadRange(start, end int64) ([]byte, error) {
	if size := m.size.Load(); end > size {
		if m.shrunk.Load() {
			return nil, fmt.Errorf("read %s: %d bytes past truncation at %d: %w", m.path, end-size, size, errs.ErrSourceLost)
		}
		end = size
	}
	if start >= end {
		return nil, nil
	}

	buf := make([]byte, end-start)
	_, err := m.ReadAt(buf, start)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

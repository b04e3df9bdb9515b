package io

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// growBuffer is an append-only byte store. Bytes below the current length
// are never rewritten, so slices handed out by view stay valid after later
// appends reallocate the backing array.
type growBuffer struct {
	mu   sync.RWMutex
	data []byte
}

func (b *growBuffer) append(p []byte) {
	b.mu.Lock()
	b.data = append(b.data, p...)
	b.mu.Unlock()
}

func (b *growBuffer) view() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data
}

func (b *growBuffer) size() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return int64(len(b.data))
}

// readRange returns a read-only view of data[start:end], clamped to the
// current length.
func (b *growBuffer) readRange(start, end int64) []byte {
	data := b.view()
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	if start < 0 {
		start = 0
	}
	if start >= end {
		return nil
	}
	return data[start:end:end]
}

// BufferedFile holds a small regular file fully in memory and appends the
// delta when the file grows.
type BufferedFile struct {
	file *os.File
	path string
	buf  growBuffer
}

// OpenBuffered reads the file at path into memory.
func OpenBuffered(path string) (*BufferedFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	b := &BufferedFile{file: file, path: path}
	b.buf.data = data
	return b, nil
}

// Size returns the number of bytes held.
func (b *BufferedFile) Size() int64 {
	return b.buf.size()
}

// Path returns the file path
func (b *BufferedFile) Path() string {
	return b.path
}

// ReadRange returns a read-only view of bytes from start to end.
func (b *BufferedFile) ReadRange(start, end int64) ([]byte, error) {
	return b.buf.readRange(start, end), nil
}

// Grow reads bytes appended to the file up to newSize. It reports whether
// any bytes were added.
func (b *BufferedFile) Grow(newSize int64) (bool, error) {
	oldSize := b.buf.size()
	if newSize <= oldSize {
		return false, nil
	}

	delta := make([]byte, newSize-oldSize)
	n, err := b.file.ReadAt(delta, oldSize)
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read %s: %w", b.path, err)
	}
	if n == 0 {
		return false, nil
	}
	b.buf.append(delta[:n])
	return true, nil
}

// Close releases the file handle. Buffered bytes stay readable.
func (b *BufferedFile) Close() error {
	return b.file.Close()
}

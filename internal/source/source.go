package source

// Kind identifies the storage backing a source
type Kind int

const (
	KindMapped Kind = iota
	KindBuffered
	KindStream
)

// String returns a short name for the backing kind
func (k Kind) String() string {
	switch k {
	case KindMapped:
		return "mmap"
	case KindBuffered:
		return "buffered"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// ByteSource is the uniform byte-range interface the index reads through.
// Callers are agnostic to whether bytes come from a mapping or a buffer.
type ByteSource interface {
	// ReadRange returns bytes in [start, end), clamped to Size. The slice
	// must be treated as read-only.
	ReadRange(start, end int64) ([]byte, error)

	// Size returns the number of bytes currently observable.
	Size() int64

	// Complete reports that no more bytes will arrive.
	Complete() bool
}

// DefaultMmapThreshold is the size at or above which regular files are
// memory-mapped rather than buffered.
const DefaultMmapThreshold int64 = 10 * 1024 * 1024

// Options controls how a path is opened
type Options struct {
	MmapThreshold int64
}

package source

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/TimelordUK/loghew/internal/errs"
)

func writeLog(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "app.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func appendLog(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("WriteString() error = %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Open(filepath.Join(dir, "missing.log"), Options{}); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Open(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := Open(dir, Options{}); !errors.Is(err, errs.ErrNotRegularFile) {
		t.Errorf("Open(dir) error = %v, want ErrNotRegularFile", err)
	}

	if runtime.GOOS != "windows" && os.Geteuid() != 0 {
		path := writeLog(t, dir, "secret\n")
		os.Chmod(path, 0o000)
		if _, err := Open(path, Options{}); !errors.Is(err, errs.ErrPermissionDenied) {
			t.Errorf("Open(unreadable) error = %v, want ErrPermissionDenied", err)
		}
	}
}

func TestOpenSelectsBacking(t *testing.T) {
	tests := []struct {
		name      string
		threshold int64
		want      Kind
	}{
		{name: "below threshold", threshold: 1024, want: KindBuffered},
		{name: "at threshold", threshold: 12, want: KindMapped},
		{name: "default threshold", threshold: 0, want: KindBuffered},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeLog(t, t.TempDir(), "hello\nworld\n")
			src, err := Open(path, Options{MmapThreshold: tt.threshold})
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer src.Close()

			if src.Kind() != tt.want {
				t.Errorf("Kind() = %v, want %v", src.Kind(), tt.want)
			}
			got, _ := src.ReadRange(6, 11)
			if string(got) != "world" {
				t.Errorf("ReadRange() = %q", got)
			}
			if src.Name() != "app.log" {
				t.Errorf("Name() = %q", src.Name())
			}
		})
	}
}

func TestDetectGrowthBothBackings(t *testing.T) {
	for _, threshold := range []int64{1, DefaultMmapThreshold} {
		path := writeLog(t, t.TempDir(), "line one\n")
		src, err := Open(path, Options{MmapThreshold: threshold})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}

		if grew, err := src.DetectGrowth(); grew || err != nil {
			t.Fatalf("%v: DetectGrowth() on unchanged file = %v, %v", src.Kind(), grew, err)
		}

		appendLog(t, path, "line two\n")
		grew, err := src.DetectGrowth()
		if err != nil {
			t.Fatalf("%v: DetectGrowth() error = %v", src.Kind(), err)
		}
		if !grew || src.Size() != 18 {
			t.Fatalf("%v: DetectGrowth() grew=%v size=%d", src.Kind(), grew, src.Size())
		}
		got, _ := src.ReadRange(9, 17)
		if string(got) != "line two" {
			t.Errorf("%v: ReadRange() = %q", src.Kind(), got)
		}
		src.Close()
	}
}

func TestDetectGrowthSourceLost(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, path string)
	}{
		{
			name:   "deleted",
			mutate: func(t *testing.T, path string) { os.Remove(path) },
		},
		{
			name: "truncated",
			mutate: func(t *testing.T, path string) {
				if err := os.Truncate(path, 3); err != nil {
					t.Fatalf("Truncate() error = %v", err)
				}
			},
		},
		{
			name: "replaced",
			mutate: func(t *testing.T, path string) {
				tmp := path + ".new"
				if err := os.WriteFile(tmp, []byte("a whole new file\n"), 0o644); err != nil {
					t.Fatalf("WriteFile() error = %v", err)
				}
				if err := os.Rename(tmp, path); err != nil {
					t.Fatalf("Rename() error = %v", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeLog(t, t.TempDir(), "some content\n")
			src, err := Open(path, Options{})
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			defer src.Close()

			tt.mutate(t, path)
			if _, err := src.DetectGrowth(); !errors.Is(err, errs.ErrSourceLost) {
				t.Fatalf("DetectGrowth() error = %v, want ErrSourceLost", err)
			}
			if !src.Lost() || !src.Complete() {
				t.Error("source should be lost and complete")
			}
			got, _ := src.ReadRange(0, 4)
			if string(got) != "some" {
				t.Errorf("ReadRange() after loss = %q, want retained bytes", got)
			}
		})
	}
}

func TestOpenStream(t *testing.T) {
	pr, pw := io.Pipe()
	src := OpenStream(pr, "stdin")
	defer src.Close()

	if src.Kind() != KindStream || src.Path() != "" {
		t.Fatalf("Kind() = %v, Path() = %q", src.Kind(), src.Path())
	}

	pw.Write([]byte("a\nb\n"))
	deadline := time.Now().Add(2 * time.Second)
	for {
		grew, err := src.DetectGrowth()
		if err != nil {
			t.Fatalf("DetectGrowth() error = %v", err)
		}
		if grew {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("stream never grew")
		}
		time.Sleep(5 * time.Millisecond)
	}

	pw.Close()
	deadline = time.Now().Add(2 * time.Second)
	for !src.Complete() {
		if time.Now().After(deadline) {
			t.Fatal("stream never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

package timestamp

import (
	"fmt"
	"testing"
	"time"
)

type sliceLines []string

func (s sliceLines) Count() int { return len(s) }

func (s sliceLines) Line(n int) ([]byte, error) {
	if n < 1 || n > len(s) {
		return nil, fmt.Errorf("line %d out of range", n)
	}
	return []byte(s[n-1]), nil
}

func clock(h, m, s int) time.Time {
	return time.Date(0, 1, 1, h, m, s, 0, time.UTC)
}

func TestAtCachesAndSkipsUnstamped(t *testing.T) {
	e := New(sliceLines{
		"10:00:00 INFO start",
		"    continuation",
		"10:05:00 INFO next",
	}, nil)

	if _, ok := e.At(2); ok {
		t.Error("At(2) found a timestamp on a continuation line")
	}
	got, ok := e.At(3)
	if !ok || !got.Equal(clock(10, 5, 0)) {
		t.Fatalf("At(3) = %v, %v", got, ok)
	}
	if _, ok := e.At(4); ok {
		t.Error("At(4) beyond the index should report nothing")
	}

	e.Sync()
	if e.Stamped() != 2 || e.Scanned() != 3 {
		t.Errorf("Stamped() = %d, Scanned() = %d", e.Stamped(), e.Scanned())
	}
	got, ok = e.At(3)
	if !ok || !got.Equal(clock(10, 5, 0)) {
		t.Errorf("At(3) after Sync = %v, %v", got, ok)
	}
}

func TestNearest(t *testing.T) {
	monotonic := sliceLines{
		"10:00:00 a",
		"10:05:00 b",
		"no stamp",
		"10:10:00 c",
		"10:10:00 d",
	}
	shuffled := sliceLines{
		"10:10:00 c",
		"10:00:00 a",
		"no stamp",
		"10:05:00 b",
		"10:10:00 d",
	}

	tests := []struct {
		name   string
		lines  sliceLines
		target time.Time
		policy Policy
		want   int
	}{
		{"preceding exact", monotonic, clock(10, 5, 0), PreferPreceding, 2},
		{"preceding between", monotonic, clock(10, 8, 0), PreferPreceding, 2},
		{"preceding before all falls forward", monotonic, clock(9, 0, 0), PreferPreceding, 1},
		{"preceding after all", monotonic, clock(11, 0, 0), PreferPreceding, 4},
		{"preceding tie lowest line", monotonic, clock(10, 10, 0), PreferPreceding, 4},
		{"closest picks following", monotonic, clock(10, 8, 0), PreferClosest, 4},
		{"closest equidistant picks lower", monotonic, clock(10, 2, 30), PreferClosest, 1},
		{"closest before all", monotonic, clock(9, 0, 0), PreferClosest, 1},
		{"linear preceding", shuffled, clock(10, 8, 0), PreferPreceding, 4},
		{"linear preceding tie lowest line", shuffled, clock(10, 30, 0), PreferPreceding, 1},
		{"linear before all", shuffled, clock(9, 0, 0), PreferPreceding, 2},
		{"linear closest", shuffled, clock(10, 4, 0), PreferClosest, 4},
		{"linear closest tie lowest line", shuffled, clock(10, 9, 0), PreferClosest, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(tt.lines, nil)
			got, ok := e.Nearest(tt.target, tt.policy)
			if !ok {
				t.Fatal("Nearest() found nothing")
			}
			if got.Line != tt.want {
				t.Errorf("Nearest() line = %d, want %d", got.Line, tt.want)
			}
		})
	}
}

func TestMonotonicFlag(t *testing.T) {
	e := New(sliceLines{"10:00:00 a", "10:00:00 b", "10:01:00 c"}, nil)
	e.Sync()
	if !e.Monotonic() {
		t.Error("equal and rising timestamps should be monotonic")
	}

	e = New(sliceLines{"10:01:00 a", "10:00:00 b"}, nil)
	e.Sync()
	if e.Monotonic() {
		t.Error("falling timestamps should not be monotonic")
	}
}

func TestNearestWithoutStamps(t *testing.T) {
	e := New(sliceLines{"plain", "text"}, nil)
	if _, ok := e.Nearest(clock(10, 0, 0), PreferPreceding); ok {
		t.Error("Nearest() on unstamped lines should find nothing")
	}
	if _, ok := e.Around(1); ok {
		t.Error("Around() on unstamped lines should find nothing")
	}
}

func TestAround(t *testing.T) {
	e := New(sliceLines{
		"header",
		"10:00:00 a",
		"trace",
		"10:05:00 b",
	}, nil)

	tests := []struct {
		line int
		want int
	}{
		{1, 2},
		{2, 2},
		{3, 2},
		{4, 4},
	}
	for _, tt := range tests {
		got, ok := e.Around(tt.line)
		if !ok || got.Line != tt.want {
			t.Errorf("Around(%d) = %d, %v, want %d", tt.line, got.Line, ok, tt.want)
		}
	}
}

func TestAdvanceGrowsWithSource(t *testing.T) {
	lines := sliceLines{"10:00:00 a"}
	e := New(lines, nil)
	e.Sync()

	grown := append(lines, "10:01:00 b", "10:02:00 c")
	e.lines = grown
	if n := e.Advance(1); n != 1 {
		t.Fatalf("Advance(1) = %d", n)
	}
	if e.Scanned() != 2 {
		t.Errorf("Scanned() = %d, want 2", e.Scanned())
	}
	e.Sync()
	if e.Stamped() != 3 {
		t.Errorf("Stamped() = %d, want 3", e.Stamped())
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": PreferPreceding, "preceding": PreferPreceding, "Closest": PreferClosest} {
		got, err := ParsePolicy(in)
		if err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("newest"); err == nil {
		t.Error("ParsePolicy(newest) should fail")
	}
}

package session

import (
	"github.com/TimelordUK/loghew/pkg/logformat"
)

// LevelCounts is the number of lines carrying each detected level
type LevelCounts map[logformat.Level]int

// levelTally counts levels over indexed lines in file order, a batch at a
// time, the same way the timestamp subsequence is built
type levelTally struct {
	detector *logformat.LevelDetector
	counts   LevelCounts
	scanned  int
}

type indexedLines interface {
	Count() int
	Line(n int) ([]byte, error)
}

func newLevelTally(detector *logformat.LevelDetector) *levelTally {
	return &levelTally{detector: detector, counts: make(LevelCounts)}
}

// advance examines up to budget further lines, all of them when
// budget <= 0
func (t *levelTally) advance(lines indexedLines, budget int) error {
	count := lines.Count()
	for examined := 0; t.scanned < count && (budget <= 0 || examined < budget); examined++ {
		line, err := lines.Line(t.scanned + 1)
		if err != nil {
			return err
		}
		if level := t.detector.Detect(line); level != logformat.LevelUnknown {
			t.counts[level]++
		}
		t.scanned++
	}
	return nil
}

func (t *levelTally) snapshot() LevelCounts {
	out := make(LevelCounts, len(t.counts))
	for level, n := range t.counts {
		out[level] = n
	}
	return out
}

package logformat

import (
	"regexp"
	"sort"
	"strings"
)

// Level is the severity detected on a log line
type Level int

const (
	LevelUnknown Level = iota
	LevelTrace
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the canonical upper-case level name
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return ""
	}
}

// levelScanLimit is how much of a line is searched for a level keyword
const levelScanLimit = 100

// DefaultLevelKeywords are the keywords recognised when no config is given
func DefaultLevelKeywords() map[Level][]string {
	return map[Level][]string{
		LevelTrace: {"TRACE", "TRC"},
		LevelDebug: {"DEBUG", "DBG"},
		LevelInfo:  {"INFO", "INF"},
		LevelWarn:  {"WARN", "WARNING", "WRN"},
		LevelError: {"ERROR", "ERR"},
		LevelFatal: {"FATAL", "FTL", "CRITICAL", "CRIT"},
	}
}

// LevelDetector finds the first whole-word level keyword near the start of
// a line, case-insensitively
type LevelDetector struct {
	regex  *regexp.Regexp
	levels map[string]Level
}

// NewLevelDetector builds a detector from keyword lists. Surrounding
// brackets on a keyword are ignored, so "[WARN]" and "WARN" are the same.
func NewLevelDetector(keywords map[Level][]string) *LevelDetector {
	d := &LevelDetector{levels: make(map[string]Level)}

	var words []string
	for level, list := range keywords {
		for _, kw := range list {
			kw = strings.ToUpper(strings.Trim(kw, "[]"))
			if kw == "" {
				continue
			}
			if _, seen := d.levels[kw]; seen {
				continue
			}
			d.levels[kw] = level
			words = append(words, regexp.QuoteMeta(kw))
		}
	}
	if len(words) == 0 {
		return d
	}

	// longest first so a keyword never shadows a longer one it prefixes
	sort.Slice(words, func(i, j int) bool {
		if len(words[i]) != len(words[j]) {
			return len(words[i]) > len(words[j])
		}
		return words[i] < words[j]
	})
	d.regex = regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
	return d
}

// Detect returns the level of a line, LevelUnknown when no keyword appears
// within the first 100 bytes
func (d *LevelDetector) Detect(content []byte) Level {
	if d.regex == nil {
		return LevelUnknown
	}
	if len(content) > levelScanLimit {
		content = content[:levelScanLimit]
	}

	m := d.regex.Find(content)
	if m == nil {
		return LevelUnknown
	}
	return d.levels[strings.ToUpper(string(m))]
}

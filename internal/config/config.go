package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/TimelordUK/loghew/pkg/logformat"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	Engine      EngineConfig     `toml:"engine"`
	Display     DisplayConfig    `toml:"display"`
	Logging     LoggingConfig    `toml:"logging"`
	Theme       ThemeConfig      `toml:"theme"`
	LogLevels   LogLevelConfig   `toml:"log_levels"`
	Keybindings KeybindingConfig `toml:"keybindings"`
}

// EngineConfig tunes indexing, tailing and query behaviour
type EngineConfig struct {
	MmapThresholdMB int  `toml:"mmap_threshold_mb"`
	PollIntervalMs  int  `toml:"poll_interval_ms"`
	SliceBytes      int  `toml:"slice_bytes"`
	QueryBatchLines int  `toml:"query_batch_lines"`
	WrapMatches     bool `toml:"wrap_matches"`
	// TimeTie is "preceding" or "closest"
	TimeTie string `toml:"time_tie"`
}

// MmapThreshold returns the threshold in bytes
func (e EngineConfig) MmapThreshold() int64 {
	return int64(e.MmapThresholdMB) * 1024 * 1024
}

// PollInterval returns the poll interval as a duration
func (e EngineConfig) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalMs) * time.Millisecond
}

// DisplayConfig holds display options
type DisplayConfig struct {
	ShowLineNumbers bool `toml:"show_line_numbers"`
	ShowDelta       bool `toml:"show_delta"`
	TabWidth        int  `toml:"tab_width"`
}

// LoggingConfig controls the diagnostic log
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// ThemeConfig defines color schemes
type ThemeConfig struct {
	Name          string         `toml:"name"`
	LineNumbers   string         `toml:"line_numbers"`
	StatusBar     string         `toml:"status_bar"`
	StatusBarText string         `toml:"status_bar_text"`
	SearchMatch   string         `toml:"search_match"`
	Cursor        string         `toml:"cursor"`
	Bookmark      string         `toml:"bookmark"`
	Delta         string         `toml:"delta"`
	Levels        LogLevelColors `toml:"levels"`
}

// LogLevelColors defines colors for each log level
type LogLevelColors struct {
	Trace string `toml:"trace"`
	Debug string `toml:"debug"`
	Info  string `toml:"info"`
	Warn  string `toml:"warn"`
	Error string `toml:"error"`
	Fatal string `toml:"fatal"`
}

// LogLevelConfig defines log level keywords, matched as whole words
type LogLevelConfig struct {
	TracePatterns []string `toml:"trace_patterns"`
	DebugPatterns []string `toml:"debug_patterns"`
	InfoPatterns  []string `toml:"info_patterns"`
	WarnPatterns  []string `toml:"warn_patterns"`
	ErrorPatterns []string `toml:"error_patterns"`
	FatalPatterns []string `toml:"fatal_patterns"`
}

// Keywords returns the keyword lists keyed by level
func (c LogLevelConfig) Keywords() map[logformat.Level][]string {
	return map[logformat.Level][]string{
		logformat.LevelTrace: c.TracePatterns,
		logformat.LevelDebug: c.DebugPatterns,
		logformat.LevelInfo:  c.InfoPatterns,
		logformat.LevelWarn:  c.WarnPatterns,
		logformat.LevelError: c.ErrorPatterns,
		logformat.LevelFatal: c.FatalPatterns,
	}
}

// KeybindingConfig allows customizing keybindings
type KeybindingConfig struct {
	Quit       []string `toml:"quit"`
	ScrollUp   []string `toml:"scroll_up"`
	ScrollDown []string `toml:"scroll_down"`
	PageUp     []string `toml:"page_up"`
	PageDown   []string `toml:"page_down"`
	Top        []string `toml:"top"`
	Bottom     []string `toml:"bottom"`
	Search     []string `toml:"search"`
	Command    []string `toml:"command"`
	NextMatch  []string `toml:"next_match"`
	PrevMatch  []string `toml:"prev_match"`
	Bookmark   []string `toml:"bookmark"`
	NextMark   []string `toml:"next_mark"`
	PrevMark   []string `toml:"prev_mark"`
	Follow     []string `toml:"follow"`
	Delta      []string `toml:"delta"`
	Copy       []string `toml:"copy"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MmapThresholdMB: 10,
			PollIntervalMs:  250,
			SliceBytes:      4 * 1024 * 1024,
			QueryBatchLines: 50_000,
			WrapMatches:     true,
			TimeTie:         "preceding",
		},
		Display: DisplayConfig{
			ShowLineNumbers: true,
			ShowDelta:       false,
			TabWidth:        4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Theme: ThemeConfig{
			Name:          "subtle",
			LineNumbers:   "240", // Dark gray
			StatusBar:     "236", // Darker gray background
			StatusBarText: "252", // Light gray text
			SearchMatch:   "226", // Yellow
			Cursor:        "237",
			Bookmark:      "81", // Cyan
			Delta:         "244",
			Levels: LogLevelColors{
				Trace: "240", // Dark gray
				Debug: "244", // Medium gray
				Info:  "250", // Light gray (default)
				Warn:  "214", // Orange
				Error: "167", // Soft red
				Fatal: "196", // Bright red
			},
		},
		LogLevels: LogLevelConfig{
			TracePatterns: []string{"[TRC]", "[TRACE]", "TRACE", "TRC"},
			DebugPatterns: []string{"[DBG]", "[DEBUG]", "DEBUG", "DBG"},
			InfoPatterns:  []string{"[INF]", "[INFO]", "INFO", "INF"},
			WarnPatterns:  []string{"[WRN]", "[WARN]", "[WARNING]", "WARN", "WRN", "WARNING"},
			ErrorPatterns: []string{"[ERR]", "[ERROR]", "ERROR", "ERR"},
			FatalPatterns: []string{"[FTL]", "[FATAL]", "FATAL", "FTL", "[CRIT]", "CRITICAL"},
		},
		Keybindings: KeybindingConfig{
			Quit:       []string{"q", "ctrl+c"},
			ScrollUp:   []string{"k", "up"},
			ScrollDown: []string{"j", "down"},
			PageUp:     []string{"b", "pgup", "ctrl+u"},
			PageDown:   []string{"f", "pgdown", "ctrl+d", " "},
			Top:        []string{"g", "home"},
			Bottom:     []string{"G", "end"},
			Search:     []string{"/"},
			Command:    []string{":"},
			NextMatch:  []string{"n"},
			PrevMatch:  []string{"N"},
			Bookmark:   []string{"m"},
			NextMark:   []string{"]"},
			PrevMark:   []string{"["},
			Follow:     []string{"F"},
			Delta:      []string{"D"},
			Copy:       []string{"y"},
		},
	}
}

// Load loads config from the user config file, falling back to defaults
func Load() (*Config, error) {
	configPath := getConfigPath()
	if configPath == "" {
		return DefaultConfig(), nil
	}
	cfg, err := LoadFrom(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return cfg, err
}

// LoadFrom reads the file at path over the defaults. Keys absent from the
// file keep their default values.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Engine.MmapThresholdMB < 0:
		return fmt.Errorf("engine.mmap_threshold_mb must not be negative")
	case c.Engine.PollIntervalMs < 10:
		return fmt.Errorf("engine.poll_interval_ms must be at least 10")
	case c.Engine.SliceBytes < 4096:
		return fmt.Errorf("engine.slice_bytes must be at least 4096")
	case c.Engine.QueryBatchLines < 1:
		return fmt.Errorf("engine.query_batch_lines must be positive")
	}
	switch c.Engine.TimeTie {
	case "", "preceding", "closest":
	default:
		return fmt.Errorf("engine.time_tie: unsupported value %q", c.Engine.TimeTie)
	}
	return nil
}

// getConfigPath returns the config file path
func getConfigPath() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "loghew", "config.toml")
	}

	// Fall back to ~/.config
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", "loghew", "config.toml")
}

// GetConfigPath exports the config path for user reference
func GetConfigPath() string {
	return getConfigPath()
}

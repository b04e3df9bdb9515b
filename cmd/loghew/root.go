package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/TimelordUK/loghew/internal/config"
	"github.com/TimelordUK/loghew/internal/logging"
	"github.com/TimelordUK/loghew/internal/session"
	"github.com/TimelordUK/loghew/internal/ui"
	"github.com/mattn/go-isatty"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

type rootFlags struct {
	config    string
	line      int
	search    string
	time      string
	logFile   string
	logLevel  string
	logFormat string
	plain     bool
}

func newRootCommand() *cobra.Command {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:           "loghew [file] [+N]",
		Short:         "View large and growing log files",
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, line, err := parseArgs(args)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("line") {
				line = flags.line
			}
			return run(cmd.Context(), flags, path, line)
		},
	}

	f := rootCmd.Flags()
	f.IntVarP(&flags.line, "line", "n", 0, "Start at line N")
	f.StringVarP(&flags.search, "search", "s", "", "Start with a literal search")
	f.StringVarP(&flags.time, "time", "t", "", "Start at a time (14:30, -5m)")
	f.BoolVar(&flags.plain, "plain", false, "Disable colors")
	rootCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&flags.logFile, "log-file", "", "Write diagnostics to this file")
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Diagnostic log level")
	rootCmd.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Diagnostic log format (console, json)")

	rootCmd.AddCommand(newConfigCommand(&flags))
	return rootCmd
}

// parseArgs accepts a file and a +N start line in either order
func parseArgs(args []string) (path string, line int, err error) {
	for _, arg := range args {
		if rest, ok := strings.CutPrefix(arg, "+"); ok {
			if line, err = strconv.Atoi(rest); err != nil || line < 1 {
				return "", 0, fmt.Errorf("invalid start line %q", arg)
			}
			continue
		}
		if path != "" {
			return "", 0, fmt.Errorf("unexpected argument %q", arg)
		}
		path = arg
	}
	return path, line, nil
}

func loadConfig(flags rootFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.config != "" {
		cfg, err = config.LoadFrom(flags.config)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if flags.logFile != "" {
		cfg.Logging.File = flags.logFile
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}
	return cfg, nil
}

func run(ctx context.Context, flags rootFlags, path string, line int) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return err
	}
	defer closeLog()

	fromStdin := path == ""
	if fromStdin && isatty.IsTerminal(os.Stdin.Fd()) {
		return errors.New("no file given and stdin is a terminal")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := session.Open(ctx, session.OpenRequest{
		Path:          path,
		InitialLine:   line,
		InitialSearch: flags.search,
	}, session.Options{Config: cfg, Logger: logger})
	if err != nil {
		return err
	}
	defer s.Close()

	if flags.time != "" {
		if _, err := s.JumpTime(flags.time); err != nil {
			return fmt.Errorf("--time %s: %w", flags.time, err)
		}
	}

	plain := flags.plain || os.Getenv("NO_COLOR") != ""
	return ui.Run(ctx, s, ui.Options{Config: cfg, InputTTY: fromStdin, Plain: plain})
}

func newConfigCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the default configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.GetConfigPath())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*flags)
			if err != nil {
				return err
			}
			data, err := toml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})

	return cmd
}

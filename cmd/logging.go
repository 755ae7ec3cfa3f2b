package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	logLevel      string
	logFormat     string
	logFile       string
	traceTrackers bool

	logger        = slog.Default()
	trackerLogger = slog.Default()
	logCloser     io.Closer
)

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func newHandler(w io.Writer, format string, level slog.Leveler) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "text", "":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// setupLogging configures the shared loggers from the root flags. Tracker
// trace lines only show with --trace; tracker warnings always do.
func setupLogging(cmd *cobra.Command, _ []string) error {
	level, err := parseLevel(logLevel)
	if err != nil {
		return err
	}

	w := cmd.ErrOrStderr()
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("error opening log file: %w", err)
		}
		w = f
		logCloser = f
	}

	h, err := newHandler(w, logFormat, level)
	if err != nil {
		return err
	}
	logger = slog.New(h)
	slog.SetDefault(logger)

	trackerLevel := max(level, slog.LevelWarn)
	if traceTrackers {
		trackerLevel = slog.LevelDebug
	}
	th, err := newHandler(w, logFormat, trackerLevel)
	if err != nil {
		return err
	}
	trackerLogger = slog.New(th).With("component", "tracker")
	return nil
}

func closeLogging() {
	if logCloser != nil {
		_ = logCloser.Close()
		logCloser = nil
	}
}

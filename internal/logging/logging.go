// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Setup installs a stderr logger at the configured level as the default.
// verbose forces debug output.
func Setup(level string, verbose bool) *log.Logger {
	return setup(os.Stderr, level, verbose)
}

func setup(w io.Writer, level string, verbose bool) *log.Logger {
	lvl := ParseLevel(level)
	if verbose {
		lvl = log.DebugLevel
	}
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           lvl,
	})
	log.SetDefault(logger)
	return logger
}

// ParseLevel maps a config level name such as "INFO" or "debug" to a log
// level. Unknown names mean info.
func ParseLevel(name string) log.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "warning":
		return log.WarnLevel
	case "critical":
		return log.FatalLevel
	}
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

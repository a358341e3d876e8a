package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]log.Level{
		"DEBUG":    log.DebugLevel,
		"info":     log.InfoLevel,
		"WARNING":  log.WarnLevel,
		"warn":     log.WarnLevel,
		"ERROR":    log.ErrorLevel,
		"CRITICAL": log.FatalLevel,
		"":         log.InfoLevel,
		"chatty":   log.InfoLevel,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSetupFiltersByLevel(t *testing.T) {
	prev := log.Default()
	t.Cleanup(func() { log.SetDefault(prev) })

	var buf bytes.Buffer
	setup(&buf, "WARNING", false)
	log.Info("hidden")
	log.Warn("shown", "feed", "example")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warning level")
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "feed=example") {
		t.Errorf("expected warning with key/value, got %q", out)
	}
}

func TestSetupVerbose(t *testing.T) {
	prev := log.Default()
	t.Cleanup(func() { log.SetDefault(prev) })

	var buf bytes.Buffer
	logger := setup(&buf, "ERROR", true)
	if logger.GetLevel() != log.DebugLevel {
		t.Errorf("expected debug level, got %v", logger.GetLevel())
	}
}

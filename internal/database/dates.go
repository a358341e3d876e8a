package database

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// GetToday returns today's date as YYYY-MM-DD.
func GetToday() string {
	return time.Now().Format(dateLayout)
}

// publishedLayouts are the date shapes found in feed and imported rows.
var publishedLayouts = []string{
	dateLayout,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02 15:04:05",
}

// NormalizeDate reduces a stored published date to YYYY-MM-DD. It reports
// false for empty or unparseable values.
func NormalizeDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format(dateLayout), true
		}
	}
	return "", false
}

// MakeSpan joins a start and end date the way cluster spans are displayed
// and stored: a single date when they match, otherwise "start..end".
func MakeSpan(start, end string) string {
	if start == end {
		return start
	}
	return start + ".." + end
}

// FormatSpanDisplay formats a span for human-readable display.
// Single day: "Feb 06, 2026"
// Range: "Feb 01 - Feb 06, 2026"
func FormatSpanDisplay(span string) string {
	if strings.Contains(span, "..") {
		parts := strings.SplitN(span, "..", 2)
		start, err := time.Parse(dateLayout, parts[0])
		if err != nil {
			return span
		}
		end, err := time.Parse(dateLayout, parts[1])
		if err != nil {
			return span
		}
		return fmt.Sprintf("%s - %s", start.Format("Jan 02"), end.Format("Jan 02, 2006"))
	}

	d, err := time.Parse(dateLayout, span)
	if err != nil {
		return span
	}
	return d.Format("Jan 02, 2006")
}

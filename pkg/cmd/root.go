package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/cortexlog/cortexlog/pkg/log"
)

// getTerminalWidth returns the stdout terminal width, defaulting to 80
// when stdout is not a terminal or the size can't be determined.
func getTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// truncateString truncates s to maxLen runes, adding "..." when truncated.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// formatTimestamp renders an RFC3339 timestamp as "2 days ago
// (YYYY-MM-DD HH:MM)" per the default output mode's timestamp format. An
// unparsable timestamp is returned unchanged.
func formatTimestamp(value string, now time.Time) string {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return fmt.Sprintf("%s (%s)", relativeTime(t, now), t.UTC().Format("2006-01-02 15:04"))
}

// relativeTime renders the coarse-grained relative distance between t and
// now: "just now", "N minutes/hours/days/weeks/months/years ago", or the
// symmetric "in N ..." form for a future t.
func relativeTime(t, now time.Time) string {
	d := now.Sub(t)
	future := d < 0
	if future {
		d = -d
	}

	var n int
	var unit string
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		n, unit = int(d/time.Minute), "minute"
	case d < 24*time.Hour:
		n, unit = int(d/time.Hour), "hour"
	case d < 7*24*time.Hour:
		n, unit = int(d/(24*time.Hour)), "day"
	case d < 30*24*time.Hour:
		n, unit = int(d/(7*24*time.Hour)), "week"
	case d < 365*24*time.Hour:
		n, unit = int(d/(30*24*time.Hour)), "month"
	default:
		n, unit = int(d/(365*24*time.Hour)), "year"
	}
	if n != 1 {
		unit += "s"
	}
	if future {
		return fmt.Sprintf("in %d %s", n, unit)
	}
	return fmt.Sprintf("%d %s ago", n, unit)
}

// colorize wraps s in color when color output is enabled, else returns it
// unchanged.
func colorize(color, s string) string {
	if !log.ColorEnabled() {
		return s
	}
	return color + s + log.ColorReset
}

// printDivider prints a horizontal rule sized to the terminal width,
// capped so it stays readable on very wide terminals.
func printDivider() {
	width := getTerminalWidth()
	if width > 100 {
		width = 100
	}
	fmt.Println(strings.Repeat("-", width))
}

package cliutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var relativeUnitRe = regexp.MustCompile(`^(\d+)\s+(day|days|week|weeks)\s+ago$`)

// ParseDate accepts RFC3339, the bare date form "YYYY-MM-DD", and the
// natural-language forms "today", "yesterday", "N days ago", and
// "N weeks ago". now is injected for testability. The returned time is at
// the start of day (UTC) for natural-language and bare-date forms, and
// exact for RFC3339 input.
func ParseDate(input string, now time.Time) (time.Time, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return time.Time{}, ValidationError{Message: "date must not be empty"}
	}

	switch s {
	case "today":
		return startOfDay(now), nil
	case "yesterday":
		return startOfDay(now.AddDate(0, 0, -1)), nil
	}

	if m := relativeUnitRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, invalidDateErr(input)
		}
		days := n
		if strings.HasPrefix(m[2], "week") {
			days = n * 7
		}
		return startOfDay(now.AddDate(0, 0, -days)), nil
	}

	if t, err := time.Parse(time.RFC3339, input); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", input); err == nil {
		return t.UTC(), nil
	}

	return time.Time{}, invalidDateErr(input)
}

func invalidDateErr(input string) error {
	return ValidationError{Message: fmt.Sprintf(
		"invalid date %q: expected one of \"today\", \"yesterday\", \"N days ago\", \"N weeks ago\", \"YYYY-MM-DD\", or RFC3339",
		input)}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysAgoStart returns the start-of-day instant n days before now,
// inclusive of today: "--days 7" covers today and the previous six days,
// so the boundary is startOfDay(now) - 6 days.
func DaysAgoStart(now time.Time, n int) time.Time {
	if n <= 0 {
		return startOfDay(now)
	}
	return startOfDay(now.AddDate(0, 0, -(n - 1)))
}

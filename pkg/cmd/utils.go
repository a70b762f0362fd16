package cmd

import (
	"time"

	"github.com/cortexlog/cortexlog/pkg/cliutil"
)

// outputFlags holds the --json/--quiet/--verbose flags shared by every
// user-facing command. --quiet and --verbose are mutually exclusive.
type outputFlags struct {
	JSON    bool
	Quiet   bool
	Verbose bool
}

func (f outputFlags) validate() error {
	if f.Quiet && f.Verbose {
		return cliutil.ValidationError{Message: "cannot use --quiet and --verbose together. These flags are mutually exclusive"}
	}
	return nil
}

// dateRangeFlags holds the --since/--before/--days flags shared by search
// and list. --days is mutually exclusive with --since and --before.
type dateRangeFlags struct {
	Since  string
	Before string
	Days   int
}

// resolve validates the mutual-exclusivity rule and converts the flags
// into RFC3339 since/before bounds, or "" when a bound was not given. now
// is injected so tests can assert against a fixed clock.
func (f dateRangeFlags) resolve(now time.Time) (since, before string, err error) {
	if f.Days > 0 && (f.Since != "" || f.Before != "") {
		return "", "", cliutil.ValidationError{
			Message: "cannot use --days together with --since/--before. --days is exclusive of the other two",
		}
	}

	if f.Days > 0 {
		return cliutil.DaysAgoStart(now, f.Days).Format(time.RFC3339), "", nil
	}

	if f.Since != "" {
		t, err := cliutil.ParseDate(f.Since, now)
		if err != nil {
			return "", "", err
		}
		since = t.Format(time.RFC3339)
	}
	if f.Before != "" {
		t, err := cliutil.ParseDate(f.Before, now)
		if err != nil {
			return "", "", err
		}
		before = t.Format(time.RFC3339)
	}
	return since, before, nil
}

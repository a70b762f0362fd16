// Package cmd contains the CLI command implementations: sync, search,
// list, and stats.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cortexlog/cortexlog/pkg/log"
	"github.com/cortexlog/cortexlog/pkg/store"
)

// Column widths for the list command's table output (excluding PROJECT,
// which is dynamic).
const (
	listIDWidth      = 36 // UUID length
	listCreatedWidth = 18 // "Jan 02, 2006 15:04"
	listColumnGap    = 2
)

// CreateListCommand builds the list command: a filtered, recency-ordered
// listing of indexed sessions.
func CreateListCommand(app *App) *cobra.Command {
	var (
		limit    int
		project  string
		dates    dateRangeFlags
		outFlags outputFlags
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List indexed sessions",
		Long: `List indexed sessions ordered by start time, most recent first.

By default, outputs a human-readable table. Use --json for machine-readable
output.`,
		Example: `
# List the most recent sessions
cortexlog list

# Sessions from one project in the last week
cortexlog list --project myrepo --days 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := outFlags.validate(); err != nil {
				return err
			}
			log.SetSilent(outFlags.Quiet)
			log.SetVerbose(outFlags.Verbose)

			since, before, err := dates.resolve(time.Now())
			if err != nil {
				return err
			}

			return runList(cmd.Context(), app, store.SessionFilter{
				Limit:         limit,
				ProjectFilter: project,
				SinceDate:     since,
				BeforeDate:    before,
			}, outFlags)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of sessions")
	cmd.Flags().StringVar(&project, "project", "", "only list sessions whose project name contains this substring")
	cmd.Flags().StringVar(&dates.Since, "since", "", "only list sessions starting at or after this date")
	cmd.Flags().StringVar(&dates.Before, "before", "", "only list sessions starting at or before this date")
	cmd.Flags().IntVar(&dates.Days, "days", 0, "only list sessions from the last N days (exclusive of --since/--before)")
	cmd.Flags().BoolVar(&outFlags.JSON, "json", false, "machine-readable JSON output")
	cmd.Flags().BoolVar(&outFlags.Quiet, "quiet", false, "minimal, self-labelling output suitable for automation")
	cmd.Flags().BoolVar(&outFlags.Verbose, "verbose", false, "session summaries and query timing")

	return cmd
}

func runList(ctx context.Context, app *App, filter store.SessionFilter, flags outputFlags) error {
	start := time.Now()
	sessions, err := (store.SessionRepo{}).FindFiltered(ctx, app.Store.DB(), filter)
	duration := time.Since(start)
	if err != nil {
		return err
	}

	return printSessionList(sessions, duration, flags)
}

func printSessionList(sessions []store.Session, duration time.Duration, flags outputFlags) error {
	switch {
	case flags.JSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)

	case flags.Quiet:
		fmt.Printf("Sessions: %d\n", len(sessions))
		for _, s := range sessions {
			fmt.Printf("%s\t%s\t%d\n", s.ID, s.ProjectName, s.MessageCount)
		}
		return nil

	default:
		printSessionTable(sessions, flags.Verbose)
		log.UserVerbose("query took %s", duration)
		return nil
	}
}

// printSessionTable renders sessions as a fixed-width table: session ID,
// start time, project, and message count. Verbose mode adds each
// session's summary on its own indented line.
func printSessionTable(sessions []store.Session, verbose bool) {
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	termWidth := getTerminalWidth()
	projectWidth := calculateListProjectWidth(termWidth)

	fmt.Println()
	fmt.Printf("%-*s  %-*s  %-*s  %s\n",
		listIDWidth, "SESSION ID",
		listCreatedWidth, "STARTED",
		projectWidth, "PROJECT",
		"MESSAGES")
	fmt.Printf("%s  %s  %s  %s\n",
		strings.Repeat("-", listIDWidth),
		strings.Repeat("-", listCreatedWidth),
		strings.Repeat("-", min(projectWidth, 20)),
		strings.Repeat("-", 8))

	for _, s := range sessions {
		started := formatListTimestamp(s.StartTime)
		projectTruncated := truncateString(s.ProjectName, projectWidth)
		fmt.Printf("%-*s  %-*s  %-*s  %d\n",
			listIDWidth, s.ID,
			listCreatedWidth, started,
			projectWidth, projectTruncated,
			s.MessageCount)
		if verbose && s.Summary != nil && *s.Summary != "" {
			fmt.Printf("  %s\n", truncateString(*s.Summary, termWidth-2))
		}
	}

	fmt.Println()
}

// formatListTimestamp renders an RFC3339 start time as an absolute
// "Jan 02, 2006 15:04" string, the list table's compact column format. An
// unparsable timestamp is returned unchanged.
func formatListTimestamp(value string) string {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return value
	}
	return t.Local().Format("Jan 02, 2006 15:04")
}

func calculateListProjectWidth(termWidth int) int {
	fixedWidth := listIDWidth + listCreatedWidth + 8 + (listColumnGap * 3)
	width := termWidth - fixedWidth
	return max(width, 10)
}

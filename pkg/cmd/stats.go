package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cortexlog/cortexlog/pkg/log"
	"github.com/cortexlog/cortexlog/pkg/store"
)

// statsReport is the corpus-wide summary produced by stats: total counts,
// the top-N projects by session count, role distribution, and the date
// range of indexed data.
type statsReport struct {
	TotalSessions int                  `json:"total_sessions"`
	TotalMessages int                  `json:"total_messages"`
	TopProjects   []store.ProjectCount `json:"top_projects"`
	RoleCounts    []store.RoleCount    `json:"role_distribution"`
	EarliestStart string               `json:"earliest_start,omitempty"`
	LatestStart   string               `json:"latest_start,omitempty"`
	HasData       bool                 `json:"has_data"`
}

// CreateStatsCommand builds the stats command: corpus-wide counts, the
// top-N projects by session volume, and the role distribution across all
// indexed messages.
func CreateStatsCommand(app *App) *cobra.Command {
	var (
		projects int
		outFlags outputFlags
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show summary statistics for the indexed sessions",
		Long: `Report the total number of indexed sessions and messages, the top
projects by session count, the message role distribution, and the date
range of indexed data.`,
		Example: `
# Summary statistics
cortexlog stats

# Top 5 projects instead of the default 10
cortexlog stats --projects 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := outFlags.validate(); err != nil {
				return err
			}
			log.SetSilent(outFlags.Quiet)
			log.SetVerbose(outFlags.Verbose)

			return runStats(cmd.Context(), app, projects, outFlags)
		},
	}

	cmd.Flags().IntVar(&projects, "projects", 10, "number of top projects to show")
	cmd.Flags().BoolVar(&outFlags.JSON, "json", false, "machine-readable JSON output")
	cmd.Flags().BoolVar(&outFlags.Quiet, "quiet", false, "minimal, self-labelling output suitable for automation")
	cmd.Flags().BoolVar(&outFlags.Verbose, "verbose", false, "include query timing")

	return cmd
}

func runStats(ctx context.Context, app *App, topN int, flags outputFlags) error {
	start := time.Now()
	report, err := collectStats(ctx, app, topN)
	duration := time.Since(start)
	if err != nil {
		return err
	}

	return printStats(report, duration, flags)
}

func collectStats(ctx context.Context, app *App, topN int) (statsReport, error) {
	db := app.Store.DB()

	totalSessions, err := (store.SessionRepo{}).CountAll(ctx, db)
	if err != nil {
		return statsReport{}, err
	}
	totalMessages, err := (store.MessageRepo{}).CountAll(ctx, db)
	if err != nil {
		return statsReport{}, err
	}
	topProjects, err := (store.SessionRepo{}).TopProjects(ctx, db, topN)
	if err != nil {
		return statsReport{}, err
	}
	roleCounts, err := (store.MessageRepo{}).RoleDistribution(ctx, db)
	if err != nil {
		return statsReport{}, err
	}
	earliest, latest, hasData, err := (store.SessionRepo{}).DateRange(ctx, db)
	if err != nil {
		return statsReport{}, err
	}

	return statsReport{
		TotalSessions: totalSessions,
		TotalMessages: totalMessages,
		TopProjects:   topProjects,
		RoleCounts:    roleCounts,
		EarliestStart: earliest,
		LatestStart:   latest,
		HasData:       hasData,
	}, nil
}

func printStats(report statsReport, duration time.Duration, flags outputFlags) error {
	switch {
	case flags.JSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)

	case flags.Quiet:
		fmt.Printf("Sessions: %d\n", report.TotalSessions)
		fmt.Printf("Messages: %d\n", report.TotalMessages)
		for _, pc := range report.TopProjects {
			fmt.Printf("Project: %s\t%d\n", pc.ProjectName, pc.SessionCount)
		}
		for _, rc := range report.RoleCounts {
			fmt.Printf("Role: %s\t%d\n", rc.Role, rc.Count)
		}
		return nil

	default:
		fmt.Println()
		fmt.Println(colorize(log.ColorBoldCyan, "Index summary"))
		fmt.Printf("  sessions: %d\n", report.TotalSessions)
		fmt.Printf("  messages: %d\n", report.TotalMessages)
		if report.HasData {
			now := time.Now()
			fmt.Printf("  date range: %s to %s\n",
				formatTimestamp(report.EarliestStart, now), formatTimestamp(report.LatestStart, now))
		}

		if len(report.TopProjects) > 0 {
			fmt.Println()
			fmt.Println(colorize(log.ColorBoldCyan, "Top projects"))
			for _, pc := range report.TopProjects {
				fmt.Printf("  %-40s %d\n", truncateString(pc.ProjectName, 40), pc.SessionCount)
			}
		}

		if len(report.RoleCounts) > 0 {
			fmt.Println()
			fmt.Println(colorize(log.ColorBoldCyan, "Role distribution"))
			for _, rc := range report.RoleCounts {
				fmt.Printf("  %-12s %d\n", rc.Role, rc.Count)
			}
		}

		log.UserVerbose("\nquery took %s", duration)
		fmt.Println()
		return nil
	}
}

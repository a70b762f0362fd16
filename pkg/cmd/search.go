package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"

	"github.com/cortexlog/cortexlog/pkg/cliutil"
	"github.com/cortexlog/cortexlog/pkg/log"
	"github.com/cortexlog/cortexlog/pkg/search"
	"github.com/cortexlog/cortexlog/pkg/store"
	"github.com/cortexlog/cortexlog/pkg/telemetry"
)

// CreateSearchCommand builds the search command: a full-text query against
// the indexed messages, ranked by normalized BM25 score, with the shared
// project/role/session/date filters.
func CreateSearchCommand(app *App) *cobra.Command {
	var (
		limit         int
		projectFilter string
		sessionFilter string
		roleFilter    string
		ignoreCase    bool
		caseSensitive bool
		dates         dateRangeFlags
		outFlags      outputFlags
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over indexed messages",
		Args:  cobra.ExactArgs(1),
		Example: `
# Search for a term
cortexlog search "connection refused"

# Narrow to one project and role
cortexlog search "flaky test" --project myrepo --role assistant

# Last 30 days, as JSON
cortexlog search "regression" --days 30 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := outFlags.validate(); err != nil {
				return err
			}
			if ignoreCase && caseSensitive {
				return cliutil.ValidationError{Message: "cannot use --ignore-case and --case-sensitive together. These flags are mutually exclusive"}
			}
			log.SetSilent(outFlags.Quiet)
			log.SetVerbose(outFlags.Verbose)

			roles, err := parseRoleFilter(roleFilter)
			if err != nil {
				return err
			}

			since, before, err := dates.resolve(time.Now())
			if err != nil {
				return err
			}

			project := projectFilter
			if !caseSensitive && project != "" {
				project = cases.Fold().String(project)
			}

			return runSearch(cmd.Context(), app, args[0], search.Filter{
				ProjectFilter: project,
				CaseSensitive: caseSensitive,
				RoleFilter:    roles,
				SessionFilter: sessionFilter,
				SinceDate:     since,
				BeforeDate:    before,
			}, limit, outFlags)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of results")
	cmd.Flags().StringVar(&projectFilter, "project", "", "only match sessions whose project name contains this substring")
	cmd.Flags().StringVar(&sessionFilter, "session", "", "only match messages in this session ID")
	cmd.Flags().StringVar(&roleFilter, "role", "all", "user, assistant, all, or a comma-separated list")
	cmd.Flags().StringVar(&dates.Since, "since", "", "only match messages at or after this date")
	cmd.Flags().StringVar(&dates.Before, "before", "", "only match messages at or before this date")
	cmd.Flags().IntVar(&dates.Days, "days", 0, "only match messages from the last N days (exclusive of --since/--before)")
	cmd.Flags().BoolVar(&ignoreCase, "ignore-case", false, "fold the project filter for matching (default)")
	cmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "match the project filter's case exactly")
	cmd.Flags().BoolVar(&outFlags.JSON, "json", false, "machine-readable JSON output")
	cmd.Flags().BoolVar(&outFlags.Quiet, "quiet", false, "minimal, self-labelling output suitable for automation")
	cmd.Flags().BoolVar(&outFlags.Verbose, "verbose", false, "untruncated snippets and query timing")

	return cmd
}

// parseRoleFilter parses --role into the zero, one, or many roles the
// search filter should AND in. "all" (the default) and "" both mean no
// role restriction.
func parseRoleFilter(value string) ([]store.Role, error) {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "all") {
		return nil, nil
	}

	var roles []store.Role
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		switch part {
		case "user":
			roles = append(roles, store.RoleUser)
		case "assistant":
			roles = append(roles, store.RoleAssistant)
		case "system":
			roles = append(roles, store.RoleSystem)
		default:
			return nil, cliutil.ValidationError{Message: fmt.Sprintf("unknown --role value %q; expected user, assistant, system, all, or a comma-separated list", part)}
		}
	}
	return roles, nil
}

func runSearch(ctx context.Context, app *App, query string, filter search.Filter, limit int, flags outputFlags) error {
	svc := search.NewService(app.Store.DB())

	tracer := telemetry.Tracer("cortexlog/search")
	ctx, span := tracer.Start(ctx, "search")
	defer span.End()

	start := time.Now()
	results, err := svc.Search(ctx, query, limit, filter)
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		return err
	}
	telemetry.RecordSearchMetrics(ctx, len(results), duration)
	_ = telemetry.ForceFlush(ctx)

	return printSearchResults(results, query, duration, flags)
}

func printSearchResults(results []search.Result, query string, duration time.Duration, flags outputFlags) error {
	switch {
	case flags.JSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)

	case flags.Quiet:
		fmt.Printf("Results: %d\n", len(results))
		for _, r := range results {
			fmt.Printf("%s\t%s\t%.4f\n", r.SessionID, r.MessageID, r.Score)
		}
		return nil

	default:
		now := time.Now()
		if len(results) == 0 {
			fmt.Printf("No results for %q\n", query)
			return nil
		}
		fmt.Printf("%d result(s) for %q\n\n", len(results), query)
		for i, r := range results {
			fmt.Printf("%s  %s  score %.2f  %s\n",
				colorize(log.ColorBoldCyan, fmt.Sprintf("%d.", i+1)),
				r.SessionID, r.Score, formatTimestamp(r.Timestamp, now))
			snippet := r.Snippet
			if !flags.Verbose {
				snippet = truncateString(snippet, 200)
			}
			fmt.Printf("   %s\n", renderSnippet(snippet))
			if i < len(results)-1 {
				fmt.Println()
			}
		}
		log.UserVerbose("\nquery took %s", duration)
		return nil
	}
}

// renderSnippet turns a search snippet's <mark>...</mark> wrapping into bold
// cyan ANSI when color is enabled, or strips the markers otherwise.
func renderSnippet(snippet string) string {
	if !log.ColorEnabled() {
		snippet = strings.ReplaceAll(snippet, "<mark>", "")
		snippet = strings.ReplaceAll(snippet, "</mark>", "")
		return snippet
	}
	snippet = strings.ReplaceAll(snippet, "<mark>", log.ColorBoldCyan)
	snippet = strings.ReplaceAll(snippet, "</mark>", log.ColorReset)
	return snippet
}


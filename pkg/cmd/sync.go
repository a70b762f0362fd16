package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cortexlog/cortexlog/pkg/cliutil"
	"github.com/cortexlog/cortexlog/pkg/discovery"
	"github.com/cortexlog/cortexlog/pkg/lifecycle"
	"github.com/cortexlog/cortexlog/pkg/log"
	"github.com/cortexlog/cortexlog/pkg/pathcodec"
	"github.com/cortexlog/cortexlog/pkg/syncer"
	"github.com/cortexlog/cortexlog/pkg/telemetry"
)

// CreateSyncCommand builds the sync command: discovery, the incremental
// re-extraction decision, and the per-session extract-and-commit loop,
// driven through the storage engine opened for this invocation.
func CreateSyncCommand(app *App) *cobra.Command {
	var (
		force         bool
		projectFilter string
		sessionFilter string
		quiet         bool
		verbose       bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Extract session files into the local index",
		Long: `Discover session files under the configured sessions root, extract any
that are new or changed since the last sync, and commit them to the local
SQLite index.

An interrupted sync leaves a checkpoint behind; the next sync resumes from
it automatically, skipping the sessions it records even with --force.`,
		Example: `
# Sync all sessions
cortexlog sync

# Re-extract everything, ignoring the incremental fingerprint
cortexlog sync --force

# Sync only one project
cortexlog sync --project myrepo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := outputFlags{Quiet: quiet, Verbose: verbose}
			if err := flags.validate(); err != nil {
				return err
			}
			log.SetSilent(quiet)
			log.SetVerbose(verbose)

			return runSync(cmd.Context(), app, syncer.Options{
				Force:             force,
				ProjectFilter:     projectFilter,
				SessionFilter:     sessionFilter,
				Quiet:             quiet,
				Verbose:           verbose,
				CheckpointEnabled: true,
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-extract every session, ignoring the incremental fingerprint")
	cmd.Flags().StringVar(&projectFilter, "project", "", "only sync sessions whose project path contains this substring")
	cmd.Flags().StringVar(&sessionFilter, "session", "", "only sync the session with this exact ID")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "minimal, self-labelling output suitable for automation")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "per-session detail and query timing")

	return cmd
}

func runSync(ctx context.Context, app *App, opts syncer.Options) error {
	resolver := pathcodec.NewResolver(app.Config.GetSessionsRoot())
	source := discovery.NewSource(app.Config.GetSessionsRoot(), resolver)

	manager := lifecycle.NewManager(lifecycle.Config{TTY: term.IsTerminal(int(os.Stdin.Fd()))})
	manager.Listen()
	defer manager.Stop()

	checkpointPath := app.Config.GetCheckpointPath()
	sy := syncer.New(app.Store, source, manager, checkpointPath)

	tracer := telemetry.Tracer("cortexlog/sync")
	ctx, span := tracer.Start(ctx, "sync")
	defer span.End()

	if !opts.Quiet {
		fmt.Println()
		fmt.Println(colorize(log.ColorBoldCyan, "Syncing sessions..."))
	}

	opts.OnSessionComplete = func(outcome syncer.SessionOutcome) {
		if opts.Quiet {
			return
		}
		if outcome.Err != nil {
			fmt.Printf("  %s %s: %v\n", colorize(log.ColorRed, "x"), outcome.SessionID, outcome.Err)
			return
		}
		if opts.Verbose {
			fmt.Printf("  %s %s (%s) - %d messages\n",
				colorize(log.ColorGreen, "+"), outcome.SessionID, outcome.ProjectName, outcome.MessagesInserted)
		}
	}

	result, err := sy.Sync(ctx, opts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("sync: %w", err)
	}
	telemetry.SetSyncSpanAttributes(span, result)
	telemetry.RecordSyncMetrics(ctx, result)
	_ = telemetry.ForceFlush(ctx)

	return printSyncResult(result, opts.Quiet, opts.Verbose)
}

func printSyncResult(result syncer.Result, quiet, verbose bool) error {
	if quiet {
		fmt.Printf("Sessions discovered: %d\n", result.SessionsDiscovered)
		fmt.Printf("Sessions processed: %d\n", result.SessionsProcessed)
		fmt.Printf("Sessions skipped: %d\n", result.SessionsSkipped)
		fmt.Printf("Messages inserted: %d\n", result.MessagesInserted)
		fmt.Printf("Errors: %d\n", len(result.Errors))
		fmt.Printf("Aborted: %t\n", result.Aborted)
	} else {
		switch {
		case result.Aborted:
			log.UserWarn("sync interrupted; a checkpoint was saved, resume with another sync.")
		case len(result.Errors) > 0:
			log.UserWarn("sync finished with errors.")
		default:
			fmt.Println()
			fmt.Println(colorize(log.ColorBoldGreen, "Sync complete."))
		}
		fmt.Println()
		fmt.Printf("  discovered: %d\n", result.SessionsDiscovered)
		fmt.Printf("  processed:  %d\n", result.SessionsProcessed)
		fmt.Printf("  skipped:    %d\n", result.SessionsSkipped)
		fmt.Printf("  messages:   %d\n", result.MessagesInserted)
		if len(result.Errors) > 0 {
			fmt.Printf("  %s %d\n", colorize(log.ColorRed, "errors:"), len(result.Errors))
			for _, e := range result.Errors {
				fmt.Printf("    - %s: %s\n", e.SessionID, e.Message)
			}
		}
		if verbose {
			fmt.Printf("  duration:   %dms\n", result.DurationMS)
		}
		fmt.Println()
	}

	if len(result.Errors) > 0 {
		return cliutil.ValidationError{Message: fmt.Sprintf("%d session(s) failed to sync; see above", len(result.Errors))}
	}
	return nil
}

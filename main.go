package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/cortexlog/cortexlog/pkg/cliutil"
	"github.com/cortexlog/cortexlog/pkg/cmd"
	"github.com/cortexlog/cortexlog/pkg/config"
	"github.com/cortexlog/cortexlog/pkg/log"
	"github.com/cortexlog/cortexlog/pkg/store"
	"github.com/cortexlog/cortexlog/pkg/telemetry"
)

// version is the current version of the CLI, replaced with the real
// version string in the production build process.
var version = "dev"

// Global flags, set by PersistentFlags and read in PersistentPreRunE.
var (
	sessionsRoot      string
	databasePath      string
	checkpointPath    string
	console           bool
	logFile           bool
	debug             bool
	noColor           bool
	forceColor        bool
	noTelemetry       bool
	telemetryEndpoint string
)

// validateFlags checks for mutually exclusive flag combinations that cut
// across every command.
func validateFlags() error {
	if noColor && forceColor {
		return cliutil.ValidationError{Message: "cannot use --no-color and --color together. These flags are mutually exclusive"}
	}
	if debug && !console && !logFile {
		return cliutil.ValidationError{Message: "--debug requires either --console or --log to be specified"}
	}
	return nil
}

// createRootCommand builds the root command. app is a shared, initially
// empty *cmd.App: every subcommand factory closes over this same pointer,
// and PersistentPreRunE fills in its Config/Store fields once flags have
// been parsed, before any subcommand's RunE runs.
func createRootCommand(app *cmd.App) *cobra.Command {
	root := &cobra.Command{
		Use:   "cortexlog [command]",
		Short: "A local, searchable index over your coding assistant's session logs",
		Long: `cortexlog extracts JSONL session logs produced by an interactive coding
assistant into a local SQLite database with full-text search, keeps that
index incrementally in sync, and serves ranked search, listing, and
summary statistics.`,
		Example: `
# Index everything under the configured sessions root
cortexlog sync

# Search for a term across all indexed sessions
cortexlog search "connection refused"

# List the most recent sessions for one project
cortexlog list --project myrepo

# Corpus-wide summary
cortexlog stats`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRunE: func(c *cobra.Command, args []string) error {
			if err := validateFlags(); err != nil {
				fmt.Println()
				return err
			}

			cfg, err := config.Load(&config.CLIOverrides{
				SessionsRoot:      sessionsRoot,
				DatabasePath:      databasePath,
				CheckpointPath:    checkpointPath,
				Console:           console,
				Log:               logFile,
				Debug:             debug,
				NoColor:           noColor,
				Color:             forceColor,
				NoTelemetry:       noTelemetry,
				TelemetryEndpoint: telemetryEndpoint,
			})
			if err != nil {
				return err
			}

			var logPath string
			if cfg.IsLogEnabled() {
				if home, homeErr := os.UserHomeDir(); homeErr == nil {
					logPath = filepath.Join(home, config.HomeDir, "debug.log")
				}
			}
			if err := log.SetupLogger(cfg.IsConsoleEnabled(), cfg.IsLogEnabled(), cfg.IsDebugEnabled(), logPath); err != nil {
				return fmt.Errorf("failed to set up logger: %v", err)
			}
			if cfg.IsConsoleEnabled() || cfg.IsLogEnabled() {
				slog.Info("=== cortexlog starting ===", "version", version, "args", strings.Join(os.Args, " "))
			}

			colorEnabled, colorSet := cfg.ColorPreference()
			log.SetColorPreference(colorEnabled, colorSet)

			if err := telemetry.Init(c.Context(), telemetry.Options{
				ServiceName: cfg.GetTelemetryServiceName(),
				Endpoint:    cfg.GetTelemetryEndpoint(),
				Enabled:     cfg.IsTelemetryEnabled(),
			}); err != nil {
				slog.Warn("failed to initialize telemetry", "error", err)
			}

			// Every command but sync opens the index without creating it: a missing
			// database should be a named error, not a silently created
			// empty one.
			db, err := store.Open(store.Options{
				Path:        cfg.GetDatabasePath(),
				CacheSizeKB: cfg.GetCacheSizeKB(),
				NoCreate:    c.Name() != "sync",
			})
			if err != nil {
				return err
			}

			app.Config = cfg
			app.Store = db
			return nil
		},
		PersistentPostRunE: func(c *cobra.Command, args []string) error {
			if app.Store != nil {
				return app.Store.Close()
			}
			return nil
		},
		Run: func(c *cobra.Command, args []string) {
			fmt.Println()
			_ = c.Help()
		},
	}

	root.PersistentFlags().StringVar(&sessionsRoot, "sessions-root", "", "root directory containing session log files (default ~/.claude/projects)")
	root.PersistentFlags().StringVar(&databasePath, "database", "", "path to the SQLite index file")
	root.PersistentFlags().StringVar(&checkpointPath, "checkpoint", "", "path to the sync checkpoint file")
	root.PersistentFlags().BoolVar(&console, "console", false, "enable debug/info logging to stdout")
	root.PersistentFlags().BoolVar(&logFile, "log", false, "write debug/info logging to a file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug-level logging (requires --console or --log)")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable ANSI color output")
	root.PersistentFlags().BoolVar(&forceColor, "color", false, "force ANSI color output")
	root.PersistentFlags().BoolVar(&noTelemetry, "no-telemetry", false, "disable OpenTelemetry instrumentation")
	root.PersistentFlags().StringVar(&telemetryEndpoint, "telemetry-endpoint", "", "OTLP gRPC collector address")

	return root
}

func main() {
	app := &cmd.App{}
	root := createRootCommand(app)
	root.Version = version
	root.SetVersionTemplate("{{.Version}} (cortexlog)")

	root.AddCommand(cmd.CreateSyncCommand(app))
	root.AddCommand(cmd.CreateSearchCommand(app))
	root.AddCommand(cmd.CreateListCommand(app))
	root.AddCommand(cmd.CreateStatsCommand(app))
	root.AddCommand(cmd.CreateVersionCommand(version))

	defer func() {
		if r := recover(); r != nil {
			slog.Error("=== cortexlog panic ===", "panic", r)
			log.CloseLogger()
			panic(r)
		}
		_ = telemetry.Shutdown(context.Background())
		log.CloseLogger()
	}()

	if err := fang.Execute(context.Background(), root, fang.WithVersion(version)); err != nil {
		var validationErr cliutil.ValidationError
		var notFoundErr *store.NotFoundError
		var corruptedErr *store.CorruptedError

		switch {
		case errors.As(err, &notFoundErr), errors.As(err, &corruptedErr):
			log.UserError("%v", err)
			os.Exit(2)

		case errors.As(err, &validationErr):
			log.UserError("%v", err)
			os.Exit(1)

		default:
			errMsg := err.Error()
			isCommandError := strings.Contains(errMsg, "unknown command") ||
				strings.Contains(errMsg, "unknown flag") ||
				strings.Contains(errMsg, "invalid argument") ||
				strings.Contains(errMsg, "required flag") ||
				strings.Contains(errMsg, "accepts") ||
				strings.Contains(errMsg, "no such flag") ||
				strings.Contains(errMsg, "flag needs an argument")

			log.UserError("%v", err)
			if isCommandError {
				_ = root.Usage()
				fmt.Println()
			}
			os.Exit(1)
		}
	}
}

// Package log provides the CLI's user-facing output (UserWarn/UserError/
// UserVerbose) and the structured slog setup for --console/--log/--debug.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/term"
)

// ANSI color codes for terminal output
const (
	// Base ANSI escape sequence
	ANSIEscape = "\033["

	// Color codes
	ColorReset       = ANSIEscape + "0m"
	ColorBold        = ANSIEscape + "1m"
	ColorRed         = ANSIEscape + "31m"
	ColorGreen       = ANSIEscape + "32m"
	ColorYellow      = ANSIEscape + "33m"
	ColorBlue        = ANSIEscape + "34m"
	ColorMagenta     = ANSIEscape + "35m"
	ColorCyan        = ANSIEscape + "36m"
	ColorBrightRed   = ANSIEscape + "91m"
	ColorBrightGreen = ANSIEscape + "92m"
	ColorOrange      = ANSIEscape + "38;5;208m"

	// Combined styles
	ColorBoldGreen = ANSIEscape + "1;32m"
	ColorBoldCyan  = ANSIEscape + "1;36m"
)

// Logger configuration
var (
	logger        *slog.Logger
	logFileHandle *os.File
)

// UserWarn prints a warning message to stderr with orange color
// This respects the silent flag - no output if silent mode is enabled
func UserWarn(format string, args ...interface{}) {
	if !isSilent() {
		message := fmt.Sprintf(format, args...)
		if colorEnabled() {
			fmt.Fprintf(os.Stderr, "\n%sWarning: %s\n%s", ColorOrange, message, ColorReset)
		} else {
			fmt.Fprintf(os.Stderr, "\nWarning: %s\n", message)
		}
	}
}

// UserError prints an error message to stderr with bright red color
// This respects the silent flag - no output if silent mode is enabled
func UserError(format string, args ...interface{}) {
	if !isSilent() {
		message := fmt.Sprintf(format, args...)
		if colorEnabled() {
			fmt.Fprintf(os.Stderr, "\n%sError: %s\n%s", ColorBrightRed, message, ColorReset)
		} else {
			fmt.Fprintf(os.Stderr, "\nError: %s\n", message)
		}
	}
}

// UserVerbose prints a timing/diagnostic line to stderr when verbose mode is
// on. It is silent otherwise, and always silent under --quiet.
func UserVerbose(format string, args ...interface{}) {
	if !isSilent() && verboseMode {
		message := fmt.Sprintf(format, args...)
		if colorEnabled() {
			fmt.Fprintf(os.Stderr, "%s%s%s\n", ColorCyan, message, ColorReset)
		} else {
			fmt.Fprintf(os.Stderr, "%s\n", message)
		}
	}
}

var verboseMode bool

// SetVerbose sets whether UserVerbose output is emitted.
func SetVerbose(verbose bool) {
	verboseMode = verbose
}

// colorPreference mirrors config.ColorPreference's (enabled, ok) shape so
// this package doesn't import pkg/config.
var (
	colorPrefSet     bool
	colorPrefEnabled bool
)

// SetColorPreference records an explicit color preference from config/flags.
// Call with ok=false to defer to NO_COLOR/FORCE_COLOR/TTY detection.
func SetColorPreference(enabled, ok bool) {
	colorPrefSet = ok
	colorPrefEnabled = enabled
}

// colorEnabled decides whether to emit ANSI color codes: an explicit
// preference wins, then NO_COLOR, then FORCE_COLOR, then TTY detection.
func colorEnabled() bool {
	if colorPrefSet {
		return colorPrefEnabled
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// ColorEnabled reports whether callers outside this package (command
// output tables, progress lines written directly to stdout) should emit
// ANSI color, following the same NO_COLOR/FORCE_COLOR/TTY precedence as
// UserWarn/UserError. It checks stdout rather than stderr since callers
// use it for stdout-directed output.
func ColorEnabled() bool {
	if colorPrefSet {
		return colorPrefEnabled
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// SetupLogger configures slog based on flags
// console: enables logging to stdout
// logFile: enables logging to file
// logPath: path to the log file (required if logFile is true)
// debug: changes log level to Debug (only valid with console or logFile)
func SetupLogger(console, logFile, debug bool, logPath string) error {
	var handlers []slog.Handler

	// Determine log level
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}

	// Add file handler if --log flag is set
	if logFile {
		// Create directory if it doesn't exist
		dir := filepath.Dir(logPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %v", err)
		}

		// Open log file for append
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %v", err)
		}
		logFileHandle = file

		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{
			Level: logLevel,
		}))
	}

	// Add stdout handler if --console flag is set
	if console {
		handlers = append(handlers, slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		}))
	}

	// Create logger based on handlers
	switch len(handlers) {
	case 0:
		// No logging - discard everything
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	case 1:
		// Single handler
		logger = slog.New(handlers[0])
	default:
		// Multiple handlers
		logger = slog.New(&multiHandler{handlers: handlers})
	}

	// Set as default logger
	slog.SetDefault(logger)
	return nil
}

// CloseLogger closes the log file if open
func CloseLogger() {
	if logFileHandle != nil {
		_ = logFileHandle.Close()
		logFileHandle = nil
	}
}

// multiHandler allows writing to multiple destinations
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, handler := range h.handlers {
		if err := handler.Handle(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: newHandlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	newHandlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		newHandlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: newHandlers}
}

// isSilent checks if silent mode is enabled
// This is set by SetSilent, not by SetupLogger
var silentMode bool

func isSilent() bool {
	return silentMode
}

// SetSilent sets the silent mode flag
func SetSilent(silent bool) {
	silentMode = silent
}

// Package config loads this tool's configuration. Configuration is loaded
// with the following priority (highest to lowest):
//  1. CLI flags
//  2. Local project config: ./.cortexlog/config.toml
//  3. User-level config: ~/.cortexlog/config.toml
//
// Telemetry's endpoint additionally honors OTEL_EXPORTER_OTLP_ENDPOINT and
// OTEL_SERVICE_NAME, which take highest priority per OpenTelemetry
// conventions.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "config.toml"
	// HomeDir is the directory name this tool keeps its files under.
	HomeDir = ".cortexlog"
)

// Config is the complete CLI configuration.
type Config struct {
	SessionsRoot string           `toml:"sessions_root"`
	Database     DatabaseConfig   `toml:"database"`
	Checkpoint   CheckpointConfig `toml:"checkpoint"`
	Logging      LoggingConfig    `toml:"logging"`
	Telemetry    TelemetryConfig  `toml:"telemetry"`
}

// DatabaseConfig holds storage engine settings.
type DatabaseConfig struct {
	// Path is the SQLite database file. Empty means the default under
	// the user's home directory.
	Path string `toml:"path"`
	// CacheSizeKB overrides SQLite's page cache size.
	CacheSizeKB *int `toml:"cache_size_kb"`
}

// CheckpointConfig holds the sync checkpoint file's location.
type CheckpointConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig holds logging and output-mode settings.
type LoggingConfig struct {
	// Console enables debug/info logging to stdout, separate from the
	// command's own user-facing output.
	Console *bool `toml:"console"`
	// Log enables writing that same logging to a file.
	Log *bool `toml:"log"`
	// Debug raises the log level to debug (requires Console or Log).
	Debug *bool `toml:"debug"`
	// Color forces or disables ANSI color. Nil defers to NO_COLOR /
	// FORCE_COLOR / TTY detection.
	Color *bool `toml:"color"`
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	// Enabled explicitly enables/disables telemetry. If not set,
	// telemetry is enabled when Endpoint is non-empty.
	Enabled *bool `toml:"enabled"`
	// Endpoint is the OTLP collector address. Env var:
	// OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string `toml:"endpoint"`
	// ServiceName overrides the default service name. Env var:
	// OTEL_SERVICE_NAME.
	ServiceName string `toml:"service_name"`
}

// CLIOverrides holds CLI flag values applied after config files are loaded.
type CLIOverrides struct {
	SessionsRoot   string
	DatabasePath   string
	CheckpointPath string

	Console bool
	Log     bool
	Debug   bool
	NoColor bool
	Color   bool

	NoTelemetry       bool
	TelemetryEndpoint string
}

// Load reads configuration from files and CLI flags. Missing config files
// are not errors; a present-but-unparsable file is.
func Load(cliOverrides *CLIOverrides) (*Config, error) {
	cfg := &Config{}

	userConfigPath := getUserConfigPath()
	if userConfigPath != "" {
		if err := loadTOMLFile(userConfigPath, cfg); err != nil {
			if os.IsNotExist(err) {
				slog.Debug("no user-level config file found", "path", userConfigPath)
			} else {
				return cfg, fmt.Errorf("config: loading user config %s: %w", userConfigPath, err)
			}
		} else {
			slog.Debug("loaded user-level config", "path", userConfigPath)
		}
	}

	localConfigPath := getLocalConfigPath()
	if localConfigPath != "" {
		if err := loadTOMLFile(localConfigPath, cfg); err != nil {
			if os.IsNotExist(err) {
				slog.Debug("no local project config file found", "path", localConfigPath)
			} else {
				return cfg, fmt.Errorf("config: loading project config %s: %w", localConfigPath, err)
			}
		} else {
			slog.Debug("loaded local project config", "path", localConfigPath)
		}
	}

	if cliOverrides != nil {
		applyCLIOverrides(cfg, cliOverrides)
	}
	applyTelemetryEnvOverrides(cfg)

	return cfg, nil
}

func getUserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		slog.Debug("could not determine home directory", "error", err)
		return ""
	}
	return filepath.Join(home, HomeDir, ConfigFileName)
}

func getLocalConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		slog.Debug("could not determine current directory", "error", err)
		return ""
	}
	return filepath.Join(cwd, HomeDir, ConfigFileName)
}

func loadTOMLFile(path string, cfg *Config) error {
	_, err := toml.DecodeFile(path, cfg)
	return err
}

func applyTelemetryEnvOverrides(cfg *Config) {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		cfg.Telemetry.Endpoint = endpoint
	}
	if serviceName := os.Getenv("OTEL_SERVICE_NAME"); serviceName != "" {
		cfg.Telemetry.ServiceName = serviceName
	}
	if disabled := os.Getenv("OTEL_SDK_DISABLED"); disabled != "" {
		val := disabled != "true" && disabled != "1"
		cfg.Telemetry.Enabled = &val
	}
}

func applyCLIOverrides(cfg *Config, o *CLIOverrides) {
	if o.SessionsRoot != "" {
		cfg.SessionsRoot = o.SessionsRoot
	}
	if o.DatabasePath != "" {
		cfg.Database.Path = o.DatabasePath
	}
	if o.CheckpointPath != "" {
		cfg.Checkpoint.Path = o.CheckpointPath
	}

	if o.Console {
		enabled := true
		cfg.Logging.Console = &enabled
	}
	if o.Log {
		enabled := true
		cfg.Logging.Log = &enabled
	}
	if o.Debug {
		enabled := true
		cfg.Logging.Debug = &enabled
	}
	if o.NoColor {
		disabled := false
		cfg.Logging.Color = &disabled
	}
	if o.Color {
		enabled := true
		cfg.Logging.Color = &enabled
	}

	if o.NoTelemetry {
		disabled := false
		cfg.Telemetry.Enabled = &disabled
	}
	if o.TelemetryEndpoint != "" {
		cfg.Telemetry.Endpoint = o.TelemetryEndpoint
	}
}

// --- Getter methods ---

// GetSessionsRoot returns the configured sessions root, or the default
// "~/.claude/projects" if unset.
func (c *Config) GetSessionsRoot() string {
	if c.SessionsRoot != "" {
		return c.SessionsRoot
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".claude", "projects")
}

// GetDatabasePath returns the configured database path, or the default
// under the user's home directory if unset.
func (c *Config) GetDatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, HomeDir, "index.db")
}

// GetCacheSizeKB returns the configured SQLite page cache size, or 0 to
// use the storage engine's default.
func (c *Config) GetCacheSizeKB() int {
	if c.Database.CacheSizeKB != nil {
		return *c.Database.CacheSizeKB
	}
	return 0
}

// GetCheckpointPath returns the configured checkpoint file path, or the
// default under the user's home directory if unset.
func (c *Config) GetCheckpointPath() string {
	if c.Checkpoint.Path != "" {
		return c.Checkpoint.Path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, HomeDir, "checkpoint.json")
}

// IsConsoleEnabled returns whether console logging is enabled. Default false.
func (c *Config) IsConsoleEnabled() bool {
	return c.Logging.Console != nil && *c.Logging.Console
}

// IsLogEnabled returns whether file logging is enabled. Default false.
func (c *Config) IsLogEnabled() bool {
	return c.Logging.Log != nil && *c.Logging.Log
}

// IsDebugEnabled returns whether debug-level logging is enabled. Default false.
func (c *Config) IsDebugEnabled() bool {
	return c.Logging.Debug != nil && *c.Logging.Debug
}

// ColorPreference reports the explicit color preference from config/flags,
// and whether one was set at all. When ok is false, the caller falls back
// to NO_COLOR/FORCE_COLOR/TTY detection.
func (c *Config) ColorPreference() (enabled, ok bool) {
	if c.Logging.Color == nil {
		return false, false
	}
	return *c.Logging.Color, true
}

// IsTelemetryEnabled reports whether telemetry should be enabled: the
// explicit setting if present, else whether an endpoint is configured.
func (c *Config) IsTelemetryEnabled() bool {
	if c.Telemetry.Enabled != nil {
		return *c.Telemetry.Enabled
	}
	return c.Telemetry.Endpoint != ""
}

// GetTelemetryEndpoint returns the configured OTLP endpoint, or "".
func (c *Config) GetTelemetryEndpoint() string {
	return c.Telemetry.Endpoint
}

// GetTelemetryServiceName returns the configured service name, or "" to
// use the default.
func (c *Config) GetTelemetryServiceName() string {
	return c.Telemetry.ServiceName
}

package lifecycle

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"
)

// Checkpoint is the on-disk progress record a sync run appends to after
// each completed session, and clears on clean completion. A later run finds
// it present only after an aborted or interrupted prior run.
type Checkpoint struct {
	StartedAt           string   `json:"started_at"`
	TotalSessions       int      `json:"total_sessions"`
	CompletedSessions   int      `json:"completed_sessions"`
	CompletedSessionIDs []string `json:"completed_session_ids"`
	LastCompletedAt     string   `json:"last_completed_at"`
}

const checkpointSchema = `{
	"type": "object",
	"required": ["started_at", "total_sessions", "completed_sessions", "completed_session_ids", "last_completed_at"],
	"properties": {
		"started_at": {"type": "string"},
		"total_sessions": {"type": "integer"},
		"completed_sessions": {"type": "integer"},
		"completed_session_ids": {"type": "array", "items": {"type": "string"}},
		"last_completed_at": {"type": "string"}
	}
}`

// DefaultCheckpointPath returns the checkpoint file location under the
// user's home directory.
func DefaultCheckpointPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("lifecycle: resolving home directory: %w", err)
	}
	return filepath.Join(home, ".cortexlog", "checkpoint.json"), nil
}

// SaveCheckpoint writes cp to path atomically: it writes to a sibling temp
// file and renames it over the destination, so a process killed mid-write
// never leaves a half-written checkpoint behind.
func SaveCheckpoint(path string, cp Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("lifecycle: marshaling checkpoint: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("lifecycle: creating checkpoint directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("lifecycle: writing checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("lifecycle: renaming checkpoint into place: %w", err)
	}
	return nil
}

// LoadCheckpoint reads and validates the checkpoint at path. Any problem —
// the file is absent, unreadable, not valid JSON, or missing/mistyped
// required fields — is treated as "no checkpoint", logged at warn level
// (except plain absence), and reported via the second return value rather
// than an error, since a corrupt checkpoint should never block a sync run.
func LoadCheckpoint(path string) (Checkpoint, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("lifecycle: failed to read checkpoint file", "path", path, "error", err)
		}
		return Checkpoint{}, false
	}

	if err := validateCheckpointShape(data); err != nil {
		slog.Warn("lifecycle: checkpoint file has unexpected shape, ignoring", "path", path, "error", err)
		return Checkpoint{}, false
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		slog.Warn("lifecycle: checkpoint file is not valid JSON, ignoring", "path", path, "error", err)
		return Checkpoint{}, false
	}
	return cp, true
}

func validateCheckpointShape(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(checkpointSchema)
	docLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return err
	}
	if !result.Valid() {
		msg := "schema validation failed"
		if errs := result.Errors(); len(errs) > 0 {
			msg = errs[0].String()
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}

// ClearCheckpoint removes the checkpoint file. It is best-effort: a missing
// file is not an error, and any other removal failure is logged, not
// returned, since the caller has already finished the work the checkpoint
// was tracking.
func ClearCheckpoint(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("lifecycle: failed to remove checkpoint file", "path", path, "error", err)
	}
}

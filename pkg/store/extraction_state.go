package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ExtractionStateRepo is the repository for extraction_state, keyed by the
// unique session_path.
type ExtractionStateRepo struct{}

// FindBySessionPath returns the extraction state for a session file path,
// or (nil, nil) if none exists yet.
func (ExtractionStateRepo) FindBySessionPath(ctx context.Context, db Execer, path string) (*ExtractionState, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, session_path, started_at, completed_at, status,
		       messages_extracted, error_message, file_mtime, file_size
		FROM extraction_state WHERE session_path = ?`, path)

	var st ExtractionState
	var status string
	if err := row.Scan(&st.ID, &st.SessionPath, &st.StartedAt, &st.CompletedAt, &status,
		&st.MessagesExtracted, &st.ErrorMessage, &st.FileMtimeUnixNano, &st.FileSize); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find extraction state for %s: %w", path, err)
	}
	st.Status = ExtractionStatus(status)
	return &st, nil
}

// Upsert inserts the extraction state row for its session_path, or updates
// the existing row in place (ON CONFLICT on the UNIQUE session_path column;
// the existing row keeps its id).
func (ExtractionStateRepo) Upsert(ctx context.Context, db Execer, st ExtractionState) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO extraction_state (id, session_path, started_at, completed_at, status,
		                               messages_extracted, error_message, file_mtime, file_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_path) DO UPDATE SET
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			status = excluded.status,
			messages_extracted = excluded.messages_extracted,
			error_message = excluded.error_message,
			file_mtime = excluded.file_mtime,
			file_size = excluded.file_size`,
		st.ID, st.SessionPath, st.StartedAt, st.CompletedAt, string(st.Status),
		st.MessagesExtracted, st.ErrorMessage, st.FileMtimeUnixNano, st.FileSize)
	if err != nil {
		return fmt.Errorf("store: upsert extraction state for %s: %w", st.SessionPath, err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ToolUseRepo is the repository for tool_uses.
type ToolUseRepo struct{}

// SaveMany inserts tool uses in batches of batchSize, with the same
// pre-existence-check duplicate accounting as MessageRepo.SaveMany (this
// table has no FTS triggers, but the contract is kept uniform across
// repositories so batch accounting behaves identically everywhere).
func (ToolUseRepo) SaveMany(ctx context.Context, db Execer, uses []ToolUse) (BatchResult, error) {
	var result BatchResult

	for start := 0; start < len(uses); start += batchSize {
		end := start + batchSize
		if end > len(uses) {
			end = len(uses)
		}
		batch := uses[start:end]

		for _, u := range batch {
			exists, err := toolUseExists(ctx, db, u.ID)
			if err != nil {
				result.Errors = append(result.Errors, BatchError{ID: u.ID, Reason: err.Error()})
				continue
			}
			if exists {
				result.Skipped++
				continue
			}

			_, err = db.ExecContext(ctx, `
				INSERT OR IGNORE INTO tool_uses (id, session_id, name, input_json, output, status, timestamp)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				u.ID, u.SessionID, u.Name, u.InputJSON, u.Output, u.Status, u.Timestamp)
			if err != nil {
				result.Errors = append(result.Errors, BatchError{ID: u.ID, Reason: err.Error()})
				continue
			}
			result.Inserted++
		}
	}

	return result, nil
}

func toolUseExists(ctx context.Context, db Execer, id string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, "SELECT 1 FROM tool_uses WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking existence of tool use %s: %w", id, err)
	}
	return true, nil
}

// FindBySession returns every tool use belonging to a session, ordered by
// timestamp ascending.
func (ToolUseRepo) FindBySession(ctx context.Context, db Execer, sessionID string) ([]ToolUse, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, session_id, name, input_json, output, status, timestamp
		FROM tool_uses
		WHERE session_id = ?
		ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: find tool uses for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []ToolUse
	for rows.Next() {
		var u ToolUse
		if err := rows.Scan(&u.ID, &u.SessionID, &u.Name, &u.InputJSON, &u.Output, &u.Status, &u.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scanning tool use row: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

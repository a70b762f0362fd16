package store

import (
	"context"
	"database/sql"
	"fmt"
)

// MessageRepo is the repository for messages_meta (and, via triggers,
// messages_fts).
type MessageRepo struct{}

// SaveMany inserts messages in batches of batchSize rows, each inside the
// caller's already-open transaction. Because messages_meta has FTS5
// external-content triggers, the reported row-change count from an INSERT
// OR IGNORE is polluted by trigger-affected rows, so duplicate accounting
// is done explicitly: each row's primary key is checked for prior existence
// before the INSERT, and inserted/skipped are counted from that check, not
// from the statement's reported changes.
func (MessageRepo) SaveMany(ctx context.Context, db Execer, messages []Message) (BatchResult, error) {
	var result BatchResult

	for start := 0; start < len(messages); start += batchSize {
		end := start + batchSize
		if end > len(messages) {
			end = len(messages)
		}
		batch := messages[start:end]

		for _, m := range batch {
			exists, err := messageExists(ctx, db, m.ID)
			if err != nil {
				result.Errors = append(result.Errors, BatchError{ID: m.ID, Reason: err.Error()})
				continue
			}
			if exists {
				result.Skipped++
				continue
			}

			_, err = db.ExecContext(ctx, `
				INSERT OR IGNORE INTO messages_meta (id, session_id, role, content, timestamp)
				VALUES (?, ?, ?, ?, ?)`,
				m.ID, m.SessionID, string(m.Role), m.Content, m.Timestamp)
			if err != nil {
				result.Errors = append(result.Errors, BatchError{ID: m.ID, Reason: err.Error()})
				continue
			}
			result.Inserted++
		}
	}

	return result, nil
}

func messageExists(ctx context.Context, db Execer, id string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, "SELECT 1 FROM messages_meta WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking existence of message %s: %w", id, err)
	}
	return true, nil
}

// FindBySession returns every message belonging to a session, ordered by
// timestamp ascending (parse order).
func (MessageRepo) FindBySession(ctx context.Context, db Execer, sessionID string) ([]Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, session_id, role, content, timestamp
		FROM messages_meta
		WHERE session_id = ?
		ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: find messages for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scanning message row: %w", err)
		}
		m.Role = Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountAll returns the total number of messages, for the stats command.
func (MessageRepo) CountAll(ctx context.Context, db Execer) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages_meta").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count messages: %w", err)
	}
	return n, nil
}

// RoleCount is one row of the role-distribution breakdown used by `stats`.
type RoleCount struct {
	Role  Role
	Count int
}

// RoleDistribution returns the message count per role across the corpus.
func (MessageRepo) RoleDistribution(ctx context.Context, db Execer) ([]RoleCount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT role, COUNT(*) FROM messages_meta GROUP BY role ORDER BY role`)
	if err != nil {
		return nil, fmt.Errorf("store: role distribution: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RoleCount
	for rows.Next() {
		var rc RoleCount
		var role string
		if err := rows.Scan(&role, &rc.Count); err != nil {
			return nil, fmt.Errorf("store: scanning role count row: %w", err)
		}
		rc.Role = Role(role)
		out = append(out, rc)
	}
	return out, rows.Err()
}

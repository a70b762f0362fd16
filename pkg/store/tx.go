package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is an immediate-mode transaction pinned to a single connection.
// database/sql's BeginTx has no portable way to request SQLite's IMMEDIATE
// locking, so Tx issues "BEGIN IMMEDIATE" directly against a dedicated
// *sql.Conn and commits/rolls back the same way.
type Tx struct {
	*sql.Conn
}

// BeginImmediate starts an immediate-mode transaction. The sync orchestrator
// uses this for each session's atomic commit (session row, messages, tool
// uses, extraction state all-or-nothing).
func (s *Store) BeginImmediate(ctx context.Context) (*Tx, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: acquiring connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("store: begin immediate: %w", err)
	}
	return &Tx{Conn: conn}, nil
}

// Commit commits the transaction and releases the pinned connection.
func (t *Tx) Commit(ctx context.Context) error {
	_, err := t.ExecContext(ctx, "COMMIT")
	closeErr := t.Close()
	if err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return closeErr
}

// Rollback rolls back the transaction and releases the pinned connection.
// After a failed Commit has already closed the connection it does nothing
// and returns an error wrapping sql.ErrConnDone.
func (t *Tx) Rollback(ctx context.Context) error {
	_, err := t.ExecContext(ctx, "ROLLBACK")
	closeErr := t.Close()
	if err != nil {
		return fmt.Errorf("store: rollback: %w", err)
	}
	return closeErr
}

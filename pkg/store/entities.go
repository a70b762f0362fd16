package store

import (
	"context"
	"database/sql"
	"fmt"
)

// EntityRepo is the repository for entities, entity_sessions, and
// entity_links. Entities are optional and not required by the hot sync or
// search paths.
type EntityRepo struct{}

// FindByTypeAndName returns the entity uniquely identified by (type, name),
// or (nil, nil) if absent.
func (EntityRepo) FindByTypeAndName(ctx context.Context, db Execer, typ, name string) (*Entity, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, type, name, confidence FROM entities WHERE type = ? AND name = ?`, typ, name)

	var e Entity
	if err := row.Scan(&e.ID, &e.Type, &e.Name, &e.Confidence); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find entity %s/%s: %w", typ, name, err)
	}
	return &e, nil
}

// Save inserts or updates an entity, idempotent on (type, name).
func (EntityRepo) Save(ctx context.Context, db Execer, e Entity) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO entities (id, type, name, confidence)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(type, name) DO UPDATE SET confidence = excluded.confidence`,
		e.ID, e.Type, e.Name, e.Confidence)
	if err != nil {
		return fmt.Errorf("store: save entity %s/%s: %w", e.Type, e.Name, err)
	}
	return nil
}

// LinkSession records (or bumps the frequency of) an entity's occurrence
// within a session.
func (EntityRepo) LinkSession(ctx context.Context, db Execer, entityID, sessionID string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO entity_sessions (entity_id, session_id, frequency)
		VALUES (?, ?, 1)
		ON CONFLICT(entity_id, session_id) DO UPDATE SET frequency = frequency + 1`,
		entityID, sessionID)
	if err != nil {
		return fmt.Errorf("store: link entity %s to session %s: %w", entityID, sessionID, err)
	}
	return nil
}

package store

import (
	"context"
	"fmt"
)

// LinkRepo is the repository for links. Links are weak references: they
// name their targets by (type, id) and may dangle if the target vanishes.
type LinkRepo struct{}

// Save inserts a link, idempotently (the composite primary key makes a
// repeat insert a no-op).
func (LinkRepo) Save(ctx context.Context, db Execer, l Link) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO links (source_type, source_id, target_type, target_id, relationship, weight)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.SourceType, l.SourceID, l.TargetType, l.TargetID, l.Relationship, l.Weight)
	if err != nil {
		return fmt.Errorf("store: save link %s/%s -> %s/%s: %w", l.SourceType, l.SourceID, l.TargetType, l.TargetID, err)
	}
	return nil
}

// FindBySource returns every link originating from (sourceType, sourceID).
func (LinkRepo) FindBySource(ctx context.Context, db Execer, sourceType, sourceID string) ([]Link, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT source_type, source_id, target_type, target_id, relationship, weight
		FROM links WHERE source_type = ? AND source_id = ?`, sourceType, sourceID)
	if err != nil {
		return nil, fmt.Errorf("store: find links from %s/%s: %w", sourceType, sourceID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []Link
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.SourceType, &l.SourceID, &l.TargetType, &l.TargetID, &l.Relationship, &l.Weight); err != nil {
			return nil, fmt.Errorf("store: scanning link row: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SessionFilter composes the dynamic WHERE clause for find_filtered.
// Non-empty fields are AND-composed.
type SessionFilter struct {
	Limit         int    // 0 selects the default of 20
	ProjectFilter string // case-insensitive substring on the human project name
	SinceDate     string // start_time >= SinceDate
	BeforeDate    string // start_time <= BeforeDate
}

// SessionRepo is a thin struct over a connection handle; it holds no
// inheritance, only the SQL for the sessions table.
type SessionRepo struct{}

// FindByID returns the session with the given id, or (nil, nil) if absent.
func (SessionRepo) FindByID(ctx context.Context, db Execer, id string) (*Session, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, project_path_encoded, project_path_decoded, project_name,
		       start_time, end_time, message_count, summary
		FROM sessions WHERE id = ?`, id)

	var s Session
	if err := row.Scan(&s.ID, &s.ProjectPathEncoded, &s.ProjectPathDecoded, &s.ProjectName,
		&s.StartTime, &s.EndTime, &s.MessageCount, &s.Summary); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("store: find session %s: %w", id, err)
	}
	return &s, nil
}

// FindFiltered lists sessions matching filter, ordered by start_time DESC.
func (SessionRepo) FindFiltered(ctx context.Context, db Execer, filter SessionFilter) ([]Session, error) {
	var clauses []string
	var args []any

	if filter.ProjectFilter != "" {
		clauses = append(clauses, "LOWER(project_name) LIKE LOWER('%' || ? || '%')")
		args = append(args, filter.ProjectFilter)
	}
	if filter.SinceDate != "" {
		clauses = append(clauses, "start_time >= ?")
		args = append(args, filter.SinceDate)
	}
	if filter.BeforeDate != "" {
		clauses = append(clauses, "start_time <= ?")
		args = append(args, filter.BeforeDate)
	}

	limit := filter.Limit
	if limit == 0 {
		limit = 20
	}

	query := "SELECT id, project_path_encoded, project_path_decoded, project_name, start_time, end_time, message_count, summary FROM sessions"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_time DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: find_filtered sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.ID, &s.ProjectPathEncoded, &s.ProjectPathDecoded, &s.ProjectName,
			&s.StartTime, &s.EndTime, &s.MessageCount, &s.Summary); err != nil {
			return nil, fmt.Errorf("store: scanning session row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Upsert inserts or replaces the session row. Sessions are committed one at
// a time by the sync orchestrator, so there is no batch variant.
func (SessionRepo) Upsert(ctx context.Context, db Execer, s Session) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (id, project_path_encoded, project_path_decoded, project_name,
		                       start_time, end_time, message_count, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_path_encoded = excluded.project_path_encoded,
			project_path_decoded = excluded.project_path_decoded,
			project_name = excluded.project_name,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			message_count = excluded.message_count,
			summary = excluded.summary`,
		s.ID, s.ProjectPathEncoded, s.ProjectPathDecoded, s.ProjectName,
		s.StartTime, s.EndTime, s.MessageCount, s.Summary)
	if err != nil {
		return fmt.Errorf("store: upsert session %s: %w", s.ID, err)
	}
	return nil
}

// CountAll returns the total number of sessions, for the stats command.
func (SessionRepo) CountAll(ctx context.Context, db Execer) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sessions").Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count sessions: %w", err)
	}
	return n, nil
}

// TopProjects returns the top-N projects by session count, descending.
func (SessionRepo) TopProjects(ctx context.Context, db Execer, n int) ([]ProjectCount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT project_name, COUNT(*) AS session_count
		FROM sessions
		GROUP BY project_name
		ORDER BY session_count DESC, project_name ASC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: top projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ProjectCount
	for rows.Next() {
		var pc ProjectCount
		if err := rows.Scan(&pc.ProjectName, &pc.SessionCount); err != nil {
			return nil, fmt.Errorf("store: scanning project count row: %w", err)
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

// DateRange returns the earliest and latest session start_time in the
// store, or ok=false if there are no sessions.
func (SessionRepo) DateRange(ctx context.Context, db Execer) (earliest, latest string, ok bool, err error) {
	row := db.QueryRowContext(ctx, "SELECT MIN(start_time), MAX(start_time) FROM sessions")
	var minT, maxT sql.NullString
	if scanErr := row.Scan(&minT, &maxT); scanErr != nil {
		return "", "", false, fmt.Errorf("store: date range: %w", scanErr)
	}
	if !minT.Valid || !maxT.Valid {
		return "", "", false, nil
	}
	return minT.String, maxT.String, true, nil
}

// ProjectCount is one row of the per-project breakdown used by `stats`.
type ProjectCount struct {
	ProjectName  string
	SessionCount int
}

// Package search is the search service (C5): FTS5 MATCH queries with BM25
// ranking normalized to [0,1], snippet extraction, and AND-composed filters.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/cortexlog/cortexlog/pkg/cliutil"
	"github.com/cortexlog/cortexlog/pkg/store"
)

// Filter composes the dynamic WHERE clause applied alongside the FTS MATCH
// predicate. Non-empty/non-nil fields are AND-composed.
type Filter struct {
	ProjectFilter string
	// CaseSensitive makes ProjectFilter match on exact case instead of the
	// default case-insensitive substring match.
	CaseSensitive bool
	RoleFilter    []store.Role
	SessionFilter string
	SinceDate     string
	BeforeDate    string
}

// Result is one ranked search hit.
type Result struct {
	SessionID string
	MessageID string
	Snippet   string
	Score     float64
	Timestamp string
}

// Service executes search queries against the storage engine.
type Service struct {
	db store.Execer
}

// NewService returns a Service querying through db (the bare connection,
// or a transaction handle in tests that want transactional isolation).
func NewService(db store.Execer) *Service {
	return &Service{db: db}
}

// Search runs a full-text query. query must be non-empty once trimmed.
// limit <= 0 behaves per the CLI's boundary rules: limit == 0 returns an
// empty result set; limit < 0 is a user error.
func (svc *Service) Search(ctx context.Context, query string, limit int, filter Filter) ([]Result, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, cliutil.ValidationError{Message: "search query must not be empty"}
	}
	if limit < 0 {
		return nil, cliutil.ValidationError{Message: fmt.Sprintf("search limit must not be negative, got %d", limit)}
	}
	if limit == 0 {
		return nil, nil
	}

	sqlQuery, args := buildQuery(trimmed, limit, filter)

	rows, err := svc.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search: executing query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type rawRow struct {
		sessionID string
		messageID string
		snippet   string
		bm25      float64
		timestamp string
	}
	var raw []rawRow
	for rows.Next() {
		var r rawRow
		if err := rows.Scan(&r.sessionID, &r.messageID, &r.snippet, &r.bm25, &r.timestamp); err != nil {
			return nil, fmt.Errorf("search: scanning row: %w", err)
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search: reading rows: %w", err)
	}

	if len(raw) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(raw))
	for i, r := range raw {
		scores[i] = r.bm25
	}
	normalized := normalizeScores(scores)

	results := make([]Result, len(raw))
	for i, r := range raw {
		results[i] = Result{
			SessionID: r.sessionID,
			MessageID: r.messageID,
			Snippet:   r.snippet,
			Score:     normalized[i],
			Timestamp: r.timestamp,
		}
	}
	return results, nil
}

// buildQuery builds the FTS5 MATCH query joining messages_fts to
// messages_meta and sessions, AND-composing the supplied filters. The core
// predicate is always MATCH, never `=`, so the FTS index is used.
func buildQuery(query string, limit int, filter Filter) (string, []any) {
	var b strings.Builder
	var args []any

	b.WriteString(`
		SELECT s.id, m.id, snippet(messages_fts, 0, '<mark>', '</mark>', '...', 32),
		       bm25(messages_fts) AS rank, m.timestamp
		FROM messages_fts
		JOIN messages_meta m ON m.rowid = messages_fts.rowid
		JOIN sessions s ON s.id = m.session_id
		WHERE messages_fts MATCH ?`)
	args = append(args, query)

	if filter.ProjectFilter != "" {
		if filter.CaseSensitive {
			// GLOB is byte-for-byte case-sensitive, unlike LIKE (which SQLite
			// folds for ASCII regardless of case wrapping).
			b.WriteString(" AND s.project_name GLOB '*' || ? || '*'")
		} else {
			b.WriteString(" AND LOWER(s.project_name) LIKE LOWER('%' || ? || '%')")
		}
		args = append(args, filter.ProjectFilter)
	}
	if len(filter.RoleFilter) == 1 {
		b.WriteString(" AND m.role = ?")
		args = append(args, string(filter.RoleFilter[0]))
	} else if len(filter.RoleFilter) > 1 {
		placeholders := make([]string, len(filter.RoleFilter))
		for i, role := range filter.RoleFilter {
			placeholders[i] = "?"
			args = append(args, string(role))
		}
		b.WriteString(" AND m.role IN (" + strings.Join(placeholders, ",") + ")")
	}
	if filter.SessionFilter != "" {
		b.WriteString(" AND m.session_id = ?")
		args = append(args, filter.SessionFilter)
	}
	if filter.SinceDate != "" {
		b.WriteString(" AND m.timestamp >= ?")
		args = append(args, filter.SinceDate)
	}
	if filter.BeforeDate != "" {
		b.WriteString(" AND m.timestamp <= ?")
		args = append(args, filter.BeforeDate)
	}

	b.WriteString(" ORDER BY rank ASC LIMIT ?")
	args = append(args, limit)

	return b.String(), args
}

// normalizeScores maps raw (non-positive, more-negative-is-better) BM25
// scores to [0,1] with the best match at 1.0. A single row always scores
// 1.0. Equal scores across all rows are treated as a degenerate case with
// range = 1 rather than dividing by zero.
func normalizeScores(raw []float64) []float64 {
	out := make([]float64, len(raw))
	if len(raw) == 1 {
		out[0] = 1.0
		return out
	}

	best := raw[0]
	worst := raw[0]
	for _, r := range raw {
		if r < best {
			best = r
		}
		if r > worst {
			worst = r
		}
	}

	rng := worst - best
	if rng <= 0 {
		rng = 1
	}

	for i, r := range raw {
		out[i] = (worst - r) / rng
	}
	return out
}

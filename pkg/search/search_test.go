package search

import (
	"context"
	"strings"
	"testing"

	"github.com/cortexlog/cortexlog/pkg/store"
)

func seedStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Options{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	sessions := []store.Session{
		{ID: "s1", ProjectName: "P1", StartTime: "2024-01-01T00:00:00Z"},
		{ID: "s2", ProjectName: "P2", StartTime: "2024-01-02T00:00:00Z"},
	}
	for _, sess := range sessions {
		if err := (store.SessionRepo{}).Upsert(ctx, s.DB(), sess); err != nil {
			t.Fatalf("Upsert session: %v", err)
		}
	}

	messages := []store.Message{
		{ID: "m1", SessionID: "s1", Role: store.RoleUser, Content: "alpha beta", Timestamp: "2024-01-01T00:00:00Z"},
		{ID: "m2", SessionID: "s1", Role: store.RoleAssistant, Content: "beta beta beta gamma", Timestamp: "2024-01-01T00:00:01Z"},
		{ID: "m3", SessionID: "s2", Role: store.RoleUser, Content: "delta", Timestamp: "2024-01-02T00:00:00Z"},
	}
	if _, err := (store.MessageRepo{}).SaveMany(ctx, s.DB(), messages); err != nil {
		t.Fatalf("SaveMany: %v", err)
	}
	return s
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	s := seedStore(t)
	svc := NewService(s.DB())
	if _, err := svc.Search(context.Background(), "   ", 10, Filter{}); err == nil {
		t.Error("Search: expected error for empty query")
	}
}

func TestSearchRejectsNegativeLimit(t *testing.T) {
	s := seedStore(t)
	svc := NewService(s.DB())
	if _, err := svc.Search(context.Background(), "beta", -1, Filter{}); err == nil {
		t.Error("Search: expected error for negative limit")
	}
}

func TestSearchZeroLimitReturnsEmpty(t *testing.T) {
	s := seedStore(t)
	svc := NewService(s.DB())
	results, err := svc.Search(context.Background(), "beta", 0, Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search(limit=0) returned %d results, want 0", len(results))
	}
}

func TestSearchRankingAndSnippet(t *testing.T) {
	s := seedStore(t)
	svc := NewService(s.DB())
	results, err := svc.Search(context.Background(), "beta", 10, Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search(beta) returned %d results, want 2", len(results))
	}

	bestScoreSeen := false
	for _, r := range results {
		if r.Score < 0 || r.Score > 1 {
			t.Errorf("score %v out of [0,1]", r.Score)
		}
		if r.Score == 1.0 {
			bestScoreSeen = true
		}
		if !strings.Contains(r.Snippet, "<mark>beta</mark>") && !strings.Contains(strings.ToLower(r.Snippet), "<mark>beta</mark>") {
			t.Errorf("snippet %q does not contain <mark>beta</mark>", r.Snippet)
		}
	}
	if !bestScoreSeen {
		t.Error("expected at least one result with normalized score 1.0")
	}

	// m2 repeats "beta" three times and should rank at least as well as m1.
	if results[0].MessageID != "m2" {
		t.Errorf("results[0].MessageID = %q, want %q (more beta occurrences ranks first)", results[0].MessageID, "m2")
	}
}

func TestSearchFilterComposition(t *testing.T) {
	s := seedStore(t)
	svc := NewService(s.DB())

	results, err := svc.Search(context.Background(), "beta", 10, Filter{ProjectFilter: "P1", RoleFilter: []store.Role{store.RoleAssistant}})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].MessageID != "m2" {
		t.Fatalf("filtered Search returned %+v, want only m2", results)
	}
}

func TestSearchNoMessagesReturnsEmptyNotError(t *testing.T) {
	s, err := store.Open(store.Options{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	svc := NewService(s.DB())
	results, err := svc.Search(context.Background(), "anything", 10, Filter{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search on empty store returned %d results, want 0", len(results))
	}
}

func TestSearchFilterCaseSensitivity(t *testing.T) {
	s, err := store.Open(store.Options{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	sessions := []store.Session{
		{ID: "s1", ProjectName: "Widget", StartTime: "2024-01-01T00:00:00Z"},
		{ID: "s2", ProjectName: "widget", StartTime: "2024-01-02T00:00:00Z"},
	}
	for _, sess := range sessions {
		if err := (store.SessionRepo{}).Upsert(ctx, s.DB(), sess); err != nil {
			t.Fatalf("Upsert session: %v", err)
		}
	}
	messages := []store.Message{
		{ID: "m1", SessionID: "s1", Role: store.RoleUser, Content: "gamma", Timestamp: "2024-01-01T00:00:00Z"},
		{ID: "m2", SessionID: "s2", Role: store.RoleUser, Content: "gamma", Timestamp: "2024-01-02T00:00:00Z"},
	}
	if _, err := (store.MessageRepo{}).SaveMany(ctx, s.DB(), messages); err != nil {
		t.Fatalf("SaveMany: %v", err)
	}

	svc := NewService(s.DB())

	insensitive, err := svc.Search(ctx, "gamma", 10, Filter{ProjectFilter: "Widget", CaseSensitive: false})
	if err != nil {
		t.Fatalf("Search(case-insensitive): %v", err)
	}
	if len(insensitive) != 2 {
		t.Fatalf("case-insensitive Search returned %d results, want 2 (matches both Widget and widget)", len(insensitive))
	}

	sensitive, err := svc.Search(ctx, "gamma", 10, Filter{ProjectFilter: "Widget", CaseSensitive: true})
	if err != nil {
		t.Fatalf("Search(case-sensitive): %v", err)
	}
	if len(sensitive) != 1 || sensitive[0].MessageID != "m1" {
		t.Fatalf("case-sensitive Search returned %+v, want only m1 (exact-case Widget match)", sensitive)
	}
}

func TestBuildQueryUsesFTSMatchNotEquality(t *testing.T) {
	s := seedStore(t)

	sqlQuery, args := buildQuery("beta", 10, Filter{})

	rows, err := s.DB().QueryContext(context.Background(), "EXPLAIN QUERY PLAN "+sqlQuery, args...)
	if err != nil {
		t.Fatalf("EXPLAIN QUERY PLAN: %v", err)
	}
	defer rows.Close()

	var plan strings.Builder
	for rows.Next() {
		var id, parent, notUsed int
		var detail string
		if err := rows.Scan(&id, &parent, &notUsed, &detail); err != nil {
			t.Fatalf("scanning query plan row: %v", err)
		}
		plan.WriteString(detail)
		plan.WriteString("\n")
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("reading query plan rows: %v", err)
	}

	planText := plan.String()
	if !strings.Contains(planText, "messages_fts") {
		t.Fatalf("query plan %q does not mention messages_fts at all", planText)
	}
	// A MATCH predicate against an FTS5 table plans as a virtual table index
	// scan. A plain equality scan of messages_fts would show a bare "SCAN"
	// with no virtual table index, meaning the FTS index went unused.
	if !strings.Contains(planText, "VIRTUAL TABLE INDEX") {
		t.Fatalf("query plan %q does not show a virtual table index scan; the FTS5 MATCH predicate is not being used", planText)
	}
}

func TestNormalizeScoresSingleRow(t *testing.T) {
	got := normalizeScores([]float64{-5.0})
	if len(got) != 1 || got[0] != 1.0 {
		t.Errorf("normalizeScores single row = %v, want [1.0]", got)
	}
}

func TestNormalizeScoresDegenerateEqualRange(t *testing.T) {
	got := normalizeScores([]float64{-3.0, -3.0, -3.0})
	for _, v := range got {
		if v != 0 {
			t.Errorf("normalizeScores equal scores = %v, want all 0 (range=1 degenerate case puts them at (worst-r)/1=0)", got)
		}
	}
}

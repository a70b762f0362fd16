// Package syncer is the sync orchestrator (C6): it drives discovery, the
// incremental re-extraction decision, per-session extraction and atomic
// commit, checkpointing, and graceful abort.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cortexlog/cortexlog/pkg/discovery"
	"github.com/cortexlog/cortexlog/pkg/eventlog"
	"github.com/cortexlog/cortexlog/pkg/lifecycle"
	"github.com/cortexlog/cortexlog/pkg/store"
)

// AbortChecker reports whether a shutdown has been requested. Satisfied by
// *lifecycle.Manager; tests supply a fake to drive the abort path
// deterministically.
type AbortChecker interface {
	ShouldAbort() bool
}

// Options configures one sync run.
type Options struct {
	Force             bool
	ProjectFilter     string
	SessionFilter     string
	Quiet             bool
	Verbose           bool
	CheckpointEnabled bool
	OnProgress        func(ProgressEvent)
	OnSessionComplete func(SessionOutcome)
}

// ProgressEvent is reported after every processed session (skipped
// sessions do not trigger it).
type ProgressEvent struct {
	SessionsDiscovered int
	SessionsProcessed  int
	SessionsSkipped    int
	Current            string
}

// SessionOutcome is reported to OnSessionComplete for every session that
// reached either a successful commit or a recorded failure.
type SessionOutcome struct {
	SessionID        string
	ProjectName      string
	MessagesInserted int
	Err              error
}

// SyncError names one session whose extraction or commit failed.
type SyncError struct {
	SessionID string
	Message   string
}

// Result summarizes one sync run.
type Result struct {
	Success                 bool
	SessionsDiscovered      int
	SessionsProcessed       int
	SessionsSkipped         int
	MessagesInserted        int
	Errors                  []SyncError
	DurationMS              int64
	Aborted                 bool
	RecoveredFromCheckpoint int
}

// Syncer drives one sync run against a storage engine and session source.
type Syncer struct {
	db             *store.Store
	source         *discovery.Source
	abort          AbortChecker
	checkpointPath string

	// now is injected for deterministic duration and timestamp assertions
	// in tests; defaults to time.Now.
	now func() time.Time
}

// New constructs a Syncer. abort may be nil, in which case the run never
// aborts cooperatively (useful for tests that don't exercise C7).
func New(db *store.Store, source *discovery.Source, abort AbortChecker, checkpointPath string) *Syncer {
	return &Syncer{db: db, source: source, abort: abort, checkpointPath: checkpointPath, now: time.Now}
}

// Sync runs discovery, filtering, checkpoint recovery, and the per-session
// extract-and-commit loop described by the sync orchestrator's algorithm.
func (sy *Syncer) Sync(ctx context.Context, opts Options) (Result, error) {
	start := sy.now()
	var result Result

	discovered, err := sy.source.Discover()
	if err != nil {
		return Result{}, fmt.Errorf("syncer: discovering sessions: %w", err)
	}
	result.SessionsDiscovered = len(discovered)

	filtered := filterSessions(discovered, opts.ProjectFilter, opts.SessionFilter)

	skipSet := map[string]bool{}
	checkpoint := lifecycle.Checkpoint{
		StartedAt:     start.UTC().Format(time.RFC3339),
		TotalSessions: len(filtered),
	}
	if opts.CheckpointEnabled {
		if cp, ok := lifecycle.LoadCheckpoint(sy.checkpointPath); ok {
			for _, id := range cp.CompletedSessionIDs {
				skipSet[id] = true
				checkpoint.CompletedSessionIDs = append(checkpoint.CompletedSessionIDs, id)
			}
			checkpoint.CompletedSessions = len(checkpoint.CompletedSessionIDs)
			result.RecoveredFromCheckpoint = len(skipSet)
		}
	}

	for _, info := range filtered {
		if sy.abort != nil && sy.abort.ShouldAbort() {
			result.Aborted = true
			break
		}
		if skipSet[info.ID] {
			continue
		}

		decide, err := sy.shouldExtract(ctx, info, opts.Force)
		if err != nil {
			result.Errors = append(result.Errors, SyncError{SessionID: info.ID, Message: err.Error()})
			continue
		}
		if !decide {
			result.SessionsSkipped++
			continue
		}

		inserted, extractErr := sy.extractAndCommit(ctx, info)
		if extractErr != nil {
			result.Errors = append(result.Errors, SyncError{SessionID: info.ID, Message: extractErr.Error()})
			sy.recordErrorState(ctx, info, extractErr)
			if opts.OnSessionComplete != nil {
				opts.OnSessionComplete(SessionOutcome{SessionID: info.ID, Err: extractErr})
			}
			continue
		}

		result.SessionsProcessed++
		result.MessagesInserted += inserted

		if opts.CheckpointEnabled {
			checkpoint.CompletedSessionIDs = append(checkpoint.CompletedSessionIDs, info.ID)
			checkpoint.CompletedSessions = len(checkpoint.CompletedSessionIDs)
			checkpoint.LastCompletedAt = sy.now().UTC().Format(time.RFC3339)
			if err := lifecycle.SaveCheckpoint(sy.checkpointPath, checkpoint); err != nil {
				slog.Warn("syncer: failed to persist checkpoint", "error", err)
			}
		}

		if opts.OnSessionComplete != nil {
			opts.OnSessionComplete(SessionOutcome{
				SessionID:        info.ID,
				ProjectName:      info.ProjectPath.ProjectName(),
				MessagesInserted: inserted,
			})
		}
		if opts.OnProgress != nil {
			opts.OnProgress(ProgressEvent{
				SessionsDiscovered: result.SessionsDiscovered,
				SessionsProcessed:  result.SessionsProcessed,
				SessionsSkipped:    result.SessionsSkipped,
				Current:            info.ID,
			})
		}
	}

	if !result.Aborted && opts.CheckpointEnabled {
		lifecycle.ClearCheckpoint(sy.checkpointPath)
	}

	result.Success = !result.Aborted
	result.DurationMS = sy.now().Sub(start).Milliseconds()
	return result, nil
}

// filterSessions applies project_filter as a case-insensitive substring
// match against the decoded project path, and session_filter as an
// equality match on session id.
func filterSessions(all []discovery.SessionFileInfo, projectFilter, sessionFilter string) []discovery.SessionFileInfo {
	if projectFilter == "" && sessionFilter == "" {
		return all
	}
	pf := strings.ToLower(projectFilter)
	var out []discovery.SessionFileInfo
	for _, info := range all {
		if projectFilter != "" && !strings.Contains(strings.ToLower(info.ProjectPath.Decoded()), pf) {
			continue
		}
		if sessionFilter != "" && info.ID != sessionFilter {
			continue
		}
		out = append(out, info)
	}
	return out
}

// shouldExtract implements the re-extraction decision: force, no prior
// state, a non-complete prior state, a legacy state with no fingerprint, or
// a fingerprint mismatch against the file's current (mtime, size).
func (sy *Syncer) shouldExtract(ctx context.Context, info discovery.SessionFileInfo, force bool) (bool, error) {
	if force {
		return true, nil
	}
	st, err := (store.ExtractionStateRepo{}).FindBySessionPath(ctx, sy.db.DB(), info.Path)
	if err != nil {
		return false, fmt.Errorf("checking extraction state for %s: %w", info.ID, err)
	}
	if st == nil {
		return true, nil
	}
	if st.Status != store.StatusComplete {
		return true, nil
	}
	if st.FileMtimeUnixNano == nil || st.FileSize == nil {
		return true, nil
	}
	if *st.FileMtimeUnixNano != info.ModifiedTime.UnixNano() || *st.FileSize != info.Size {
		return true, nil
	}
	return false, nil
}

// extractAndCommit opens the session file, accumulates its events into
// domain entities, and commits them in one immediate-mode transaction:
// session row, messages, tool uses, then extraction state. Any failure
// rolls back the whole block, leaving the session eligible for retry.
func (sy *Syncer) extractAndCommit(ctx context.Context, info discovery.SessionFileInfo) (int, error) {
	ex, err := extractSession(info.Path, info.ID)
	if err != nil {
		return 0, fmt.Errorf("extracting %s: %w", info.ID, err)
	}

	toolUses := make([]store.ToolUse, 0, len(ex.toolOrder))
	for _, id := range ex.toolOrder {
		toolUses = append(toolUses, *ex.toolUses[id])
	}

	tx, err := sy.db.BeginImmediate(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction for %s: %w", info.ID, err)
	}

	session := store.Session{
		ID:                 info.ID,
		ProjectPathEncoded: info.ProjectPath.Encoded(),
		ProjectPathDecoded: info.ProjectPath.Decoded(),
		ProjectName:        info.ProjectPath.ProjectName(),
		StartTime:          ex.startTime,
		MessageCount:       len(ex.messages),
	}
	if session.StartTime == "" {
		session.StartTime = info.ModifiedTime.UTC().Format(time.RFC3339)
	}
	if ex.endTime != "" {
		endTime := ex.endTime
		session.EndTime = &endTime
	}
	if ex.summary != "" {
		summary := ex.summary
		session.Summary = &summary
	}

	if err := (store.SessionRepo{}).Upsert(ctx, tx, session); err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}

	msgResult, err := (store.MessageRepo{}).SaveMany(ctx, tx, ex.messages)
	if err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}

	if _, err := (store.ToolUseRepo{}).SaveMany(ctx, tx, toolUses); err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}

	completedAt := sy.now().UTC().Format(time.RFC3339)
	mtime := info.ModifiedTime.UnixNano()
	size := info.Size
	state := store.ExtractionState{
		ID:                uuid.NewString(),
		SessionPath:       info.Path,
		StartedAt:         completedAt,
		CompletedAt:       &completedAt,
		Status:            store.StatusComplete,
		MessagesExtracted: len(ex.messages),
		FileMtimeUnixNano: &mtime,
		FileSize:          &size,
	}
	if err := (store.ExtractionStateRepo{}).Upsert(ctx, tx, state); err != nil {
		_ = tx.Rollback(ctx)
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing session %s: %w", info.ID, err)
	}

	return msgResult.Inserted, nil
}

// recordErrorState upserts the extraction_state row to error in its own
// transaction, separate from the failed session transaction which was
// already rolled back.
func (sy *Syncer) recordErrorState(ctx context.Context, info discovery.SessionFileInfo, cause error) {
	now := sy.now().UTC().Format(time.RFC3339)
	msg := cause.Error()
	state := store.ExtractionState{
		ID:           uuid.NewString(),
		SessionPath:  info.Path,
		StartedAt:    now,
		Status:       store.StatusError,
		ErrorMessage: &msg,
	}
	if err := (store.ExtractionStateRepo{}).Upsert(ctx, sy.db.DB(), state); err != nil {
		slog.Warn("syncer: failed to record error extraction state", "session", info.ID, "error", err)
	}
}

// extracted accumulates one session's domain entities from its event
// stream, in memory, before the atomic commit.
type extracted struct {
	messages  []store.Message
	toolUses  map[string]*store.ToolUse
	toolOrder []string
	startTime string
	endTime   string
	summary   string
}

func extractSession(path, sessionID string) (extracted, error) {
	p, err := eventlog.Open(path)
	if err != nil {
		return extracted{}, err
	}
	defer func() { _ = p.Close() }()

	ex := extracted{toolUses: map[string]*store.ToolUse{}}
	for {
		ev, err := p.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return extracted{}, err
		}
		applyEvent(sessionID, &ex, ev)
	}
	return ex, nil
}

func applyEvent(sessionID string, ex *extracted, ev eventlog.Event) {
	if ev.Timestamp != "" {
		if ex.startTime == "" {
			ex.startTime = ev.Timestamp
		}
		ex.endTime = ev.Timestamp
	}

	switch ev.Type {
	case eventlog.TypeUser:
		ex.messages = append(ex.messages, store.Message{
			ID:        fallbackID(ev.UUID, sessionID, ev.LineNumber, "line"),
			SessionID: sessionID,
			Role:      store.RoleUser,
			Content:   ev.Content,
			Timestamp: ev.Timestamp,
		})

	case eventlog.TypeAssistant:
		var textParts []string
		for _, b := range ev.ContentBlocks {
			switch b.Kind {
			case eventlog.BlockText:
				textParts = append(textParts, b.Text)
			case eventlog.BlockToolUse:
				ex.upsertToolUse(store.ToolUse{
					ID:        b.ToolUseID,
					SessionID: sessionID,
					Name:      b.ToolName,
					InputJSON: marshalInput(b.ToolInput),
					Status:    "pending",
					Timestamp: ev.Timestamp,
				})
			}
		}
		if len(textParts) > 0 {
			ex.messages = append(ex.messages, store.Message{
				ID:        fallbackID(ev.UUID, sessionID, ev.LineNumber, "line"),
				SessionID: sessionID,
				Role:      store.RoleAssistant,
				Content:   strings.Join(textParts, "\n"),
				Timestamp: ev.Timestamp,
			})
		}

	case eventlog.TypeToolUse:
		ex.upsertToolUse(store.ToolUse{
			ID:        fallbackID(ev.UUID, sessionID, ev.LineNumber, "line"),
			SessionID: sessionID,
			Name:      ev.Name,
			InputJSON: marshalInput(ev.Input),
			Status:    "pending",
			Timestamp: ev.Timestamp,
		})

	case eventlog.TypeToolResult:
		status := "success"
		if ev.IsError {
			status = "error"
		}
		content := ev.Content
		if existing, ok := ex.toolUses[ev.ToolUseID]; ok {
			existing.Output = &content
			existing.Status = status
		} else {
			ex.upsertToolUse(store.ToolUse{
				ID:        ev.ToolUseID,
				SessionID: sessionID,
				Output:    &content,
				Status:    status,
				Timestamp: ev.Timestamp,
			})
		}

	case eventlog.TypeSummary:
		ex.summary = ev.Content

	case eventlog.TypeSystem:
		ex.messages = append(ex.messages, store.Message{
			ID:        fallbackID("", sessionID, ev.LineNumber, "sys"),
			SessionID: sessionID,
			Role:      store.RoleSystem,
			Content:   systemContent(ev),
			Timestamp: ev.Timestamp,
		})

	case eventlog.TypeSkipped:
		// Not persisted; already classified by the parser.
	}
}

func (ex *extracted) upsertToolUse(tu store.ToolUse) {
	if existing, ok := ex.toolUses[tu.ID]; ok {
		if tu.Name != "" {
			existing.Name = tu.Name
		}
		if tu.InputJSON != "" {
			existing.InputJSON = tu.InputJSON
		}
		if tu.Output != nil {
			existing.Output = tu.Output
		}
		if tu.Status != "" {
			existing.Status = tu.Status
		}
		return
	}
	tuCopy := tu
	ex.toolUses[tu.ID] = &tuCopy
	ex.toolOrder = append(ex.toolOrder, tu.ID)
}

func fallbackID(uuid, sessionID string, lineNumber int, kind string) string {
	if uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%s-%s-%d", sessionID, kind, lineNumber)
}

func marshalInput(input map[string]any) string {
	if input == nil {
		return "{}"
	}
	data, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func systemContent(ev eventlog.Event) string {
	if ev.Data == nil {
		return ev.Subtype
	}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return ev.Subtype
	}
	return fmt.Sprintf("%s: %s", ev.Subtype, data)
}

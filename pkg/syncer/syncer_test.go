package syncer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cortexlog/cortexlog/pkg/discovery"
	"github.com/cortexlog/cortexlog/pkg/lifecycle"
	"github.com/cortexlog/cortexlog/pkg/pathcodec"
	"github.com/cortexlog/cortexlog/pkg/store"
)

type line map[string]any

func writeSessionFile(t *testing.T, root, project, sessionID string, lines []line, at time.Time) string {
	t.Helper()
	dir := filepath.Join(root, project)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(dir, sessionID+".jsonl")

	var buf []byte
	for _, l := range lines {
		data, err := json.Marshal(l)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(path, at, at); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}
	return path
}

func userLine(uuid, content, ts string) line {
	return line{"type": "user", "uuid": uuid, "content": content, "timestamp": ts}
}

func assistantLine(uuid, text, ts string) line {
	return line{
		"type": "assistant", "uuid": uuid, "timestamp": ts,
		"content_blocks": []map[string]any{{"type": "text", "text": text}},
	}
}

func openTestSyncer(t *testing.T, root string, abort AbortChecker) (*Syncer, *store.Store, string) {
	t.Helper()
	s, err := store.Open(store.Options{Path: ":memory:"})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	resolver := pathcodec.NewResolver(root)
	source := discovery.NewSource(root, resolver)
	checkpointPath := filepath.Join(t.TempDir(), "checkpoint.json")

	sy := New(s, source, abort, checkpointPath)
	return sy, s, checkpointPath
}

func TestFreshSyncProcessesAllSessions(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	writeSessionFile(t, root, "proj-one", "s1", []line{
		userLine("u1", "alpha beta", "2024-01-01T00:00:00Z"),
	}, base)
	writeSessionFile(t, root, "proj-one", "s2", []line{
		userLine("u2", "beta gamma", "2024-01-01T00:01:00Z"),
	}, base)
	writeSessionFile(t, root, "proj-two", "s3", []line{
		userLine("u3", "delta", "2024-01-01T00:02:00Z"),
		assistantLine("u4", "omega", "2024-01-01T00:03:00Z"),
	}, base)

	sy, s, checkpointPath := openTestSyncer(t, root, nil)

	result, err := sy.Sync(context.Background(), Options{CheckpointEnabled: true})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}

	if result.SessionsDiscovered != 3 || result.SessionsProcessed != 3 {
		t.Errorf("discovered=%d processed=%d, want 3 and 3", result.SessionsDiscovered, result.SessionsProcessed)
	}
	if result.MessagesInserted != 4 {
		t.Errorf("MessagesInserted = %d, want 4", result.MessagesInserted)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Errors = %v, want none", result.Errors)
	}

	count, err := (store.SessionRepo{}).CountAll(context.Background(), s.DB())
	if err != nil {
		t.Fatalf("CountAll: %v", err)
	}
	if count != 3 {
		t.Errorf("sessions table has %d rows, want 3", count)
	}

	if _, err := os.Stat(checkpointPath); !os.IsNotExist(err) {
		t.Error("checkpoint file should not exist after a clean sync")
	}
}

func TestIncrementalSkipUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writeSessionFile(t, root, "proj", "s1", []line{userLine("u1", "hi", "2024-01-01T00:00:00Z")}, base)

	sy, _, _ := openTestSyncer(t, root, nil)

	if _, err := sy.Sync(context.Background(), Options{}); err != nil {
		t.Fatalf("first Sync: %v", err)
	}

	result, err := sy.Sync(context.Background(), Options{})
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if result.SessionsProcessed != 0 || result.SessionsSkipped != 1 {
		t.Errorf("processed=%d skipped=%d, want 0 and 1", result.SessionsProcessed, result.SessionsSkipped)
	}
}

func TestTouchedFileIsReExtracted(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	path := writeSessionFile(t, root, "proj", "s1", []line{userLine("u1", "hi", "2024-01-01T00:00:00Z")}, base)

	sy, _, _ := openTestSyncer(t, root, nil)
	if _, err := sy.Sync(context.Background(), Options{}); err != nil {
		t.Fatalf("first Sync: %v", err)
	}

	later := base.Add(1 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	result, err := sy.Sync(context.Background(), Options{})
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if result.SessionsProcessed != 1 {
		t.Errorf("SessionsProcessed = %d, want 1 after touching the file", result.SessionsProcessed)
	}
}

func TestForceReprocessesEverything(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writeSessionFile(t, root, "proj", "s1", []line{userLine("u1", "hi", "2024-01-01T00:00:00Z")}, base)

	sy, _, _ := openTestSyncer(t, root, nil)
	if _, err := sy.Sync(context.Background(), Options{}); err != nil {
		t.Fatalf("first Sync: %v", err)
	}

	result, err := sy.Sync(context.Background(), Options{Force: true})
	if err != nil {
		t.Fatalf("forced Sync: %v", err)
	}
	if result.SessionsProcessed != 1 {
		t.Errorf("SessionsProcessed = %d, want 1 with --force", result.SessionsProcessed)
	}
}

type fakeAbort struct {
	triggered bool
}

func (f *fakeAbort) ShouldAbort() bool {
	return f.triggered
}

func TestInterruptAndResume(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		writeSessionFile(t, root, "proj", sessionName(i), []line{
			userLine(sessionName(i)+"-u", "content", "2024-01-01T00:00:00Z"),
		}, base)
	}

	completed := 0
	abort := &fakeAbort{}
	sy, s, checkpointPath := openTestSyncer(t, root, abort)

	result, err := sy.Sync(context.Background(), Options{
		CheckpointEnabled: true,
		OnSessionComplete: func(SessionOutcome) {
			completed++
			if completed == 2 {
				abort.triggered = true
			}
		},
	})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !result.Aborted {
		t.Error("expected Aborted=true")
	}
	if result.SessionsProcessed != 2 {
		t.Errorf("SessionsProcessed = %d, want 2", result.SessionsProcessed)
	}
	if _, err := os.Stat(checkpointPath); err != nil {
		t.Errorf("expected checkpoint file to exist after interruption: %v", err)
	}

	sy2 := New(s, discovery.NewSource(root, pathcodec.NewResolver(root)), nil, checkpointPath)
	result2, err := sy2.Sync(context.Background(), Options{CheckpointEnabled: true})
	if err != nil {
		t.Fatalf("resume Sync: %v", err)
	}
	if result2.RecoveredFromCheckpoint != 2 {
		t.Errorf("RecoveredFromCheckpoint = %d, want 2", result2.RecoveredFromCheckpoint)
	}
	if result2.SessionsProcessed != 3 {
		t.Errorf("SessionsProcessed = %d, want 3", result2.SessionsProcessed)
	}
	if _, err := os.Stat(checkpointPath); !os.IsNotExist(err) {
		t.Error("checkpoint should be cleared after the resume run completes cleanly")
	}

	count, err := (store.SessionRepo{}).CountAll(context.Background(), s.DB())
	if err != nil {
		t.Fatalf("CountAll: %v", err)
	}
	if count != 5 {
		t.Errorf("sessions table has %d rows, want 5", count)
	}
}

func sessionName(i int) string {
	return "s" + string(rune('0'+i))
}

func TestProjectFilterLimitsProcessedSessions(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writeSessionFile(t, root, "alpha-proj", "s1", []line{userLine("u1", "x", "2024-01-01T00:00:00Z")}, base)
	writeSessionFile(t, root, "beta-proj", "s2", []line{userLine("u2", "y", "2024-01-01T00:00:00Z")}, base)

	sy, _, _ := openTestSyncer(t, root, nil)
	result, err := sy.Sync(context.Background(), Options{ProjectFilter: "alpha"})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.SessionsProcessed != 1 {
		t.Errorf("SessionsProcessed = %d, want 1 with project filter", result.SessionsProcessed)
	}
}

func TestCorruptCheckpointIsIgnoredWithFullSync(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writeSessionFile(t, root, "proj", "s1", []line{userLine("u1", "x", "2024-01-01T00:00:00Z")}, base)

	sy, _, checkpointPath := openTestSyncer(t, root, nil)
	if err := os.WriteFile(checkpointPath, []byte("not json"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	result, err := sy.Sync(context.Background(), Options{CheckpointEnabled: true})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.RecoveredFromCheckpoint != 0 || result.SessionsProcessed != 1 {
		t.Errorf("got recovered=%d processed=%d, want 0 and 1 (corrupt checkpoint ignored)",
			result.RecoveredFromCheckpoint, result.SessionsProcessed)
	}
}

func TestMalformedSessionLineDoesNotAbortSync(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	dir := filepath.Join(root, "proj")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(dir, "s1.jsonl")
	content := "{not valid json\n" + `{"type":"user","uuid":"u1","content":"ok","timestamp":"2024-01-01T00:00:00Z"}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Chtimes(path, base, base); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	sy, s, _ := openTestSyncer(t, root, nil)
	result, err := sy.Sync(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.SessionsProcessed != 1 || len(result.Errors) != 0 {
		t.Errorf("got processed=%d errors=%v, want 1 and none (malformed line is skipped, not fatal)",
			result.SessionsProcessed, result.Errors)
	}

	n, err := (store.MessageRepo{}).CountAll(context.Background(), s.DB())
	if err != nil {
		t.Fatalf("CountAll: %v", err)
	}
	if n != 1 {
		t.Errorf("messages_meta has %d rows, want 1 (only the valid line)", n)
	}
}

func TestAbortBeforeAnySessionReportsZeroProcessed(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	writeSessionFile(t, root, "proj", "s1", []line{userLine("u1", "x", "2024-01-01T00:00:00Z")}, base)

	abort := &fakeAbort{triggered: true}
	sy, _, _ := openTestSyncer(t, root, abort)

	result, err := sy.Sync(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !result.Aborted || result.SessionsProcessed != 0 {
		t.Errorf("got aborted=%v processed=%d, want aborted=true processed=0", result.Aborted, result.SessionsProcessed)
	}
}

func TestLifecycleManagerSatisfiesAbortChecker(t *testing.T) {
	var _ AbortChecker = (*lifecycle.Manager)(nil)
}

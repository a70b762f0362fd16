package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestDiscoverFlatSessions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "-Users-test-proj", "session-a.jsonl"), "{}\n")
	writeFile(t, filepath.Join(root, "-Users-test-proj", "session-b.jsonl"), "{}\n")
	writeFile(t, filepath.Join(root, "-Users-test-proj", "not-a-session.txt"), "ignored")

	src := NewSource(root, nil)
	infos, err := src.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("Discover() returned %d sessions, want 2", len(infos))
	}
	for _, info := range infos {
		if info.ID != "session-a" && info.ID != "session-b" {
			t.Errorf("unexpected session id %q", info.ID)
		}
		if info.ProjectPath.Encoded() != "-Users-test-proj" {
			t.Errorf("ProjectPath.Encoded() = %q, want %q", info.ProjectPath.Encoded(), "-Users-test-proj")
		}
	}
}

func TestDiscoverSubagentSessions(t *testing.T) {
	root := t.TempDir()
	projDir := filepath.Join(root, "-Users-test-proj")
	writeFile(t, filepath.Join(projDir, "session-a.jsonl"), "{}\n")
	writeFile(t, filepath.Join(projDir, "session-a", "subagents", "sub-1.jsonl"), "{}\n")
	writeFile(t, filepath.Join(projDir, "session-a", "subagents", "sub-2.jsonl"), "{}\n")

	src := NewSource(root, nil)
	infos, err := src.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("Discover() returned %d sessions, want 3 (1 parent + 2 subagent)", len(infos))
	}

	var foundSub1, foundSub2 bool
	for _, info := range infos {
		if info.ID == "sub-1" {
			foundSub1 = true
		}
		if info.ID == "sub-2" {
			foundSub2 = true
		}
	}
	if !foundSub1 || !foundSub2 {
		t.Errorf("expected both subagent sessions discovered, got foundSub1=%v foundSub2=%v", foundSub1, foundSub2)
	}
}

func TestDiscoverSkipsNonDirectoryRootChildren(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "stray-file.txt"), "ignored")
	writeFile(t, filepath.Join(root, "-Users-test-proj", "session-a.jsonl"), "{}\n")

	src := NewSource(root, nil)
	infos, err := src.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("Discover() returned %d sessions, want 1", len(infos))
	}
}

func TestFindSessionFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "-Users-test-proj", "session-a.jsonl")
	writeFile(t, path, "{}\n")

	src := NewSource(root, nil)
	got, ok := src.FindSessionFile("session-a")
	if !ok {
		t.Fatal("FindSessionFile: expected found")
	}
	if got != path {
		t.Errorf("FindSessionFile() = %q, want %q", got, path)
	}

	if _, ok := src.FindSessionFile("does-not-exist"); ok {
		t.Error("FindSessionFile: expected not found for unknown id")
	}
}

func TestDiscoverReportsModifiedTimeAndSize(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "-Users-test-proj", "session-a.jsonl")
	writeFile(t, path, "{\"hello\":\"world\"}\n")

	src := NewSource(root, nil)
	infos, err := src.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("Discover() returned %d sessions, want 1", len(infos))
	}
	info := infos[0]
	if info.Size == 0 {
		t.Error("expected non-zero Size")
	}
	if time.Since(info.ModifiedTime) > time.Minute {
		t.Errorf("ModifiedTime looks stale: %v", info.ModifiedTime)
	}
}

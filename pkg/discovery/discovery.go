// Package discovery enumerates session files under a sessions root directory,
// including nested subagent sessions, yielding stable metadata tuples for the
// sync orchestrator to consult.
package discovery

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cortexlog/cortexlog/pkg/pathcodec"
)

// SessionFileInfo is a discovered session file and its identifying metadata.
type SessionFileInfo struct {
	ID           string
	Path         string
	ProjectPath  pathcodec.ProjectPath
	ModifiedTime time.Time
	Size         int64
}

// Source discovers session files under a sessions root directory.
type Source struct {
	root     string
	resolver *pathcodec.Resolver
}

// NewSource returns a Source rooted at root. resolver may be nil, in which
// case project names are left at their last-segment fallback.
func NewSource(root string, resolver *pathcodec.Resolver) *Source {
	return &Source{root: root, resolver: resolver}
}

// Discover returns every session file under the sessions root, in no
// particular order. Directory read errors on individual nodes are logged
// and that node is skipped; discovery continues over the rest of the tree.
func (s *Source) Discover() ([]SessionFileInfo, error) {
	projectEntries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}

	var results []SessionFileInfo
	for _, projectEntry := range projectEntries {
		if !projectEntry.IsDir() {
			continue
		}

		projectDirName := projectEntry.Name()
		projectDir := filepath.Join(s.root, projectDirName)

		projectPath, err := pathcodec.FromEncoded(projectDirName)
		if err != nil {
			slog.Warn("discovery: skipping project directory with invalid encoded name", "dir", projectDirName, "error", err)
			continue
		}
		if s.resolver != nil {
			projectPath = s.resolver.Resolve(projectPath)
		}

		sessionEntries, err := os.ReadDir(projectDir)
		if err != nil {
			slog.Warn("discovery: failed to read project directory", "dir", projectDir, "error", err)
			continue
		}

		for _, sessionEntry := range sessionEntries {
			if sessionEntry.IsDir() || !strings.HasSuffix(sessionEntry.Name(), ".jsonl") {
				continue
			}

			id := strings.TrimSuffix(sessionEntry.Name(), ".jsonl")
			path := filepath.Join(projectDir, sessionEntry.Name())

			info, err := sessionEntry.Info()
			if err != nil {
				slog.Warn("discovery: failed to stat session file", "path", path, "error", err)
				continue
			}

			results = append(results, SessionFileInfo{
				ID:           id,
				Path:         path,
				ProjectPath:  projectPath,
				ModifiedTime: info.ModTime(),
				Size:         info.Size(),
			})

			results = append(results, s.discoverSubagents(projectDir, id, projectPath)...)
		}
	}

	return results, nil
}

// discoverSubagents looks for a sibling directory named after the session id
// containing a subagents/ directory, and yields each .jsonl file inside it as
// an additional session owned by the same project.
func (s *Source) discoverSubagents(projectDir, sessionID string, projectPath pathcodec.ProjectPath) []SessionFileInfo {
	subagentsDir := filepath.Join(projectDir, sessionID, "subagents")
	entries, err := os.ReadDir(subagentsDir)
	if err != nil {
		return nil
	}

	var results []SessionFileInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}

		id := strings.TrimSuffix(entry.Name(), ".jsonl")
		path := filepath.Join(subagentsDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			slog.Warn("discovery: failed to stat subagent session file", "path", path, "error", err)
			continue
		}

		results = append(results, SessionFileInfo{
			ID:           id,
			Path:         path,
			ProjectPath:  projectPath,
			ModifiedTime: info.ModTime(),
			Size:         info.Size(),
		})
	}
	return results
}

// FindSessionFile performs a reverse lookup from session id to file path.
// It is a straightforward full scan over Discover's results; no command
// calls it.
func (s *Source) FindSessionFile(id string) (string, bool) {
	all, err := s.Discover()
	if err != nil {
		return "", false
	}
	for _, info := range all {
		if info.ID == id {
			return info.Path, true
		}
	}
	return "", false
}

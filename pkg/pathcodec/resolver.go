package pathcodec

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// candidate is a real subdirectory name paired with its encoded form.
type candidate struct {
	name    string
	encoded string
}

// Resolver recovers the true last-segment project name for an encoded
// project path by walking the real filesystem starting at a configured
// root, since the encoding collapses distinct characters onto `-`.
//
// Both per-directory listings and the final encoded-to-name resolution are
// cached so repeated discovery stays O(depth) after warmup.
type Resolver struct {
	root string

	mu          sync.Mutex
	dirListings map[string][]candidate
	resolved    map[string]string
}

// NewResolver returns a Resolver that walks the real filesystem starting at
// root (typically the directory that contains the user's actual projects,
// e.g. the parent of the current working directory tree).
func NewResolver(root string) *Resolver {
	return &Resolver{
		root:        root,
		dirListings: make(map[string][]candidate),
		resolved:    make(map[string]string),
	}
}

// Resolve refines p's ProjectName by walking the filesystem. On any
// failure to find a better name it returns p unchanged (the caller already
// has the last-segment fallback as ProjectName).
func (r *Resolver) Resolve(p ProjectPath) ProjectPath {
	if r == nil || r.root == "" {
		return p
	}

	r.mu.Lock()
	if name, ok := r.resolved[p.encoded]; ok {
		r.mu.Unlock()
		return p.WithProjectName(name)
	}
	r.mu.Unlock()

	name, ok := r.resolveAt(r.root, p.encoded)
	if !ok {
		return p
	}

	r.mu.Lock()
	r.resolved[p.encoded] = name
	r.mu.Unlock()

	return p.WithProjectName(name)
}

// resolveAt implements the greedy-longest-match walk with a hidden/virtual
// directory probe fallback, per the name-resolver contract: at each level,
// list real subdirectories, encode each, sort by encoded length descending,
// and attempt a prefix match against the remaining encoded tail.
func (r *Resolver) resolveAt(dir, tail string) (string, bool) {
	candidates := r.listDir(dir)

	for _, c := range candidates {
		if c.encoded == tail {
			return c.name, true
		}
	}
	for _, c := range candidates {
		if strings.HasPrefix(tail, c.encoded+"-") {
			remainder := tail[len(c.encoded)+1:]
			sub := filepath.Join(dir, c.name)
			if name, ok := r.resolveAt(sub, remainder); ok {
				return name, true
			}
		}
	}

	// No match among listed entries: probe hidden/virtual directories that
	// readdir does not surface but that stat can still confirm.
	segments := strings.Split(tail, "-")
	n := len(segments)
	for k := 1; k < n; k++ {
		candidateName := strings.Join(segments[:k], "-")
		fullPath := filepath.Join(dir, candidateName)
		info, err := os.Stat(fullPath)
		if err != nil || !info.IsDir() {
			continue
		}
		remainder := strings.Join(segments[k:], "-")
		if name, ok := r.resolveAt(fullPath, remainder); ok {
			return name, true
		}
	}

	return "", false
}

func (r *Resolver) listDir(dir string) []candidate {
	r.mu.Lock()
	if cached, ok := r.dirListings[dir]; ok {
		r.mu.Unlock()
		return cached
	}
	r.mu.Unlock()

	entries, err := os.ReadDir(dir)
	var candidates []candidate
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			candidates = append(candidates, candidate{name: e.Name(), encoded: Encode(e.Name())})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return len(candidates[i].encoded) > len(candidates[j].encoded)
	})

	r.mu.Lock()
	r.dirListings[dir] = candidates
	r.mu.Unlock()

	return candidates
}

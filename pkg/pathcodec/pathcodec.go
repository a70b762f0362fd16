// Package pathcodec implements the lossy encoding used to name project
// directories under a sessions root, and the best-effort decoder and
// filesystem-walking resolver that recover a human project name from it.
package pathcodec

import (
	"fmt"
	"regexp"
	"strings"
)

// Encode applies the canonical, lossy transform to a decoded filesystem path:
// `:\` becomes `--`, any remaining `\` becomes `-`, `/` becomes `-`, and space
// becomes `-`. The transform is not injective: backslash, forward slash,
// space, and a literal hyphen all collapse onto `-` in the general case.
func Encode(decoded string) string {
	s := strings.ReplaceAll(decoded, `:\`, "--")
	s = strings.ReplaceAll(s, `\`, "-")
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, " ", "-")
	return s
}

var winDriveRe = regexp.MustCompile(`^[A-Za-z]--`)

// Decode best-effort reverses Encode. The result is informational only and
// must never be treated as a reliable round-trip of the original path.
func Decode(encoded string) string {
	if winDriveRe.MatchString(encoded) {
		drive := encoded[:1]
		rest := strings.ReplaceAll(encoded[3:], "-", `\`)
		return drive + `:\` + rest
	}
	return strings.ReplaceAll(encoded, "-", "/")
}

// ProjectPath is the value object identifying a project by its encoded
// directory name. Equality is defined over Encoded alone: Decoded is a lossy,
// best-effort reconstruction and two distinct real paths can share an
// encoded form.
type ProjectPath struct {
	encoded     string
	decoded     string
	projectName string
}

// FromEncoded constructs a ProjectPath from an encoded directory name.
func FromEncoded(encoded string) (ProjectPath, error) {
	if strings.TrimSpace(encoded) == "" {
		return ProjectPath{}, fmt.Errorf("pathcodec: encoded project path must not be empty")
	}
	return ProjectPath{
		encoded:     encoded,
		decoded:     Decode(encoded),
		projectName: lastSegment(encoded),
	}, nil
}

// FromDecoded constructs a ProjectPath from a real filesystem path,
// deriving its canonical encoded form.
func FromDecoded(decoded string) (ProjectPath, error) {
	if strings.TrimSpace(decoded) == "" {
		return ProjectPath{}, fmt.Errorf("pathcodec: decoded project path must not be empty")
	}
	encoded := Encode(decoded)
	return ProjectPath{
		encoded:     encoded,
		decoded:     decoded,
		projectName: lastSegment(encoded),
	}, nil
}

func lastSegment(encoded string) string {
	segs := strings.Split(encoded, "-")
	for i := len(segs) - 1; i >= 0; i-- {
		if segs[i] != "" {
			return segs[i]
		}
	}
	return encoded
}

// Encoded returns the canonical identifier.
func (p ProjectPath) Encoded() string { return p.encoded }

// Decoded returns the best-effort reconstructed filesystem path.
func (p ProjectPath) Decoded() string { return p.decoded }

// ProjectName returns the current best guess at the human project name:
// initially the last encoded segment, refined by Resolver.Resolve.
func (p ProjectPath) ProjectName() string { return p.projectName }

// WithProjectName returns a copy of p with its project name refined, as
// produced by a filesystem walk. Encoded and Decoded are unchanged.
func (p ProjectPath) WithProjectName(name string) ProjectPath {
	p.projectName = name
	return p
}

// Equal compares two ProjectPaths by their canonical encoded form only.
func (p ProjectPath) Equal(other ProjectPath) bool {
	return p.encoded == other.encoded
}

func (p ProjectPath) IsZero() bool {
	return p.encoded == ""
}

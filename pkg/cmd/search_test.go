package cmd

import (
	"testing"

	"github.com/cortexlog/cortexlog/pkg/store"
)

func TestParseRoleFilter(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		want      []store.Role
		wantError bool
	}{
		{"empty means no restriction", "", nil, false},
		{"all means no restriction", "all", nil, false},
		{"All is case-insensitive", "All", nil, false},
		{"single role", "user", []store.Role{store.RoleUser}, false},
		{"comma list", "user,assistant", []store.Role{store.RoleUser, store.RoleAssistant}, false},
		{"whitespace tolerant", " user , system ", []store.Role{store.RoleUser, store.RoleSystem}, false},
		{"unknown role", "bogus", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRoleFilter(tt.value)
			if tt.wantError {
				if err == nil {
					t.Fatalf("parseRoleFilter(%q) = nil error, want error", tt.value)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRoleFilter(%q): %v", tt.value, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseRoleFilter(%q) = %v, want %v", tt.value, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("parseRoleFilter(%q)[%d] = %v, want %v", tt.value, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRenderSnippetStripsMarksWithoutColor(t *testing.T) {
	setColorForTest(t, false, true)

	got := renderSnippet("the <mark>answer</mark> is 42")
	want := "the answer is 42"
	if got != want {
		t.Errorf("renderSnippet() = %q, want %q", got, want)
	}
}

func TestRenderSnippetColorizesMarksWithColor(t *testing.T) {
	setColorForTest(t, true, true)

	got := renderSnippet("the <mark>answer</mark> is 42")
	if got == "the <mark>answer</mark> is 42" {
		t.Error("renderSnippet() left <mark> tags unconverted with color enabled")
	}
}

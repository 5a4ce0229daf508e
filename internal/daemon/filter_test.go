package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/retags/retags/internal/config"
)

// setupProject creates a canonical project root with a few files and
// version-control directories.
func setupProject(t *testing.T) string {
	t.Helper()

	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to resolve temp dir: %v", err)
	}

	for _, dir := range []string{".git/objects", ".hg", ".svn", "src", "build"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatalf("Failed to create %s: %v", dir, err)
		}
	}
	for _, file := range []string{"main.c", "src/util.c", ".git/HEAD", ".git/objects/ab", ".hg/store", ".svn/entries", "build/out.c", "tags"} {
		writeFile(t, filepath.Join(root, file), "x")
	}
	return root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestFilter_IsIgnored(t *testing.T) {
	root := setupProject(t)
	f, err := NewFilter(root, filepath.Join(root, "tags"), FilterOptions{})
	if err != nil {
		t.Fatalf("NewFilter() failed: %v", err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"source file", "main.c", false},
		{"nested source file", "src/util.c", false},
		{"directory", "src", true},
		{"git metadata", ".git/HEAD", true},
		{"nested git metadata", ".git/objects/ab", true},
		{"mercurial metadata", ".hg/store", true},
		{"subversion metadata", ".svn/entries", true},
		{"tag file", "tags", true},
		{"missing file", "gone.c", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(root, filepath.FromSlash(tt.path))
			if got := f.IsIgnored(path); got != tt.want {
				t.Errorf("IsIgnored(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestFilter_Excludes(t *testing.T) {
	root := setupProject(t)
	f, err := NewFilter(root, filepath.Join(root, "tags"), FilterOptions{
		Excludes: []string{"**/build/**"},
	})
	if err != nil {
		t.Fatalf("NewFilter() failed: %v", err)
	}

	if !f.IsIgnored(filepath.Join(root, "build", "out.c")) {
		t.Error("build/out.c should be excluded")
	}
	if f.IsIgnored(filepath.Join(root, "main.c")) {
		t.Error("main.c should not be excluded")
	}
	if !f.SkipDir(filepath.Join(root, "build")) {
		t.Error("build directory should be skipped")
	}
}

// TestFilter_SymlinkedTagFile verifies events for a tag file reached through a
// symlink are recognized as the tag file.
func TestFilter_SymlinkedTagFile(t *testing.T) {
	root := setupProject(t)
	if err := os.Remove(filepath.Join(root, "tags")); err != nil {
		t.Fatalf("Failed to remove tags: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, ".cache"), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	writeFile(t, filepath.Join(root, ".cache", "tags"), "x")
	if err := os.Symlink(filepath.Join(root, ".cache", "tags"), filepath.Join(root, "tags")); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	f, err := NewFilter(root, config.ResolveTagFile(root, "tags"), FilterOptions{})
	if err != nil {
		t.Fatalf("NewFilter() failed: %v", err)
	}

	for _, name := range []string{"tags", filepath.Join(".cache", "tags")} {
		canonical, err := Canonicalize(root, name)
		if err != nil {
			t.Fatalf("Canonicalize(%s) failed: %v", name, err)
		}
		if !f.IsIgnored(canonical) {
			t.Errorf("%s (canonical %s) should be ignored as the tag file", name, canonical)
		}
	}
}

func TestFilter_InvalidPattern(t *testing.T) {
	_, err := NewFilter("/p", "/p/tags", FilterOptions{Excludes: []string{"[unclosed"}})
	if !errors.Is(err, ErrInvalidPattern) {
		t.Errorf("expected ErrInvalidPattern, got %v", err)
	}
}

func TestFilter_SkipDir(t *testing.T) {
	root := setupProject(t)
	scratch := filepath.Join(root, "scratch")
	f, err := NewFilter(root, filepath.Join(root, "tags"), FilterOptions{ScratchDir: scratch})
	if err != nil {
		t.Fatalf("NewFilter() failed: %v", err)
	}

	tests := []struct {
		dir  string
		want bool
	}{
		{root, false},
		{filepath.Join(root, "src"), false},
		{filepath.Join(root, ".git"), true},
		{filepath.Join(root, ".git", "objects"), true},
		{filepath.Join(root, ".hg"), true},
		{filepath.Join(root, ".svn"), true},
		{scratch, true},
	}

	for _, tt := range tests {
		if got := f.SkipDir(tt.dir); got != tt.want {
			t.Errorf("SkipDir(%s) = %v, want %v", tt.dir, got, tt.want)
		}
	}
}

func TestFilter_ScratchFilesIgnored(t *testing.T) {
	root := setupProject(t)
	scratch := filepath.Join(root, ".retags-scratch")
	if err := os.MkdirAll(scratch, 0755); err != nil {
		t.Fatalf("Failed to create scratch: %v", err)
	}
	tmp := filepath.Join(scratch, "tags-1.tmp")
	writeFile(t, tmp, "x")

	f, err := NewFilter(root, filepath.Join(root, "tags"), FilterOptions{ScratchDir: scratch})
	if err != nil {
		t.Fatalf("NewFilter() failed: %v", err)
	}
	if !f.IsIgnored(tmp) {
		t.Error("scratch file should be ignored")
	}
}

func TestFilter_Gitignore(t *testing.T) {
	root := setupProject(t)
	writeFile(t, filepath.Join(root, ".gitignore"), "build/\n*.log\n")
	writeFile(t, filepath.Join(root, "debug.log"), "x")

	f, err := NewFilter(root, filepath.Join(root, "tags"), FilterOptions{UseGitignore: true})
	if err != nil {
		t.Fatalf("NewFilter() failed: %v", err)
	}

	if !f.IsIgnored(filepath.Join(root, "debug.log")) {
		t.Error("debug.log should be ignored by .gitignore")
	}
	if !f.IsIgnored(filepath.Join(root, "build", "out.c")) {
		t.Error("build/out.c should be ignored by .gitignore")
	}
	if f.IsIgnored(filepath.Join(root, "main.c")) {
		t.Error("main.c should not be ignored")
	}

	off, err := NewFilter(root, filepath.Join(root, "tags"), FilterOptions{})
	if err != nil {
		t.Fatalf("NewFilter() failed: %v", err)
	}
	if off.IsIgnored(filepath.Join(root, "debug.log")) {
		t.Error(".gitignore should not apply unless enabled")
	}
}

func TestWithin(t *testing.T) {
	base := filepath.FromSlash("/a/b")
	tests := []struct {
		path string
		want bool
	}{
		{"/a/b", true},
		{"/a/b/c", true},
		{"/a/bc", false},
		{"/a", false},
		{"/a/b/..c", true},
	}
	for _, tt := range tests {
		if got := within(base, filepath.FromSlash(tt.path)); got != tt.want {
			t.Errorf("within(%s, %s) = %v, want %v", base, tt.path, got, tt.want)
		}
	}
}

package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnorePatterns are the version-control metadata trees that never
// produce tag entries.
var DefaultIgnorePatterns = []string{
	"**/.git/**",
	"**/.hg/**",
	"**/.svn/**",
}

// FilterOptions adds to the default ignore rules.
type FilterOptions struct {
	// Excludes are extra glob patterns, matched against slash-separated
	// absolute paths. "**" crosses directory boundaries, "*" does not.
	Excludes []string

	// ScratchDir is ignored along with everything below it.
	ScratchDir string

	// UseGitignore also ignores whatever the project root .gitignore
	// excludes. It only affects incremental updates; the full build still
	// covers every file the tagger finds.
	UseGitignore bool
}

// Filter decides whether a path should trigger or take part in a tag update.
type Filter struct {
	root      string
	tagPath   string
	scratch   string
	patterns  []glob.Glob
	gitignore *ignore.GitIgnore
}

// NewFilter compiles the ignore rules for a project. root and tagPath must
// already be canonical.
func NewFilter(root, tagPath string, opts FilterOptions) (*Filter, error) {
	sources := append(append([]string{}, DefaultIgnorePatterns...), opts.Excludes...)

	patterns := make([]glob.Glob, 0, len(sources))
	for _, p := range sources {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidPattern, p, err)
		}
		patterns = append(patterns, g)
	}

	f := &Filter{
		root:     root,
		tagPath:  tagPath,
		scratch:  opts.ScratchDir,
		patterns: patterns,
	}

	if opts.UseGitignore {
		// A missing .gitignore just means nothing extra is ignored.
		if gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
			f.gitignore = gi
		}
	}

	return f, nil
}

// IsIgnored reports whether path should be left out of tag updates: it is
// a directory, it is the tag file itself, it matches an ignore rule, or its
// metadata cannot be read (most likely it was deleted already).
//
// Metadata is read on every call since the tree changes underneath us.
func (f *Filter) IsIgnored(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return true
	}
	if info.IsDir() {
		return true
	}
	if path == f.tagPath {
		return true
	}
	return f.excluded(path, false)
}

// SkipDir reports whether the directory tree at dir should not be watched
// or scanned at all. The project root is never skipped.
func (f *Filter) SkipDir(dir string) bool {
	if dir == f.root {
		return false
	}
	return f.excluded(dir, true)
}

func (f *Filter) excluded(path string, isDir bool) bool {
	slashed := filepath.ToSlash(path)
	if isDir {
		slashed += "/"
	}
	for _, g := range f.patterns {
		if g.Match(slashed) {
			return true
		}
	}

	if f.scratch != "" && within(f.scratch, path) {
		return true
	}

	if f.gitignore != nil {
		rel, err := filepath.Rel(f.root, path)
		if err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			rel = filepath.ToSlash(rel)
			if f.gitignore.MatchesPath(rel) || (isDir && f.gitignore.MatchesPath(rel+"/")) {
				return true
			}
		}
	}

	return false
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

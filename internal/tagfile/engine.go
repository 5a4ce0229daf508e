// Package tagfile maintains a tag file on disk: building it from scratch and
// merging incremental updates into it.
//
// The tag file is never modified in place. Every update writes a complete
// replacement into a scratch file and moves it over the tag file with a
// single rename, so other programs (editors, mostly) only ever see the old
// file or the new one.
//
// Stale entries are found by plain substring search: a line is dropped when
// it contains the absolute path of any changed file. This only works with
// taggers that write absolute paths verbatim into each record, and it has a
// known sharp edge: a changed path that happens to be a substring of another
// file's path (/p/a.c and /p/a.cc) drops entries for both. The other file's
// entries come back the next time it changes.
package tagfile

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Tagger produces tag records. *tagger.Runner implements it.
type Tagger interface {
	// Build writes a fresh tag file at output for the whole tree under root.
	Build(ctx context.Context, output, root string) error
	// Append adds records for paths to the existing file at output.
	Append(ctx context.Context, output string, paths []string) error
}

// Engine builds and updates one tag file.
type Engine struct {
	tagPath    string
	root       string
	scratchDir string
	tagger     Tagger
	logger     *log.Logger
}

// NewEngine returns an engine that maintains tagPath for the project at
// root. Scratch files are created in scratchDir, which the caller owns.
func NewEngine(tagPath, root, scratchDir string, t Tagger, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Engine{
		tagPath:    tagPath,
		root:       root,
		scratchDir: scratchDir,
		tagger:     t,
		logger:     logger,
	}
}

// TagPath returns the tag file this engine maintains.
func (e *Engine) TagPath() string {
	return e.tagPath
}

// Build creates the tag file from nothing by running the tagger in
// recursive mode over the project root.
func (e *Engine) Build(ctx context.Context) error {
	scratch, err := e.reserveScratch()
	if err != nil {
		return err
	}

	e.logger.Printf("Building tag file for %s", e.root)
	start := time.Now()

	if err := e.tagger.Build(ctx, scratch, e.root); err != nil {
		return fmt.Errorf("%w: %w (scratch file kept at %s)", ErrTaggerFailed, err, scratch)
	}

	if err := e.commit(scratch); err != nil {
		return err
	}

	e.logger.Printf("Built tag file %s in %v", e.tagPath, time.Since(start).Round(time.Millisecond))
	return nil
}

// Merge replaces every entry for the files in batch with fresh output from
// the tagger. An empty batch leaves the tag file untouched.
func (e *Engine) Merge(ctx context.Context, batch Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	paths := batch.Paths()

	scratch, err := e.filterInto(paths)
	if err != nil {
		return err
	}

	e.logger.Printf("Re-tagging %d file(s)", len(paths))

	if err := e.tagger.Append(ctx, scratch, paths); err != nil {
		return fmt.Errorf("%w: %w (scratch file kept at %s)", ErrTaggerFailed, err, scratch)
	}

	return e.commit(scratch)
}

// filterInto copies the current tag file into a new scratch file, leaving
// out every line that mentions one of paths. It returns the scratch path.
func (e *Engine) filterInto(paths []string) (string, error) {
	src, err := os.Open(e.tagPath)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTagFileUnreadable, err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(e.scratchDir, "tags-*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrScratchWrite, err)
	}
	scratch := dst.Name()

	if err := filterLines(src, dst, paths); err != nil {
		dst.Close()
		os.Remove(scratch)
		return "", err
	}

	if err := dst.Close(); err != nil {
		os.Remove(scratch)
		return "", fmt.Errorf("%w: %w", ErrScratchWrite, err)
	}

	return scratch, nil
}

// filterLines copies lines from r to w unless they contain one of paths.
// Lines are copied byte for byte; a missing final newline is added so the
// tagger's appended records start on a line of their own.
func filterLines(r io.Reader, w io.Writer, paths []string) error {
	needles := make([][]byte, len(paths))
	for i, p := range paths {
		needles[i] = []byte(p)
	}

	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	for {
		line, readErr := br.ReadBytes('\n')
		if len(line) > 0 && !containsAny(line, needles) {
			if _, err := bw.Write(line); err != nil {
				return fmt.Errorf("%w: %w", ErrScratchWrite, err)
			}
			if line[len(line)-1] != '\n' {
				if err := bw.WriteByte('\n'); err != nil {
					return fmt.Errorf("%w: %w", ErrScratchWrite, err)
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("%w: %w", ErrTagFileUnreadable, readErr)
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("%w: %w", ErrScratchWrite, err)
	}
	return nil
}

func containsAny(line []byte, needles [][]byte) bool {
	for _, n := range needles {
		if bytes.Contains(line, n) {
			return true
		}
	}
	return false
}

// reserveScratch creates an empty scratch file for the tagger to overwrite.
func (e *Engine) reserveScratch() (string, error) {
	f, err := os.CreateTemp(e.scratchDir, "tags-*.tmp")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrScratchWrite, err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("%w: %w", ErrScratchWrite, err)
	}
	return name, nil
}

// commit moves scratch over the tag file. The rename is the only moment the
// visible tag file changes.
func (e *Engine) commit(scratch string) error {
	if err := os.Chmod(scratch, e.targetMode()); err != nil {
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}

	err := os.Rename(scratch, e.tagPath)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}

	return e.commitCopy(scratch)
}

// commitCopy handles a scratch directory on another filesystem: the scratch
// content is copied next to the tag file first so the final step is still a
// same-directory rename.
func (e *Engine) commitCopy(scratch string) error {
	dir, base := filepath.Split(e.tagPath)
	sibling, err := os.CreateTemp(dir, "."+strings.TrimPrefix(base, ".")+".retags-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}
	siblingPath := sibling.Name()

	if err := copyInto(sibling, scratch); err != nil {
		sibling.Close()
		os.Remove(siblingPath)
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}
	if err := sibling.Close(); err != nil {
		os.Remove(siblingPath)
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}
	if err := os.Chmod(siblingPath, e.targetMode()); err != nil {
		os.Remove(siblingPath)
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}
	if err := os.Rename(siblingPath, e.tagPath); err != nil {
		os.Remove(siblingPath)
		return fmt.Errorf("%w: %w", ErrCommit, err)
	}

	os.Remove(scratch)
	return nil
}

func copyInto(dst *os.File, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}
	return dst.Sync()
}

// targetMode keeps the permissions of an existing tag file. New tag files
// are world-readable like the ones ctags writes.
func (e *Engine) targetMode() os.FileMode {
	if info, err := os.Stat(e.tagPath); err == nil {
		return info.Mode().Perm()
	}
	return 0644
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/retags/retags/internal/tagfile"
)

// ReconcileResult describes what startup reconciliation did.
type ReconcileResult struct {
	// Built is true when no tag file existed and a full build ran.
	Built bool
	// Merged is the size of the catch-up batch, 0 when nothing had changed.
	Merged int
	// MergeErr is the error from a failed catch-up merge. It is not fatal.
	MergeErr error
}

// Reconcile brings the tag file up to date with the tree before watching
// starts.
//
// Without a tag file it runs one full build; if that fails there is no
// index to fall back on and ErrInitialBuild is returned. With a tag file it
// looks for files modified after the tag file was last written and merges
// just those, so restarting retags on an unchanged tree costs one walk.
func Reconcile(ctx context.Context, root string, engine *tagfile.Engine, filter *Filter, logger *log.Logger) (ReconcileResult, error) {
	var result ReconcileResult

	info, err := os.Stat(engine.TagPath())
	if errors.Is(err, fs.ErrNotExist) {
		logger.Printf("No tag file at %s, building from scratch", engine.TagPath())
		if err := engine.Build(ctx); err != nil {
			return result, fmt.Errorf("%w: %w", ErrInitialBuild, err)
		}
		result.Built = true
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("%w: failed to stat tag file: %w", ErrReconcile, err)
	}

	batch, err := ChangedSince(root, info.ModTime(), filter, logger)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrReconcile, err)
	}
	if batch.Len() == 0 {
		logger.Printf("Tag file %s is up to date", engine.TagPath())
		return result, nil
	}

	logger.Printf("%d file(s) changed since %s was written", batch.Len(), engine.TagPath())
	result.Merged = batch.Len()
	if err := engine.Merge(ctx, batch); err != nil {
		logger.Printf("Failed to update tags: %v", err)
		result.MergeErr = err
		return result, nil
	}
	logger.Printf("Updated tag file for %d file(s)", batch.Len())

	return result, nil
}

// ChangedSince walks root and returns every file that is not ignored and
// was modified strictly after since. Unreadable directories are logged and
// skipped; only a failure to read root itself is an error.
func ChangedSince(root string, since time.Time, filter *Filter, logger *log.Logger) (tagfile.Batch, error) {
	batch := tagfile.NewBatch()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logger.Printf("Skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if filter.SkipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}

		canonical, err := filepath.EvalSymlinks(path)
		if err != nil {
			return nil
		}
		if filter.IsIgnored(canonical) {
			return nil
		}

		info, err := os.Stat(canonical)
		if err != nil {
			return nil
		}
		if info.ModTime().After(since) {
			batch.Add(canonical)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	return batch, nil
}

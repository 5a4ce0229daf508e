package tagfile

import "errors"

// Errors returned by Engine.Merge and Engine.Build.
//
// Every failure wraps one of these so callers can tell what went wrong with
// errors.Is. In all cases the tag file on disk is left exactly as it was
// before the call:
//
//	if errors.Is(err, tagfile.ErrTaggerFailed) {
//	    // the scratch file is still around for inspection
//	}
var (
	// ErrTagFileUnreadable is returned when the current tag file cannot be
	// opened or read during a merge.
	ErrTagFileUnreadable = errors.New("cannot read tag file")

	// ErrScratchWrite is returned when the scratch copy cannot be created
	// or written.
	ErrScratchWrite = errors.New("cannot write scratch tag file")

	// ErrTaggerFailed is returned when the tagger exits non-zero, is killed
	// by a signal, or cannot be started.
	ErrTaggerFailed = errors.New("tagger failed")

	// ErrCommit is returned when the finished scratch file cannot be moved
	// over the tag file.
	ErrCommit = errors.New("cannot replace tag file")
)

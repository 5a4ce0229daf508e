package daemon

import (
	"errors"

	"github.com/retags/retags/internal/config"
)

// Setup errors. A session that fails with one of these cannot do anything
// useful and the process should exit:
//
//	if daemon.IsFatal(err) {
//	    os.Exit(1)
//	}
var (
	// ErrWatch is returned when the filesystem watch on the project root
	// cannot be established.
	ErrWatch = errors.New("cannot watch project")

	// ErrInitialBuild is returned when there is no tag file and building
	// one from scratch failed. There is no older index to fall back on.
	ErrInitialBuild = errors.New("initial tag build failed")

	// ErrReconcile is returned when the tag file or the project tree
	// cannot be inspected during startup reconciliation.
	ErrReconcile = errors.New("cannot reconcile tag file")

	// ErrInvalidPattern is returned when an ignore pattern does not compile.
	ErrInvalidPattern = errors.New("invalid ignore pattern")
)

// IsFatal reports whether err means the session cannot start.
// Per-batch merge failures are never fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrWatch) ||
		errors.Is(err, ErrInitialBuild) ||
		errors.Is(err, ErrReconcile) ||
		errors.Is(err, ErrInvalidPattern) ||
		errors.Is(err, config.ErrProjectRoot)
}

package daemon

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// EventOp represents the type of file system operation.
type EventOp int

const (
	// OpCreate indicates a new file was created.
	OpCreate EventOp = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file was deleted or renamed away.
	OpDelete
)

// String returns a human-readable representation of the operation.
func (op EventOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is a raw change notification. Path may be relative or go through
// symlinks; the collector canonicalizes it.
type Event struct {
	Path string
	Op   EventOp
}

// eventBuffer is large enough to absorb a checkout touching a few hundred
// files while a merge is running.
const eventBuffer = 1024

// FileWatcher watches a directory tree recursively. fsnotify only watches
// single directories, so every subdirectory is added on start and new ones
// are added as they appear.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	skipDir func(string) bool
	events  chan Event
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stopped bool
}

// NewFileWatcher creates a watcher. skipDir, when non-nil, names directory
// trees that must not be watched.
// The watcher must be started with Start() before it will emit events.
func NewFileWatcher(skipDir func(string) bool) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if skipDir == nil {
		skipDir = func(string) bool { return false }
	}

	return &FileWatcher{
		watcher: watcher,
		skipDir: skipDir,
		events:  make(chan Event, eventBuffer),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching root and everything below it.
func (fw *FileWatcher) Start(root string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}
	if fw.stopped {
		return fmt.Errorf("watcher already stopped")
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("failed to watch %s: not a directory", root)
	}

	if err := fw.watcher.Add(root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	fw.addTree(root, nil)

	fw.running = true
	fw.wg.Add(1)
	go fw.processEvents()

	return nil
}

// Stop stops watching and closes the Events() and Errors() channels.
// It blocks until the event processing goroutine has exited.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if fw.stopped {
		fw.mu.Unlock()
		return nil
	}
	wasRunning := fw.running
	fw.running = false
	fw.stopped = true
	fw.mu.Unlock()

	close(fw.done)

	err := fw.watcher.Close()

	if wasRunning {
		fw.wg.Wait()
	}

	close(fw.events)
	close(fw.errors)

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// Events returns the channel of change notifications.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Events() <-chan Event {
	return fw.events
}

// Errors returns the channel of watch errors.
// This channel is closed when the watcher is stopped.
func (fw *FileWatcher) Errors() <-chan error {
	return fw.errors
}

// IsRunning returns true if the watcher is currently running.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !fw.handle(event) {
				return
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}

			select {
			case fw.errors <- err:
			case <-fw.done:
				return
			}
		}
	}
}

// handle forwards one fsnotify event. It returns false once the watcher is
// shutting down.
func (fw *FileWatcher) handle(event fsnotify.Event) bool {
	var op EventOp
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		op = OpDelete
	default:
		// Chmod does not change tags
		return true
	}

	if op == OpCreate {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if fw.skipDir(event.Name) {
				return true
			}
			if err := fw.watcher.Add(event.Name); err != nil {
				return fw.emitError(fmt.Errorf("failed to watch %s: %w", event.Name, err))
			}
			// Files can land in a new directory before its watch exists.
			return fw.addTree(event.Name, fw.emit)
		}
	}

	return fw.emit(Event{Path: event.Name, Op: op})
}

// addTree watches every directory below dir. When found is non-nil it is
// called for each regular file met on the way. It returns false if found
// reported shutdown.
func (fw *FileWatcher) addTree(dir string, found func(Event) bool) bool {
	alive := true
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if path == dir {
			return nil
		}
		if d.IsDir() {
			if fw.skipDir(path) {
				return filepath.SkipDir
			}
			if err := fw.watcher.Add(path); err != nil {
				return filepath.SkipDir
			}
			return nil
		}
		if found != nil && d.Type().IsRegular() {
			if !found(Event{Path: path, Op: OpCreate}) {
				alive = false
				return filepath.SkipAll
			}
		}
		return nil
	})
	return alive
}

func (fw *FileWatcher) emit(ev Event) bool {
	select {
	case fw.events <- ev:
		return true
	case <-fw.done:
		return false
	}
}

func (fw *FileWatcher) emitError(err error) bool {
	select {
	case fw.errors <- err:
		return true
	case <-fw.done:
		return false
	}
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/retags/retags/internal/config"
	"github.com/retags/retags/internal/tagfile"
	"github.com/retags/retags/internal/tagger"
)

// Config holds configuration for a session.
type Config struct {
	// Debounce is how long to keep collecting events after the first one
	// of a burst before updating the tag file.
	Debounce time.Duration

	// Logger for session activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Debounce: DefaultDebounce,
		Logger:   log.New(os.Stderr, "[retags] ", log.LstdFlags),
	}
}

// Session keeps one tag file in sync with one project tree.
type Session struct {
	settings   config.Settings
	config     *Config
	scratchDir string
	filter     *Filter
	engine     *tagfile.Engine
	watcher    *FileWatcher
	ready      chan struct{}

	// overflow is signalled when the kernel event queue overflowed and
	// changes may have been lost.
	overflow chan struct{}
	// lastSync is the UnixNano time up to which every change is known to be
	// in a delivered batch or still queued as an event.
	lastSync atomic.Int64
}

// NewSession prepares a session for settings. When t is nil the tagger
// command from settings is run as a subprocess.
//
// Use Run() to reconcile and start watching, and Close() to release the
// scratch directory.
func NewSession(settings config.Settings, t tagfile.Tagger, cfg *Config) (*Session, error) {
	if settings.ProjectRoot == "" {
		return nil, fmt.Errorf("%w: empty path", config.ErrProjectRoot)
	}
	if settings.TagFile == "" {
		return nil, fmt.Errorf("tag file path cannot be empty")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultConfig().Logger
	}
	if t == nil {
		runner := tagger.NewRunner(settings.TagCommand, settings.ProjectRoot)
		runner.Logger = cfg.Logger
		t = runner
	}

	scratchDir, err := os.MkdirTemp("", "retags-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}

	filter, err := NewFilter(settings.ProjectRoot, settings.TagFile, FilterOptions{
		Excludes:     settings.Excludes,
		ScratchDir:   scratchDir,
		UseGitignore: settings.UseGitignore,
	})
	if err != nil {
		os.RemoveAll(scratchDir)
		return nil, err
	}

	watcher, err := NewFileWatcher(filter.SkipDir)
	if err != nil {
		os.RemoveAll(scratchDir)
		return nil, fmt.Errorf("%w: %w", ErrWatch, err)
	}

	return &Session{
		settings:   settings,
		config:     cfg,
		scratchDir: scratchDir,
		filter:     filter,
		engine:     tagfile.NewEngine(settings.TagFile, settings.ProjectRoot, scratchDir, t, cfg.Logger),
		watcher:    watcher,
		ready:      make(chan struct{}),
		overflow:   make(chan struct{}, 1),
	}, nil
}

// Ready is closed once startup reconciliation has finished and changes are
// being collected.
func (s *Session) Ready() <-chan struct{} {
	return s.ready
}

// Run watches the project, reconciles the tag file, then updates it after
// every burst of changes. The watch starts before reconciliation so edits
// made during a long initial build are not missed.
//
// Run blocks until ctx is cancelled or the watcher shuts down. It only
// returns an error for setup failures; failed merges are logged and the
// loop carries on. A watcher event overflow triggers a rescan of files
// modified since the last batch.
func (s *Session) Run(ctx context.Context) error {
	logger := s.config.Logger

	s.lastSync.Store(time.Now().UnixNano())
	if err := s.watcher.Start(s.settings.ProjectRoot); err != nil {
		return fmt.Errorf("%w: %w", ErrWatch, err)
	}
	logger.Printf("Watching %s", s.settings.ProjectRoot)

	if _, err := Reconcile(ctx, s.settings.ProjectRoot, s.engine, s.filter, logger); err != nil {
		s.watcher.Stop()
		return err
	}
	close(s.ready)

	g, gctx := errgroup.WithContext(ctx)
	events := make(chan Event, eventBuffer)

	g.Go(func() error {
		for err := range s.watcher.Errors() {
			s.handleWatchError(err)
		}
		return nil
	})

	g.Go(func() error {
		s.forward(gctx, events)
		return nil
	})

	g.Go(func() error {
		defer s.watcher.Stop()
		s.loop(gctx, events)
		return nil
	})

	return g.Wait()
}

// handleWatchError logs err and schedules a rescan when events were dropped.
func (s *Session) handleWatchError(err error) {
	s.config.Logger.Printf("Watcher error: %v", err)
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		select {
		case s.overflow <- struct{}{}:
		default:
		}
	}
}

// forward copies watcher events to out. After an overflow it also emits
// every file modified since the last batch, standing in for the lost events.
// out is closed when the watcher stops or ctx is cancelled.
func (s *Session) forward(ctx context.Context, out chan<- Event) {
	defer close(out)

	in := s.watcher.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			if !send(ctx, out, ev) {
				return
			}
		case <-s.overflow:
			if !s.rescan(ctx, out) {
				return
			}
		}
	}
}

// rescan emits an event for every file changed since lastSync. It returns
// false once ctx is cancelled.
func (s *Session) rescan(ctx context.Context, out chan<- Event) bool {
	since := time.Unix(0, s.lastSync.Load())
	batch, err := ChangedSince(s.settings.ProjectRoot, since, s.filter, s.config.Logger)
	if err != nil {
		s.config.Logger.Printf("Rescan after dropped events failed: %v", err)
		return true
	}
	s.config.Logger.Printf("Rescan after dropped events found %d file(s)", batch.Len())
	for _, path := range batch.Paths() {
		if !send(ctx, out, Event{Path: path, Op: OpModify}) {
			return false
		}
	}
	return true
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// loop feeds batches from the collector to the merge engine, one at a time.
func (s *Session) loop(ctx context.Context, events <-chan Event) {
	logger := s.config.Logger
	collector := NewCollector(events, s.settings.ProjectRoot, s.filter, s.config.Debounce)

	for {
		batch, ok := collector.Next(ctx)
		if !ok {
			logger.Println("Watcher stopped")
			return
		}
		s.lastSync.Store(time.Now().UnixNano())

		start := time.Now()
		if err := s.engine.Merge(ctx, batch); err != nil {
			logger.Printf("Failed to update tags: %v", err)
			continue
		}
		logger.Printf("Updated tag file for %d file(s) in %v: %v",
			batch.Len(), time.Since(start).Round(time.Millisecond), batch.Paths())
	}
}

// Close stops the watcher and removes the scratch directory, including any
// scratch files kept from failed merges.
func (s *Session) Close() error {
	stopErr := s.watcher.Stop()
	if err := os.RemoveAll(s.scratchDir); err != nil {
		return fmt.Errorf("failed to remove scratch directory: %w", err)
	}
	return stopErr
}

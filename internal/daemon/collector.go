package daemon

import (
	"context"
	"path/filepath"
	"time"

	"github.com/retags/retags/internal/tagfile"
)

// DefaultDebounce is how long the collector keeps gathering events after
// the first one of a burst.
const DefaultDebounce = 500 * time.Millisecond

// Ignorer decides whether a canonical path is left out of tag updates.
// *Filter implements it.
type Ignorer interface {
	IsIgnored(path string) bool
}

type collectorState int

const (
	stateIdle collectorState = iota
	stateCollecting
)

// Collector turns a stream of raw events into batches, one per burst of
// activity. The first accepted event of a burst arms a single deadline;
// everything accepted before the deadline joins the same batch and later
// events do not push the deadline back, so a batch is never delayed by
// more than one debounce interval.
type Collector struct {
	events   <-chan Event
	root     string
	ignore   Ignorer
	debounce time.Duration
	closed   bool
}

// NewCollector returns a collector reading from events. Relative event
// paths are resolved against root.
func NewCollector(events <-chan Event, root string, ignore Ignorer, debounce time.Duration) *Collector {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Collector{
		events:   events,
		root:     root,
		ignore:   ignore,
		debounce: debounce,
	}
}

// Next blocks until a batch is ready and returns it. It returns false when
// the event stream has ended or ctx is cancelled; a stream that closes in
// the middle of a burst still yields the partial batch first.
func (c *Collector) Next(ctx context.Context) (tagfile.Batch, bool) {
	if c.closed {
		return nil, false
	}

	var (
		state    = stateIdle
		batch    tagfile.Batch
		timer    *time.Timer
		deadline <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, false

		case ev, ok := <-c.events:
			if !ok {
				c.closed = true
				if state == stateCollecting {
					return batch, true
				}
				return nil, false
			}

			path, ok := c.accept(ev)
			if !ok {
				continue
			}

			if state == stateIdle {
				batch = tagfile.NewBatch()
				timer = time.NewTimer(c.debounce)
				deadline = timer.C
				state = stateCollecting
			}
			batch.Add(path)

		case <-deadline:
			c.drain(batch)
			return batch, true
		}
	}
}

// drain adds whatever is already queued without waiting for more.
func (c *Collector) drain(batch tagfile.Batch) {
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				c.closed = true
				return
			}
			if path, ok := c.accept(ev); ok {
				batch.Add(path)
			}
		default:
			return
		}
	}
}

// accept canonicalizes the event path and applies the ignore rules.
func (c *Collector) accept(ev Event) (string, bool) {
	path, err := Canonicalize(c.root, ev.Path)
	if err != nil {
		return "", false
	}
	if c.ignore != nil && c.ignore.IsIgnored(path) {
		return "", false
	}
	return path, true
}

// Canonicalize returns the absolute, symlink-free form of path. Relative
// paths are taken relative to root. It fails when the path no longer exists.
func Canonicalize(root, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	return filepath.EvalSymlinks(path)
}

// Package daemon keeps a tag file in sync with a project tree while the
// process runs.
//
// # Architecture
//
// A session is built from four pieces:
//
//   - Filter: decides which paths never take part in an update
//   - FileWatcher: recursive file system event monitoring using fsnotify
//   - Collector: groups bursts of events into one batch of canonical paths
//   - Session: reconciles the tag file on startup, then merges every batch
//
// # Startup
//
// Run starts the watcher first and then calls Reconcile:
//
//   - no tag file: a full build through the tagger
//   - tag file present: every non-ignored file modified after the tag file
//     is merged as one catch-up batch
//
// A failed initial build is fatal. A failed catch-up merge is logged and the
// session keeps going.
//
// # Collecting Changes
//
// The collector is either idle or collecting. The first accepted event arms
// a single deadline; later events join the batch but do not move it. When it
// fires, events already queued are drained without blocking and the batch is
// handed to the merge engine:
//
//	c := daemon.NewCollector(fw.Events(), root, filter, daemon.DefaultDebounce)
//	for {
//	    batch, ok := c.Next(ctx)
//	    if !ok {
//	        break
//	    }
//	    engine.Merge(ctx, batch)
//	}
//
// Events for paths that are ignored or no longer exist are dropped. Deleted
// files therefore keep their entries until the next full build.
//
// # File Watching
//
// The watcher maps fsnotify operations as follows:
//   - fsnotify.Create → OpCreate
//   - fsnotify.Write → OpModify
//   - fsnotify.Remove → OpDelete
//   - fsnotify.Rename → OpDelete (the new name triggers a separate Create)
//
// Directories created after Start are watched as they appear, and files
// already inside them are reported as created. Trees the filter skips are
// never watched.
//
// # Graceful Shutdown
//
// Cancel the context passed to Run, then call Close. Stop() on the watcher
// closes the Events() and Errors() channels, which ends the collector loop.
// Close also removes the scratch directory.
package daemon

package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// waitForEvent reads events until one for path with op arrives.
func waitForEvent(t *testing.T, fw *FileWatcher, path string, op EventOp) {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case event, ok := <-fw.Events():
			if !ok {
				t.Fatalf("Events() closed while waiting for %s %s", op, path)
			}
			if event.Path == path && event.Op == op {
				return
			}
		case <-timeout:
			t.Fatalf("Timeout waiting for %s event on %s", op, path)
		}
	}
}

// startWatcher starts a watcher on root that skips .git trees.
func startWatcher(t *testing.T, root string) *FileWatcher {
	t.Helper()

	skip := func(dir string) bool { return filepath.Base(dir) == ".git" }
	fw, err := NewFileWatcher(skip)
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	t.Cleanup(func() { fw.Stop() })

	if err := fw.Start(root); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	// Give watcher time to stabilize
	time.Sleep(50 * time.Millisecond)
	return fw
}

// TestNewFileWatcher verifies that creating a new FileWatcher succeeds.
func TestNewFileWatcher(t *testing.T) {
	fw, err := NewFileWatcher(nil)
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()

	if fw.IsRunning() {
		t.Error("Newly created watcher should not be running")
	}
}

// TestFileWatcher_StartStop verifies that the watcher can start and stop cleanly.
func TestFileWatcher_StartStop(t *testing.T) {
	fw, err := NewFileWatcher(nil)
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}

	if err := fw.Start(t.TempDir()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !fw.IsRunning() {
		t.Error("Watcher should be running after Start()")
	}

	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
	if fw.IsRunning() {
		t.Error("Watcher should not be running after Stop()")
	}

	if _, ok := <-fw.Events(); ok {
		t.Error("Events() should be closed after Stop()")
	}

	// Stopping twice is harmless
	if err := fw.Stop(); err != nil {
		t.Errorf("second Stop() failed: %v", err)
	}
}

// TestFileWatcher_StartAlreadyRunning verifies that starting an already running watcher fails.
func TestFileWatcher_StartAlreadyRunning(t *testing.T) {
	root := t.TempDir()
	fw := startWatcher(t, root)

	if err := fw.Start(root); err == nil {
		t.Error("Second Start() should fail when watcher is already running")
	}
}

func TestFileWatcher_StartMissingRoot(t *testing.T) {
	fw, err := NewFileWatcher(nil)
	if err != nil {
		t.Fatalf("NewFileWatcher() failed: %v", err)
	}
	defer fw.Stop()

	if err := fw.Start(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Start() should fail for a missing directory")
	}
}

func TestFileWatcher_FileCreatedAndModified(t *testing.T) {
	root := setupFiles(t)
	fw := startWatcher(t, root)

	path := filepath.Join(root, "a.c")
	writeFile(t, path, "int a;")
	waitForEvent(t, fw, path, OpCreate)

	writeFile(t, path, "int a; int b;")
	waitForEvent(t, fw, path, OpModify)
}

func TestFileWatcher_FileDeleted(t *testing.T) {
	root := setupFiles(t, "a.c")
	fw := startWatcher(t, root)

	path := filepath.Join(root, "a.c")
	if err := os.Remove(path); err != nil {
		t.Fatalf("Failed to delete file: %v", err)
	}
	waitForEvent(t, fw, path, OpDelete)
}

// TestFileWatcher_Recursive verifies files in existing and newly created
// subdirectories are reported.
func TestFileWatcher_Recursive(t *testing.T) {
	root := setupFiles(t, "src/keep.c")
	fw := startWatcher(t, root)

	existing := filepath.Join(root, "src", "util.c")
	writeFile(t, existing, "x")
	waitForEvent(t, fw, existing, OpCreate)

	newDir := filepath.Join(root, "pkg", "deep")
	if err := os.MkdirAll(newDir, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	nested := filepath.Join(newDir, "n.c")
	writeFile(t, nested, "x")
	waitForEvent(t, fw, nested, OpCreate)
}

// TestFileWatcher_SkippedDirsAreSilent verifies skipped trees produce no events.
func TestFileWatcher_SkippedDirsAreSilent(t *testing.T) {
	root := setupFiles(t, ".git/HEAD")
	fw := startWatcher(t, root)

	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main")
	marker := filepath.Join(root, "marker.c")
	writeFile(t, marker, "x")

	timeout := time.After(2 * time.Second)
	for {
		select {
		case event := <-fw.Events():
			if strings.Contains(event.Path, string(filepath.Separator)+".git"+string(filepath.Separator)) {
				t.Fatalf("unexpected event inside .git: %s", event.Path)
			}
			if event.Path == marker {
				return
			}
		case <-timeout:
			t.Fatal("Timeout waiting for marker event")
		}
	}
}

func TestEventOpString(t *testing.T) {
	tests := map[EventOp]string{
		OpCreate:    "create",
		OpModify:    "modify",
		OpDelete:    "delete",
		EventOp(42): "unknown",
	}
	for op, want := range tests {
		if got := op.String(); got != want {
			t.Errorf("EventOp(%d).String() = %q, want %q", op, got, want)
		}
	}
}

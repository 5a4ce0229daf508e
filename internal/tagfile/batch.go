package tagfile

import "sort"

// Batch is a set of canonical absolute file paths that changed together.
// Adding the same path twice keeps one entry.
type Batch map[string]struct{}

// NewBatch returns a batch holding paths.
func NewBatch(paths ...string) Batch {
	b := make(Batch, len(paths))
	for _, p := range paths {
		b.Add(p)
	}
	return b
}

// Add inserts path into the batch.
func (b Batch) Add(path string) {
	b[path] = struct{}{}
}

// Contains reports whether path is in the batch.
func (b Batch) Contains(path string) bool {
	_, ok := b[path]
	return ok
}

// Len returns the number of distinct paths.
func (b Batch) Len() int {
	return len(b)
}

// Paths returns the batch contents in sorted order.
func (b Batch) Paths() []string {
	paths := make([]string, 0, len(b))
	for p := range b {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

package watcher

import (
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ContentHashes remembers the content hash of every file it has seen, so
// that events which leave a file's bytes unchanged can be dropped.
type ContentHashes struct {
	mu     sync.Mutex
	hashes map[string]uint64
}

// NewContentHashes creates an empty ContentHashes.
func NewContentHashes() *ContentHashes {
	return &ContentHashes{hashes: make(map[string]uint64)}
}

// Record stores the current hash of path without reporting a change.
func (c *ContentHashes) Record(path string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashes[path] = xxhash.Sum64(data)
}

// Changed returns the paths whose content differs from the last recorded
// hash, updating the records. Unreadable or deleted files always count as
// changed and are forgotten.
func (c *ContentHashes) Changed(paths []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changed []string
	for _, p := range paths {
		//nolint:gosec // Paths come from the project watcher
		data, err := os.ReadFile(p)
		if err != nil {
			delete(c.hashes, p)
			changed = append(changed, p)
			continue
		}
		sum := xxhash.Sum64(data)
		if prev, ok := c.hashes[p]; ok && prev == sum {
			continue
		}
		c.hashes[p] = sum
		changed = append(changed, p)
	}
	return changed
}

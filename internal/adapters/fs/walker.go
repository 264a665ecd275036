// Package fs implements unit discovery, fingerprinting and artifact emission on the local file system.
package fs

import (
	"io/fs"
	"iter"
	"path/filepath"
	"strings"
)

// skippedDirs are never descended into.
var skippedDirs = map[string]bool{
	".git":         true,
	".jj":          true,
	".kiln":        true,
	"node_modules": true,
}

// Walker enumerates build unit files.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// WalkUnits yields the absolute paths of TypeScript sources below root in lexical order.
// Declaration files are not units. Directories whose absolute path is in skip are pruned.
func (w *Walker) WalkUnits(root string, skip map[string]bool) iter.Seq[string] {
	return func(yield func(string) bool) {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != root && (skippedDirs[d.Name()] || skip[path]) {
					return filepath.SkipDir
				}
				return nil
			}
			if !IsUnitFile(path) {
				return nil
			}
			if !yield(path) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

// IsUnitFile reports whether a path names a build unit.
func IsUnitFile(path string) bool {
	return strings.HasSuffix(path, ".ts") && !strings.HasSuffix(path, ".d.ts")
}

// SkippedDir reports whether a directory name is excluded from unit discovery.
func SkippedDir(name string) bool {
	return skippedDirs[name]
}

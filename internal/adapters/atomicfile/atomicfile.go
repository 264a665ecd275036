// Package atomicfile writes files by renaming a fully written temp file into place,
// so readers never observe a partial write.
package atomicfile

import (
	"os"
	"path/filepath"

	"go.trai.ch/kiln/internal/core/domain"
)

// Write atomically replaces path with data. Missing parent directories are created.
// pattern names the temp file, as in os.CreateTemp.
func Write(path string, data []byte, perm os.FileMode, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()

	// Clean up temp file on error
	defer func() {
		if _, statErr := os.Stat(tmpName); statErr == nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

package fs_test

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/core/domain"
)

func mustWrite(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), domain.DirPerm))
	require.NoError(t, os.WriteFile(path, []byte(content), domain.PrivateFilePerm))
}

func TestWalker_WalkUnits(t *testing.T) {
	tmpDir := t.TempDir()
	mustWrite(t, tmpDir, "src/a.ts", "")
	mustWrite(t, tmpDir, "src/lib/b.ts", "")
	mustWrite(t, tmpDir, "src/types.d.ts", "")
	mustWrite(t, tmpDir, "src/readme.md", "")
	mustWrite(t, tmpDir, "src/node_modules/x/index.ts", "")
	mustWrite(t, tmpDir, "src/.kiln/store/c.ts", "")
	mustWrite(t, tmpDir, "src/gen/d.ts", "")

	walker := fs.NewWalker()
	skip := map[string]bool{filepath.Join(tmpDir, "src", "gen"): true}
	files := slices.Collect(walker.WalkUnits(filepath.Join(tmpDir, "src"), skip))

	assert.Equal(t, []string{
		filepath.Join(tmpDir, "src", "a.ts"),
		filepath.Join(tmpDir, "src", "lib", "b.ts"),
	}, files)
}

func TestWalker_WalkUnits_MissingRoot(t *testing.T) {
	walker := fs.NewWalker()
	files := slices.Collect(walker.WalkUnits(filepath.Join(t.TempDir(), "missing"), nil))
	assert.Empty(t, files)
}

func TestWalker_WalkUnits_EarlyBreak(t *testing.T) {
	tmpDir := t.TempDir()
	mustWrite(t, tmpDir, "a.ts", "")
	mustWrite(t, tmpDir, "b.ts", "")

	count := 0
	for range fs.NewWalker().WalkUnits(tmpDir, nil) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}

package fs

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/kiln/internal/adapters/atomicfile"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// Emitter implements ports.Emitter.
type Emitter struct{}

// NewEmitter creates a new Emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Emit writes each artifact and its source map below outDir. Files whose
// content is already up to date are left untouched.
func (e *Emitter) Emit(outDir string, artifacts []domain.Artifact) error {
	for i := range artifacts {
		a := &artifacts[i]
		target := filepath.Join(outDir, filepath.FromSlash(a.Path))
		if err := writeIfChanged(target, a.Code); err != nil {
			return domain.WithMeta(zerr.Wrap(err, domain.ErrEmitFailed.Error()), "path", a.Path)
		}
		if len(a.Map) == 0 {
			continue
		}
		if err := writeIfChanged(target+".map", a.Map); err != nil {
			return domain.WithMeta(zerr.Wrap(err, domain.ErrEmitFailed.Error()), "path", a.Path+".map")
		}
	}
	return nil
}

// Prune removes compiled outputs below outDir that are not listed in keep,
// then removes directories left empty.
func (e *Emitter) Prune(outDir string, keep []string) error {
	kept := make(map[string]bool, len(keep)*2)
	for _, k := range keep {
		kept[k] = true
		kept[k+".map"] = true
	}

	var dirs []string
	err := filepath.WalkDir(outDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			if path != outDir {
				dirs = append(dirs, path)
			}
			return nil
		}
		if !strings.HasSuffix(path, ".js") && !strings.HasSuffix(path, ".js.map") {
			return nil
		}
		rel, err := filepath.Rel(outDir, path)
		if err != nil {
			return err
		}
		if kept[filepath.ToSlash(rel)] {
			return nil
		}
		return os.Remove(path)
	})
	if err != nil {
		return zerr.Wrap(err, domain.ErrEmitFailed.Error())
	}

	// Deepest first, so parents become empty before they are visited.
	for i := len(dirs) - 1; i >= 0; i-- {
		if entries, err := os.ReadDir(dirs[i]); err == nil && len(entries) == 0 {
			_ = os.Remove(dirs[i])
		}
	}
	return nil
}

func writeIfChanged(path string, data []byte) error {
	//nolint:gosec // Path is below the configured output directory
	if current, err := os.ReadFile(path); err == nil && string(current) == string(data) {
		return nil
	}
	return atomicfile.Write(path, data, domain.FilePerm, ".emit-*")
}

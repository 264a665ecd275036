package fs

import (
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

// Loader implements ports.UnitLoader.
type Loader struct {
	walker *Walker
}

// NewLoader creates a new Loader.
func NewLoader(walker *Walker) *Loader {
	return &Loader{walker: walker}
}

// Load discovers the units of a project and links their relative imports.
// A relative import that matches no unit stays on the binding with a zero
// target and is left for the compiler to report.
func (l *Loader) Load(project *domain.Project) (*domain.Graph, error) {
	skip := map[string]bool{
		filepath.Join(project.Root, project.OutDir): true,
	}

	sources := make(map[string][]byte)
	for _, dir := range project.Sources {
		for file := range l.walker.WalkUnits(filepath.Join(project.Root, dir), skip) {
			rel, err := filepath.Rel(project.Root, file)
			if err != nil {
				return nil, zerr.Wrap(err, domain.ErrSourceReadFailed.Error())
			}
			rel = filepath.ToSlash(rel)
			if _, seen := sources[rel]; seen {
				continue
			}
			//nolint:gosec // Path comes from walking the project's own source directories
			data, err := os.ReadFile(file)
			if err != nil {
				return nil, domain.WithMeta(zerr.Wrap(err, domain.ErrSourceReadFailed.Error()), "unit", rel)
			}
			sources[rel] = data
		}
	}

	if len(sources) == 0 {
		return nil, domain.WithMeta(domain.ErrNoUnits, "sources", strings.Join(project.Sources, ","))
	}

	graph := domain.NewGraph()
	graph.SetRoot(project.Root)
	for rel, data := range sources {
		if err := graph.AddUnit(buildUnit(rel, data, sources)); err != nil {
			return nil, err
		}
	}
	return graph, nil
}

func buildUnit(rel string, data []byte, known map[string][]byte) *domain.Unit {
	scan := scanSource(data)
	unit := &domain.Unit{
		Path:           domain.NewInternedString(rel),
		Source:         data,
		Exports:        scan.exports,
		AnyAnnotations: scan.anys,
	}

	imports := make([]string, 0, len(scan.bindings))
	for _, b := range scan.bindings {
		switch {
		case b.Relative():
			if target, ok := resolveRelative(rel, b.Specifier, known); ok {
				b.Target = domain.NewInternedString(target)
				imports = append(imports, target)
			}
		case isBare(b.Specifier):
			b.Package = packageName(b.Specifier)
			unit.Packages = append(unit.Packages, b.Package)
		}
		unit.Bindings = append(unit.Bindings, b)
	}

	slices.Sort(imports)
	unit.Imports = domain.InternAll(slices.Compact(imports))
	slices.Sort(unit.Packages)
	unit.Packages = slices.Compact(unit.Packages)
	return unit
}

// resolveRelative maps a relative specifier to a known unit path. It tries the
// specifier as written, with ".js" read as ".ts", with ".ts" appended, and as
// a directory holding index.ts.
func resolveRelative(from, spec string, known map[string][]byte) (string, bool) {
	var base string
	if strings.HasPrefix(spec, "/") {
		base = path.Clean(strings.TrimPrefix(spec, "/"))
	} else {
		base = path.Join(path.Dir(from), spec)
	}
	if base == ".." || strings.HasPrefix(base, "../") {
		return "", false
	}

	candidates := []string{base}
	if trimmed, ok := strings.CutSuffix(base, ".js"); ok {
		candidates = append(candidates, trimmed+".ts")
	}
	candidates = append(candidates, base+".ts", base+"/index.ts")

	for _, c := range candidates {
		if _, ok := known[c]; ok && IsUnitFile(c) {
			return c, true
		}
	}
	return "", false
}

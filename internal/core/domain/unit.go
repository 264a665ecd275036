package domain

import (
	"slices"
	"strings"
)

// ExportAll marks a unit that re-exports another module wholesale, so any
// name may be imported from it.
const ExportAll = "*"

// Unit is one compilable source file together with what the loader learned
// about its imports and exports.
type Unit struct {
	// Path is the slash-separated path relative to the project root, e.g. "src/app.ts".
	Path InternedString
	// Source is the file content the unit was loaded with.
	Source []byte
	// Imports are the resolved paths of the units this unit imports, sorted.
	Imports []InternedString
	// Packages are the names of bare-specifier packages this unit imports, sorted.
	Packages []string
	// Bindings records every import statement in source order.
	Bindings []ImportBinding
	// Exports are the names the unit exports, sorted. "default" marks a default
	// export and ExportAll a wildcard re-export.
	Exports []string
	// AnyAnnotations are the positions of explicit "any" type annotations.
	AnyAnnotations []Position
}

// Position is a 1-based line and column in a unit's source.
type Position struct {
	Line   int
	Column int
}

// ImportBinding is a single import or re-export statement.
type ImportBinding struct {
	// Specifier is the module specifier as written in source.
	Specifier string
	// Target is the resolved unit path for relative specifiers. It is zero when
	// the specifier is bare or could not be resolved.
	Target InternedString
	// Package is the package name for bare specifiers.
	Package string
	// Names are the named bindings imported, "default" for a default import.
	// A namespace or side-effect import has no names.
	Names []string
	// Line is the 1-based line of the statement.
	Line int
}

// Relative reports whether the binding refers to another unit rather than a
// package or an absolute URL.
func (b ImportBinding) Relative() bool {
	return strings.HasPrefix(b.Specifier, "./") ||
		strings.HasPrefix(b.Specifier, "../") ||
		strings.HasPrefix(b.Specifier, "/")
}

// Exported reports whether the unit exports name.
func (u *Unit) Exported(name string) bool {
	return slices.Contains(u.Exports, name) || slices.Contains(u.Exports, ExportAll)
}

// OutputPath maps a unit path to the path of its compiled artifact, e.g.
// "src/app.ts" to "src/app.js".
func OutputPath(unitPath string) string {
	const ext = ".ts"
	if len(unitPath) > len(ext) && unitPath[len(unitPath)-len(ext):] == ext {
		return unitPath[:len(unitPath)-len(ext)] + ".js"
	}
	return unitPath + ".js"
}

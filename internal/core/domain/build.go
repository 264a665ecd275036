package domain

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Severity classifies a diagnostic.
type Severity string

const (
	// SeverityError marks a diagnostic that fails the unit.
	SeverityError Severity = "error"
	// SeverityWarning marks an informational diagnostic.
	SeverityWarning Severity = "warning"
)

// Diagnostic is a single compiler message tied to a source position.
type Diagnostic struct {
	Unit     string   `json:"unit"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s", d.Unit, d.Line, d.Column, d.Message)
}

// CompileError is a unit-scoped compilation failure. Kind is ErrSyntaxError or
// ErrTypeError, so errors.Is matches the failure class.
type CompileError struct {
	Kind        error
	Unit        string
	Diagnostics []Diagnostic
}

func (e *CompileError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	b.WriteString(" in ")
	b.WriteString(e.Unit)
	for _, d := range e.Diagnostics {
		b.WriteString("\n")
		b.WriteString(d.String())
	}
	return b.String()
}

// Unwrap returns the failure kind.
func (e *CompileError) Unwrap() error {
	return e.Kind
}

// CompileRequest is everything the compiler needs for one unit.
type CompileRequest struct {
	Unit *Unit
	// Imports holds the graph's units by path. It covers at least the unit's imports.
	Imports map[InternedString]*Unit
	Lock    *Lockfile
	Options CompilerOptions
}

// CompileOutput is the product of a successful compilation.
type CompileOutput struct {
	Code        []byte
	Map         []byte
	Diagnostics []Diagnostic
}

// CacheEntry is a build cache record keyed by fingerprint. Entries are never mutated.
type CacheEntry struct {
	Fingerprint string       `json:"fingerprint"`
	Unit        string       `json:"unit"`
	Code        []byte       `json:"code"`
	Map         []byte       `json:"map,omitempty"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// Artifact is a compiled unit ready to be served or written to disk.
type Artifact struct {
	Unit        InternedString
	Path        string
	Fingerprint string
	Code        []byte
	Map         []byte
	Diagnostics []Diagnostic
	Cached      bool
}

// BuildResult collects the outcome of one driver run.
type BuildResult struct {
	Artifacts map[InternedString]Artifact
	Failures  map[InternedString]error
	Compiled  int
	Cached    int
}

// NewBuildResult creates an empty result.
func NewBuildResult() *BuildResult {
	return &BuildResult{
		Artifacts: make(map[InternedString]Artifact),
		Failures:  make(map[InternedString]error),
	}
}

// FailedUnits returns the paths of failed units in lexical order.
func (r *BuildResult) FailedUnits() []InternedString {
	out := make([]InternedString, 0, len(r.Failures))
	for p := range r.Failures {
		out = append(out, p)
	}
	slices.SortFunc(out, InternedString.Compare)
	return out
}

// Err joins every unit failure in path order. It is nil when all units succeeded.
func (r *BuildResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, p := range r.FailedUnits() {
		errs = append(errs, r.Failures[p])
	}
	return errors.Join(errs...)
}

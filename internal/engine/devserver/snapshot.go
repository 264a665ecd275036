package devserver

import (
	"errors"
	"maps"
	"slices"

	"go.trai.ch/kiln/internal/core/domain"
)

// State is the outcome of the last published build.
type State string

const (
	// StateReady means every unit compiled.
	StateReady State = "ready"
	// StateFailed means at least one unit, or the graph itself, failed.
	// The last good artifacts keep being served.
	StateFailed State = "failed"
)

// Event is the reload notification pushed to every session.
type Event struct {
	Generation uint64 `json:"generation"`
	State      State  `json:"state"`
}

// Failure describes one failed unit for the status endpoint and the banner.
type Failure struct {
	Unit        string              `json:"unit,omitempty"`
	Message     string              `json:"message"`
	Diagnostics []domain.Diagnostic `json:"diagnostics,omitempty"`
}

// file is one servable artifact body.
type file struct {
	body        []byte
	contentType string
}

// Snapshot is an immutable view of the served artifact set.
// A new Snapshot replaces the old one atomically; it is never modified after publication.
type Snapshot struct {
	Generation uint64
	State      State
	// Units are the unit paths of the graph this snapshot was built from.
	Units map[domain.InternedString]bool
	// Artifacts hold the last good output of every unit that ever compiled.
	Artifacts map[domain.InternedString]domain.Artifact
	// Failures hold the current error of every failing unit.
	Failures map[domain.InternedString]error
	// GraphErr is set when the unit graph could not be loaded or validated.
	GraphErr error

	// graph is the unit graph the artifacts were built from, used to find
	// the dependents of units removed in the next rebuild.
	graph *domain.Graph
	files map[string]file
}

func emptySnapshot() *Snapshot {
	return newSnapshot(0, nil, nil, nil, nil)
}

func newSnapshot(
	generation uint64,
	units map[domain.InternedString]bool,
	artifacts map[domain.InternedString]domain.Artifact,
	failures map[domain.InternedString]error,
	graphErr error,
) *Snapshot {
	if units == nil {
		units = make(map[domain.InternedString]bool)
	}
	if artifacts == nil {
		artifacts = make(map[domain.InternedString]domain.Artifact)
	}
	if failures == nil {
		failures = make(map[domain.InternedString]error)
	}

	state := StateReady
	if graphErr != nil || len(failures) > 0 {
		state = StateFailed
	}

	files := make(map[string]file, len(artifacts)*2)
	for _, a := range artifacts {
		files[a.Path] = file{body: a.Code, contentType: "application/javascript; charset=utf-8"}
		if len(a.Map) > 0 {
			files[a.Path+".map"] = file{body: a.Map, contentType: "application/json"}
		}
	}

	return &Snapshot{
		Generation: generation,
		State:      state,
		Units:      units,
		Artifacts:  artifacts,
		Failures:   failures,
		GraphErr:   graphErr,
		files:      files,
	}
}

// withGraphError returns a successor that keeps every artifact and records err.
func (s *Snapshot) withGraphError(generation uint64, err error) *Snapshot {
	next := newSnapshot(generation, s.Units, s.Artifacts, s.Failures, err)
	next.graph = s.graph
	return next
}

// merge returns the successor of s after a driver run over targets on graph.
// Removed units lose their artifacts. Failed units keep their last good artifact.
// A unit the run compiled or failed again replaces its previous failure.
func (s *Snapshot) merge(
	generation uint64,
	graph *domain.Graph,
	units map[domain.InternedString]bool,
	targets []domain.InternedString,
	result *domain.BuildResult,
) *Snapshot {
	artifacts := make(map[domain.InternedString]domain.Artifact, len(units))
	for u, a := range s.Artifacts {
		if units[u] {
			artifacts[u] = a
		}
	}
	failures := make(map[domain.InternedString]error)
	for u, err := range s.Failures {
		if !units[u] || slices.Contains(targets, u) {
			continue
		}
		if _, rebuilt := result.Artifacts[u]; rebuilt {
			continue
		}
		failures[u] = err
	}

	maps.Copy(artifacts, result.Artifacts)
	maps.Copy(failures, result.Failures)

	next := newSnapshot(generation, units, artifacts, failures, nil)
	next.graph = graph
	return next
}

// Lookup returns the artifact body served at path, relative to the server root.
func (s *Snapshot) Lookup(path string) ([]byte, string, bool) {
	f, ok := s.files[path]
	return f.body, f.contentType, ok
}

// Paths returns the served artifact paths, sorted.
func (s *Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.Artifacts))
	for _, a := range s.Artifacts {
		paths = append(paths, a.Path)
	}
	slices.Sort(paths)
	return paths
}

// FailureList renders the failures in unit order, the graph error first.
func (s *Snapshot) FailureList() []Failure {
	var out []Failure
	if s.GraphErr != nil {
		out = append(out, Failure{Message: s.GraphErr.Error()})
	}

	units := slices.SortedFunc(maps.Keys(s.Failures), domain.InternedString.Compare)
	for _, u := range units {
		err := s.Failures[u]
		f := Failure{Unit: u.String(), Message: err.Error()}

		var ce *domain.CompileError
		if errors.As(err, &ce) {
			f.Message = ce.Kind.Error()
			f.Diagnostics = ce.Diagnostics
		}
		out = append(out, f)
	}
	return out
}

// Event returns the reload notification for s.
func (s *Snapshot) Event() Event {
	return Event{Generation: s.Generation, State: s.State}
}

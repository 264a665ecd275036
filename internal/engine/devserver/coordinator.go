package devserver

import (
	"context"
	"maps"
	"path/filepath"
	"slices"

	"go.trai.ch/kiln/internal/adapters/fs" //nolint:depguard // Unit file classification is shared with the loader
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/engine/scheduler"
)

// change is one batch of work for the coordinator.
type change struct {
	// paths are absolute paths reported by the watcher.
	paths []string
	// resync asks for every known unit to be re-checked, after the watcher
	// was down and may have missed events.
	resync bool
}

type buildOutcome struct {
	generation uint64
	snapshot   *Snapshot
	result     *domain.BuildResult
}

// coordinate owns the rebuild state. Each relevant change starts a rebuild
// in its own goroutine; a newer change cancels it and folds its paths into
// the next one. Results of superseded rebuilds are discarded by generation,
// and only the coordinator writes accepted results to the output directory.
func (s *Server) coordinate(ctx context.Context, changes <-chan change) {
	var (
		cancel   context.CancelFunc = func() {}
		inflight []string
		building bool
	)
	defer func() { cancel() }()

	done := make(chan buildOutcome)

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-changes:
			paths := s.relevant(c)
			if len(paths) == 0 && !c.resync {
				continue
			}
			if building {
				cancel()
				paths = mergePaths(inflight, paths)
			}

			s.generation++
			generation := s.generation
			prev := s.snapshot.Load()

			var buildCtx context.Context
			buildCtx, cancel = context.WithCancel(ctx)
			inflight, building = paths, true
			s.building.Store(true)

			go func() {
				snap, result := s.rebuild(buildCtx, generation, prev, paths)
				select {
				case done <- buildOutcome{generation: generation, snapshot: snap, result: result}:
				case <-ctx.Done():
				}
			}()

		case out := <-done:
			if out.generation != s.generation {
				continue
			}
			cancel()
			inflight, building = nil, false
			s.building.Store(false)
			if out.snapshot == nil {
				continue
			}
			if out.result != nil {
				s.emit(out.result, out.snapshot)
			}
			s.publish(out.snapshot)
		}
	}
}

// relevant returns the root-relative unit paths of c whose content really
// changed. A resync re-checks every unit of the current snapshot.
func (s *Server) relevant(c change) []string {
	candidates := make([]string, 0, len(c.paths))
	for _, p := range c.paths {
		if fs.IsUnitFile(p) {
			candidates = append(candidates, p)
		}
	}
	if c.resync {
		for u := range s.snapshot.Load().Units {
			candidates = append(candidates, filepath.Join(s.cfg.Project.Root, filepath.FromSlash(u.String())))
		}
	}

	var rel []string
	for _, p := range s.contents.Changed(candidates) {
		r, err := filepath.Rel(s.cfg.Project.Root, p)
		if err != nil {
			continue
		}
		rel = append(rel, filepath.ToSlash(r))
	}
	slices.Sort(rel)
	return slices.Compact(rel)
}

// rebuild rescans the unit graph and recompiles the changed units, the
// units they affect and every unit new since prev. Units that imported a
// removed unit are rebuilt too, since their specifiers may now resolve
// elsewhere. It returns the snapshot to publish with the driver result to
// emit, or a nil snapshot if nothing needs publishing or ctx was canceled.
// The result is nil when the graph failed and nothing new was built.
// changed == nil against an empty prev is the initial full build.
func (s *Server) rebuild(
	ctx context.Context,
	generation uint64,
	prev *Snapshot,
	changed []string,
) (*Snapshot, *domain.BuildResult) {
	graph, err := s.loader.Load(s.cfg.Project)
	if err == nil {
		err = graph.Validate()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return prev.withGraphError(generation, err), nil
	}

	units := make(map[domain.InternedString]bool, graph.UnitCount())
	seeds := domain.InternAll(changed)
	for _, p := range graph.Paths() {
		units[p] = true
		if !prev.Units[p] {
			seeds = append(seeds, p)
			if u, ok := graph.GetUnit(p); ok {
				s.contents.Record(filepath.Join(s.cfg.Project.Root, filepath.FromSlash(p.String())), u.Source)
			}
		}
	}

	var removed []domain.InternedString
	for u := range prev.Units {
		if !units[u] {
			removed = append(removed, u)
		}
	}
	if len(removed) > 0 && prev.graph != nil {
		for _, u := range prev.graph.Affected(removed) {
			if units[u] {
				seeds = append(seeds, u)
			}
		}
	}

	// Changes made while the graph was broken were consumed without a build.
	if prev.GraphErr != nil {
		seeds = graph.Paths()
	}

	targets := graph.Affected(seeds)
	if len(targets) == 0 {
		if len(removed) == 0 {
			return nil, nil
		}
		result := domain.NewBuildResult()
		return prev.merge(generation, graph, units, nil, result), result
	}

	result, err := s.driver.Run(ctx, graph, s.cfg.Lock, s.cfg.Project.Options, targets,
		scheduler.RunOptions{Parallelism: s.cfg.Parallelism})
	if ctx.Err() != nil {
		return nil, nil
	}
	if result == nil {
		return prev.withGraphError(generation, err), nil
	}

	return prev.merge(generation, graph, units, targets, result), result
}

// emit mirrors the snapshot into the output directory.
func (s *Server) emit(result *domain.BuildResult, snap *Snapshot) {
	outDir := filepath.Join(s.cfg.Project.Root, s.cfg.Project.OutDir)

	artifacts := make([]domain.Artifact, 0, len(result.Artifacts))
	for _, u := range slices.SortedFunc(maps.Keys(result.Artifacts), domain.InternedString.Compare) {
		artifacts = append(artifacts, result.Artifacts[u])
	}

	if err := s.emitter.Emit(outDir, artifacts); err != nil {
		s.logger.Error(err)
		return
	}
	if err := s.emitter.Prune(outDir, snap.Paths()); err != nil {
		s.logger.Error(err)
	}
}

func mergePaths(a, b []string) []string {
	out := slices.Concat(a, b)
	slices.Sort(out)
	return slices.Compact(out)
}

// Package scheduler drives incremental compilation of a unit graph.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"golang.org/x/sync/singleflight"
)

// UnitStatus represents the status of a unit.
type UnitStatus string

const (
	// StatusPending indicates the unit is waiting for its imports.
	StatusPending UnitStatus = "Pending"
	// StatusRunning indicates the unit is being fingerprinted or compiled.
	StatusRunning UnitStatus = "Running"
	// StatusCompiled indicates the unit was compiled in this run.
	StatusCompiled UnitStatus = "Compiled"
	// StatusCached indicates the unit's output came from the build cache.
	StatusCached UnitStatus = "Cached"
	// StatusFailed indicates the unit or one of its imports failed.
	StatusFailed UnitStatus = "Failed"
)

// RunOptions configures one driver run.
type RunOptions struct {
	// Parallelism bounds concurrently processed units. Values below 1 mean 1.
	Parallelism int
	// NoCache skips build cache lookups. Fresh results are still stored.
	NoCache bool
}

// Scheduler manages the compilation of units in the import graph.
type Scheduler struct {
	compiler      ports.Compiler
	cache         ports.ArtifactCache
	fingerprinter ports.Fingerprinter
	reporter      ports.Reporter
	metrics       ports.Metrics
	logger        ports.Logger

	// flights de-duplicates compiles of one fingerprint across concurrent runs.
	flights singleflight.Group

	mu         sync.RWMutex
	unitStatus map[domain.InternedString]UnitStatus
}

// NewScheduler creates a new Scheduler with the given dependencies.
func NewScheduler(
	compiler ports.Compiler,
	cache ports.ArtifactCache,
	fingerprinter ports.Fingerprinter,
	reporter ports.Reporter,
	metrics ports.Metrics,
	logger ports.Logger,
) *Scheduler {
	return &Scheduler{
		compiler:      compiler,
		cache:         cache,
		fingerprinter: fingerprinter,
		reporter:      reporter,
		metrics:       metrics,
		logger:        logger,
		unitStatus:    make(map[domain.InternedString]UnitStatus),
	}
}

func (s *Scheduler) initUnitStatuses(units []domain.InternedString) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range units {
		s.unitStatus[u] = StatusPending
	}
}

func (s *Scheduler) updateStatus(name domain.InternedString, status UnitStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unitStatus[name] = status
}

// Run compiles the targets and every unit they transitively import.
// No targets selects the whole graph.
//
// Units start once all of their imports have finished, at most
// opts.Parallelism at a time. A failed unit fails its dependents with
// domain.ErrDependencyFailed while unrelated units continue. The result
// holds every artifact produced and every failure; the returned error joins
// the failures and is nil only when every unit succeeded.
func (s *Scheduler) Run(
	ctx context.Context,
	graph *domain.Graph,
	lock *domain.Lockfile,
	options domain.CompilerOptions,
	targets []domain.InternedString,
	opts RunOptions,
) (*domain.BuildResult, error) {
	start := time.Now()

	if err := graph.Validate(); err != nil {
		return nil, errors.Join(domain.ErrConfigError, err)
	}

	state, err := s.newRunState(ctx, graph, lock, options, targets, opts)
	if err != nil {
		return nil, err
	}

	targetNames := make([]string, len(targets))
	for i, t := range targets {
		targetNames[i] = t.String()
	}
	s.reporter.OnPlan(state.plan, targetNames)
	s.initUnitStatuses(state.allUnits)

	err = state.runExecutionLoop()

	outcome := "success"
	switch {
	case ctx.Err() != nil:
		outcome = "canceled"
	case err != nil:
		outcome = "failure"
	}
	s.metrics.ObserveBuild(outcome, time.Since(start))

	return state.result, err
}

type result struct {
	unit     domain.InternedString
	artifact domain.Artifact
	err      error
}

type schedulerRunState struct {
	graph        *domain.Graph
	lock         *domain.Lockfile
	options      domain.CompilerOptions
	config       string
	inDegree     map[domain.InternedString]int
	units        map[domain.InternedString]*domain.Unit
	fingerprints map[domain.InternedString]string
	ready        []domain.InternedString
	active       int
	resultsCh    chan result
	errs         error
	ctx          context.Context
	parallelism  int
	noCache      bool
	s            *Scheduler
	allUnits     []domain.InternedString
	plan         []string
	result       *domain.BuildResult
}

func (s *Scheduler) newRunState(
	ctx context.Context,
	graph *domain.Graph,
	lock *domain.Lockfile,
	options domain.CompilerOptions,
	targets []domain.InternedString,
	opts RunOptions,
) (*schedulerRunState, error) {
	closure, err := graph.Closure(targets)
	if err != nil {
		return nil, err
	}

	parallelism := max(opts.Parallelism, 1)
	state := &schedulerRunState{
		graph:        graph,
		lock:         lock,
		options:      options,
		config:       options.Key() + ";compiler=" + s.compiler.Version(),
		inDegree:     make(map[domain.InternedString]int, len(closure)),
		units:        make(map[domain.InternedString]*domain.Unit, len(closure)),
		fingerprints: make(map[domain.InternedString]string, len(closure)),
		resultsCh:    make(chan result, parallelism),
		ctx:          ctx,
		parallelism:  parallelism,
		noCache:      opts.NoCache,
		s:            s,
		result:       domain.NewBuildResult(),
	}

	// Walk yields imports first, so the ready queue starts in a stable order.
	for u := range graph.Walk() {
		if !closure[u.Path] {
			continue
		}
		state.units[u.Path] = &u
		state.allUnits = append(state.allUnits, u.Path)
		state.plan = append(state.plan, u.Path.String())

		state.inDegree[u.Path] = len(u.Imports)
		if len(u.Imports) == 0 {
			state.ready = append(state.ready, u.Path)
		}
	}

	return state, nil
}

func (state *schedulerRunState) runExecutionLoop() error {
	// done is cleared once observed so a canceled run blocks on in-flight results.
	done := state.ctx.Done()
	for !state.isDone() {
		state.schedule()

		if state.isDone() {
			break
		}

		if state.ctx.Err() != nil && state.active == 0 {
			return errors.Join(state.errs, state.ctx.Err())
		}

		select {
		case res := <-state.resultsCh:
			state.handleResult(res)
		case <-done:
			done = nil
		}
	}

	if state.ctx.Err() != nil {
		state.errs = errors.Join(state.errs, state.ctx.Err())
	}

	return state.errs
}

func (state *schedulerRunState) isDone() bool {
	return state.active == 0 && len(state.ready) == 0
}

func (state *schedulerRunState) schedule() {
	for len(state.ready) > 0 && state.active < state.parallelism && state.ctx.Err() == nil {
		name := state.ready[0]
		state.ready = state.ready[1:]

		u := state.units[name]
		imports := make(map[domain.InternedString]string, len(u.Imports))
		for _, dep := range u.Imports {
			imports[dep] = state.fingerprints[dep]
		}

		state.active++
		state.s.updateStatus(name, StatusRunning)
		state.s.reporter.OnUnitStart(name.String(), time.Now())

		go state.executeUnit(u, imports)
	}
}

// executeUnit fingerprints one unit and produces its artifact from the
// build cache or the compiler. It runs on a worker goroutine and only
// reports back through resultsCh.
func (state *schedulerRunState) executeUnit(u *domain.Unit, imports map[domain.InternedString]string) {
	res := func() result {
		fp := state.s.fingerprinter.Fingerprint(u, imports, state.lock, state.config)
		artifact := domain.Artifact{
			Unit:        u.Path,
			Path:        domain.OutputPath(u.Path.String()),
			Fingerprint: fp,
		}

		if !state.noCache {
			entry, err := state.s.cache.Get(state.graph.Root(), fp)
			if err != nil {
				state.s.logger.Warn("ignoring unreadable cache entry for " + u.Path.String() + ": " + err.Error())
			}
			if entry != nil {
				artifact.Code = entry.Code
				artifact.Map = entry.Map
				artifact.Diagnostics = entry.Diagnostics
				artifact.Cached = true
				return result{unit: u.Path, artifact: artifact}
			}
		}

		out, err := state.compile(u, fp)
		if err != nil {
			return result{unit: u.Path, err: err}
		}
		artifact.Code = out.Code
		artifact.Map = out.Map
		artifact.Diagnostics = out.Diagnostics
		return result{unit: u.Path, artifact: artifact}
	}()

	state.resultsCh <- res
}

// compile runs the compiler at most once per fingerprint across concurrent
// runs and stores successful output in the build cache.
func (state *schedulerRunState) compile(u *domain.Unit, fp string) (domain.CompileOutput, error) {
	v, err, _ := state.s.flights.Do(fp, func() (any, error) {
		out, err := state.s.compiler.Compile(state.ctx, domain.CompileRequest{
			Unit:    u,
			Imports: state.units,
			Lock:    state.lock,
			Options: state.options,
		})
		if err != nil {
			return nil, err
		}

		entry := domain.CacheEntry{
			Fingerprint: fp,
			Unit:        u.Path.String(),
			Code:        out.Code,
			Map:         out.Map,
			Diagnostics: out.Diagnostics,
			CreatedAt:   time.Now().UTC(),
		}
		if err := state.s.cache.Put(state.graph.Root(), entry); err != nil {
			state.s.logger.Warn("failed to cache " + u.Path.String() + ": " + err.Error())
		}
		return out, nil
	})
	if err != nil {
		return domain.CompileOutput{}, err
	}
	return v.(domain.CompileOutput), nil
}

func (state *schedulerRunState) handleResult(res result) {
	state.active--

	if res.err != nil {
		state.fail(res.unit, res.err)
		state.propagateFailure(res.unit)
		return
	}
	state.handleSuccess(res)
}

func (state *schedulerRunState) fail(name domain.InternedString, err error) {
	state.result.Failures[name] = err
	state.errs = errors.Join(state.errs, err)
	state.s.updateStatus(name, StatusFailed)
	state.s.metrics.ObserveUnit("failed")
	state.s.reporter.OnUnitComplete(name.String(), time.Now(), false, err)
}

// propagateFailure fails every dependent of name within the run. Those
// units never reach the ready queue.
func (state *schedulerRunState) propagateFailure(name domain.InternedString) {
	queue := []domain.InternedString{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, dep := range state.graph.Dependents(current) {
			if _, ok := state.units[dep]; !ok {
				continue
			}
			if _, failed := state.result.Failures[dep]; failed {
				continue
			}
			state.fail(dep, domain.WithMeta(domain.ErrDependencyFailed,
				"unit", dep.String(),
				"dependency", current.String()))
			queue = append(queue, dep)
		}
	}
}

func (state *schedulerRunState) handleSuccess(res result) {
	status, outcome := StatusCompiled, "compiled"
	if res.artifact.Cached {
		status, outcome = StatusCached, "cached"
		state.result.Cached++
	} else {
		state.result.Compiled++
	}

	state.fingerprints[res.unit] = res.artifact.Fingerprint
	state.result.Artifacts[res.unit] = res.artifact
	state.s.updateStatus(res.unit, status)
	state.s.metrics.ObserveUnit(outcome)
	state.s.reporter.OnUnitComplete(res.unit.String(), time.Now(), res.artifact.Cached, nil)

	for _, dep := range state.graph.Dependents(res.unit) {
		// Only consider dependents that are part of the current run.
		if _, ok := state.units[dep]; !ok {
			continue
		}
		if _, failed := state.result.Failures[dep]; failed {
			continue
		}
		state.inDegree[dep]--
		if state.inDegree[dep] == 0 {
			state.ready = append(state.ready, dep)
		}
	}
}

// Package app implements the application layer for kiln.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/devserver"
	"go.trai.ch/kiln/internal/engine/resolver"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.trai.ch/zerr"
)

// Resolver pins a manifest into a lock file. *resolver.Resolver implements it.
type Resolver interface {
	Resolve(
		ctx context.Context,
		root string,
		manifest domain.Manifest,
		opts resolver.Options,
	) (*domain.Lockfile, bool, error)
}

// Reporter is the build progress sink used by Build.
type Reporter interface {
	Summary(d time.Duration)
}

// Metrics is the recorder shared by the driver and the artifact server.
type Metrics interface {
	ports.Metrics
	Handler() http.Handler
}

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	resolver     Resolver
	driver       devserver.Driver
	units        ports.UnitLoader
	emitter      ports.Emitter
	locks        ports.LockStore
	watchers     ports.WatcherFactory
	reporter     Reporter
	metrics      Metrics
	logger       ports.Logger
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	res Resolver,
	driver devserver.Driver,
	units ports.UnitLoader,
	emitter ports.Emitter,
	locks ports.LockStore,
	watchers ports.WatcherFactory,
	reporter Reporter,
	metrics Metrics,
	log ports.Logger,
) *App {
	return &App{
		configLoader: loader,
		resolver:     res,
		driver:       driver,
		units:        units,
		emitter:      emitter,
		locks:        locks,
		watchers:     watchers,
		reporter:     reporter,
		metrics:      metrics,
		logger:       log,
	}
}

// ResolveOptions configuration for the Resolve method.
type ResolveOptions struct {
	Update bool
}

// Resolve pins the project's dependencies into kiln.lock.
func (a *App) Resolve(ctx context.Context, cwd string, opts ResolveOptions) error {
	project, err := a.configLoader.Load(cwd)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}

	lock, changed, err := a.resolver.Resolve(ctx, project.Root, project.Manifest, resolver.Options{Update: opts.Update})
	if err != nil {
		return err
	}
	if !changed {
		a.logger.Info(fmt.Sprintf("%s is up to date, %d locked", domain.LockFileName, len(lock.Packages)))
	}
	return nil
}

// BuildOptions configuration for the Build method.
type BuildOptions struct {
	NoCache     bool
	Parallelism int
	// Targets are unit paths relative to cwd. Empty means every unit.
	Targets []string
}

// Build compiles the project into its outDir.
//
//nolint:cyclop // orchestration function
func (a *App) Build(ctx context.Context, cwd string, opts BuildOptions) error {
	project, err := a.configLoader.Load(cwd)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}

	lock, err := a.loadLock(project)
	if err != nil {
		return err
	}

	graph, err := a.units.Load(project)
	if err != nil {
		return err
	}

	targets, err := unitTargets(project.Root, cwd, opts.Targets)
	if err != nil {
		return err
	}

	start := time.Now()
	result, runErr := a.driver.Run(ctx, graph, lock, project.Options, targets, scheduler.RunOptions{
		Parallelism: parallelism(opts.Parallelism),
		NoCache:     opts.NoCache,
	})
	if result == nil {
		return runErr
	}

	outDir := filepath.Join(project.Root, project.OutDir)
	if err := a.emitter.Emit(outDir, sortedArtifacts(result)); err != nil {
		return err
	}
	if len(targets) == 0 && runErr == nil {
		if err := a.emitter.Prune(outDir, outputPaths(graph)); err != nil {
			return err
		}
	}

	a.reporter.Summary(time.Since(start))

	if runErr != nil {
		return errors.Join(domain.ErrBuildFailed, runErr)
	}
	return nil
}

// ServeOptions configuration for the Serve method.
type ServeOptions struct {
	Addr        string
	Parallelism int
}

// Serve runs the artifact server until ctx is done.
func (a *App) Serve(ctx context.Context, cwd string, opts ServeOptions) error {
	project, err := a.configLoader.Load(cwd)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}

	lock, err := a.loadLock(project)
	if err != nil {
		return err
	}

	srv := devserver.New(
		devserver.Config{
			Project:     project,
			Lock:        lock,
			Addr:        opts.Addr,
			Parallelism: parallelism(opts.Parallelism),
		},
		a.units,
		a.driver,
		a.emitter,
		a.watchers,
		a.logger,
		a.metrics,
		a.metrics.Handler(),
	)
	return srv.Run(ctx)
}

// CleanOptions configuration for the Clean method.
type CleanOptions struct {
	// Cache also removes the build cache and fetched metadata.
	Cache bool
	// All removes the whole .kiln directory.
	All bool
}

// Clean removes build output and, on request, cached state.
func (a *App) Clean(_ context.Context, cwd string, options CleanOptions) error {
	project, err := a.configLoader.Load(cwd)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}

	var errs error

	remove := func(rel, name string) {
		path := filepath.Join(project.Root, rel)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return
		}
		if err := os.RemoveAll(path); err != nil {
			errs = errors.Join(errs, domain.WithMeta(zerr.Wrap(err, "failed to remove "+name), "path", path))
			return
		}
		a.logger.Info("removed " + name)
	}

	remove(project.OutDir, "build output")

	switch {
	case options.All:
		remove(domain.DefaultKilnPath(), "kiln state")
	case options.Cache:
		remove(domain.DefaultArtifactStorePath(), "build cache")
		remove(domain.DefaultCachePath(), "registry cache")
	}

	return errs
}

// loadLock reads kiln.lock and warns when it no longer matches the manifest.
func (a *App) loadLock(project *domain.Project) (*domain.Lockfile, error) {
	lock, err := a.locks.Load(project.Root)
	if err != nil {
		return nil, err
	}

	if len(project.Manifest.Dependencies) == 0 {
		return lock, nil
	}
	switch {
	case lock == nil:
		a.logger.Warn(domain.LockFileName + " is missing, run kiln resolve")
	case lock.ManifestDigest != project.Manifest.Digest():
		a.logger.Warn(domain.LockFileName + " is out of date, run kiln resolve")
	}
	return lock, nil
}

// unitTargets converts cwd-relative paths into root-relative unit paths.
func unitTargets(root, cwd string, paths []string) ([]domain.InternedString, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	absCwd, err := filepath.Abs(cwd)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrFailedToGetRoot.Error())
	}

	out := make([]domain.InternedString, 0, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(absCwd, p)
		}
		rel, err := filepath.Rel(root, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, domain.WithMeta(domain.ErrUnitNotFound, "unit", p)
		}
		out = append(out, domain.NewInternedString(filepath.ToSlash(rel)))
	}
	return out, nil
}

func parallelism(n int) int {
	if n > 0 {
		return n
	}
	return runtime.NumCPU()
}

func sortedArtifacts(result *domain.BuildResult) []domain.Artifact {
	out := make([]domain.Artifact, 0, len(result.Artifacts))
	for _, art := range result.Artifacts {
		out = append(out, art)
	}
	slices.SortFunc(out, func(x, y domain.Artifact) int {
		return strings.Compare(x.Path, y.Path)
	})
	return out
}

func outputPaths(graph *domain.Graph) []string {
	var keep []string
	for u := range graph.Walk() {
		keep = append(keep, domain.OutputPath(u.Path.String()))
	}
	return keep
}

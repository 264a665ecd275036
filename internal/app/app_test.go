package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/metrics"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/resolver"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.uber.org/mock/gomock"
)

type fakeResolver struct {
	calls   []resolver.Options
	lock    *domain.Lockfile
	changed bool
	err     error
}

func (r *fakeResolver) Resolve(
	_ context.Context,
	_ string,
	_ domain.Manifest,
	opts resolver.Options,
) (*domain.Lockfile, bool, error) {
	r.calls = append(r.calls, opts)
	return r.lock, r.changed, r.err
}

type driverCall struct {
	lock    *domain.Lockfile
	targets []domain.InternedString
	opts    scheduler.RunOptions
}

type fakeDriver struct {
	calls  []driverCall
	result *domain.BuildResult
	err    error
}

func (d *fakeDriver) Run(
	_ context.Context,
	_ *domain.Graph,
	lock *domain.Lockfile,
	_ domain.CompilerOptions,
	targets []domain.InternedString,
	opts scheduler.RunOptions,
) (*domain.BuildResult, error) {
	d.calls = append(d.calls, driverCall{lock: lock, targets: targets, opts: opts})
	return d.result, d.err
}

type fakeReporter struct {
	summaries int
}

func (r *fakeReporter) Summary(time.Duration) {
	r.summaries++
}

type appTest struct {
	app      *app.App
	root     string
	project  *domain.Project
	loader   *mocks.MockConfigLoader
	units    *mocks.MockUnitLoader
	emitter  *mocks.MockEmitter
	locks    *mocks.MockLockStore
	logger   *mocks.MockLogger
	resolver *fakeResolver
	driver   *fakeDriver
	reporter *fakeReporter
}

func setupAppTest(t *testing.T) *appTest {
	t.Helper()
	ctrl := gomock.NewController(t)

	root := t.TempDir()
	tt := &appTest{
		root: root,
		project: &domain.Project{
			Root:    root,
			Sources: []string{"src"},
			OutDir:  "dist",
			Options: domain.DefaultCompilerOptions(),
			Addr:    domain.DefaultAddr,
		},
		loader:   mocks.NewMockConfigLoader(ctrl),
		units:    mocks.NewMockUnitLoader(ctrl),
		emitter:  mocks.NewMockEmitter(ctrl),
		locks:    mocks.NewMockLockStore(ctrl),
		logger:   mocks.NewMockLogger(ctrl),
		resolver: &fakeResolver{},
		driver:   &fakeDriver{},
		reporter: &fakeReporter{},
	}
	tt.loader.EXPECT().Load(gomock.Any()).Return(tt.project, nil).AnyTimes()

	tt.app = app.New(
		tt.loader,
		tt.resolver,
		tt.driver,
		tt.units,
		tt.emitter,
		tt.locks,
		nil,
		tt.reporter,
		metrics.NewRecorder(),
		tt.logger,
	)
	return tt
}

func testGraph(t *testing.T, paths ...string) *domain.Graph {
	t.Helper()
	g := domain.NewGraph()
	for _, p := range paths {
		require.NoError(t, g.AddUnit(&domain.Unit{Path: domain.NewInternedString(p)}))
	}
	require.NoError(t, g.Validate())
	return g
}

func artifact(path string) domain.Artifact {
	return domain.Artifact{
		Unit: domain.NewInternedString(path),
		Path: domain.OutputPath(path),
		Code: []byte("compiled " + path),
	}
}

func TestApp_Resolve(t *testing.T) {
	t.Run("up to date lock is reported", func(t *testing.T) {
		tt := setupAppTest(t)
		lock := domain.NewLockfile("d")
		lock.Packages["left-pad"] = domain.LockedPackage{Version: "1.3.0"}
		tt.resolver.lock = lock

		tt.logger.EXPECT().Info("kiln.lock is up to date, 1 locked")

		require.NoError(t, tt.app.Resolve(context.Background(), tt.root, app.ResolveOptions{}))
		assert.Equal(t, []resolver.Options{{}}, tt.resolver.calls)
	})

	t.Run("update is forwarded", func(t *testing.T) {
		tt := setupAppTest(t)
		tt.resolver.lock = domain.NewLockfile("d")
		tt.resolver.changed = true

		require.NoError(t, tt.app.Resolve(context.Background(), tt.root, app.ResolveOptions{Update: true}))
		assert.Equal(t, []resolver.Options{{Update: true}}, tt.resolver.calls)
	})

	t.Run("resolution failure is returned", func(t *testing.T) {
		tt := setupAppTest(t)
		tt.resolver.err = domain.WithMeta(domain.ErrUnsatisfiableConstraint, "package", "left-pad")

		err := tt.app.Resolve(context.Background(), tt.root, app.ResolveOptions{})
		require.ErrorIs(t, err, domain.ErrUnsatisfiableConstraint)
	})
}

func TestApp_Resolve_ConfigError(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockConfigLoader(ctrl)
	loader.EXPECT().Load(".").Return(nil, domain.ErrConfigNotFound)

	a := app.New(loader, &fakeResolver{}, &fakeDriver{}, nil, nil, nil, nil, &fakeReporter{}, metrics.NewRecorder(), nil)

	err := a.Resolve(context.Background(), ".", app.ResolveOptions{})
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrConfigNotFound.Error())
}

func TestApp_Build_Success(t *testing.T) {
	tt := setupAppTest(t)
	graph := testGraph(t, "src/b.ts", "src/a.ts")
	lock := domain.NewLockfile(tt.project.Manifest.Digest())

	result := domain.NewBuildResult()
	for _, p := range []string{"src/b.ts", "src/a.ts"} {
		result.Artifacts[domain.NewInternedString(p)] = artifact(p)
	}
	tt.driver.result = result

	outDir := filepath.Join(tt.root, "dist")
	tt.locks.EXPECT().Load(tt.root).Return(lock, nil)
	tt.units.EXPECT().Load(tt.project).Return(graph, nil)
	tt.emitter.EXPECT().Emit(outDir, []domain.Artifact{artifact("src/a.ts"), artifact("src/b.ts")}).Return(nil)
	tt.emitter.EXPECT().Prune(outDir, gomock.InAnyOrder([]string{"src/a.js", "src/b.js"})).Return(nil)

	err := tt.app.Build(context.Background(), tt.root, app.BuildOptions{Parallelism: 3, NoCache: true})
	require.NoError(t, err)

	require.Len(t, tt.driver.calls, 1)
	call := tt.driver.calls[0]
	assert.Same(t, lock, call.lock)
	assert.Empty(t, call.targets)
	assert.Equal(t, scheduler.RunOptions{Parallelism: 3, NoCache: true}, call.opts)
	assert.Equal(t, 1, tt.reporter.summaries)
}

func TestApp_Build_UnitFailure(t *testing.T) {
	tt := setupAppTest(t)
	graph := testGraph(t, "src/a.ts", "src/b.ts")

	result := domain.NewBuildResult()
	result.Artifacts[domain.NewInternedString("src/a.ts")] = artifact("src/a.ts")
	failure := &domain.CompileError{Kind: domain.ErrTypeError, Unit: "src/b.ts"}
	result.Failures[domain.NewInternedString("src/b.ts")] = failure
	tt.driver.result = result
	tt.driver.err = result.Err()

	tt.locks.EXPECT().Load(tt.root).Return(nil, nil)
	tt.units.EXPECT().Load(tt.project).Return(graph, nil)
	tt.emitter.EXPECT().Emit(filepath.Join(tt.root, "dist"), []domain.Artifact{artifact("src/a.ts")}).Return(nil)

	err := tt.app.Build(context.Background(), tt.root, app.BuildOptions{})
	require.ErrorIs(t, err, domain.ErrBuildFailed)
	assert.ErrorIs(t, err, domain.ErrTypeError)
	assert.Equal(t, 1, tt.reporter.summaries)
}

func TestApp_Build_ConfigErrorEmitsNothing(t *testing.T) {
	tt := setupAppTest(t)
	tt.driver.err = errors.Join(domain.ErrConfigError, domain.ErrCycleDetected)

	tt.locks.EXPECT().Load(tt.root).Return(nil, nil)
	tt.units.EXPECT().Load(tt.project).Return(testGraph(t, "src/a.ts"), nil)

	err := tt.app.Build(context.Background(), tt.root, app.BuildOptions{})
	require.ErrorIs(t, err, domain.ErrConfigError)
	assert.NotErrorIs(t, err, domain.ErrBuildFailed)
	assert.Zero(t, tt.reporter.summaries)
}

func TestApp_Build_TargetsAreRootRelative(t *testing.T) {
	tt := setupAppTest(t)
	tt.driver.result = domain.NewBuildResult()

	tt.locks.EXPECT().Load(tt.root).Return(nil, nil)
	tt.units.EXPECT().Load(tt.project).Return(testGraph(t, "src/main.ts"), nil)
	tt.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)

	cwd := filepath.Join(tt.root, "src")
	err := tt.app.Build(context.Background(), cwd, app.BuildOptions{Targets: []string{"main.ts"}})
	require.NoError(t, err)

	require.Len(t, tt.driver.calls, 1)
	assert.Equal(t, domain.InternAll([]string{"src/main.ts"}), tt.driver.calls[0].targets)
}

func TestApp_Build_TargetOutsideRoot(t *testing.T) {
	tt := setupAppTest(t)
	tt.locks.EXPECT().Load(tt.root).Return(nil, nil)
	tt.units.EXPECT().Load(tt.project).Return(testGraph(t, "src/main.ts"), nil)

	err := tt.app.Build(context.Background(), tt.root, app.BuildOptions{Targets: []string{"../elsewhere.ts"}})
	require.ErrorIs(t, err, domain.ErrUnitNotFound)
	assert.Empty(t, tt.driver.calls)
}

func TestApp_Build_WarnsOnStaleLock(t *testing.T) {
	tests := []struct {
		name string
		lock *domain.Lockfile
		want string
	}{
		{name: "missing", lock: nil, want: "kiln.lock is missing, run kiln resolve"},
		{name: "stale", lock: domain.NewLockfile("old"), want: "kiln.lock is out of date, run kiln resolve"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tt := setupAppTest(t)
			tt.project.Manifest = domain.Manifest{Dependencies: map[string]string{"left-pad": "^1.0.0"}}
			tt.driver.result = domain.NewBuildResult()

			tt.locks.EXPECT().Load(tt.root).Return(tc.lock, nil)
			tt.logger.EXPECT().Warn(tc.want)
			tt.units.EXPECT().Load(tt.project).Return(testGraph(t, "src/a.ts"), nil)
			tt.emitter.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil)
			tt.emitter.EXPECT().Prune(gomock.Any(), gomock.Any()).Return(nil)

			require.NoError(t, tt.app.Build(context.Background(), tt.root, app.BuildOptions{}))
		})
	}
}

func TestApp_Serve_ListenFailure(t *testing.T) {
	tt := setupAppTest(t)
	tt.locks.EXPECT().Load(tt.root).Return(nil, nil)

	err := tt.app.Serve(context.Background(), tt.root, app.ServeOptions{Addr: "127.0.0.1:-1"})
	require.Error(t, err)
	assert.ErrorContains(t, err, domain.ErrServerFailed.Error())
}

func TestApp_Clean(t *testing.T) {
	dirs := []string{
		"dist/src",
		".kiln/store/artifacts/ab",
		".kiln/store/packages/cd",
		".kiln/cache/registry",
	}
	setup := func(t *testing.T) *appTest {
		t.Helper()
		tt := setupAppTest(t)
		for _, d := range dirs {
			require.NoError(t, os.MkdirAll(filepath.Join(tt.root, d), 0o750))
		}
		return tt
	}
	exists := func(root, rel string) bool {
		_, err := os.Stat(filepath.Join(root, rel))
		return err == nil
	}

	t.Run("default removes build output", func(t *testing.T) {
		tt := setup(t)
		tt.logger.EXPECT().Info("removed build output")

		require.NoError(t, tt.app.Clean(context.Background(), tt.root, app.CleanOptions{}))
		assert.False(t, exists(tt.root, "dist"))
		assert.True(t, exists(tt.root, ".kiln/store/artifacts"))
	})

	t.Run("cache keeps fetched packages", func(t *testing.T) {
		tt := setup(t)
		tt.logger.EXPECT().Info(gomock.Any()).Times(3)

		require.NoError(t, tt.app.Clean(context.Background(), tt.root, app.CleanOptions{Cache: true}))
		assert.False(t, exists(tt.root, ".kiln/store/artifacts"))
		assert.False(t, exists(tt.root, ".kiln/cache"))
		assert.True(t, exists(tt.root, ".kiln/store/packages/cd"))
	})

	t.Run("all removes state", func(t *testing.T) {
		tt := setup(t)
		tt.logger.EXPECT().Info(gomock.Any()).Times(2)

		require.NoError(t, tt.app.Clean(context.Background(), tt.root, app.CleanOptions{All: true}))
		assert.False(t, exists(tt.root, ".kiln"))
		assert.False(t, exists(tt.root, "dist"))
	})

	t.Run("nothing to remove is silent", func(t *testing.T) {
		tt := setupAppTest(t)
		require.NoError(t, tt.app.Clean(context.Background(), tt.root, app.CleanOptions{All: true}))
	})
}

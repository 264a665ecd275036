package scheduler_test

import (
	"context"
	"sync"
	"testing"
	"testing/synctest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.uber.org/mock/gomock"
)

type schedulerTestMocks struct {
	compiler      *mocks.MockCompiler
	cache         *mocks.MockArtifactCache
	fingerprinter *mocks.MockFingerprinter
	reporter      *mocks.MockReporter
	metrics       *mocks.MockMetrics
	logger        *mocks.MockLogger
}

// setupSchedulerTest creates a scheduler and common mocks.
func setupSchedulerTest(t *testing.T) (*scheduler.Scheduler, schedulerTestMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := schedulerTestMocks{
		compiler:      mocks.NewMockCompiler(ctrl),
		cache:         mocks.NewMockArtifactCache(ctrl),
		fingerprinter: mocks.NewMockFingerprinter(ctrl),
		reporter:      mocks.NewMockReporter(ctrl),
		metrics:       mocks.NewMockMetrics(ctrl),
		logger:        mocks.NewMockLogger(ctrl),
	}

	// Default optimistic mocks to reduce noise in specific tests.
	m.compiler.EXPECT().Version().Return("test-1").AnyTimes()
	m.fingerprinter.EXPECT().Fingerprint(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(u *domain.Unit, _ map[domain.InternedString]string, _ *domain.Lockfile, _ string) string {
			return "fp-" + u.Path.String()
		},
	).AnyTimes()
	m.reporter.EXPECT().OnPlan(gomock.Any(), gomock.Any()).AnyTimes()
	m.reporter.EXPECT().OnUnitStart(gomock.Any(), gomock.Any()).AnyTimes()
	m.reporter.EXPECT().OnUnitComplete(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
	m.metrics.EXPECT().ObserveUnit(gomock.Any()).AnyTimes()
	m.metrics.EXPECT().ObserveBuild(gomock.Any(), gomock.Any()).AnyTimes()
	m.logger.EXPECT().Warn(gomock.Any()).AnyTimes()

	s := scheduler.NewScheduler(m.compiler, m.cache, m.fingerprinter, m.reporter, m.metrics, m.logger)
	return s, m
}

// createGraphHelper constructs a graph from a map of imports.
// deps format: "unit" -> ["import1", "import2"].
func createGraphHelper(t *testing.T, deps map[string][]string) *domain.Graph {
	t.Helper()
	g := domain.NewGraph()
	g.SetRoot("/tmp/root")

	seen := make(map[string]bool)
	add := func(name string, imports []string) {
		if seen[name] {
			return
		}
		seen[name] = true
		require.NoError(t, g.AddUnit(&domain.Unit{
			Path:    domain.NewInternedString(name),
			Source:  []byte("export const x = 1;"),
			Imports: domain.InternAll(imports),
		}))
	}

	for name, imports := range deps {
		add(name, imports)
	}
	for _, imports := range deps {
		for _, d := range imports {
			add(d, nil)
		}
	}

	require.NoError(t, g.Validate())
	return g
}

func matchUnit(path string) gomock.Matcher {
	return gomock.Cond(func(req domain.CompileRequest) bool {
		return req.Unit.Path.String() == path
	})
}

func output(code string) domain.CompileOutput {
	return domain.CompileOutput{Code: []byte(code)}
}

func TestScheduler_DiamondImports(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		// a imports b and c, both import d.
		g := createGraphHelper(t, map[string][]string{
			"a.ts": {"b.ts", "c.ts"},
			"b.ts": {"d.ts"},
			"c.ts": {"d.ts"},
		})
		s, m := setupSchedulerTest(t)

		m.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
		m.cache.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

		dCall := m.compiler.EXPECT().Compile(gomock.Any(), matchUnit("d.ts")).Return(output("d"), nil).Times(1)
		bCall := m.compiler.EXPECT().Compile(gomock.Any(), matchUnit("b.ts")).Return(output("b"), nil).Times(1).After(dCall)
		cCall := m.compiler.EXPECT().Compile(gomock.Any(), matchUnit("c.ts")).Return(output("c"), nil).Times(1).After(dCall)
		m.compiler.EXPECT().Compile(gomock.Any(), matchUnit("a.ts")).Return(output("a"), nil).Times(1).After(bCall).After(cCall)

		res, err := s.Run(context.Background(), g, nil, domain.DefaultCompilerOptions(), nil, scheduler.RunOptions{Parallelism: 4})
		require.NoError(t, err)
		assert.Equal(t, 4, res.Compiled)
		assert.Zero(t, res.Cached)
		assert.Equal(t, "a.js", res.Artifacts[domain.NewInternedString("a.ts")].Path)
		assert.Equal(t, []byte("a"), res.Artifacts[domain.NewInternedString("a.ts")].Code)
	})
}

func TestScheduler_ImportFingerprintsFeedDependents(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		g := createGraphHelper(t, map[string][]string{"a.ts": {"b.ts"}})
		s, m := setupSchedulerTest(t)

		m.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
		m.cache.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
		m.compiler.EXPECT().Compile(gomock.Any(), gomock.Any()).Return(output("x"), nil).AnyTimes()

		var mu sync.Mutex
		seen := make(map[string]map[domain.InternedString]string)
		ctrl := gomock.NewController(t)
		fp := mocks.NewMockFingerprinter(ctrl)
		fp.EXPECT().Fingerprint(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(u *domain.Unit, imports map[domain.InternedString]string, _ *domain.Lockfile, config string) string {
				mu.Lock()
				defer mu.Unlock()
				seen[u.Path.String()] = imports
				assert.Contains(t, config, "compiler=test-1")
				return "fp-" + u.Path.String()
			},
		).Times(2)
		s = scheduler.NewScheduler(m.compiler, m.cache, fp, m.reporter, m.metrics, m.logger)

		_, err := s.Run(context.Background(), g, nil, domain.DefaultCompilerOptions(), nil, scheduler.RunOptions{Parallelism: 2})
		require.NoError(t, err)
		assert.Equal(t, map[domain.InternedString]string{domain.NewInternedString("b.ts"): "fp-b.ts"}, seen["a.ts"])
		assert.Empty(t, seen["b.ts"])
	})
}

func TestScheduler_CacheHitSkipsCompiler(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		g := createGraphHelper(t, map[string][]string{"a.ts": {"b.ts"}})
		s, m := setupSchedulerTest(t)

		m.cache.EXPECT().Get("/tmp/root", "fp-b.ts").Return(&domain.CacheEntry{
			Fingerprint: "fp-b.ts",
			Code:        []byte("cached b"),
		}, nil)
		m.cache.EXPECT().Get("/tmp/root", "fp-a.ts").Return(nil, nil)
		m.compiler.EXPECT().Compile(gomock.Any(), matchUnit("a.ts")).Return(output("a"), nil).Times(1)
		m.cache.EXPECT().Put("/tmp/root", gomock.Cond(func(e domain.CacheEntry) bool {
			return e.Fingerprint == "fp-a.ts" && e.Unit == "a.ts"
		})).Return(nil).Times(1)

		res, err := s.Run(context.Background(), g, nil, domain.DefaultCompilerOptions(), nil, scheduler.RunOptions{Parallelism: 2})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Cached)
		assert.Equal(t, 1, res.Compiled)

		b := res.Artifacts[domain.NewInternedString("b.ts")]
		assert.True(t, b.Cached)
		assert.Equal(t, []byte("cached b"), b.Code)

		statuses := s.GetUnitStatusMap()
		assert.Equal(t, scheduler.StatusCached, statuses[domain.NewInternedString("b.ts")])
		assert.Equal(t, scheduler.StatusCompiled, statuses[domain.NewInternedString("a.ts")])
	})
}

func TestScheduler_NoCacheSkipsLookup(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		g := createGraphHelper(t, map[string][]string{"a.ts": nil})
		s, m := setupSchedulerTest(t)

		m.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Times(0)
		m.cache.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil).Times(1)
		m.compiler.EXPECT().Compile(gomock.Any(), gomock.Any()).Return(output("a"), nil).Times(1)

		res, err := s.Run(context.Background(), g, nil, domain.DefaultCompilerOptions(), nil,
			scheduler.RunOptions{Parallelism: 1, NoCache: true})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Compiled)
	})
}

func TestScheduler_FailurePropagation(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		// a imports b. b fails. c is unrelated and still compiles.
		g := createGraphHelper(t, map[string][]string{
			"a.ts": {"b.ts"},
			"c.ts": nil,
		})
		s, m := setupSchedulerTest(t)

		m.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
		m.cache.EXPECT().Put("/tmp/root", gomock.Cond(func(e domain.CacheEntry) bool {
			return e.Unit == "c.ts"
		})).Return(nil).Times(1)

		syntaxErr := &domain.CompileError{Kind: domain.ErrSyntaxError, Unit: "b.ts"}
		m.compiler.EXPECT().Compile(gomock.Any(), matchUnit("b.ts")).Return(domain.CompileOutput{}, syntaxErr).Times(1)
		m.compiler.EXPECT().Compile(gomock.Any(), matchUnit("c.ts")).Return(output("c"), nil).Times(1)
		m.compiler.EXPECT().Compile(gomock.Any(), matchUnit("a.ts")).Times(0)

		res, err := s.Run(context.Background(), g, nil, domain.DefaultCompilerOptions(), nil, scheduler.RunOptions{Parallelism: 2})
		require.Error(t, err)
		require.ErrorIs(t, err, domain.ErrSyntaxError)
		require.ErrorIs(t, err, domain.ErrDependencyFailed)

		require.ErrorIs(t, res.Failures[domain.NewInternedString("a.ts")], domain.ErrDependencyFailed)
		require.ErrorIs(t, res.Failures[domain.NewInternedString("b.ts")], domain.ErrSyntaxError)
		assert.Contains(t, res.Artifacts, domain.NewInternedString("c.ts"))
		assert.Equal(t, 1, res.Compiled)

		statuses := s.GetUnitStatusMap()
		assert.Equal(t, scheduler.StatusFailed, statuses[domain.NewInternedString("a.ts")])
		assert.Equal(t, scheduler.StatusFailed, statuses[domain.NewInternedString("b.ts")])
		assert.Equal(t, scheduler.StatusCompiled, statuses[domain.NewInternedString("c.ts")])
	})
}

func TestScheduler_TargetsRestrictRun(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		g := createGraphHelper(t, map[string][]string{
			"a.ts": {"b.ts"},
			"c.ts": nil,
		})
		s, m := setupSchedulerTest(t)

		m.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()
		m.cache.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
		m.compiler.EXPECT().Compile(gomock.Any(), matchUnit("b.ts")).Return(output("b"), nil).Times(1)
		m.compiler.EXPECT().Compile(gomock.Any(), matchUnit("a.ts")).Return(output("a"), nil).Times(1)

		res, err := s.Run(context.Background(), g, nil, domain.DefaultCompilerOptions(),
			domain.InternAll([]string{"a.ts"}), scheduler.RunOptions{Parallelism: 2})
		require.NoError(t, err)
		assert.Len(t, res.Artifacts, 2)
		assert.NotContains(t, res.Artifacts, domain.NewInternedString("c.ts"))
	})
}

func TestScheduler_UnknownTarget(t *testing.T) {
	g := createGraphHelper(t, map[string][]string{"a.ts": nil})
	s, _ := setupSchedulerTest(t)

	_, err := s.Run(context.Background(), g, nil, domain.DefaultCompilerOptions(),
		domain.InternAll([]string{"missing.ts"}), scheduler.RunOptions{Parallelism: 1})
	require.ErrorIs(t, err, domain.ErrUnitNotFound)
}

func TestScheduler_CycleIsConfigError(t *testing.T) {
	g := domain.NewGraph()
	require.NoError(t, g.AddUnit(&domain.Unit{Path: domain.NewInternedString("a.ts"), Imports: domain.InternAll([]string{"b.ts"})}))
	require.NoError(t, g.AddUnit(&domain.Unit{Path: domain.NewInternedString("b.ts"), Imports: domain.InternAll([]string{"a.ts"})}))
	s, m := setupSchedulerTest(t)
	m.compiler.EXPECT().Compile(gomock.Any(), gomock.Any()).Times(0)

	_, err := s.Run(context.Background(), g, nil, domain.DefaultCompilerOptions(), nil, scheduler.RunOptions{Parallelism: 1})
	require.ErrorIs(t, err, domain.ErrConfigError)
	require.ErrorIs(t, err, domain.ErrCycleDetected)
}

func TestScheduler_ConcurrentRunsCompileOncePerFingerprint(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		g := createGraphHelper(t, map[string][]string{"a.ts": nil})
		s, m := setupSchedulerTest(t)

		release := make(chan struct{})
		m.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil).Times(2)
		m.cache.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil).Times(1)
		m.compiler.EXPECT().Compile(gomock.Any(), matchUnit("a.ts")).DoAndReturn(
			func(context.Context, domain.CompileRequest) (domain.CompileOutput, error) {
				<-release
				return output("a"), nil
			},
		).Times(1)

		var wg sync.WaitGroup
		results := make([]*domain.BuildResult, 2)
		for i := range 2 {
			wg.Go(func() {
				res, err := s.Run(context.Background(), g, nil, domain.DefaultCompilerOptions(), nil,
					scheduler.RunOptions{Parallelism: 1})
				assert.NoError(t, err)
				results[i] = res
			})
		}

		// Both runs are now parked on the same in-flight compile.
		synctest.Wait()
		close(release)
		wg.Wait()

		for _, res := range results {
			require.NotNil(t, res)
			assert.Equal(t, []byte("a"), res.Artifacts[domain.NewInternedString("a.ts")].Code)
		}
	})
}

func TestScheduler_CanceledContextStopsScheduling(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		g := createGraphHelper(t, map[string][]string{"a.ts": {"b.ts"}})
		s, m := setupSchedulerTest(t)
		m.compiler.EXPECT().Compile(gomock.Any(), gomock.Any()).Times(0)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := s.Run(ctx, g, nil, domain.DefaultCompilerOptions(), nil, scheduler.RunOptions{Parallelism: 2})
		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, res.Artifacts)

		statuses := s.GetUnitStatusMap()
		assert.Equal(t, scheduler.StatusPending, statuses[domain.NewInternedString("a.ts")])
	})
}

func TestScheduler_CanceledRunWaitsForInflightCompile(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		g := createGraphHelper(t, map[string][]string{"a.ts": nil})
		s, m := setupSchedulerTest(t)

		release := make(chan struct{})
		m.cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, nil)
		m.cache.EXPECT().Put(gomock.Any(), gomock.Any()).Return(nil)
		m.compiler.EXPECT().Compile(gomock.Any(), matchUnit("a.ts")).DoAndReturn(
			func(context.Context, domain.CompileRequest) (domain.CompileOutput, error) {
				<-release
				return output("a"), nil
			},
		)

		ctx, cancel := context.WithCancel(context.Background())
		returned := make(chan error, 1)
		go func() {
			_, err := s.Run(ctx, g, nil, domain.DefaultCompilerOptions(), nil, scheduler.RunOptions{Parallelism: 1})
			returned <- err
		}()

		synctest.Wait()
		cancel()
		// Wait only returns once the run is durably blocked on the in-flight
		// compile, so a loop that keeps polling the canceled context never gets here.
		synctest.Wait()

		select {
		case <-returned:
			t.Fatal("run returned before its in-flight compile finished")
		default:
		}

		close(release)
		require.ErrorIs(t, <-returned, context.Canceled)
	})
}

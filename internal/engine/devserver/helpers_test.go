package devserver_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/fs"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.trai.ch/kiln/internal/engine/devserver"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.uber.org/mock/gomock"
)

// fakeDriver compiles every target to "compiled <path>" unless the unit
// is listed in fail. Runs numbered in block wait for cancellation.
type fakeDriver struct {
	mu    sync.Mutex
	runs  [][]string
	fail  map[string]bool
	block map[int]bool
}

func (f *fakeDriver) Run(
	ctx context.Context,
	_ *domain.Graph,
	_ *domain.Lockfile,
	_ domain.CompilerOptions,
	targets []domain.InternedString,
	_ scheduler.RunOptions,
) (*domain.BuildResult, error) {
	f.mu.Lock()
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.String()
	}
	f.runs = append(f.runs, names)
	run := len(f.runs)
	blocked := f.block[run]
	f.mu.Unlock()

	if blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	res := domain.NewBuildResult()
	for _, t := range targets {
		if f.fail[t.String()] {
			res.Failures[t] = &domain.CompileError{
				Kind: domain.ErrSyntaxError,
				Unit: t.String(),
				Diagnostics: []domain.Diagnostic{
					{Unit: t.String(), Line: 1, Column: 1, Message: "Unexpected token"},
				},
			}
			continue
		}
		res.Artifacts[t] = domain.Artifact{
			Unit: t,
			Path: domain.OutputPath(t.String()),
			Code: []byte("compiled " + t.String()),
		}
		res.Compiled++
	}
	return res, res.Err()
}

func (f *fakeDriver) Runs() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.runs))
	copy(out, f.runs)
	return out
}

// recordingEmitter records the artifact paths of every Emit call.
type recordingEmitter struct {
	mu     sync.Mutex
	emits  [][]string
	prunes int
}

func (e *recordingEmitter) Emit(_ string, artifacts []domain.Artifact) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	paths := make([]string, len(artifacts))
	for i, a := range artifacts {
		paths[i] = a.Path
	}
	e.emits = append(e.emits, paths)
	return nil
}

func (e *recordingEmitter) Prune(string, []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prunes++
	return nil
}

func (e *recordingEmitter) Emits() [][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([][]string, len(e.emits))
	copy(out, e.emits)
	return out
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

// newTestProject lays out src/main.ts importing src/util.ts, plus src/other.ts
// and a public index page.
func newTestProject(t *testing.T) *domain.Project {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "src/util.ts", "export const two = 2;\n")
	writeFile(t, root, "src/main.ts", "import { two } from \"./util\";\nexport const four = two * 2;\n")
	writeFile(t, root, "src/other.ts", "export const other = true;\n")
	writeFile(t, root, "public/index.html", "<html><body><h1>app</h1></body></html>\n")

	return &domain.Project{
		Root:    root,
		Sources: []string{"src"},
		OutDir:  "dist",
		Public:  "public",
		Options: domain.DefaultCompilerOptions(),
		Addr:    "127.0.0.1:0",
	}
}

type serverTestMocks struct {
	emitter  *recordingEmitter
	logger   *mocks.MockLogger
	metrics  *mocks.MockMetrics
	watcher  *mocks.MockWatcher
	watchers ports.WatcherFactory
}

func setupServerTest(t *testing.T, project *domain.Project, driver devserver.Driver) (*devserver.Server, serverTestMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)
	m := serverTestMocks{
		emitter: &recordingEmitter{},
		logger:  mocks.NewMockLogger(ctrl),
		metrics: mocks.NewMockMetrics(ctrl),
		watcher: mocks.NewMockWatcher(ctrl),
	}
	m.watchers = func() (ports.Watcher, error) { return m.watcher, nil }

	m.logger.EXPECT().Info(gomock.Any()).AnyTimes()
	m.logger.EXPECT().Warn(gomock.Any()).AnyTimes()
	m.logger.EXPECT().Error(gomock.Any()).AnyTimes()
	m.metrics.EXPECT().SetSessions(gomock.Any()).AnyTimes()

	s := devserver.New(
		devserver.Config{Project: project, Lock: domain.NewLockfile("d"), Parallelism: 2},
		fs.NewLoader(fs.NewWalker()),
		driver,
		m.emitter,
		m.watchers,
		m.logger,
		m.metrics,
		nil,
	)
	return s, m
}

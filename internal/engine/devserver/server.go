// Package devserver serves compiled artifacts and rebuilds them as sources change.
package devserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"go.trai.ch/kiln/internal/adapters/watcher" //nolint:depguard // Debouncer and content filter are shared with the watcher
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/scheduler"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Driver compiles a unit graph. *scheduler.Scheduler implements it.
type Driver interface {
	Run(
		ctx context.Context,
		graph *domain.Graph,
		lock *domain.Lockfile,
		options domain.CompilerOptions,
		targets []domain.InternedString,
		opts scheduler.RunOptions,
	) (*domain.BuildResult, error)
}

// Config is the per-invocation configuration of a Server.
type Config struct {
	Project *domain.Project
	Lock    *domain.Lockfile
	// Addr overrides Project.Addr when set.
	Addr string
	// Parallelism bounds concurrent unit compiles per rebuild.
	Parallelism int
	// DebounceWindow defaults to watcher.DefaultDebounceWindow.
	DebounceWindow time.Duration
}

// Server is the artifact server. Handlers read the current Snapshot without
// locking; only the coordinator goroutine publishes new ones.
type Server struct {
	cfg            Config
	loader         ports.UnitLoader
	driver         Driver
	emitter        ports.Emitter
	watchers       ports.WatcherFactory
	logger         ports.Logger
	metricsHandler http.Handler

	hub        *Hub
	contents   *watcher.ContentHashes
	snapshot   atomic.Pointer[Snapshot]
	building   atomic.Bool
	generation uint64
}

// New creates a new Server.
func New(
	cfg Config,
	loader ports.UnitLoader,
	driver Driver,
	emitter ports.Emitter,
	watchers ports.WatcherFactory,
	logger ports.Logger,
	metrics ports.Metrics,
	metricsHandler http.Handler,
) *Server {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = watcher.DefaultDebounceWindow
	}
	if cfg.Addr == "" {
		cfg.Addr = cfg.Project.Addr
	}
	if cfg.Addr == "" {
		cfg.Addr = domain.DefaultAddr
	}

	s := &Server{
		cfg:            cfg,
		loader:         loader,
		driver:         driver,
		emitter:        emitter,
		watchers:       watchers,
		logger:         logger,
		metricsHandler: metricsHandler,
		hub:            NewHub(metrics),
		contents:       watcher.NewContentHashes(),
	}
	s.snapshot.Store(emptySnapshot())
	return s
}

// Snapshot returns the currently published snapshot.
func (s *Server) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Run performs the initial build, then serves HTTP and rebuilds on change
// until ctx is done. Watcher failures are retried and never stop serving.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return domain.WithMeta(zerr.Wrap(err, domain.ErrServerFailed.Error()), "addr", s.cfg.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener. It closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.generation++
	if snap, result := s.rebuild(ctx, s.generation, s.snapshot.Load(), nil); snap != nil {
		if result != nil {
			s.emit(result, snap)
		}
		s.publish(snap)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	loopCtx, stopLoops := context.WithCancel(ctx)
	defer stopLoops()

	changes := make(chan change)
	g, gctx := errgroup.WithContext(loopCtx)
	g.Go(func() error {
		s.watch(gctx, changes)
		return nil
	})
	g.Go(func() error {
		s.coordinate(gctx, changes)
		return nil
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	s.logger.Info("serving on http://" + ln.Addr().String())

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			stopLoops()
			_ = g.Wait()
			return zerr.Wrap(err, domain.ErrServerFailed.Error())
		}
	}

	// Streaming sessions end with the hub, so Shutdown does not wait on them.
	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	shutdownErr := srv.Shutdown(shutdownCtx)

	stopLoops()
	_ = g.Wait()

	if shutdownErr != nil {
		return zerr.Wrap(shutdownErr, domain.ErrServerFailed.Error())
	}
	return nil
}

// publish makes snap the served snapshot and notifies every session.
func (s *Server) publish(snap *Snapshot) {
	s.snapshot.Store(snap)
	s.hub.Broadcast(snap.Event())

	if snap.GraphErr != nil {
		s.logger.Error(snap.GraphErr)
		return
	}
	if snap.State == StateFailed {
		s.logger.Warn("build failed, serving last good artifacts")
		return
	}
	s.logger.Info("build ready")
}

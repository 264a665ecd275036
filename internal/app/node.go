package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/config"   //nolint:depguard // Wired in app layer
	"go.trai.ch/kiln/internal/adapters/fs"       //nolint:depguard // Wired in app layer
	"go.trai.ch/kiln/internal/adapters/linear"   //nolint:depguard // Wired in app layer
	"go.trai.ch/kiln/internal/adapters/lockfile" //nolint:depguard // Wired in app layer
	"go.trai.ch/kiln/internal/adapters/logger"   //nolint:depguard // Wired in app layer
	"go.trai.ch/kiln/internal/adapters/metrics"  //nolint:depguard // Wired in app layer
	"go.trai.ch/kiln/internal/adapters/watcher"  //nolint:depguard // Wired in app layer
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/kiln/internal/engine/resolver"
	"go.trai.ch/kiln/internal/engine/scheduler"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			resolver.NodeID,
			scheduler.NodeID,
			fs.LoaderNodeID,
			fs.EmitterNodeID,
			lockfile.NodeID,
			watcher.NodeID,
			linear.NodeID,
			metrics.NodeID,
			logger.NodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: runComponentsNode,
	})
}

//nolint:cyclop // one lookup per dependency
func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	res, err := graft.Dep[*resolver.Resolver](ctx)
	if err != nil {
		return nil, err
	}

	sched, err := graft.Dep[*scheduler.Scheduler](ctx)
	if err != nil {
		return nil, err
	}

	units, err := graft.Dep[ports.UnitLoader](ctx)
	if err != nil {
		return nil, err
	}

	emitter, err := graft.Dep[ports.Emitter](ctx)
	if err != nil {
		return nil, err
	}

	locks, err := graft.Dep[ports.LockStore](ctx)
	if err != nil {
		return nil, err
	}

	watchers, err := graft.Dep[ports.WatcherFactory](ctx)
	if err != nil {
		return nil, err
	}

	reporter, err := graft.Dep[*linear.Renderer](ctx)
	if err != nil {
		return nil, err
	}

	recorder, err := graft.Dep[*metrics.Recorder](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, res, sched, units, emitter, locks, watchers, reporter, recorder, log), nil
}

func runComponentsNode(ctx context.Context) (*Components, error) {
	app, err := graft.Dep[*App](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	return &Components{
		App:    app,
		Logger: log,
	}, nil
}

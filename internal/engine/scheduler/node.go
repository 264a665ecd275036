package scheduler

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/cas"      //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/compiler" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/fs"       //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/linear"   //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/logger"   //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/metrics"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the scheduler Graft node.
const NodeID graft.ID = "engine.scheduler"

func init() {
	graft.Register(graft.Node[*Scheduler]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			compiler.NodeID,
			cas.ArtifactCacheNodeID,
			fs.FingerprinterNodeID,
			linear.NodeID,
			metrics.NodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Scheduler, error) {
			comp, err := graft.Dep[ports.Compiler](ctx)
			if err != nil {
				return nil, err
			}

			cache, err := graft.Dep[ports.ArtifactCache](ctx)
			if err != nil {
				return nil, err
			}

			fingerprinter, err := graft.Dep[ports.Fingerprinter](ctx)
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

			return NewScheduler(comp, cache, fingerprinter, reporter, recorder, log), nil
		},
	})
}

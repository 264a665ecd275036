package resolver

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/cas"      //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/lockfile" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/logger"   //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/metrics"  //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/adapters/registry" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the resolver Graft node.
const NodeID graft.ID = "engine.resolver"

func init() {
	graft.Register(graft.Node[*Resolver]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			registry.NodeID,
			cas.PackageStoreNodeID,
			lockfile.NodeID,
			logger.NodeID,
			metrics.NodeID,
		},
		Run: func(ctx context.Context) (*Resolver, error) {
			registries, err := graft.Dep[ports.RegistryFactory](ctx)
			if err != nil {
				return nil, err
			}

			store, err := graft.Dep[ports.PackageStore](ctx)
			if err != nil {
				return nil, err
			}

			locks, err := graft.Dep[ports.LockStore](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			recorder, err := graft.Dep[*metrics.Recorder](ctx)
			if err != nil {
				return nil, err
			}

			return New(registries, store, locks, log, recorder), nil
		},
	})
}

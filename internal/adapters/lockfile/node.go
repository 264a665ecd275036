package lockfile

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the lock store Graft node.
const NodeID graft.ID = "adapter.lock_store"

func init() {
	graft.Register(graft.Node[ports.LockStore]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.LockStore, error) {
			return NewStore(), nil
		},
	})
}

package fs

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
)

const (
	// LoaderNodeID is the unique identifier for the unit loader Graft node.
	LoaderNodeID graft.ID = "adapter.unit_loader"
	// FingerprinterNodeID is the unique identifier for the fingerprinter Graft node.
	FingerprinterNodeID graft.ID = "adapter.fingerprinter"
	// EmitterNodeID is the unique identifier for the emitter Graft node.
	EmitterNodeID graft.ID = "adapter.emitter"
)

func init() {
	graft.Register(graft.Node[ports.UnitLoader]{
		ID:        LoaderNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.UnitLoader, error) {
			return NewLoader(NewWalker()), nil
		},
	})

	graft.Register(graft.Node[ports.Fingerprinter]{
		ID:        FingerprinterNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Fingerprinter, error) {
			return NewFingerprinter(), nil
		},
	})

	graft.Register(graft.Node[ports.Emitter]{
		ID:        EmitterNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Emitter, error) {
			return NewEmitter(), nil
		},
	})
}

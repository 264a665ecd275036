package cas

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/core/ports"
)

const (
	// ArtifactCacheNodeID is the unique identifier for the build cache Graft node.
	ArtifactCacheNodeID graft.ID = "adapter.artifact_cache"
	// PackageStoreNodeID is the unique identifier for the package store Graft node.
	PackageStoreNodeID graft.ID = "adapter.package_store"
)

func init() {
	graft.Register(graft.Node[ports.ArtifactCache]{
		ID:        ArtifactCacheNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.ArtifactCache, error) {
			cache, err := NewArtifactCache()
			if err != nil {
				return nil, err
			}
			return cache, nil
		},
	})

	graft.Register(graft.Node[ports.PackageStore]{
		ID:        PackageStoreNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.PackageStore, error) {
			return NewPackageStore(), nil
		},
	})
}

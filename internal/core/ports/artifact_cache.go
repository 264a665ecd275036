package ports

import "go.trai.ch/kiln/internal/core/domain"

// ArtifactCache defines the interface of the build cache.
// Entries are keyed by unit fingerprint and never mutated.
//
//go:generate mockgen -source=artifact_cache.go -destination=mocks/mock_artifact_cache.go -package=mocks
type ArtifactCache interface {
	// Get returns the entry for a fingerprint.
	// Returns nil, nil on a miss.
	Get(root, fingerprint string) (*domain.CacheEntry, error)

	// Put stores an entry. Writers racing on the same fingerprint store identical bytes.
	Put(root string, entry domain.CacheEntry) error
}

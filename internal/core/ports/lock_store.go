package ports

import "go.trai.ch/kiln/internal/core/domain"

// LockStore defines the interface for reading and writing the lock file.
//
//go:generate mockgen -source=lock_store.go -destination=mocks/mock_lock_store.go -package=mocks
type LockStore interface {
	// Load reads the lock file of the project at root.
	// Returns nil, nil if there is none.
	Load(root string) (*domain.Lockfile, error)

	// Save writes the lock file atomically.
	Save(root string, lock *domain.Lockfile) error
}

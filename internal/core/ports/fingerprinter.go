package ports

import "go.trai.ch/kiln/internal/core/domain"

// Fingerprinter defines the interface for computing unit fingerprints.
//
//go:generate mockgen -source=fingerprinter.go -destination=mocks/mock_fingerprinter.go -package=mocks
type Fingerprinter interface {
	// Fingerprint hashes the unit source, the fingerprints of the units it imports,
	// the lock entries of the packages it imports, and the configuration key.
	Fingerprint(unit *domain.Unit, imports map[domain.InternedString]string, lock *domain.Lockfile, config string) string
}

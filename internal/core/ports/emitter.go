package ports

import "go.trai.ch/kiln/internal/core/domain"

// Emitter defines the interface for writing compiled artifacts to disk.
//
//go:generate mockgen -source=emitter.go -destination=mocks/mock_emitter.go -package=mocks
type Emitter interface {
	// Emit writes each artifact, and its source map if any, below outDir.
	Emit(outDir string, artifacts []domain.Artifact) error

	// Prune removes compiled files below outDir that are not in keep.
	// keep holds artifact paths relative to outDir.
	Prune(outDir string, keep []string) error
}

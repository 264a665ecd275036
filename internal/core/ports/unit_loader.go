package ports

import "go.trai.ch/kiln/internal/core/domain"

// UnitLoader defines the interface for discovering build units and their imports.
//
//go:generate mockgen -source=unit_loader.go -destination=mocks/mock_unit_loader.go -package=mocks
type UnitLoader interface {
	// Load scans the source directories of a project and returns the unit graph.
	// The graph is not validated.
	Load(project *domain.Project) (*domain.Graph, error)
}

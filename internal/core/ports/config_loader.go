package ports

import "go.trai.ch/kiln/internal/core/domain"

// ConfigLoader defines the interface for loading the project configuration.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load finds kiln.yaml by walking up from cwd and returns the validated project.
	// Invalid compiler options are reported as domain.ErrConfigError.
	Load(cwd string) (*domain.Project, error)
}

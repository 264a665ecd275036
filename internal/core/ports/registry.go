package ports

import (
	"context"

	"go.trai.ch/kiln/internal/core/domain"
)

// PackageRegistry defines the interface for querying a package registry.
//
//go:generate mockgen -source=registry.go -destination=mocks/mock_registry.go -package=mocks
type PackageRegistry interface {
	// Metadata returns every published version of the named package.
	// It returns domain.ErrPackageNotFound if the registry does not know it.
	Metadata(ctx context.Context, name string) (*domain.PackageMetadata, error)

	// Fetch downloads a package tarball.
	Fetch(ctx context.Context, tarballURL string) ([]byte, error)
}

// RegistryFactory creates a PackageRegistry for a project root and registry base URL.
// Metadata caches live below root.
type RegistryFactory func(root, baseURL string) PackageRegistry

package registry

import (
	"time"

	"go.trai.ch/kiln/internal/core/domain"
)

// packument is the subset of an npm registry package document kiln reads.
type packument struct {
	Name     string                     `json:"name"`
	Versions map[string]packumentVersion `json:"versions"`
}

type packumentVersion struct {
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Dist         dist              `json:"dist"`
}

type dist struct {
	Tarball   string `json:"tarball"`
	Integrity string `json:"integrity,omitempty"`
	Shasum    string `json:"shasum,omitempty"`
}

// cacheEntry is the on-disk form of a cached metadata response.
type cacheEntry struct {
	Name      string    `json:"name"`
	Registry  string    `json:"registry"`
	Document  packument `json:"document"`
	Timestamp time.Time `json:"timestamp"`
}

func (p *packument) toDomain() *domain.PackageMetadata {
	meta := &domain.PackageMetadata{
		Name:     p.Name,
		Versions: make(map[string]domain.PackageVersion, len(p.Versions)),
	}
	for key, v := range p.Versions {
		version := v.Version
		if version == "" {
			version = key
		}
		meta.Versions[key] = domain.PackageVersion{
			Version:      version,
			Dependencies: v.Dependencies,
			Tarball:      v.Dist.Tarball,
			Integrity:    v.Dist.Integrity,
			Shasum:       v.Dist.Shasum,
		}
	}
	return meta
}

package domain

import "path/filepath"

const (
	// KilnDirName is the name of the internal project state directory.
	KilnDirName = ".kiln"

	// StoreDirName is the name of the content addressable store directory.
	StoreDirName = "store"

	// CacheDirName is the name of the cache directory.
	CacheDirName = "cache"

	// ArtifactsDirName holds compiled build cache entries inside the store.
	ArtifactsDirName = "artifacts"

	// PackagesDirName holds fetched package tarballs inside the store.
	PackagesDirName = "packages"

	// RegistryDirName holds cached registry metadata.
	RegistryDirName = "registry"

	// KilnFileName is the name of the project configuration file.
	KilnFileName = "kiln.yaml"

	// LockFileName is the name of the dependency lock file.
	LockFileName = "kiln.lock"

	// EnvFileName is the optional dotenv file loaded next to kiln.yaml.
	EnvFileName = ".env"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// PrivateFilePerm is the default permission for private files (rw-------).
	PrivateFilePerm = 0o600
)

// DefaultKilnPath returns the default root directory for kiln metadata.
func DefaultKilnPath() string {
	return KilnDirName
}

// DefaultStorePath returns the default path for the content addressable store.
// It joins .kiln and store.
func DefaultStorePath() string {
	return filepath.Join(KilnDirName, StoreDirName)
}

// DefaultArtifactStorePath returns the path for compiled build cache entries.
// It joins .kiln, store, and artifacts.
func DefaultArtifactStorePath() string {
	return filepath.Join(KilnDirName, StoreDirName, ArtifactsDirName)
}

// DefaultPackageStorePath returns the path for fetched package tarballs.
// It joins .kiln, store, and packages.
func DefaultPackageStorePath() string {
	return filepath.Join(KilnDirName, StoreDirName, PackagesDirName)
}

// DefaultCachePath returns the path for disposable caches.
func DefaultCachePath() string {
	return filepath.Join(KilnDirName, CacheDirName)
}

// DefaultRegistryCachePath returns the path for cached registry metadata.
// It joins .kiln, cache, and registry.
func DefaultRegistryCachePath() string {
	return filepath.Join(KilnDirName, CacheDirName, RegistryDirName)
}

package domain

// PackageMetadata is the registry's view of a package: every published version.
type PackageMetadata struct {
	Name     string
	Versions map[string]PackageVersion
}

// PackageVersion is one published version of a package.
type PackageVersion struct {
	Version      string
	Dependencies map[string]string
	Tarball      string
	// Integrity is a Subresource Integrity string such as "sha512-...". It may be empty.
	Integrity string
	// Shasum is the legacy hex SHA-1 of the tarball. It may be empty.
	Shasum string
}

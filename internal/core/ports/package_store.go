package ports

// PackageStore defines the interface for the content-addressed package tarball store.
//
//go:generate mockgen -source=package_store.go -destination=mocks/mock_package_store.go -package=mocks
type PackageStore interface {
	// Put stores a tarball under the project root and returns its sha512 integrity string.
	Put(root string, data []byte) (string, error)

	// Has reports whether a tarball with the given integrity is already stored.
	Has(root, integrity string) bool
}

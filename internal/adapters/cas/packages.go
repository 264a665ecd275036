// Package cas implements the content-addressed package store and the build cache.
package cas

import (
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/kiln/internal/adapters/atomicfile"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

const sha512Prefix = "sha512-"

// PackageStore implements ports.PackageStore. Tarballs are stored by the hex
// form of their SHA-512 digest, so the integrity string alone locates them.
type PackageStore struct{}

// NewPackageStore creates a new PackageStore.
func NewPackageStore() *PackageStore {
	return &PackageStore{}
}

// Put stores the tarball and returns its sha512 integrity string.
func (s *PackageStore) Put(root string, data []byte) (string, error) {
	sum := sha512.Sum512(data)
	path := s.path(root, hex.EncodeToString(sum[:]))

	if _, err := os.Stat(path); err != nil {
		if err := atomicfile.Write(path, data, domain.FilePerm, "package-*.tgz"); err != nil {
			return "", zerr.Wrap(err, domain.ErrStoreWriteFailed.Error())
		}
	}

	return sha512Prefix + base64.StdEncoding.EncodeToString(sum[:]), nil
}

// Has reports whether a tarball with the given sha512 integrity is stored.
func (s *PackageStore) Has(root, integrity string) bool {
	path, ok := s.Path(root, integrity)
	if !ok {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// Path returns where a tarball with the given integrity is stored.
// It reports false for integrity strings that are not sha512.
func (s *PackageStore) Path(root, integrity string) (string, bool) {
	encoded, ok := strings.CutPrefix(integrity, sha512Prefix)
	if !ok {
		return "", false
	}
	digest, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(digest) != sha512.Size {
		return "", false
	}
	return s.path(root, hex.EncodeToString(digest)), true
}

func (s *PackageStore) path(root, hexDigest string) string {
	return filepath.Join(root, domain.DefaultPackageStorePath(), hexDigest+".tgz")
}

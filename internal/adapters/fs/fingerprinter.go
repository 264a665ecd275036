package fs

import (
	"fmt"
	"slices"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/kiln/internal/core/domain"
)

// Fingerprinter implements ports.Fingerprinter with xxhash64.
type Fingerprinter struct{}

// NewFingerprinter creates a new Fingerprinter.
func NewFingerprinter() *Fingerprinter {
	return &Fingerprinter{}
}

// Fingerprint hashes, in order: the unit path and source, the fingerprints of
// its imports by path, the lock keys of its packages by name, and config.
// Sections are separated by NUL bytes so that no two inputs collide by concatenation.
func (f *Fingerprinter) Fingerprint(
	unit *domain.Unit,
	imports map[domain.InternedString]string,
	lock *domain.Lockfile,
	config string,
) string {
	h := xxhash.New()
	write := func(s string) {
		_, _ = h.WriteString(s)
		_, _ = h.Write([]byte{0})
	}

	write("unit")
	write(unit.Path.String())
	_, _ = h.Write(unit.Source)
	_, _ = h.Write([]byte{0})

	write("imports")
	deps := slices.Clone(unit.Imports)
	slices.SortFunc(deps, domain.InternedString.Compare)
	for _, dep := range deps {
		write(dep.String())
		write(imports[dep])
	}

	write("packages")
	pkgs := slices.Clone(unit.Packages)
	slices.Sort(pkgs)
	for _, pkg := range pkgs {
		write(lock.Key(pkg))
	}

	write("config")
	write(config)

	return fmt.Sprintf("%016x", h.Sum64())
}

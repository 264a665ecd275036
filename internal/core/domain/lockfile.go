package domain

import "slices"

// LockfileVersion is the current lock file format version.
const LockfileVersion = 1

// Lockfile is the resolved, pinned closure of a manifest's dependencies.
// It is immutable once written; only an explicit re-resolution replaces it.
type Lockfile struct {
	Version        int                      `yaml:"lockfileVersion"`
	ManifestDigest string                   `yaml:"manifestDigest"`
	Packages       map[string]LockedPackage `yaml:"packages"`
}

// LockedPackage is one pinned package.
type LockedPackage struct {
	Version      string            `yaml:"version"`
	Integrity    string            `yaml:"integrity"`
	Tarball      string            `yaml:"tarball,omitempty"`
	Dependencies map[string]string `yaml:"dependencies,omitempty"`
}

// NewLockfile creates an empty lock file for the given manifest digest.
func NewLockfile(digest string) *Lockfile {
	return &Lockfile{
		Version:        LockfileVersion,
		ManifestDigest: digest,
		Packages:       make(map[string]LockedPackage),
	}
}

// Get returns the pinned entry for a package.
func (l *Lockfile) Get(name string) (LockedPackage, bool) {
	if l == nil {
		return LockedPackage{}, false
	}
	p, ok := l.Packages[name]
	return p, ok
}

// Names returns the locked package names in lexical order.
func (l *Lockfile) Names() []string {
	if l == nil {
		return nil
	}
	names := make([]string, 0, len(l.Packages))
	for name := range l.Packages {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Key returns the identity of a locked package as it enters a unit fingerprint.
// Missing packages yield "name@unlocked".
func (l *Lockfile) Key(name string) string {
	p, ok := l.Get(name)
	if !ok {
		return name + "@unlocked"
	}
	return name + "@" + p.Version + "#" + p.Integrity
}

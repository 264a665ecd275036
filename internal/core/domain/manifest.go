package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strings"
)

// DefaultRegistry is the package registry used when none is configured.
const DefaultRegistry = "https://registry.npmjs.org"

// Manifest is the declared dependency set of a project.
type Manifest struct {
	// Registry is the base URL of the package registry.
	Registry string
	// Dependencies maps package names to semantic version constraints.
	Dependencies map[string]string
}

// Names returns the declared package names in lexical order.
func (m Manifest) Names() []string {
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Digest returns a stable hash of the registry and the declared constraints.
// A lock file records the digest it was resolved from.
func (m Manifest) Digest() string {
	var b strings.Builder
	b.WriteString(m.Registry)
	b.WriteByte('\n')
	for _, name := range m.Names() {
		b.WriteString(name)
		b.WriteByte('@')
		b.WriteString(m.Dependencies[name])
		b.WriteByte('\n')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return "sha256:" + hex.EncodeToString(sum[:])
}

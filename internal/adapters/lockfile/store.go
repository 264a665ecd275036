// Package lockfile implements the LockStore port with a YAML kiln.lock next to kiln.yaml.
package lockfile

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/kiln/internal/adapters/atomicfile"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

const header = "# This file is generated by kiln resolve. Do not edit.\n"

// Store implements ports.LockStore.
type Store struct{}

// NewStore creates a new lock file store.
func NewStore() *Store {
	return &Store{}
}

// Load reads the lock file of the project at root.
// It returns nil, nil if the project has no lock file.
func (s *Store) Load(root string) (*domain.Lockfile, error) {
	path := filepath.Join(root, domain.LockFileName)
	//nolint:gosec // Path is the project root joined with a constant name
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, zerr.Wrap(err, domain.ErrLockfileReadFailed.Error())
	}

	var lock domain.Lockfile
	if err := yaml.Unmarshal(data, &lock); err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrLockfileParseFailed.Error()), "path", path)
	}
	if lock.Version != domain.LockfileVersion {
		return nil, zerr.With(domain.WithMeta(domain.ErrLockfileParseFailed, "path", path), "version", lock.Version)
	}
	if lock.Packages == nil {
		lock.Packages = make(map[string]domain.LockedPackage)
	}
	return &lock, nil
}

// Save writes the lock file atomically. Map keys are emitted sorted, so equal
// lock sets produce identical bytes.
func (s *Store) Save(root string, lock *domain.Lockfile) error {
	data, err := Marshal(lock)
	if err != nil {
		return err
	}

	path := filepath.Join(root, domain.LockFileName)
	if err := atomicfile.Write(path, data, domain.FilePerm, ".kiln-lock-*"); err != nil {
		return zerr.Wrap(err, domain.ErrLockfileWriteFailed.Error())
	}
	return nil
}

// Marshal renders a lock file in its on-disk form.
func Marshal(lock *domain.Lockfile) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(lock); err != nil {
		return nil, zerr.Wrap(err, domain.ErrLockfileWriteFailed.Error())
	}
	if err := enc.Close(); err != nil {
		return nil, zerr.Wrap(err, domain.ErrLockfileWriteFailed.Error())
	}
	return buf.Bytes(), nil
}

// Package resolver pins the transitive closure of a manifest's dependencies into a lock file.
package resolver

import (
	"context"
	"crypto/sha1" //nolint:gosec // npm publishes legacy SHA-1 shasums
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"maps"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"golang.org/x/sync/errgroup"
)

const (
	// maxRounds bounds the selection fixpoint.
	maxRounds = 100
	// fetchParallelism bounds concurrent registry requests.
	fetchParallelism = 8
	rootRequester    = "(root)"
)

// Options controls a resolution.
type Options struct {
	// Update re-resolves even when the lock file is current.
	Update bool
}

// Resolver implements dependency resolution against a package registry.
type Resolver struct {
	registries ports.RegistryFactory
	store      ports.PackageStore
	locks      ports.LockStore
	logger     ports.Logger
	metrics    ports.Metrics
}

// New creates a new Resolver.
func New(
	registries ports.RegistryFactory,
	store ports.PackageStore,
	locks ports.LockStore,
	logger ports.Logger,
	metrics ports.Metrics,
) *Resolver {
	return &Resolver{
		registries: registries,
		store:      store,
		locks:      locks,
		logger:     logger,
		metrics:    metrics,
	}
}

// requirement is one constraint imposed on a package and who imposed it.
type requirement struct {
	by         string
	raw        string
	constraint *semver.Constraints
}

// Resolve produces the lock file for manifest in the project at root.
// If the existing lock file was resolved from the same manifest and still
// satisfies every direct constraint, it is returned as is with changed false
// and the registry is not contacted. Otherwise the closure is solved, every
// tarball fetched and verified, and the lock file written.
// Nothing is written when resolution fails.
func (r *Resolver) Resolve(
	ctx context.Context,
	root string,
	manifest domain.Manifest,
	opts Options,
) (lock *domain.Lockfile, changed bool, err error) {
	start := time.Now()
	defer func() {
		outcome := "unchanged"
		switch {
		case err != nil:
			outcome = "failure"
		case changed:
			outcome = "changed"
		}
		r.metrics.ObserveResolve(outcome, time.Since(start))
	}()

	direct, err := parseDirect(manifest)
	if err != nil {
		return nil, false, err
	}

	existing, err := r.locks.Load(root)
	if err != nil {
		return nil, false, err
	}
	if !opts.Update && isCurrent(existing, manifest, direct) {
		return existing, false, nil
	}

	sess := &session{
		registry: r.registries(root, manifest.Registry),
		meta:     make(map[string]*domain.PackageMetadata),
	}

	selection, err := sess.solve(ctx, direct)
	if err != nil {
		return nil, false, err
	}

	next := domain.NewLockfile(manifest.Digest())
	for _, name := range slices.Sorted(maps.Keys(selection)) {
		pv := sess.meta[name].Versions[selection[name]]
		entry := domain.LockedPackage{
			Version:   selection[name],
			Integrity: publishedIntegrity(pv),
			Tarball:   pv.Tarball,
		}
		if len(pv.Dependencies) > 0 {
			entry.Dependencies = maps.Clone(pv.Dependencies)
		}
		next.Packages[name] = entry
	}

	if err := r.fetchAll(ctx, root, sess.registry, next); err != nil {
		return nil, false, err
	}

	if existing != nil && existing.ManifestDigest == next.ManifestDigest &&
		reflect.DeepEqual(existing.Packages, next.Packages) {
		return existing, false, nil
	}

	if err := r.locks.Save(root, next); err != nil {
		return nil, false, err
	}
	r.logger.Info("resolved " + plural(len(next.Packages), "package") + " into " + domain.LockFileName)
	return next, true, nil
}

// parseDirect parses the manifest's constraints. An empty constraint means any version.
func parseDirect(manifest domain.Manifest) (map[string]requirement, error) {
	direct := make(map[string]requirement, len(manifest.Dependencies))
	for _, name := range manifest.Names() {
		raw := manifest.Dependencies[name]
		c, err := parseConstraint(raw)
		if err != nil {
			return nil, domain.WithMeta(domain.ErrInvalidConstraint, "package", name, "constraint", raw)
		}
		direct[name] = requirement{by: rootRequester, raw: raw, constraint: c}
	}
	return direct, nil
}

func parseConstraint(raw string) (*semver.Constraints, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "latest" {
		raw = "*"
	}
	return semver.NewConstraint(raw)
}

// isCurrent reports whether lock was produced from manifest and still
// satisfies its direct constraints.
func isCurrent(lock *domain.Lockfile, manifest domain.Manifest, direct map[string]requirement) bool {
	if lock == nil || lock.ManifestDigest != manifest.Digest() {
		return false
	}
	for name, req := range direct {
		locked, ok := lock.Get(name)
		if !ok {
			return false
		}
		v, err := semver.NewVersion(locked.Version)
		if err != nil || !req.constraint.Check(v) {
			return false
		}
	}
	return true
}

// session holds registry metadata fetched during one resolution.
type session struct {
	registry ports.PackageRegistry
	mu       sync.Mutex
	meta     map[string]*domain.PackageMetadata
}

// solve runs the selection fixpoint. Each round recomputes the constraints
// imposed by the root and the current selection, then picks for every
// constrained package, in name order, the highest satisfying version.
func (s *session) solve(ctx context.Context, direct map[string]requirement) (map[string]string, error) {
	selection := make(map[string]string)

	for range maxRounds {
		imposed, err := s.imposed(direct, selection)
		if err != nil {
			return nil, err
		}

		names := slices.Sorted(maps.Keys(imposed))
		if err := s.prefetch(ctx, names); err != nil {
			return nil, err
		}

		next := make(map[string]string, len(names))
		for _, name := range names {
			version, ok := highestSatisfying(s.meta[name], imposed[name])
			if !ok {
				return nil, unsatisfiable(name, imposed[name])
			}
			next[name] = version
		}

		if maps.Equal(next, selection) {
			return selection, nil
		}
		selection = next
	}

	return nil, domain.WithMeta(domain.ErrUnsatisfiableConstraint,
		"reason", "selection did not settle within the round limit",
		"rounds", maxRounds)
}

func (s *session) imposed(direct map[string]requirement, selection map[string]string) (map[string][]requirement, error) {
	imposed := make(map[string][]requirement)
	for name, req := range direct {
		imposed[name] = append(imposed[name], req)
	}

	for _, name := range slices.Sorted(maps.Keys(selection)) {
		version := selection[name]
		pv := s.meta[name].Versions[version]
		for _, dep := range slices.Sorted(maps.Keys(pv.Dependencies)) {
			raw := pv.Dependencies[dep]
			c, err := parseConstraint(raw)
			if err != nil {
				return nil, domain.WithMeta(domain.ErrInvalidConstraint,
					"package", dep, "constraint", raw, "required_by", name+"@"+version)
			}
			imposed[dep] = append(imposed[dep], requirement{by: name + "@" + version, raw: raw, constraint: c})
		}
	}
	return imposed, nil
}

// prefetch loads metadata for every name not fetched yet, in parallel.
func (s *session) prefetch(ctx context.Context, names []string) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchParallelism)

	for _, name := range names {
		s.mu.Lock()
		_, known := s.meta[name]
		s.mu.Unlock()
		if known {
			continue
		}

		g.Go(func() error {
			meta, err := s.registry.Metadata(ctx, name)
			if err != nil {
				return err
			}
			s.mu.Lock()
			s.meta[name] = meta
			s.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// highestSatisfying returns the key of the highest published version that
// satisfies every requirement. Prereleases only match constraints that name one.
func highestSatisfying(meta *domain.PackageMetadata, reqs []requirement) (string, bool) {
	type candidate struct {
		key     string
		version *semver.Version
	}

	candidates := make([]candidate, 0, len(meta.Versions))
	for key := range meta.Versions {
		v, err := semver.NewVersion(key)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{key: key, version: v})
	}
	slices.SortFunc(candidates, func(a, b candidate) int {
		return b.version.Compare(a.version)
	})

	for _, c := range candidates {
		ok := true
		for _, req := range reqs {
			if !req.constraint.Check(c.version) {
				ok = false
				break
			}
		}
		if ok {
			return c.key, true
		}
	}
	return "", false
}

func unsatisfiable(name string, reqs []requirement) error {
	parts := make([]string, len(reqs))
	for i, req := range reqs {
		parts[i] = req.raw + " from " + req.by
	}
	slices.Sort(parts)
	return domain.WithMeta(domain.ErrUnsatisfiableConstraint,
		"package", name,
		"constraints", strings.Join(parts, "; "))
}

// publishedIntegrity returns the registry's SRI for a version, converting a
// legacy hex shasum when that is all the registry published.
func publishedIntegrity(pv domain.PackageVersion) string {
	if pv.Integrity != "" {
		return pv.Integrity
	}
	if sum, err := hex.DecodeString(pv.Shasum); err == nil && len(sum) == sha1.Size {
		return "sha1-" + base64.StdEncoding.EncodeToString(sum)
	}
	return ""
}

// fetchAll downloads and verifies every locked tarball not yet in the store.
// Entries are rewritten to the sha512 integrity of the stored bytes.
func (r *Resolver) fetchAll(ctx context.Context, root string, registry ports.PackageRegistry, lock *domain.Lockfile) error {
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchParallelism)

	for _, name := range lock.Names() {
		entry := lock.Packages[name]
		if strings.HasPrefix(entry.Integrity, "sha512-") && r.store.Has(root, entry.Integrity) {
			continue
		}

		g.Go(func() error {
			data, err := registry.Fetch(ctx, entry.Tarball)
			if err != nil {
				return domain.WithMeta(err, "package", name+"@"+entry.Version)
			}
			if err := verify(data, entry.Integrity); err != nil {
				return domain.WithMeta(err, "package", name+"@"+entry.Version)
			}
			integrity, err := r.store.Put(root, data)
			if err != nil {
				return err
			}

			mu.Lock()
			entry.Integrity = integrity
			lock.Packages[name] = entry
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// verify checks data against a sha512 or sha1 SRI string. An empty
// integrity cannot be checked and passes.
func verify(data []byte, integrity string) error {
	algo, encoded, ok := strings.Cut(integrity, "-")
	if !ok {
		if integrity == "" {
			return nil
		}
		return domain.WithMeta(domain.ErrIntegrityMismatch, "integrity", integrity)
	}

	var sum []byte
	switch algo {
	case "sha512":
		s := sha512.Sum512(data)
		sum = s[:]
	case "sha1":
		s := sha1.Sum(data) //nolint:gosec // legacy npm shasum
		sum = s[:]
	default:
		return domain.WithMeta(domain.ErrIntegrityMismatch, "reason", "unsupported algorithm", "integrity", integrity)
	}

	if base64.StdEncoding.EncodeToString(sum) != encoded {
		return domain.WithMeta(domain.ErrIntegrityMismatch,
			"expected", integrity,
			"actual", algo+"-"+base64.StdEncoding.EncodeToString(sum))
	}
	return nil
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}

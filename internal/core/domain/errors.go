package domain

import "go.trai.ch/zerr"

var (
	// ErrUnitAlreadyExists is returned when attempting to add a unit with a path that already exists.
	ErrUnitAlreadyExists = zerr.New("unit already exists")

	// ErrMissingDependency is returned when a unit imports a path that doesn't exist in the graph.
	ErrMissingDependency = zerr.New("missing dependency")

	// ErrCycleDetected is returned when a cycle is detected in the unit import graph.
	ErrCycleDetected = zerr.New("import cycle detected")

	// ErrUnitNotFound is returned when a requested unit is not found in the graph.
	ErrUnitNotFound = zerr.New("unit not found")

	// ErrNoUnits is returned when the configured sources contain no build units.
	ErrNoUnits = zerr.New("no build units found in sources")

	// ErrUnsatisfiableConstraint is returned when no published version satisfies every constraint on a package.
	ErrUnsatisfiableConstraint = zerr.New("unsatisfiable version constraint")

	// ErrInvalidConstraint is returned when a declared version constraint cannot be parsed.
	ErrInvalidConstraint = zerr.New("invalid version constraint")

	// ErrSyntaxError is the kind of a compile failure caused by unparsable source.
	ErrSyntaxError = zerr.New("syntax error")

	// ErrTypeError is the kind of a compile failure caused by unresolved names or imports.
	ErrTypeError = zerr.New("type error")

	// ErrConfigError is returned for invalid configuration, detected before any compilation starts.
	ErrConfigError = zerr.New("invalid configuration")

	// ErrWatchIO is returned when the file watcher fails.
	ErrWatchIO = zerr.New("file watch failed")

	// ErrDependencyFailed is returned for a unit whose import failed to compile.
	ErrDependencyFailed = zerr.New("dependency failed to compile")

	// ErrBuildFailed is returned when one or more units failed to compile.
	ErrBuildFailed = zerr.New("build failed")

	// ErrPackageNotFound is returned when the registry does not know a package.
	ErrPackageNotFound = zerr.New("package not found in registry")

	// ErrRegistryRequestFailed is returned when a registry request fails.
	ErrRegistryRequestFailed = zerr.New("registry request failed")

	// ErrRegistryParseFailed is returned when a registry response cannot be decoded.
	ErrRegistryParseFailed = zerr.New("failed to parse registry response")

	// ErrIntegrityMismatch is returned when a fetched tarball does not match its published digest.
	ErrIntegrityMismatch = zerr.New("package integrity mismatch")

	// ErrLockfileReadFailed is returned when the lock file cannot be read.
	ErrLockfileReadFailed = zerr.New("failed to read lock file")

	// ErrLockfileParseFailed is returned when the lock file cannot be parsed.
	ErrLockfileParseFailed = zerr.New("failed to parse lock file")

	// ErrLockfileWriteFailed is returned when the lock file cannot be written.
	ErrLockfileWriteFailed = zerr.New("failed to write lock file")

	// ErrStoreCreateFailed is returned when a store directory cannot be created.
	ErrStoreCreateFailed = zerr.New("failed to create store directory")

	// ErrStoreReadFailed is returned when a store entry cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read store entry")

	// ErrStoreUnmarshalFailed is returned when a store entry cannot be unmarshaled.
	ErrStoreUnmarshalFailed = zerr.New("failed to unmarshal store entry")

	// ErrStoreMarshalFailed is returned when a store entry cannot be marshaled.
	ErrStoreMarshalFailed = zerr.New("failed to marshal store entry")

	// ErrStoreWriteFailed is returned when a store entry cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write store entry")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrConfigNotFound is returned when no kiln.yaml can be found.
	ErrConfigNotFound = zerr.New("could not find kiln.yaml")

	// ErrSourceReadFailed is returned when a unit source file cannot be read.
	ErrSourceReadFailed = zerr.New("failed to read source file")

	// ErrEmitFailed is returned when compiled output cannot be written to the output directory.
	ErrEmitFailed = zerr.New("failed to write compiled output")

	// ErrFailedToGetRoot is returned when the project root path cannot be determined.
	ErrFailedToGetRoot = zerr.New("failed to get absolute path of project root")

	// ErrServerFailed is returned when the artifact server stops unexpectedly.
	ErrServerFailed = zerr.New("artifact server failed")
)

// WithMeta wraps err so that errors.Is keeps matching it and attaches the
// given key/value pairs as metadata. Keys must be strings.
func WithMeta(err error, kv ...any) error {
	out := zerr.Wrap(err, "")
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = zerr.With(out, key, kv[i+1])
	}
	return out
}

package domain

// DefaultAddr is the listen address of the artifact server when none is configured.
const DefaultAddr = "127.0.0.1:8080"

// Project is a loaded kiln.yaml with every default applied.
type Project struct {
	// Root is the absolute directory containing kiln.yaml.
	Root string
	// Manifest is the declared dependency set.
	Manifest Manifest
	// Sources are the root-relative directories scanned for build units.
	Sources []string
	// OutDir is the root-relative directory compiled artifacts are written to.
	OutDir string
	// Public is the root-relative directory of static files served next to artifacts.
	Public string
	// Options is the validated compiler configuration.
	Options CompilerOptions
	// Addr is the artifact server listen address.
	Addr string
}

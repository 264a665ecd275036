package config

// Kilnfile represents the structure of the kiln.yaml configuration file.
type Kilnfile struct {
	Version         string            `yaml:"version"`
	Registry        string            `yaml:"registry"`
	Dependencies    map[string]string `yaml:"dependencies"`
	Sources         []string          `yaml:"sources"`
	OutDir          string            `yaml:"outDir"`
	Public          string            `yaml:"public"`
	CompilerOptions map[string]any    `yaml:"compilerOptions"`
	Serve           ServeDTO          `yaml:"serve"`
}

// ServeDTO represents the artifact server section.
type ServeDTO struct {
	Addr string `yaml:"addr"`
}

// Environment variables that override kiln.yaml. They may also be set in a .env file.
const (
	EnvRegistry = "KILN_REGISTRY"
	EnvAddr     = "KILN_ADDR"
)

const (
	defaultSourceDir = "src"
	defaultOutDir    = "dist"
	defaultPublicDir = "public"
)

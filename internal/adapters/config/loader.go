// Package config provides the configuration loader for kiln.
package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var _ ports.ConfigLoader = (*Loader)(nil)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
	// Getenv looks up process environment variables. It defaults to os.Getenv.
	Getenv func(string) string
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger, Getenv: os.Getenv}
}

// Load finds kiln.yaml from cwd upwards and returns the validated project.
func (l *Loader) Load(cwd string) (*domain.Project, error) {
	absCwd, err := filepath.Abs(cwd)
	if err != nil {
		return nil, zerr.Wrap(err, domain.ErrFailedToGetRoot.Error())
	}

	configPath, err := findConfiguration(absCwd)
	if err != nil {
		return nil, err
	}

	var kf Kilnfile
	if err := readAndUnmarshalYAML(configPath, &kf); err != nil {
		return nil, err
	}

	root := filepath.Dir(configPath)
	env, err := l.environment(root)
	if err != nil {
		return nil, err
	}

	return l.buildProject(root, &kf, env)
}

func findConfiguration(cwd string) (string, error) {
	currentDir := cwd
	for {
		candidate := filepath.Join(currentDir, domain.KilnFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return "", domain.WithMeta(domain.ErrConfigNotFound, "cwd", cwd)
		}
		currentDir = parentDir
	}
}

// environment merges the project's .env file with the process environment.
// Process variables win over the file.
func (l *Loader) environment(root string) (map[string]string, error) {
	env := make(map[string]string)

	values, err := godotenv.Read(filepath.Join(root, domain.EnvFileName))
	switch {
	case err == nil:
		env = values
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "file", domain.EnvFileName)
	}

	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, key := range []string{EnvRegistry, EnvAddr} {
		if v := getenv(key); v != "" {
			env[key] = v
		}
	}
	return env, nil
}

func (l *Loader) buildProject(root string, kf *Kilnfile, env map[string]string) (*domain.Project, error) {
	if kf.Version != "" && kf.Version != "1" {
		return nil, domain.WithMeta(domain.ErrConfigError, "reason", "unsupported config version", "version", kf.Version)
	}

	opts, err := domain.ParseCompilerOptions(kf.CompilerOptions)
	if err != nil {
		return nil, err
	}

	registry := firstNonEmpty(env[EnvRegistry], kf.Registry, domain.DefaultRegistry)
	registry = strings.TrimRight(registry, "/")

	sources := kf.Sources
	if len(sources) == 0 {
		sources = []string{defaultSourceDir}
	}
	for i, s := range sources {
		clean, err := relativeDir(root, s, "sources")
		if err != nil {
			return nil, err
		}
		sources[i] = clean
		if _, statErr := os.Stat(filepath.Join(root, clean)); statErr != nil && l.Logger != nil {
			l.Logger.Warn("source directory " + clean + " does not exist")
		}
	}

	outDir, err := relativeDir(root, firstNonEmpty(kf.OutDir, defaultOutDir), "outDir")
	if err != nil {
		return nil, err
	}
	public, err := relativeDir(root, firstNonEmpty(kf.Public, defaultPublicDir), "public")
	if err != nil {
		return nil, err
	}
	if outDir == "." {
		return nil, domain.WithMeta(domain.ErrConfigError, "reason", "outDir must not be the project root")
	}

	deps := kf.Dependencies
	if deps == nil {
		deps = make(map[string]string)
	}

	return &domain.Project{
		Root: root,
		Manifest: domain.Manifest{
			Registry:     registry,
			Dependencies: deps,
		},
		Sources: sources,
		OutDir:  outDir,
		Public:  public,
		Options: opts,
		Addr:    firstNonEmpty(env[EnvAddr], kf.Serve.Addr, domain.DefaultAddr),
	}, nil
}

// relativeDir cleans a configured directory and rejects paths escaping the root.
func relativeDir(root, dir, field string) (string, error) {
	if filepath.IsAbs(dir) {
		rel, err := filepath.Rel(root, dir)
		if err != nil {
			return "", domain.WithMeta(domain.ErrConfigError, "reason", "path outside project root", "field", field)
		}
		dir = rel
	}
	clean := filepath.ToSlash(filepath.Clean(dir))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", domain.WithMeta(domain.ErrConfigError, "reason", "path outside project root", "field", field, "path", dir)
	}
	return clean, nil
}

// readAndUnmarshalYAML reads a YAML file strictly: unknown fields are rejected.
func readAndUnmarshalYAML[T any](configPath string, target *T) error {
	// #nosec G304 -- configPath is found by walking up from the working directory
	data, err := os.ReadFile(configPath)
	if err != nil {
		return zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return errors.Join(domain.ErrConfigError, zerr.Wrap(err, domain.ErrConfigParseFailed.Error()))
	}

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

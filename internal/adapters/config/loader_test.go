package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kiln/internal/adapters/config"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), domain.DirPerm))
	require.NoError(t, os.WriteFile(path, []byte(content), domain.PrivateFilePerm))
}

func newLoader(t *testing.T, env map[string]string) *config.Loader {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Warn(gomock.Any()).AnyTimes()

	l := config.NewLoader(log)
	l.Getenv = func(key string) string { return env[key] }
	return l
}

func TestLoader_Load_Defaults(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, domain.KilnFileName), "version: \"1\"\n")

	project, err := newLoader(t, nil).Load(root)
	require.NoError(t, err)

	assert.Equal(t, root, project.Root)
	assert.Equal(t, []string{"src"}, project.Sources)
	assert.Equal(t, "dist", project.OutDir)
	assert.Equal(t, "public", project.Public)
	assert.Equal(t, domain.DefaultRegistry, project.Manifest.Registry)
	assert.Equal(t, domain.DefaultAddr, project.Addr)
	assert.Equal(t, domain.DefaultCompilerOptions(), project.Options)
	assert.Empty(t, project.Manifest.Dependencies)
}

func TestLoader_Load_Full(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, domain.KilnFileName), `
version: "1"
registry: https://registry.example.com/
dependencies:
  left-pad: ^1.0.0
sources: [app, lib]
outDir: build
compilerOptions:
  target: es2017
  minify: true
serve:
  addr: ":9000"
`)

	project, err := newLoader(t, nil).Load(root)
	require.NoError(t, err)

	assert.Equal(t, "https://registry.example.com", project.Manifest.Registry)
	assert.Equal(t, map[string]string{"left-pad": "^1.0.0"}, project.Manifest.Dependencies)
	assert.Equal(t, []string{"app", "lib"}, project.Sources)
	assert.Equal(t, "build", project.OutDir)
	assert.Equal(t, ":9000", project.Addr)
	assert.Equal(t, "es2017", project.Options.Target)
	assert.True(t, project.Options.Minify)
}

func TestLoader_Load_WalksUp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, domain.KilnFileName), "{}\n")
	nested := filepath.Join(root, "src", "deep")
	require.NoError(t, os.MkdirAll(nested, domain.DirPerm))

	project, err := newLoader(t, nil).Load(nested)
	require.NoError(t, err)
	assert.Equal(t, root, project.Root)
}

func TestLoader_Load_EnvOverrides(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, domain.KilnFileName), "registry: https://file.example.com\n")
	writeFile(t, filepath.Join(root, domain.EnvFileName), "KILN_REGISTRY=https://dotenv.example.com\nKILN_ADDR=:7000\n")

	t.Run("dotenv wins over kiln.yaml", func(t *testing.T) {
		project, err := newLoader(t, nil).Load(root)
		require.NoError(t, err)
		assert.Equal(t, "https://dotenv.example.com", project.Manifest.Registry)
		assert.Equal(t, ":7000", project.Addr)
	})

	t.Run("process env wins over dotenv", func(t *testing.T) {
		project, err := newLoader(t, map[string]string{config.EnvAddr: ":6000"}).Load(root)
		require.NoError(t, err)
		assert.Equal(t, ":6000", project.Addr)
	})
}

func TestLoader_Load_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{
			name:    "unknown compiler option",
			content: "compilerOptions:\n  jsx: react\n",
			wantErr: domain.ErrConfigError,
		},
		{
			name:    "unknown top level field",
			content: "tasks: {}\n",
			wantErr: domain.ErrConfigError,
		},
		{
			name:    "out dir escapes root",
			content: "outDir: ../elsewhere\n",
			wantErr: domain.ErrConfigError,
		},
		{
			name:    "out dir is root",
			content: "outDir: .\n",
			wantErr: domain.ErrConfigError,
		},
		{
			name:    "unsupported version",
			content: "version: \"2\"\n",
			wantErr: domain.ErrConfigError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, domain.KilnFileName), tt.content)

			_, err := newLoader(t, nil).Load(root)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoader_Load_NotFound(t *testing.T) {
	_, err := newLoader(t, nil).Load(t.TempDir())
	require.ErrorIs(t, err, domain.ErrConfigNotFound)
}

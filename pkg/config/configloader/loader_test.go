package configloader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Storage struct {
		Backend string        `koanf:"backend"`
		Timeout time.Duration `koanf:"timeout"`
		SQLite  struct {
			Path string `koanf:"path"`
		} `koanf:"sqlite"`
	} `koanf:"storage"`
	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

func (c *testConfig) Validate() error {
	if c.Storage.Backend == "broken" {
		return errors.New("broken backend")
	}
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func Test_LoadFiles(t *testing.T) {
	yamlContent := `
storage:
  backend: sqlite
  timeout: 2s
  sqlite:
    path: /var/lib/cart.db
log:
  level: info
`
	testCases := []struct {
		name        string
		envFile     string
		env         map[string]string
		wantBackend string
		wantPath    string
		wantLevel   string
		wantErr     bool
	}{
		{
			name:        "yaml only",
			wantBackend: "sqlite",
			wantPath:    "/var/lib/cart.db",
			wantLevel:   "info",
		},
		{
			name:        ".env overrides yaml",
			envFile:     "TESTSVC_LOG_LEVEL=debug\nOTHER_LOG_LEVEL=error\n",
			wantBackend: "sqlite",
			wantPath:    "/var/lib/cart.db",
			wantLevel:   "debug",
		},
		{
			name:        "process env overrides .env",
			envFile:     "TESTSVC_LOG_LEVEL=debug\n",
			env:         map[string]string{"TESTSVC_LOG_LEVEL": "warn", "TESTSVC_STORAGE_SQLITE_PATH": "/tmp/c.db"},
			wantBackend: "sqlite",
			wantPath:    "/tmp/c.db",
			wantLevel:   "warn",
		},
		{
			name:    "validation error is returned",
			env:     map[string]string{"TESTSVC_STORAGE_BACKEND": "broken"},
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			dir := t.TempDir()
			configFile := writeFile(t, dir, "config.yaml", yamlContent)
			envFile := filepath.Join(dir, ".env")
			if tc.envFile != "" {
				writeFile(t, dir, ".env", tc.envFile)
			}
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			// when
			cfg, err := LoadFiles[*testConfig]("testsvc", configFile, envFile)
			// then
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantBackend, cfg.Storage.Backend)
			assert.Equal(t, 2*time.Second, cfg.Storage.Timeout)
			assert.Equal(t, tc.wantPath, cfg.Storage.SQLite.Path)
			assert.Equal(t, tc.wantLevel, cfg.Log.Level)
		})
	}
}

func Test_LoadFiles_MissingFiles(t *testing.T) {
	// given
	dir := t.TempDir()
	// when
	cfg, err := LoadFiles[*testConfig]("testsvc", filepath.Join(dir, "absent.yaml"), filepath.Join(dir, ".env"))
	// then
	require.NoError(t, err)
	assert.Empty(t, cfg.Storage.Backend)
}

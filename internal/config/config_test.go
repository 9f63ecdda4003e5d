package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/logging"
	"github.com/Aman-CERP/repoindex/internal/store"
)

// isolate points the user config at an empty directory and clears REPOINDEX_* vars.
func isolate(t *testing.T) string {
	t.Helper()
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	for _, name := range []string{
		"DATA_DIR", "BACKEND", "LOCK_TIMEOUT", "RECOVER_CORRUPT", "CACHE_SIZE",
		"PARALLEL", "REPOSITORY_ID", "REPOSITORY_PATH", "CHECKSUM_WORKERS",
		"LOG_LEVEL", "LOG_FILE",
	} {
		t.Setenv(envPrefix+name, "")
		require.NoError(t, os.Unsetenv(envPrefix+name))
	}
	return xdg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 1, cfg.Version)
	assert.Equal(t, ".repoindex", cfg.Index.DataDir)
	assert.Equal(t, "bleve", cfg.Index.Backend)
	assert.Equal(t, 5*time.Second, cfg.Index.LockTimeout.Std())
	assert.False(t, cfg.Index.RecoverCorrupt)
	assert.Equal(t, 256, cfg.Search.CacheSize)
	assert.Equal(t, 4, cfg.Search.Parallel)
	assert.Equal(t, "local", cfg.Repository.ID)
	assert.Equal(t, ".", cfg.Repository.Path)
	assert.Equal(t, 4, cfg.Repository.ChecksumWorkers)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Logging.File)
	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFilesUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)
}

func TestLoad_ProjectFileOverridesDefaults(t *testing.T) {
	// Given: a project config setting a subset of fields
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileName), `
index:
  backend: sqlite
  lock_timeout: 250ms
search:
  cache_size: 10
repository:
  id: central
`)

	// When: loading
	cfg, err := Load(dir)

	// Then: set fields win and the rest keep their defaults
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Index.Backend)
	assert.Equal(t, store.BackendSQLite, cfg.Backend())
	assert.Equal(t, 250*time.Millisecond, cfg.Index.LockTimeout.Std())
	assert.Equal(t, 10, cfg.Search.CacheSize)
	assert.Equal(t, "central", cfg.Repository.ID)
	assert.Equal(t, 4, cfg.Search.Parallel)
	assert.Equal(t, ".repoindex", cfg.Index.DataDir)
}

func TestLoad_YmlFallbackAndYamlPrecedence(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileNameAlt), "repository:\n  id: from-yml\n")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-yml", cfg.Repository.ID)

	writeFile(t, filepath.Join(dir, ProjectFileName), "repository:\n  id: from-yaml\n")
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", cfg.Repository.ID)
}

func TestLoad_Precedence(t *testing.T) {
	// Given: the same field in user config, project config and env
	xdg := isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(xdg, "repoindex", "config.yaml"), `
repository:
  id: user
  checksum_workers: 8
logging:
  level: warn
`)
	writeFile(t, filepath.Join(dir, ProjectFileName), "repository:\n  id: project\n")
	t.Setenv("REPOINDEX_LOG_LEVEL", "error")

	// When: loading
	cfg, err := Load(dir)

	// Then: env > project > user > defaults
	require.NoError(t, err)
	assert.Equal(t, "project", cfg.Repository.ID)
	assert.Equal(t, 8, cfg.Repository.ChecksumWorkers)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestLoad_EnvCanSetZero(t *testing.T) {
	isolate(t)
	t.Setenv("REPOINDEX_CACHE_SIZE", "0")
	t.Setenv("REPOINDEX_LOCK_TIMEOUT", "2")
	t.Setenv("REPOINDEX_RECOVER_CORRUPT", "true")

	cfg, err := Load(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Search.CacheSize)
	assert.Equal(t, 2*time.Second, cfg.Index.LockTimeout.Std())
	assert.True(t, cfg.Index.RecoverCorrupt)
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	isolate(t)
	t.Setenv("REPOINDEX_PARALLEL", "many")

	_, err := Load(t.TempDir())

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
	assert.Contains(t, err.Error(), "REPOINDEX_PARALLEL")
}

func TestLoad_MalformedYAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileName), "index: [unclosed\n")

	_, err := Load(dir)

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestLoad_MalformedUserConfig(t *testing.T) {
	xdg := isolate(t)
	writeFile(t, filepath.Join(xdg, "repoindex", "config.yaml"), "search:\n  cache_size: lots\n")

	_, err := Load(t.TempDir())

	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Index.Backend = "lucene" }},
		{"negative lock timeout", func(c *Config) { c.Index.LockTimeout = Duration(-time.Second) }},
		{"negative cache size", func(c *Config) { c.Search.CacheSize = -1 }},
		{"negative parallel", func(c *Config) { c.Search.Parallel = -2 }},
		{"negative checksum workers", func(c *Config) { c.Repository.ChecksumWorkers = -1 }},
		{"repository id with key separator", func(c *Config) { c.Repository.ID = "central:mirror" }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "verbose" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			require.Error(t, err)
			assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestDuration_YAML(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ProjectFileName), "index:\n  lock_timeout: soon\n")

	_, err := Load(dir)
	require.Error(t, err)

	out := filepath.Join(t.TempDir(), "out.yaml")
	cfg := NewConfig()
	cfg.Index.LockTimeout = Duration(1500 * time.Millisecond)
	require.NoError(t, cfg.WriteYAML(out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "lock_timeout: 1.5s")
}

func TestWriteYAML_RoundTripThroughLoad(t *testing.T) {
	// Given: a non-default config written to the project file
	isolate(t)
	dir := t.TempDir()
	cfg := NewConfig()
	cfg.Index.Backend = "memory"
	cfg.Search.Parallel = 2
	cfg.Logging.File = "/tmp/repoindex.log"
	require.NoError(t, cfg.WriteYAML(filepath.Join(dir, ProjectFileName)))

	// When: loading it back
	loaded, err := Load(dir)

	// Then: the values survive
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestResolvedPaths(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, filepath.Join("/proj", ".repoindex"), cfg.DataDir("/proj"))
	assert.Equal(t, "/proj", cfg.RepositoryPath("/proj"))

	cfg.Index.DataDir = "/var/lib/repoindex"
	cfg.Repository.Path = "m2"
	assert.Equal(t, "/var/lib/repoindex", cfg.DataDir("/proj"))
	assert.Equal(t, filepath.Join("/proj", "m2"), cfg.RepositoryPath("/proj"))
}

func TestStoreConfig(t *testing.T) {
	cfg := NewConfig()
	cfg.Index.RecoverCorrupt = true
	cfg.Index.LockTimeout = Duration(time.Second)

	sc := cfg.StoreConfig("artifact")

	assert.Equal(t, "artifact", sc.Collection)
	assert.Equal(t, time.Second, sc.LockTimeout)
	assert.True(t, sc.RecoverCorrupt)
}

func TestLoggingConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := NewConfig()
	cfg.Logging.Level = "warn"

	lc := cfg.LoggingConfig(false)
	assert.Equal(t, "warn", lc.Level)
	assert.Equal(t, logging.DefaultLogPath(), lc.FilePath)
	assert.False(t, lc.WriteToStderr)

	cfg.Logging.File = "/tmp/x.log"
	lc = cfg.LoggingConfig(true)
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "/tmp/x.log", lc.FilePath)
}

func TestFindProjectRoot(t *testing.T) {
	// Given: a project file two levels above the start dir
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ProjectFileName), "version: 1\n")
	start := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(start, 0755))

	// When: searching upward
	found, err := FindProjectRoot(start)

	// Then: the directory holding the file
	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestFindProjectRoot_GitMarker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))
	start := filepath.Join(root, "sub")
	require.NoError(t, os.MkdirAll(start, 0755))

	found, err := FindProjectRoot(start)

	require.NoError(t, err)
	assert.Equal(t, root, found)
}

func TestMergeNewDefaults(t *testing.T) {
	// Given: an old config that only set the backend
	cfg := &Config{Index: IndexConfig{Backend: "sqlite"}}

	// When: merging defaults
	added := cfg.MergeNewDefaults()

	// Then: missing fields are filled and reported, set ones untouched
	assert.Equal(t, "sqlite", cfg.Index.Backend)
	assert.Equal(t, ".repoindex", cfg.Index.DataDir)
	assert.Contains(t, added, "index.data_dir")
	assert.Contains(t, added, "logging.level")
	assert.NotContains(t, added, "index.backend")
	assert.NotContains(t, added, "search.cache_size")
	assert.Equal(t, 0, cfg.Search.CacheSize)

	assert.Empty(t, cfg.MergeNewDefaults(), "second merge adds nothing")
}

func TestUserConfigPath(t *testing.T) {
	xdg := isolate(t)

	assert.Equal(t, filepath.Join(xdg, "repoindex", "config.yaml"), GetUserConfigPath())
	assert.Equal(t, filepath.Join(xdg, "repoindex"), GetUserConfigDir())
	assert.False(t, UserConfigExists())

	cfg, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

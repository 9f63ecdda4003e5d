package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/logging"
	"github.com/Aman-CERP/repoindex/internal/store"
)

const (
	// ProjectFileName is the per-repository config file.
	ProjectFileName = ".repoindex.yaml"

	// ProjectFileNameAlt is accepted when ProjectFileName is absent.
	ProjectFileNameAlt = ".repoindex.yml"

	// DefaultDataDir holds the collections, relative to the project root.
	DefaultDataDir = ".repoindex"

	envPrefix = "REPOINDEX_"
)

// Config represents the complete repoindex configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Repository RepositoryConfig `yaml:"repository" json:"repository"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// IndexConfig configures where and how the collections are stored.
type IndexConfig struct {
	// DataDir is resolved against the project root when relative.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Backend is one of bleve, sqlite or memory.
	Backend string `yaml:"backend" json:"backend"`

	// LockTimeout bounds how long opening a writer waits for the lock.
	LockTimeout Duration `yaml:"lock_timeout" json:"lock_timeout"`

	// RecoverCorrupt clears and recreates an index that fails to open.
	RecoverCorrupt bool `yaml:"recover_corrupt" json:"recover_corrupt"`
}

// SearchConfig configures the search layer.
type SearchConfig struct {
	// CacheSize is the number of cached query results. 0 disables the cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// Parallel is the number of collections searched concurrently.
	Parallel int `yaml:"parallel" json:"parallel"`
}

// RepositoryConfig describes the Maven repository being indexed.
type RepositoryConfig struct {
	ID              string `yaml:"id" json:"id"`
	Path            string `yaml:"path" json:"path"`
	ChecksumWorkers int    `yaml:"checksum_workers" json:"checksum_workers"`
}

// LoggingConfig configures file logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Duration is a time.Duration that reads and writes as "5s" in YAML.
type Duration time.Duration

// UnmarshalYAML accepts a Go duration string or a plain number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := parseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration in Go notation.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// MarshalJSON writes the duration in Go notation, matching the YAML form.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(time.Duration(d).String())), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// NewConfig returns a configuration with all defaults applied.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			DataDir:     DefaultDataDir,
			Backend:     string(store.BackendBleve),
			LockTimeout: Duration(store.DefaultLockTimeout),
		},
		Search: SearchConfig{
			CacheSize: 256,
			Parallel:  4,
		},
		Repository: RepositoryConfig{
			ID:              "local",
			Path:            ".",
			ChecksumWorkers: 4,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file:
// $XDG_CONFIG_HOME/repoindex/config.yaml, or ~/.config/repoindex/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "repoindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "repoindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "repoindex", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	path := GetUserConfigPath()
	if !fileExists(path) {
		return nil, nil
	}
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load loads configuration for the project rooted at dir.
// Precedence, lowest first:
//  1. Defaults
//  2. User config ($XDG_CONFIG_HOME/repoindex/config.yaml)
//  3. Project config (.repoindex.yaml or .repoindex.yml in dir)
//  4. Environment variables (REPOINDEX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userCfg, err := LoadUserConfig()
	if err != nil {
		return nil, err
	}
	if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectConfigPath returns the project config file in dir, preferring .yaml.
// The second result is false when neither file exists.
func ProjectConfigPath(dir string) (string, bool) {
	for _, name := range []string{ProjectFileName, ProjectFileNameAlt} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return path, true
		}
	}
	return filepath.Join(dir, ProjectFileName), false
}

func (c *Config) loadFromFile(dir string) error {
	path, ok := ProjectConfigPath(dir)
	if !ok {
		return nil
	}
	return c.loadYAML(path)
}

// loadYAML parses path and merges its non-zero values into c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return errors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err).
			WithSuggestion("Check the YAML syntax, or run 'repoindex config init --force' to regenerate it")
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
// recover_corrupt can only be switched on by a file; use the env var to clear it.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Index.DataDir != "" {
		c.Index.DataDir = other.Index.DataDir
	}
	if other.Index.Backend != "" {
		c.Index.Backend = other.Index.Backend
	}
	if other.Index.LockTimeout != 0 {
		c.Index.LockTimeout = other.Index.LockTimeout
	}
	if other.Index.RecoverCorrupt {
		c.Index.RecoverCorrupt = true
	}

	if other.Search.CacheSize != 0 {
		c.Search.CacheSize = other.Search.CacheSize
	}
	if other.Search.Parallel != 0 {
		c.Search.Parallel = other.Search.Parallel
	}

	if other.Repository.ID != "" {
		c.Repository.ID = other.Repository.ID
	}
	if other.Repository.Path != "" {
		c.Repository.Path = other.Repository.Path
	}
	if other.Repository.ChecksumWorkers != 0 {
		c.Repository.ChecksumWorkers = other.Repository.ChecksumWorkers
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

// applyEnvOverrides applies REPOINDEX_* environment variables. Unlike files,
// env vars may set explicit zero values, e.g. REPOINDEX_CACHE_SIZE=0.
func (c *Config) applyEnvOverrides() error {
	if v, ok := lookupEnv("DATA_DIR"); ok {
		c.Index.DataDir = v
	}
	if v, ok := lookupEnv("BACKEND"); ok {
		c.Index.Backend = v
	}
	if v, ok := lookupEnv("LOCK_TIMEOUT"); ok {
		d, err := parseDuration(v)
		if err != nil {
			return envError("LOCK_TIMEOUT", v, err)
		}
		c.Index.LockTimeout = Duration(d)
	}
	if v, ok := lookupEnv("RECOVER_CORRUPT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("RECOVER_CORRUPT", v, err)
		}
		c.Index.RecoverCorrupt = b
	}
	if v, ok := lookupEnv("CACHE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("CACHE_SIZE", v, err)
		}
		c.Search.CacheSize = n
	}
	if v, ok := lookupEnv("PARALLEL"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("PARALLEL", v, err)
		}
		c.Search.Parallel = n
	}
	if v, ok := lookupEnv("REPOSITORY_ID"); ok {
		c.Repository.ID = v
	}
	if v, ok := lookupEnv("REPOSITORY_PATH"); ok {
		c.Repository.Path = v
	}
	if v, ok := lookupEnv("CHECKSUM_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("CHECKSUM_WORKERS", v, err)
		}
		c.Repository.ChecksumWorkers = n
	}
	if v, ok := lookupEnv("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := lookupEnv("LOG_FILE"); ok {
		c.Logging.File = v
	}
	return nil
}

func lookupEnv(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func envError(name, value string, cause error) error {
	return errors.ConfigError(fmt.Sprintf("invalid %s%s=%q", envPrefix, name, value), cause)
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if _, err := store.ParseBackend(c.Index.Backend); err != nil {
		return err
	}
	if c.Index.LockTimeout < 0 {
		return errors.ConfigError(fmt.Sprintf("index.lock_timeout must be non-negative, got %s", c.Index.LockTimeout.Std()), nil)
	}
	if c.Search.CacheSize < 0 {
		return errors.ConfigError(fmt.Sprintf("search.cache_size must be non-negative, got %d", c.Search.CacheSize), nil)
	}
	if c.Search.Parallel < 0 {
		return errors.ConfigError(fmt.Sprintf("search.parallel must be non-negative, got %d", c.Search.Parallel), nil)
	}
	if c.Repository.ChecksumWorkers < 0 {
		return errors.ConfigError(fmt.Sprintf("repository.checksum_workers must be non-negative, got %d", c.Repository.ChecksumWorkers), nil)
	}
	if strings.Contains(c.Repository.ID, ":") {
		return errors.ConfigError(fmt.Sprintf("repository.id must not contain ':', got %q", c.Repository.ID), nil)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return errors.ConfigError("logging.level must be 'debug', 'info', 'warn', or 'error'", err)
	}
	return nil
}

// Backend returns the parsed index backend. Call after Validate.
func (c *Config) Backend() store.Backend {
	b, _ := store.ParseBackend(c.Index.Backend)
	return b
}

// DataDir returns the data directory resolved against root.
func (c *Config) DataDir(root string) string {
	return resolve(root, c.Index.DataDir)
}

// RepositoryPath returns the repository directory resolved against root.
func (c *Config) RepositoryPath(root string) string {
	return resolve(root, c.Repository.Path)
}

// StoreConfig builds the engine configuration for one collection.
func (c *Config) StoreConfig(collection string) store.Config {
	return store.Config{
		Collection:     collection,
		LockTimeout:    c.Index.LockTimeout.Std(),
		RecoverCorrupt: c.Index.RecoverCorrupt,
	}
}

// LoggingConfig converts the logging section for logging.Setup. Logs go to
// logging.file, or the default log file when it is empty, never to stderr.
// debug forces debug level.
func (c *Config) LoggingConfig(debug bool) logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.Logging.Level
	lc.FilePath = c.Logging.File
	if lc.FilePath == "" {
		lc.FilePath = logging.DefaultLogPath()
	}
	lc.WriteToStderr = false
	if debug {
		lc.Level = "debug"
	}
	return lc
}

func resolve(root, path string) string {
	if path == "" {
		path = "."
	}
	if filepath.IsAbs(path) || root == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}

// FindProjectRoot walks up from startDir looking for a project config file
// or a .git directory. It returns the absolute startDir when neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	current := absDir
	for {
		if _, ok := ProjectConfigPath(current); ok {
			return current, nil
		}
		if dirExists(filepath.Join(current, ".git")) {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return absDir, nil
		}
		current = parent
	}
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// MergeNewDefaults fills fields an older config file left empty and returns
// the dotted names of the fields it added.
func (c *Config) MergeNewDefaults() []string {
	defaults := NewConfig()
	var added []string

	if c.Version == 0 {
		c.Version = defaults.Version
		added = append(added, "version")
	}
	if c.Index.DataDir == "" {
		c.Index.DataDir = defaults.Index.DataDir
		added = append(added, "index.data_dir")
	}
	if c.Index.Backend == "" {
		c.Index.Backend = defaults.Index.Backend
		added = append(added, "index.backend")
	}
	if c.Index.LockTimeout == 0 {
		c.Index.LockTimeout = defaults.Index.LockTimeout
		added = append(added, "index.lock_timeout")
	}
	if c.Search.Parallel == 0 {
		c.Search.Parallel = defaults.Search.Parallel
		added = append(added, "search.parallel")
	}
	// cache_size 0 is a valid "disabled" value, so it is never migrated.
	if c.Repository.ID == "" {
		c.Repository.ID = defaults.Repository.ID
		added = append(added, "repository.id")
	}
	if c.Repository.Path == "" {
		c.Repository.Path = defaults.Repository.Path
		added = append(added, "repository.path")
	}
	if c.Repository.ChecksumWorkers == 0 {
		c.Repository.ChecksumWorkers = defaults.Repository.ChecksumWorkers
		added = append(added, "repository.checksum_workers")
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
		added = append(added, "logging.level")
	}
	return added
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

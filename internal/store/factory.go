package store

import (
	"os"
	"path/filepath"

	"github.com/Aman-CERP/repoindex/internal/errors"
)

// Backend names an engine implementation.
type Backend string

const (
	// BackendBleve stores a collection in a bleve index directory (default).
	BackendBleve Backend = "bleve"

	// BackendSQLite stores a collection in a SQLite database file (WAL mode).
	BackendSQLite Backend = "sqlite"

	// BackendMemory keeps a collection in process memory only.
	BackendMemory Backend = "memory"
)

// Backends lists the valid backend names.
func Backends() []Backend {
	return []Backend{BackendBleve, BackendSQLite, BackendMemory}
}

// ParseBackend validates a backend name. The empty string selects bleve.
func ParseBackend(name string) (Backend, error) {
	switch Backend(name) {
	case BackendBleve, "":
		return BackendBleve, nil
	case BackendSQLite:
		return BackendSQLite, nil
	case BackendMemory:
		return BackendMemory, nil
	default:
		return "", errors.Newf(errors.ErrCodeConfigInvalid,
			"unknown index backend: %s (valid options: bleve, sqlite, memory)", name)
	}
}

// NewEngineWithBackend opens the engine for a collection. basePath has no
// extension; it is added per backend (.bleve directory, .db file).
func NewEngineWithBackend(basePath string, backend Backend, cfg Config) (Engine, error) {
	b, err := ParseBackend(string(backend))
	if err != nil {
		return nil, err
	}
	switch b {
	case BackendSQLite:
		return NewSQLiteEngine(IndexPath(basePath, b), cfg)
	case BackendMemory:
		return NewMemoryEngine(cfg), nil
	default:
		return NewBleveEngine(IndexPath(basePath, b), cfg)
	}
}

// IndexPath returns the on-disk location of a collection for a backend.
// It returns "" for the memory backend or an empty basePath.
func IndexPath(basePath string, backend Backend) string {
	if basePath == "" {
		return ""
	}
	switch backend {
	case BackendSQLite:
		return basePath + ".db"
	case BackendMemory:
		return ""
	default:
		return basePath + ".bleve"
	}
}

// CollectionBasePath returns the base path of a collection inside dataDir.
func CollectionBasePath(dataDir, collection string) string {
	return filepath.Join(dataDir, collection)
}

// DetectBackend reports which backend an existing collection uses, or ""
// when nothing exists at basePath.
func DetectBackend(basePath string) Backend {
	if fileExists(basePath + ".db") {
		return BackendSQLite
	}
	if dirExists(basePath + ".bleve") {
		return BackendBleve
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

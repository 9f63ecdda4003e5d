package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/repoindex/internal/config"
	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/logging"
	"github.com/Aman-CERP/repoindex/internal/metrics"
	"github.com/Aman-CERP/repoindex/internal/output"
	"github.com/Aman-CERP/repoindex/internal/store"
	"github.com/Aman-CERP/repoindex/pkg/indexer"
)

// app is the per-command environment: project root, merged config, logger
// and the collections the command opened.
type app struct {
	root    string
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	out     *output.Writer

	indexes    []*indexer.Index
	logCleanup func()
}

// newApp resolves the project root, loads configuration and sets up logging.
func newApp(cmd *cobra.Command) (*app, error) {
	root, err := projectRoot()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}

	logger, cleanup, err := logging.Setup(cfg.LoggingConfig(debugMode))
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	logger.Debug("command_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("root", root),
		slog.String("backend", cfg.Index.Backend))

	return &app{
		root:       root,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics.New(),
		out:        output.New(cmd.OutOrStdout()),
		logCleanup: cleanup,
	}, nil
}

func projectRoot() (string, error) {
	if configDir != "" {
		return filepath.Abs(configDir)
	}
	return config.FindProjectRoot(".")
}

func (a *app) dataDir() string {
	return a.cfg.DataDir(a.root)
}

// openCollections opens the named collections. With create false, a
// collection with nothing on disk is an error, so read-only commands do not
// leave empty indexes behind.
func (a *app) openCollections(names []string, create bool) ([]*indexer.Index, error) {
	backend := a.cfg.Backend()
	if create && backend != store.BackendMemory {
		if err := os.MkdirAll(a.dataDir(), 0755); err != nil {
			return nil, errors.StorageError("", "open", err)
		}
	}

	opened := make([]*indexer.Index, 0, len(names))
	for _, name := range names {
		idx, err := a.openCollection(name, backend, create)
		if err != nil {
			for _, o := range opened {
				_ = o.Close()
			}
			return nil, err
		}
		opened = append(opened, idx)
	}
	a.indexes = append(a.indexes, opened...)
	return opened, nil
}

func (a *app) openCollection(name string, backend store.Backend, create bool) (*indexer.Index, error) {
	base := store.CollectionBasePath(a.dataDir(), name)

	if backend != store.BackendMemory {
		existing := store.DetectBackend(base)
		switch {
		case existing == "" && !create:
			return nil, errors.Newf(errors.ErrCodeFileNotFound, "no index found for collection %s", name).
				WithOperation(name, "open").
				WithSuggestion("Run 'repoindex index' first")
		case existing != "" && existing != backend:
			a.logger.Warn("index_backend_mismatch",
				slog.String("collection", name),
				slog.String("configured", string(backend)),
				slog.String("existing", string(existing)))
			backend = existing
		}
	}

	storeCfg := a.cfg.StoreConfig(name)
	storeCfg.Logger = a.logger
	engine, err := store.NewEngineWithBackend(base, backend, storeCfg)
	if err != nil {
		return nil, err
	}

	return indexer.New(name,
		indexer.WithEngine(engine),
		indexer.WithKinds(indexer.KindsFor(name)...),
		indexer.WithLogger(a.logger),
		indexer.WithMetrics(a.metrics))
}

// Close closes every opened collection, writes the metrics file if asked,
// and stops logging.
func (a *app) Close() error {
	var firstErr error
	for _, idx := range a.indexes {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.indexes = nil

	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, a.metrics.Registry()); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to write metrics file: %w", err)
		}
	}

	if a.logCleanup != nil {
		a.logCleanup()
		a.logCleanup = nil
	}
	return firstErr
}

// collectionNames validates --collection values. Empty means all.
func collectionNames(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return indexer.Collections(), nil
	}
	known := indexer.Collections()
	var names []string
	for _, name := range requested {
		name = strings.TrimSpace(name)
		if !slices.Contains(known, name) {
			return nil, errors.ValidationError(
				fmt.Sprintf("unknown collection %q (valid: %s)", name, strings.Join(known, ", ")), nil)
		}
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names, nil
}

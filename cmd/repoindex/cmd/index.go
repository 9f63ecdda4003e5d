package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/maven"
	"github.com/Aman-CERP/repoindex/internal/record"
	"github.com/Aman-CERP/repoindex/pkg/indexer"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	repositoryID string
	wait         bool
	workers      int
}

// maxSkippedShown bounds the skipped files listed after indexing.
const maxSkippedShown = 10

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [repo-dir]",
		Short: "Scan a Maven repository and index it",
		Long: `Scan a Maven-2 layout repository and write its records into the
metadata and artifact collections.

maven-metadata.xml files become group, artifact or snapshot metadata records.
Artifact files become artifact records with their SHA-1 checksum. Files that
cannot be parsed are skipped and listed.

Re-indexing is idempotent: records replace the documents with the same key.`,
		Example: `  # Index the repository configured in .repoindex.yaml
  repoindex index

  # Index another directory, waiting if another process holds the lock
  repoindex index ~/.m2/repository --wait`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context(), cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.repositoryID, "repository-id", "", "Repository id stored on artifacts (default: repository.id)")
	cmd.Flags().BoolVar(&opts.wait, "wait", false, "Retry with backoff while another process holds the write lock")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent checksum reads (default: repository.checksum_workers)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, args []string, opts indexOptions) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	repoDir := a.cfg.RepositoryPath(a.root)
	if len(args) == 1 {
		repoDir = args[0]
	}
	repoID := a.cfg.Repository.ID
	if opts.repositoryID != "" {
		repoID = opts.repositoryID
	}
	workers := a.cfg.Repository.ChecksumWorkers
	if opts.workers > 0 {
		workers = opts.workers
	}

	start := time.Now()
	a.logger.Info("index_started", slog.String("repository", repoDir), slog.String("repository_id", repoID))

	scanner, err := maven.NewScanner(maven.Options{
		Root:            repoDir,
		RepositoryID:    repoID,
		ChecksumWorkers: workers,
		Logger:          a.logger,
	})
	if err != nil {
		return errors.ValidationError(err.Error(), err)
	}
	a.out.Statusf("🔍", "Scanning %s", repoDir)
	res, err := scanner.Scan(ctx)
	if err != nil {
		return err
	}

	indexes, err := a.openCollections(indexer.Collections(), true)
	if err != nil {
		return err
	}

	batches := map[string][]record.Record{
		indexer.MetadataCollection: res.Metadata,
		indexer.ArtifactCollection: res.Artifacts,
	}
	for _, idx := range indexes {
		batch := batches[idx.Name()]
		write := func() error { return idx.IndexRecords(ctx, batch) }
		if opts.wait {
			err = errors.Retry(ctx, errors.DefaultRetryConfig(), write)
		} else {
			err = write()
		}
		if err != nil {
			return err
		}
	}

	a.logger.Info("index_completed",
		slog.Int("metadata", len(res.Metadata)),
		slog.Int("artifacts", len(res.Artifacts)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Duration("duration", time.Since(start)))

	a.out.Successf("Indexed %d metadata records and %d artifacts", len(res.Metadata), len(res.Artifacts))
	a.out.KeyValue("Repository", repoID)
	a.out.KeyValue("Data dir", a.dataDir())
	a.out.KeyValue("Duration", time.Since(start).Round(time.Millisecond))

	if len(res.Skipped) > 0 {
		a.out.Newline()
		a.out.Warningf("Skipped %d files", len(res.Skipped))
		for i, s := range res.Skipped {
			if i == maxSkippedShown {
				a.out.Statusf("", "  ... and %d more (see log)", len(res.Skipped)-maxSkippedShown)
				break
			}
			a.out.Statusf("", "  %s: %s", s.Path, s.Reason)
		}
	}
	return nil
}

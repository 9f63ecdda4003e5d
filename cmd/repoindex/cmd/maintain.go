package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/repoindex/internal/document"
	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/maven"
	"github.com/Aman-CERP/repoindex/pkg/searcher"
)

func newDeleteCmd() *cobra.Command {
	var (
		collections []string
		field       string
		value       string
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete documents whose field has a value",
		Long: `Delete every document where --field equals --value and commit.

Deleting by id removes one record:
  repoindex delete --field id --value group:org.example`,
		Example: `  repoindex delete --collection artifact --field repositoryId --value old-repo`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDelete(cmd.Context(), cmd, collections, field, value)
		},
	}

	cmd.Flags().StringSliceVarP(&collections, "collection", "c", nil, "Collections to delete from (default: all)")
	cmd.Flags().StringVar(&field, "field", document.FieldID, "Field to match")
	cmd.Flags().StringVar(&value, "value", "", "Value to match")
	_ = cmd.MarkFlagRequired("value")

	return cmd
}

func runDelete(ctx context.Context, cmd *cobra.Command, collections []string, field, value string) error {
	if field == "" {
		return errors.ValidationError("--field must not be empty", nil)
	}
	names, err := collectionNames(collections)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	indexes, err := a.openCollections(names, false)
	if err != nil {
		return err
	}

	total := 0
	for _, idx := range indexes {
		n, err := idx.DeleteDocument(ctx, field, value)
		if err != nil {
			return err
		}
		total += n
		a.out.KeyValue(idx.Name(), fmt.Sprintf("%d deleted", n))
	}

	a.logger.Info("delete_completed",
		slog.String("field", field),
		slog.String("value", value),
		slog.Int("deleted", total))

	if total == 0 {
		a.out.Warningf("No documents matched %s=%s", field, value)
		return nil
	}
	a.out.Successf("Deleted %d documents", total)
	return nil
}

func newOptimizeCmd() *cobra.Command {
	var collections []string

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Compact index storage",
		Long: `Compact the storage of each collection. Search results are unchanged;
on-disk size and read latency may shrink.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runOptimize(cmd.Context(), cmd, collections)
		},
	}

	cmd.Flags().StringSliceVarP(&collections, "collection", "c", nil, "Collections to optimize (default: all)")

	return cmd
}

func runOptimize(ctx context.Context, cmd *cobra.Command, collections []string) error {
	names, err := collectionNames(collections)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	indexes, err := a.openCollections(names, false)
	if err != nil {
		return err
	}

	for i, idx := range indexes {
		start := time.Now()
		if err := idx.Optimize(ctx); err != nil {
			return err
		}
		a.out.Progress(i+1, len(indexes), idx.Name())
		a.out.KeyValue(idx.Name(), time.Since(start).Round(time.Millisecond))
	}
	a.out.Successf("Optimized %d collections", len(indexes))
	return nil
}

func newCheckCmd() *cobra.Command {
	var (
		collections []string
		repair      bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Find documents search cannot serve",
		Long: `Read every document and report the ones that cannot be turned back into
records, or whose kind does not belong in the collection.

With --repair those documents are deleted. The command exits non-zero when
problems remain.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd.Context(), cmd, collections, repair)
		},
	}

	cmd.Flags().StringSliceVarP(&collections, "collection", "c", nil, "Collections to check (default: all)")
	cmd.Flags().BoolVar(&repair, "repair", false, "Delete problem documents")

	return cmd
}

func runCheck(ctx context.Context, cmd *cobra.Command, collections []string, repair bool) error {
	names, err := collectionNames(collections)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	indexes, err := a.openCollections(names, false)
	if err != nil {
		return err
	}

	checker := searcher.NewChecker(a.logger)
	remaining := 0
	for _, idx := range indexes {
		res, err := checker.Check(ctx, idx)
		if err != nil {
			return err
		}

		a.out.Header(idx.Name())
		a.out.KeyValue("Checked", res.Checked)
		a.out.KeyValue("Problems", len(res.Problems))
		for _, p := range res.Problems {
			a.out.Statusf("", "%s %s: %s", p.Type, p.DocumentID, p.Details)
		}

		if res.OK() {
			continue
		}
		if !repair {
			remaining += len(res.Problems)
			continue
		}
		removed, err := checker.Repair(ctx, idx, res.Problems)
		a.out.KeyValue("Removed", removed)
		if err != nil {
			return err
		}
		remaining += len(res.Problems) - removed
	}

	a.out.Newline()
	if remaining > 0 {
		return errors.Newf(errors.ErrCodeMalformedDocument, "%d problem documents found", remaining).
			WithSuggestion("Run 'repoindex check --repair' to delete them")
	}
	a.out.Success("All documents readable")
	return nil
}

func newVerifyChecksumsCmd() *cobra.Command {
	var (
		workers int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "verify-checksums [repo-dir]",
		Short: "Compare .md5 and .sha1 files with the files they describe",
		Long: `Walk the repository and recompute the digest of every file that has an
.md5 or .sha1 sidecar. Mismatches are listed and the command exits non-zero.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerifyChecksums(cmd.Context(), cmd, args, workers, asJSON)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Concurrent hashers (default: repository.checksum_workers)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")

	return cmd
}

func runVerifyChecksums(ctx context.Context, cmd *cobra.Command, args []string, workers int, asJSON bool) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	repoDir := a.cfg.RepositoryPath(a.root)
	if len(args) == 1 {
		repoDir = args[0]
	}
	if workers <= 0 {
		workers = a.cfg.Repository.ChecksumWorkers
	}

	start := time.Now()
	report, err := maven.VerifyChecksums(ctx, repoDir, workers)
	if err != nil {
		return errors.New(errors.ErrCodeFileNotFound, "failed to verify checksums", err).
			WithDetail("path", repoDir)
	}
	a.logger.Info("checksums_verified",
		slog.String("repository", repoDir),
		slog.Int("verified", report.Verified),
		slog.Int("mismatches", len(report.Mismatches)),
		slog.Duration("duration", time.Since(start)))

	if asJSON {
		if report.Mismatches == nil {
			report.Mismatches = []maven.Mismatch{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		a.out.KeyValue("Verified", report.Verified)
		for _, m := range report.Mismatches {
			a.out.Errorf("%s", m)
		}
	}

	if !report.OK() {
		return errors.Newf(errors.ErrCodeChecksumMismatch, "%d checksum mismatches", len(report.Mismatches))
	}
	if !asJSON {
		a.out.Success("All checksums match")
	}
	return nil
}

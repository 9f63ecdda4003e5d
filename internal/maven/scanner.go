// Package maven reads a Maven-2 layout repository from disk and turns its
// metadata files and artifacts into index records.
package maven

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/repoindex/internal/record"
)

// DefaultChecksumWorkers is used when Options.ChecksumWorkers is not positive.
const DefaultChecksumWorkers = 4

// Options configures a Scanner.
type Options struct {
	// Root is the repository base directory.
	Root string

	// RepositoryID is stored on every artifact record.
	RepositoryID string

	// ChecksumWorkers bounds concurrent sidecar reads and hashing.
	ChecksumWorkers int

	// Logger receives skipped-file warnings (default slog.Default()).
	Logger *slog.Logger

	// Now stamps artifacts' gathered date (default time.Now). The value is
	// converted to UTC and truncated to whole seconds.
	Now func() time.Time
}

// SkippedFile is a file the scanner could not turn into a record.
type SkippedFile struct {
	Path   string
	Reason string
}

// Result holds the records found in one scan, each slice sorted by key.
type Result struct {
	Metadata  []record.Record
	Artifacts []record.Record
	Skipped   []SkippedFile
}

// Records returns metadata records followed by artifact records.
func (r *Result) Records() []record.Record {
	out := make([]record.Record, 0, len(r.Metadata)+len(r.Artifacts))
	out = append(out, r.Metadata...)
	return append(out, r.Artifacts...)
}

// Scanner walks a repository directory.
type Scanner struct {
	opts Options
}

// NewScanner creates a scanner for opts.Root.
func NewScanner(opts Options) (*Scanner, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("repository root is required")
	}
	info, err := os.Stat(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat repository root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository root is not a directory: %s", opts.Root)
	}
	if opts.RepositoryID == "" {
		opts.RepositoryID = "local"
	}
	if opts.ChecksumWorkers <= 0 {
		opts.ChecksumWorkers = DefaultChecksumWorkers
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scanner{opts: opts}, nil
}

// Records scans the repository and returns every record. It satisfies
// record.Provider.
func (s *Scanner) Records(ctx context.Context) ([]record.Record, error) {
	res, err := s.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return res.Records(), nil
}

// Scan walks the repository. Metadata files that fail to parse and artifact
// files that cannot be read are logged and reported in Result.Skipped; only
// walk and context errors fail the scan.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{}
	var artifactPaths []string

	err := filepath.WalkDir(s.opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			s.skip(res, path, err.Error())
			return nil
		}
		if d.IsDir() {
			if path != s.opts.Root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(s.opts.Root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.Name() == MetadataFileName {
			rec, err := s.readMetadata(path, rel)
			if err != nil {
				s.skip(res, rel, err.Error())
				return nil
			}
			res.Metadata = append(res.Metadata, rec)
			return nil
		}
		if _, ok := ParseArtifactPath(rel); ok {
			artifactPaths = append(artifactPaths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk repository: %w", err)
	}

	if err := s.resolveArtifacts(ctx, artifactPaths, res); err != nil {
		return nil, err
	}

	sortByKey(res.Metadata)
	sortByKey(res.Artifacts)
	sort.Slice(res.Skipped, func(i, j int) bool { return res.Skipped[i].Path < res.Skipped[j].Path })

	s.opts.Logger.Info("repository_scanned",
		slog.String("root", s.opts.Root),
		slog.Int("metadata", len(res.Metadata)),
		slog.Int("artifacts", len(res.Artifacts)),
		slog.Int("skipped", len(res.Skipped)),
		slog.Duration("duration", time.Since(start)))
	return res, nil
}

func (s *Scanner) readMetadata(path, rel string) (record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return record.Record{}, err
	}
	defer func() { _ = f.Close() }()

	m, err := ParseMetadata(f)
	if err != nil {
		return record.Record{}, err
	}
	rec, err := m.Record(filepathDir(rel))
	if err != nil {
		return record.Record{}, err
	}
	if err := rec.Validate(); err != nil {
		return record.Record{}, err
	}
	return rec, nil
}

// resolveArtifacts builds artifact records with checksums, bounded by
// ChecksumWorkers.
func (s *Scanner) resolveArtifacts(ctx context.Context, paths []string, res *Result) error {
	gathered := s.opts.Now().UTC().Truncate(time.Second)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ChecksumWorkers)
	for _, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := s.readArtifact(rel, gathered)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.skip(res, rel, err.Error())
				return nil
			}
			res.Artifacts = append(res.Artifacts, rec)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scanner) readArtifact(rel string, gathered time.Time) (record.Record, error) {
	coords, _ := ParseArtifactPath(rel)
	path := filepath.Join(s.opts.Root, filepath.FromSlash(rel))

	info, err := os.Stat(path)
	if err != nil {
		return record.Record{}, err
	}

	checksum, err := ReadSidecar(path + SHA1.Extension())
	if err != nil || checksum == "" {
		checksum, err = FileChecksum(path, SHA1)
		if err != nil {
			return record.Record{}, err
		}
	}

	rec := record.ForArtifact(record.Artifact{
		GroupID:      coords.GroupID,
		ArtifactID:   coords.ArtifactID,
		Version:      coords.Version,
		Classifier:   coords.Classifier,
		Type:         coords.Type,
		RepositoryID: s.opts.RepositoryID,
		Checksum:     checksum,
		Size:         info.Size(),
		Gathered:     gathered,
	})
	if err := rec.Validate(); err != nil {
		return record.Record{}, err
	}
	return rec, nil
}

func (s *Scanner) skip(res *Result, path, reason string) {
	s.opts.Logger.Warn("repository_file_skipped",
		slog.String("path", path),
		slog.String("reason", reason))
	res.Skipped = append(res.Skipped, SkippedFile{Path: path, Reason: reason})
}

func filepathDir(rel string) string {
	i := strings.LastIndex(rel, "/")
	if i < 0 {
		return ""
	}
	return rel[:i]
}

func sortByKey(records []record.Record) {
	sort.Slice(records, func(i, j int) bool { return records[i].Key() < records[j].Key() })
}

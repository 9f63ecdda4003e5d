package searcher

import (
	"context"
	"log/slog"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/repoindex/internal/document"
	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/metrics"
	"github.com/Aman-CERP/repoindex/internal/query"
	"github.com/Aman-CERP/repoindex/internal/record"
	"github.com/Aman-CERP/repoindex/internal/store"
	"github.com/Aman-CERP/repoindex/internal/telemetry"
	"github.com/Aman-CERP/repoindex/pkg/indexer"
)

// Hit is one reconstructed search result. Each call returns hits the caller
// owns; changing them does not affect later results.
type Hit struct {
	ID     string
	Record record.Record
}

// Kind returns the record kind.
func (h Hit) Kind() record.Kind { return h.Record.Kind }

// IsMetadata reports whether the hit is one of the metadata kinds.
func (h Hit) IsMetadata() bool { return h.Record.IsMetadata() }

// IsArtifact reports whether the hit is an artifact.
func (h Hit) IsArtifact() bool { return h.Record.Kind == record.KindArtifact }

// LastUpdate returns the record's last-update (or gathered) time.
func (h Hit) LastUpdate() time.Time {
	r := h.Record
	switch r.Kind {
	case record.KindGroupMetadata:
		return r.Group.LastUpdated
	case record.KindArtifactMetadata:
		return r.ArtifactMetadata.LastUpdated
	case record.KindSnapshotMetadata:
		return r.Snapshot.LastUpdated
	case record.KindArtifact:
		return r.Artifact.Gathered
	}
	return time.Time{}
}

// DefaultParallelism bounds how many collections SearchAll queries at once.
const DefaultParallelism = 4

// cacheKey ties a result to the storage generation it was read at, so a
// commit from any handle or process invalidates it.
type cacheKey struct {
	index      *indexer.Index
	generation uint64
	query      string
}

func cloneHits(hits []Hit) []Hit {
	out := make([]Hit, len(hits))
	for i, h := range hits {
		out[i] = Hit{ID: h.ID, Record: h.Record.Clone()}
	}
	return out
}

// Searcher executes queries. A zero-option Searcher has no cache.
type Searcher struct {
	logger      *slog.Logger
	metrics     *metrics.Metrics
	telemetry   *telemetry.QueryMetrics
	cache       *lru.Cache[cacheKey, []Hit]
	parallelism int
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Searcher) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCacheSize keeps up to n query results, keyed by index, storage
// generation and canonical query text. n <= 0 disables the cache.
func WithCacheSize(n int) Option {
	return func(s *Searcher) {
		if n <= 0 {
			s.cache = nil
			return
		}
		s.cache, _ = lru.New[cacheKey, []Hit](n)
	}
}

// WithMetrics records search counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) {
		s.metrics = m
	}
}

// WithTelemetry records query patterns.
func WithTelemetry(t *telemetry.QueryMetrics) Option {
	return func(s *Searcher) {
		s.telemetry = t
	}
}

// WithParallelism sets how many collections SearchAll queries at once.
func WithParallelism(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

// New creates a Searcher.
func New(opts ...Option) *Searcher {
	s := &Searcher{
		logger:      slog.Default(),
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var defaultSearcher = New()

// Search runs q against idx with a default Searcher.
func Search(ctx context.Context, q query.Query, idx *indexer.Index) ([]Hit, error) {
	return defaultSearcher.Search(ctx, q, idx)
}

// Search compiles q for idx's engine, runs it against a snapshot, and
// reconstructs every match. Zero matches yield an empty, non-nil slice.
func (s *Searcher) Search(ctx context.Context, q query.Query, idx *indexer.Index) ([]Hit, error) {
	if idx == nil {
		return nil, errors.ValidationError("search target index is nil", nil)
	}

	engine := idx.Engine()
	native, err := engine.Compile(q)
	if err != nil {
		return nil, err
	}

	key := cacheKey{index: idx, query: q.String()}
	if s.cache != nil {
		if key.generation, err = engine.Generation(ctx); err != nil {
			return nil, err
		}
		if cached, ok := s.cache.Get(key); ok {
			return cloneHits(cached), nil
		}
	}

	start := time.Now()
	hits := []Hit{}
	skipped := 0
	err = store.WithReader(ctx, engine, func(r store.Reader) error {
		it, err := r.Query(ctx, native)
		if err != nil {
			return err
		}
		defer it.Close()

		for it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			doc := it.Doc()
			hit, err := reconstruct(doc)
			if err != nil {
				if !errors.Is(err, errors.ErrMalformedDocument) {
					return err
				}
				skipped++
				s.logger.Warn("search_hit_skipped",
					slog.String("collection", idx.Name()),
					slog.String("document", doc.ID),
					slog.String("error", err.Error()))
				continue
			}
			hits = append(hits, hit)
		}
		return it.Err()
	})

	elapsed := time.Since(start)
	s.metrics.RecordSearch(idx.Name(), len(hits), skipped, elapsed, err)
	if err != nil {
		return nil, err
	}
	if s.telemetry != nil {
		s.telemetry.Record(telemetry.NewQueryEvent(idx.Name(), q, len(hits), skipped, elapsed))
	}
	if s.cache != nil {
		// A commit that landed during the query may or may not be in hits.
		if after, err := engine.Generation(ctx); err == nil && after == key.generation {
			s.cache.Add(key, cloneHits(hits))
		}
	}

	s.logger.Debug("search_completed",
		slog.String("collection", idx.Name()),
		slog.String("query", key.query),
		slog.Int("hits", len(hits)),
		slog.Int("skipped", skipped),
		slog.Duration("duration", elapsed))
	return hits, nil
}

// reconstruct maps a stored document back to a Hit. A document whose engine
// id differs from its record key is malformed.
func reconstruct(doc store.RawDocument) (Hit, error) {
	rec, err := document.FromFields(doc.Fields)
	if err != nil {
		return Hit{}, err
	}
	if key := rec.Key(); key != doc.ID {
		return Hit{}, errors.Newf(errors.ErrCodeMalformedDocument,
			"document %s reconstructs to key %s", doc.ID, key).
			WithDetail(errors.DetailDocument, doc.ID)
	}
	return Hit{ID: doc.ID, Record: rec}, nil
}

// SearchAll runs q against every index concurrently and concatenates the
// results in index order. The first error cancels the remaining searches.
func (s *Searcher) SearchAll(ctx context.Context, q query.Query, indexes ...*indexer.Index) ([]Hit, error) {
	results := make([][]Hit, len(indexes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, idx := range indexes {
		g.Go(func() error {
			hits, err := s.Search(gctx, q, idx)
			if err != nil {
				return err
			}
			results[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	all := []Hit{}
	for _, hits := range results {
		all = append(all, hits...)
	}
	return all, nil
}

// SortBy selects a hit ordering.
type SortBy int

const (
	// ByID orders hits by document id.
	ByID SortBy = iota
	// ByLastUpdate orders hits oldest first, ties by id.
	ByLastUpdate
)

// SortHits orders hits in place.
func SortHits(hits []Hit, by SortBy) {
	switch by {
	case ByLastUpdate:
		sort.SliceStable(hits, func(i, j int) bool {
			ti, tj := hits[i].LastUpdate(), hits[j].LastUpdate()
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
			return hits[i].ID < hits[j].ID
		})
	default:
		sort.SliceStable(hits, func(i, j int) bool {
			return hits[i].ID < hits[j].ID
		})
	}
}

package indexer

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/repoindex/internal/document"
	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/metrics"
	"github.com/Aman-CERP/repoindex/internal/record"
	"github.com/Aman-CERP/repoindex/internal/store"
)

// ErrNilEngine is returned when an Index is created without an engine.
var ErrNilEngine = errors.New(errors.ErrCodeConfigInvalid, "index engine is required", nil)

// Standard collection names.
const (
	MetadataCollection = "metadata"
	ArtifactCollection = "artifact"
)

// Kind presets for the two standard collections.
var (
	MetadataKinds = []record.Kind{record.KindGroupMetadata, record.KindArtifactMetadata, record.KindSnapshotMetadata}
	ArtifactKinds = []record.Kind{record.KindArtifact}
)

// Collections returns the standard collection names in search order.
func Collections() []string {
	return []string{MetadataCollection, ArtifactCollection}
}

// KindsFor returns the kind preset of a standard collection, or nil (every
// kind) for any other name.
func KindsFor(collection string) []record.Kind {
	switch collection {
	case MetadataCollection:
		return MetadataKinds
	case ArtifactCollection:
		return ArtifactKinds
	default:
		return nil
	}
}

// Index is one named collection backed by a store.Engine.
type Index struct {
	name    string
	engine  store.Engine
	kinds   map[record.Kind]bool
	logger  *slog.Logger
	metrics *metrics.Metrics

	generation atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// Option configures an Index.
type Option func(*Index)

// WithEngine sets the storage engine. Required.
func WithEngine(e store.Engine) Option {
	return func(i *Index) {
		i.engine = e
	}
}

// WithKinds restricts the collection to the given record kinds. Without it
// every kind is accepted.
func WithKinds(kinds ...record.Kind) Option {
	return func(i *Index) {
		if len(kinds) == 0 {
			return
		}
		i.kinds = make(map[record.Kind]bool, len(kinds))
		for _, k := range kinds {
			i.kinds[k] = true
		}
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(i *Index) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithMetrics records batches, deletes and lock waits.
func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Index) {
		i.metrics = m
	}
}

// New creates an Index. It returns ErrNilEngine if no engine is given.
func New(name string, opts ...Option) (*Index, error) {
	i := &Index{
		name:   name,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.engine == nil {
		return nil, ErrNilEngine
	}
	if i.name == "" {
		i.name = i.engine.Name()
	}
	return i, nil
}

// Name returns the collection name.
func (i *Index) Name() string { return i.name }

// Engine returns the underlying engine.
func (i *Index) Engine() store.Engine { return i.engine }

// Generation counts commits made through this Index. Commits by other
// handles on the same storage are not counted; Engine().Generation reports
// those.
func (i *Index) Generation() uint64 { return i.generation.Load() }

// Accepts reports whether records of kind k belong in this collection.
func (i *Index) Accepts(k record.Kind) bool {
	return i.kinds == nil || i.kinds[k]
}

func (i *Index) checkOpen(operation string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return errors.Newf(errors.ErrCodeIndexClosed, "index %s is closed", i.name).
			WithOperation(i.name, operation)
	}
	return nil
}

// withWriter runs fn in a write session and records the lock outcome.
func (i *Index) withWriter(ctx context.Context, fn func(store.Writer) error) error {
	opened := false
	err := store.WithWriter(ctx, i.engine, func(w store.Writer) error {
		opened = true
		i.metrics.RecordLockWait(i.name, nil)
		return fn(w)
	})
	if !opened && err != nil && errors.Is(err, errors.ErrIndexLocked) {
		i.metrics.RecordLockWait(i.name, err)
	}
	return err
}

// IndexRecords maps and writes records in order, then commits once.
//
// A record that fails validation, mapping, the kind filter, or the write
// aborts the batch: records before it are committed and the returned error
// carries the failing position and key. Cancellation is checked between
// records and leaves the written prefix committed as well.
func (i *Index) IndexRecords(ctx context.Context, records []record.Record) error {
	if err := i.checkOpen("index"); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	start := time.Now()
	written := 0
	err := i.withWriter(ctx, func(w store.Writer) error {
		var batchErr error
		for pos, r := range records {
			if err := ctx.Err(); err != nil {
				batchErr = err
				break
			}
			if err := i.writeRecord(ctx, w, r); err != nil {
				batchErr = annotate(err, i.name, pos, r)
				break
			}
			written++
		}

		if written > 0 {
			// The prefix is committed even when the caller has given up.
			if err := w.Commit(context.WithoutCancel(ctx)); err != nil {
				return err
			}
			i.generation.Add(1)
		}
		return batchErr
	})

	i.metrics.RecordBatch(i.name, written, time.Since(start), err)
	if err != nil {
		i.logger.Warn("index_batch_failed",
			slog.String("collection", i.name),
			slog.Int("records", len(records)),
			slog.Int("committed", written),
			slog.String("error", err.Error()))
		return err
	}

	i.logger.Debug("index_batch_committed",
		slog.String("collection", i.name),
		slog.Int("records", written),
		slog.Duration("duration", time.Since(start)))
	return nil
}

func (i *Index) writeRecord(ctx context.Context, w store.Writer, r record.Record) error {
	if !i.Accepts(r.Kind) {
		return errors.Newf(errors.ErrCodeUnsupportedRecordKind,
			"collection %s does not accept %s records", i.name, r.Kind)
	}
	fields, err := document.ToFields(r)
	if err != nil {
		return err
	}
	return w.Write(ctx, fields.Get(document.FieldID), fields)
}

// annotate attaches the batch position and record key to a failure.
func annotate(err error, collection string, pos int, r record.Record) error {
	var ie *errors.IndexError
	if !errors.As(err, &ie) {
		ie = errors.New(errors.ErrCodeIndexFailed, err.Error(), err)
	}
	ie.WithOperation(collection, "index").
		WithDetail(errors.DetailPosition, strconv.Itoa(pos))
	if key := r.Key(); key != "" {
		ie.WithDetail(errors.DetailRecord, key)
	}
	return ie
}

// DeleteDocument removes every document where field has value, commits, and
// returns the number removed. Deleting by document.FieldID removes one record.
func (i *Index) DeleteDocument(ctx context.Context, field, value string) (int, error) {
	if err := i.checkOpen("delete"); err != nil {
		return 0, err
	}
	if field == "" {
		return 0, errors.ValidationError("delete field is empty", nil).WithOperation(i.name, "delete")
	}

	var n int
	err := i.withWriter(ctx, func(w store.Writer) error {
		var err error
		n, err = w.Delete(ctx, field, value)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if err := w.Commit(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		i.generation.Add(1)
		return nil
	})
	if err != nil {
		return 0, err
	}

	i.metrics.RecordDelete(i.name, n)
	i.logger.Debug("documents_deleted",
		slog.String("collection", i.name),
		slog.String("field", field),
		slog.Int("count", n))
	return n, nil
}

// Optimize compacts the collection's storage.
func (i *Index) Optimize(ctx context.Context) error {
	if err := i.checkOpen("optimize"); err != nil {
		return err
	}

	start := time.Now()
	err := i.withWriter(ctx, func(w store.Writer) error {
		return w.Optimize(ctx)
	})
	if err != nil {
		return err
	}

	i.metrics.RecordOptimize(i.name, time.Since(start))
	i.logger.Info("index_optimized",
		slog.String("collection", i.name),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Close closes the engine. Safe to call more than once.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	return i.engine.Close()
}

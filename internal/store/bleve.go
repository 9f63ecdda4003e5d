package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/Aman-CERP/repoindex/internal/document"
	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/query"
)

// storedDocumentField holds the whole document as JSON so that values come
// back in write order. It is stored, not indexed.
const storedDocumentField = "storedDocument"

// generationKey is the internal (non-document) key holding the commit counter.
var generationKey = []byte("_repoindex_generation")

// BleveEngine stores a collection in a bleve index. Every document field is
// indexed with the keyword analyzer, so terms match whole values exactly and
// term ranges compare raw strings.
type BleveEngine struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	cfg    Config
	closed bool

	// slot serialises writers of a path-less (in-memory) index, which has no lock file.
	slot chan struct{}
}

var _ Engine = (*BleveEngine)(nil)

// validateIndexIntegrity checks the bleve metadata file before opening.
// A missing index is not an error; it will be created.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError reports whether a bleve open error means a damaged index.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveEngine opens or creates the bleve index at path.
// An empty path creates an in-memory index.
func NewBleveEngine(path string, cfg Config) (*BleveEngine, error) {
	cfg = cfg.withDefaults()
	log := cfg.Logger

	indexMapping := buildIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
		if err != nil {
			return nil, errors.StorageError(cfg.Collection, "open", err)
		}
		return &BleveEngine{index: idx, cfg: cfg, slot: make(chan struct{}, 1)}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.StorageError(cfg.Collection, "open", fmt.Errorf("failed to create directory: %w", err))
	}

	if validErr := validateIndexIntegrity(path); validErr != nil {
		log.Warn("bleve_index_corrupted",
			slog.String("collection", cfg.Collection),
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if !cfg.RecoverCorrupt {
			return nil, corruptError(cfg.Collection, "open", validErr)
		}
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, errors.StorageError(cfg.Collection, "open",
				fmt.Errorf("cannot remove corrupt index: %w (original error: %v)", removeErr, validErr))
		}
		log.Info("bleve_index_cleared",
			slog.String("collection", cfg.Collection),
			slog.String("path", path),
			slog.String("reason", "corruption detected, reindex required"))
	}

	idx, err = bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, indexMapping)
	} else if err != nil && isCorruptionError(err) {
		log.Warn("bleve_index_open_failed",
			slog.String("collection", cfg.Collection),
			slog.String("path", path),
			slog.String("error", err.Error()))
		if !cfg.RecoverCorrupt {
			return nil, corruptError(cfg.Collection, "open", err)
		}
		if removeErr := os.RemoveAll(path); removeErr != nil {
			return nil, errors.StorageError(cfg.Collection, "open",
				fmt.Errorf("cannot clear corrupt index: %w (original: %v)", removeErr, err))
		}
		idx, err = bleve.New(path, indexMapping)
	}
	if err != nil {
		return nil, errors.StorageError(cfg.Collection, "open", err)
	}

	log.Debug("bleve_index_opened",
		slog.String("collection", cfg.Collection),
		slog.String("path", path))

	return &BleveEngine{index: idx, path: path, cfg: cfg}, nil
}

// buildIndexMapping maps every known document field with the keyword analyzer.
// Unknown fields are kept only in the stored document.
func buildIndexMapping() *mapping.IndexMappingImpl {
	docMapping := mapping.NewDocumentMapping()
	docMapping.Dynamic = false

	for _, name := range document.KnownFields() {
		docMapping.AddFieldMappingsAt(name, keywordField())
	}

	stored := mapping.NewTextFieldMapping()
	stored.Index = false
	stored.Store = true
	stored.IncludeInAll = false
	docMapping.AddFieldMappingsAt(storedDocumentField, stored)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = keyword.Name
	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

func keywordField() *mapping.FieldMapping {
	fm := mapping.NewTextFieldMapping()
	fm.Analyzer = keyword.Name
	fm.Store = true
	fm.Index = true
	fm.IncludeInAll = false
	fm.IncludeTermVectors = false
	return fm
}

// Name returns the collection name.
func (b *BleveEngine) Name() string { return b.cfg.Collection }

// Path returns the index directory ("" for in-memory).
func (b *BleveEngine) Path() string { return b.path }

// DocCount returns the number of committed documents.
func (b *BleveEngine) DocCount() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, closedError(b.cfg.Collection, "doc_count")
	}
	return b.index.DocCount()
}

// Generation reads the commit counter stored alongside the index.
func (b *BleveEngine) Generation(ctx context.Context) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, closedError(b.cfg.Collection, "generation")
	}
	return b.storedGeneration()
}

func (b *BleveEngine) storedGeneration() (uint64, error) {
	raw, err := b.index.GetInternal(generationKey)
	if err != nil {
		return 0, errors.StorageError(b.cfg.Collection, "generation", err)
	}
	if len(raw) != 8 {
		return 0, nil
	}
	return binary.BigEndian.Uint64(raw), nil
}

// OpenWriter acquires the collection lock and starts a batch.
func (b *BleveEngine) OpenWriter(ctx context.Context) (Writer, error) {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return nil, closedError(b.cfg.Collection, "open_writer")
	}

	release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}

	return &bleveWriter{
		engine:  b,
		release: release,
		batch:   b.index.NewBatch(),
		pending: map[string]document.Fields{},
	}, nil
}

func (b *BleveEngine) acquire(ctx context.Context) (func() error, error) {
	if b.path != "" {
		lock := NewWriteLock(b.path, b.cfg.Collection)
		if err := lock.Acquire(ctx, b.cfg.LockTimeout); err != nil {
			return nil, err
		}
		return lock.Release, nil
	}
	return acquireSlot(ctx, b.slot, b.cfg)
}

// OpenReader opens a read session over the shared index handle.
func (b *BleveEngine) OpenReader(ctx context.Context) (Reader, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, closedError(b.cfg.Collection, "open_reader")
	}
	return &bleveReader{engine: b}, nil
}

type bleveQuery struct {
	source query.Query
	native blevequery.Query
}

func (q bleveQuery) Source() query.Query { return q.source }

// Compile translates q into bleve term, term-range and boolean queries.
func (b *BleveEngine) Compile(q query.Query) (NativeQuery, error) {
	if err := query.Validate(q); err != nil {
		return nil, err
	}
	native, err := compileBleve(q)
	if err != nil {
		return nil, err
	}
	return bleveQuery{source: q, native: native}, nil
}

func compileBleve(q query.Query) (blevequery.Query, error) {
	switch q := q.(type) {
	case query.SingleTermQuery:
		tq := bleve.NewTermQuery(q.Term.Value)
		tq.SetField(q.Term.Field)
		return tq, nil
	case query.RangeQuery:
		inclusive := q.Inclusive
		rq := bleve.NewTermRangeInclusiveQuery(q.Low.Value, q.High.Value, &inclusive, &inclusive)
		rq.SetField(q.Field())
		return rq, nil
	case query.CompoundQuery:
		clauses := make([]blevequery.Query, 0, len(q.Clauses))
		for _, c := range q.Clauses {
			native, err := compileBleve(c)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, native)
		}
		if q.Op == query.OpOr {
			return bleve.NewDisjunctionQuery(clauses...), nil
		}
		return bleve.NewConjunctionQuery(clauses...), nil
	case query.MatchAll:
		return bleve.NewMatchAllQuery(), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidQuery, "unsupported query type %T", q)
	}
}

// Close closes the index.
func (b *BleveEngine) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

type bleveWriter struct {
	engine  *BleveEngine
	release func() error
	batch   *bleve.Batch
	// pending is the uncommitted view: nil marks a pending delete.
	pending map[string]document.Fields
	closed  bool
}

func (w *bleveWriter) collection() string { return w.engine.cfg.Collection }

func (w *bleveWriter) Write(ctx context.Context, id string, fields document.Fields) error {
	if w.closed {
		return closedError(w.collection(), "write")
	}
	if id == "" {
		return errors.New(errors.ErrCodeInvalidInput, "document id is empty", nil).
			WithOperation(w.collection(), "write")
	}
	doc, err := toBleveDoc(fields)
	if err != nil {
		return errors.StorageError(w.collection(), "write", err).WithDetail(errors.DetailDocument, id)
	}
	if err := w.batch.Index(id, doc); err != nil {
		return errors.StorageError(w.collection(), "write", err).WithDetail(errors.DetailDocument, id)
	}
	w.pending[id] = fields.Clone()
	return nil
}

// toBleveDoc flattens fields for indexing and embeds the JSON copy.
func toBleveDoc(fields document.Fields) (map[string]interface{}, error) {
	doc := make(map[string]interface{}, len(fields)+1)
	for name, vs := range fields {
		if len(vs) == 1 {
			doc[name] = vs[0]
		} else {
			doc[name] = append([]string(nil), vs...)
		}
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	doc[storedDocumentField] = string(data)
	return doc, nil
}

func (w *bleveWriter) Delete(ctx context.Context, field, value string) (int, error) {
	if w.closed {
		return 0, closedError(w.collection(), "delete")
	}

	matched := map[string]bool{}

	tq := bleve.NewTermQuery(value)
	tq.SetField(field)
	var q blevequery.Query = tq
	if field == document.FieldID {
		// Also match by engine id so documents missing the id field can be removed.
		q = bleve.NewDisjunctionQuery(tq, bleve.NewDocIDQuery([]string{value}))
	}
	committed, err := w.engine.search(ctx, q, nil)
	if err != nil {
		return 0, errors.StorageError(w.collection(), "delete", err)
	}
	for _, hit := range committed {
		if _, overridden := w.pending[hit.ID]; !overridden {
			matched[hit.ID] = true
		}
	}
	for id, f := range w.pending {
		if f != nil && (f.Matches(field, value) || (field == document.FieldID && id == value)) {
			matched[id] = true
		}
	}

	for id := range matched {
		w.batch.Delete(id)
		w.pending[id] = nil
	}
	return len(matched), nil
}

func (w *bleveWriter) Commit(ctx context.Context) error {
	if w.closed {
		return closedError(w.collection(), "commit")
	}
	if w.batch.Size() == 0 {
		return nil
	}
	// The write lock is held, so nothing else can bump the counter meanwhile.
	gen, err := w.engine.storedGeneration()
	if err != nil {
		return err
	}
	next := make([]byte, 8)
	binary.BigEndian.PutUint64(next, gen+1)
	w.batch.SetInternal(generationKey, next)
	if err := w.engine.index.Batch(w.batch); err != nil {
		return errors.StorageError(w.collection(), "commit", err)
	}
	w.batch = w.engine.index.NewBatch()
	w.pending = map[string]document.Fields{}
	return nil
}

// Optimize commits pending work. Scorch merges segments in the background,
// so there is nothing further to force.
func (w *bleveWriter) Optimize(ctx context.Context) error {
	return w.Commit(ctx)
}

func (w *bleveWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.batch.Reset()
	w.pending = nil
	return w.release()
}

type bleveReader struct {
	engine *BleveEngine
}

func (r *bleveReader) Query(ctx context.Context, q NativeQuery) (Iterator, error) {
	bq, ok := q.(bleveQuery)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidQuery, "query compiled for another engine (%T)", q)
	}
	hits, err := r.engine.search(ctx, bq.native, []string{"*"})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.StorageError(r.engine.cfg.Collection, "query", err)
	}

	docs := make([]RawDocument, 0, len(hits))
	for _, hit := range hits {
		docs = append(docs, RawDocument{ID: hit.ID, Fields: fieldsFromHit(hit)})
	}
	return newSliceIterator(ctx, docs), nil
}

func (r *bleveReader) Close() error { return nil }

// search returns every hit of q. Bleve executes each request against an
// index snapshot; the request is repeated once if the collection grew
// between counting and searching.
func (b *BleveEngine) search(ctx context.Context, q blevequery.Query, fields []string) (search.DocumentMatchCollection, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, closedError(b.cfg.Collection, "query")
	}

	count, err := b.index.DocCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return search.DocumentMatchCollection{}, nil
	}

	size := int(count)
	for attempt := 0; attempt < 2; attempt++ {
		req := bleve.NewSearchRequestOptions(q, size, 0, false)
		req.Fields = fields
		result, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return nil, err
		}
		if result.Total <= uint64(len(result.Hits)) {
			return result.Hits, nil
		}
		size = int(result.Total)
	}
	return nil, fmt.Errorf("collection changed size during search")
}

// fieldsFromHit rebuilds a document from a hit. The stored JSON copy is
// preferred; individual stored fields are the fallback.
func fieldsFromHit(hit *search.DocumentMatch) document.Fields {
	if raw, ok := hit.Fields[storedDocumentField].(string); ok {
		var f document.Fields
		if err := json.Unmarshal([]byte(raw), &f); err == nil {
			return f
		}
	}

	f := document.Fields{}
	for name, v := range hit.Fields {
		if name == storedDocumentField {
			continue
		}
		switch v := v.(type) {
		case string:
			f.Add(name, v)
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					f.Add(name, s)
				}
			}
		}
	}
	return f
}

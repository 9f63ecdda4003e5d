package store

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/Aman-CERP/repoindex/internal/document"
	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/query"
)

// MemoryEngine keeps a collection in process memory. Commits publish a new
// immutable snapshot; readers hold whichever snapshot was current when their
// query started. Unit tests use it as the reference engine.
type MemoryEngine struct {
	cfg      Config
	snapshot atomic.Pointer[memSnapshot]
	writer   chan struct{}

	mu     sync.Mutex
	closed bool
}

type memSnapshot struct {
	docs       map[string]document.Fields
	generation uint64
}

var _ Engine = (*MemoryEngine)(nil)

// NewMemoryEngine creates an empty in-memory collection.
func NewMemoryEngine(cfg Config) *MemoryEngine {
	e := &MemoryEngine{
		cfg:    cfg.withDefaults(),
		writer: make(chan struct{}, 1),
	}
	e.snapshot.Store(&memSnapshot{docs: map[string]document.Fields{}})
	return e
}

// Name returns the collection name.
func (e *MemoryEngine) Name() string { return e.cfg.Collection }

func (e *MemoryEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// OpenWriter takes the single writer slot, waiting at most LockTimeout.
func (e *MemoryEngine) OpenWriter(ctx context.Context) (Writer, error) {
	if e.isClosed() {
		return nil, closedError(e.cfg.Collection, "open_writer")
	}

	release, err := acquireSlot(ctx, e.writer, e.cfg)
	if err != nil {
		return nil, err
	}

	return &memWriter{engine: e, release: release, pending: cloneDocs(e.snapshot.Load().docs)}, nil
}

// OpenReader opens a read session.
func (e *MemoryEngine) OpenReader(ctx context.Context) (Reader, error) {
	if e.isClosed() {
		return nil, closedError(e.cfg.Collection, "open_reader")
	}
	return &memReader{engine: e}, nil
}

// Compile turns q into a predicate over documents.
func (e *MemoryEngine) Compile(q query.Query) (NativeQuery, error) {
	if err := query.Validate(q); err != nil {
		return nil, err
	}
	return memQuery{source: q, match: compilePredicate(q)}, nil
}

// Close releases the engine.
func (e *MemoryEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Generation returns the number of commits published so far.
func (e *MemoryEngine) Generation(ctx context.Context) (uint64, error) {
	if e.isClosed() {
		return 0, closedError(e.cfg.Collection, "generation")
	}
	return e.snapshot.Load().generation, nil
}

// publish stores docs as the next snapshot.
func (e *MemoryEngine) publish(docs map[string]document.Fields) {
	prev := e.snapshot.Load()
	e.snapshot.Store(&memSnapshot{docs: docs, generation: prev.generation + 1})
}

// DocCount returns the number of committed documents.
func (e *MemoryEngine) DocCount() int {
	return len(e.snapshot.Load().docs)
}

type memQuery struct {
	source query.Query
	match  func(document.Fields) bool
}

func (q memQuery) Source() query.Query { return q.source }

func compilePredicate(q query.Query) func(document.Fields) bool {
	switch q := q.(type) {
	case query.SingleTermQuery:
		return func(f document.Fields) bool {
			return f.Matches(q.Term.Field, q.Term.Value)
		}
	case query.RangeQuery:
		return func(f document.Fields) bool {
			for _, v := range f.Values(q.Field()) {
				if q.Contains(v) {
					return true
				}
			}
			return false
		}
	case query.CompoundQuery:
		preds := make([]func(document.Fields) bool, len(q.Clauses))
		for i, c := range q.Clauses {
			preds[i] = compilePredicate(c)
		}
		if q.Op == query.OpOr {
			return func(f document.Fields) bool {
				for _, p := range preds {
					if p(f) {
						return true
					}
				}
				return false
			}
		}
		return func(f document.Fields) bool {
			for _, p := range preds {
				if !p(f) {
					return false
				}
			}
			return true
		}
	default:
		return func(document.Fields) bool { return true }
	}
}

type memWriter struct {
	engine  *MemoryEngine
	release func() error
	pending map[string]document.Fields
	closed  bool
}

func (w *memWriter) Write(ctx context.Context, id string, fields document.Fields) error {
	if w.closed {
		return closedError(w.engine.cfg.Collection, "write")
	}
	if id == "" {
		return errors.New(errors.ErrCodeInvalidInput, "document id is empty", nil).
			WithOperation(w.engine.cfg.Collection, "write")
	}
	w.pending[id] = fields.Clone()
	return nil
}

func (w *memWriter) Delete(ctx context.Context, field, value string) (int, error) {
	if w.closed {
		return 0, closedError(w.engine.cfg.Collection, "delete")
	}
	n := 0
	for id, f := range w.pending {
		if (field == document.FieldID && id == value) || f.Matches(field, value) {
			delete(w.pending, id)
			n++
		}
	}
	return n, nil
}

func (w *memWriter) Commit(ctx context.Context) error {
	if w.closed {
		return closedError(w.engine.cfg.Collection, "commit")
	}
	w.engine.publish(cloneDocs(w.pending))
	return nil
}

func (w *memWriter) Optimize(ctx context.Context) error {
	return w.Commit(ctx)
}

func (w *memWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.pending = nil
	return w.release()
}

type memReader struct {
	engine *MemoryEngine
}

func (r *memReader) Query(ctx context.Context, q NativeQuery) (Iterator, error) {
	mq, ok := q.(memQuery)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidQuery, "query compiled for another engine (%T)", q)
	}

	snap := r.engine.snapshot.Load()
	ids := make([]string, 0, len(snap.docs))
	for id := range snap.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := []RawDocument{}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := snap.docs[id]
		if mq.match(f) {
			docs = append(docs, RawDocument{ID: id, Fields: f.Clone()})
		}
	}
	return newSliceIterator(ctx, docs), nil
}

func (r *memReader) Close() error { return nil }

func cloneDocs(in map[string]document.Fields) map[string]document.Fields {
	out := make(map[string]document.Fields, len(in))
	for id, f := range in {
		out[id] = f
	}
	return out
}

// PutRaw stores fields under id exactly as given, bypassing the mapper.
// Tests use it to plant documents written by older mapper versions.
func (e *MemoryEngine) PutRaw(id string, fields document.Fields) {
	docs := cloneDocs(e.snapshot.Load().docs)
	docs[id] = fields.Clone()
	e.publish(docs)
}

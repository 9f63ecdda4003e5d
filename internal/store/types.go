// Package store is the index engine adapter: a narrow contract over an
// inverted-index engine plus the bleve, SQLite and in-memory engines that
// satisfy it.
//
// One Engine backs one collection. Writers are exclusive and guarded by a
// lock next to the index; readers are unlimited and each query runs against a
// snapshot taken when it starts.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/repoindex/internal/document"
	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/query"
)

// DefaultLockTimeout bounds how long OpenWriter waits for the write lock.
const DefaultLockTimeout = 5 * time.Second

// Engine is one collection's index storage.
type Engine interface {
	// Name returns the collection name.
	Name() string

	// OpenWriter acquires the exclusive write session. It waits at most the
	// configured lock timeout and then fails with ERR_209_INDEX_LOCKED.
	OpenWriter(ctx context.Context) (Writer, error)

	// OpenReader opens a read session. Readers never block each other or writers.
	OpenReader(ctx context.Context) (Reader, error)

	// Compile translates an algebra query into the engine's native form.
	Compile(q query.Query) (NativeQuery, error)

	// Generation returns the committed data version. It is kept in storage
	// and changes on every commit, whichever handle or process made it.
	Generation(ctx context.Context) (uint64, error)

	// Close releases the engine. Open sessions must be closed first.
	Close() error
}

// Writer is an exclusive write session. Writes become visible to new readers
// on Commit. Close discards anything not committed and releases the lock.
type Writer interface {
	// Write adds or replaces the document with the given id.
	Write(ctx context.Context, id string, fields document.Fields) error

	// Delete removes every document where any value of field equals value
	// and returns how many were removed.
	Delete(ctx context.Context, field, value string) (int, error)

	// Commit makes prior writes and deletes durable.
	Commit(ctx context.Context) error

	// Optimize compacts storage. It is advisory and commits pending work.
	Optimize(ctx context.Context) error

	Close() error
}

// Reader is a read session.
type Reader interface {
	// Query runs a compiled query against a snapshot taken now.
	Query(ctx context.Context, q NativeQuery) (Iterator, error)

	Close() error
}

// Iterator streams matching documents.
//
//	for it.Next() {
//		doc := it.Doc()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator interface {
	Next() bool
	Doc() RawDocument
	Err() error
	Close() error
}

// RawDocument is a stored document as the engine returns it.
type RawDocument struct {
	ID     string
	Fields document.Fields
}

// NativeQuery is a query compiled by one engine. It is only valid for the
// engine that produced it.
type NativeQuery interface {
	// Source returns the algebra query it was compiled from.
	Source() query.Query
}

// Config configures an engine.
type Config struct {
	// Collection is the collection name used in errors and logs.
	Collection string

	// LockTimeout bounds the wait for the write lock (default 5s).
	LockTimeout time.Duration

	// RecoverCorrupt clears and recreates an index that fails the integrity
	// check on open instead of returning ERR_205_CORRUPT_INDEX.
	RecoverCorrupt bool

	// Logger receives engine events (default slog.Default()).
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.LockTimeout <= 0 {
		c.LockTimeout = DefaultLockTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// WithWriter opens a writer, runs fn and closes the writer on every exit
// path, including panics. fn must call Commit for its writes to persist.
func WithWriter(ctx context.Context, e Engine, fn func(Writer) error) (err error) {
	w, err := e.OpenWriter(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(w)
}

// WithReader opens a reader, runs fn and closes the reader on every exit path.
func WithReader(ctx context.Context, e Engine, fn func(Reader) error) (err error) {
	r, err := e.OpenReader(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(r)
}

// Collect drains an iterator and closes it.
func Collect(it Iterator) ([]RawDocument, error) {
	defer it.Close()
	docs := []RawDocument{}
	for it.Next() {
		docs = append(docs, it.Doc())
	}
	return docs, it.Err()
}

func closedError(collection, operation string) error {
	return errors.Newf(errors.ErrCodeIndexClosed, "collection %s is closed", collection).
		WithOperation(collection, operation)
}

func corruptError(collection, operation string, cause error) error {
	return errors.New(errors.ErrCodeCorruptIndex,
		"index for "+collection+" is corrupt: "+cause.Error(), cause).
		WithOperation(collection, operation).
		WithSuggestion("delete the index directory and reindex, or set index.recover_corrupt")
}

// sliceIterator iterates over documents already materialised from a snapshot.
type sliceIterator struct {
	ctx  context.Context
	docs []RawDocument
	pos  int
	err  error
}

func newSliceIterator(ctx context.Context, docs []RawDocument) *sliceIterator {
	return &sliceIterator{ctx: ctx, docs: docs, pos: -1}
}

func (it *sliceIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	it.pos++
	return it.pos < len(it.docs)
}

func (it *sliceIterator) Doc() RawDocument {
	if it.pos < 0 || it.pos >= len(it.docs) {
		return RawDocument{}
	}
	return it.docs[it.pos]
}

func (it *sliceIterator) Err() error   { return it.err }
func (it *sliceIterator) Close() error { it.docs = nil; return nil }

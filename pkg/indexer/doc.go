// Package indexer owns one collection of the repository index.
//
// An Index turns records into documents through the document mapper and
// writes them into a store.Engine. The metadata and artifact collections are
// separate Index values, each with its own engine and writer lock:
//
//	┌──────────────────┐     ┌──────────────────┐
//	│ maven.Scanner /  │     │ searcher.Search  │
//	│ other producers  │     └────────┬─────────┘
//	└────────┬─────────┘              │
//	┌────────▼─────────┐              │
//	│   indexer.Index  │◄─────────────┘
//	└────────┬─────────┘
//	┌────────▼─────────┐
//	│   store.Engine   │  bleve | sqlite | memory
//	└──────────────────┘
//
// # Usage
//
//	engine, _ := store.NewEngineWithBackend(base, store.BackendBleve, store.Config{Collection: "metadata"})
//	idx, err := indexer.New("metadata", indexer.WithEngine(engine), indexer.WithKinds(indexer.MetadataKinds...))
//	if err != nil {
//	    return err
//	}
//	defer idx.Close()
//
//	err = idx.IndexRecords(ctx, records)
//
// # Batches
//
// IndexRecords writes records in order and commits once. If a record fails,
// the records before it are committed, the rest are not written, and the
// error names the failing position and key. Replaying a batch is idempotent
// because documents are keyed by record key.
//
// # Thread Safety
//
// An Index is safe for concurrent use. Writes from any number of goroutines
// or processes are serialized by the engine's writer lock.
package indexer

// Package searcher runs algebra queries against an indexer.Index and turns
// the matching documents back into records.
//
// # Usage
//
//	s := searcher.New(searcher.WithCacheSize(256))
//	hits, err := s.Search(ctx, query.TermQuery("checksum", sum), artifacts)
//	for _, h := range hits {
//	    fmt.Println(h.ID, h.Kind())
//	}
//
// Documents that can no longer be reconstructed, typically written by an
// older mapper, are logged and skipped rather than failing the search.
// [Checker] finds those documents so they can be removed.
//
// Results come back in no particular order; use [SortHits] when order
// matters.
package searcher

package searcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aman-CERP/repoindex/internal/document"
	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/query"
	"github.com/Aman-CERP/repoindex/internal/store"
	"github.com/Aman-CERP/repoindex/pkg/indexer"
)

// ProblemType categorizes a document that cannot be served.
type ProblemType int

const (
	// ProblemMalformed is a document that fails reconstruction.
	ProblemMalformed ProblemType = iota
	// ProblemKindMismatch is a valid document of a kind the collection does not accept.
	ProblemKindMismatch
)

// String returns a short name for the problem type.
func (t ProblemType) String() string {
	switch t {
	case ProblemMalformed:
		return "malformed"
	case ProblemKindMismatch:
		return "kind_mismatch"
	default:
		return "unknown"
	}
}

// Problem is one document found by a check.
type Problem struct {
	Type       ProblemType
	DocumentID string
	Details    string
}

// CheckResult is the outcome of checking one collection.
type CheckResult struct {
	Collection string
	// Checked is the number of documents scanned.
	Checked  int
	Problems []Problem
	Duration time.Duration
}

// OK reports whether no problems were found.
func (r *CheckResult) OK() bool { return len(r.Problems) == 0 }

// Checker scans a collection for documents search would skip.
type Checker struct {
	logger *slog.Logger
}

// NewChecker creates a Checker. A nil logger means slog.Default().
func NewChecker(logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{logger: logger}
}

// Check reads every document in idx and reports the ones that cannot be
// reconstructed or do not belong in the collection.
func (c *Checker) Check(ctx context.Context, idx *indexer.Index) (*CheckResult, error) {
	if idx == nil {
		return nil, errors.ValidationError("check target index is nil", nil)
	}

	start := time.Now()
	engine := idx.Engine()
	native, err := engine.Compile(query.All())
	if err != nil {
		return nil, err
	}

	result := &CheckResult{Collection: idx.Name()}
	err = store.WithReader(ctx, engine, func(r store.Reader) error {
		it, err := r.Query(ctx, native)
		if err != nil {
			return err
		}
		defer it.Close()

		for it.Next() {
			doc := it.Doc()
			result.Checked++

			hit, err := reconstruct(doc)
			switch {
			case err != nil && errors.Is(err, errors.ErrMalformedDocument):
				result.Problems = append(result.Problems, Problem{
					Type:       ProblemMalformed,
					DocumentID: doc.ID,
					Details:    err.Error(),
				})
			case err != nil:
				return err
			case !idx.Accepts(hit.Kind()):
				result.Problems = append(result.Problems, Problem{
					Type:       ProblemKindMismatch,
					DocumentID: doc.ID,
					Details:    hit.Kind().String() + " record in " + idx.Name(),
				})
			}
		}
		return it.Err()
	})
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	c.logger.Info("consistency_check_completed",
		slog.String("collection", result.Collection),
		slog.Int("checked", result.Checked),
		slog.Int("problems", len(result.Problems)),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// Repair deletes the documents named by problems and returns how many were
// removed. Failures are logged and the rest are still attempted; the first
// failure is returned.
func (c *Checker) Repair(ctx context.Context, idx *indexer.Index, problems []Problem) (int, error) {
	removed := 0
	var firstErr error
	for _, p := range problems {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		n, err := idx.DeleteDocument(ctx, document.FieldID, p.DocumentID)
		if err != nil {
			c.logger.Warn("repair_delete_failed",
				slog.String("collection", idx.Name()),
				slog.String("document", p.DocumentID),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed += n
	}

	if removed > 0 {
		c.logger.Info("repair_completed",
			slog.String("collection", idx.Name()),
			slog.Int("removed", removed))
	}
	return removed, firstErr
}

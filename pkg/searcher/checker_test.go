package searcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/repoindex/internal/document"
	"github.com/Aman-CERP/repoindex/internal/query"
	"github.com/Aman-CERP/repoindex/internal/record"
	"github.com/Aman-CERP/repoindex/pkg/indexer"
)

func TestProblemType_String(t *testing.T) {
	assert.Equal(t, "malformed", ProblemMalformed.String())
	assert.Equal(t, "kind_mismatch", ProblemKindMismatch.String())
	assert.Equal(t, "unknown", ProblemType(42).String())
}

func TestChecker_CleanCollection(t *testing.T) {
	idx, _ := newIndex(t, "all")
	require.NoError(t, idx.IndexRecords(context.Background(), fourKinds(t)))

	result, err := NewChecker(nil).Check(context.Background(), idx)

	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Equal(t, 4, result.Checked)
	assert.Equal(t, "all", result.Collection)
}

func TestChecker_FindsAndRepairsProblems(t *testing.T) {
	// Given: a metadata collection holding a malformed document and an artifact
	idx, engine := newIndex(t, "metadata", indexer.WithKinds(indexer.MetadataKinds...))
	require.NoError(t, idx.IndexRecords(context.Background(), fourKinds(t)[:1]))

	noID := document.Fields{}
	noID.Set(document.FieldGroupID, "legacy")
	engine.PutRaw("legacy-doc", noID)

	artifact := fourKinds(t)[3]
	fields, err := document.ToFields(artifact)
	require.NoError(t, err)
	engine.PutRaw(artifact.Key(), fields)

	// When: the collection is checked
	checker := NewChecker(nil)
	result, err := checker.Check(context.Background(), idx)

	// Then: both problems are reported by type
	require.NoError(t, err)
	assert.Equal(t, 3, result.Checked)
	require.Len(t, result.Problems, 2)
	byID := map[string]ProblemType{}
	for _, p := range result.Problems {
		byID[p.DocumentID] = p.Type
	}
	assert.Equal(t, ProblemMalformed, byID["legacy-doc"])
	assert.Equal(t, ProblemKindMismatch, byID[artifact.Key()])

	// When: repaired
	removed, err := checker.Repair(context.Background(), idx, result.Problems)

	// Then: only the good document is left
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	hits, err := Search(context.Background(), query.All(), idx)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, record.KindGroupMetadata, hits[0].Kind())

	again, err := checker.Check(context.Background(), idx)
	require.NoError(t, err)
	assert.True(t, again.OK())
}

func TestChecker_NilIndex(t *testing.T) {
	_, err := NewChecker(nil).Check(context.Background(), nil)
	assert.Error(t, err)
}

func TestChecker_RepairCancelled(t *testing.T) {
	idx, _ := newIndex(t, "metadata")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n, err := NewChecker(nil).Repair(ctx, idx, []Problem{{DocumentID: "x"}})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, n)
}

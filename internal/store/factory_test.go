package store

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/blevesearch/bleve/v2/search"
	_ "github.com/mattn/go-sqlite3" // CGO driver, used to inspect files written by modernc
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/repoindex/internal/document"
	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/query"
)

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in       string
		expected Backend
		wantErr  bool
	}{
		{"", BackendBleve, false},
		{"bleve", BackendBleve, false},
		{"sqlite", BackendSQLite, false},
		{"memory", BackendMemory, false},
		{"lucene", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackend(tt.in)
			if tt.wantErr {
				assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestIndexPath(t *testing.T) {
	assert.Equal(t, "/data/metadata.bleve", IndexPath("/data/metadata", BackendBleve))
	assert.Equal(t, "/data/metadata.db", IndexPath("/data/metadata", BackendSQLite))
	assert.Equal(t, "", IndexPath("/data/metadata", BackendMemory))
	assert.Equal(t, "", IndexPath("", BackendBleve))
	assert.Equal(t, filepath.Join("d", "artifact"), CollectionBasePath("d", "artifact"))
}

func TestNewEngineWithBackend_DetectsExisting(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "metadata")
	assert.Equal(t, Backend(""), DetectBackend(base))

	e, err := NewEngineWithBackend(base, BackendSQLite, Config{Collection: "metadata"})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.Equal(t, BackendSQLite, DetectBackend(base))

	other := filepath.Join(dir, "artifact")
	e, err = NewEngineWithBackend(other, BackendBleve, Config{Collection: "artifact"})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.Equal(t, BackendBleve, DetectBackend(other))

	e, err = NewEngineWithBackend(base, BackendMemory, Config{Collection: "mem"})
	require.NoError(t, err)
	assert.Equal(t, "mem", e.Name())
	require.NoError(t, e.Close())

	_, err = NewEngineWithBackend(base, Backend("nope"), Config{})
	assert.Error(t, err)
}

func TestBleveEngine_CorruptIndex(t *testing.T) {
	// Given: a bleve directory with an empty meta file
	path := filepath.Join(t.TempDir(), "metadata.bleve")
	require.NoError(t, os.MkdirAll(path, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), nil, 0644))

	// When: opening without recovery
	_, err := NewBleveEngine(path, Config{Collection: "metadata"})

	// Then: CorruptIndex with collection context
	assert.ErrorIs(t, err, errors.ErrCorruptIndex)
	var ie *errors.IndexError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "metadata", ie.Details[errors.DetailCollection])

	// When: opening with recovery
	e, err := NewBleveEngine(path, Config{Collection: "metadata", RecoverCorrupt: true})

	// Then: a fresh empty index
	require.NoError(t, err)
	defer e.Close()
	n, err := e.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
}

func TestSQLiteEngine_CorruptIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.db")
	garbage := bytes.Repeat([]byte("not a sqlite database "), 200)
	require.NoError(t, os.WriteFile(path, garbage, 0644))

	_, err := NewSQLiteEngine(path, Config{Collection: "metadata"})
	assert.ErrorIs(t, err, errors.ErrCorruptIndex)

	e, err := NewSQLiteEngine(path, Config{Collection: "metadata", RecoverCorrupt: true})
	require.NoError(t, err)
	defer e.Close()
	n, err := e.DocCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLiteEngine_RequiresPath(t *testing.T) {
	_, err := NewSQLiteEngine("", Config{Collection: "metadata"})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestSQLiteEngine_StoresValuesInWriteOrder(t *testing.T) {
	// Given: a multi-valued field written through the engine
	path := filepath.Join(t.TempDir(), "metadata.db")
	e, err := NewSQLiteEngine(path, Config{Collection: "metadata"})
	require.NoError(t, err)

	f := document.Fields{}
	f.Set(document.FieldID, "group:g")
	f.Add(document.FieldPluginPrefix, "zeta", "alpha", "mid")
	err = WithWriter(context.Background(), e, func(w Writer) error {
		if err := w.Write(context.Background(), "group:g", f); err != nil {
			return err
		}
		return w.Optimize(context.Background())
	})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	// When: reading the file with an independent driver
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	rows, err := db.Query(`SELECT value FROM fields WHERE doc_id = ? AND name = ? ORDER BY pos`,
		"group:g", document.FieldPluginPrefix)
	require.NoError(t, err)
	defer rows.Close()

	var got []string
	for rows.Next() {
		var v string
		require.NoError(t, rows.Scan(&v))
		got = append(got, v)
	}
	require.NoError(t, rows.Err())

	// Then: positions preserve write order
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, got)
}

func TestSQLiteEngine_ReopenKeepsDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.db")
	e, err := NewSQLiteEngine(path, Config{Collection: "artifact"})
	require.NoError(t, err)
	writeCommit(t, e, map[string]document.Fields{"a1": fields("id", "a1", "checksum", "abc")})
	require.NoError(t, e.Close())

	e, err = NewSQLiteEngine(path, Config{Collection: "artifact"})
	require.NoError(t, err)
	defer e.Close()

	docs := run(t, e, query.TermQuery("checksum", "abc"))
	require.Len(t, docs, 1)
	assert.Equal(t, "a1", docs[0].ID)
}

func TestBleveEngine_ReopenKeepsDocuments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.bleve")
	e, err := NewBleveEngine(path, Config{Collection: "artifact"})
	require.NoError(t, err)
	writeCommit(t, e, map[string]document.Fields{"a1": fields("id", "a1", "checksum", "abc", "versions", "1", "versions", "2")})
	require.NoError(t, e.Close())

	e, err = NewBleveEngine(path, Config{Collection: "artifact"})
	require.NoError(t, err)
	defer e.Close()

	docs := run(t, e, query.TermQuery("versions", "2"))
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"1", "2"}, docs[0].Fields.Values("versions"))
}

func TestFieldsFromHit_FallbackToStoredFields(t *testing.T) {
	hit := &search.DocumentMatch{
		ID: "group:g",
		Fields: map[string]interface{}{
			"id":           "group:g",
			"pluginPrefix": []interface{}{"a", "b"},
		},
	}
	f := fieldsFromHit(hit)

	assert.Equal(t, "group:g", f.Get("id"))
	assert.Equal(t, []string{"a", "b"}, f.Values("pluginPrefix"))
}

package record

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/repoindex/internal/errors"
)

func TestRecord_Key(t *testing.T) {
	tests := []struct {
		name     string
		rec      Record
		expected string
	}{
		{
			name:     "group",
			rec:      Group(GroupMetadata{GroupID: "org.apache.maven"}),
			expected: "group:org.apache.maven",
		},
		{
			name:     "artifact metadata",
			rec:      ForArtifactMetadata(ArtifactMetadata{GroupID: "g", ArtifactID: "a", Version: "1.0"}),
			expected: "artifact-metadata:g:a:1.0",
		},
		{
			name: "snapshot metadata",
			rec: Snapshot(SnapshotArtifactMetadata{
				ArtifactMetadata: ArtifactMetadata{GroupID: "g", ArtifactID: "a", Version: "1.0-SNAPSHOT"},
				Timestamp:        "20051212.044643",
			}),
			expected: "snapshot-metadata:g:a:1.0-SNAPSHOT:20051212.044643",
		},
		{
			name: "artifact",
			rec: ForArtifact(Artifact{
				GroupID: "g", ArtifactID: "a", Version: "1.0", Classifier: "sources", Type: "jar", RepositoryID: "central",
			}),
			expected: "artifact:g:a:1.0:sources:jar:central",
		},
		{
			name:     "tag without variant",
			rec:      Record{Kind: KindArtifact},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.rec.Key())
		})
	}
}

func TestRecord_KeysDoNotCollideAcrossKinds(t *testing.T) {
	// Given: a group and metadata whose identity strings overlap
	g := Group(GroupMetadata{GroupID: "x"})
	m := ForArtifactMetadata(ArtifactMetadata{GroupID: "x", ArtifactID: "x"})

	// Then: keys differ by kind prefix
	assert.NotEqual(t, g.Key(), m.Key())
}

func TestRecord_ValidateRejectsKeyAmbiguity(t *testing.T) {
	// Given: two metadata records whose identity fields join to the same key
	a := ForArtifactMetadata(ArtifactMetadata{GroupID: "org", ArtifactID: "x:y", Version: "1"})
	b := ForArtifactMetadata(ArtifactMetadata{GroupID: "org:x", ArtifactID: "y", Version: "1"})
	require.Equal(t, a.Key(), b.Key())

	// When: validating them
	errA, errB := a.Validate(), b.Validate()

	// Then: both are rejected as invalid input instead of overwriting each other
	require.Error(t, errA)
	require.Error(t, errB)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(errA))
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(errB))
	assert.Contains(t, errA.Error(), "artifactId")
	assert.Contains(t, errB.Error(), "groupId")
}

func TestRecord_Validate(t *testing.T) {
	now := time.Date(2005, 12, 12, 4, 46, 43, 0, time.UTC)

	tests := []struct {
		name    string
		rec     Record
		errCode string
	}{
		{"valid group", Group(GroupMetadata{GroupID: "g", PluginPrefixes: []string{"p"}, LastUpdated: now}), ""},
		{"group without id", Group(GroupMetadata{}), errors.ErrCodeInvalidInput},
		{"empty plugin prefix", Group(GroupMetadata{GroupID: "g", PluginPrefixes: []string{""}}), errors.ErrCodeInvalidInput},
		{"metadata without artifact", ForArtifactMetadata(ArtifactMetadata{GroupID: "g"}), errors.ErrCodeInvalidInput},
		{"snapshot without timestamp", Snapshot(SnapshotArtifactMetadata{ArtifactMetadata: ArtifactMetadata{GroupID: "g", ArtifactID: "a"}}), errors.ErrCodeInvalidInput},
		{"artifact without type", ForArtifact(Artifact{GroupID: "g", ArtifactID: "a", Version: "1", RepositoryID: "r"}), errors.ErrCodeInvalidInput},
		{"artifact negative size", ForArtifact(Artifact{GroupID: "g", ArtifactID: "a", Version: "1", Type: "jar", RepositoryID: "r", Size: -1}), errors.ErrCodeInvalidInput},
		{"group id with separator", Group(GroupMetadata{GroupID: "org:x"}), errors.ErrCodeInvalidInput},
		{"snapshot timestamp with separator", Snapshot(SnapshotArtifactMetadata{ArtifactMetadata: ArtifactMetadata{GroupID: "g", ArtifactID: "a"}, Timestamp: "2024:1"}), errors.ErrCodeInvalidInput},
		{"artifact classifier with separator", ForArtifact(Artifact{GroupID: "g", ArtifactID: "a", Version: "1", Classifier: "x:y", Type: "jar", RepositoryID: "r"}), errors.ErrCodeInvalidInput},
		{"artifact repository with separator", ForArtifact(Artifact{GroupID: "g", ArtifactID: "a", Version: "1", Type: "jar", RepositoryID: "r:1"}), errors.ErrCodeInvalidInput},
		{"two variants", Record{Kind: KindGroupMetadata, Group: &GroupMetadata{GroupID: "g"}, Artifact: &Artifact{}}, errors.ErrCodeUnsupportedRecordKind},
		{"unknown kind", Record{}, errors.ErrCodeUnsupportedRecordKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.errCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.errCode, errors.GetCode(err))
		})
	}
}

func TestRecord_CloneSharesNothing(t *testing.T) {
	// Given: records of every kind with slices
	recs := []Record{
		Group(GroupMetadata{GroupID: "g", PluginPrefixes: []string{"p"}}),
		ForArtifactMetadata(ArtifactMetadata{GroupID: "g", ArtifactID: "a", Versions: []string{"1"}}),
		Snapshot(SnapshotArtifactMetadata{ArtifactMetadata: ArtifactMetadata{GroupID: "g", ArtifactID: "a", Versions: []string{"1"}}, Timestamp: "t"}),
		ForArtifact(Artifact{GroupID: "g", ArtifactID: "a", Version: "1", Type: "jar", RepositoryID: "r"}),
		Group(GroupMetadata{GroupID: "no-prefixes"}),
	}

	for _, rec := range recs {
		t.Run(rec.Key(), func(t *testing.T) {
			// When: cloning and mutating the clone
			c := rec.Clone()
			require.Equal(t, rec, c)
			switch c.Kind {
			case KindGroupMetadata:
				c.Group.GroupID = "changed"
				if len(c.Group.PluginPrefixes) > 0 {
					c.Group.PluginPrefixes[0] = "changed"
				}
			case KindArtifactMetadata:
				c.ArtifactMetadata.Versions[0] = "changed"
			case KindSnapshotMetadata:
				c.Snapshot.Versions[0] = "changed"
			case KindArtifact:
				c.Artifact.Type = "changed"
			}

			// Then: the original is untouched
			assert.NotEqual(t, rec, c)
		})
	}
}

func TestKind_StringAndParse(t *testing.T) {
	for _, k := range AllKinds() {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("bogus")
	assert.ErrorIs(t, err, errors.ErrUnsupportedRecordKind)
	assert.Contains(t, KindUnknown.String(), "unknown")
}

func TestKind_IsMetadata(t *testing.T) {
	assert.True(t, KindGroupMetadata.IsMetadata())
	assert.True(t, KindArtifactMetadata.IsMetadata())
	assert.True(t, KindSnapshotMetadata.IsMetadata())
	assert.False(t, KindArtifact.IsMetadata())
	assert.False(t, KindUnknown.IsMetadata())
}

func TestProviderFunc(t *testing.T) {
	var p Provider = ProviderFunc(func(ctx context.Context) ([]Record, error) {
		return []Record{Group(GroupMetadata{GroupID: "g"})}, nil
	})

	recs, err := p.Records(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

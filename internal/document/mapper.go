package document

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/record"
)

// ToFields maps a record to its document. The id field is the record key.
// Empty optional values and zero times are omitted.
func ToFields(r record.Record) (Fields, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := CheckDate(recordDate(r)); err != nil {
		return nil, errors.New(errors.ErrCodeInvalidDateFormat, "cannot map "+r.Key(), err).
			WithDetail(errors.DetailRecord, r.Key())
	}

	f := Fields{}
	f.Set(FieldID, r.Key())

	switch r.Kind {
	case record.KindGroupMetadata:
		g := r.Group
		f.Set(FieldGroupID, g.GroupID)
		f.Add(FieldPluginPrefix, g.PluginPrefixes...)
		setDate(f, g.LastUpdated)

	case record.KindArtifactMetadata:
		putMetadata(f, r.ArtifactMetadata)

	case record.KindSnapshotMetadata:
		s := r.Snapshot
		putMetadata(f, &s.ArtifactMetadata)
		f.Set(FieldSnapshotTimestamp, s.Timestamp)
		f.Set(FieldBuildNumber, strconv.Itoa(s.BuildNumber))

	case record.KindArtifact:
		a := r.Artifact
		f.Set(FieldGroupID, a.GroupID)
		f.Set(FieldArtifactID, a.ArtifactID)
		f.Set(FieldVersion, a.Version)
		f.Set(FieldClassifier, a.Classifier)
		f.Set(FieldType, a.Type)
		f.Set(FieldRepositoryID, a.RepositoryID)
		f.Set(FieldChecksum, a.Checksum)
		if a.Size > 0 {
			f.Set(FieldSize, EncodeSize(a.Size))
		}
		setDate(f, a.Gathered)

	default:
		return nil, errors.Newf(errors.ErrCodeUnsupportedRecordKind, "cannot map record kind %s", r.Kind)
	}

	return f, nil
}

// recordDate returns the single date a record maps to the lastUpdate field.
func recordDate(r record.Record) time.Time {
	switch r.Kind {
	case record.KindGroupMetadata:
		return r.Group.LastUpdated
	case record.KindArtifactMetadata:
		return r.ArtifactMetadata.LastUpdated
	case record.KindSnapshotMetadata:
		return r.Snapshot.LastUpdated
	case record.KindArtifact:
		return r.Artifact.Gathered
	default:
		return time.Time{}
	}
}

func putMetadata(f Fields, m *record.ArtifactMetadata) {
	f.Set(FieldGroupID, m.GroupID)
	f.Set(FieldArtifactID, m.ArtifactID)
	f.Set(FieldVersion, m.Version)
	f.Set(FieldLatest, m.Latest)
	f.Set(FieldRelease, m.Release)
	f.Add(FieldVersions, m.Versions...)
	setDate(f, m.LastUpdated)
}

func setDate(f Fields, t time.Time) {
	if !t.IsZero() {
		f.Set(FieldLastUpdate, EncodeDate(t))
	}
}

// shape records which kind-specific fields a document carries.
type shape struct {
	artifact bool
	snapshot bool
	metadata bool
	group    bool
}

func shapeOf(f Fields) shape {
	return shape{
		artifact: f.Has(FieldRepositoryID) || f.Has(FieldChecksum) || f.Has(FieldType) ||
			f.Has(FieldClassifier) || f.Has(FieldSize),
		snapshot: f.Has(FieldSnapshotTimestamp) || f.Has(FieldBuildNumber),
		metadata: f.Has(FieldVersions) || f.Has(FieldLatest) || f.Has(FieldRelease),
		group:    f.Has(FieldPluginPrefix),
	}
}

// kindOf picks the variant from the shape of the document.
func kindOf(f Fields) (record.Kind, error) {
	s := shapeOf(f)
	id := f.Get(FieldID)

	switch {
	case s.artifact && (s.snapshot || s.metadata || s.group):
		return record.KindUnknown, malformed(id, "artifact fields mixed with metadata fields")
	case s.group && (s.snapshot || s.metadata || f.Has(FieldArtifactID)):
		return record.KindUnknown, malformed(id, "plugin prefixes mixed with artifact metadata fields")
	case s.artifact:
		return record.KindArtifact, nil
	case s.snapshot:
		return record.KindSnapshotMetadata, nil
	case f.Has(FieldArtifactID):
		return record.KindArtifactMetadata, nil
	case f.Has(FieldGroupID) && !f.Has(FieldVersion):
		return record.KindGroupMetadata, nil
	default:
		return record.KindUnknown, malformed(id, "cannot determine record kind from fields %v", f.Names())
	}
}

// FromFields rebuilds the record a document was written from.
func FromFields(f Fields) (record.Record, error) {
	id := f.Get(FieldID)
	if id == "" {
		return record.Record{}, malformed("", "document has no id")
	}
	for name, vs := range f {
		if len(vs) > 1 && !multiValued[name] {
			return record.Record{}, malformed(id, "field %s has %d values, expected one", name, len(vs)).
				WithDetail(errors.DetailField, name)
		}
	}

	kind, err := kindOf(f)
	if err != nil {
		return record.Record{}, err
	}

	lastUpdate, err := dateField(f, id)
	if err != nil {
		return record.Record{}, err
	}

	var r record.Record
	switch kind {
	case record.KindGroupMetadata:
		r = record.Group(record.GroupMetadata{
			GroupID:        f.Get(FieldGroupID),
			PluginPrefixes: values(f, FieldPluginPrefix),
			LastUpdated:    lastUpdate,
		})

	case record.KindArtifactMetadata:
		r = record.ForArtifactMetadata(metadataFrom(f, lastUpdate))

	case record.KindSnapshotMetadata:
		if !f.Has(FieldSnapshotTimestamp) {
			return record.Record{}, malformed(id, "snapshot document has no %s", FieldSnapshotTimestamp)
		}
		build := 0
		if f.Has(FieldBuildNumber) {
			build, err = strconv.Atoi(f.Get(FieldBuildNumber))
			if err != nil {
				return record.Record{}, errors.New(errors.ErrCodeMalformedDocument,
					fmt.Sprintf("invalid %s %q", FieldBuildNumber, f.Get(FieldBuildNumber)), err).
					WithDetail(errors.DetailDocument, id)
			}
		}
		r = record.Snapshot(record.SnapshotArtifactMetadata{
			ArtifactMetadata: metadataFrom(f, lastUpdate),
			Timestamp:        f.Get(FieldSnapshotTimestamp),
			BuildNumber:      build,
		})

	case record.KindArtifact:
		var size int64
		if f.Has(FieldSize) {
			size, err = DecodeSize(f.Get(FieldSize))
			if err != nil {
				return record.Record{}, errors.New(errors.ErrCodeMalformedDocument,
					fmt.Sprintf("invalid %s %q", FieldSize, f.Get(FieldSize)), err).
					WithDetail(errors.DetailDocument, id)
			}
		}
		r = record.ForArtifact(record.Artifact{
			GroupID:      f.Get(FieldGroupID),
			ArtifactID:   f.Get(FieldArtifactID),
			Version:      f.Get(FieldVersion),
			Classifier:   f.Get(FieldClassifier),
			Type:         f.Get(FieldType),
			RepositoryID: f.Get(FieldRepositoryID),
			Checksum:     f.Get(FieldChecksum),
			Size:         size,
			Gathered:     lastUpdate,
		})
	}

	if key := r.Key(); key != id {
		return record.Record{}, malformed(id, "id does not match identity fields (derived %q)", key)
	}
	if err := r.Validate(); err != nil {
		return record.Record{}, errors.New(errors.ErrCodeMalformedDocument, err.Error(), err).
			WithDetail(errors.DetailDocument, id)
	}
	return r, nil
}

func metadataFrom(f Fields, lastUpdate time.Time) record.ArtifactMetadata {
	return record.ArtifactMetadata{
		GroupID:     f.Get(FieldGroupID),
		ArtifactID:  f.Get(FieldArtifactID),
		Version:     f.Get(FieldVersion),
		Latest:      f.Get(FieldLatest),
		Release:     f.Get(FieldRelease),
		Versions:    values(f, FieldVersions),
		LastUpdated: lastUpdate,
	}
}

func dateField(f Fields, id string) (time.Time, error) {
	if !f.Has(FieldLastUpdate) {
		return time.Time{}, nil
	}
	t, err := DecodeDate(f.Get(FieldLastUpdate))
	if err != nil {
		return time.Time{}, errors.New(errors.ErrCodeMalformedDocument,
			fmt.Sprintf("invalid %s", FieldLastUpdate), err).
			WithDetail(errors.DetailDocument, id).
			WithDetail(errors.DetailField, FieldLastUpdate)
	}
	return t, nil
}

// values copies a multi-valued field. Absent fields yield nil.
func values(f Fields, name string) []string {
	vs := f.Values(name)
	if len(vs) == 0 {
		return nil
	}
	return append([]string(nil), vs...)
}

func malformed(id, format string, args ...any) *errors.IndexError {
	err := errors.Newf(errors.ErrCodeMalformedDocument, format, args...)
	if id != "" {
		err.WithDetail(errors.DetailDocument, id)
	}
	return err
}

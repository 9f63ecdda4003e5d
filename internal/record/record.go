// Package record defines the typed records that repoindex can index.
//
// A Record is a tagged union: Kind names the variant and exactly one of the
// variant pointers is set. Consumers switch on Kind, never on the dynamic type
// of a value.
package record

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Aman-CERP/repoindex/internal/errors"
)

// Kind discriminates the Record variants.
type Kind int

const (
	// KindUnknown is the zero Kind. It is never valid.
	KindUnknown Kind = iota
	// KindGroupMetadata is repository metadata for a group.
	KindGroupMetadata
	// KindArtifactMetadata is repository metadata for an artifact version.
	KindArtifactMetadata
	// KindSnapshotMetadata is repository metadata for one snapshot build.
	KindSnapshotMetadata
	// KindArtifact is a stored artifact file.
	KindArtifact
)

var kindNames = map[Kind]string{
	KindGroupMetadata:    "group-metadata",
	KindArtifactMetadata: "artifact-metadata",
	KindSnapshotMetadata: "snapshot-metadata",
	KindArtifact:         "artifact",
}

// String returns the stable name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, errors.Newf(errors.ErrCodeUnsupportedRecordKind, "unknown record kind %q", s)
}

// AllKinds lists every valid kind in declaration order.
func AllKinds() []Kind {
	return []Kind{KindGroupMetadata, KindArtifactMetadata, KindSnapshotMetadata, KindArtifact}
}

// GroupMetadata is the metadata of a group, listing the plugin prefixes it publishes.
type GroupMetadata struct {
	GroupID        string
	PluginPrefixes []string
	LastUpdated    time.Time
}

// ArtifactMetadata is the metadata of an artifact. Version is empty for the
// artifact-level metadata file that lists every version.
type ArtifactMetadata struct {
	GroupID     string
	ArtifactID  string
	Version     string
	Latest      string
	Release     string
	Versions    []string
	LastUpdated time.Time
}

// SnapshotArtifactMetadata is the metadata of one snapshot build of a version.
type SnapshotArtifactMetadata struct {
	ArtifactMetadata
	Timestamp   string
	BuildNumber int
}

// Artifact is a file stored in a repository.
type Artifact struct {
	GroupID      string
	ArtifactID   string
	Version      string
	Classifier   string
	Type         string
	RepositoryID string
	Checksum     string
	Size         int64
	Gathered     time.Time
}

// Record is one indexable entity.
type Record struct {
	Kind Kind

	Group            *GroupMetadata
	ArtifactMetadata *ArtifactMetadata
	Snapshot         *SnapshotArtifactMetadata
	Artifact         *Artifact
}

// Group wraps g as a Record.
func Group(g GroupMetadata) Record {
	return Record{Kind: KindGroupMetadata, Group: &g}
}

// ForArtifactMetadata wraps m as a Record.
func ForArtifactMetadata(m ArtifactMetadata) Record {
	return Record{Kind: KindArtifactMetadata, ArtifactMetadata: &m}
}

// Snapshot wraps s as a Record.
func Snapshot(s SnapshotArtifactMetadata) Record {
	return Record{Kind: KindSnapshotMetadata, Snapshot: &s}
}

// ForArtifact wraps a as a Record.
func ForArtifact(a Artifact) Record {
	return Record{Kind: KindArtifact, Artifact: &a}
}

// Clone returns a deep copy of r that shares no pointers or slices with it.
func (r Record) Clone() Record {
	out := Record{Kind: r.Kind}
	if r.Group != nil {
		g := *r.Group
		g.PluginPrefixes = slices.Clone(g.PluginPrefixes)
		out.Group = &g
	}
	if r.ArtifactMetadata != nil {
		m := *r.ArtifactMetadata
		m.Versions = slices.Clone(m.Versions)
		out.ArtifactMetadata = &m
	}
	if r.Snapshot != nil {
		sm := *r.Snapshot
		sm.Versions = slices.Clone(sm.Versions)
		out.Snapshot = &sm
	}
	if r.Artifact != nil {
		a := *r.Artifact
		out.Artifact = &a
	}
	return out
}

// Key prefixes. The kind prefix keeps keys of different kinds distinct when
// they share one collection.
const (
	groupKeyPrefix    = "group"
	metadataKeyPrefix = "artifact-metadata"
	snapshotKeyPrefix = "snapshot-metadata"
	artifactKeyPrefix = "artifact"
)

// Key returns the document id derived from the record's identity fields.
// It returns "" for a record whose tag and variant disagree.
func (r Record) Key() string {
	switch r.Kind {
	case KindGroupMetadata:
		if r.Group == nil {
			return ""
		}
		return joinKey(groupKeyPrefix, r.Group.GroupID)
	case KindArtifactMetadata:
		if r.ArtifactMetadata == nil {
			return ""
		}
		m := r.ArtifactMetadata
		return joinKey(metadataKeyPrefix, m.GroupID, m.ArtifactID, m.Version)
	case KindSnapshotMetadata:
		if r.Snapshot == nil {
			return ""
		}
		s := r.Snapshot
		return joinKey(snapshotKeyPrefix, s.GroupID, s.ArtifactID, s.Version, s.Timestamp)
	case KindArtifact:
		if r.Artifact == nil {
			return ""
		}
		a := r.Artifact
		return joinKey(artifactKeyPrefix, a.GroupID, a.ArtifactID, a.Version, a.Classifier, a.Type, a.RepositoryID)
	default:
		return ""
	}
}

// keySeparator joins identity fields in a key. Identity fields must not
// contain it, or two records could derive the same key.
const keySeparator = ":"

func joinKey(parts ...string) string {
	return strings.Join(parts, keySeparator)
}

// identity returns the named fields a record's key is built from.
func (r Record) identity() [][2]string {
	switch r.Kind {
	case KindGroupMetadata:
		return [][2]string{{"groupId", r.Group.GroupID}}
	case KindArtifactMetadata:
		m := r.ArtifactMetadata
		return [][2]string{{"groupId", m.GroupID}, {"artifactId", m.ArtifactID}, {"version", m.Version}}
	case KindSnapshotMetadata:
		s := r.Snapshot
		return [][2]string{{"groupId", s.GroupID}, {"artifactId", s.ArtifactID}, {"version", s.Version}, {"timestamp", s.Timestamp}}
	case KindArtifact:
		a := r.Artifact
		return [][2]string{
			{"groupId", a.GroupID}, {"artifactId", a.ArtifactID}, {"version", a.Version},
			{"classifier", a.Classifier}, {"type", a.Type}, {"repositoryId", a.RepositoryID},
		}
	default:
		return nil
	}
}

// IsMetadata reports whether the record is one of the repository metadata kinds.
func (r Record) IsMetadata() bool {
	return r.Kind.IsMetadata()
}

// IsMetadata reports whether k is one of the repository metadata kinds.
func (k Kind) IsMetadata() bool {
	switch k {
	case KindGroupMetadata, KindArtifactMetadata, KindSnapshotMetadata:
		return true
	default:
		return false
	}
}

// Validate checks that the tag matches exactly one variant and that the
// identity fields needed to derive a key are present.
func (r Record) Validate() error {
	set := 0
	for _, present := range []bool{r.Group != nil, r.ArtifactMetadata != nil, r.Snapshot != nil, r.Artifact != nil} {
		if present {
			set++
		}
	}
	if set != 1 || r.Key() == "" {
		return errors.Newf(errors.ErrCodeUnsupportedRecordKind,
			"record kind %s does not match its variant", r.Kind).
			WithDetail(errors.DetailRecord, r.Kind.String())
	}

	for _, field := range r.identity() {
		if strings.Contains(field[1], keySeparator) {
			return invalid(r, fmt.Sprintf("%s %q must not contain %q", field[0], field[1], keySeparator))
		}
	}

	switch r.Kind {
	case KindGroupMetadata:
		g := r.Group
		if g.GroupID == "" {
			return invalid(r, "groupId is required")
		}
		if hasEmpty(g.PluginPrefixes) {
			return invalid(r, "plugin prefixes must not be empty strings")
		}
	case KindArtifactMetadata:
		if err := validateMetadata(r, r.ArtifactMetadata); err != nil {
			return err
		}
	case KindSnapshotMetadata:
		s := r.Snapshot
		if err := validateMetadata(r, &s.ArtifactMetadata); err != nil {
			return err
		}
		if s.Timestamp == "" {
			return invalid(r, "snapshot timestamp is required")
		}
		if s.BuildNumber < 0 {
			return invalid(r, "build number must not be negative")
		}
	case KindArtifact:
		a := r.Artifact
		switch {
		case a.GroupID == "", a.ArtifactID == "", a.Version == "":
			return invalid(r, "groupId, artifactId and version are required")
		case a.Type == "":
			return invalid(r, "type is required")
		case a.RepositoryID == "":
			return invalid(r, "repositoryId is required")
		case a.Size < 0:
			return invalid(r, "size must not be negative")
		}
	}
	return nil
}

func validateMetadata(r Record, m *ArtifactMetadata) error {
	if m.GroupID == "" || m.ArtifactID == "" {
		return invalid(r, "groupId and artifactId are required")
	}
	if hasEmpty(m.Versions) {
		return invalid(r, "versions must not contain empty strings")
	}
	return nil
}

func invalid(r Record, msg string) error {
	return errors.New(errors.ErrCodeInvalidInput, msg, nil).
		WithDetail(errors.DetailRecord, r.Kind.String())
}

func hasEmpty(values []string) bool {
	for _, v := range values {
		if v == "" {
			return true
		}
	}
	return false
}

// Provider supplies records to index. Implementations decide what changed and
// when; the indexer only consumes the result.
type Provider interface {
	Records(ctx context.Context) ([]Record, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) ([]Record, error)

// Records calls f.
func (f ProviderFunc) Records(ctx context.Context) ([]Record, error) {
	return f(ctx)
}

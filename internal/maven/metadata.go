package maven

import (
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/Aman-CERP/repoindex/internal/document"
	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/record"
)

// MetadataFileName is the repository metadata file at group, artifact and
// version level.
const MetadataFileName = "maven-metadata.xml"

// Metadata is the subset of maven-metadata.xml the indexer reads.
type Metadata struct {
	XMLName    xml.Name    `xml:"metadata"`
	GroupID    string      `xml:"groupId"`
	ArtifactID string      `xml:"artifactId"`
	Version    string      `xml:"version"`
	Versioning *Versioning `xml:"versioning"`
	Plugins    []Plugin    `xml:"plugins>plugin"`
}

// Versioning holds version lists and the snapshot marker.
type Versioning struct {
	Latest      string    `xml:"latest"`
	Release     string    `xml:"release"`
	Versions    []string  `xml:"versions>version"`
	LastUpdated string    `xml:"lastUpdated"`
	Snapshot    *Snapshot `xml:"snapshot"`
}

// Snapshot identifies the latest deployed build of a snapshot version.
type Snapshot struct {
	Timestamp   string `xml:"timestamp"`
	BuildNumber int    `xml:"buildNumber"`
	LocalCopy   bool   `xml:"localCopy"`
}

// Plugin maps a plugin artifact to its goal prefix.
type Plugin struct {
	Name       string `xml:"name"`
	Prefix     string `xml:"prefix"`
	ArtifactID string `xml:"artifactId"`
}

// ParseMetadata decodes a maven-metadata.xml document.
func ParseMetadata(r io.Reader) (*Metadata, error) {
	var m Metadata
	dec := xml.NewDecoder(r)
	dec.Strict = true
	if err := dec.Decode(&m); err != nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "invalid maven-metadata.xml", err)
	}
	return &m, nil
}

// Record converts the metadata found in relDir (slash separated, relative to
// the repository root) into an index record. Coordinates missing from the XML
// are taken from the directory layout.
//
// A file with plugins, or without an artifactId, is group metadata. A file
// with a timestamped snapshot is snapshot metadata. Anything else is artifact
// metadata; its version is kept only when the file sits in that version's
// directory.
func (m *Metadata) Record(relDir string) (record.Record, error) {
	lastUpdated, err := m.lastUpdated()
	if err != nil {
		return record.Record{}, err
	}

	if len(m.Plugins) > 0 || m.ArtifactID == "" {
		groupID := m.GroupID
		if groupID == "" {
			groupID = groupFromDir(relDir)
		}
		prefixes := make([]string, 0, len(m.Plugins))
		for _, p := range m.Plugins {
			if p.Prefix != "" {
				prefixes = append(prefixes, p.Prefix)
			}
		}
		return record.Group(record.GroupMetadata{
			GroupID:        groupID,
			PluginPrefixes: prefixes,
			LastUpdated:    lastUpdated,
		}), nil
	}

	coords := m.coordinates(relDir)
	meta := record.ArtifactMetadata{
		GroupID:     coords.GroupID,
		ArtifactID:  coords.ArtifactID,
		Version:     coords.Version,
		LastUpdated: lastUpdated,
	}
	if v := m.Versioning; v != nil {
		meta.Latest = v.Latest
		meta.Release = v.Release
		meta.Versions = nonEmpty(v.Versions)
	}

	if s := m.snapshot(); s != nil && meta.Version != "" {
		return record.Snapshot(record.SnapshotArtifactMetadata{
			ArtifactMetadata: meta,
			Timestamp:        s.Timestamp,
			BuildNumber:      s.BuildNumber,
		}), nil
	}
	return record.ForArtifactMetadata(meta), nil
}

type coordinates struct {
	GroupID    string
	ArtifactID string
	Version    string
}

// coordinates resolves groupId, artifactId and version for an artifact- or
// version-level file. The version-level layout is <group>/<artifact>/<version>.
func (m *Metadata) coordinates(relDir string) coordinates {
	c := coordinates{GroupID: m.GroupID, ArtifactID: m.ArtifactID}
	segments := splitDir(relDir)

	versionLevel := len(segments) >= 3 && segments[len(segments)-2] == m.ArtifactID &&
		(m.Version == "" || segments[len(segments)-1] == m.Version)
	if versionLevel {
		c.Version = segments[len(segments)-1]
		if c.GroupID == "" {
			c.GroupID = strings.Join(segments[:len(segments)-2], ".")
		}
		return c
	}

	if c.GroupID == "" && len(segments) >= 2 {
		c.GroupID = strings.Join(segments[:len(segments)-1], ".")
	}
	return c
}

func (m *Metadata) snapshot() *Snapshot {
	if m.Versioning == nil || m.Versioning.Snapshot == nil {
		return nil
	}
	if m.Versioning.Snapshot.Timestamp == "" {
		return nil
	}
	return m.Versioning.Snapshot
}

func (m *Metadata) lastUpdated() (time.Time, error) {
	if m.Versioning == nil || strings.TrimSpace(m.Versioning.LastUpdated) == "" {
		return time.Time{}, nil
	}
	t, err := document.DecodeDate(strings.TrimSpace(m.Versioning.LastUpdated))
	if err != nil {
		return time.Time{}, fmt.Errorf("lastUpdated: %w", err)
	}
	return t, nil
}

func groupFromDir(relDir string) string {
	return strings.Join(splitDir(relDir), ".")
}

func splitDir(relDir string) []string {
	relDir = path.Clean(strings.Trim(relDir, "/"))
	if relDir == "." || relDir == "" {
		return nil
	}
	return strings.Split(relDir, "/")
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

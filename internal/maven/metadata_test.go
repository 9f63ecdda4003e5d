package maven

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/Aman-CERP/repoindex/internal/record"
)

const groupMetadataXML = `<?xml version="1.0" encoding="UTF-8"?>
<metadata>
  <groupId>org.apache.maven.plugins</groupId>
  <plugins>
    <plugin><name>Clean Plugin</name><prefix>clean</prefix><artifactId>maven-clean-plugin</artifactId></plugin>
    <plugin><name>Compiler Plugin</name><prefix>compiler</prefix><artifactId>maven-compiler-plugin</artifactId></plugin>
  </plugins>
</metadata>`

const artifactMetadataXML = `<metadata>
  <groupId>org.example</groupId>
  <artifactId>lib</artifactId>
  <version>1.0</version>
  <versioning>
    <latest>1.1</latest>
    <release>1.1</release>
    <versions><version>1.0</version><version>1.1</version></versions>
    <lastUpdated>20060314120000</lastUpdated>
  </versioning>
</metadata>`

const snapshotMetadataXML = `<metadata>
  <groupId>org.example</groupId>
  <artifactId>lib</artifactId>
  <version>2.0-SNAPSHOT</version>
  <versioning>
    <snapshot><timestamp>20060314.120000</timestamp><buildNumber>3</buildNumber></snapshot>
    <lastUpdated>20060314120500</lastUpdated>
  </versioning>
</metadata>`

func parse(t *testing.T, doc string) *Metadata {
	t.Helper()
	m, err := ParseMetadata(strings.NewReader(doc))
	require.NoError(t, err)
	return m
}

func TestMetadataRecord_Group(t *testing.T) {
	rec, err := parse(t, groupMetadataXML).Record("org/apache/maven/plugins")

	require.NoError(t, err)
	require.Equal(t, record.KindGroupMetadata, rec.Kind)
	assert.Equal(t, "org.apache.maven.plugins", rec.Group.GroupID)
	assert.Equal(t, []string{"clean", "compiler"}, rec.Group.PluginPrefixes)
	assert.True(t, rec.Group.LastUpdated.IsZero())
}

func TestMetadataRecord_GroupIDFromLayout(t *testing.T) {
	m := parse(t, `<metadata><plugins><plugin><prefix>p</prefix></plugin></plugins></metadata>`)

	rec, err := m.Record("com/acme/tools")

	require.NoError(t, err)
	assert.Equal(t, "com.acme.tools", rec.Group.GroupID)
}

func TestMetadataRecord_ArtifactLevel(t *testing.T) {
	// Given: artifact metadata at <group>/<artifact>
	m := parse(t, artifactMetadataXML)

	// When: converting
	rec, err := m.Record("org/example/lib")

	// Then: version is left empty and versioning is copied
	require.NoError(t, err)
	require.Equal(t, record.KindArtifactMetadata, rec.Kind)
	am := rec.ArtifactMetadata
	assert.Equal(t, "org.example", am.GroupID)
	assert.Equal(t, "lib", am.ArtifactID)
	assert.Empty(t, am.Version)
	assert.Equal(t, "1.1", am.Latest)
	assert.Equal(t, "1.1", am.Release)
	assert.Equal(t, []string{"1.0", "1.1"}, am.Versions)
	assert.Equal(t, time.Date(2006, 3, 14, 12, 0, 0, 0, time.UTC), am.LastUpdated)
	assert.Equal(t, "artifact-metadata:org.example:lib:", rec.Key())
}

func TestMetadataRecord_VersionLevel(t *testing.T) {
	rec, err := parse(t, artifactMetadataXML).Record("org/example/lib/1.0")

	require.NoError(t, err)
	require.Equal(t, record.KindArtifactMetadata, rec.Kind)
	assert.Equal(t, "1.0", rec.ArtifactMetadata.Version)
}

func TestMetadataRecord_Snapshot(t *testing.T) {
	rec, err := parse(t, snapshotMetadataXML).Record("org/example/lib/2.0-SNAPSHOT")

	require.NoError(t, err)
	require.Equal(t, record.KindSnapshotMetadata, rec.Kind)
	s := rec.Snapshot
	assert.Equal(t, "2.0-SNAPSHOT", s.Version)
	assert.Equal(t, "20060314.120000", s.Timestamp)
	assert.Equal(t, 3, s.BuildNumber)
	require.NoError(t, rec.Validate())
}

func TestMetadataRecord_LocalSnapshotIsArtifactMetadata(t *testing.T) {
	m := parse(t, `<metadata><groupId>g</groupId><artifactId>a</artifactId><version>1-SNAPSHOT</version>
<versioning><snapshot><localCopy>true</localCopy></snapshot></versioning></metadata>`)

	rec, err := m.Record("g/a/1-SNAPSHOT")

	require.NoError(t, err)
	assert.Equal(t, record.KindArtifactMetadata, rec.Kind)
}

func TestMetadataRecord_BadLastUpdated(t *testing.T) {
	m := parse(t, `<metadata><groupId>g</groupId><artifactId>a</artifactId>
<versioning><lastUpdated>2006-03-14</lastUpdated></versioning></metadata>`)

	_, err := m.Record("g/a")

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidDateFormat)
}

func TestParseMetadata_Malformed(t *testing.T) {
	_, err := ParseMetadata(strings.NewReader("<metadata><groupId>g</metadata>"))

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

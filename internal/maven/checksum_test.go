package maven

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileChecksum(t *testing.T) {
	r := newRepo(t)
	path := r.write("hello.txt", "hello")

	md5sum, err := FileChecksum(path, MD5)
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", md5sum)

	sha1sum, err := FileChecksum(path, SHA1)
	require.NoError(t, err)
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", sha1sum)
}

func TestReadSidecar(t *testing.T) {
	r := newRepo(t)

	got, err := ReadSidecar(r.write("a.sha1", "  AAF4C61D  a.jar\n"))
	require.NoError(t, err)
	assert.Equal(t, "aaf4c61d", got)

	got, err = ReadSidecar(r.write("b.sha1", ""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestVerifyChecksums(t *testing.T) {
	// Given: one artifact with valid sidecars and one whose sidecars are off by a suffix
	r := newRepo(t)
	r.writeWithSidecars("checksumTest/validArtifact/1.0/validArtifact-1.0.jar", "valid")
	r.writeWithSidecars("checksumTest/maven-metadata.xml", groupMetadataXML)
	bad := r.write("checksumTest/invalidArtifact/1.0/invalidArtifact-1.0.jar", "invalid")
	md5sum, err := FileChecksum(bad, MD5)
	require.NoError(t, err)
	sha1sum, err := FileChecksum(bad, SHA1)
	require.NoError(t, err)
	r.write("checksumTest/invalidArtifact/1.0/invalidArtifact-1.0.jar.md5", md5sum+"1")
	r.write("checksumTest/invalidArtifact/1.0/invalidArtifact-1.0.jar.sha1", sha1sum+"2")
	r.write("orphan/x.jar.sha1", "deadbeef")

	// When: verifying
	report, err := VerifyChecksums(context.Background(), r.root, 2)

	// Then: both sidecars of the invalid artifact are reported
	require.NoError(t, err)
	assert.Equal(t, 6, report.Verified)
	assert.False(t, report.OK())
	require.Len(t, report.Mismatches, 2)
	assert.Equal(t, Mismatch{
		Path:      "checksumTest/invalidArtifact/1.0/invalidArtifact-1.0.jar",
		Algorithm: MD5,
		Expected:  md5sum + "1",
		Actual:    md5sum,
	}, report.Mismatches[0])
	assert.Equal(t, SHA1, report.Mismatches[1].Algorithm)
	assert.Contains(t, report.Mismatches[1].String(), "sha1 expected")
}

func TestVerifyChecksums_AllValid(t *testing.T) {
	r := newRepo(t)
	r.writeWithSidecars("g/a/1/a-1.jar", "x")

	report, err := VerifyChecksums(context.Background(), r.root, 0)

	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 2, report.Verified)
}

func TestVerifyChecksums_Cancelled(t *testing.T) {
	r := newRepo(t)
	r.writeWithSidecars("g/a/1/a-1.jar", "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := VerifyChecksums(ctx, r.root, 1)

	assert.ErrorIs(t, err, context.Canceled)
}

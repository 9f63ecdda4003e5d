package maven

import (
	"regexp"
	"strings"
)

// Coordinates identify one artifact file in a Maven-2 layout repository.
type Coordinates struct {
	GroupID    string
	ArtifactID string
	Version    string
	Classifier string
	Type       string
}

// snapshotVersion matches the timestamp-buildNumber suffix of a deployed snapshot.
var snapshotVersion = regexp.MustCompile(`^(\d{8}\.\d{6})-(\d+)`)

// sidecarExtensions are files that describe another file rather than an artifact.
var sidecarExtensions = []string{".md5", ".sha1", ".sha256", ".sha512", ".asc"}

// IsSidecar reports whether name is a checksum or signature file.
func IsSidecar(name string) bool {
	for _, ext := range sidecarExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// ParseArtifactPath resolves the coordinates of a file at relPath (slash
// separated). The layout is <group dirs>/<artifactId>/<version>/<file> where
// file is <artifactId>-<version>[-<classifier>].<type>. For -SNAPSHOT
// versions the file may carry a timestamped version instead, which becomes
// the artifact's version. The second result is false for paths that are not
// artifacts.
func ParseArtifactPath(relPath string) (Coordinates, bool) {
	segments := strings.Split(strings.Trim(relPath, "/"), "/")
	if len(segments) < 4 {
		return Coordinates{}, false
	}
	name := segments[len(segments)-1]
	if strings.HasPrefix(name, "maven-metadata") || IsSidecar(name) {
		return Coordinates{}, false
	}

	c := Coordinates{
		GroupID:    strings.Join(segments[:len(segments)-3], "."),
		ArtifactID: segments[len(segments)-3],
		Version:    segments[len(segments)-2],
	}

	rest, ok := strings.CutPrefix(name, c.ArtifactID+"-")
	if !ok {
		return Coordinates{}, false
	}

	if after, ok := strings.CutPrefix(rest, c.Version); ok {
		rest = after
	} else if base, isSnapshot := strings.CutSuffix(c.Version, "SNAPSHOT"); isSnapshot {
		after, ok := strings.CutPrefix(rest, base)
		if !ok {
			return Coordinates{}, false
		}
		stamp := snapshotVersion.FindString(after)
		if stamp == "" {
			return Coordinates{}, false
		}
		c.Version = base + stamp
		rest = after[len(stamp):]
	} else {
		return Coordinates{}, false
	}

	switch {
	case strings.HasPrefix(rest, "-"):
		classifier, typ, ok := strings.Cut(rest[1:], ".")
		if !ok || classifier == "" || typ == "" {
			return Coordinates{}, false
		}
		c.Classifier, c.Type = classifier, typ
	case strings.HasPrefix(rest, "."):
		c.Type = rest[1:]
	default:
		return Coordinates{}, false
	}
	if c.Type == "" {
		return Coordinates{}, false
	}
	return c, true
}

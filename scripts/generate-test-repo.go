//go:build ignore

// Package main generates a synthetic Maven-2 repository for benchmarking.
// Usage: go run scripts/generate-test-repo.go -groups 20 -artifacts 10 -versions 5 -output testdata/repo
package main

import (
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	numGroups    = flag.Int("groups", 20, "Number of groups")
	numArtifacts = flag.Int("artifacts", 10, "Artifacts per group")
	numVersions  = flag.Int("versions", 5, "Release versions per artifact")
	outputDir    = flag.String("output", "testdata/repo", "Output directory")
	seed         = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var words = []string{
	"core", "api", "util", "client", "server", "model", "parser", "io",
	"cache", "http", "json", "xml", "log", "test", "plugin", "config",
}

var classifiers = []string{"", "", "", "sources", "javadoc", "tests"}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	files := 0
	for g := 0; g < *numGroups; g++ {
		group := fmt.Sprintf("org.%s%d.%s", words[rng.Intn(len(words))], g, words[rng.Intn(len(words))])
		groupDir := filepath.Join(append([]string{*outputDir}, strings.Split(group, ".")...)...)

		var prefixes []string
		for a := 0; a < *numArtifacts; a++ {
			artifact := fmt.Sprintf("%s-%s-%d", words[rng.Intn(len(words))], words[rng.Intn(len(words))], a)
			if strings.HasPrefix(artifact, "plugin") {
				prefixes = append(prefixes, artifact)
			}
			artifactDir := filepath.Join(groupDir, artifact)

			var versions []string
			updated := base.Add(time.Duration(rng.Intn(365*24)) * time.Hour)
			for v := 0; v < *numVersions; v++ {
				version := fmt.Sprintf("%d.%d.%d", v/3+1, v%3, rng.Intn(10))
				versions = append(versions, version)
				for _, c := range []string{"", classifiers[rng.Intn(len(classifiers))]} {
					name := artifact + "-" + version
					if c != "" {
						name += "-" + c
					}
					size := 512 + rng.Intn(8192)
					writeWithSidecars(filepath.Join(artifactDir, version, name+".jar"), randomBytes(rng, size))
					files++
				}
				writeWithSidecars(filepath.Join(artifactDir, version, artifact+"-"+version+".pom"),
					[]byte(fmt.Sprintf("<project><groupId>%s</groupId><artifactId>%s</artifactId><version>%s</version></project>\n",
						group, artifact, version)))
				files++
			}
			write(filepath.Join(artifactDir, "maven-metadata.xml"), []byte(artifactMetadata(group, artifact, versions, updated)))

			snapshot := fmt.Sprintf("%d.0-SNAPSHOT", *numVersions/3+2)
			stamp := updated.Add(24 * time.Hour)
			build := 1 + rng.Intn(9)
			write(filepath.Join(artifactDir, snapshot, "maven-metadata.xml"),
				[]byte(snapshotMetadata(group, artifact, snapshot, stamp, build)))
			snapName := fmt.Sprintf("%s-%s-%s-%d.jar", artifact, strings.TrimSuffix(snapshot, "-SNAPSHOT"),
				stamp.Format("20060102.150405"), build)
			writeWithSidecars(filepath.Join(artifactDir, snapshot, snapName), randomBytes(rng, 1024))
			files++
		}
		write(filepath.Join(groupDir, "maven-metadata.xml"), []byte(groupMetadata(group, prefixes)))
	}

	fmt.Printf("Generated %d groups and %d artifact files in %s\n", *numGroups, files, *outputDir)
}

func artifactMetadata(group, artifact string, versions []string, updated time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<metadata>\n  <groupId>%s</groupId>\n  <artifactId>%s</artifactId>\n  <versioning>\n", group, artifact)
	last := versions[len(versions)-1]
	fmt.Fprintf(&b, "    <latest>%s</latest>\n    <release>%s</release>\n    <versions>\n", last, last)
	for _, v := range versions {
		fmt.Fprintf(&b, "      <version>%s</version>\n", v)
	}
	fmt.Fprintf(&b, "    </versions>\n    <lastUpdated>%s</lastUpdated>\n  </versioning>\n</metadata>\n",
		updated.Format("20060102150405"))
	return b.String()
}

func snapshotMetadata(group, artifact, version string, stamp time.Time, build int) string {
	return fmt.Sprintf(`<metadata>
  <groupId>%s</groupId>
  <artifactId>%s</artifactId>
  <version>%s</version>
  <versioning>
    <snapshot><timestamp>%s</timestamp><buildNumber>%d</buildNumber></snapshot>
    <lastUpdated>%s</lastUpdated>
  </versioning>
</metadata>
`, group, artifact, version, stamp.Format("20060102.150405"), build, stamp.Format("20060102150405"))
}

func groupMetadata(group string, prefixes []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<metadata>\n  <groupId>%s</groupId>\n  <plugins>\n", group)
	for _, p := range prefixes {
		fmt.Fprintf(&b, "    <plugin><name>%s</name><prefix>%s</prefix><artifactId>%s</artifactId></plugin>\n",
			p, strings.TrimPrefix(p, "plugin-"), p)
	}
	b.WriteString("  </plugins>\n</metadata>\n")
	return b.String()
}

func randomBytes(rng *rand.Rand, n int) []byte {
	buf := make([]byte, n)
	rng.Read(buf)
	return buf
}

func writeWithSidecars(path string, data []byte) {
	write(path, data)
	md5Sum := md5.Sum(data)
	sha1Sum := sha1.Sum(data)
	write(path+".md5", []byte(hex.EncodeToString(md5Sum[:])))
	write(path+".sha1", []byte(hex.EncodeToString(sha1Sum[:])))
}

func write(path string, data []byte) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", filepath.Dir(path), err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", path, err)
		os.Exit(1)
	}
}

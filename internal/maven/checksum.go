package maven

import (
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Algorithm is a checksum algorithm with a sidecar file in the repository.
type Algorithm string

const (
	MD5  Algorithm = "md5"
	SHA1 Algorithm = "sha1"
)

// Algorithms lists the verified algorithms in report order.
func Algorithms() []Algorithm { return []Algorithm{MD5, SHA1} }

func (a Algorithm) newHash() hash.Hash {
	if a == MD5 {
		return md5.New()
	}
	return sha1.New()
}

// Extension returns the sidecar suffix, e.g. ".sha1".
func (a Algorithm) Extension() string { return "." + string(a) }

// FileChecksum returns the lowercase hex digest of the file at path.
func FileChecksum(path string, algo Algorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := algo.newHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReadSidecar returns the digest stored in a checksum file. Sidecars may hold
// "<digest>  <filename>"; only the first token counts.
func ReadSidecar(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", nil
	}
	return strings.ToLower(fields[0]), nil
}

// Mismatch is a file whose content does not match its checksum sidecar.
type Mismatch struct {
	Path      string    `json:"path"`
	Algorithm Algorithm `json:"algorithm"`
	Expected  string    `json:"expected"`
	Actual    string    `json:"actual"`
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: %s expected %s, got %s", m.Path, m.Algorithm, m.Expected, m.Actual)
}

// VerifyReport summarizes a checksum verification run.
type VerifyReport struct {
	Verified   int        `json:"verified"`
	Mismatches []Mismatch `json:"mismatches"`
}

// OK reports whether every sidecar matched.
func (r *VerifyReport) OK() bool { return len(r.Mismatches) == 0 }

// VerifyChecksums compares every .md5 and .sha1 sidecar under root against
// the file it describes. Sidecars without a target file are ignored. Paths in
// the report are relative to root and slash separated, sorted.
func VerifyChecksums(ctx context.Context, root string, workers int) (*VerifyReport, error) {
	type job struct {
		rel    string
		target string
		algo   Algorithm
	}

	var jobs []job
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		for _, algo := range Algorithms() {
			target, ok := strings.CutSuffix(path, algo.Extension())
			if !ok || !regularFile(target) {
				continue
			}
			rel, err := filepath.Rel(root, target)
			if err != nil {
				return err
			}
			jobs = append(jobs, job{rel: filepath.ToSlash(rel), target: target, algo: algo})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk repository: %w", err)
	}

	report := &VerifyReport{Verified: len(jobs)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workerCount(workers))
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			expected, err := ReadSidecar(j.target + j.algo.Extension())
			if err != nil {
				return err
			}
			actual, err := FileChecksum(j.target, j.algo)
			if err != nil {
				return err
			}
			if expected != actual {
				mu.Lock()
				report.Mismatches = append(report.Mismatches, Mismatch{
					Path: j.rel, Algorithm: j.algo, Expected: expected, Actual: actual,
				})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(report.Mismatches, func(i, k int) bool {
		a, b := report.Mismatches[i], report.Mismatches[k]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Algorithm < b.Algorithm
	})
	return report, nil
}

func regularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func workerCount(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

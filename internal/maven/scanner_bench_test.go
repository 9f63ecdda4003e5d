package maven

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func benchRepo(b *testing.B, artifacts int) string {
	b.Helper()
	root := b.TempDir()
	for i := 0; i < artifacts; i++ {
		dir := filepath.Join(root, "org", "bench", fmt.Sprintf("lib%d", i), "1.0")
		if err := os.MkdirAll(dir, 0755); err != nil {
			b.Fatal(err)
		}
		name := filepath.Join(dir, fmt.Sprintf("lib%d-1.0.jar", i))
		if err := os.WriteFile(name, make([]byte, 4096), 0644); err != nil {
			b.Fatal(err)
		}
	}
	return root
}

func BenchmarkScan(b *testing.B) {
	root := benchRepo(b, 200)
	s, err := NewScanner(Options{Root: root, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Scan(context.Background()); err != nil {
			b.Fatal(err)
		}
	}
}

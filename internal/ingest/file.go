// Package ingest reads vendor daily-bar snapshots and continuous-contract roll history.
package ingest

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Open opens a raw file, transparently decompressing *.zst
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("zstd reader %s: %w", path, err)
	}
	return &zstdFile{dec: dec, f: f}, nil
}

type zstdFile struct {
	dec *zstd.Decoder
	f   *os.File
}

func (z *zstdFile) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdFile) Close() error {
	z.dec.Close()
	return z.f.Close()
}

// columns maps lower-cased header names to positions
type columns map[string]int

func newColumns(header []string) columns {
	c := make(columns, len(header))
	for i, name := range header {
		c[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return c
}

// require returns the position of name or an error naming the missing column
func (c columns) require(names ...string) (map[string]int, error) {
	out := make(map[string]int, len(names))
	var missing []string
	for _, n := range names {
		i, ok := c[n]
		if !ok {
			missing = append(missing, n)
			continue
		}
		out[n] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

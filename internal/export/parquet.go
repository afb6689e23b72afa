package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// Parquet file names inside the export directory
const (
	BarsFile    = "aggregate_bars.parquet"
	FactorsFile = "adjust_factors.parquet"
	SpliceFile  = "splice_adjustments.parquet"
)

// ParquetSink writes one file per table into a directory
type ParquetSink struct {
	dir string
}

// NewParquetSink creates the sink; dir is created on first write
func NewParquetSink(dir string) *ParquetSink {
	return &ParquetSink{dir: dir}
}

// Name identifies the sink in logs
func (p *ParquetSink) Name() string { return "parquet" }

// Write replaces the files of non-empty tables in the batch
func (p *ParquetSink) Write(ctx context.Context, b *Batch) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}

	if len(b.Bars) > 0 {
		if err := writeFile(filepath.Join(p.dir, BarsFile), b.Bars); err != nil {
			return err
		}
	}
	if len(b.Factors) > 0 {
		if err := writeFile(filepath.Join(p.dir, FactorsFile), b.Factors); err != nil {
			return err
		}
	}
	if len(b.Splice) > 0 {
		if err := writeFile(filepath.Join(p.dir, SpliceFile), b.Splice); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// writeFile writes rows to a temp file and renames it into place
func writeFile[T any](path string, rows []T) error {
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Close is a no-op
func (p *ParquetSink) Close() error { return nil }

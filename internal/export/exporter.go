package export

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/pkg/logger"
)

// Sink receives export batches
type Sink interface {
	Name() string
	Write(ctx context.Context, b *Batch) error
	Close() error
}

// Stats counts exported rows
type Stats struct {
	Bars    int `json:"bars"`
	Factors int `json:"factors"`
	Splice  int `json:"splice"`
}

// Exporter reads adjusted data from the stores and writes it to every sink
type Exporter struct {
	store  contracts.Store
	splice contracts.SpliceStore
	sinks  []Sink
	logger *logger.Logger
}

// NewExporter creates an exporter; spliceStore may be nil when no splice data is exported
func NewExporter(store contracts.Store, spliceStore contracts.SpliceStore, log *logger.Logger, sinks ...Sink) *Exporter {
	return &Exporter{
		store:  store,
		splice: spliceStore,
		sinks:  sinks,
		logger: log.WithField("module", "export"),
	}
}

// Collect builds one batch from the given instruments and continuous symbols.
// A nil instrument or symbol list means every stored one.
func (e *Exporter) Collect(ctx context.Context, instruments, symbols []string) (*Batch, error) {
	var err error
	if instruments == nil {
		if instruments, err = e.store.Instruments(ctx); err != nil {
			return nil, fmt.Errorf("list instruments: %w", err)
		}
	}

	b := &Batch{}
	for _, inst := range instruments {
		for _, g := range contracts.AggregateGranularities {
			bars, err := e.store.ListBars(ctx, inst, g, time.Time{}, time.Time{})
			if err != nil {
				return nil, err
			}
			b.Bars = append(b.Bars, barRows(bars)...)
		}
		points, err := e.store.Factors(ctx, inst)
		if err != nil {
			return nil, err
		}
		b.Factors = append(b.Factors, factorRows(points)...)
	}

	if e.splice == nil {
		return b, nil
	}
	if symbols == nil {
		if symbols, err = e.splice.ContinuousSymbols(ctx); err != nil {
			return nil, fmt.Errorf("list continuous symbols: %w", err)
		}
	}
	for _, sym := range symbols {
		series, err := e.splice.SpliceSeries(ctx, sym)
		if err != nil {
			return nil, err
		}
		b.Splice = append(b.Splice, spliceRows(series)...)
	}
	return b, nil
}

// Export collects and writes one batch to every sink.
// A failing sink does not stop the others; failures are joined.
func (e *Exporter) Export(ctx context.Context, instruments, symbols []string) (Stats, error) {
	b, err := e.Collect(ctx, instruments, symbols)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Bars: len(b.Bars), Factors: len(b.Factors), Splice: len(b.Splice)}
	if b.Empty() {
		return stats, nil
	}

	var errs []error
	for _, s := range e.sinks {
		start := time.Now()
		if err := s.Write(ctx, b); err != nil {
			e.logger.WithError(err).WithField("sink", s.Name()).Error("Export failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		e.logger.WithFields(map[string]interface{}{
			"sink":     s.Name(),
			"bars":     stats.Bars,
			"factors":  stats.Factors,
			"splice":   stats.Splice,
			"duration": time.Since(start).String(),
		}).Info("Export completed")
	}
	return stats, errors.Join(errs...)
}

// Close closes every sink
func (e *Exporter) Close() error {
	var errs []error
	for _, s := range e.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

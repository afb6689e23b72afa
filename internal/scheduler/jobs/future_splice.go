package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/quantsource/internal/splice"
	"github.com/wonny/quantsource/pkg/logger"
	"github.com/wonny/quantsource/pkg/redis"
)

// SpliceRunner recomputes continuous-futures splice series
type SpliceRunner interface {
	Run(ctx context.Context, symbols ...string) (*splice.Summary, error)
}

// FutureSpliceJob recomputes every tracked continuous symbol
type FutureSpliceJob struct {
	runner   SpliceRunner
	exporter Exporter
	cache    Invalidator
	logger   *logger.Logger
}

// NewFutureSpliceJob creates a new splice job
func NewFutureSpliceJob(runner SpliceRunner, exporter Exporter, cache Invalidator, log *logger.Logger) *FutureSpliceJob {
	return &FutureSpliceJob{
		runner:   runner,
		exporter: exporter,
		cache:    cache,
		logger:   log.WithField("job", "future_splice"),
	}
}

// Name returns the job name
func (j *FutureSpliceJob) Name() string {
	return "future_splice"
}

// Schedule returns the cron schedule (Saturday 22:00, after the week's roll history update)
func (j *FutureSpliceJob) Schedule() string {
	return "0 0 22 * * 6"
}

// Run recomputes splice series and pushes them downstream
func (j *FutureSpliceJob) Run(ctx context.Context) error {
	summary, err := j.runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("splice run: %w", err)
	}

	var done []string
	for _, r := range summary.Results {
		if r.Error == "" {
			done = append(done, r.Symbol)
		}
	}

	if j.cache != nil && len(done) > 0 {
		keys := make([]string, len(done))
		for i, sym := range done {
			keys[i] = redis.SpliceKey(sym)
		}
		if err := j.cache.Delete(ctx, keys...); err != nil {
			j.logger.WithError(err).Warn("Cache invalidation failed")
		}
	}

	if j.exporter != nil && len(done) > 0 {
		if _, err := j.exporter.Export(ctx, []string{}, done); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"symbols": len(summary.Results),
		"failed":  summary.Failed(),
	}).Info("Splice job finished")

	if n := summary.Failed(); n > 0 {
		return fmt.Errorf("%d of %d symbols failed", n, len(summary.Results))
	}
	return nil
}

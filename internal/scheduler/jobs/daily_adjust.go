package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/internal/export"
	"github.com/wonny/quantsource/internal/ingest"
	"github.com/wonny/quantsource/pkg/logger"
	"github.com/wonny/quantsource/pkg/redis"
)

// Adjuster runs one day of the adjustment pipeline
type Adjuster interface {
	Run(ctx context.Context, date time.Time, bars []contracts.Bar) (*contracts.RunSummary, error)
}

// Exporter pushes touched instruments / symbols to downstream stores
type Exporter interface {
	Export(ctx context.Context, instruments, symbols []string) (export.Stats, error)
}

// Invalidator drops cached API responses (*redis.Cache)
type Invalidator interface {
	Delete(ctx context.Context, keys ...string) error
}

// DailyAdjustJob imports the day's raw daily bars and runs the adjustment pipeline
// ⭐ SSOT: 일봉 조정 스케줄은 이 Job에서만
type DailyAdjustJob struct {
	engine   Adjuster
	calendar contracts.Calendar
	exporter Exporter    // nil = 다운스트림 적재 안 함
	cache    Invalidator // nil = 캐시 무효화 안 함
	rawDir   string
	reader   *ingest.DailyReader
	logger   *logger.Logger

	now func() time.Time
}

// NewDailyAdjustJob creates a new daily adjustment job
func NewDailyAdjustJob(engine Adjuster, cal contracts.Calendar, exporter Exporter, cache Invalidator, rawDir string, log *logger.Logger) *DailyAdjustJob {
	return &DailyAdjustJob{
		engine:   engine,
		calendar: cal,
		exporter: exporter,
		cache:    cache,
		rawDir:   rawDir,
		reader:   ingest.NewDailyReader(log),
		logger:   log.WithField("job", "daily_adjust"),
		now:      time.Now,
	}
}

// Name returns the job name
func (j *DailyAdjustJob) Name() string {
	return "daily_adjust"
}

// Schedule returns the cron schedule (weekdays 20:30, after the vendor publishes dailies)
func (j *DailyAdjustJob) Schedule() string {
	return "0 30 20 * * 1-5"
}

// Run processes today's raw file. Non-trading days are a no-op.
func (j *DailyAdjustJob) Run(ctx context.Context) error {
	return j.RunDate(ctx, contracts.TradingDate(j.now()))
}

// RunDate processes the raw file of one trading date
func (j *DailyAdjustJob) RunDate(ctx context.Context, date time.Time) error {
	log := j.logger.WithField("date", contracts.FormatDate(date))

	open, err := j.calendar.IsTradingDay(ctx, date)
	if err != nil {
		return fmt.Errorf("trading calendar: %w", err)
	}
	if !open {
		log.Info("Not a trading day, skipping")
		return nil
	}

	path, err := RawDailyPath(j.rawDir, date)
	if err != nil {
		return err
	}
	bars, stats, err := j.reader.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	log.WithFields(map[string]interface{}{
		"file":    path,
		"rows":    stats.Rows,
		"bars":    stats.Bars,
		"skipped": stats.Skipped,
	}).Info("Raw daily file loaded")

	summary, err := j.engine.Run(ctx, date, bars)
	if err != nil {
		return fmt.Errorf("adjust run: %w", err)
	}

	touched := summary.Succeeded()
	j.invalidate(ctx, log, touched)

	if j.exporter != nil && len(touched) > 0 {
		// 연속선물 splice 는 future_splice 작업이 적재
		if _, err := j.exporter.Export(ctx, touched, []string{}); err != nil {
			return fmt.Errorf("export: %w", err)
		}
	}

	if failed := summary.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d instruments failed (run %s)", len(failed), len(summary.Results), summary.RunID)
	}
	return nil
}

func (j *DailyAdjustJob) invalidate(ctx context.Context, log *logger.Logger, instruments []string) {
	if j.cache == nil {
		return
	}
	for _, inst := range instruments {
		if err := j.cache.Delete(ctx, redis.InstrumentKeys(inst)...); err != nil {
			// 캐시 TTL 만료로 자연 회복
			log.WithError(err).WithField("instrument", inst).Warn("Cache invalidation failed")
			continue
		}
	}
}

// RawDailyPath finds the raw daily file of a date: <rawDir>/daily/YYYYMMDD.csv[.zst]
func RawDailyPath(rawDir string, date time.Time) (string, error) {
	base := filepath.Join(rawDir, "daily", date.Format("20060102")+".csv")
	for _, p := range []string{base, base + ".zst"} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("raw daily file not found: %s[.zst]", base)
}

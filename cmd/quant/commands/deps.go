package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/wonny/quantsource/internal/adjust"
	"github.com/wonny/quantsource/internal/calendar"
	"github.com/wonny/quantsource/internal/export"
	"github.com/wonny/quantsource/internal/notify"
	"github.com/wonny/quantsource/internal/profile"
	"github.com/wonny/quantsource/internal/splice"
	"github.com/wonny/quantsource/internal/store/pgstore"
	"github.com/wonny/quantsource/pkg/config"
	"github.com/wonny/quantsource/pkg/database"
	"github.com/wonny/quantsource/pkg/logger"
	"github.com/wonny/quantsource/pkg/redis"
)

const redisPrefix = "quant"

// deps holds the infrastructure shared by commands
// ⭐ SSOT: 의존성 조립은 여기서만 (전역 싱글톤 없음)
type deps struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *database.DB
	store *pgstore.Store
	redis *redis.Client
	cache *redis.Cache

	notifier notify.Notifier
}

// setup loads config, connects to Postgres and Redis
func setup() (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if profilePath != "" {
		cfg.Adjust.ProfilePath = profilePath
	}

	log := logger.New(cfg)
	log.WithFields(map[string]interface{}{
		"log_level": log.Level().String(),
		"profile":   cfg.Adjust.ProfilePath,
		"redis":     cfg.Redis.Enabled,
	}).Debug("Configuration loaded")

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	rc, err := redis.New(cfg)
	if err != nil {
		// Redis 없이도 동작 (캐시 / 락 / 레이트리밋 비활성)
		log.WithError(err).Warn("Redis unavailable, continuing without cache")
		rc, _ = redis.New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	}

	return &deps{
		cfg:   cfg,
		log:   log,
		db:    db,
		store: pgstore.New(db.Pool),
		redis: rc,
		cache: redis.NewCache(rc, redisPrefix),
	}, nil
}

// Close releases connections
func (d *deps) Close() {
	if d.notifier != nil {
		if err := d.notifier.Close(); err != nil {
			d.log.WithError(err).Warn("Failed to close notifier")
		}
	}
	_ = d.redis.Close()
	d.db.Close()
}

func (d *deps) calendar() *calendar.Cached {
	return calendar.NewCached(d.store, d.cache, d.log)
}

// engine wires the adjustment engine with run store, calendar, lock and alerting
func (d *deps) engine() *adjust.Engine {
	e := adjust.NewEngine(d.store, adjust.OptionsFromConfig(d.cfg), d.log)
	e.SetRunStore(d.store)
	e.SetCalendar(d.calendar())
	if d.redis.Enabled() {
		e.SetLocker(redis.NewLocker(d.redis, redisPrefix, d.cfg.Adjust.InstrumentTimeout))
	}
	if d.notifier == nil {
		d.notifier = notify.New(d.cfg, d.log)
	}
	e.SetNotifier(d.notifier)
	return e
}

// profile loads the splice profile; a missing file means no tracked symbols
func (d *deps) profile() (*profile.Profile, error) {
	p, _, err := profile.Load(d.cfg.Adjust.ProfilePath)
	if errors.Is(err, os.ErrNotExist) {
		d.log.WithField("path", d.cfg.Adjust.ProfilePath).Warn("Splice profile not found, using stored symbols")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	hash, err := profile.Hash(p)
	if err != nil {
		return nil, err
	}
	d.log.WithFields(map[string]interface{}{
		"profile_id": p.Meta.ProfileID,
		"symbols":    len(p.Splice.Symbols),
		"overrides":  len(p.Splice.Overrides),
		"hash":       hash,
	}).Info("Splice profile loaded")
	return p, nil
}

func (d *deps) spliceRunner() (*splice.Runner, error) {
	p, err := d.profile()
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	lookback := d.cfg.Splice.LookbackDays
	if p != nil && p.Splice.LookbackDays > 0 {
		lookback = p.Splice.LookbackDays
	}
	calc := splice.NewCalculator(lookback, d.log)
	return splice.NewRunner(d.store, d.store, calc, p, d.log), nil
}

// exporter builds an exporter over the enabled sinks; parquetDir "" disables parquet.
// Returns nil when no sink is enabled.
func (d *deps) exporter(ctx context.Context, parquetDir string, clickhouse bool) (*export.Exporter, error) {
	var sinks []export.Sink
	if parquetDir != "" {
		sinks = append(sinks, export.NewParquetSink(parquetDir))
	}
	if clickhouse {
		ch, err := export.NewClickHouseSink(ctx, d.cfg.ClickHouse.DSN)
		if err != nil {
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		sinks = append(sinks, ch)
	}
	if len(sinks) == 0 {
		return nil, nil
	}
	return export.NewExporter(d.store, d.store, d.log, sinks...), nil
}

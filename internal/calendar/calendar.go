// Package calendar answers trading-day questions for gap detection and scheduling.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/pkg/logger"
	"github.com/wonny/quantsource/pkg/redis"
)

// ErrNoPreviousDay is returned when no trading day precedes the date in the loaded range
var ErrNoPreviousDay = errors.New("no previous trading day in calendar")

// Static is an immutable in-memory calendar
type Static struct {
	days []time.Time
}

// NewStatic builds a calendar from unordered, possibly duplicated days
func NewStatic(days []time.Time) *Static {
	seen := make(map[time.Time]bool, len(days))
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		d = contracts.TradingDate(d)
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return &Static{days: out}
}

// Days returns the trading days in ascending order
func (s *Static) Days() []time.Time { return s.days }

// IsTradingDay reports whether date is a trading day
func (s *Static) IsTradingDay(ctx context.Context, date time.Time) (bool, error) {
	date = contracts.TradingDate(date)
	i := sort.Search(len(s.days), func(i int) bool { return !s.days[i].Before(date) })
	return i < len(s.days) && s.days[i].Equal(date), nil
}

// PreviousTradingDay returns the latest trading day strictly before date
func (s *Static) PreviousTradingDay(ctx context.Context, date time.Time) (time.Time, error) {
	date = contracts.TradingDate(date)
	i := sort.Search(len(s.days), func(i int) bool { return !s.days[i].Before(date) })
	if i == 0 {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNoPreviousDay, contracts.FormatDate(date))
	}
	return s.days[i-1], nil
}

// Source loads trading days for a date range
type Source interface {
	TradingDays(ctx context.Context, from, to time.Time) ([]time.Time, error)
}

// Cached loads one calendar year at a time from Source, through Redis and an in-process map
// ⭐ SSOT: 연도 단위 캐시 (Redis → 메모리)
type Cached struct {
	source Source
	cache  *redis.Cache
	logger *logger.Logger

	mu    sync.Mutex
	years map[int]*Static
}

// NewCached creates a year-cached calendar; cache may be nil
func NewCached(source Source, cache *redis.Cache, log *logger.Logger) *Cached {
	return &Cached{
		source: source,
		cache:  cache,
		logger: log.WithField("module", "calendar"),
		years:  make(map[int]*Static),
	}
}

// year returns the calendar of one year, loading it on first use
func (c *Cached) year(ctx context.Context, y int) (*Static, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.years[y]; ok {
		return s, nil
	}

	var days []time.Time
	found := false
	if c.cache != nil {
		var err error
		found, err = c.cache.Get(ctx, redis.TradingDaysKey(y), &days)
		if err != nil {
			c.logger.WithError(err).Debug("Calendar cache read failed")
		}
	}

	if !found {
		from := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(y, 12, 31, 0, 0, 0, 0, time.UTC)
		loaded, err := c.source.TradingDays(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("load calendar %d: %w", y, err)
		}
		days = loaded
		if c.cache != nil && len(days) > 0 {
			if err := c.cache.Set(ctx, redis.TradingDaysKey(y), days, redis.TTLDaily); err != nil {
				c.logger.WithError(err).Debug("Calendar cache write failed")
			}
		}
	}

	s := NewStatic(days)
	// 빈 연도는 캐시하지 않음 (나중에 적재될 수 있음)
	if len(days) > 0 {
		c.years[y] = s
	}
	return s, nil
}

// IsTradingDay reports whether date is a trading day
func (c *Cached) IsTradingDay(ctx context.Context, date time.Time) (bool, error) {
	s, err := c.year(ctx, date.Year())
	if err != nil {
		return false, err
	}
	return s.IsTradingDay(ctx, date)
}

// PreviousTradingDay returns the latest trading day strictly before date,
// looking into the previous year when date is early January.
func (c *Cached) PreviousTradingDay(ctx context.Context, date time.Time) (time.Time, error) {
	date = contracts.TradingDate(date)
	for y := date.Year(); y >= date.Year()-1; y-- {
		s, err := c.year(ctx, y)
		if err != nil {
			return time.Time{}, err
		}
		if d, err := s.PreviousTradingDay(ctx, date); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s", ErrNoPreviousDay, contracts.FormatDate(date))
}

// Invalidate drops cached years so the next lookup reloads from Source
func (c *Cached) Invalidate(ctx context.Context, years ...int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, len(years))
	for i, y := range years {
		delete(c.years, y)
		keys[i] = redis.TradingDaysKey(y)
	}
	if c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, keys...)
}

package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/pkg/logger"
)

var (
	hundred  = decimal.NewFromInt(100)  // vol: 手 → 주
	thousand = decimal.NewFromInt(1000) // amount: 천 위안 → 위안
)

var dailyColumns = []string{"ts_code", "trade_date", "open", "high", "low", "close", "pre_close", "vol", "amount"}

// DailyStats counts what a snapshot import did
type DailyStats struct {
	Rows    int `json:"rows"`
	Bars    int `json:"bars"`
	Skipped int `json:"skipped"`
}

// DailyReader converts vendor daily-bar CSV snapshots into raw daily bars
// ⭐ SSOT: 가격은 decimal 파싱 후 소수 2자리 반올림 (ROUND_HALF_UP)
type DailyReader struct {
	logger *logger.Logger
}

// NewDailyReader creates a reader
func NewDailyReader(log *logger.Logger) *DailyReader {
	return &DailyReader{logger: log.WithField("module", "ingest")}
}

// ReadFile reads one snapshot file (.csv or .csv.zst)
func (d *DailyReader) ReadFile(path string) ([]contracts.Bar, DailyStats, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, DailyStats{}, err
	}
	defer rc.Close()

	bars, stats, err := d.Read(rc)
	if err != nil {
		return nil, stats, fmt.Errorf("%s: %w", path, err)
	}
	return bars, stats, nil
}

// Read parses the snapshot. Rows with any zero OHLC are skipped with a warning.
func (d *DailyReader) Read(r io.Reader) ([]contracts.Bar, DailyStats, error) {
	var stats DailyStats
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, stats, nil
	}
	if err != nil {
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	cols, err := newColumns(header).require(dailyColumns...)
	if err != nil {
		return nil, stats, err
	}

	var bars []contracts.Bar
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("line %d: %w", line, err)
		}
		stats.Rows++

		bar, err := parseDailyRow(rec, cols)
		if err != nil {
			return nil, stats, fmt.Errorf("line %d: %w", line, err)
		}

		if bar.Open == 0 || bar.High == 0 || bar.Low == 0 || bar.Close == 0 {
			// 신규 상장 추정 (가격 미형성)
			d.logger.WithFields(map[string]interface{}{
				"instrument": bar.Instrument,
				"date":       contracts.FormatDate(bar.Date),
			}).Warn("Skipping row with zero OHLC, possibly a new listing")
			stats.Skipped++
			continue
		}
		bars = append(bars, bar)
	}

	stats.Bars = len(bars)
	d.logger.WithFields(map[string]interface{}{
		"rows":    stats.Rows,
		"bars":    stats.Bars,
		"skipped": stats.Skipped,
	}).Info("Daily snapshot parsed")
	return bars, stats, nil
}

func parseDailyRow(rec []string, cols map[string]int) (contracts.Bar, error) {
	field := func(name string) (string, error) {
		i := cols[name]
		if i >= len(rec) {
			return "", fmt.Errorf("missing %s", name)
		}
		return strings.TrimSpace(rec[i]), nil
	}

	code, err := field("ts_code")
	if err != nil {
		return contracts.Bar{}, err
	}
	if code == "" {
		return contracts.Bar{}, fmt.Errorf("empty ts_code")
	}
	rawDate, err := field("trade_date")
	if err != nil {
		return contracts.Bar{}, err
	}
	date, err := contracts.ParseDate(rawDate)
	if err != nil {
		return contracts.Bar{}, err
	}

	nums := make(map[string]decimal.Decimal, 7)
	for _, name := range []string{"open", "high", "low", "close", "pre_close", "vol", "amount"} {
		raw, err := field(name)
		if err != nil {
			return contracts.Bar{}, err
		}
		if raw == "" {
			nums[name] = decimal.Zero
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return contracts.Bar{}, fmt.Errorf("%s %s: invalid %s %q", code, rawDate, name, raw)
		}
		nums[name] = v
	}

	price := func(name string) float64 {
		return nums[name].Round(2).InexactFloat64()
	}
	return contracts.Bar{
		Instrument:  code,
		Granularity: contracts.Daily,
		Date:        date,
		Open:        price("open"),
		High:        price("high"),
		Low:         price("low"),
		Close:       price("close"),
		PreClose:    price("pre_close"),
		Volume:      nums["vol"].Mul(hundred).Round(0).IntPart(),
		Amount:      nums["amount"].Mul(thousand).InexactFloat64(),
	}, nil
}

// GroupByDate splits bars by trading date in ascending order
func GroupByDate(bars []contracts.Bar) ([]time.Time, map[time.Time][]contracts.Bar) {
	grouped := make(map[time.Time][]contracts.Bar)
	var dates []time.Time
	for _, b := range bars {
		if _, ok := grouped[b.Date]; !ok {
			dates = append(dates, b.Date)
		}
		grouped[b.Date] = append(grouped[b.Date], b)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, grouped
}

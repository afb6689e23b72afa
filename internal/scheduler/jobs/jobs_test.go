package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantsource/internal/adjust"
	"github.com/wonny/quantsource/internal/contracts"
	"github.com/wonny/quantsource/internal/export"
	"github.com/wonny/quantsource/internal/splice"
	"github.com/wonny/quantsource/internal/store/memstore"
	"github.com/wonny/quantsource/pkg/config"
	"github.com/wonny/quantsource/pkg/logger"
	"github.com/wonny/quantsource/pkg/redis"
)

const rawHeader = "ts_code,trade_date,open,high,low,close,pre_close,vol,amount\n"

type tradingDays map[string]bool

func (d tradingDays) IsTradingDay(ctx context.Context, date time.Time) (bool, error) {
	return d[contracts.FormatDate(date)], nil
}

func (d tradingDays) PreviousTradingDay(ctx context.Context, date time.Time) (time.Time, error) {
	return date.AddDate(0, 0, -1), nil
}

type exportCall struct {
	instruments []string
	symbols     []string
}

type recordingExporter struct {
	calls []exportCall
	err   error
}

func (r *recordingExporter) Export(ctx context.Context, instruments, symbols []string) (export.Stats, error) {
	r.calls = append(r.calls, exportCall{instruments: instruments, symbols: symbols})
	return export.Stats{}, r.err
}

type fakeAdjuster struct {
	calls   int
	summary *contracts.RunSummary
}

func (f *fakeAdjuster) Run(ctx context.Context, date time.Time, bars []contracts.Bar) (*contracts.RunSummary, error) {
	f.calls++
	return f.summary, nil
}

func disabledCache(t *testing.T) *redis.Cache {
	t.Helper()
	client, err := redis.New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)
	return redis.NewCache(client, "test")
}

func writeRaw(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, "daily", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

var jan4 = time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)

func TestDailyAdjustJob_RunsEngine(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "20240104.csv", rawHeader+
		"600000.SH,20240104,7.10,7.20,7.05,7.12,7.10,1000,7120\n"+
		"000001.SZ,20240104,9.50,9.60,9.40,9.55,9.48,2000,19100\n")

	store := memstore.New()
	engine := adjust.NewEngine(store, adjust.Options{Epsilon: 0.0001, Workers: 2, InstrumentTimeout: 5 * time.Second}, logger.Nop())
	exporter := &recordingExporter{}
	job := NewDailyAdjustJob(engine, tradingDays{"2024-01-04": true}, exporter, disabledCache(t), dir, logger.Nop())
	job.now = func() time.Time { return jan4.Add(20*time.Hour + 30*time.Minute) }

	require.NoError(t, job.Run(context.Background()))

	instruments, err := store.Instruments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"000001.SZ", "600000.SH"}, instruments)

	weekly, err := store.ListBars(context.Background(), "600000.SH", contracts.Weekly, time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, weekly, 1)
	assert.Equal(t, 7.12, weekly[0].Close)

	require.Len(t, exporter.calls, 1)
	assert.ElementsMatch(t, []string{"000001.SZ", "600000.SH"}, exporter.calls[0].instruments)
	assert.NotNil(t, exporter.calls[0].symbols)
	assert.Empty(t, exporter.calls[0].symbols)
}

type failingInvalidator struct {
	failFirst bool
	calls     [][]string
}

func (f *failingInvalidator) Delete(ctx context.Context, keys ...string) error {
	f.calls = append(f.calls, keys)
	if f.failFirst && len(f.calls) == 1 {
		return errors.New("connection reset")
	}
	return nil
}

func TestDailyAdjustJob_InvalidatesEveryInstrument(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "20240104.csv", rawHeader+
		"600000.SH,20240104,7.10,7.20,7.05,7.12,7.10,1000,7120\n"+
		"000001.SZ,20240104,9.50,9.60,9.40,9.55,9.48,2000,19100\n")

	store := memstore.New()
	engine := adjust.NewEngine(store, adjust.Options{Epsilon: 0.0001, Workers: 2, InstrumentTimeout: 5 * time.Second}, logger.Nop())
	cache := &failingInvalidator{failFirst: true}
	job := NewDailyAdjustJob(engine, tradingDays{"2024-01-04": true}, nil, cache, dir, logger.Nop())

	// 캐시 실패는 작업 실패가 아님
	require.NoError(t, job.RunDate(context.Background(), jan4))

	require.Len(t, cache.calls, 2)
	assert.ElementsMatch(t, [][]string{
		redis.InstrumentKeys("000001.SZ"),
		redis.InstrumentKeys("600000.SH"),
	}, cache.calls)
}

func TestDailyAdjustJob_NonTradingDay(t *testing.T) {
	adjuster := &fakeAdjuster{}
	job := NewDailyAdjustJob(adjuster, tradingDays{}, nil, nil, t.TempDir(), logger.Nop())

	require.NoError(t, job.RunDate(context.Background(), time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)))
	assert.Zero(t, adjuster.calls)
}

func TestDailyAdjustJob_MissingFile(t *testing.T) {
	adjuster := &fakeAdjuster{}
	job := NewDailyAdjustJob(adjuster, tradingDays{"2024-01-04": true}, nil, nil, t.TempDir(), logger.Nop())

	err := job.RunDate(context.Background(), jan4)
	assert.ErrorContains(t, err, "raw daily file not found")
	assert.Zero(t, adjuster.calls)
}

func TestDailyAdjustJob_ReportsFailedInstruments(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "20240104.csv", rawHeader+"600000.SH,20240104,7.10,7.20,7.05,7.12,7.10,1000,7120\n")

	adjuster := &fakeAdjuster{summary: &contracts.RunSummary{
		RunID: "run-1",
		Results: []contracts.InstrumentResult{
			{Instrument: "600000.SH", Outcome: contracts.OutcomeIncremental},
			{Instrument: "BROKEN", Outcome: contracts.OutcomeFailed, Error: "storage: timeout"},
		},
	}}
	exporter := &recordingExporter{}
	job := NewDailyAdjustJob(adjuster, tradingDays{"2024-01-04": true}, exporter, nil, dir, logger.Nop())

	err := job.RunDate(context.Background(), jan4)
	assert.ErrorContains(t, err, "1 of 2 instruments failed")

	// 성공 종목은 그대로 적재
	require.Len(t, exporter.calls, 1)
	assert.Equal(t, []string{"600000.SH"}, exporter.calls[0].instruments)
}

func TestDailyAdjustJob_ExportFailure(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "20240104.csv", rawHeader+"600000.SH,20240104,7.10,7.20,7.05,7.12,7.10,1000,7120\n")

	adjuster := &fakeAdjuster{summary: &contracts.RunSummary{
		Results: []contracts.InstrumentResult{{Instrument: "600000.SH", Outcome: contracts.OutcomeSeeded}},
	}}
	exporter := &recordingExporter{err: errors.New("clickhouse: connection refused")}
	job := NewDailyAdjustJob(adjuster, tradingDays{"2024-01-04": true}, exporter, nil, dir, logger.Nop())

	assert.ErrorContains(t, job.RunDate(context.Background(), jan4), "export")
}

func TestRawDailyPath(t *testing.T) {
	dir := t.TempDir()

	_, err := RawDailyPath(dir, jan4)
	assert.Error(t, err)

	// .zst 만 있는 경우
	path := filepath.Join(dir, "daily", "20240104.csv.zst")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte(rawHeader))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	got, err := RawDailyPath(dir, jan4)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	// 비압축 파일이 우선
	plain := writeRaw(t, dir, "20240104.csv", rawHeader)
	got, err = RawDailyPath(dir, jan4)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

type fakeSpliceRunner struct {
	summary *splice.Summary
	err     error
}

func (f *fakeSpliceRunner) Run(ctx context.Context, symbols ...string) (*splice.Summary, error) {
	return f.summary, f.err
}

func TestFutureSpliceJob(t *testing.T) {
	runner := &fakeSpliceRunner{summary: &splice.Summary{Results: []splice.SymbolResult{
		{Symbol: "KQ.m@SHFE.rb", Points: 120},
		{Symbol: "KQ.m@DCE.c", Error: "no roll history"},
		{Symbol: "KQ.m@SHFE.ru", Points: 80, Offset: -10000},
	}}}
	exporter := &recordingExporter{}
	job := NewFutureSpliceJob(runner, exporter, disabledCache(t), logger.Nop())

	err := job.Run(context.Background())
	assert.ErrorContains(t, err, "1 of 3 symbols failed")

	require.Len(t, exporter.calls, 1)
	assert.Empty(t, exporter.calls[0].instruments)
	assert.Equal(t, []string{"KQ.m@SHFE.rb", "KQ.m@SHFE.ru"}, exporter.calls[0].symbols)
}

func TestFutureSpliceJob_RunnerError(t *testing.T) {
	job := NewFutureSpliceJob(&fakeSpliceRunner{err: errors.New("profile has no symbols")}, nil, nil, logger.Nop())

	assert.ErrorContains(t, job.Run(context.Background()), "profile has no symbols")
}

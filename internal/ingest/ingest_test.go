package ingest

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantsource/pkg/logger"
)

const snapshot = `,ts_code,trade_date,open,high,low,close,pre_close,change,pct_chg,vol,amount
0,600000.SH,20240102,7.125,7.2,7.0,7.115,7.1,0.015,0.21,123456.78,98765.432
1,301500.SZ,20240102,0,0,0,0,0,0,0,0,0
2,000001.SZ,20240102,9.39,9.42,9.21,9.21,9.39,-0.18,-1.92,1158366.45,1075742.252
`

func TestDailyReaderRead(t *testing.T) {
	var buf bytes.Buffer
	r := NewDailyReader(logger.NewWithWriter(&buf, "info"))

	bars, stats, err := r.Read(strings.NewReader(snapshot))
	require.NoError(t, err)
	assert.Equal(t, DailyStats{Rows: 3, Bars: 2, Skipped: 1}, stats)
	require.Len(t, bars, 2)

	b := bars[0]
	assert.Equal(t, "600000.SH", b.Instrument)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), b.Date)
	assert.Equal(t, 7.13, b.Open, "half-up rounding")
	assert.Equal(t, 7.12, b.Close)
	assert.Equal(t, 7.1, b.PreClose)
	assert.Equal(t, int64(12345678), b.Volume)
	assert.InDelta(t, 98765432.0, b.Amount, 1e-6)
	assert.NoError(t, b.Validate())

	assert.Equal(t, "000001.SZ", bars[1].Instrument)
	assert.Contains(t, buf.String(), "301500.SZ")
}

func TestDailyReaderErrors(t *testing.T) {
	r := NewDailyReader(logger.Nop())

	_, _, err := r.Read(strings.NewReader("ts_code,trade_date,open\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns")

	_, _, err = r.Read(strings.NewReader("ts_code,trade_date,open,high,low,close,pre_close,vol,amount\nA,20240102,x,1,1,1,1,1,1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	bars, stats, err := r.Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, bars)
	assert.Zero(t, stats.Rows)
}

func TestReadFileZstd(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stock_daily.csv.zst")

	var compressed bytes.Buffer
	enc, err := zstd.NewWriter(&compressed)
	require.NoError(t, err)
	_, err = enc.Write([]byte(snapshot))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, os.WriteFile(path, compressed.Bytes(), 0o644))

	bars, stats, err := NewDailyReader(logger.Nop()).ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Bars)
	assert.Len(t, bars, 2)

	plain := filepath.Join(dir, "stock_daily.csv")
	require.NoError(t, os.WriteFile(plain, []byte(snapshot), 0o644))
	again, _, err := NewDailyReader(logger.Nop()).ReadFile(plain)
	require.NoError(t, err)
	assert.Equal(t, bars, again)

	_, _, err = NewDailyReader(logger.Nop()).ReadFile(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
}

func TestGroupByDate(t *testing.T) {
	bars, _, err := NewDailyReader(logger.Nop()).Read(strings.NewReader(
		"ts_code,trade_date,open,high,low,close,pre_close,vol,amount\n" +
			"A,20240103,1,1,1,1,1,1,1\n" +
			"A,20240102,1,1,1,1,1,1,1\n" +
			"B,20240103,1,1,1,1,1,1,1\n"))
	require.NoError(t, err)

	dates, grouped := GroupByDate(bars)
	require.Len(t, dates, 2)
	assert.True(t, dates[0].Before(dates[1]))
	assert.Len(t, grouped[dates[1]], 2)
}

func TestReadRolls(t *testing.T) {
	input := `date,KQ.m@DCE.c,KQ.m@CZCE.SR
2021-04-09 00:00:00,DCE.c2105,CZCE.SR105
2021-04-08 00:00:00,DCE.c2105,
2021-04-12 00:00:00,DCE.c2109,CZCE.SR109
`
	out, err := ReadRolls(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, out, 2)

	corn := out["KQ.m@DCE.c"]
	require.Len(t, corn, 3)
	assert.Equal(t, time.Date(2021, 4, 8, 0, 0, 0, 0, time.UTC), corn[0].Date)
	assert.Equal(t, "c2105", corn[0].Contract)
	assert.Equal(t, "c2109", corn[2].Contract)

	sugar := out["KQ.m@CZCE.SR"]
	require.Len(t, sugar, 2)
	assert.Equal(t, "SR2105", sugar[0].Contract)
	assert.Equal(t, "SR2109", sugar[1].Contract)
	assert.Equal(t, "KQ.m@CZCE.SR", sugar[1].Symbol)
}

func TestReadRollsErrors(t *testing.T) {
	_, err := ReadRolls(strings.NewReader("symbol,KQ.m@DCE.c\n"))
	assert.Error(t, err)

	_, err = ReadRolls(strings.NewReader("date,KQ.m@DCE.c\n2021-04-12,c2105\n"))
	assert.Error(t, err, "contract without exchange prefix")

	_, err = ReadRolls(strings.NewReader("date,KQ.m@DCE.c\nnot-a-date,DCE.c2105\n"))
	assert.Error(t, err)
}

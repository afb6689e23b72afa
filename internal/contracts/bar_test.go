package contracts

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBar_Validate(t *testing.T) {
	valid := Bar{
		Instrument: "600000.SH", Granularity: Daily, Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Open: 10, High: 11, Low: 9.5, Close: 10.5, PreClose: 10, Volume: 100, Amount: 1050,
	}

	tests := []struct {
		name    string
		mutate  func(b *Bar)
		wantErr string
	}{
		{"valid daily", func(b *Bar) {}, ""},
		{"valid weekly", func(b *Bar) { b.Granularity = Weekly; b.PeriodKey = "2024-W01" }, ""},
		{"missing instrument", func(b *Bar) { b.Instrument = "" }, "instrument is required"},
		{"missing date", func(b *Bar) { b.Date = time.Time{} }, "date is required"},
		{"aggregate without key", func(b *Bar) { b.Granularity = Monthly }, "period key is required"},
		{"unknown granularity", func(b *Bar) { b.Granularity = "hour" }, "unknown granularity"},
		{"negative close", func(b *Bar) { b.Close = -1 }, "invalid close"},
		{"NaN open", func(b *Bar) { b.Open = math.NaN() }, "invalid open"},
		{"negative volume", func(b *Bar) { b.Volume = -1 }, "negative volume"},
		{"high below low", func(b *Bar) { b.High = 9 }, "below low"},
		{"suspended zero prices", func(b *Bar) { b.Open, b.High, b.Low, b.Close = 0, 0, 0, 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid
			tt.mutate(&b)
			err := b.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseGranularity(t *testing.T) {
	for _, s := range []string{"daily", "week", "month"} {
		g, err := ParseGranularity(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(g))
	}
	_, err := ParseGranularity("quarter")
	assert.Error(t, err)

	assert.False(t, Daily.IsAggregate())
	assert.True(t, Weekly.IsAggregate())
	assert.True(t, Monthly.IsAggregate())
}

func TestParseDate(t *testing.T) {
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	d, err := ParseDate("2024-03-15")
	require.NoError(t, err)
	assert.Equal(t, want, d)

	d, err = ParseDate("20240315")
	require.NoError(t, err)
	assert.Equal(t, want, d)

	_, err = ParseDate("15/03/2024")
	assert.Error(t, err)

	assert.Equal(t, "2024-03-15", FormatDate(want))
}

func TestTradingDate(t *testing.T) {
	kst := time.FixedZone("KST", 9*3600)
	in := time.Date(2024, 3, 15, 23, 30, 0, 0, kst)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), TradingDate(in))
}

package adjust

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/quantsource/internal/contracts"
)

func TestDetect(t *testing.T) {
	d := NewDetector(0.0001)
	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		prevClose   float64
		preClose    float64
		wantFlagged bool
		wantStep    float64
		wantErr     bool
	}{
		{"unchanged reference", 100, 100, false, 1, false},
		{"2-for-1 split", 100, 50, true, 0.5, false},
		{"cash dividend", 10.00, 9.80, true, 0.98, false},
		{"rounding noise below epsilon", 100, 100.00005, false, 1, false},
		{"zero previous close", 0, 10, false, 1, true},
		{"missing pre close", 10, 0, false, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := &contracts.Bar{Instrument: "600000.SH", Date: date.AddDate(0, 0, -3), Close: tt.prevClose}
			next := contracts.Bar{Instrument: "600000.SH", Date: date, PreClose: tt.preClose}

			det, err := d.Detect(prev, next)
			if tt.wantErr {
				var ife *contracts.InconsistentFactorError
				require.True(t, errors.As(err, &ife))
				assert.Equal(t, "600000.SH", ife.Instrument)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantFlagged, det.Flagged)
			assert.InDelta(t, tt.wantStep, det.Step, 1e-12)
			assert.Equal(t, tt.prevClose, det.PrevClose)
			assert.Equal(t, tt.preClose, det.PreClose)
		})
	}
}

func TestDetectNewListing(t *testing.T) {
	det, err := NewDetector(0.0001).Detect(nil, contracts.Bar{Instrument: "688001.SH", PreClose: 30})
	require.NoError(t, err)
	assert.True(t, det.NewListing)
	assert.False(t, det.Flagged)
}

func TestDetectEpsilonIsConfigurable(t *testing.T) {
	prev := &contracts.Bar{Close: 100}
	next := contracts.Bar{PreClose: 100.0005}

	loose, _ := NewDetector(0.001).Detect(prev, next)
	strict, _ := NewDetector(0.0001).Detect(prev, next)

	assert.False(t, loose.Flagged)
	assert.True(t, strict.Flagged)
}

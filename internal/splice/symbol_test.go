package splice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeContract(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"CZCE.SR105", "SR2105", false},
		{"CZCE.TA001", "TA2001", false},
		{"CZCE.SR901", "SR1901", false},
		{"CZCE.CF409", "CF2409", false},
		{"DCE.c2105", "c2105", false},
		{"SHFE.ru2109", "ru2109", false},
		{"INE.sc2203", "sc2203", false},
		{"c2105", "", true},
		{".c2105", "", true},
		{"DCE.", "", true},
		{"CZCE.S", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeContract(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBelongsTo(t *testing.T) {
	tests := []struct {
		symbol   string
		contract string
		want     bool
	}{
		{"KQ.m@DCE.c", "c2105", true},
		{"KQ.m@DCE.c", "cs2105", false},
		{"KQ.m@CZCE.SR", "SR2105", true},
		{"KQ.m@SHFE.ru", "rb2105", false},
		{"KQ.m@SHFE.ru", "ru", false},
		{"rb", "rb2410", true},
	}
	for _, tt := range tests {
		t.Run(tt.symbol+"/"+tt.contract, func(t *testing.T) {
			assert.Equal(t, tt.want, BelongsTo(tt.symbol, tt.contract))
		})
	}
}

func TestProduct(t *testing.T) {
	assert.Equal(t, "ru", Product("KQ.m@SHFE.ru"))
	assert.Equal(t, "SR", Product("KQ.m@CZCE.SR"))
	assert.Equal(t, "c", Product("DCE.c"))
	assert.Equal(t, "rb", Product("rb"))
}

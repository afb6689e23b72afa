package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
meta:
  profile_id: cn_futures_main
  owner: data-team
splice:
  lookback_days: 10
  symbols:
    - symbol: KQ.m@DCE.c
    - symbol: KQ.m@SHFE.ru
      offset: -10000
  overrides:
    - symbol: KQ.m@DCE.c
      date: "2021-04-12"
      contract: DCE.c2105
`

func TestParse(t *testing.T) {
	p, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "cn_futures_main", p.Meta.ProfileID)
	assert.Equal(t, 10, p.Splice.LookbackDays)
	assert.Equal(t, []string{"KQ.m@DCE.c", "KQ.m@SHFE.ru"}, p.Symbols())
	assert.Equal(t, -10000.0, p.Offset("KQ.m@SHFE.ru"))
	assert.Zero(t, p.Offset("KQ.m@DCE.c"))
	assert.Zero(t, p.Offset("untracked"))
	assert.Len(t, p.OverridesFor("KQ.m@DCE.c"), 1)
	assert.Empty(t, p.OverridesFor("KQ.m@SHFE.ru"))
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("meta:\n  profile_id: x\nsplice:\n  lookbak_days: 3\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookbak_days")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"missing profile id", "splice: {}\n", "meta.profile_id"},
		{"negative lookback", "meta: {profile_id: x}\nsplice: {lookback_days: -1}\n", "splice.lookback_days"},
		{"empty symbol", "meta: {profile_id: x}\nsplice:\n  symbols:\n    - offset: 1\n", "splice.symbols[0].symbol"},
		{"duplicate symbol", "meta: {profile_id: x}\nsplice:\n  symbols:\n    - symbol: A\n    - symbol: A\n", "splice.symbols[1].symbol"},
		{"override untracked", "meta: {profile_id: x}\nsplice:\n  overrides:\n    - {symbol: A, date: '2021-01-04', contract: DCE.c2105}\n", "splice.overrides[0].symbol"},
		{"override bad date", "meta: {profile_id: x}\nsplice:\n  symbols: [{symbol: A}]\n  overrides:\n    - {symbol: A, date: '04/01/2021', contract: DCE.c2105}\n", "splice.overrides[0].date"},
		{"override bad contract", "meta: {profile_id: x}\nsplice:\n  symbols: [{symbol: A}]\n  overrides:\n    - {symbol: A, date: '2021-01-04', contract: c2105}\n", "splice.overrides[0].contract"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			var verr ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestLoadAndHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o644))

	p, raw, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, validYAML, string(raw))

	h1, err := Hash(p)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	p.Splice.Symbols[1].Offset = 0
	h2, err := Hash(p)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadShippedProfile(t *testing.T) {
	p, _, err := Load(filepath.Join("..", "..", "config", "profile.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, p.Symbols())
	assert.Len(t, p.OverridesFor("KQ.m@DCE.c"), 3)
}

package profile

// Profile is the continuous-futures splice profile
// ⭐ SSOT: 추적 연속선물 / 오프셋 / 수동 롤 보정은 YAML에서만 정의
type Profile struct {
	Meta   Meta         `yaml:"meta" json:"meta"`
	Splice SpliceConfig `yaml:"splice" json:"splice"`
}

// Meta identifies the profile version
type Meta struct {
	ProfileID string `yaml:"profile_id" json:"profile_id"`
	Owner     string `yaml:"owner" json:"owner"`
}

// SpliceConfig lists tracked symbols and corrections
type SpliceConfig struct {
	LookbackDays int            `yaml:"lookback_days" json:"lookback_days"` // 0 = 환경설정 값 사용
	Symbols      []SymbolConfig `yaml:"symbols" json:"symbols"`
	Overrides    []RollOverride `yaml:"overrides" json:"overrides"`
}

// SymbolConfig is one tracked continuous symbol
type SymbolConfig struct {
	Symbol string  `yaml:"symbol" json:"symbol"` // 예: KQ.m@SHFE.ru
	Offset float64 `yaml:"offset" json:"offset"` // 누적 차익 전체 평행 이동 (음수 가격 방지)
}

// RollOverride forces the tracked contract of a symbol on one date
type RollOverride struct {
	Symbol   string `yaml:"symbol" json:"symbol"`
	Date     string `yaml:"date" json:"date"`         // YYYY-MM-DD
	Contract string `yaml:"contract" json:"contract"` // 예: DCE.c2105
}

// Offset returns the configured offset of symbol (0 when untracked)
func (p *Profile) Offset(symbol string) float64 {
	for _, s := range p.Splice.Symbols {
		if s.Symbol == symbol {
			return s.Offset
		}
	}
	return 0
}

// Symbols returns the tracked continuous symbols
func (p *Profile) Symbols() []string {
	out := make([]string, len(p.Splice.Symbols))
	for i, s := range p.Splice.Symbols {
		out[i] = s.Symbol
	}
	return out
}

// OverridesFor returns the overrides of one symbol
func (p *Profile) OverridesFor(symbol string) []RollOverride {
	var out []RollOverride
	for _, o := range p.Splice.Overrides {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out
}

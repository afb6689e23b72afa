package profile

import (
	"fmt"
	"strings"

	"github.com/wonny/quantsource/internal/contracts"
)

// ValidationError 검증 실패 (프로그램 중단)
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks all required constraints
func Validate(p *Profile) error {
	if p.Meta.ProfileID == "" {
		return ValidationError{"meta.profile_id", "required"}
	}
	if p.Splice.LookbackDays < 0 {
		return ValidationError{"splice.lookback_days", "must be >= 0"}
	}

	seen := make(map[string]bool, len(p.Splice.Symbols))
	for i, s := range p.Splice.Symbols {
		field := fmt.Sprintf("splice.symbols[%d].symbol", i)
		if s.Symbol == "" {
			return ValidationError{field, "required"}
		}
		if seen[s.Symbol] {
			return ValidationError{field, "duplicate " + s.Symbol}
		}
		seen[s.Symbol] = true
	}

	for i, o := range p.Splice.Overrides {
		prefix := fmt.Sprintf("splice.overrides[%d]", i)
		if !seen[o.Symbol] {
			return ValidationError{prefix + ".symbol", "not a tracked symbol: " + o.Symbol}
		}
		if _, err := contracts.ParseDate(o.Date); err != nil {
			return ValidationError{prefix + ".date", err.Error()}
		}
		if !strings.Contains(o.Contract, ".") {
			return ValidationError{prefix + ".contract", "expected EXCHANGE.code"}
		}
	}
	return nil
}

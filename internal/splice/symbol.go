package splice

import (
	"fmt"
	"strings"
)

// NormalizeContract converts an exchange-qualified contract ("DCE.c2105",
// "CZCE.SR105") into the daily-bar instrument code ("c2105", "SR2105").
// CZCE uses a three-digit expiry; the decade digit is 2 when the year digit is 0-4.
func NormalizeContract(contract string) (string, error) {
	dot := strings.Index(contract, ".")
	if dot <= 0 || dot == len(contract)-1 {
		return "", fmt.Errorf("invalid contract symbol %q (expected EXCHANGE.code)", contract)
	}
	exchange, code := contract[:dot], contract[dot+1:]
	if exchange != "CZCE" {
		return code, nil
	}

	if len(code) < 3 {
		return "", fmt.Errorf("invalid CZCE contract %q", contract)
	}
	product, expiry := code[:2], code[2:]
	decade := "1"
	if strings.ContainsRune("01234", rune(expiry[0])) {
		decade = "2"
	}
	return product + decade + expiry, nil
}

// Product extracts the product code of a continuous symbol ("KQ.m@SHFE.ru" → "ru")
func Product(symbol string) string {
	if at := strings.LastIndex(symbol, "@"); at >= 0 {
		symbol = symbol[at+1:]
	}
	if dot := strings.LastIndex(symbol, "."); dot >= 0 {
		return symbol[dot+1:]
	}
	return symbol
}

// BelongsTo reports whether contract ("c2105") is a delivery month of the
// continuous symbol's product. "cs2105" does not belong to "KQ.m@DCE.c".
func BelongsTo(symbol, contract string) bool {
	product := Product(symbol)
	if !strings.HasPrefix(contract, product) || len(contract) == len(product) {
		return false
	}
	next := contract[len(product)]
	return next >= '0' && next <= '9'
}

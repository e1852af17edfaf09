package config

import (
	"strings"
)

const (
	NegativeStockStrict     = "strict"
	NegativeStockPermissive = "permissive"
)

// ParseNegativeStockPolicies parses the NEGATIVE_STOCK_POLICY override list.
//
// Format (kinds and values are case-insensitive):
//   - NEGATIVE_STOCK_POLICY="SALE:strict,ISSUE:permissive,PRODUCTION_CONSUMPTION:strict"
//
// Unknown values are ignored so a typo falls back to the built-in default for that kind.
func ParseNegativeStockPolicies(raw string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return out
	}
	for _, part := range strings.Split(raw, ",") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		kind := strings.ToUpper(strings.TrimSpace(kv[0]))
		policy := strings.ToLower(strings.TrimSpace(kv[1]))
		if kind == "" {
			continue
		}
		if policy != NegativeStockStrict && policy != NegativeStockPermissive {
			continue
		}
		out[kind] = policy
	}
	return out
}

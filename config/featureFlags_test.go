package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNegativeStockPolicies(t *testing.T) {
	assert.Empty(t, ParseNegativeStockPolicies(""))
	assert.Empty(t, ParseNegativeStockPolicies("   "))

	got := ParseNegativeStockPolicies(" sale:Permissive , ISSUE:strict,RECEIPT:maybe,broken,:strict")
	assert.Equal(t, map[string]string{
		"SALE":  NegativeStockPermissive,
		"ISSUE": NegativeStockStrict,
	}, got)
}

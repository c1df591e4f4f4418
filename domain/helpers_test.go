package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func lvl(price, size, cumSize string) PriceLevel {
	return PriceLevel{Price: d(price), Size: d(size), CumSize: d(cumSize)}
}

// assertLevels compares by decimal value, so "1000.0" matches "1000".
func assertLevels(t *testing.T, expected, actual []PriceLevel) {
	t.Helper()

	if !assert.Len(t, actual, len(expected)) {
		return
	}
	for i := range expected {
		assert.Truef(t, expected[i].Price.Equal(actual[i].Price), "level %d price: want %s, got %s", i, expected[i].Price, actual[i].Price)
		assert.Truef(t, expected[i].Size.Equal(actual[i].Size), "level %d size: want %s, got %s", i, expected[i].Size, actual[i].Size)
		assert.Truef(t, expected[i].CumSize.Equal(actual[i].CumSize), "level %d cumSize: want %s, got %s", i, expected[i].CumSize, actual[i].CumSize)
	}
}

func assertDecimal(t *testing.T, expected string, actual decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Truef(t, d(expected).Equal(actual), "want %s, got %s %v", expected, actual, msgAndArgs)
}

func mustSymbol(t *testing.T, s string) *MarketSymbol {
	t.Helper()
	symbol, err := NewMarketSymbolFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	return symbol
}

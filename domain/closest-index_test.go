package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func prices(values ...string) []decimal.Decimal {
	result := make([]decimal.Decimal, len(values))
	for i, v := range values {
		result[i] = d(v)
	}
	return result
}

func identity(v decimal.Decimal) decimal.Decimal { return v }

func TestClosestIndex(t *testing.T) {
	ascending := prices("98", "100", "101", "103", "104", "105")
	descending := prices("105", "104", "103", "101", "100", "98")

	tests := []struct {
		name      string
		seq       []decimal.Decimal
		direction Direction
		target    string
		expected  int
	}{
		{"forward exact", ascending, Forward, "103", 3},
		{"forward between", ascending, Forward, "102", 2},
		{"forward below first", ascending, Forward, "90", 0},
		{"forward above last", ascending, Forward, "110", 5},
		{"forward first", ascending, Forward, "98", 0},
		{"reverse exact", descending, Reverse, "103", 2},
		{"reverse between picks lower neighbour", descending, Reverse, "102", 3},
		{"reverse above first", descending, Reverse, "110", 0},
		{"reverse below last", descending, Reverse, "90", 5},
		{"reverse last", descending, Reverse, "98", 5},
		{"empty forward", nil, Forward, "100", 0},
		{"empty reverse", nil, Reverse, "100", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClosestIndex(tt.seq, d(tt.target), identity, tt.direction))
		})
	}
}

func TestClosestIndex_PriceLevels(t *testing.T) {
	bids := []PriceLevel{
		lvl("40800", "1", "1"),
		lvl("40795.5", "1", "2"),
		lvl("40791", "1", "3"),
		lvl("40790.5", "1", "4"),
		lvl("40790.1", "1", "5"),
		lvl("40789", "1", "6"),
	}

	idx := ClosestIndex(bids, d("40790"), LevelPrice, Reverse)
	assert.Equal(t, 5, idx)
	assert.Len(t, bids[:idx+1], 6)

	idx = ClosestIndex(bids, d("40795.5"), LevelPrice, Reverse)
	assert.Equal(t, 1, idx)
}

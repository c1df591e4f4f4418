package domain

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Direction tells ClosestIndex how the sequence is ordered.
type Direction int

const (
	// Forward sequences ascend (asks).
	Forward Direction = iota
	// Reverse sequences descend (bids).
	Reverse
)

// ClosestIndex binary searches seq for target and returns the index of the
// element whose key equals target or, failing that, of the floor neighbour:
// the largest key below target. When no key is below target the result clamps
// to the end holding the smallest key. An empty sequence yields 0.
//
// Callers restrict a side to a price window with seq[:ClosestIndex(...)+1].
func ClosestIndex[T any](seq []T, target decimal.Decimal, key func(T) decimal.Decimal, direction Direction) int {
	n := len(seq)
	if n == 0 {
		return 0
	}

	if direction == Reverse {
		i := sort.Search(n, func(i int) bool {
			return key(seq[i]).LessThanOrEqual(target)
		})
		if i == n {
			return n - 1
		}
		return i
	}

	i := sort.Search(n, func(i int) bool {
		return key(seq[i]).GreaterThan(target)
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// LevelPrice is the ClosestIndex key for price levels.
func LevelPrice(level PriceLevel) decimal.Decimal {
	return level.Price
}

package domain

import (
	"github.com/shopspring/decimal"
)

type AggregateResult struct {
	Levels []PriceLevel
	// MaxSize is the largest raw level size seen, not the largest bucket.
	MaxSize decimal.Decimal
}

// Aggregate collapses side-ordered levels into tickSize buckets in one pass.
// Each bucket carries the summed size of the raw levels rounding into it and
// the running cumulative size of the raw input. The pass stops as soon as
// maxLevels buckets exist (0 means no cap), so the last bucket holds only the
// raw level that opened it.
func Aggregate(levels []PriceLevel, maxLevels int, tickSize decimal.Decimal, roundFn RoundFunc) AggregateResult {
	if len(levels) == 0 {
		return AggregateResult{Levels: []PriceLevel{}, MaxSize: decimal.Zero}
	}

	capacity := len(levels)
	if maxLevels > 0 && maxLevels < capacity {
		capacity = maxLevels
	}

	buckets := make([]PriceLevel, 0, capacity)
	cumSize := decimal.Zero
	maxSize := decimal.Zero

	for _, level := range levels {
		price := roundFn(level.Price, tickSize)
		cumSize = cumSize.Add(level.Size)
		n := len(buckets)

		if n > 0 && buckets[n-1].Price.Equal(price) {
			buckets[n-1].Size = buckets[n-1].Size.Add(level.Size)
			buckets[n-1].CumSize = cumSize
		} else {
			buckets = append(buckets, PriceLevel{
				Price:   price,
				Size:    level.Size,
				CumSize: cumSize,
			})
		}

		if level.Size.GreaterThan(maxSize) {
			maxSize = level.Size
		}

		if maxLevels > 0 && len(buckets) == maxLevels {
			break
		}
	}

	return AggregateResult{Levels: buckets, MaxSize: maxSize}
}

// AggregateBook builds the display book for one tick size. At the base tick
// (or with no tick at all) the sides are only truncated to maxLevels.
// Otherwise bids are floored and asks ceiled, so buckets of the two sides
// never meet across the spread.
func AggregateBook(view *DepthView, baseTickSize, tickSize decimal.Decimal, maxLevels int) (*DepthView, error) {
	if tickSize.IsZero() || tickSize.Equal(baseTickSize) {
		bids := limitDepth(view.Bids, maxLevels)
		asks := limitDepth(view.Asks, maxLevels)
		return &DepthView{
			Bids:           bids,
			Asks:           asks,
			MaxBidSize:     maxLevelSize(bids),
			MaxAskSize:     maxLevelSize(asks),
			LastUpdateID:   view.LastUpdateID,
			LastUpdateTime: view.LastUpdateTime,
		}, nil
	}

	if err := ValidateTickSize(tickSize); err != nil {
		return nil, err
	}

	bids := Aggregate(view.Bids, maxLevels, tickSize, FloorToTick)
	asks := Aggregate(view.Asks, maxLevels, tickSize, CeilToTick)

	return &DepthView{
		Bids:           bids.Levels,
		Asks:           asks.Levels,
		MaxBidSize:     bids.MaxSize,
		MaxAskSize:     asks.MaxSize,
		LastUpdateID:   view.LastUpdateID,
		LastUpdateTime: view.LastUpdateTime,
	}, nil
}

func limitDepth(levels []PriceLevel, limit int) []PriceLevel {
	if limit > 0 && len(levels) > limit {
		return levels[:limit]
	}
	return levels
}

func maxLevelSize(levels []PriceLevel) decimal.Decimal {
	maxSize := decimal.Zero
	for _, level := range levels {
		if level.Size.GreaterThan(maxSize) {
			maxSize = level.Size
		}
	}
	return maxSize
}

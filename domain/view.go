package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type PriceLevel struct {
	Price   decimal.Decimal
	Size    decimal.Decimal
	CumSize decimal.Decimal
}

// DepthView is a consistent, render-ready copy of the book.
type DepthView struct {
	Bids         []PriceLevel
	Asks         []PriceLevel
	MaxBidSize   decimal.Decimal
	MaxAskSize   decimal.Decimal
	LastUpdateID uint64

	// LastUpdateTime is when the book last changed.
	LastUpdateTime time.Time
}

// AssembleLevels lists a side best to worst with running cumulative sizes
// and returns the largest single level size alongside.
func AssembleLevels(m *BookMap) ([]PriceLevel, decimal.Decimal) {
	levels := make([]PriceLevel, 0, m.Len())
	cumSize := decimal.Zero
	maxSize := decimal.Zero

	m.Each(func(price, size decimal.Decimal) bool {
		cumSize = cumSize.Add(size)
		if size.GreaterThan(maxSize) {
			maxSize = size
		}
		levels = append(levels, PriceLevel{Price: price, Size: size, CumSize: cumSize})
		return true
	})

	return levels, maxSize
}

// MidPrice falls back to the side that exists when the other one is empty.
func MidPrice(bestBid, bestAsk decimal.Decimal) decimal.Decimal {
	if bestBid.IsZero() {
		return bestAsk
	}
	if bestAsk.IsZero() {
		return bestBid
	}
	return bestBid.Add(bestAsk).Div(two)
}

func (v *DepthView) MidPrice() decimal.Decimal {
	bestBid, bestAsk := decimal.Zero, decimal.Zero
	if len(v.Bids) > 0 {
		bestBid = v.Bids[0].Price
	}
	if len(v.Asks) > 0 {
		bestAsk = v.Asks[0].Price
	}
	return MidPrice(bestBid, bestAsk)
}

// WithinRange keeps the levels priced within percent of the mid price on
// either side. The boundary level found by ClosestIndex is kept, so each side
// reaches the edge of the window. A non-positive percent keeps everything.
func (v *DepthView) WithinRange(percent decimal.Decimal) *DepthView {
	if percent.Sign() <= 0 {
		return v
	}

	mid := v.MidPrice()
	fromMid := mid.Mul(percent).Div(hundred)
	startPrice := mid.Sub(fromMid)
	endPrice := mid.Add(fromMid)

	bids := v.Bids
	if len(bids) > 0 {
		bids = bids[:ClosestIndex(bids, startPrice, LevelPrice, Reverse)+1]
	}
	asks := v.Asks
	if len(asks) > 0 {
		asks = asks[:ClosestIndex(asks, endPrice, LevelPrice, Forward)+1]
	}

	return &DepthView{
		Bids:           bids,
		Asks:           asks,
		MaxBidSize:     maxLevelSize(bids),
		MaxAskSize:     maxLevelSize(asks),
		LastUpdateID:   v.LastUpdateID,
		LastUpdateTime: v.LastUpdateTime,
	}
}

// MaxCumSize is the deepest cumulative size over both sides.
func (v *DepthView) MaxCumSize() decimal.Decimal {
	deepest := decimal.Zero
	if n := len(v.Bids); n > 0 {
		deepest = v.Bids[n-1].CumSize
	}
	if n := len(v.Asks); n > 0 && v.Asks[n-1].CumSize.GreaterThan(deepest) {
		deepest = v.Asks[n-1].CumSize
	}
	return deepest
}

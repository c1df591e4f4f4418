package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssembleLevels(t *testing.T) {
	bids := NewBookMap(Bid)
	bids.Set(d("99"), d("2"))
	bids.Set(d("100"), d("1"))
	bids.Set(d("98"), d("4"))

	levels, maxSize := AssembleLevels(bids)

	assertLevels(t, []PriceLevel{
		lvl("100", "1", "1"),
		lvl("99", "2", "3"),
		lvl("98", "4", "7"),
	}, levels)
	assertDecimal(t, "4", maxSize)

	asks := NewBookMap(Ask)
	asks.Set(d("102"), d("3"))
	asks.Set(d("101"), d("1"))

	levels, maxSize = AssembleLevels(asks)

	assertLevels(t, []PriceLevel{
		lvl("101", "1", "1"),
		lvl("102", "3", "4"),
	}, levels)
	assertDecimal(t, "3", maxSize)
}

func TestMidPrice(t *testing.T) {
	assertDecimal(t, "100.5", MidPrice(d("100"), d("101")))
	assertDecimal(t, "101", MidPrice(d("0"), d("101")))
	assertDecimal(t, "100", MidPrice(d("100"), d("0")))
	assertDecimal(t, "0", (&DepthView{}).MidPrice())
}

func TestDepthView_WithinRange(t *testing.T) {
	view := &DepthView{
		Bids: []PriceLevel{
			lvl("100", "1", "1"),
			lvl("99", "5", "6"),
			lvl("98", "2", "8"),
			lvl("97", "9", "17"),
			lvl("95", "1", "18"),
		},
		Asks: []PriceLevel{
			lvl("101", "1", "1"),
			lvl("102", "3", "4"),
			lvl("104", "8", "12"),
			lvl("110", "1", "13"),
		},
		MaxBidSize:   d("9"),
		MaxAskSize:   d("8"),
		LastUpdateID: 7,
	}

	// mid 100.5, window [98.49, 102.51]
	out := view.WithinRange(d("2"))

	assertLevels(t, view.Bids[:3], out.Bids)
	assertLevels(t, view.Asks[:2], out.Asks)
	assertDecimal(t, "5", out.MaxBidSize)
	assertDecimal(t, "3", out.MaxAskSize)
	assert.Equal(t, uint64(7), out.LastUpdateID)

	assert.Same(t, view, view.WithinRange(d("0")))
}

func TestDepthView_WithinRange_EmptySide(t *testing.T) {
	view := &DepthView{
		Asks: []PriceLevel{lvl("101", "1", "1"), lvl("150", "1", "2")},
	}

	out := view.WithinRange(d("10"))

	assert.Empty(t, out.Bids)
	assertLevels(t, view.Asks[:1], out.Asks)
}

func TestDepthView_MaxCumSize(t *testing.T) {
	view := &DepthView{
		Bids: []PriceLevel{lvl("100", "1", "1"), lvl("99", "5", "6")},
		Asks: []PriceLevel{lvl("101", "4", "4"), lvl("102", "3", "7")},
	}
	assertDecimal(t, "7", view.MaxCumSize())
	assertDecimal(t, "0", (&DepthView{}).MaxCumSize())
}

package domain

import (
	"github.com/emirpasic/gods/maps/treemap"
	"github.com/shopspring/decimal"
)

// Side of the book. Bids are kept best (highest) first, asks best (lowest) first.
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "unknown"
	}
}

// BookMap is one side of the book: price -> size, ordered by price.
// Keys compare by decimal value, so "10.30" and "10.3" are the same level.
// Zero sizes are never stored.
type BookMap struct {
	side Side
	tree *treemap.Map
}

func NewBookMap(side Side) *BookMap {
	return &BookMap{
		side: side,
		tree: treemap.NewWith(decimalComparator),
	}
}

func decimalComparator(a, b interface{}) int {
	return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
}

// Set upserts a level, or removes it when size is zero.
func (m *BookMap) Set(price, size decimal.Decimal) {
	if size.IsZero() {
		m.tree.Remove(price)
		return
	}
	m.tree.Put(price, size)
}

func (m *BookMap) Len() int {
	return m.tree.Size()
}

func (m *BookMap) Clear() {
	m.tree.Clear()
}

// Each walks the levels best to worst until fn returns false.
func (m *BookMap) Each(fn func(price, size decimal.Decimal) bool) {
	it := m.tree.Iterator()
	if m.side == Bid {
		it.End()
		for it.Prev() {
			if !fn(it.Key().(decimal.Decimal), it.Value().(decimal.Decimal)) {
				return
			}
		}
		return
	}

	for it.Next() {
		if !fn(it.Key().(decimal.Decimal), it.Value().(decimal.Decimal)) {
			return
		}
	}
}

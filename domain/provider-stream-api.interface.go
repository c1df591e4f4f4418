package domain

import "context"

type ProviderSyncAPI interface {
	OrderBookSnapshot(ctx context.Context, symbol *MarketSymbol, limit int) (*OrderBookSnapshot, error)
}

type ProviderStreamAPI interface {
	DepthDiffStream(marketSymbol *MarketSymbol) (*Subscription[*OrderBookUpdate], error)
}

// Subscription is a live feed. Stream is closed when the transport drops or
// after Unsubscribe.
type Subscription[T any] struct {
	Stream      <-chan T
	Unsubscribe func()
	Topic       string
}

package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spooky-finn/depthbook/domain"
	"github.com/spooky-finn/depthbook/infrastructure/logger"
	"go.uber.org/zap"
)

var log = logger.Named("depth-view-usecase")

var ErrOrderBookNotReady = errors.New("order book is not ready")

// DepthQuery describes the view a client wants. A zero TickSize, or one equal
// to BaseTickSize, returns raw levels; a zero RangePercent keeps every level.
type DepthQuery struct {
	BaseTickSize decimal.Decimal
	TickSize     decimal.Decimal
	RangePercent decimal.Decimal
	MaxLevels    int
}

// BookMetrics extends the maintainer metrics with the open book gauge.
type BookMetrics interface {
	domain.MaintainerMetrics
	OrderBookOpened(provider string)
	OrderBookClosed(provider string)
}

type noopBookMetrics struct{}

func (noopBookMetrics) UpdateApplied(string)   {}
func (noopBookMetrics) Resync(string)          {}
func (noopBookMetrics) OrderBookOpened(string) {}
func (noopBookMetrics) OrderBookClosed(string) {}

type DepthViewUseCase struct {
	connManager domain.ConnManager
	storage     *domain.OrderBookStorage
	opts        domain.MaintainerOptions
	metrics     BookMetrics

	ctx    context.Context
	cancel context.CancelFunc
}

func NewDepthViewUseCase(
	connManager domain.ConnManager,
	opts domain.MaintainerOptions,
	metrics BookMetrics,
) *DepthViewUseCase {
	if metrics == nil {
		metrics = noopBookMetrics{}
	}
	opts.Metrics = metrics

	ctx, cancel := context.WithCancel(context.Background())
	return &DepthViewUseCase{
		connManager: connManager,
		storage:     domain.NewOrderBookStorage(),
		opts:        opts,
		metrics:     metrics,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Track starts maintaining the book unless it is already maintained.
func (u *DepthViewUseCase) Track(provider string, symbol *domain.MarketSymbol) (*domain.OrderbookMaintainer, error) {
	if m, err := u.storage.Get(provider, symbol); err == nil {
		return m, nil
	}

	streamAPI, err := u.connManager.StreamAPI(provider)
	if err != nil {
		return nil, err
	}
	syncAPI, err := u.connManager.SyncAPI(provider)
	if err != nil {
		return nil, err
	}

	m, created := u.storage.GetOrAdd(provider, symbol, func() *domain.OrderbookMaintainer {
		return domain.NewOrderBookMaintainer(provider, symbol, streamAPI, syncAPI, u.opts)
	})
	if created {
		m.Start(u.ctx)
		u.metrics.OrderBookOpened(provider)
		go u.forgetWhenDone(provider, symbol, m)

		log.Info("orderbook is added to the runtime storage",
			zap.String("provider", provider),
			zap.String("symbol", symbol.String()),
			zap.Int("providerBooks", u.storage.OrderBookCount(provider)))
	}

	return m, nil
}

// forgetWhenDone drops a stopped maintainer so the next request starts over.
func (u *DepthViewUseCase) forgetWhenDone(provider string, symbol *domain.MarketSymbol, m *domain.OrderbookMaintainer) {
	<-m.Done()

	if current, err := u.storage.Get(provider, symbol); err == nil && current == m {
		u.storage.Remove(provider, symbol)
	}
	u.metrics.OrderBookClosed(provider)

	if err := m.Err(); err != nil {
		log.Warn("orderbook maintenance stopped",
			zap.String("provider", provider), zap.String("symbol", symbol.String()), zap.Error(err))
	}
}

// GetDepthView returns the range-limited, tick-aggregated book. The first
// request for a market starts its maintenance and reports ErrOrderBookNotReady
// until the book is synced.
func (u *DepthViewUseCase) GetDepthView(
	provider string, symbol *domain.MarketSymbol, query DepthQuery,
) (*domain.DepthView, error) {
	m, err := u.Track(provider, symbol)
	if err != nil {
		return nil, err
	}

	view, err := m.OrderBook().View()
	if errors.Is(err, domain.ErrOrderBookNotSynced) {
		return nil, fmt.Errorf("%w: %s on %s", ErrOrderBookNotReady, symbol, provider)
	}
	if err != nil {
		return nil, err
	}

	return domain.AggregateBook(view.WithinRange(query.RangePercent), query.BaseTickSize, query.TickSize, query.MaxLevels)
}

// GetOrderBookSnapshot returns the top of the local book, or the provider's
// snapshot while the local book is still syncing.
func (u *DepthViewUseCase) GetOrderBookSnapshot(
	ctx context.Context, provider string, symbol *domain.MarketSymbol, limit int,
) (*domain.OrderBookSnapshot, error) {
	m, err := u.Track(provider, symbol)
	if err != nil {
		return nil, err
	}

	snapshot, err := m.OrderBook().TakeSnapshot(limit)
	if err == nil {
		return snapshot, nil
	}

	log.Debug("orderbook is initing, provider's snapshot returns",
		zap.String("provider", provider), zap.String("symbol", symbol.String()))

	syncAPI, err := u.connManager.SyncAPI(provider)
	if err != nil {
		return nil, err
	}
	return syncAPI.OrderBookSnapshot(ctx, symbol, limit)
}

// Close stops every maintainer.
func (u *DepthViewUseCase) Close() {
	u.cancel()
	for _, m := range u.storage.All() {
		m.Stop()
	}
}

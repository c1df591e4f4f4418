package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/spooky-finn/depthbook/infrastructure/logger"
	"go.uber.org/zap"
)

var (
	ErrResyncLimitReached = errors.New("out of sequence resync limit reached")
	errStreamClosed       = errors.New("depth update stream closed")
)

const (
	defaultSnapshotLimit      = 1000
	defaultOutOfSequenceLimit = 10
	defaultRetryDelay         = time.Second
)

// MaintainerMetrics receives the maintainer's counters. Implementations must
// be safe for concurrent use.
type MaintainerMetrics interface {
	UpdateApplied(provider string)
	Resync(provider string)
}

type noopMetrics struct{}

func (noopMetrics) UpdateApplied(string) {}
func (noopMetrics) Resync(string)        {}

type MaintainerOptions struct {
	// SnapshotLimit is the depth requested from the sync api.
	SnapshotLimit int
	// OutOfSequenceLimit caps consecutive resyncs before the maintainer gives up.
	OutOfSequenceLimit int
	RetryDelay         time.Duration
	Validator          IDepthUpdateValidator
	Metrics            MaintainerMetrics
	Logger             *zap.Logger
}

func (o MaintainerOptions) withDefaults() MaintainerOptions {
	if o.SnapshotLimit <= 0 {
		o.SnapshotLimit = defaultSnapshotLimit
	}
	if o.OutOfSequenceLimit <= 0 {
		o.OutOfSequenceLimit = defaultOutOfSequenceLimit
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	if o.Metrics == nil {
		o.Metrics = noopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = logger.Named("orderbook")
	}
	return o
}

// OrderbookMaintainer keeps one OrderBook in sync with a provider: it buffers
// the delta stream, loads a snapshot once the first delta is queued, replays
// the buffer and resyncs on gaps.
type OrderbookMaintainer struct {
	orderBook *OrderBook
	syncAPI   ProviderSyncAPI
	streamAPI ProviderStreamAPI
	opts      MaintainerOptions
	log       *zap.Logger

	depthUpdateQueue deque.Deque[*OrderBookUpdate]
	mu               sync.Mutex
	queued           chan struct{}
	changes          chan struct{}

	OutOfSequenceErrCount int

	cancel  context.CancelFunc
	done    chan struct{}
	errMu   sync.Mutex
	lastErr error
}

func NewOrderBookMaintainer(
	provider string,
	symbol *MarketSymbol,
	stream ProviderStreamAPI,
	syncAPI ProviderSyncAPI,
	opts MaintainerOptions,
) *OrderbookMaintainer {
	opts = opts.withDefaults()

	return &OrderbookMaintainer{
		orderBook: NewOrderBook(provider, symbol, opts.Validator),
		syncAPI:   syncAPI,
		streamAPI: stream,
		opts:      opts,
		log: opts.Logger.With(
			zap.String("provider", provider),
			zap.String("symbol", symbol.String()),
		),
		queued:  make(chan struct{}, 1),
		changes: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (m *OrderbookMaintainer) OrderBook() *OrderBook {
	return m.orderBook
}

// Changes fires after updates were applied. Notifications are conflated, so a
// slow reader sees one signal for any number of updates.
func (m *OrderbookMaintainer) Changes() <-chan struct{} {
	return m.changes
}

// Done is closed once the maintainer stopped for good.
func (m *OrderbookMaintainer) Done() <-chan struct{} {
	return m.done
}

// Err returns the error that stopped the maintainer, if any.
func (m *OrderbookMaintainer) Err() error {
	m.errMu.Lock()
	defer m.errMu.Unlock()

	return m.lastErr
}

func (m *OrderbookMaintainer) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	go m.run(ctx)
}

func (m *OrderbookMaintainer) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *OrderbookMaintainer) run(ctx context.Context) {
	defer close(m.done)

	for {
		err := m.maintain(ctx)
		if ctx.Err() != nil {
			return
		}

		if errors.Is(err, ErrResyncLimitReached) {
			m.log.Error("orderbook maintainer stopped", zap.Error(err))
			m.setErr(err)
			m.orderBook.Reset()
			return
		}

		m.log.Warn("restarting depth update stream", zap.Error(err))
		m.orderBook.Reset()
		m.clearQueue()

		if !sleepCtx(ctx, m.opts.RetryDelay) {
			return
		}
	}
}

// maintain runs one subscription until the stream closes or the context ends.
func (m *OrderbookMaintainer) maintain(ctx context.Context) error {
	subscription, err := m.streamAPI.DepthDiffStream(m.orderBook.Symbol)
	if err != nil {
		return fmt.Errorf("subscribe to depth update stream: %w", err)
	}
	defer subscription.Unsubscribe()

	m.log.Debug("subscribed to depth update stream", zap.String("topic", subscription.Topic))

	stop := make(chan struct{})
	defer close(stop)
	streamClosed := m.runStreamSubscriber(subscription, stop)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-streamClosed:
			// updates read before the close are still worth applying
			if err := m.drainQueue(ctx); err != nil {
				return err
			}
			return errStreamClosed
		case <-m.queued:
			if err := m.drainQueue(ctx); err != nil {
				return err
			}
		}
	}
}

func (m *OrderbookMaintainer) runStreamSubscriber(subscription *Subscription[*OrderBookUpdate], stop <-chan struct{}) <-chan struct{} {
	closed := make(chan struct{})

	go func() {
		defer close(closed)
		for {
			select {
			case <-stop:
				return
			case update, ok := <-subscription.Stream:
				if !ok {
					return
				}
				m.mu.Lock()
				m.depthUpdateQueue.PushBack(update)
				m.mu.Unlock()

				select {
				case m.queued <- struct{}{}:
				default:
				}
			}
		}
	}()

	return closed
}

func (m *OrderbookMaintainer) drainQueue(ctx context.Context) error {
	applied := 0
	defer func() {
		if applied > 0 {
			m.notifyChanged()
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if m.orderBook.State() == Unsynced {
			if m.queueLen() == 0 {
				return nil
			}
			if err := m.loadSnapshot(ctx); err != nil {
				return err
			}
		}

		update, ok := m.popFront()
		if !ok {
			return nil
		}

		result, err := m.orderBook.ApplyUpdate(update)
		if err != nil {
			m.log.Warn("dropped malformed depth update",
				zap.Uint64("firstUpdateId", update.FirstUpdateID),
				zap.Uint64("lastUpdateId", update.LastUpdateID),
				zap.Error(err))
			continue
		}

		switch result {
		case UpdateApplied:
			applied++
			m.OutOfSequenceErrCount = 0
			m.opts.Metrics.UpdateApplied(m.orderBook.Provider)
		case UpdateOutdated:
		case UpdateSkipped:
			m.pushFront(update)
			return nil
		case UpdateResyncRequired:
			m.OutOfSequenceErrCount++
			m.opts.Metrics.Resync(m.orderBook.Provider)
			m.log.Info("order book out of sequence, resyncing",
				zap.Uint64("firstUpdateId", update.FirstUpdateID),
				zap.Uint64("lastUpdateId", update.LastUpdateID),
				zap.Int("attempt", m.OutOfSequenceErrCount))

			if m.OutOfSequenceErrCount > m.opts.OutOfSequenceLimit {
				return ErrResyncLimitReached
			}
			// the update that exposed the gap may still follow the next snapshot
			m.pushFront(update)

			if m.OutOfSequenceErrCount > 1 && !sleepCtx(ctx, m.opts.RetryDelay) {
				return ctx.Err()
			}
		}
	}
}

func (m *OrderbookMaintainer) loadSnapshot(ctx context.Context) error {
	snapshot, err := m.syncAPI.OrderBookSnapshot(ctx, m.orderBook.Symbol, m.opts.SnapshotLimit)
	if err != nil {
		return fmt.Errorf("load order book snapshot: %w", err)
	}

	if err := m.orderBook.ApplySnapshot(snapshot); err != nil {
		return fmt.Errorf("apply order book snapshot: %w", err)
	}

	m.log.Debug("order book snapshot applied", zap.Uint64("lastUpdateId", snapshot.LastUpdateId))
	return nil
}

func (m *OrderbookMaintainer) notifyChanged() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

func (m *OrderbookMaintainer) queueLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.depthUpdateQueue.Len()
}

func (m *OrderbookMaintainer) popFront() (*OrderBookUpdate, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.depthUpdateQueue.Len() == 0 {
		return nil, false
	}
	return m.depthUpdateQueue.PopFront(), true
}

func (m *OrderbookMaintainer) pushFront(update *OrderBookUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.depthUpdateQueue.PushFront(update)
}

func (m *OrderbookMaintainer) clearQueue() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.depthUpdateQueue.Clear()
}

func (m *OrderbookMaintainer) setErr(err error) {
	m.errMu.Lock()
	defer m.errMu.Unlock()

	m.lastErr = err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

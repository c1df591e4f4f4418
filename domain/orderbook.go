package domain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type OrderBookSource string

const (
	OrderBookSource_Provider       OrderBookSource = "Provider"
	OrderBookSource_LocalOrderBook OrderBookSource = "LocalOrderBook"
)

var (
	ErrOrderBookNotSynced = errors.New("order book is not synced")
	ErrMalformedInput     = errors.New("malformed order book input")
)

// SyncState tracks how far the book is aligned with the delta stream.
type SyncState int

const (
	// Unsynced books hold no data and wait for a snapshot.
	Unsynced SyncState = iota
	// Syncing books hold a snapshot but no delta has been aligned with it yet.
	Syncing
	// Synced books have applied an unbroken chain of deltas since the snapshot.
	Synced
)

func (s SyncState) String() string {
	switch s {
	case Unsynced:
		return "unsynced"
	case Syncing:
		return "syncing"
	case Synced:
		return "synced"
	default:
		return "unknown"
	}
}

// UpdateResult says what ApplyUpdate did with a delta.
type UpdateResult int

const (
	UpdateApplied UpdateResult = iota
	// UpdateSkipped: no snapshot yet, the caller keeps the update buffered.
	UpdateSkipped
	// UpdateOutdated: the update is already covered by the snapshot.
	UpdateOutdated
	// UpdateResyncRequired: the chain broke, the book was reset and needs a new snapshot.
	UpdateResyncRequired
)

func (r UpdateResult) String() string {
	switch r {
	case UpdateApplied:
		return "applied"
	case UpdateSkipped:
		return "skipped"
	case UpdateOutdated:
		return "outdated"
	case UpdateResyncRequired:
		return "resync required"
	default:
		return "unknown"
	}
}

type OrderBookSnapshot struct {
	Source       OrderBookSource `json:"source"`
	LastUpdateId uint64          `json:"lastUpdateId"`
	Bids         [][]string      `json:"bids"`
	Asks         [][]string      `json:"asks"`
}

// OrderBookUpdate is one delta covering update ids [FirstUpdateID, LastUpdateID].
type OrderBookUpdate struct {
	Symbol        *MarketSymbol
	FirstUpdateID uint64
	LastUpdateID  uint64
	Bids          [][]string
	Asks          [][]string
}

func NewOrderBookUpdate(bids [][]string, asks [][]string, firstUpdateID, lastUpdateID uint64, symbol *MarketSymbol) *OrderBookUpdate {
	return &OrderBookUpdate{
		Symbol:        symbol,
		FirstUpdateID: firstUpdateID,
		LastUpdateID:  lastUpdateID,
		Bids:          bids,
		Asks:          asks,
	}
}

// OrderBook reconciles a snapshot and a delta stream for one symbol.
// All methods are safe to call from several goroutines, but updates must be
// fed in arrival order by a single writer.
type OrderBook struct {
	Provider string
	Symbol   *MarketSymbol

	bids           *BookMap
	asks           *BookMap
	lastUpdateID   uint64
	lastUpdateTime time.Time
	state          SyncState
	validator      IDepthUpdateValidator

	updateMx sync.RWMutex
}

func NewOrderBook(provider string, symbol *MarketSymbol, validator IDepthUpdateValidator) *OrderBook {
	if validator == nil {
		validator = &SequenceValidator{}
	}

	return &OrderBook{
		Provider:  provider,
		Symbol:    symbol,
		bids:      NewBookMap(Bid),
		asks:      NewBookMap(Ask),
		state:     Unsynced,
		validator: validator,
	}
}

// ApplySnapshot replaces the whole book. The book stays Syncing until a delta
// proves the stream lines up with the snapshot.
func (ob *OrderBook) ApplySnapshot(snapshot *OrderBookSnapshot) error {
	bids, err := parsePriceLevels(snapshot.Bids)
	if err != nil {
		return fmt.Errorf("snapshot bids: %w", err)
	}
	asks, err := parsePriceLevels(snapshot.Asks)
	if err != nil {
		return fmt.Errorf("snapshot asks: %w", err)
	}

	ob.updateMx.Lock()
	defer ob.updateMx.Unlock()

	ob.bids.Clear()
	ob.asks.Clear()
	ob.updateDepth(ob.bids, bids)
	ob.updateDepth(ob.asks, asks)

	ob.lastUpdateID = snapshot.LastUpdateId
	ob.lastUpdateTime = time.Now()
	ob.state = Syncing

	return nil
}

// ApplyUpdate validates the update against the current sequence and applies it.
// Protocol conditions come back as an UpdateResult; only malformed input is an
// error, and a malformed update leaves the book untouched.
func (ob *OrderBook) ApplyUpdate(update *OrderBookUpdate) (UpdateResult, error) {
	if update.FirstUpdateID > update.LastUpdateID {
		return UpdateSkipped, fmt.Errorf("%w: update range [%d, %d] is inverted",
			ErrMalformedInput, update.FirstUpdateID, update.LastUpdateID)
	}

	updateBids, err := parsePriceLevels(update.Bids)
	if err != nil {
		return UpdateSkipped, fmt.Errorf("update bids: %w", err)
	}
	updateAsks, err := parsePriceLevels(update.Asks)
	if err != nil {
		return UpdateSkipped, fmt.Errorf("update asks: %w", err)
	}

	ob.updateMx.Lock()
	defer ob.updateMx.Unlock()

	if ob.state == Unsynced {
		return UpdateSkipped, nil
	}

	err = ob.validator.IsValidUpd(update, ob.lastUpdateID, ob.state == Synced)
	switch {
	case errors.Is(err, ErrOrderBookUpdateIsOutdated):
		return UpdateOutdated, nil
	case errors.Is(err, ErrOrderBookUpdateIsOutOfSequence):
		ob.reset()
		return UpdateResyncRequired, nil
	case err != nil:
		return UpdateSkipped, err
	}

	ob.updateDepth(ob.bids, updateBids)
	ob.updateDepth(ob.asks, updateAsks)

	ob.lastUpdateID = update.LastUpdateID
	ob.lastUpdateTime = time.Now()
	ob.state = Synced

	return UpdateApplied, nil
}

// Reset drops all levels, e.g. after the transport reconnected.
func (ob *OrderBook) Reset() {
	ob.updateMx.Lock()
	defer ob.updateMx.Unlock()

	ob.reset()
}

func (ob *OrderBook) reset() {
	ob.bids.Clear()
	ob.asks.Clear()
	ob.lastUpdateID = 0
	ob.state = Unsynced
}

func (ob *OrderBook) State() SyncState {
	ob.updateMx.RLock()
	defer ob.updateMx.RUnlock()

	return ob.state
}

func (ob *OrderBook) LastUpdateID() uint64 {
	ob.updateMx.RLock()
	defer ob.updateMx.RUnlock()

	return ob.lastUpdateID
}

// View assembles both sides with cumulative sizes. Until the book is Synced
// it returns ErrOrderBookNotSynced, which is not the same as an empty book.
func (ob *OrderBook) View() (*DepthView, error) {
	ob.updateMx.RLock()
	defer ob.updateMx.RUnlock()

	if ob.state != Synced {
		return nil, ErrOrderBookNotSynced
	}

	bids, maxBidSize := AssembleLevels(ob.bids)
	asks, maxAskSize := AssembleLevels(ob.asks)

	return &DepthView{
		Bids:           bids,
		Asks:           asks,
		MaxBidSize:     maxBidSize,
		MaxAskSize:     maxAskSize,
		LastUpdateID:   ob.lastUpdateID,
		LastUpdateTime: ob.lastUpdateTime,
	}, nil
}

// TakeSnapshot serialises the top limit levels of each side back to text.
func (ob *OrderBook) TakeSnapshot(limit int) (*OrderBookSnapshot, error) {
	ob.updateMx.RLock()
	defer ob.updateMx.RUnlock()

	if ob.state != Synced {
		return nil, ErrOrderBookNotSynced
	}

	return &OrderBookSnapshot{
		Source:       OrderBookSource_LocalOrderBook,
		LastUpdateId: ob.lastUpdateID,
		Bids:         serializePriceLevel(ob.bids, limit),
		Asks:         serializePriceLevel(ob.asks, limit),
	}, nil
}

type levelChange struct {
	price decimal.Decimal
	size  decimal.Decimal
}

func (ob *OrderBook) updateDepth(depth *BookMap, changes []levelChange) {
	for _, change := range changes {
		depth.Set(change.price, change.size)
	}
}

// parsePriceLevels parses [price, size, ...] text pairs. Extra columns, like
// KuCoin's per-change sequence, are ignored.
func parsePriceLevels(depth [][]string) ([]levelChange, error) {
	result := make([]levelChange, len(depth))
	for i, level := range depth {
		if len(level) < 2 {
			return nil, fmt.Errorf("%w: level %d has %d fields", ErrMalformedInput, i, len(level))
		}

		price, err := decimal.NewFromString(level[0])
		if err != nil {
			return nil, fmt.Errorf("%w: price %q", ErrMalformedInput, level[0])
		}
		if price.Sign() <= 0 {
			return nil, fmt.Errorf("%w: non-positive price %q", ErrMalformedInput, level[0])
		}

		size, err := decimal.NewFromString(level[1])
		if err != nil {
			return nil, fmt.Errorf("%w: size %q", ErrMalformedInput, level[1])
		}
		if size.Sign() < 0 {
			return nil, fmt.Errorf("%w: negative size %q", ErrMalformedInput, level[1])
		}

		result[i] = levelChange{price: price, size: size}
	}

	return result, nil
}

func serializePriceLevel(depth *BookMap, limit int) [][]string {
	capacity := depth.Len()
	if limit > 0 && limit < capacity {
		capacity = limit
	}

	result := make([][]string, 0, capacity)
	depth.Each(func(price, size decimal.Decimal) bool {
		if limit > 0 && len(result) == limit {
			return false
		}
		result = append(result, []string{price.String(), size.String()})
		return true
	})

	return result
}

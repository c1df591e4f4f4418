package domain

import (
	"errors"
	"sync"
)

var ErrOrderBookNotFound = errors.New("order book not found")
var ErrProviderNotFound = errors.New("provider not found")

// OrderBookStorage is the runtime registry of maintained books,
// keyed by provider and then by symbol.
type OrderBookStorage struct {
	storage map[string]map[string]*OrderbookMaintainer
	mu      sync.RWMutex
}

func NewOrderBookStorage() *OrderBookStorage {
	return &OrderBookStorage{
		storage: make(map[string]map[string]*OrderbookMaintainer),
	}
}

// GetOrAdd returns the registered maintainer or stores the one built by create.
// The bool is true when create was called.
func (o *OrderBookStorage) GetOrAdd(
	provider string, symbol *MarketSymbol, create func() *OrderbookMaintainer,
) (*OrderbookMaintainer, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.storage[provider]; !ok {
		o.storage[provider] = make(map[string]*OrderbookMaintainer)
	}

	if m, ok := o.storage[provider][symbol.String()]; ok {
		return m, false
	}

	m := create()
	o.storage[provider][symbol.String()] = m
	return m, true
}

func (o *OrderBookStorage) Get(provider string, symbol *MarketSymbol) (*OrderbookMaintainer, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	books, ok := o.storage[provider]
	if !ok {
		return nil, ErrProviderNotFound
	}

	m, ok := books[symbol.String()]
	if !ok {
		return nil, ErrOrderBookNotFound
	}

	return m, nil
}

// Remove unregisters the maintainer and returns it so the caller can stop it.
func (o *OrderBookStorage) Remove(provider string, symbol *MarketSymbol) (*OrderbookMaintainer, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	m, ok := o.storage[provider][symbol.String()]
	if ok {
		delete(o.storage[provider], symbol.String())
	}
	return m, ok
}

func (o *OrderBookStorage) All() []*OrderbookMaintainer {
	o.mu.RLock()
	defer o.mu.RUnlock()

	result := make([]*OrderbookMaintainer, 0)
	for _, books := range o.storage {
		for _, m := range books {
			result = append(result, m)
		}
	}
	return result
}

// OrderBookCount returns -1 for a provider that never had a book.
func (o *OrderBookStorage) OrderBookCount(provider string) int {
	o.mu.RLock()
	defer o.mu.RUnlock()

	books, ok := o.storage[provider]
	if !ok {
		return -1
	}

	return len(books)
}

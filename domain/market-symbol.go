package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidMarketSymbol = errors.New("invalid market symbol")

const symbolSeparators = "_/-"

type MarketSymbol struct {
	BaseAsset  string
	QuoteAsset string
}

func NewMarketSymbol(base string, quote string) (*MarketSymbol, error) {
	if base == "" || quote == "" {
		return nil, fmt.Errorf("%w: base and quote must not be empty", ErrInvalidMarketSymbol)
	}
	base = strings.ToLower(base)
	quote = strings.ToLower(quote)
	if base == quote {
		return nil, fmt.Errorf("%w: base and quote must be different", ErrInvalidMarketSymbol)
	}
	return &MarketSymbol{
		BaseAsset:  base,
		QuoteAsset: quote,
	}, nil
}

// NewMarketSymbolFromString accepts BASE_QUOTE, BASE/QUOTE and BASE-QUOTE.
func NewMarketSymbolFromString(s string) (*MarketSymbol, error) {
	i := strings.IndexAny(s, symbolSeparators)
	if i < 0 || strings.ContainsAny(s[i+1:], symbolSeparators) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMarketSymbol, s)
	}

	return NewMarketSymbol(s[:i], s[i+1:])
}

func (ms *MarketSymbol) Join(separator string) string {
	return fmt.Sprintf("%s%s%s", ms.BaseAsset, separator, ms.QuoteAsset)
}

// UpperJoin is the exchange-facing form, e.g. BTCUSDT or BTC-USDT.
func (ms *MarketSymbol) UpperJoin(separator string) string {
	return strings.ToUpper(ms.Join(separator))
}

func (ms *MarketSymbol) String() string {
	return fmt.Sprintf("%s_%s", ms.BaseAsset, ms.QuoteAsset)
}

func (ms *MarketSymbol) Equal(other *MarketSymbol) bool {
	return strings.EqualFold(ms.BaseAsset, other.BaseAsset) &&
		strings.EqualFold(ms.QuoteAsset, other.QuoteAsset)
}

package kucoin

import (
	"context"
	"fmt"
	"strconv"

	"github.com/Kucoin/kucoin-go-sdk"
	"github.com/spooky-finn/depthbook/domain"
	"github.com/spooky-finn/depthbook/infrastructure/logger"
	"go.uber.org/zap"
)

var log = logger.Named("kucoin")

const DefaultBaseURL = "https://api.kucoin.com"

type Config struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Passphrase string
}

func (c Config) hasCredentials() bool {
	return c.APIKey != "" && c.APISecret != "" && c.Passphrase != ""
}

// KucoinSyncAPI loads level2 snapshots over REST. The full book needs an api
// key; without one the largest public partial book is used.
type KucoinSyncAPI struct {
	apiService *kucoin.ApiService
	fullDepth  bool
}

func NewKucoinSyncAPI(cfg Config) *KucoinSyncAPI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	opts := []kucoin.ApiServiceOption{kucoin.ApiBaseURIOption(cfg.BaseURL)}
	if cfg.hasCredentials() {
		opts = append(opts,
			kucoin.ApiKeyOption(cfg.APIKey),
			kucoin.ApiSecretOption(cfg.APISecret),
			kucoin.ApiPassPhraseOption(cfg.Passphrase),
		)
	}

	return &KucoinSyncAPI{
		apiService: kucoin.NewApiService(opts...),
		fullDepth:  cfg.hasCredentials(),
	}
}

type OrderBookModel struct {
	Sequence string     `json:"sequence"`
	Time     int64      `json:"time"`
	Bids     [][]string `json:"bids"`
	Asks     [][]string `json:"asks"`
}

func (api *KucoinSyncAPI) WsConnOpts() (*kucoin.WebSocketTokenModel, error) {
	resp, err := api.apiService.WebSocketPublicToken()
	if err != nil {
		return nil, fmt.Errorf("failed to get ws connection options: %w", err)
	}

	data := &kucoin.WebSocketTokenModel{}
	if err := resp.ReadData(data); err != nil {
		return nil, fmt.Errorf("failed to read ws connection options: %w", err)
	}

	return data, nil
}

func (api *KucoinSyncAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	type result struct {
		snapshot *domain.OrderBookSnapshot
		err      error
	}

	// the sdk has no context support, so the request is abandoned on cancel
	done := make(chan result, 1)
	go func() {
		snapshot, err := api.fetchSnapshot(symbol, limit)
		done <- result{snapshot, err}
	}()

	select {
	case r := <-done:
		return r.snapshot, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (api *KucoinSyncAPI) fetchSnapshot(symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	s := symbol.UpperJoin("-")

	var (
		resp *kucoin.ApiResponse
		err  error
	)
	if api.fullDepth {
		resp, err = api.apiService.AggregatedFullOrderBookV3(s)
	} else {
		resp, err = api.apiService.AggregatedPartOrderBook(s, partDepth(limit))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order book snapshot: %w", err)
	}

	data := &OrderBookModel{}
	if err := resp.ReadData(data); err != nil {
		return nil, fmt.Errorf("failed to read order book snapshot: %w", err)
	}

	log.Debug("got order book snapshot", zap.String("symbol", s), zap.String("sequence", data.Sequence))
	return snapshotFromModel(data, limit)
}

// partDepth picks the smallest public partial book holding limit levels.
func partDepth(limit int) int64 {
	if limit > 0 && limit <= 20 {
		return 20
	}
	return 100
}

func snapshotFromModel(data *OrderBookModel, limit int) (*domain.OrderBookSnapshot, error) {
	lastUpdId, err := strconv.ParseUint(data.Sequence, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: sequence %q", domain.ErrMalformedInput, data.Sequence)
	}

	return &domain.OrderBookSnapshot{
		Source:       domain.OrderBookSource_Provider,
		LastUpdateId: lastUpdId,
		Bids:         limitLevels(data.Bids, limit),
		Asks:         limitLevels(data.Asks, limit),
	}, nil
}

func limitLevels(levels [][]string, limit int) [][]string {
	if limit > 0 && len(levels) > limit {
		return levels[:limit]
	}
	return levels
}

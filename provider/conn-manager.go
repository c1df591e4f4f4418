package provider

import (
	"errors"
	"fmt"

	"github.com/spooky-finn/depthbook/config"
	"github.com/spooky-finn/depthbook/domain"
	"github.com/spooky-finn/depthbook/infrastructure/logger"
	"github.com/spooky-finn/depthbook/provider/binance"
	"github.com/spooky-finn/depthbook/provider/kucoin"
	"go.uber.org/zap"
)

const (
	Binance = "binance"
	Kucoin  = "kucoin"
)

var ErrUnknownProvider = errors.New("unknown provider")

var log = logger.Named("conn-manager")

// ConnectionManager owns the provider transports and resolves them by name.
type ConnectionManager struct {
	BinanceWC        *binance.BinanceStreamClient
	BinanceSyncAPI   *binance.BinanceSyncAPI
	BinanceStreamAPI *binance.BinanceStreamAPI

	KucoinSyncAPI   *kucoin.KucoinSyncAPI
	KucoinStreamAPI *kucoin.KucoinStreamAPI

	enabled []string
}

func NewConnectionManager(cfg *config.Config) *ConnectionManager {
	binanceCfg := cfg.Exchanges.Binance
	binanceStreamClient := binance.NewBinanceStreamClient(binanceCfg.StreamEndpoint)

	kucoinCfg := cfg.Exchanges.Kucoin
	kucoinSyncAPI := kucoin.NewKucoinSyncAPI(kucoin.Config{
		BaseURL:    kucoinCfg.BaseURL,
		APIKey:     kucoinCfg.APIKey,
		APISecret:  kucoinCfg.Secret,
		Passphrase: kucoinCfg.Passphrase,
	})

	return &ConnectionManager{
		BinanceWC:        binanceStreamClient,
		BinanceSyncAPI:   binance.NewBinanceSyncAPI(binanceCfg.WsAPIEndpoint, binanceCfg.RequestTimeout),
		BinanceStreamAPI: binance.NewBinanceStreamAPI(binanceStreamClient),
		KucoinSyncAPI:    kucoinSyncAPI,
		KucoinStreamAPI:  kucoin.NewKucoinStreamAPI(kucoinSyncAPI),
		enabled:          cfg.Providers,
	}
}

// Init dials the shared Binance stream up front. A failure is not fatal, the
// client dials again on the first subscription.
func (cm *ConnectionManager) Init() {
	if !cm.IsSupported(Binance) {
		return
	}
	if err := cm.BinanceWC.Connect(); err != nil {
		log.Warn("failed to connect to binance ws", zap.Error(err))
	}
}

func (cm *ConnectionManager) Providers() []string {
	return cm.enabled
}

func (cm *ConnectionManager) IsSupported(provider string) bool {
	for _, p := range cm.enabled {
		if p == provider {
			return true
		}
	}
	return false
}

func (cm *ConnectionManager) StreamAPI(provider string) (domain.ProviderStreamAPI, error) {
	if !cm.IsSupported(provider) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	switch provider {
	case Kucoin:
		return cm.KucoinStreamAPI, nil
	case Binance:
		return cm.BinanceStreamAPI, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
}

func (cm *ConnectionManager) SyncAPI(provider string) (domain.ProviderSyncAPI, error) {
	if !cm.IsSupported(provider) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	switch provider {
	case Kucoin:
		return cm.KucoinSyncAPI, nil
	case Binance:
		return cm.BinanceSyncAPI, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
}

func (cm *ConnectionManager) Close() {
	if err := cm.BinanceWC.Close(); err != nil {
		log.Warn("failed to close binance stream", zap.Error(err))
	}
	if err := cm.BinanceSyncAPI.Close(); err != nil {
		log.Warn("failed to close binance ws api", zap.Error(err))
	}
}

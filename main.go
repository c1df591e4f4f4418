package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spooky-finn/depthbook/config"
	"github.com/spooky-finn/depthbook/domain"
	"github.com/spooky-finn/depthbook/infrastructure/logger"
	promclient "github.com/spooky-finn/depthbook/infrastructure/prometheus"
	"github.com/spooky-finn/depthbook/provider"
	"github.com/spooky-finn/depthbook/rpc"
	"github.com/spooky-finn/depthbook/usecase"
	"go.uber.org/zap"
)

func main() {
	log := logger.Named("main")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}
	if !logger.Configure(cfg.Logging.Level, cfg.Logging.Pretty) {
		log.Warn("unknown log level, keeping info", zap.String("level", cfg.Logging.Level))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := promclient.NewMetrics()

	connManager := provider.NewConnectionManager(&cfg)
	connManager.Init()
	defer connManager.Close()

	depthView := usecase.NewDepthViewUseCase(connManager, domain.MaintainerOptions{
		SnapshotLimit:      cfg.OrderBook.SnapshotLimit,
		OutOfSequenceLimit: cfg.OrderBook.OutOfSequenceLimit,
		RetryDelay:         cfg.OrderBook.RetryDelay,
	}, metrics)
	defer depthView.Close()

	for _, market := range cfg.Markets {
		symbol, err := domain.NewMarketSymbolFromString(market.Symbol)
		if err != nil {
			log.Error("skipping market", zap.String("symbol", market.Symbol), zap.Error(err))
			continue
		}
		if _, err := depthView.Track(market.Provider, symbol); err != nil {
			log.Error("failed to track market",
				zap.String("provider", market.Provider), zap.String("symbol", market.Symbol), zap.Error(err))
		}
	}

	go func() {
		if err := metrics.StartPromClientServer(ctx, cfg.Server.MetricsAddr); err != nil {
			log.Error("prometheus server stopped", zap.Error(err))
		}
	}()

	server := rpc.NewServer(depthView, &rpc.ValidationServiceConfig{
		AvailableProviders: connManager.Providers(),
	})
	if err := rpc.Serve(ctx, cfg.Server.GRPCAddr, server); err != nil {
		log.Error("grpc server stopped", zap.Error(err))
	}

	log.Info("shutting down")
}

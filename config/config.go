package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Market struct {
	Provider string `yaml:"provider"`
	Symbol   string `yaml:"symbol"`
}

type Config struct {
	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
	Server struct {
		GRPCAddr    string `yaml:"grpc_addr"`
		MetricsAddr string `yaml:"metrics_addr"`
	} `yaml:"server"`
	Providers []string `yaml:"providers"`
	// Markets are maintained from startup instead of on first request.
	Markets   []Market `yaml:"markets"`
	OrderBook struct {
		SnapshotLimit      int           `yaml:"snapshot_limit"`
		OutOfSequenceLimit int           `yaml:"out_of_sequence_limit"`
		RetryDelay         time.Duration `yaml:"retry_delay"`
	} `yaml:"orderbook"`
	Exchanges struct {
		Binance struct {
			StreamEndpoint string        `yaml:"stream_endpoint"`
			WsAPIEndpoint  string        `yaml:"ws_api_endpoint"`
			RequestTimeout time.Duration `yaml:"request_timeout"`
		} `yaml:"binance"`
		Kucoin struct {
			BaseURL    string `yaml:"base_url"`
			APIKey     string `yaml:"api_key"`
			Secret     string `yaml:"secret"`
			Passphrase string `yaml:"passphrase"`
		} `yaml:"kucoin"`
	} `yaml:"exchanges"`
}

func defaultConfig() Config {
	var c Config
	c.Logging.Level = "info"
	c.Server.GRPCAddr = ":50051"
	c.Server.MetricsAddr = ":8080"
	c.Providers = []string{"binance", "kucoin"}
	c.OrderBook.SnapshotLimit = 1000
	c.OrderBook.OutOfSequenceLimit = 10
	c.OrderBook.RetryDelay = time.Second
	c.Exchanges.Binance.StreamEndpoint = "wss://stream.binance.com:9443/stream"
	c.Exchanges.Binance.WsAPIEndpoint = "wss://ws-api.binance.com:443/ws-api/v3"
	c.Exchanges.Binance.RequestTimeout = 10 * time.Second
	c.Exchanges.Kucoin.BaseURL = "https://api.kucoin.com"
	return c
}

// Load builds the configuration from defaults, the YAML file named by
// DEPTHBOOK_CONFIG, a .env file in the working directory and finally the
// process environment. Later sources win.
func Load() (Config, error) {
	c := defaultConfig()

	if path := os.Getenv("DEPTHBOOK_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env never overrides variables that are already set
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c, fmt.Errorf("load .env: %w", err)
	}

	if err := applyEnv(&c); err != nil {
		return c, err
	}

	if err := c.Validate(); err != nil {
		return c, err
	}

	return c, nil
}

func applyEnv(c *Config) error {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_PRETTY"); v == "1" || v == "true" {
		c.Logging.Pretty = true
	}
	if v := os.Getenv("DEPTHBOOK_GRPC_ADDR"); v != "" {
		c.Server.GRPCAddr = v
	}
	if v := os.Getenv("DEPTHBOOK_METRICS_ADDR"); v != "" {
		c.Server.MetricsAddr = v
	}
	if v := os.Getenv("DEPTHBOOK_PROVIDERS"); v != "" {
		c.Providers = splitCSV(v)
	}
	if v := os.Getenv("DEPTHBOOK_MARKETS"); v != "" {
		markets, err := parseMarkets(v)
		if err != nil {
			return err
		}
		c.Markets = markets
	}
	if v := os.Getenv("DEPTHBOOK_SNAPSHOT_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DEPTHBOOK_SNAPSHOT_LIMIT: %w", err)
		}
		c.OrderBook.SnapshotLimit = n
	}
	if v := os.Getenv("DEPTHBOOK_OUT_OF_SEQUENCE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DEPTHBOOK_OUT_OF_SEQUENCE_LIMIT: %w", err)
		}
		c.OrderBook.OutOfSequenceLimit = n
	}
	if v := os.Getenv("BINANCE_STREAM_ENDPOINT"); v != "" {
		c.Exchanges.Binance.StreamEndpoint = v
	}
	if v := os.Getenv("BINANCE_WS_API_ENDPOINT"); v != "" {
		c.Exchanges.Binance.WsAPIEndpoint = v
	}
	// API keys only from env
	if v := os.Getenv("KUCOIN_BASE_URL"); v != "" {
		c.Exchanges.Kucoin.BaseURL = v
	}
	if v := os.Getenv("KUCOIN_API_KEY"); v != "" {
		c.Exchanges.Kucoin.APIKey = v
	}
	if v := os.Getenv("KUCOIN_SECRET_KEY"); v != "" {
		c.Exchanges.Kucoin.Secret = v
	}
	if v := os.Getenv("KUCOIN_PASSPHRASE"); v != "" {
		c.Exchanges.Kucoin.Passphrase = v
	}
	return nil
}

func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return errors.New("config: at least one provider must be enabled")
	}
	if c.OrderBook.SnapshotLimit <= 0 {
		return fmt.Errorf("config: snapshot limit must be positive, got %d", c.OrderBook.SnapshotLimit)
	}
	if c.OrderBook.OutOfSequenceLimit <= 0 {
		return fmt.Errorf("config: out of sequence limit must be positive, got %d", c.OrderBook.OutOfSequenceLimit)
	}
	for _, m := range c.Markets {
		if !c.IsEnabled(m.Provider) {
			return fmt.Errorf("config: market %s uses disabled provider %q", m.Symbol, m.Provider)
		}
	}
	return nil
}

func (c *Config) IsEnabled(provider string) bool {
	for _, p := range c.Providers {
		if p == provider {
			return true
		}
	}
	return false
}

// parseMarkets reads "provider:SYMBOL,provider:SYMBOL".
func parseMarkets(s string) ([]Market, error) {
	var markets []Market
	for _, item := range splitCSV(s) {
		provider, symbol, ok := strings.Cut(item, ":")
		if !ok || provider == "" || symbol == "" {
			return nil, fmt.Errorf("DEPTHBOOK_MARKETS: invalid item %q, expected provider:SYMBOL", item)
		}
		markets = append(markets, Market{Provider: provider, Symbol: symbol})
	}
	return markets, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

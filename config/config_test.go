package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdirTemp runs the test from an empty directory so no .env is picked up.
func chdirTemp(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestDefaultConfig(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DEPTHBOOK_CONFIG", "")
	t.Setenv("LOG_LEVEL", "")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", c.Logging.Level)
	assert.Equal(t, ":50051", c.Server.GRPCAddr)
	assert.Equal(t, []string{"binance", "kucoin"}, c.Providers)
	assert.Equal(t, 1000, c.OrderBook.SnapshotLimit)
	assert.Equal(t, time.Second, c.OrderBook.RetryDelay)
}

func TestYAMLThenEnv(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "depthbook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: warn
  pretty: true
server:
  grpc_addr: ":7000"
providers: [binance]
markets:
  - provider: binance
    symbol: BTC_USDT
orderbook:
  retry_delay: 250ms
exchanges:
  binance:
    request_timeout: 3s
`), 0o600))

	t.Setenv("DEPTHBOOK_CONFIG", path)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PRETTY", "")
	t.Setenv("KUCOIN_API_KEY", "key")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", c.Logging.Level, "env wins over yaml")
	assert.True(t, c.Logging.Pretty, "pretty comes from yaml")
	assert.Equal(t, ":7000", c.Server.GRPCAddr)
	assert.Equal(t, []string{"binance"}, c.Providers)
	assert.Equal(t, []Market{{Provider: "binance", Symbol: "BTC_USDT"}}, c.Markets)
	assert.Equal(t, 250*time.Millisecond, c.OrderBook.RetryDelay)
	assert.Equal(t, 3*time.Second, c.Exchanges.Binance.RequestTimeout)
	assert.Equal(t, "key", c.Exchanges.Kucoin.APIKey)
	assert.Equal(t, 1000, c.OrderBook.SnapshotLimit, "unset yaml keys keep defaults")
}

func TestDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DEPTHBOOK_METRICS_ADDR=:9999\n"), 0o600))
	t.Setenv("DEPTHBOOK_CONFIG", "")
	t.Setenv("DEPTHBOOK_METRICS_ADDR", "")
	require.NoError(t, os.Unsetenv("DEPTHBOOK_METRICS_ADDR"))

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", c.Server.MetricsAddr)
}

func TestEnvMarkets(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DEPTHBOOK_CONFIG", "")
	t.Setenv("DEPTHBOOK_MARKETS", "binance:BTC_USDT, kucoin:ETH-USDT")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []Market{
		{Provider: "binance", Symbol: "BTC_USDT"},
		{Provider: "kucoin", Symbol: "ETH-USDT"},
	}, c.Markets)

	t.Setenv("DEPTHBOOK_MARKETS", "binance")
	_, err = Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DEPTHBOOK_CONFIG", "")

	t.Setenv("DEPTHBOOK_PROVIDERS", "binance")
	t.Setenv("DEPTHBOOK_MARKETS", "kucoin:BTC-USDT")
	_, err := Load()
	assert.ErrorContains(t, err, "disabled provider")

	t.Setenv("DEPTHBOOK_MARKETS", "")
	t.Setenv("DEPTHBOOK_SNAPSHOT_LIMIT", "0")
	_, err = Load()
	assert.ErrorContains(t, err, "snapshot limit")

	t.Setenv("DEPTHBOOK_SNAPSHOT_LIMIT", "abc")
	_, err = Load()
	assert.Error(t, err)
}

package kucoin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spooky-finn/depthbook/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotFromModel(t *testing.T) {
	model := &OrderBookModel{
		Sequence: "3262786978",
		Time:     1550653727731,
		Bids:     [][]string{{"6500.12", "0.45054140"}, {"6500.11", "0.45054140"}, {"6500.10", "1"}},
		Asks:     [][]string{{"6500.16", "0.57753524"}, {"6500.15", "0.57753524"}},
	}

	snapshot, err := snapshotFromModel(model, 2)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderBookSource_Provider, snapshot.Source)
	assert.Equal(t, uint64(3262786978), snapshot.LastUpdateId)
	assert.Len(t, snapshot.Bids, 2)
	assert.Len(t, snapshot.Asks, 2)

	_, err = snapshotFromModel(&OrderBookModel{Sequence: ""}, 0)
	assert.ErrorIs(t, err, domain.ErrMalformedInput)
}

func TestPartDepth(t *testing.T) {
	assert.Equal(t, int64(20), partDepth(5))
	assert.Equal(t, int64(20), partDepth(20))
	assert.Equal(t, int64(100), partDepth(21))
	assert.Equal(t, int64(100), partDepth(0))
}

func TestKucoinSyncAPI_OrderBookSnapshot(t *testing.T) {
	var requested string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path + "?" + r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"200000","data":{"sequence":"3262786978","time":1550653727731,` +
			`"bids":[["6500.12","0.45054140"],["6500.11","0.45054140"]],` +
			`"asks":[["6500.16","0.57753524"],["6500.15","0.57753524"]]}}`))
	}))
	defer srv.Close()

	api := NewKucoinSyncAPI(Config{BaseURL: srv.URL})
	symbol, err := domain.NewMarketSymbol("btc", "usdt")
	require.NoError(t, err)

	snapshot, err := api.OrderBookSnapshot(context.Background(), symbol, 10)
	require.NoError(t, err)

	assert.True(t, strings.Contains(requested, "level2_20"), requested)
	assert.True(t, strings.Contains(requested, "BTC-USDT"), requested)
	assert.Equal(t, uint64(3262786978), snapshot.LastUpdateId)
	assert.Equal(t, []string{"6500.12", "0.45054140"}, snapshot.Bids[0])
}

func TestKucoinSyncAPI_OrderBookSnapshot_Canceled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	api := NewKucoinSyncAPI(Config{BaseURL: srv.URL})
	symbol, err := domain.NewMarketSymbol("btc", "usdt")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = api.OrderBookSnapshot(ctx, symbol, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

package rpc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/spooky-finn/depthbook/domain"
	"github.com/spooky-finn/depthbook/usecase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeStreamAPI struct {
	mu   sync.Mutex
	subs []chan *domain.OrderBookUpdate
}

func (f *fakeStreamAPI) DepthDiffStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.OrderBookUpdate], error) {
	ch := make(chan *domain.OrderBookUpdate, 16)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()

	return &domain.Subscription[*domain.OrderBookUpdate]{Stream: ch, Unsubscribe: func() {}, Topic: symbol.String()}, nil
}

func (f *fakeStreamAPI) publish(t *testing.T, update *domain.OrderBookUpdate) {
	t.Helper()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.subs) > 0
	}, time.Second, time.Millisecond)

	f.mu.Lock()
	ch := f.subs[len(f.subs)-1]
	f.mu.Unlock()
	ch <- update
}

type fakeSyncAPI struct{}

func (fakeSyncAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	return &domain.OrderBookSnapshot{
		Source:       domain.OrderBookSource_Provider,
		LastUpdateId: 10,
		Bids:         [][]string{{"99.5", "1"}, {"99", "2"}},
		Asks:         [][]string{{"100.5", "3"}, {"101.5", "4"}},
	}, nil
}

type fakeConnManager struct {
	stream *fakeStreamAPI
}

func (f *fakeConnManager) StreamAPI(string) (domain.ProviderStreamAPI, error) { return f.stream, nil }
func (f *fakeConnManager) SyncAPI(string) (domain.ProviderSyncAPI, error)     { return fakeSyncAPI{}, nil }

func newTestClient(t *testing.T) (*grpc.ClientConn, *fakeStreamAPI) {
	t.Helper()

	stream := &fakeStreamAPI{}
	uc := usecase.NewDepthViewUseCase(&fakeConnManager{stream: stream}, domain.MaintainerOptions{
		RetryDelay: time.Millisecond,
		Logger:     zap.NewNop(),
	}, nil)
	t.Cleanup(uc.Close)

	lis := bufconn.Listen(1 << 20)
	s := NewGRPCServer(NewServer(uc, &ValidationServiceConfig{AvailableProviders: []string{"binance"}}))
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	cc, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cc.Close() })

	return cc, stream
}

func call(t *testing.T, cc *grpc.ClientConn, method string, req map[string]interface{}) (*structpb.Struct, error) {
	t.Helper()

	in, err := structpb.NewStruct(req)
	require.NoError(t, err)

	out := new(structpb.Struct)
	err = cc.Invoke(context.Background(), "/"+ServiceName+"/"+method, in, out)
	return out, err
}

func TestGetDepth_InvalidArguments(t *testing.T) {
	cc, _ := newTestClient(t)

	tests := []struct {
		name string
		req  map[string]interface{}
	}{
		{"unsupported provider", map[string]interface{}{"provider": "ftx", "market": "BTC_USDT"}},
		{"bad market", map[string]interface{}{"provider": "binance", "market": "BTCUSDT"}},
		{"negative tick", map[string]interface{}{"provider": "binance", "market": "BTC_USDT", "tickSize": "-1"}},
		{"tick not a number", map[string]interface{}{"provider": "binance", "market": "BTC_USDT", "tickSize": "abc"}},
		{"zero tick text", map[string]interface{}{"provider": "binance", "market": "BTC_USDT", "tickSize": "0"}},
		{"negative base tick", map[string]interface{}{"provider": "binance", "market": "BTC_USDT", "baseTickSize": -0.5}},
		{"fractional levels", map[string]interface{}{"provider": "binance", "market": "BTC_USDT", "maxLevels": 1.5}},
		{"range above 100", map[string]interface{}{"provider": "binance", "market": "BTC_USDT", "rangePercent": 120}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := call(t, cc, "GetDepth", tt.req)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestGetDepth_UnavailableUntilSynced(t *testing.T) {
	cc, stream := newTestClient(t)
	req := map[string]interface{}{
		"provider":     "binance",
		"market":       "BTC_USDT",
		"baseTickSize": "0.5",
		"tickSize":     "1",
		"maxLevels":    5,
	}

	_, err := call(t, cc, "GetDepth", req)
	require.Equal(t, codes.Unavailable, status.Code(err))

	stream.publish(t, domain.NewOrderBookUpdate([][]string{{"99", "0"}}, nil, 11, 11, nil))

	var out *structpb.Struct
	require.Eventually(t, func() bool {
		out, err = call(t, cc, "GetDepth", req)
		return err == nil
	}, time.Second, 5*time.Millisecond)

	bids := out.Fields["bids"].GetListValue().GetValues()
	require.Len(t, bids, 1)
	bid := bids[0].GetStructValue().GetFields()
	assert.Equal(t, "99", bid["price"].GetStringValue())
	assert.Equal(t, "1", bid["size"].GetStringValue())

	asks := out.Fields["asks"].GetListValue().GetValues()
	require.Len(t, asks, 2)
	ask := asks[1].GetStructValue().GetFields()
	assert.Equal(t, "102", ask["price"].GetStringValue())
	assert.Equal(t, "7", ask["cumSize"].GetStringValue())

	assert.Equal(t, "4", out.Fields["maxAskSize"].GetStringValue())
	assert.Equal(t, "7", out.Fields["maxCumSize"].GetStringValue())
	assert.Equal(t, "11", out.Fields["lastUpdateId"].GetStringValue())

	updatedAt, err := time.Parse(time.RFC3339Nano, out.Fields["lastUpdateTime"].GetStringValue())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), updatedAt, time.Minute)
}

func TestGetOrderBookSnapshot(t *testing.T) {
	cc, stream := newTestClient(t)
	req := map[string]interface{}{"provider": "binance", "market": "btc/usdt", "maxDepth": 1}

	out, err := call(t, cc, "GetOrderBookSnapshot", req)
	require.NoError(t, err)
	assert.Equal(t, "Provider", out.Fields["source"].GetStringValue())

	stream.publish(t, domain.NewOrderBookUpdate(nil, [][]string{{"100", "2"}}, 11, 11, nil))

	require.Eventually(t, func() bool {
		out, err = call(t, cc, "GetOrderBookSnapshot", req)
		return err == nil && out.Fields["source"].GetStringValue() == "LocalOrderBook"
	}, time.Second, 5*time.Millisecond)

	asks := out.Fields["asks"].GetListValue().GetValues()
	require.Len(t, asks, 1)
	assert.Equal(t, "100", asks[0].GetStructValue().GetFields()["price"].GetStringValue())
	assert.Equal(t, "2", asks[0].GetStructValue().GetFields()["qty"].GetStringValue())

	_, err = call(t, cc, "GetOrderBookSnapshot", map[string]interface{}{"provider": "binance", "market": "btc/usdt", "maxDepth": -1})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

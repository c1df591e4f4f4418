package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spooky-finn/depthbook/domain"
	"github.com/spooky-finn/depthbook/infrastructure/logger"
	"go.uber.org/zap"
)

var log = logger.Named("binance")

const (
	DefaultWsAPIEndpoint = "wss://ws-api.binance.com:443/ws-api/v3"
	defaultRequestTimeout = 10 * time.Second
)

var (
	ErrTimeout        = errors.New("timeout error")
	ErrConnectionLost = errors.New("binance ws api connection lost")
)

type GenericMessage[T any] struct {
	ID     int64 `json:"id"`
	Status int   `json:"status"`
	Result T     `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

type depthResult struct {
	LastUpdateId uint64     `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

type depthRequest struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params depthParams `json:"params"`
}

type depthParams struct {
	Symbol string `json:"symbol"`
	Limit  int    `json:"limit,omitempty"`
}

// BinanceSyncAPI fetches depth snapshots through the websocket api. Responses
// are matched to requests by id, so concurrent callers share one connection.
type BinanceSyncAPI struct {
	endpoint string
	timeout  time.Duration
	dialer   *websocket.Dialer

	conn       *websocket.Conn
	pending    map[int64]chan []byte
	mu         sync.Mutex
	writeMutex sync.Mutex
	reqId      atomic.Int64
}

func NewBinanceSyncAPI(endpoint string, timeout time.Duration) *BinanceSyncAPI {
	if endpoint == "" {
		endpoint = DefaultWsAPIEndpoint
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	return &BinanceSyncAPI{
		endpoint: endpoint,
		timeout:  timeout,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		pending: make(map[int64]chan []byte),
	}
}

func (api *BinanceSyncAPI) OrderBookSnapshot(ctx context.Context, symbol *domain.MarketSymbol, limit int) (*domain.OrderBookSnapshot, error) {
	reqId := api.reqId.Add(1)
	resp := make(chan []byte, 1)

	conn, err := api.register(reqId, resp)
	if err != nil {
		return nil, err
	}
	defer api.unregister(reqId)

	api.writeMutex.Lock()
	err = conn.WriteJSON(depthRequest{
		ID:     reqId,
		Method: "depth",
		Params: depthParams{Symbol: symbol.UpperJoin(""), Limit: limit},
	})
	api.writeMutex.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send depth request: %w", err)
	}

	msg, err := api.waitForResponse(ctx, resp)
	if err != nil {
		return nil, err
	}

	var response GenericMessage[depthResult]
	if err := json.Unmarshal(msg, &response); err != nil {
		return nil, fmt.Errorf("unmarshal depth response: %w", err)
	}
	if response.Status != http.StatusOK {
		if response.Error != nil {
			return nil, fmt.Errorf("depth request failed with status %d: %d %s",
				response.Status, response.Error.Code, response.Error.Msg)
		}
		return nil, fmt.Errorf("depth request failed with status %d", response.Status)
	}

	return &domain.OrderBookSnapshot{
		Source:       domain.OrderBookSource_Provider,
		LastUpdateId: response.Result.LastUpdateId,
		Bids:         response.Result.Bids,
		Asks:         response.Result.Asks,
	}, nil
}

func (api *BinanceSyncAPI) Close() error {
	api.mu.Lock()
	conn := api.conn
	api.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (api *BinanceSyncAPI) register(reqId int64, resp chan []byte) (*websocket.Conn, error) {
	api.mu.Lock()
	defer api.mu.Unlock()

	if api.conn == nil {
		log.Info("instantiating binance websocket api", zap.String("endpoint", api.endpoint))
		conn, _, err := api.dialer.Dial(api.endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("error dialing binance sync ws api: %w", err)
		}
		api.conn = conn
		go api.listener(conn)
	}

	api.pending[reqId] = resp
	return api.conn, nil
}

func (api *BinanceSyncAPI) unregister(reqId int64) {
	api.mu.Lock()
	defer api.mu.Unlock()

	delete(api.pending, reqId)
}

func (api *BinanceSyncAPI) listener(conn *websocket.Conn) {
	defer api.dropConnection(conn)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warn("binance ws api connection lost", zap.Error(err))
			return
		}

		var header struct {
			ID *int64 `json:"id"`
		}
		if err := json.Unmarshal(message, &header); err != nil || header.ID == nil {
			continue
		}

		api.mu.Lock()
		resp, ok := api.pending[*header.ID]
		api.mu.Unlock()
		if !ok {
			continue
		}
		select {
		case resp <- message:
		default:
			log.Warn("dropped duplicate ws api response", zap.Int64("id", *header.ID))
		}
	}
}

// dropConnection fails every pending request by closing its channel.
func (api *BinanceSyncAPI) dropConnection(conn *websocket.Conn) {
	api.mu.Lock()
	defer api.mu.Unlock()

	if api.conn != conn {
		return
	}
	api.conn = nil
	_ = conn.Close()

	for id, resp := range api.pending {
		close(resp)
		delete(api.pending, id)
	}
}

func (api *BinanceSyncAPI) waitForResponse(ctx context.Context, resp <-chan []byte) ([]byte, error) {
	timer := time.NewTimer(api.timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-resp:
		if !ok {
			return nil, ErrConnectionLost
		}
		return msg, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

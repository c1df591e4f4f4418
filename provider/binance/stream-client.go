package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spooky-finn/depthbook/domain"
	"go.uber.org/zap"
)

const (
	DefaultStreamEndpoint = "wss://stream.binance.com:9443/stream"
	handshakeTimeout      = 5 * time.Second
	writeTimeout          = 5 * time.Second
	subscriberBufferSize  = 1024
)

var ErrClientClosed = errors.New("binance stream client is closed")

type Message[T any] struct {
	Stream string `json:"stream"`
	Data   T      `json:"data"`
}

type WebSocketRequestModel struct {
	ReqId  int64    `json:"id"`
	Params []string `json:"params"`
	Method string   `json:"method"`
}

// envelope covers both stream payloads and request acks on a combined stream.
type envelope struct {
	ReqId  *int64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
	Stream string `json:"stream"`
}

type SubscribtionEntry struct {
	subscribers map[int]chan []byte
}

type SubscibeResult = *domain.Subscription[[]byte]

// BinanceStreamClient multiplexes topic subscriptions over a single combined
// stream connection. The connection is dialed lazily; when it drops, every
// subscriber channel is closed and the next Subscribe dials again.
type BinanceStreamClient struct {
	endpoint string
	dialer   *websocket.Dialer

	conn          *websocket.Conn
	subscriptions map[string]*SubscribtionEntry
	nextSubId     int
	closed        bool
	mu            sync.Mutex
	writeMu       sync.Mutex

	reqId atomic.Int64
}

func NewBinanceStreamClient(endpoint string) *BinanceStreamClient {
	if endpoint == "" {
		endpoint = DefaultStreamEndpoint
	}

	return &BinanceStreamClient{
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		subscriptions: make(map[string]*SubscribtionEntry),
	}
}

func (c *BinanceStreamClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectLocked()
}

func (c *BinanceStreamClient) connectLocked() error {
	if c.closed {
		return ErrClientClosed
	}
	if c.conn != nil {
		return nil
	}

	conn, _, err := c.dialer.Dial(c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial binance stream %s: %w", c.endpoint, err)
	}
	c.conn = conn
	log.Info("connected to the binance stream websocket", zap.String("endpoint", c.endpoint))

	go c.read(conn)
	return nil
}

func (c *BinanceStreamClient) Subscribe(topic string) (SubscibeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(); err != nil {
		return nil, err
	}

	entry, ok := c.subscriptions[topic]
	if !ok {
		log.Debug("subscribing to the topic", zap.String("topic", topic))

		err := c.write(c.conn, WebSocketRequestModel{
			Method: "SUBSCRIBE",
			ReqId:  c.reqId.Add(1),
			Params: []string{topic},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to send subscribe msg for topic=%s: %w", topic, err)
		}

		entry = &SubscribtionEntry{subscribers: make(map[int]chan []byte)}
		c.subscriptions[topic] = entry
	}

	c.nextSubId++
	id := c.nextSubId
	ch := make(chan []byte, subscriberBufferSize)
	entry.subscribers[id] = ch

	var once sync.Once
	return &domain.Subscription[[]byte]{
		Stream: ch,
		Unsubscribe: func() {
			once.Do(func() { c.unSubscribe(topic, id) })
		},
		Topic: topic,
	}, nil
}

func (c *BinanceStreamClient) unSubscribe(topic string, id int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.subscriptions[topic]
	if !ok {
		return
	}
	if ch, ok := entry.subscribers[id]; ok {
		close(ch)
		delete(entry.subscribers, id)
	}
	if len(entry.subscribers) > 0 {
		return
	}

	delete(c.subscriptions, topic)
	log.Debug("unsubscribing from the topic", zap.String("topic", topic))

	if c.conn == nil {
		return
	}
	err := c.write(c.conn, WebSocketRequestModel{
		Method: "UNSUBSCRIBE",
		ReqId:  c.reqId.Add(1),
		Params: []string{topic},
	})
	if err != nil {
		log.Warn("failed to send unsubscribe msg", zap.String("topic", topic), zap.Error(err))
	}
}

// Close drops the connection for good and closes all subscriber channels.
func (c *BinanceStreamClient) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	c.teardown(conn)
	return nil
}

func (c *BinanceStreamClient) write(conn *websocket.Conn, v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

func (c *BinanceStreamClient) read(conn *websocket.Conn) {
	defer c.teardown(conn)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Warn("binance stream connection lost", zap.Error(err))
			return
		}

		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			log.Warn("dropped unparsable stream message", zap.Error(err), zap.ByteString("msg", msg))
			continue
		}

		if env.ReqId != nil {
			if env.Error != nil {
				log.Warn("stream request failed",
					zap.Int64("id", *env.ReqId), zap.Int("code", env.Error.Code), zap.String("msg", env.Error.Msg))
			} else {
				log.Debug("receive ack", zap.Int64("id", *env.ReqId))
			}
			continue
		}

		if env.Stream != "" {
			c.dispatch(env.Stream, msg)
		}
	}
}

func (c *BinanceStreamClient) dispatch(topic string, msg []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.subscriptions[topic]
	if !ok {
		return
	}
	for _, ch := range entry.subscribers {
		select {
		case ch <- msg:
		default:
			// a lagging subscriber loses the message; its sequence check resyncs it
			log.Warn("subscriber is lagging, message dropped", zap.String("topic", topic))
		}
	}
}

// teardown forgets conn and closes every subscriber, which tells consumers
// their stream is gone.
func (c *BinanceStreamClient) teardown(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != conn {
		return
	}
	c.conn = nil
	_ = conn.Close()

	for topic, entry := range c.subscriptions {
		for _, ch := range entry.subscribers {
			close(ch)
		}
		delete(c.subscriptions, topic)
	}
}

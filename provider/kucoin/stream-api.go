package kucoin

import (
	"fmt"
	"sync"

	"github.com/Kucoin/kucoin-go-sdk"
	"github.com/spooky-finn/depthbook/domain"
	"go.uber.org/zap"
)

type KucoinStreamAPI struct {
	syncAPI *KucoinSyncAPI
}

func NewKucoinStreamAPI(syncAPI *KucoinSyncAPI) *KucoinStreamAPI {
	return &KucoinStreamAPI{
		syncAPI: syncAPI,
	}
}

type DepthUpdateModel struct {
	Changes       OrderBookChanges `json:"changes"`
	SequenceEnd   uint64           `json:"sequenceEnd"`
	SequenceStart uint64           `json:"sequenceStart"`
	Symbol        string           `json:"symbol"`
	Time          int64            `json:"time"`
}

// OrderBookChanges rows are [price, size, sequence].
type OrderBookChanges struct {
	Asks [][]string `json:"asks"`
	Bids [][]string `json:"bids"`
}

func DepthTopic(symbol *domain.MarketSymbol) string {
	return fmt.Sprintf("/market/level2:%s", symbol.UpperJoin("-"))
}

// DepthDiffStream opens a dedicated sdk websocket client for the topic. The
// stream closes when the client reports an error, which the maintainer treats
// as a reconnect.
func (s *KucoinStreamAPI) DepthDiffStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.OrderBookUpdate], error) {
	topic := DepthTopic(symbol)

	token, err := s.syncAPI.WsConnOpts()
	if err != nil {
		return nil, err
	}

	client := s.syncAPI.apiService.NewWebSocketClient(token)
	mc, ec, err := client.Connect()
	if err != nil {
		return nil, fmt.Errorf("connect kucoin websocket: %w", err)
	}

	var stopOnce sync.Once
	stop := func() { stopOnce.Do(client.Stop) }

	if err := client.Subscribe(kucoin.NewSubscribeMessage(topic, false)); err != nil {
		stop()
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	log.Debug("subscribed to the topic", zap.String("topic", topic))

	out := make(chan *domain.OrderBookUpdate)
	done := make(chan struct{})

	go func() {
		defer close(out)

		for {
			select {
			case <-done:
				return
			case err := <-ec:
				log.Warn("kucoin websocket failed", zap.String("topic", topic), zap.Error(err))
				stop()
				return
			case msg, ok := <-mc:
				if !ok {
					return
				}
				if msg.Topic != topic {
					continue
				}

				model := &DepthUpdateModel{}
				if err := msg.ReadData(model); err != nil {
					log.Warn("error unmarshaling depth update", zap.String("topic", topic), zap.Error(err))
					continue
				}

				select {
				case out <- updateFromModel(model, symbol):
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	return &domain.Subscription[*domain.OrderBookUpdate]{
		Stream: out,
		Topic:  topic,
		Unsubscribe: func() {
			once.Do(func() {
				close(done)
				stop()
			})
		},
	}, nil
}

// updateFromModel maps a level2 message onto the engine's update range. Every
// change carries an absolute size, so replaying changes already covered by
// the snapshot inside the first straddling message is harmless.
func updateFromModel(model *DepthUpdateModel, symbol *domain.MarketSymbol) *domain.OrderBookUpdate {
	return domain.NewOrderBookUpdate(
		model.Changes.Bids, model.Changes.Asks,
		model.SequenceStart, model.SequenceEnd,
		symbol,
	)
}

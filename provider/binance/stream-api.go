package binance

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spooky-finn/depthbook/domain"
	"go.uber.org/zap"
)

type BinanceStreamAPI struct {
	streamClient *BinanceStreamClient
}

type DepthUpdateData struct {
	Event         string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateId uint64     `json:"U"`
	FinalUpdateId uint64     `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}

func NewBinanceStreamAPI(client *BinanceStreamClient) *BinanceStreamAPI {
	return &BinanceStreamAPI{
		streamClient: client,
	}
}

func DepthTopic(symbol *domain.MarketSymbol) string {
	return fmt.Sprintf("%s@depth", symbol.Join(""))
}

func (bs *BinanceStreamAPI) DepthDiffStream(symbol *domain.MarketSymbol) (*domain.Subscription[*domain.OrderBookUpdate], error) {
	topic := DepthTopic(symbol)
	subscribtion, err := bs.streamClient.Subscribe(topic)
	if err != nil {
		return nil, err
	}

	s := make(chan *domain.OrderBookUpdate)
	done := make(chan struct{})

	go func() {
		defer close(s)

		for msg := range subscribtion.Stream {
			var message Message[DepthUpdateData]
			if err := json.Unmarshal(msg, &message); err != nil {
				// the sequence check on the next update detects the hole
				log.Warn("error unmarshaling depth update", zap.String("topic", topic), zap.Error(err))
				continue
			}

			update := domain.NewOrderBookUpdate(
				message.Data.Bids, message.Data.Asks,
				message.Data.FirstUpdateId, message.Data.FinalUpdateId,
				symbol,
			)

			select {
			case s <- update:
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return &domain.Subscription[*domain.OrderBookUpdate]{
		Stream: s,
		Unsubscribe: func() {
			once.Do(func() {
				close(done)
				subscribtion.Unsubscribe()
			})
		},
		Topic: topic,
	}, nil
}

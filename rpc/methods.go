package rpc

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spooky-finn/depthbook/domain"
	"github.com/spooky-finn/depthbook/usecase"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *server) GetDepth(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	provider, marketSymbol, err := s.parseMarket(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	query, err := parseDepthQuery(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.validationService.ValidateDepthQuery(query); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	view, err := s.depthViewUseCase.GetDepthView(provider, marketSymbol, query)
	if err != nil {
		return nil, toStatusError(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"bids":           levelsToList(view.Bids),
		"asks":           levelsToList(view.Asks),
		"maxBidSize":     view.MaxBidSize.String(),
		"maxAskSize":     view.MaxAskSize.String(),
		"maxCumSize":     view.MaxCumSize().String(),
		"lastUpdateId":   strconv.FormatUint(view.LastUpdateID, 10),
		"lastUpdateTime": view.LastUpdateTime.UTC().Format(time.RFC3339Nano),
	})
}

func (s *server) GetOrderBookSnapshot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	provider, marketSymbol, err := s.parseMarket(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	maxDepth, err := intField(in, "maxDepth")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.validationService.ValidateDepthLimit("maxDepth", maxDepth); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	snapshot, err := s.depthViewUseCase.GetOrderBookSnapshot(ctx, provider, marketSymbol, maxDepth)
	if err != nil {
		return nil, toStatusError(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"source":       string(snapshot.Source),
		"lastUpdateId": strconv.FormatUint(snapshot.LastUpdateId, 10),
		"bids":         rawLevelsToList(snapshot.Bids),
		"asks":         rawLevelsToList(snapshot.Asks),
	})
}

func (s *server) parseMarket(in *structpb.Struct) (string, *domain.MarketSymbol, error) {
	provider := in.GetFields()["provider"].GetStringValue()
	if !s.validationService.IsSupportedProvider(provider) {
		return "", nil, fmt.Errorf("provider %q is not supported", provider)
	}

	market := in.GetFields()["market"].GetStringValue()
	marketSymbol, err := domain.NewMarketSymbolFromString(market)
	if err != nil {
		return "", nil, fmt.Errorf("invalid market symbol %q, expected BASE_QUOTE", market)
	}

	return provider, marketSymbol, nil
}

func parseDepthQuery(in *structpb.Struct) (usecase.DepthQuery, error) {
	var query usecase.DepthQuery
	var err error

	if query.BaseTickSize, err = tickField(in, "baseTickSize"); err != nil {
		return query, err
	}
	if query.TickSize, err = tickField(in, "tickSize"); err != nil {
		return query, err
	}
	if query.RangePercent, err = decimalField(in, "rangePercent"); err != nil {
		return query, err
	}
	if query.MaxLevels, err = intField(in, "maxLevels"); err != nil {
		return query, err
	}

	return query, nil
}

// tickField reads an optional tick size. A missing field, an empty string or
// the number 0 mean no tick; decimal text must be a positive tick.
func tickField(in *structpb.Struct, name string) (decimal.Decimal, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return decimal.Zero, nil
	}

	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		if kind.StringValue == "" {
			return decimal.Zero, nil
		}
		tick, err := domain.ParseTickSize(kind.StringValue)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", name, err)
		}
		return tick, nil
	case *structpb.Value_NumberValue:
		if kind.NumberValue == 0 {
			return decimal.Zero, nil
		}
		tick := decimal.NewFromFloat(kind.NumberValue)
		if err := domain.ValidateTickSize(tick); err != nil {
			return decimal.Zero, fmt.Errorf("%s: %w", name, err)
		}
		return tick, nil
	case *structpb.Value_NullValue:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("%s must be a decimal string or a number", name)
	}
}

// decimalField accepts a decimal string or a number. A missing field is zero.
func decimalField(in *structpb.Struct, name string) (decimal.Decimal, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return decimal.Zero, nil
	}

	switch kind := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		if kind.StringValue == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(kind.StringValue)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s: %q is not a decimal", name, kind.StringValue)
		}
		return d, nil
	case *structpb.Value_NumberValue:
		return decimal.NewFromFloat(kind.NumberValue), nil
	case *structpb.Value_NullValue:
		return decimal.Zero, nil
	default:
		return decimal.Zero, fmt.Errorf("%s must be a decimal string or a number", name)
	}
}

func intField(in *structpb.Struct, name string) (int, error) {
	v, ok := in.GetFields()[name]
	if !ok {
		return 0, nil
	}

	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		n := kind.NumberValue
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return int(n), nil
	case *structpb.Value_StringValue:
		n, err := strconv.Atoi(kind.StringValue)
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer", name)
		}
		return n, nil
	case *structpb.Value_NullValue:
		return 0, nil
	default:
		return 0, fmt.Errorf("%s must be an integer", name)
	}
}

func toStatusError(err error) error {
	switch {
	case errors.Is(err, usecase.ErrOrderBookNotReady):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, domain.ErrInvalidTickSize),
		errors.Is(err, domain.ErrInvalidMarketSymbol):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		log.Error("rpc failed", zap.Error(err))
		return status.Error(codes.Internal, err.Error())
	}
}

func levelsToList(levels []domain.PriceLevel) []interface{} {
	out := make([]interface{}, 0, len(levels))
	for _, level := range levels {
		out = append(out, map[string]interface{}{
			"price":   level.Price.String(),
			"size":    level.Size.String(),
			"cumSize": level.CumSize.String(),
		})
	}
	return out
}

func rawLevelsToList(levels [][]string) []interface{} {
	out := make([]interface{}, 0, len(levels))
	for _, level := range levels {
		out = append(out, map[string]interface{}{
			"price": level[0],
			"qty":   level[1],
		})
	}
	return out
}

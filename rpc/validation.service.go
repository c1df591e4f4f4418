package rpc

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spooky-finn/depthbook/usecase"
)

// maxDepthLevels caps both GetDepth maxLevels and GetOrderBookSnapshot maxDepth.
const maxDepthLevels = 5000

var hundred = decimal.NewFromInt(100)

type ValidationServiceConfig struct {
	AvailableProviders []string
}

type ValidationService struct {
	config *ValidationServiceConfig
}

func NewValidationService(config *ValidationServiceConfig) *ValidationService {
	return &ValidationService{
		config: config,
	}
}

func (s *ValidationService) IsSupportedProvider(provider string) bool {
	for _, p := range s.config.AvailableProviders {
		if p == provider {
			return true
		}
	}
	return false
}

func (s *ValidationService) ValidateDepthQuery(query usecase.DepthQuery) error {
	if query.RangePercent.Sign() < 0 || query.RangePercent.GreaterThan(hundred) {
		return errors.New("rangePercent must be within [0, 100]")
	}
	return s.ValidateDepthLimit("maxLevels", query.MaxLevels)
}

func (s *ValidationService) ValidateDepthLimit(field string, limit int) error {
	if limit < 0 || limit > maxDepthLevels {
		return fmt.Errorf("%s must be within [0, %d]", field, maxDepthLevels)
	}
	return nil
}

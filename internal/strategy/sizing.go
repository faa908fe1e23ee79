package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrInvalidQuoteBounds = errors.New("max quote size must exceed min quote size")

// SizingPolicy derives the price and size of the next spot limit buy.
type SizingPolicy struct {
	state        *PriceState
	minQuoteSize decimal.Decimal
	maxQuoteSize decimal.Decimal
	precision    decimal.Decimal
	log          *zap.Logger
}

func NewSizingPolicy(state *PriceState, minQuoteSize, maxQuoteSize, precision decimal.Decimal, log *zap.Logger) (*SizingPolicy, error) {
	if state == nil {
		return nil, errors.New("price state is required")
	}
	if !maxQuoteSize.GreaterThan(minQuoteSize) {
		return nil, fmt.Errorf("min %s, max %s: %w", minQuoteSize, maxQuoteSize, ErrInvalidQuoteBounds)
	}
	if precision.Sign() <= 0 {
		return nil, errors.New("size precision must be > 0")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SizingPolicy{
		state:        state,
		minQuoteSize: minQuoteSize,
		maxQuoteSize: maxQuoteSize,
		precision:    precision,
		log:          log,
	}, nil
}

func (p *SizingPolicy) MinQuoteSize() decimal.Decimal { return p.minQuoteSize }

func (p *SizingPolicy) MaxQuoteSize() decimal.Decimal { return p.maxQuoteSize }

// DeduceSpotOrderParams returns the limit price and size for the next spot
// order. It waits for futures bid size updates until the grid-aligned size,
// capped at maxQuoteSize/price, is worth at least minQuoteSize. When no size at
// the current price can reach minQuoteSize it warns once and keeps waiting for
// the price to move.
func (p *SizingPolicy) DeduceSpotOrderParams(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	price := p.state.SpotBidPrice()
	size, changed := p.state.FuturesBidSize()
	size = FloorToStep(size, p.precision)
	warned := false
	for {
		candidate := p.capSize(price, size)
		if !price.Mul(candidate).LessThan(p.minQuoteSize) {
			return price, candidate, nil
		}
		switch unreachable := p.unreachable(price); {
		case unreachable && !warned:
			p.log.Warn("spot order bounds unreachable at current price",
				zap.Stringer("price", price),
				zap.Stringer("min_quote_size", p.minQuoteSize),
				zap.Stringer("max_quote_size", p.maxQuoteSize),
				zap.Stringer("step", decimal.NewFromInt(1).Div(p.precision)),
			)
			warned = true
		case !unreachable:
			warned = false
		}
		select {
		case <-ctx.Done():
			return decimal.Zero, decimal.Zero, ctx.Err()
		case <-changed:
		}
		size, changed = p.state.FuturesBidSize()
		size = FloorToStep(size, p.precision)
		price = p.state.SpotBidPrice()
	}
}

// unreachable reports whether even the largest grid size under maxQuoteSize
// is worth less than minQuoteSize at price.
func (p *SizingPolicy) unreachable(price decimal.Decimal) bool {
	if price.Sign() <= 0 {
		return true
	}
	ceiling := p.capSize(price, p.maxQuoteSize.Div(price))
	return price.Mul(ceiling).LessThan(p.minQuoteSize)
}

func (p *SizingPolicy) capSize(price, size decimal.Decimal) decimal.Decimal {
	if price.Sign() <= 0 {
		return decimal.Zero
	}
	maxSize := p.maxQuoteSize.Div(price)
	return FloorToStep(decimal.Min(size, maxSize), p.precision)
}

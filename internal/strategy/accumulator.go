package strategy

import "github.com/shopspring/decimal"

// HedgeAccumulator decides how much of the unhedged spot quantity can be sold
// on futures without leaving a remainder too small to trade on its own.
type HedgeAccumulator struct {
	minBaseSize decimal.Decimal
	precision   decimal.Decimal
}

func NewHedgeAccumulator(minBaseSize, precision decimal.Decimal) HedgeAccumulator {
	return HedgeAccumulator{minBaseSize: minBaseSize, precision: precision}
}

// FuturesOrderMinBaseSize is the larger of the venue lot minimum and the size
// implied by the venue notional minimum at futuresPrice, rounded up to the grid.
func FuturesOrderMinBaseSize(minLotSize decimal.Decimal, minNotional decimal.NullDecimal, futuresPrice, precision decimal.Decimal) decimal.Decimal {
	if !minNotional.Valid || futuresPrice.Sign() <= 0 {
		return minLotSize
	}
	fromNotional := CeilToStep(minNotional.Decimal.Div(futuresPrice), precision)
	return decimal.Max(fromNotional, minLotSize)
}

func (h HedgeAccumulator) MinBaseSize() decimal.Decimal { return h.minBaseSize }

// SizeToSellOnFutures returns the futures sell size for the current fill, or
// false when the sale must wait for more fills. A zero remainsToBuy flushes
// everything available, including a sub-minimum leftover.
func (h HedgeAccumulator) SizeToSellOnFutures(availableToSell, remainsToBuy decimal.Decimal) (decimal.Decimal, bool) {
	if remainsToBuy.IsZero() {
		return availableToSell, availableToSell.IsPositive()
	}
	if remainsToBuy.LessThan(h.minBaseSize) {
		availableToSell = availableToSell.Sub(h.minBaseSize.Sub(remainsToBuy))
	}
	if availableToSell.LessThan(h.minBaseSize) {
		return decimal.Zero, false
	}
	return FloorToStep(availableToSell, h.precision), true
}

package market

import (
	"errors"
	"fmt"
	"strings"

	"spot-hedge-bot/internal/strategy"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyBook     = errors.New("bids are empty")
	errNotBookUpdate = errors.New("not a book update")
)

// topLevel converts the first ["price","qty"] level into a quote.
func topLevel(levels [][]string) (strategy.Quote, error) {
	if len(levels) == 0 {
		return strategy.Quote{}, ErrEmptyBook
	}
	level := levels[0]
	if len(level) < 2 {
		return strategy.Quote{}, fmt.Errorf("malformed book level %v", level)
	}
	price, err := decimalFromString(level[0])
	if err != nil {
		return strategy.Quote{}, fmt.Errorf("price: %w", err)
	}
	size, err := decimalFromString(level[1])
	if err != nil {
		return strategy.Quote{}, fmt.Errorf("size: %w", err)
	}
	if !price.IsPositive() {
		return strategy.Quote{}, fmt.Errorf("non-positive price %s", price)
	}
	return strategy.Quote{Price: price, Size: size}, nil
}

func decimalFromString(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, errors.New("empty decimal")
	}
	return decimal.NewFromString(raw)
}

func optionalDecimal(raw string) decimal.NullDecimal {
	val, err := decimalFromString(raw)
	if err != nil || !val.IsPositive() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(val)
}

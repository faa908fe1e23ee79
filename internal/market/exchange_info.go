package market

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"spot-hedge-bot/internal/binance/rest"
	"spot-hedge-bot/internal/strategy"

	"github.com/shopspring/decimal"
)

var ErrSymbolNotFound = errors.New("symbol not found in exchange info")

const futuresExchangeInfoPath = "/fapi/v1/exchangeInfo"

// SymbolFilters are the futures trading constraints that drive sizing.
type SymbolFilters struct {
	Symbol            string
	QuantityPrecision int
	MinLotSize        decimal.Decimal
	MinNotional       decimal.NullDecimal
}

func (s SymbolFilters) Precision() decimal.Decimal {
	return strategy.PrecisionCoefficient(s.QuantityPrecision)
}

type exchangeInfo struct {
	Symbols []symbolInfo `json:"symbols"`
}

type symbolInfo struct {
	Symbol            string         `json:"symbol"`
	QuantityPrecision int            `json:"quantityPrecision"`
	Filters           []symbolFilter `json:"filters"`
}

type symbolFilter struct {
	FilterType  string `json:"filterType"`
	MinQty      string `json:"minQty"`
	Notional    string `json:"notional"`
	MinNotional string `json:"minNotional"`
}

func FetchFuturesSymbol(ctx context.Context, client *rest.Client, symbol string) (SymbolFilters, error) {
	if client == nil {
		return SymbolFilters{}, errors.New("rest client is required")
	}
	var info exchangeInfo
	if err := client.Get(ctx, futuresExchangeInfoPath, url.Values{}, &info); err != nil {
		return SymbolFilters{}, err
	}
	return parseFuturesSymbol(info, symbol)
}

func parseFuturesSymbol(info exchangeInfo, symbol string) (SymbolFilters, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, entry := range info.Symbols {
		if entry.Symbol != symbol {
			continue
		}
		filters := SymbolFilters{Symbol: entry.Symbol, QuantityPrecision: entry.QuantityPrecision}
		var lotSize decimal.Decimal
		for _, filter := range entry.Filters {
			switch filter.FilterType {
			case "MARKET_LOT_SIZE":
				if val, err := decimalFromString(filter.MinQty); err == nil {
					filters.MinLotSize = val
				}
			case "LOT_SIZE":
				if val, err := decimalFromString(filter.MinQty); err == nil {
					lotSize = val
				}
			case "MIN_NOTIONAL":
				raw := filter.Notional
				if raw == "" {
					raw = filter.MinNotional
				}
				filters.MinNotional = optionalDecimal(raw)
			}
		}
		if !filters.MinLotSize.IsPositive() {
			filters.MinLotSize = lotSize
		}
		if !filters.MinLotSize.IsPositive() {
			return SymbolFilters{}, fmt.Errorf("%s: no lot size filter", symbol)
		}
		return filters, nil
	}
	return SymbolFilters{}, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
}

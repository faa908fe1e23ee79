package market

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"spot-hedge-bot/internal/binance/rest"
	"spot-hedge-bot/internal/strategy"
)

const (
	SpotBookTickerPath    = "/api/v3/ticker/bookTicker"
	FuturesBookTickerPath = "/fapi/v1/ticker/bookTicker"
)

type bookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	BidQty   string `json:"bidQty"`
}

// FetchBestBid reads the top bid from a REST book ticker endpoint. It is a
// one-shot snapshot for tooling; trading reads the depth streams.
func FetchBestBid(ctx context.Context, client *rest.Client, path, symbol string) (strategy.Quote, error) {
	if client == nil {
		return strategy.Quote{}, errors.New("rest client is required")
	}
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(strings.TrimSpace(symbol)))
	var ticker bookTicker
	if err := client.Get(ctx, path, params, &ticker); err != nil {
		return strategy.Quote{}, err
	}
	quote, err := topLevel([][]string{{ticker.BidPrice, ticker.BidQty}})
	if err != nil {
		return strategy.Quote{}, fmt.Errorf("%s book ticker: %w", symbol, err)
	}
	return quote, nil
}
